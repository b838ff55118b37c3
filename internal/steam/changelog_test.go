package steam

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const changelogPage = `<html><body>
<div class="workshopAnnouncement">
  <div class="changeLogBlock">
    <div class="headline">Update: 12 Oct @ 3:14pm</div>
    <p id="1700000000">Fixed crash<br>Added [b]new[/b] items<br><br>  Tweaked loot  </p>
  </div>
  <div class="changeLogBlock">
    <p>Older entry</p>
  </div>
</div>
</body></html>`

func newTestScraper(t *testing.T, h http.HandlerFunc) *ChangelogScraper {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	s := NewChangelogScraper()
	s.BaseURL = srv.URL + "/changelog/"
	return s
}

func TestLatest_FirstBlock(t *testing.T) {
	s := newTestScraper(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/changelog/1559212036", r.URL.Path)
		_, _ = w.Write([]byte(changelogPage))
	})

	got, err := s.Latest(context.Background(), "1559212036")
	require.NoError(t, err)
	assert.Equal(t, "Fixed crash\nAdded [b]new[/b] items\nTweaked loot", got)
}

func TestLatest_NoBlock(t *testing.T) {
	s := newTestScraper(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><body><p>nothing</p></body></html>`))
	})

	got, err := s.Latest(context.Background(), "1")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLatest_NotFound(t *testing.T) {
	s := newTestScraper(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := s.Latest(context.Background(), "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}
