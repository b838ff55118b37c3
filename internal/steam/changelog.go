package steam

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DefaultChangelogURL is the community changelog page; the workshop id is appended.
const DefaultChangelogURL = "https://steamcommunity.com/sharedfiles/filedetails/changelog/"

// ChangelogScraper reads the newest entry from a mod's changelog page.
type ChangelogScraper struct {
	BaseURL   string
	UserAgent string
	client    *http.Client
}

// NewChangelogScraper creates a scraper against the public changelog pages.
func NewChangelogScraper() *ChangelogScraper {
	return &ChangelogScraper{
		BaseURL:   DefaultChangelogURL,
		UserAgent: defaultUserAgent,
		client:    &http.Client{Timeout: defaultTimeout},
	}
}

// Latest returns the text of the most recent changelog block, with line
// breaks preserved. An empty string means the page had no changelog.
func (s *ChangelogScraper) Latest(ctx context.Context, workshopID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.BaseURL+workshopID, nil)
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", s.UserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching changelog: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("changelog page returned %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("parsing changelog page: %w", err)
	}

	block := doc.Find("div.changeLogBlock").First()
	if block.Length() == 0 {
		return "", nil
	}
	body := block.Find("p").First()
	if body.Length() == 0 {
		body = block
	}
	body.Find("br").ReplaceWithHtml("\n")

	var lines []string
	for _, line := range strings.Split(body.Text(), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n"), nil
}
