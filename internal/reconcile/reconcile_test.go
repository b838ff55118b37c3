package reconcile

import (
	"math/rand"
	"sort"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HendryAvila/modwatch/internal/mods"
)

func rec(id string, ts int64) mods.ModRecord {
	return mods.ModRecord{WorkshopID: id, DisplayName: "mod " + id, LastUpdate: ts}
}

func snap(entries map[string]int64) mods.Snapshot {
	s := mods.Snapshot{}
	for id, ts := range entries {
		s[id] = mods.SnapshotEntry{Name: "mod " + id, WorkshopID: id, TimeUpdated: ts}
	}
	return s
}

func kinds(events []mods.ChangeEvent) []mods.EventKind {
	out := make([]mods.EventKind, len(events))
	for i, e := range events {
		out[i] = e.Kind
	}
	return out
}

var defaultOpts = Options{ReportLimit: 10, ShowRemoved: true}

// --- Scenarios ---

func TestReconcile_NewMod(t *testing.T) {
	res := Reconcile(mods.Snapshot{}, []mods.ModRecord{rec("1", 100)}, defaultOpts)

	require.Len(t, res.Events, 1)
	assert.Equal(t, mods.KindNew, res.Events[0].Kind)
	assert.Equal(t, "1", res.Events[0].WorkshopID)
	assert.Equal(t, int64(100), res.Events[0].CurrentUpdate)
	assert.Equal(t, mods.Snapshot{"1": {Name: "mod 1", WorkshopID: "1", TimeUpdated: 100}}, res.Snapshot)
}

func TestReconcile_Updated(t *testing.T) {
	res := Reconcile(snap(map[string]int64{"1": 100}), []mods.ModRecord{rec("1", 200)}, defaultOpts)

	require.Len(t, res.Events, 1)
	e := res.Events[0]
	assert.Equal(t, mods.KindUpdated, e.Kind)
	assert.Equal(t, int64(100), e.PreviousUpdate)
	assert.Equal(t, int64(200), e.CurrentUpdate)
}

func TestReconcile_SameTimestampIsNoChange(t *testing.T) {
	opts := defaultOpts
	opts.SilentOnNoChanges = true
	res := Reconcile(snap(map[string]int64{"1": 100}), []mods.ModRecord{rec("1", 100)}, opts)

	assert.Empty(t, res.Events)
	assert.False(t, res.ChangesDetected())
	assert.Equal(t, []string{"1"}, res.Unchanged)
}

func TestReconcile_Removed(t *testing.T) {
	prev := snap(map[string]int64{"1": 100, "2": 100})
	current := []mods.ModRecord{rec("1", 100)}

	res := Reconcile(prev, current, defaultOpts)
	require.Len(t, res.Events, 1)
	assert.Equal(t, mods.KindRemoved, res.Events[0].Kind)
	assert.Equal(t, "2", res.Events[0].WorkshopID)
	assert.Equal(t, "mod 2", res.Events[0].Title)

	res = Reconcile(prev, current, Options{ReportLimit: 10, SilentOnNoChanges: true})
	assert.Empty(t, res.Events)
	assert.Equal(t, []string{"2"}, res.Removed)
	assert.NotContains(t, res.Snapshot, "2")
}

func TestReconcile_TooMany(t *testing.T) {
	var current []mods.ModRecord
	for i := 0; i < 15; i++ {
		current = append(current, rec(strconv.Itoa(i), 1))
	}

	res := Reconcile(mods.Snapshot{}, current, defaultOpts)
	require.Len(t, res.Events, 1)
	assert.Equal(t, mods.KindTooMany, res.Events[0].Kind)
	assert.Equal(t, 15, res.Events[0].Total)
	assert.Equal(t, 15, res.TotalChanges)
	assert.Len(t, res.Snapshot, 15)
}

func TestReconcile_TooManyKeepsRemoved(t *testing.T) {
	prev := snap(map[string]int64{"gone": 1})
	current := []mods.ModRecord{rec("a", 1), rec("b", 1), rec("c", 1)}

	res := Reconcile(prev, current, Options{ReportLimit: 2, ShowRemoved: true})
	assert.Equal(t, []mods.EventKind{mods.KindTooMany, mods.KindRemoved}, kinds(res.Events))
}

func TestReconcile_LimitIsInclusive(t *testing.T) {
	current := []mods.ModRecord{rec("a", 1), rec("b", 1)}
	res := Reconcile(mods.Snapshot{}, current, Options{ReportLimit: 2})
	assert.Equal(t, []mods.EventKind{mods.KindNew, mods.KindNew}, kinds(res.Events))
}

func TestReconcile_NoChangesEvent(t *testing.T) {
	res := Reconcile(snap(map[string]int64{"1": 5}), []mods.ModRecord{rec("1", 5)}, defaultOpts)
	assert.Equal(t, []mods.EventKind{mods.KindNoChanges}, kinds(res.Events))
	assert.False(t, res.ChangesDetected())
}

func TestReconcile_EventOrder(t *testing.T) {
	prev := snap(map[string]int64{"u2": 1, "u1": 1, "r": 1})
	current := []mods.ModRecord{rec("u2", 2), rec("n2", 1), rec("u1", 2), rec("n1", 1)}

	res := Reconcile(prev, current, defaultOpts)
	var got []string
	for _, e := range res.Events {
		got = append(got, string(e.Kind)+":"+e.WorkshopID)
	}
	assert.Equal(t, []string{"new:n1", "new:n2", "updated:u1", "updated:u2", "removed:r"}, got)
}

func TestReconcile_DecreasingTimestamp(t *testing.T) {
	res := Reconcile(snap(map[string]int64{"1": 500}), []mods.ModRecord{rec("1", 100)}, defaultOpts)
	assert.Equal(t, []mods.EventKind{mods.KindNoChanges}, kinds(res.Events))
	// The snapshot still reflects what was observed.
	assert.Equal(t, int64(100), res.Snapshot["1"].TimeUpdated)
}

func TestReconcile_DuplicatesLastWins(t *testing.T) {
	current := []mods.ModRecord{rec("1", 100), rec("1", 300), rec("1", 200)}
	res := Reconcile(mods.Snapshot{}, current, defaultOpts)

	assert.Equal(t, []string{"1"}, res.Duplicates)
	assert.Equal(t, int64(200), res.Snapshot["1"].TimeUpdated)
	require.Len(t, res.Events, 1)
}

func TestReconcile_DoesNotMutatePrevious(t *testing.T) {
	prev := snap(map[string]int64{"1": 1, "2": 2})
	Reconcile(prev, []mods.ModRecord{rec("1", 9), rec("3", 1)}, defaultOpts)
	assert.Equal(t, snap(map[string]int64{"1": 1, "2": 2}), prev)
}

// --- Properties ---

func randomSnapshot(r *rand.Rand, n int) mods.Snapshot {
	s := mods.Snapshot{}
	for i := 0; i < n; i++ {
		id := strconv.Itoa(r.Intn(40))
		s[id] = mods.SnapshotEntry{Name: id, WorkshopID: id, TimeUpdated: int64(r.Intn(5))}
	}
	return s
}

func TestProperty_Idempotence(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		s := randomSnapshot(r, 1+r.Intn(30))
		res := Reconcile(s, s.Records(), Options{ReportLimit: r.Intn(20), ShowRemoved: true})
		assert.False(t, res.ChangesDetected())
		assert.Equal(t, len(s), len(res.Unchanged))
	}
}

func TestProperty_PartitionAndCap(t *testing.T) {
	r := rand.New(rand.NewSource(2))
	for i := 0; i < 300; i++ {
		prev := randomSnapshot(r, r.Intn(30))
		var current []mods.ModRecord
		for _, e := range randomSnapshot(r, r.Intn(30)) {
			current = append(current, mods.ModRecord{WorkshopID: e.WorkshopID, LastUpdate: e.TimeUpdated})
		}
		limit := r.Intn(15)
		res := Reconcile(prev, current, Options{ReportLimit: limit, ShowRemoved: true})

		union := map[string]bool{}
		for id := range prev {
			union[id] = true
		}
		for _, c := range current {
			union[c.WorkshopID] = true
		}
		var covered []string
		covered = append(covered, res.Added...)
		covered = append(covered, res.Removed...)
		covered = append(covered, res.Updated...)
		covered = append(covered, res.Unchanged...)
		sort.Strings(covered)
		var want []string
		for id := range union {
			want = append(want, id)
		}
		sort.Strings(want)
		assert.Equal(t, want, covered, "partition must cover the union exactly once")

		for _, id := range res.Updated {
			assert.Greater(t, res.Snapshot[id].TimeUpdated, prev[id].TimeUpdated)
		}

		total := len(res.Added) + len(res.Updated)
		assert.Equal(t, total, res.TotalChanges)
		var tooMany, itemized int
		for _, e := range res.Events {
			switch e.Kind {
			case mods.KindTooMany:
				tooMany++
				assert.Equal(t, total, e.Total)
			case mods.KindNew, mods.KindUpdated:
				itemized++
			}
		}
		if total > limit {
			assert.Equal(t, 1, tooMany)
			assert.Zero(t, itemized)
		} else {
			assert.Zero(t, tooMany)
			assert.Equal(t, total, itemized)
		}
	}
}
