package resolver

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HendryAvila/modwatch/internal/mods"
)

// fakeFetcher serves metadata from a map and tracks concurrency.
type fakeFetcher struct {
	meta  map[string]mods.Metadata
	fail  map[string]bool
	panic map[string]bool
	delay time.Duration

	inFlight atomic.Int64
	peak     atomic.Int64
	mu       sync.Mutex
	calls    []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, id string) (mods.Metadata, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	f.mu.Lock()
	f.calls = append(f.calls, id)
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return mods.Metadata{}, ctx.Err()
		}
	}
	if f.panic[id] {
		panic("boom")
	}
	if f.fail[id] {
		return mods.Metadata{}, errors.New("fetch failed")
	}
	return f.meta[id], nil
}

func fixture() (*fakeFetcher, []mods.ModRef) {
	f := &fakeFetcher{
		meta: map[string]mods.Metadata{
			"1": {Title: "CF", TimeUpdated: 100, Description: "changes"},
			"2": {Title: "", TimeUpdated: 0},
			"3": {Title: "Dabs", TimeUpdated: 300},
		},
		fail:  map[string]bool{"4": true},
		panic: map[string]bool{"5": true},
	}
	refs := []mods.ModRef{
		{Name: "three", WorkshopID: "3"},
		{Name: "one", WorkshopID: "1"},
		{Name: "noid", WorkshopID: ""},
		{Name: "two", WorkshopID: "2"},
		{Name: "four", WorkshopID: "4"},
		{Name: "five", WorkshopID: "5"},
	}
	return f, refs
}

var allStrategies = []mods.Strategy{mods.StrategySerial, mods.StrategyPool, mods.StrategyCooperative}

// --- Shared rules ---

func TestResolve_SharedRules(t *testing.T) {
	for _, st := range allStrategies {
		t.Run(string(st), func(t *testing.T) {
			f, refs := fixture()
			b := New(f, Config{Strategy: st}, nil).Resolve(context.Background(), refs)

			require.Len(t, b.Records, 3)
			assert.Equal(t, mods.ModRecord{WorkshopID: "1", DisplayName: "CF", LastUpdate: 100, Changelog: "changes"}, b.Records[0])
			assert.Equal(t, mods.ModRecord{WorkshopID: "2", DisplayName: "Unknown"}, b.Records[1])
			assert.Equal(t, "3", b.Records[2].WorkshopID)

			require.Len(t, b.Dropped, 3)
			assert.Equal(t, "", b.Dropped[0].Ref.WorkshopID)
			assert.Equal(t, "missing workshop id", b.Dropped[0].Reason)
			assert.Equal(t, "4", b.Dropped[1].Ref.WorkshopID)
			assert.Equal(t, "5", b.Dropped[2].Ref.WorkshopID)
			assert.Contains(t, b.Dropped[2].Reason, "panic")
		})
	}
}

func TestResolve_StrategiesAgree(t *testing.T) {
	var results []Batch
	for _, st := range allStrategies {
		f, refs := fixture()
		results = append(results, New(f, Config{Strategy: st}, nil).Resolve(context.Background(), refs))
	}
	assert.Equal(t, results[0], results[1])
	assert.Equal(t, results[0], results[2])
}

func TestResolve_EmptyInput(t *testing.T) {
	for _, st := range allStrategies {
		b := New(&fakeFetcher{}, Config{Strategy: st}, nil).Resolve(context.Background(), nil)
		assert.Empty(t, b.Records)
		assert.Empty(t, b.Dropped)
	}
}

// --- Concurrency bounds ---

func manyRefs(n int) (*fakeFetcher, []mods.ModRef) {
	f := &fakeFetcher{meta: map[string]mods.Metadata{}, delay: 20 * time.Millisecond}
	refs := make([]mods.ModRef, n)
	for i := range refs {
		id := strconv.Itoa(1000 + i)
		f.meta[id] = mods.Metadata{Title: id, TimeUpdated: int64(i)}
		refs[i] = mods.ModRef{WorkshopID: id}
	}
	return f, refs
}

func TestPool_RespectsWorkerLimit(t *testing.T) {
	f, refs := manyRefs(30)
	b := New(f, Config{Strategy: mods.StrategyPool, Workers: 4}, nil).Resolve(context.Background(), refs)

	assert.Len(t, b.Records, 30)
	assert.LessOrEqual(t, f.peak.Load(), int64(4))
	assert.Greater(t, f.peak.Load(), int64(1))
}

func TestCooperative_RespectsInFlightLimit(t *testing.T) {
	f, refs := manyRefs(30)
	b := New(f, Config{Strategy: mods.StrategyCooperative, MaxInFlight: 5}, nil).Resolve(context.Background(), refs)

	assert.Len(t, b.Records, 30)
	assert.LessOrEqual(t, f.peak.Load(), int64(5))
}

func TestCooperative_BatchDeadlineDropsOutstanding(t *testing.T) {
	f, refs := manyRefs(10)
	f.delay = 200 * time.Millisecond
	b := New(f, Config{
		Strategy:     mods.StrategyCooperative,
		MaxInFlight:  2,
		BatchTimeout: 50 * time.Millisecond,
	}, nil).Resolve(context.Background(), refs)

	assert.Empty(t, b.Records)
	assert.Len(t, b.Dropped, 10)
}

func TestSerial_OneAtATime(t *testing.T) {
	f, refs := manyRefs(5)
	f.delay = time.Millisecond
	New(f, Config{Strategy: mods.StrategySerial}, nil).Resolve(context.Background(), refs)

	assert.Equal(t, int64(1), f.peak.Load())
	assert.Equal(t, []string{"1000", "1001", "1002", "1003", "1004"}, f.calls)
}

func TestNew_Defaults(t *testing.T) {
	r := New(&fakeFetcher{}, Config{}, nil)
	assert.Equal(t, mods.StrategySerial, r.Strategy())
	assert.Equal(t, DefaultWorkers, r.cfg.Workers)
	assert.Equal(t, int64(DefaultMaxInFlight), r.cfg.MaxInFlight)
	assert.Equal(t, DefaultBatchTimeout, r.cfg.BatchTimeout)
}
