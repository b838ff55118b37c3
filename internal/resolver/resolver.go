// Package resolver turns the server's mod references into ModRecords by
// fetching workshop metadata. Three execution strategies share one set of
// rules; they differ only in how fetches are scheduled.
package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/HendryAvila/modwatch/internal/mods"
)

const (
	DefaultWorkers      = 10
	DefaultMaxInFlight  = 10
	DefaultBatchTimeout = 10 * time.Second

	unknownTitle = "Unknown"
)

// Fetcher returns workshop metadata for one mod.
type Fetcher interface {
	Fetch(ctx context.Context, workshopID string) (mods.Metadata, error)
}

// Config selects and tunes the execution strategy.
type Config struct {
	Strategy     mods.Strategy
	Workers      int
	MaxInFlight  int64
	BatchTimeout time.Duration
}

// Dropped is a reference that produced no record.
type Dropped struct {
	Ref    mods.ModRef
	Reason string
}

// Batch is the outcome of one resolve call.
type Batch struct {
	// Records are sorted by workshop id.
	Records []mods.ModRecord
	Dropped []Dropped
}

// Resolver fetches metadata for a list of mod references.
type Resolver struct {
	fetcher Fetcher
	cfg     Config
	logger  *slog.Logger
}

// New creates a resolver. Zero config values take the package defaults.
func New(fetcher Fetcher, cfg Config, logger *slog.Logger) *Resolver {
	if cfg.Strategy == "" {
		cfg.Strategy = mods.StrategySerial
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = DefaultMaxInFlight
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = DefaultBatchTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{fetcher: fetcher, cfg: cfg, logger: logger}
}

// Strategy returns the configured execution strategy.
func (r *Resolver) Strategy() mods.Strategy { return r.cfg.Strategy }

// outcome is either a record or a drop reason.
type outcome struct {
	ref    mods.ModRef
	record mods.ModRecord
	reason string
}

func (o outcome) ok() bool { return o.reason == "" }

// Resolve fetches metadata for refs. It never fails: individual problems
// end up in Batch.Dropped.
func (r *Resolver) Resolve(ctx context.Context, refs []mods.ModRef) Batch {
	var outcomes []outcome
	switch r.cfg.Strategy {
	case mods.StrategyPool:
		outcomes = r.pool(ctx, refs)
	case mods.StrategyCooperative:
		outcomes = r.cooperative(ctx, refs)
	default:
		outcomes = r.serial(ctx, refs)
	}
	return collect(outcomes)
}

func collect(outcomes []outcome) Batch {
	var b Batch
	for _, o := range outcomes {
		if o.ok() {
			b.Records = append(b.Records, o.record)
		} else {
			b.Dropped = append(b.Dropped, Dropped{Ref: o.ref, Reason: o.reason})
		}
	}
	sort.Slice(b.Records, func(i, j int) bool { return b.Records[i].WorkshopID < b.Records[j].WorkshopID })
	sort.Slice(b.Dropped, func(i, j int) bool { return b.Dropped[i].Ref.WorkshopID < b.Dropped[j].Ref.WorkshopID })
	return b
}

// resolveOne holds the per-mod rules every strategy shares.
func (r *Resolver) resolveOne(ctx context.Context, ref mods.ModRef) (out outcome) {
	out.ref = ref
	id := strings.TrimSpace(ref.WorkshopID)
	if id == "" {
		r.logger.Warn("skipping mod without workshop id", "name", ref.Name)
		out.reason = "missing workshop id"
		return out
	}

	defer func() {
		if p := recover(); p != nil {
			r.logger.Warn("mod fetch panicked", "workshop_id", id, "panic", p)
			out.reason = fmt.Sprintf("panic: %v", p)
		}
	}()

	meta, err := r.fetcher.Fetch(ctx, id)
	if err != nil {
		r.logger.Warn("failed to fetch mod details", "workshop_id", id, "error", err)
		out.reason = err.Error()
		return out
	}

	title := meta.Title
	if title == "" {
		title = unknownTitle
	}
	out.record = mods.ModRecord{
		WorkshopID:  id,
		DisplayName: title,
		LastUpdate:  meta.TimeUpdated,
		Changelog:   meta.Description,
	}
	return out
}

// --- Strategies ---

func (r *Resolver) serial(ctx context.Context, refs []mods.ModRef) []outcome {
	out := make([]outcome, 0, len(refs))
	for _, ref := range refs {
		out = append(out, r.resolveOne(ctx, ref))
	}
	return out
}

// pool runs fetches on a fixed number of goroutines. Workers never return
// an error so one failure cannot cancel its siblings.
func (r *Resolver) pool(ctx context.Context, refs []mods.ModRef) []outcome {
	out := make([]outcome, len(refs))
	var g errgroup.Group
	g.SetLimit(r.cfg.Workers)
	for i, ref := range refs {
		g.Go(func() error {
			out[i] = r.resolveOne(ctx, ref)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// cooperative starts one goroutine per ref, bounded by a weighted semaphore
// and a batch deadline. Refs still waiting when the deadline passes are
// dropped; finished ones are kept.
func (r *Resolver) cooperative(ctx context.Context, refs []mods.ModRef) []outcome {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.BatchTimeout)
	defer cancel()

	sem := semaphore.NewWeighted(r.cfg.MaxInFlight)
	out := make([]outcome, len(refs))
	done := make(chan struct{}, len(refs))

	for i, ref := range refs {
		go func() {
			defer func() { done <- struct{}{} }()
			if err := sem.Acquire(ctx, 1); err != nil {
				r.logger.Warn("mod fetch not started before batch deadline", "workshop_id", ref.WorkshopID)
				out[i] = outcome{ref: ref, reason: fmt.Sprintf("batch deadline: %v", err)}
				return
			}
			defer sem.Release(1)
			out[i] = r.resolveOne(ctx, ref)
		}()
	}
	for range refs {
		<-done
	}
	return out
}
