// Package reconcile diffs the current mod set against the last snapshot.
//
// Reconcile is pure: it reads the previous snapshot, never mutates it, and
// returns a freshly built replacement alongside the classified events.
package reconcile

import (
	"sort"

	"github.com/HendryAvila/modwatch/internal/mods"
)

// Options controls which events are produced.
type Options struct {
	// ReportLimit caps itemized New+Updated events; above it a single
	// TooMany event is emitted instead.
	ReportLimit       int
	ShowRemoved       bool
	SilentOnNoChanges bool
}

// Result carries the events, the replacement snapshot and the id sets the
// events were derived from.
type Result struct {
	Events   []mods.ChangeEvent
	Snapshot mods.Snapshot

	Added     []string
	Updated   []string
	Removed   []string
	Unchanged []string
	// TotalChanges is len(Added)+len(Updated), computed once here and
	// reused wherever an aggregate count is rendered.
	TotalChanges int
	// Duplicates lists ids that appeared more than once in the input.
	Duplicates []string
}

// ChangesDetected reports whether any event describes a change.
func (r Result) ChangesDetected() bool {
	for _, e := range r.Events {
		if e.IsChange() {
			return true
		}
	}
	return false
}

// Reconcile classifies current against previous.
func Reconcile(previous mods.Snapshot, current []mods.ModRecord, opts Options) Result {
	var res Result

	byID := make(map[string]mods.ModRecord, len(current))
	seen := map[string]bool{}
	for _, rec := range current {
		if _, dup := byID[rec.WorkshopID]; dup && !seen[rec.WorkshopID] {
			res.Duplicates = append(res.Duplicates, rec.WorkshopID)
			seen[rec.WorkshopID] = true
		}
		byID[rec.WorkshopID] = rec
	}
	sort.Strings(res.Duplicates)

	for id, rec := range byID {
		prev, known := previous[id]
		switch {
		case !known:
			res.Added = append(res.Added, id)
		case rec.LastUpdate > prev.TimeUpdated:
			res.Updated = append(res.Updated, id)
		default:
			res.Unchanged = append(res.Unchanged, id)
		}
	}
	for id := range previous {
		if _, ok := byID[id]; !ok {
			res.Removed = append(res.Removed, id)
		}
	}
	sort.Strings(res.Added)
	sort.Strings(res.Updated)
	sort.Strings(res.Removed)
	sort.Strings(res.Unchanged)

	res.TotalChanges = len(res.Added) + len(res.Updated)

	if res.TotalChanges > opts.ReportLimit {
		res.Events = append(res.Events, mods.ChangeEvent{Kind: mods.KindTooMany, Total: res.TotalChanges})
	} else {
		for _, id := range res.Added {
			rec := byID[id]
			res.Events = append(res.Events, mods.ChangeEvent{
				Kind:          mods.KindNew,
				WorkshopID:    id,
				Title:         rec.DisplayName,
				CurrentUpdate: rec.LastUpdate,
				Changelog:     rec.Changelog,
			})
		}
		for _, id := range res.Updated {
			rec := byID[id]
			res.Events = append(res.Events, mods.ChangeEvent{
				Kind:           mods.KindUpdated,
				WorkshopID:     id,
				Title:          rec.DisplayName,
				PreviousUpdate: previous[id].TimeUpdated,
				CurrentUpdate:  rec.LastUpdate,
				Changelog:      rec.Changelog,
			})
		}
	}

	if opts.ShowRemoved {
		for _, id := range res.Removed {
			res.Events = append(res.Events, mods.ChangeEvent{
				Kind:       mods.KindRemoved,
				WorkshopID: id,
				Title:      previous[id].Name,
			})
		}
	}

	if len(res.Events) == 0 && !opts.SilentOnNoChanges {
		res.Events = append(res.Events, mods.ChangeEvent{Kind: mods.KindNoChanges})
	}

	res.Snapshot = make(mods.Snapshot, len(byID))
	for id, rec := range byID {
		res.Snapshot[id] = mods.SnapshotEntry{
			Name:        rec.DisplayName,
			WorkshopID:  id,
			TimeUpdated: rec.LastUpdate,
		}
	}
	return res
}
