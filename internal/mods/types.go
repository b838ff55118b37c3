// Package mods holds the records that flow through a check run.
//
// A run starts from what the game server reports (ModRef), enriches each
// reference with workshop metadata (ModRecord), compares the result with
// what was persisted last time (Snapshot) and produces ChangeEvents that
// the report builder renders.
//
// Identity everywhere is the workshop id. Display names and timestamps
// are attributes that may change between runs.
package mods

import (
	"fmt"
	"strings"
	"time"
)

// ModRef is one entry of the mod list reported by the game server.
type ModRef struct {
	Name       string `json:"name"`
	WorkshopID string `json:"workshop_id"`
}

// Metadata is what the workshop returns for a single mod. Zero values mean
// the field was absent; defaults are applied by the resolver.
type Metadata struct {
	Title       string `json:"title"`
	TimeUpdated int64  `json:"time_updated"`
	Description string `json:"description"`
}

// ModRecord is the current observation of a mod after metadata resolution.
type ModRecord struct {
	WorkshopID  string `json:"workshop_id"`
	DisplayName string `json:"display_name"`
	// LastUpdate is a unix timestamp; 0 means unknown.
	LastUpdate int64  `json:"last_update"`
	Changelog  string `json:"changelog,omitempty"`
}

// ServerInfo is the metadata the query client extracts next to the mod list.
// Empty strings and nil pointers mean the server did not report the value.
type ServerInfo struct {
	Island    string `json:"island,omitempty"`
	Platform  string `json:"platform,omitempty"`
	Dedicated *bool  `json:"dedicated,omitempty"`
	TimeLeft  int    `json:"time_left,omitempty"`
	ModCount  int    `json:"mod_count"`
}

// --- Snapshot ---

// SnapshotEntry is the persisted form of a mod. Changelog text is never
// stored; it is fetched live on every run.
type SnapshotEntry struct {
	Name        string `json:"name"`
	WorkshopID  string `json:"workshop_id"`
	TimeUpdated int64  `json:"time_updated"`
}

// Snapshot maps workshop id to the last known entry for one logical server.
type Snapshot map[string]SnapshotEntry

// IDs returns the snapshot keys in no particular order.
func (s Snapshot) IDs() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	return ids
}

// Records turns a snapshot back into ModRecords, keeping timestamps as-is.
func (s Snapshot) Records() []ModRecord {
	out := make([]ModRecord, 0, len(s))
	for id, e := range s {
		out = append(out, ModRecord{WorkshopID: id, DisplayName: e.Name, LastUpdate: e.TimeUpdated})
	}
	return out
}

// --- Change events ---

// EventKind tags a ChangeEvent.
type EventKind string

const (
	KindNew       EventKind = "new"
	KindUpdated   EventKind = "updated"
	KindRemoved   EventKind = "removed"
	KindNoChanges EventKind = "no_changes"
	KindTooMany   EventKind = "too_many"
)

// ChangeEvent is one line item of a report.
type ChangeEvent struct {
	Kind       EventKind `json:"kind"`
	WorkshopID string    `json:"workshop_id,omitempty"`
	Title      string    `json:"title,omitempty"`
	// PreviousUpdate is only set for KindUpdated.
	PreviousUpdate int64 `json:"previous_update,omitempty"`
	// CurrentUpdate is set for KindNew and KindUpdated.
	CurrentUpdate int64  `json:"current_update,omitempty"`
	Changelog     string `json:"changelog,omitempty"`
	// Total is the aggregate count carried by KindTooMany.
	Total int `json:"total,omitempty"`
}

// IsChange reports whether the event describes an actual change.
func (e ChangeEvent) IsChange() bool {
	switch e.Kind {
	case KindNew, KindUpdated, KindRemoved, KindTooMany:
		return true
	}
	return false
}

// --- Performance ---

// PerformanceRecord describes one completed run for a logical server.
type PerformanceRecord struct {
	Timestamp       time.Time `json:"timestamp"`
	DurationSeconds float64   `json:"duration_seconds"`
	Mode            Strategy  `json:"mode"`
	ModCount        int       `json:"mod_count"`
}

// --- Resolver strategy ---

// Strategy selects how workshop metadata is fetched.
type Strategy string

const (
	StrategySerial      Strategy = "serial"
	StrategyPool        Strategy = "pool"
	StrategyCooperative Strategy = "cooperative"
)

// strategyAliases maps the names used in config files to strategies.
var strategyAliases = map[string]Strategy{
	"serial":      StrategySerial,
	"sequential":  StrategySerial,
	"pool":        StrategyPool,
	"threaded":    StrategyPool,
	"cooperative": StrategyCooperative,
	"async":       StrategyCooperative,
}

// ParseStrategy accepts a strategy name or one of its aliases.
func ParseStrategy(s string) (Strategy, error) {
	if st, ok := strategyAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return st, nil
	}
	return "", fmt.Errorf("invalid mod check mode %q: must be one of: serial, threaded, async", s)
}
