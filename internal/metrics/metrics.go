// Package metrics records per-run numbers in a private prometheus registry
// and can export them for the node_exporter textfile collector.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/HendryAvila/modwatch/internal/mods"
)

const namespace = "modwatch"

// Recorder holds the collectors. A nil *Recorder is valid and records nothing.
type Recorder struct {
	reg *prometheus.Registry

	runDuration   *prometheus.GaugeVec
	modsGauge     *prometheus.GaugeVec
	changes       *prometheus.CounterVec
	queryFailures *prometheus.CounterVec
	dropped       *prometheus.CounterVec
	lastRun       *prometheus.GaugeVec
}

// New creates a recorder with its own registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Recorder{
		reg: reg,
		runDuration: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of the last completed check run.",
		}, []string{"server", "mode"}),
		modsGauge: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mods",
			Help:      "Number of mods resolved in the last run.",
		}, []string{"server"}),
		changes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "changes_total",
			Help:      "Mod change events reported, by kind.",
		}, []string{"server", "kind"}),
		queryFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "query_failures_total",
			Help:      "Server queries that failed or timed out.",
		}, []string{"server"}),
		dropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_dropped_total",
			Help:      "Mods dropped because their workshop metadata could not be fetched.",
		}, []string{"server"}),
		lastRun: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time of the last completed check run.",
		}, []string{"server"}),
	}
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.reg }

// ObserveRun records a completed run.
func (r *Recorder) ObserveRun(server string, rec mods.PerformanceRecord, events []mods.ChangeEvent, dropped int) {
	if r == nil {
		return
	}
	r.runDuration.WithLabelValues(server, string(rec.Mode)).Set(rec.DurationSeconds)
	r.modsGauge.WithLabelValues(server).Set(float64(rec.ModCount))
	r.lastRun.WithLabelValues(server).Set(float64(rec.Timestamp.Unix()))
	for _, e := range events {
		if e.IsChange() {
			r.changes.WithLabelValues(server, string(e.Kind)).Inc()
		}
	}
	if dropped > 0 {
		r.dropped.WithLabelValues(server).Add(float64(dropped))
	}
}

// QueryFailed counts a failed server query.
func (r *Recorder) QueryFailed(server string) {
	if r == nil {
		return
	}
	r.queryFailures.WithLabelValues(server).Inc()
}

// WriteTextfile writes the registry in text exposition format. The file is
// written atomically so the collector never reads a partial file.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("metrics: create dir: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.reg); err != nil {
		return fmt.Errorf("metrics: write textfile: %w", err)
	}
	return nil
}
