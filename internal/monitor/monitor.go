// Package monitor runs one mod check per logical server: query the game
// server, resolve workshop metadata, reconcile against the stored
// snapshot, render and dispatch the summaries, then persist.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/HendryAvila/modwatch/internal/config"
	"github.com/HendryAvila/modwatch/internal/history"
	"github.com/HendryAvila/modwatch/internal/metrics"
	"github.com/HendryAvila/modwatch/internal/mods"
	"github.com/HendryAvila/modwatch/internal/notify"
	"github.com/HendryAvila/modwatch/internal/perf"
	"github.com/HendryAvila/modwatch/internal/query"
	"github.com/HendryAvila/modwatch/internal/reconcile"
	"github.com/HendryAvila/modwatch/internal/report"
	"github.com/HendryAvila/modwatch/internal/resolver"
	"github.com/HendryAvila/modwatch/internal/snapshot"
	"github.com/HendryAvila/modwatch/internal/steam"
	"github.com/HendryAvila/modwatch/internal/templates"
)

// timeNow is a package-level var so tests can pin the clock.
var timeNow = time.Now

// Querier asks a game server for its info and active mods.
type Querier interface {
	Query(ctx context.Context, host string, port int) (mods.ServerInfo, []mods.ModRef, error)
}

// ChangelogSource returns the latest changelog entry of a mod.
type ChangelogSource interface {
	Latest(ctx context.Context, workshopID string) (string, error)
}

// Deps are the collaborators of a Monitor. Nil fields are built from each
// server's configuration.
type Deps struct {
	Query      Querier
	Fetcher    resolver.Fetcher
	Changelogs ChangelogSource
	// Stdout receives console output; nil means os.Stdout.
	Stdout io.Writer
	// HTTPClient is used for the chat webhook.
	HTTPClient *http.Client
	Metrics    *metrics.Recorder
}

// RunOptions apply to every server in a run.
type RunOptions struct {
	// DryRun keeps console output only and persists nothing.
	DryRun bool
	// Mode overrides mods.mod_check_mode when set.
	Mode mods.Strategy
	// MetricsTextfile, when set, receives the metrics after RunAll.
	MetricsTextfile string
}

// Report is the outcome of one server check.
type Report struct {
	ServerID   string
	ServerName string
	Status     history.Status
	Mode       mods.Strategy

	Plain string
	Rich  string
	// RichSent is true when the rich summary went to the chat sink.
	RichSent bool

	Info     mods.ServerInfo
	Result   reconcile.Result
	Dropped  []resolver.Dropped
	Duration time.Duration

	// Err is the query failure or recovered panic, if any.
	Err            error
	DispatchErrors []*notify.DispatchError
}

// Monitor runs checks. Safe for sequential reuse across servers; history
// databases are opened once per data dir and closed by Close.
type Monitor struct {
	deps   Deps
	logger *slog.Logger

	mu        sync.Mutex
	histories map[string]*history.Store
}

// New creates a monitor.
func New(deps Deps, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{deps: deps, logger: logger, histories: map[string]*history.Store{}}
}

// Close releases the history databases.
func (m *Monitor) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var errs []error
	for dir, h := range m.histories {
		if err := h.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(m.histories, dir)
	}
	return errors.Join(errs...)
}

// History returns the journal of a data dir, opening it on first use.
func (m *Monitor) History(dataDir string) (*history.Store, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.histories[dataDir]; ok {
		return h, nil
	}
	h, err := history.Open(dataDir)
	if err != nil {
		return nil, err
	}
	m.histories[dataDir] = h
	return h, nil
}

// RunAll checks every server in order. A panic in one server's check is
// logged and recorded in its Report; the remaining servers still run.
func (m *Monitor) RunAll(ctx context.Context, servers []config.Server, opts RunOptions) []Report {
	reports := make([]Report, 0, len(servers))
	for _, srv := range servers {
		reports = append(reports, m.Check(ctx, srv, opts))
	}
	if opts.MetricsTextfile != "" {
		if err := m.deps.Metrics.WriteTextfile(opts.MetricsTextfile); err != nil {
			m.logger.Error("failed to write metrics", "path", opts.MetricsTextfile, "error", err)
		}
	}
	return reports
}

// Check runs one server. It never returns an error: query failures,
// fetch failures, dispatch failures and persistence failures are logged
// and reflected in the Report, and a panic becomes a failed Report.
func (m *Monitor) Check(ctx context.Context, srv config.Server, opts RunOptions) (rep Report) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic during check: %v", r)
			m.logger.Error("server check aborted", "server", srv.ServerID(), "error", err)
			rep = Report{
				ServerID:   srv.ServerID(),
				ServerName: srv.DisplayName(),
				Status:     history.StatusFailed,
				Err:        err,
			}
		}
	}()
	return m.check(ctx, srv, opts)
}

func (m *Monitor) check(ctx context.Context, srv config.Server, opts RunOptions) Report {
	start := timeNow()
	id := srv.ServerID()
	logger := m.logger.With("server", id)
	rep := Report{ServerID: id, ServerName: srv.DisplayName(), Status: history.StatusOK}

	if !srv.Mods.ModCheckingEnabled {
		logger.Info("mod checking disabled, skipping")
		rep.Status = history.StatusSkipped
		return rep
	}

	rep.Mode = m.strategy(srv, opts, logger)
	builder := report.New(m.renderer(srv, logger), reportOptions(srv), logger)
	plainSinks, richSink := m.sinks(srv, opts)

	// Query.
	logger.Info("querying server", "addr", fmt.Sprintf("%s:%d", srv.Endpoint.IP, srv.Endpoint.Port))
	info, refs, err := m.querier(srv).Query(ctx, srv.Endpoint.IP, srv.Endpoint.Port)
	rctx := report.Context{ServerName: srv.DisplayName(), Info: info}
	if err != nil {
		var qe *query.QueryError
		if errors.As(err, &qe) && qe.Timeout() {
			logger.Error("server query timed out", "error", err)
		} else {
			logger.Error("server query failed", "error", err)
		}
		rep.Status = history.StatusQueryFailed
		rep.Err = err
		rep.Plain = builder.QueryFailure(rctx, err, report.Plain)
		rep.DispatchErrors = notify.Dispatch(ctx, logger, rep.Plain, plainSinks...)
		rep.Duration = timeNow().Sub(start)
		m.deps.Metrics.QueryFailed(id)
		if !opts.DryRun {
			m.journal(ctx, srv, history.Run{
				ServerID:        id,
				StartedAt:       start,
				DurationSeconds: rep.Duration.Seconds(),
				Mode:            rep.Mode,
				Status:          history.StatusQueryFailed,
				Error:           err.Error(),
			}, nil, logger)
		}
		return rep
	}
	rep.Info = info
	logger.Info("server queried", "mods", len(refs))

	// Resolve.
	res := resolver.New(m.fetcher(srv), resolver.Config{
		Strategy:     rep.Mode,
		Workers:      srv.ThreadedMode.MaxWorkers,
		MaxInFlight:  int64(srv.AsyncMode.MaxInFlight),
		BatchTimeout: srv.AsyncTimeout(),
	}, logger)
	batch := res.Resolve(ctx, refs)
	rep.Dropped = batch.Dropped

	// Reconcile.
	store := snapshot.NewFileStore(srv.DataDir, logger)
	previous := store.Load(id)
	result := reconcile.Reconcile(previous, batch.Records, reconcile.Options{
		ReportLimit:       srv.Mods.ReportLimit,
		ShowRemoved:       srv.Output.ShowRemovedMods,
		SilentOnNoChanges: srv.Output.SilentOnNoChanges,
	})
	if len(result.Duplicates) > 0 {
		logger.Warn("duplicate workshop ids in query result, last entry wins", "ids", result.Duplicates)
	}
	if srv.Mods.ShowModChangelog && srv.Mods.ChangelogSource == config.ChangelogFromPage {
		m.enrichChangelogs(ctx, result.Events, logger)
	}
	rep.Result = result

	// Build.
	rctx.TotalChanges = result.TotalChanges
	if srv.Output.ShowNextReboot {
		if h, mnt, ok, _ := srv.RebootClock(); ok {
			rctx.NextReboot = NextReboot(start, h, mnt, srv.Reboot.IntervalMinutes)
		}
	}
	rep.Plain = builder.Build(result.Events, rctx, report.Plain)
	rep.Rich = builder.Build(result.Events, rctx, report.Rich)

	// Dispatch.
	rep.DispatchErrors = notify.Dispatch(ctx, logger, rep.Plain, plainSinks...)
	if richSink != nil && (result.ChangesDetected() || !srv.Output.SilentOnNoChanges) {
		errs := notify.Dispatch(ctx, logger, rep.Rich, richSink)
		rep.DispatchErrors = append(rep.DispatchErrors, errs...)
		rep.RichSent = len(errs) == 0
	}

	// Persist.
	rep.Duration = timeNow().Sub(start)
	rec := mods.PerformanceRecord{
		Timestamp:       start,
		DurationSeconds: rep.Duration.Seconds(),
		Mode:            rep.Mode,
		ModCount:        len(batch.Records),
	}
	if opts.DryRun {
		logger.Info("dry run, nothing persisted")
	} else {
		m.persist(ctx, srv, store, result, rec, logger)
	}
	m.deps.Metrics.ObserveRun(id, rec, result.Events, len(batch.Dropped))

	logger.Info("check complete",
		"added", len(result.Added),
		"updated", len(result.Updated),
		"removed", len(result.Removed),
		"dropped", len(batch.Dropped),
		"duration", rep.Duration.Round(time.Millisecond),
	)
	return rep
}

// persist writes the snapshot, the performance record and the journal.
// Each failure is logged and the rest still run.
func (m *Monitor) persist(ctx context.Context, srv config.Server, store *snapshot.FileStore, result reconcile.Result, rec mods.PerformanceRecord, logger *slog.Logger) {
	id := srv.ServerID()
	if err := store.Save(id, result.Snapshot); err != nil {
		logger.Error("failed to save snapshot", "error", err)
	}

	plog := perf.New(srv.DataDir, logger)
	if err := plog.Append(id, rec); err != nil {
		logger.Error("failed to append performance record", "error", err)
	} else {
		sum := perf.Summarize(plog.Tail(id, perf.DefaultTail))
		logger.Info("performance",
			"mode", rec.Mode,
			"duration_seconds", rec.DurationSeconds,
			"average_seconds", sum.AverageDuration,
			"runs", sum.Runs,
		)
	}

	m.journal(ctx, srv, history.Run{
		ServerID:        id,
		StartedAt:       rec.Timestamp,
		DurationSeconds: rec.DurationSeconds,
		Mode:            rec.Mode,
		ModCount:        rec.ModCount,
		Status:          history.StatusOK,
	}, result.Events, logger)
}

func (m *Monitor) journal(ctx context.Context, srv config.Server, run history.Run, events []mods.ChangeEvent, logger *slog.Logger) {
	if !srv.History.Enabled {
		return
	}
	h, err := m.History(srv.DataDir)
	if err != nil {
		logger.Error("failed to open history", "error", err)
		return
	}
	if _, err := h.RecordRun(ctx, run, events); err != nil {
		logger.Error("failed to record run", "error", err)
	}
}

func (m *Monitor) enrichChangelogs(ctx context.Context, events []mods.ChangeEvent, logger *slog.Logger) {
	src := m.deps.Changelogs
	if src == nil {
		src = steam.NewChangelogScraper()
	}
	for i := range events {
		e := &events[i]
		if e.Kind != mods.KindNew && e.Kind != mods.KindUpdated {
			continue
		}
		text, err := src.Latest(ctx, e.WorkshopID)
		if err != nil {
			logger.Warn("changelog page unavailable, using description", "workshop_id", e.WorkshopID, "error", err)
			continue
		}
		if text != "" {
			e.Changelog = text
		}
	}
}

func (m *Monitor) strategy(srv config.Server, opts RunOptions, logger *slog.Logger) mods.Strategy {
	if opts.Mode != "" {
		return opts.Mode
	}
	st, err := srv.Strategy()
	if err != nil {
		logger.Warn("invalid mod check mode, using serial", "error", err)
		return mods.StrategySerial
	}
	return st
}

func (m *Monitor) renderer(srv config.Server, logger *slog.Logger) report.Renderer {
	r, err := templates.NewRenderer(srv.Locale, srv.LocalesDir, logger)
	if err == nil {
		return r
	}
	logger.Warn("locale directory unusable, using built-in templates", "dir", srv.LocalesDir, "error", err)
	r, err = templates.NewRenderer(srv.Locale, "", logger)
	if err != nil {
		panic(err) // embedded locales are compiled in
	}
	return r
}

func (m *Monitor) querier(srv config.Server) Querier {
	if m.deps.Query != nil {
		return m.deps.Query
	}
	return query.New(srv.QueryTimeout(), m.logger)
}

func (m *Monitor) fetcher(srv config.Server) resolver.Fetcher {
	if m.deps.Fetcher != nil {
		return m.deps.Fetcher
	}
	return steam.New(steam.Config{
		APIKey:            srv.Steam.APIKey,
		RequestsPerSecond: srv.Steam.RequestsPerSecond,
	})
}

// sinks returns the plain sinks and the rich sink (nil when disabled).
func (m *Monitor) sinks(srv config.Server, opts RunOptions) ([]notify.Sink, notify.Sink) {
	var plain []notify.Sink
	if srv.Output.ToConsole {
		plain = append(plain, notify.NewConsole(m.deps.Stdout))
	}
	if opts.DryRun {
		return plain, nil
	}
	if srv.Output.ToFile && srv.Output.FilePath != "" {
		plain = append(plain, notify.NewFile(srv.Output.FilePath))
	}

	if !srv.Output.ToDiscord || !srv.Discord.Enabled {
		return plain, nil
	}
	dopts := []notify.DiscordOption{notify.WithLogger(m.logger)}
	if m.deps.HTTPClient != nil {
		dopts = append(dopts, notify.WithHTTPClient(m.deps.HTTPClient))
	}
	return plain, notify.NewDiscord(srv.Discord.WebhookURL, dopts...)
}

func reportOptions(srv config.Server) report.Options {
	return report.Options{
		ShowIsland:        srv.Output.ShowIsland,
		ShowPlatform:      srv.Output.ShowPlatform,
		ShowDedicated:     srv.Output.ShowDedicated,
		ShowModCount:      srv.Output.ShowModCount,
		ShowNextReboot:    srv.Output.ShowNextReboot,
		ShowChangelog:     srv.Mods.ShowModChangelog,
		MaxChangelogLines: srv.Mods.MaxChangelogLines,
		ShowLinks:         srv.Mods.ShowModLinks,
		ReportLimit:       srv.Mods.ReportLimit,
	}
}
