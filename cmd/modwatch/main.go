// modwatch: DayZ server mod-change monitor.
//
// Each check queries the configured game servers for their active mods,
// looks the mods up on the Steam Workshop, compares them with the last
// run and reports new, updated and removed mods to the console, a file
// and a Discord webhook. Run it from cron or a systemd timer.
//
// Usage:
//
//	modwatch check [--config DIR|FILE] [--dry-run] [--mode serial|threaded|async] [--server ID]
//	modwatch serve [--config DIR|FILE]    # MCP server (stdio transport)
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"

	"github.com/HendryAvila/modwatch/internal/config"
	"github.com/HendryAvila/modwatch/internal/logging"
	"github.com/HendryAvila/modwatch/internal/metrics"
	"github.com/HendryAvila/modwatch/internal/mods"
	"github.com/HendryAvila/modwatch/internal/monitor"
	mwserver "github.com/HendryAvila/modwatch/internal/server"
)

const defaultConfigPath = "config"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes one command and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return 1
	}

	switch args[0] {
	case "check":
		return runCheck(ctx, args[1:], stdout, stderr)
	case "serve":
		return runServe(ctx, args[1:], stderr)
	case "--help", "-h", "help":
		printUsage(stdout)
		return 0
	case "--version", "-v", "version":
		fmt.Fprintf(stdout, "modwatch v%s\n", mwserver.Version)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n\n", args[0])
		printUsage(stderr)
		return 1
	}
}

type commonFlags struct {
	configPath string
	logLevel   string
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", defaultConfigPath, "config directory or single YAML file")
	fs.StringVar(&c.logLevel, "log-level", "", "override logging.level (DEBUG, INFO, WARNING, ERROR, CRITICAL)")
}

// load reads the configuration and builds the process logger from it.
// The returned closer flushes the log file.
func (c *commonFlags) load(stderr io.Writer) (*config.Set, *slog.Logger, io.Closer, error) {
	bootLevel := c.logLevel
	if _, err := logging.ParseLevel(bootLevel); err != nil {
		return nil, nil, nil, err
	}
	boot, _, _ := logging.Setup(logging.Options{Level: bootLevel, Stderr: stderr})

	set, err := config.Load(c.configPath, boot)
	if err != nil {
		return nil, nil, nil, err
	}

	lc := set.Global.Logging
	level := lc.Level
	if c.logLevel != "" {
		level = c.logLevel
	}
	maxBytes, err := config.ParseSize(lc.MaxBytes)
	if err != nil {
		return nil, nil, nil, &config.Error{File: c.configPath, Err: err}
	}
	logger, closer, err := logging.Setup(logging.Options{
		Level:       level,
		File:        lc.File,
		MaxBytes:    maxBytes,
		BackupCount: lc.BackupCount,
		Compress:    lc.Compress,
		Stderr:      stderr,
	})
	if err != nil {
		return nil, nil, nil, &config.Error{File: c.configPath, Err: err}
	}
	return set, logger, closer, nil
}

func runCheck(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		common   commonFlags
		dryRun   bool
		mode     string
		serverID string
	)
	common.register(fs)
	fs.BoolVar(&dryRun, "dry-run", false, "print only: no file or Discord output, nothing persisted")
	fs.StringVar(&mode, "mode", "", "force the resolver mode for every server (serial, threaded, async)")
	fs.StringVar(&serverID, "server", "", "check only this server (id, name or config file)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	opts := monitor.RunOptions{DryRun: dryRun}
	if mode != "" {
		st, err := mods.ParseStrategy(mode)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		opts.Mode = st
	}

	set, logger, closer, err := common.load(stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer func() { _ = closer.Close() }()

	servers := set.Servers
	if serverID != "" {
		srv, ok := set.Find(serverID)
		if !ok {
			logger.Error("no such server in configuration", "server", serverID)
			return 1
		}
		servers = []config.Server{srv}
	}
	opts.MetricsTextfile = set.Global.Metrics.Textfile

	mon := monitor.New(monitor.Deps{Stdout: stdout, Metrics: metrics.New()}, logger)
	defer func() {
		if err := mon.Close(); err != nil {
			logger.Warn("closing history", "error", err)
		}
	}()

	reports := mon.RunAll(ctx, servers, opts)
	failed := 0
	for _, r := range reports {
		if r.Err != nil {
			failed++
		}
	}
	logger.Info("run finished", "servers", len(reports), "failed", failed, "skipped_configs", len(set.Skipped))
	return 0
}

func runServe(ctx context.Context, args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var common commonFlags
	common.register(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	set, logger, closer, err := common.load(stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer func() { _ = closer.Close() }()

	mon := monitor.New(monitor.Deps{Stdout: io.Discard, Metrics: metrics.New()}, logger)
	defer func() { _ = mon.Close() }()

	s := mwserver.New(set, mon)
	stdio := server.NewStdioServer(s)
	logger.Info("serving MCP over stdio", "servers", len(set.Servers))
	if err := stdio.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("mcp server stopped", "error", err)
		return 1
	}
	return 0
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, `modwatch v%s: DayZ server mod-change monitor

Usage:
  modwatch check [flags]   Check every configured server once
  modwatch serve [flags]   Start the MCP server (stdio transport)
  modwatch version         Print the version

Check flags:
  --config PATH      Config directory or single YAML file (default %q)
  --dry-run          Console output only; persist nothing
  --mode MODE        Force serial, threaded or async metadata fetching
  --server ID        Check only one server
  --log-level LEVEL  DEBUG, INFO, WARNING, ERROR or CRITICAL

Exit status is 0 once configuration loads, even if a server could not be
queried; 1 when no configuration could be loaded.
`, mwserver.Version, defaultConfigPath)
}
