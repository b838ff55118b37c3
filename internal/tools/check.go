package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/modwatch/internal/config"
	"github.com/HendryAvila/modwatch/internal/history"
	"github.com/HendryAvila/modwatch/internal/mods"
	"github.com/HendryAvila/modwatch/internal/monitor"
)

// Checker runs one server check.
type Checker interface {
	Check(ctx context.Context, srv config.Server, opts monitor.RunOptions) monitor.Report
}

// CheckTool handles the modwatch_check MCP tool.
type CheckTool struct {
	catalog Catalog
	checker Checker
}

// NewCheckTool creates a CheckTool.
func NewCheckTool(catalog Catalog, checker Checker) *CheckTool {
	return &CheckTool{catalog: catalog, checker: checker}
}

// Definition returns the MCP tool definition for registration.
func (t *CheckTool) Definition() mcp.Tool {
	return mcp.NewTool("modwatch_check",
		mcp.WithDescription(
			"Query a configured DayZ server, compare its mods with the last snapshot "+
				"and return the change summary. Dry run (the default) prints only and "+
				"persists nothing, so the next scheduled run still reports the same changes.",
		),
		mcp.WithString("server",
			mcp.Description("Server id, name or config file. Optional when one server is configured."),
		),
		mcp.WithBoolean("dry_run",
			mcp.Description("Skip file and webhook output and persist nothing. Defaults to true."),
		),
		mcp.WithString("mode",
			mcp.Description("Resolver mode override: serial, threaded or async."),
			mcp.Enum("serial", "threaded", "async"),
		),
	)
}

// Handle processes the modwatch_check tool call.
func (t *CheckTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	srv, err := findServer(t.catalog, req.GetString("server", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	opts := monitor.RunOptions{DryRun: boolArg(req, "dry_run", true)}
	if m := req.GetString("mode", ""); m != "" {
		st, err := mods.ParseStrategy(m)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		opts.Mode = st
	}
	// Console output would corrupt the stdio transport.
	srv.Output.ToConsole = false

	rep := t.checker.Check(ctx, srv, opts)

	var b strings.Builder
	fmt.Fprintf(&b, "# Check: %s\n\n", rep.ServerName)
	fmt.Fprintf(&b, "**Status:** %s\n", rep.Status)
	if rep.Mode != "" {
		fmt.Fprintf(&b, "**Mode:** %s\n", rep.Mode)
	}
	fmt.Fprintf(&b, "**Dry run:** %t\n", opts.DryRun)
	if rep.Status == history.StatusSkipped {
		b.WriteString("\nMod checking is disabled for this server.\n")
		return mcp.NewToolResultText(b.String()), nil
	}
	if rep.Status == history.StatusOK {
		fmt.Fprintf(&b, "**Changes:** %d added, %d updated, %d removed\n",
			len(rep.Result.Added), len(rep.Result.Updated), len(rep.Result.Removed))
		if len(rep.Dropped) > 0 {
			fmt.Fprintf(&b, "**Dropped:** %d mods could not be resolved\n", len(rep.Dropped))
		}
	}
	fmt.Fprintf(&b, "\n```\n%s\n```\n", rep.Plain)

	if rep.Status != history.StatusOK {
		return mcp.NewToolResultError(b.String()), nil
	}
	return mcp.NewToolResultText(b.String()), nil
}
