// Package server wires the MCP components and creates the server instance.
//
// This is the composition root: it receives the loaded configuration and
// the monitor and injects them into the tools, prompts and resources.
// No business logic lives here.
package server

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/HendryAvila/modwatch/internal/config"
	"github.com/HendryAvila/modwatch/internal/monitor"
	"github.com/HendryAvila/modwatch/internal/prompts"
	"github.com/HendryAvila/modwatch/internal/resources"
	"github.com/HendryAvila/modwatch/internal/tools"
)

// Version is set at build time via ldflags.
var Version = "dev"

// New creates the MCP server with all tools, prompts and resources
// registered. The caller owns mon and closes it on shutdown.
func New(set *config.Set, mon *monitor.Monitor) *server.MCPServer {
	s := server.NewMCPServer(
		"modwatch",
		Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithPromptCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	// --- Tools ---

	checkTool := tools.NewCheckTool(set, mon)
	s.AddTool(checkTool.Definition(), checkTool.Handle)

	snapshotTool := tools.NewSnapshotTool(set)
	s.AddTool(snapshotTool.Definition(), snapshotTool.Handle)

	historyTool := tools.NewHistoryTool(set, mon)
	s.AddTool(historyTool.Definition(), historyTool.Handle)

	performanceTool := tools.NewPerformanceTool(set)
	s.AddTool(performanceTool.Definition(), performanceTool.Handle)

	// --- Prompts ---

	statusPrompt := prompts.NewStatusPrompt()
	s.AddPrompt(statusPrompt.Definition(), statusPrompt.Handle)

	// --- Resources ---

	resourceHandler := resources.NewHandler(set)
	s.AddResource(resourceHandler.ServersResource(), resourceHandler.HandleServers)

	return s
}

// serverInstructions tells the host how to use the tools.
func serverInstructions() string {
	return `You have access to modwatch, a mod-change monitor for DayZ servers.

## Tools
- modwatch_check: query a server and report new, updated and removed mods
  against the last snapshot. dry_run defaults to true: nothing is written,
  no webhook is posted, and the next scheduled run still reports the same
  changes. Only pass dry_run=false when the user explicitly asks to record
  the run.
- modwatch_snapshot: list the mods recorded by the last completed check.
- modwatch_history: recent runs and the changes they detected.
- modwatch_performance: durations of recent runs and their average.

The "server" argument accepts a server id, name or config file name. Read
the modwatch://servers resource to see what is configured. It may be
omitted when only one server is configured.

## Reading results
- "Too many mod changes" means more mods changed than the report limit;
  individual mods are not listed for that run.
- A query failure means the game server did not answer on its query port.
  It is not a modwatch error; the snapshot is left untouched.`
}
