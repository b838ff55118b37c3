package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/modwatch/internal/history"
	"github.com/HendryAvila/modwatch/internal/mods"
)

// Journals opens the history journal of a data dir.
type Journals interface {
	History(dataDir string) (*history.Store, error)
}

// HistoryTool handles the modwatch_history MCP tool.
type HistoryTool struct {
	catalog  Catalog
	journals Journals
}

// NewHistoryTool creates a HistoryTool.
func NewHistoryTool(catalog Catalog, journals Journals) *HistoryTool {
	return &HistoryTool{catalog: catalog, journals: journals}
}

// Definition returns the MCP tool definition for registration.
func (t *HistoryTool) Definition() mcp.Tool {
	return mcp.NewTool("modwatch_history",
		mcp.WithDescription("Show recent runs and the mod changes they detected, newest first."),
		mcp.WithString("server",
			mcp.Description("Server id, name or config file. Optional when one server is configured."),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum events to show (default 20)."),
		),
	)
}

// Handle processes the modwatch_history tool call.
func (t *HistoryTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	srv, err := findServer(t.catalog, req.GetString("server", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !srv.History.Enabled {
		return mcp.NewToolResultError(fmt.Sprintf("History is disabled for %s.", srv.ServerID())), nil
	}
	limit := limitArg(req)

	store, err := t.journals.History(srv.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening history: %w", err)
	}
	runs, err := store.RecentRuns(ctx, srv.ServerID(), 5)
	if err != nil {
		return nil, fmt.Errorf("loading runs: %w", err)
	}
	events, err := store.RecentEvents(ctx, srv.ServerID(), limit)
	if err != nil {
		return nil, fmt.Errorf("loading events: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# History: %s\n\n", srv.DisplayName())

	b.WriteString("## Recent runs\n\n")
	if len(runs) == 0 {
		b.WriteString("No runs recorded.\n")
	}
	for _, r := range runs {
		fmt.Fprintf(&b, "- %s: %s, %s mode, %d mods, %.2fs",
			humanize.Time(r.StartedAt), r.Status, r.Mode, r.ModCount, r.DurationSeconds)
		if r.Error != "" {
			fmt.Fprintf(&b, " (%s)", r.Error)
		}
		b.WriteString("\n")
	}

	b.WriteString("\n## Changes\n\n")
	if len(events) == 0 {
		b.WriteString("No changes recorded.\n")
	}
	for _, e := range events {
		fmt.Fprintf(&b, "- %s %s\n", humanize.Time(e.CreatedAt), describeEvent(e))
	}
	return mcp.NewToolResultText(b.String()), nil
}

func describeEvent(e history.Event) string {
	switch e.Kind {
	case mods.KindNew:
		return fmt.Sprintf("added %s (%s)", e.Title, e.WorkshopID)
	case mods.KindUpdated:
		return fmt.Sprintf("updated %s (%s)", e.Title, e.WorkshopID)
	case mods.KindRemoved:
		return fmt.Sprintf("removed %s (%s)", e.Title, e.WorkshopID)
	case mods.KindTooMany:
		return fmt.Sprintf("%d mods added or updated at once", e.Total)
	}
	return string(e.Kind)
}
