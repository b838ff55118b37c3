package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/modwatch/internal/perf"
)

// PerformanceTool handles the modwatch_performance MCP tool.
type PerformanceTool struct {
	catalog Catalog
}

// NewPerformanceTool creates a PerformanceTool.
func NewPerformanceTool(catalog Catalog) *PerformanceTool {
	return &PerformanceTool{catalog: catalog}
}

// Definition returns the MCP tool definition for registration.
func (t *PerformanceTool) Definition() mcp.Tool {
	return mcp.NewTool("modwatch_performance",
		mcp.WithDescription("Show the duration of recent completed runs and their average."),
		mcp.WithString("server",
			mcp.Description("Server id, name or config file. Optional when one server is configured."),
		),
		mcp.WithNumber("limit",
			mcp.Description("Number of most recent runs to include (default 20)."),
		),
	)
}

// Handle processes the modwatch_performance tool call.
func (t *PerformanceTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	srv, err := findServer(t.catalog, req.GetString("server", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	limit := limitArg(req)

	records := perf.New(srv.DataDir, nil).Tail(srv.ServerID(), limit)
	if len(records) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No completed runs recorded for %s yet.", srv.ServerID())), nil
	}
	sum := perf.Summarize(records)

	var b strings.Builder
	fmt.Fprintf(&b, "# Performance: %s\n\n", srv.DisplayName())
	fmt.Fprintf(&b, "**Runs:** %d\n", sum.Runs)
	fmt.Fprintf(&b, "**Average:** %.2fs (min %.2fs, max %.2fs)\n\n", sum.AverageDuration, sum.MinDuration, sum.MaxDuration)
	b.WriteString("| When | Mode | Mods | Duration |\n")
	b.WriteString("|------|------|------|----------|\n")
	for i := len(records) - 1; i >= 0; i-- {
		r := records[i]
		fmt.Fprintf(&b, "| %s | %s | %d | %.2fs |\n", humanize.Time(r.Timestamp), r.Mode, r.ModCount, r.DurationSeconds)
	}
	return mcp.NewToolResultText(b.String()), nil
}
