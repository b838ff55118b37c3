package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/modwatch/internal/snapshot"
)

// SnapshotTool handles the modwatch_snapshot MCP tool.
type SnapshotTool struct {
	catalog Catalog
}

// NewSnapshotTool creates a SnapshotTool.
func NewSnapshotTool(catalog Catalog) *SnapshotTool {
	return &SnapshotTool{catalog: catalog}
}

// Definition returns the MCP tool definition for registration.
func (t *SnapshotTool) Definition() mcp.Tool {
	return mcp.NewTool("modwatch_snapshot",
		mcp.WithDescription("List the mods recorded by the last completed check of a server."),
		mcp.WithString("server",
			mcp.Description("Server id, name or config file. Optional when one server is configured."),
		),
	)
}

// Handle processes the modwatch_snapshot tool call.
func (t *SnapshotTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	srv, err := findServer(t.catalog, req.GetString("server", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	snap := snapshot.NewFileStore(srv.DataDir, nil).Load(srv.ServerID())
	if len(snap) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No snapshot recorded for %s yet.", srv.ServerID())), nil
	}

	ids := snap.IDs()
	sort.Slice(ids, func(i, j int) bool {
		a, b := snap[ids[i]], snap[ids[j]]
		if !strings.EqualFold(a.Name, b.Name) {
			return strings.ToLower(a.Name) < strings.ToLower(b.Name)
		}
		return ids[i] < ids[j]
	})

	var b strings.Builder
	fmt.Fprintf(&b, "# Snapshot: %s (%d mods)\n\n", srv.DisplayName(), len(snap))
	b.WriteString("| Mod | Workshop ID | Last update |\n")
	b.WriteString("|-----|-------------|-------------|\n")
	for _, id := range ids {
		e := snap[id]
		updated := "unknown"
		if e.TimeUpdated > 0 {
			updated = time.Unix(e.TimeUpdated, 0).UTC().Format("2006-01-02 15:04 UTC")
		}
		fmt.Fprintf(&b, "| %s | %s | %s |\n", e.Name, id, updated)
	}
	return mcp.NewToolResultText(b.String()), nil
}
