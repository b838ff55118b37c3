// Package tools implements the MCP tool handlers of the modwatch server.
//
// Each file holds one tool. Tools receive their dependencies through
// their struct and depend on small interfaces, not on concrete stores.
package tools

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/modwatch/internal/config"
)

// Catalog is the set of configured servers.
type Catalog interface {
	Find(key string) (config.Server, bool)
	All() []config.Server
}

// defaultLimit applies to list tools when no limit is given.
const defaultLimit = 20

// findServer resolves the "server" argument. An empty key is allowed when
// exactly one server is configured.
func findServer(cat Catalog, key string) (config.Server, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		all := cat.All()
		if len(all) == 1 {
			return all[0], nil
		}
		return config.Server{}, fmt.Errorf("several servers are configured, pass one of: %s", serverIDs(cat))
	}
	srv, ok := cat.Find(key)
	if !ok {
		return config.Server{}, fmt.Errorf("unknown server %q, configured: %s", key, serverIDs(cat))
	}
	return srv, nil
}

func serverIDs(cat Catalog) string {
	var ids []string
	for _, s := range cat.All() {
		ids = append(ids, s.ServerID())
	}
	sort.Strings(ids)
	if len(ids) == 0 {
		return "(none)"
	}
	return strings.Join(ids, ", ")
}

// intArg reads a numeric argument. JSON numbers arrive as float64.
func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}

func boolArg(req mcp.CallToolRequest, key string, defaultVal bool) bool {
	v, ok := req.GetArguments()[key].(bool)
	if !ok {
		return defaultVal
	}
	return v
}

// limitArg reads "limit", clamped to 1..200.
func limitArg(req mcp.CallToolRequest) int {
	v := intArg(req, "limit", defaultLimit)
	if v <= 0 {
		return defaultLimit
	}
	return min(v, 200)
}
