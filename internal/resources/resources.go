// Package resources implements MCP resource handlers.
//
// Resources provide read-only data that the host can consume for context.
// They use URI-based addressing (modwatch://...).
package resources

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/modwatch/internal/config"
)

// ServersURI addresses the list of configured servers.
const ServersURI = "modwatch://servers"

// Catalog lists the configured servers.
type Catalog interface {
	All() []config.Server
}

// Handler manages resource endpoints.
type Handler struct {
	catalog Catalog
}

// NewHandler creates a resource Handler with its dependencies.
func NewHandler(catalog Catalog) *Handler {
	return &Handler{catalog: catalog}
}

// serverView is the public view of a server config. Secrets are left out.
type serverView struct {
	ServerID   string `json:"server_id"`
	Name       string `json:"name"`
	File       string `json:"file,omitempty"`
	Address    string `json:"address"`
	Mode       string `json:"mode"`
	DataDir    string `json:"data_dir"`
	Locale     string `json:"locale"`
	Enabled    bool   `json:"mod_checking_enabled"`
	Discord    bool   `json:"discord"`
	History    bool   `json:"history"`
	NextReboot string `json:"reboot_base_time,omitempty"`
}

// ServersResource returns the MCP resource definition for the server list.
func (h *Handler) ServersResource() mcp.Resource {
	return mcp.NewResource(
		ServersURI,
		"Configured servers",
		mcp.WithResourceDescription("Servers modwatch checks, with their ids, addresses and resolver modes"),
		mcp.WithMIMEType("application/json"),
	)
}

// HandleServers returns the configured servers as JSON.
func (h *Handler) HandleServers(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	views := make([]serverView, 0, len(h.catalog.All()))
	for _, s := range h.catalog.All() {
		v := serverView{
			ServerID: s.ServerID(),
			Name:     s.DisplayName(),
			File:     s.File,
			Address:  fmt.Sprintf("%s:%d", s.Endpoint.IP, s.Endpoint.Port),
			Mode:     s.Mods.ModCheckMode,
			DataDir:  s.DataDir,
			Locale:   s.Locale,
			Enabled:  s.Mods.ModCheckingEnabled,
			Discord:  s.Output.ToDiscord && s.Discord.Enabled,
			History:  s.History.Enabled,
		}
		if s.Reboot != nil {
			v.NextReboot = s.Reboot.BaseTime
		}
		views = append(views, v)
	}

	data, err := json.MarshalIndent(views, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling servers: %w", err)
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
