package resources

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/modwatch/internal/config"
)

func TestHandleServers(t *testing.T) {
	srv := config.Default()
	srv.ServerName = "My Server"
	srv.File = "main.yaml"
	srv.Endpoint.IP = "10.0.0.1"
	srv.Endpoint.Port = 2303
	srv.Steam.APIKey = "secret-key"
	srv.Discord.WebhookURL = "https://discord.example/hook"
	srv.Reboot = &config.Reboot{BaseTime: "06:00", IntervalMinutes: 240}

	h := NewHandler(&config.Set{Servers: []config.Server{srv}})
	if h.ServersResource().URI != ServersURI {
		t.Errorf("uri = %q", h.ServersResource().URI)
	}

	req := mcp.ReadResourceRequest{}
	req.Params.URI = ServersURI
	contents, err := h.HandleServers(context.Background(), req)
	if err != nil {
		t.Fatalf("HandleServers: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("contents = %d, want 1", len(contents))
	}
	text := contents[0].(mcp.TextResourceContents).Text

	if strings.Contains(text, "secret-key") || strings.Contains(text, "discord.example") {
		t.Error("secrets must not be exposed")
	}

	var views []map[string]any
	if err := json.Unmarshal([]byte(text), &views); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(views) != 1 {
		t.Fatalf("views = %d, want 1", len(views))
	}
	v := views[0]
	if v["server_id"] != "my_server" || v["address"] != "10.0.0.1:2303" || v["reboot_base_time"] != "06:00" {
		t.Errorf("unexpected view: %v", v)
	}
}

func TestHandleServers_Empty(t *testing.T) {
	h := NewHandler(&config.Set{})
	req := mcp.ReadResourceRequest{}
	req.Params.URI = ServersURI
	contents, err := h.HandleServers(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if got := contents[0].(mcp.TextResourceContents).Text; got != "[]" {
		t.Errorf("empty list = %q, want []", got)
	}
}
