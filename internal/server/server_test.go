package server

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/HendryAvila/modwatch/internal/config"
	"github.com/HendryAvila/modwatch/internal/monitor"
)

func TestNew_RegistersEverything(t *testing.T) {
	srv := config.Default()
	srv.ServerName = "alpha"
	srv.DataDir = t.TempDir()
	set := &config.Set{Servers: []config.Server{srv}}
	mon := monitor.New(monitor.Deps{}, nil)
	defer mon.Close()

	s := New(set, mon)

	msg, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/list",
	})
	if err != nil {
		t.Fatal(err)
	}
	resp := s.HandleMessage(context.Background(), msg)
	raw, err := json.Marshal(resp)
	if err != nil {
		t.Fatal(err)
	}
	var list struct {
		Result struct {
			Tools []struct {
				Name string `json:"name"`
			} `json:"tools"`
		} `json:"result"`
	}
	if err := json.Unmarshal(raw, &list); err != nil {
		t.Fatalf("decoding %s: %v", raw, err)
	}

	want := map[string]bool{
		"modwatch_check":       false,
		"modwatch_snapshot":    false,
		"modwatch_history":     false,
		"modwatch_performance": false,
	}
	for _, tool := range list.Result.Tools {
		if _, ok := want[tool.Name]; ok {
			want[tool.Name] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("tool %s not registered", name)
		}
	}
}
