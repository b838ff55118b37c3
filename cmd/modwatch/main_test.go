package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// --- Command dispatch ---

func TestRun_Version(t *testing.T) {
	var out, errOut bytes.Buffer
	if code := run(context.Background(), []string{"version"}, &out, &errOut); code != 0 {
		t.Fatalf("exit = %d", code)
	}
	if !strings.HasPrefix(out.String(), "modwatch v") {
		t.Errorf("version output = %q", out.String())
	}
}

func TestRun_NoArgsAndUnknown(t *testing.T) {
	var out, errOut bytes.Buffer
	if code := run(context.Background(), nil, &out, &errOut); code != 1 {
		t.Errorf("no args exit = %d, want 1", code)
	}
	errOut.Reset()
	if code := run(context.Background(), []string{"frobnicate"}, &out, &errOut); code != 1 {
		t.Errorf("unknown exit = %d, want 1", code)
	}
	if !strings.Contains(errOut.String(), "Unknown command: frobnicate") {
		t.Errorf("stderr = %q", errOut.String())
	}
}

func TestRun_Help(t *testing.T) {
	var out, errOut bytes.Buffer
	if code := run(context.Background(), []string{"help"}, &out, &errOut); code != 0 {
		t.Fatalf("exit = %d", code)
	}
	if !strings.Contains(out.String(), "--dry-run") {
		t.Error("usage should document --dry-run")
	}
}

// --- check ---

func TestCheck_MissingConfigExitsOne(t *testing.T) {
	var out, errOut bytes.Buffer
	code := run(context.Background(), []string{"check", "--config", filepath.Join(t.TempDir(), "nope")}, &out, &errOut)
	if code != 1 {
		t.Errorf("exit = %d, want 1", code)
	}
}

func TestCheck_BadModeExitsTwo(t *testing.T) {
	var out, errOut bytes.Buffer
	if code := run(context.Background(), []string{"check", "--mode", "warp"}, &out, &errOut); code != 2 {
		t.Errorf("exit = %d, want 2", code)
	}
}

func TestCheck_UnreachableServerStillExitsZero(t *testing.T) {
	dir := t.TempDir()
	cfg := `server_name: local
data_dir: ` + filepath.Join(dir, "data") + `
server:
  ip: 127.0.0.1
  port: 1
  query_timeout: 0.2
history:
  enabled: false
`
	path := filepath.Join(dir, "server.yaml")
	if err := os.WriteFile(path, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}

	var out, errOut bytes.Buffer
	code := run(context.Background(), []string{"check", "--config", path, "--dry-run"}, &out, &errOut)
	if code != 0 {
		t.Fatalf("exit = %d, want 0; stderr:\n%s", code, errOut.String())
	}
	if !strings.Contains(out.String(), "Failed to query server") {
		t.Errorf("stdout should carry the query failure, got:\n%s", out.String())
	}
}

func TestCheck_UnknownServerExitsOne(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "server.yaml")
	if err := os.WriteFile(path, []byte("server:\n  ip: 127.0.0.1\n  port: 2303\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	var out, errOut bytes.Buffer
	if code := run(context.Background(), []string{"check", "--config", path, "--server", "other"}, &out, &errOut); code != 1 {
		t.Errorf("exit = %d, want 1", code)
	}
}
