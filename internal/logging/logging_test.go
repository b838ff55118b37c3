package logging

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// --- ParseLevel ---

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"Warning", slog.LevelWarn, false},
		{"warn", slog.LevelWarn, false},
		{"ERROR", slog.LevelError, false},
		{"critical", LevelCritical, false},
		{"verbose", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, %v", tt.in, got, err)
		}
	}
}

// --- Setup ---

func TestSetup_StderrAndFile(t *testing.T) {
	var stderr bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "modwatch.log")

	logger, closer, err := Setup(Options{Level: "warning", File: path, Stderr: &stderr})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("shown", "server", "alpha")
	logger.Log(context.Background(), LevelCritical, "on fire")
	if err := closer.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, out := range []string{stderr.String(), string(data)} {
		if strings.Contains(out, "hidden") {
			t.Errorf("info line should be filtered: %s", out)
		}
		if !strings.Contains(out, "server=alpha") {
			t.Errorf("missing warn line: %s", out)
		}
		if !strings.Contains(out, "level=CRITICAL") {
			t.Errorf("missing critical level name: %s", out)
		}
	}
}

func TestSetup_BadLevel(t *testing.T) {
	if _, _, err := Setup(Options{Level: "loud"}); err == nil {
		t.Fatal("expected error")
	}
}

// --- RotatingWriter ---

func fixedClock(t *testing.T) {
	t.Helper()
	orig := timeNow
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	n := 0
	timeNow = func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
	t.Cleanup(func() { timeNow = orig })
}

func TestRotatingWriter_RotatesAtLimit(t *testing.T) {
	fixedClock(t)
	path := filepath.Join(t.TempDir(), "app.log")
	w, err := NewRotatingWriter(path, 10, 0, false)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	for _, s := range []string{"12345", "67890", "abc"} {
		if _, err := w.Write([]byte(s)); err != nil {
			t.Fatal(err)
		}
	}

	backups, err := w.Backups()
	if err != nil {
		t.Fatal(err)
	}
	if len(backups) != 1 {
		t.Fatalf("backups = %v, want 1", backups)
	}
	old, _ := os.ReadFile(backups[0])
	cur, _ := os.ReadFile(path)
	if string(old) != "1234567890" || string(cur) != "abc" {
		t.Errorf("old=%q cur=%q", old, cur)
	}
}

func TestRotatingWriter_EmptyFileNotRotated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	w, err := NewRotatingWriter(path, 4, 0, false)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	if _, err := w.Write([]byte("much longer than four bytes")); err != nil {
		t.Fatal(err)
	}
	backups, _ := w.Backups()
	if len(backups) != 0 {
		t.Errorf("empty file was rotated: %v", backups)
	}
}

func TestRotatingWriter_BackupCountAndCompression(t *testing.T) {
	fixedClock(t)
	path := filepath.Join(t.TempDir(), "app.log")
	w, err := NewRotatingWriter(path, 5, 2, true)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	for i := 0; i < 5; i++ {
		if _, err := w.Write([]byte("line" + string(rune('a'+i)))); err != nil {
			t.Fatal(err)
		}
	}

	backups, _ := w.Backups()
	if len(backups) != 2 {
		t.Fatalf("backups = %v, want 2", backups)
	}
	for _, b := range backups {
		if !strings.HasSuffix(b, ".log.gz") {
			t.Errorf("backup %s not compressed", b)
		}
	}

	// Newest backup holds the fourth write.
	f, err := os.Open(backups[1])
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		t.Fatal(err)
	}
	data, _ := io.ReadAll(gz)
	if string(data) != "lined" {
		t.Errorf("newest backup = %q, want lined", data)
	}
}

func TestRotatingWriter_ReopenKeepsSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	if err := os.WriteFile(path, []byte("123456"), 0o644); err != nil {
		t.Fatal(err)
	}
	w, err := NewRotatingWriter(path, 8, 0, false)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	if _, err := w.Write([]byte("789")); err != nil {
		t.Fatal(err)
	}
	backups, _ := w.Backups()
	if len(backups) != 1 {
		t.Errorf("existing content should count toward the limit, backups = %v", backups)
	}
}
