package templates

import (
	"bytes"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestRenderer(t *testing.T, locale string) (*Renderer, *bytes.Buffer) {
	t.Helper()
	var logs bytes.Buffer
	r, err := NewRenderer(locale, "", slog.New(slog.NewTextHandler(&logs, nil)))
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	return r, &logs
}

// --- NewRenderer ---

func TestNewRenderer_Succeeds(t *testing.T) {
	r, _ := newTestRenderer(t, "en_GB")
	if r.Locale() != "en_GB" {
		t.Errorf("Locale() = %q, want en_GB", r.Locale())
	}
}

func TestNewRenderer_LocaleMatching(t *testing.T) {
	tests := []struct {
		requested string
		want      string
	}{
		{"en_GB", "en_GB"},
		{"", "en_GB"},
		{"en-US", "en_GB"},
		{"de", "de_DE"},
		{"de_AT", "de_DE"},
		{"ja_JP", "en_GB"},
	}
	for _, tt := range tests {
		t.Run(tt.requested, func(t *testing.T) {
			r, _ := newTestRenderer(t, tt.requested)
			if r.Locale() != tt.want {
				t.Errorf("Locale() = %q, want %q", r.Locale(), tt.want)
			}
		})
	}
}

func TestNewRenderer_EmptyDir(t *testing.T) {
	_, err := NewRenderer("en_GB", t.TempDir(), nil)
	if err == nil {
		t.Fatal("expected error for a directory without locales")
	}
}

// --- Render ---

func TestRender_Substitutes(t *testing.T) {
	r, _ := newTestRenderer(t, "en_GB")

	got := r.Render(Output, "mod_updated.txt", Params{"title": "CF", "timestamp": "2024-01-02 03:04:05"})
	if got != "🔄 Mod updated: CF (updated 2024-01-02 03:04:05)" {
		t.Errorf("Render = %q", got)
	}
}

func TestRender_Conditional(t *testing.T) {
	r, _ := newTestRenderer(t, "de_DE")

	if got := r.Render(Output, "server_dedicated.txt", Params{"dedicated": true}); got != "Dediziert: Ja" {
		t.Errorf("dedicated=true: %q", got)
	}
	if got := r.Render(Output, "server_dedicated.txt", Params{"dedicated": false}); got != "Dediziert: Nein" {
		t.Errorf("dedicated=false: %q", got)
	}
}

func TestRender_MissingFile(t *testing.T) {
	r, logs := newTestRenderer(t, "en_GB")

	got := r.Render(Output, "nope.txt", nil)
	if got != "[[ MISSING TEMPLATE: output/nope.txt ]]" {
		t.Errorf("Render = %q", got)
	}
	if !strings.Contains(logs.String(), "missing template file") {
		t.Errorf("expected warning, logs: %s", logs.String())
	}
}

func TestRender_MissingParamReturnsRaw(t *testing.T) {
	r, logs := newTestRenderer(t, "en_GB")

	got := r.Render(Output, "mod_new.txt", Params{"name": "wrong key"})
	if got != "🆕 New mod added: {{.title}}" {
		t.Errorf("Render = %q", got)
	}
	if !strings.Contains(logs.String(), "missing template placeholder") {
		t.Errorf("expected warning, logs: %s", logs.String())
	}
}

func TestRender_EveryLocaleHasSameFiles(t *testing.T) {
	sub, err := fs.Sub(embedded, "locales")
	if err != nil {
		t.Fatal(err)
	}
	files := func(locale string) map[string]bool {
		out := map[string]bool{}
		_ = fs.WalkDir(sub, locale, func(p string, d fs.DirEntry, err error) error {
			if err == nil && !d.IsDir() {
				out[strings.TrimPrefix(p, locale+"/")] = true
			}
			return nil
		})
		return out
	}
	en, de := files("en_GB"), files("de_DE")
	for f := range en {
		if !de[f] {
			t.Errorf("de_DE missing %s", f)
		}
	}
	if len(en) != len(de) {
		t.Errorf("en_GB has %d files, de_DE has %d", len(en), len(de))
	}
}

func TestRender_FromDirectory(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "fr_FR", "output")
	if err := os.MkdirAll(p, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(p, "mod_new.txt"), []byte("  Nouveau mod : {{.title}}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	r, err := NewRenderer("fr", dir, nil)
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	if got := r.Render(Output, "mod_new.txt", Params{"title": "CF"}); got != "Nouveau mod : CF" {
		t.Errorf("Render = %q", got)
	}
}

func TestRender_SingleBracePlaceholdersConverted(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "en_GB", "output")
	if err := os.MkdirAll(p, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(p, "mod_updated.txt"), []byte("Updated: {title} at {timestamp}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var logs bytes.Buffer
	r, err := NewRenderer("en_GB", dir, slog.New(slog.NewTextHandler(&logs, nil)))
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	got := r.Render(Output, "mod_updated.txt", Params{"title": "CF", "timestamp": "noon"})
	if got != "Updated: CF at noon" {
		t.Errorf("Render = %q", got)
	}
	if !strings.Contains(logs.String(), "single-brace placeholders") {
		t.Errorf("expected warning, logs: %s", logs.String())
	}
}

func TestRender_Cached(t *testing.T) {
	r, _ := newTestRenderer(t, "en_GB")
	a := r.Render(Output, "no_changes.txt", nil)
	b := r.Render(Output, "no_changes.txt", nil)
	if a != b || len(r.cache) != 1 {
		t.Errorf("expected one cached template, got %d", len(r.cache))
	}
}
