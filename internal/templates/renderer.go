// Package templates renders localized message lines.
//
// Templates live at <locale>/<category>/<name> inside a locales tree. The
// en_GB and de_DE trees are embedded; a directory on disk can replace them.
// Each file is a text/template whose placeholders are map keys, e.g.
// "New mod added: {{.title}}". Files using single-brace placeholders such
// as "{title}" are converted on load with a warning.
package templates

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"regexp"
	"sort"
	"strings"
	"sync"
	"text/template"

	"golang.org/x/text/language"
)

// DefaultLocale is used when the requested locale has no close match.
const DefaultLocale = "en_GB"

// Categories used by the report builder.
const (
	Output  = "output"
	Discord = "discord"
)

//go:embed locales
var embedded embed.FS

// Params are the values substituted into a template.
type Params map[string]any

// Renderer loads and caches templates for one locale. Safe for concurrent use.
type Renderer struct {
	fsys   fs.FS
	locale string
	logger *slog.Logger

	mu    sync.Mutex
	cache map[string]entry
}

type entry struct {
	tmpl *template.Template
	raw  string
}

// NewRenderer picks the closest available locale to the requested one.
// An empty dir uses the embedded locales.
func NewRenderer(locale, dir string, logger *slog.Logger) (*Renderer, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var fsys fs.FS
	if dir != "" {
		fsys = os.DirFS(dir)
	} else {
		sub, err := fs.Sub(embedded, "locales")
		if err != nil {
			return nil, fmt.Errorf("embedded locales: %w", err)
		}
		fsys = sub
	}

	available, err := Available(fsys)
	if err != nil {
		return nil, err
	}
	chosen := match(locale, available)
	if chosen != locale {
		logger.Info("using closest available locale", "requested", locale, "locale", chosen)
	}

	return &Renderer{
		fsys:   fsys,
		locale: chosen,
		logger: logger,
		cache:  map[string]entry{},
	}, nil
}

// Locale returns the locale the renderer resolved to.
func (r *Renderer) Locale() string { return r.locale }

// Available lists the locale directories in fsys, sorted.
func Available(fsys fs.FS) ([]string, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("reading locales: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	if len(out) == 0 {
		return nil, errors.New("no locales found")
	}
	sort.Strings(out)
	return out, nil
}

// match maps a config locale like "en_GB", "en-US" or "de" onto one of the
// available directory names.
func match(requested string, available []string) string {
	fallback := available[0]
	for _, a := range available {
		if a == DefaultLocale {
			fallback = a
		}
	}
	// The first tag is the matcher's default.
	names := []string{fallback}
	tags := []language.Tag{language.Make(toBCP47(fallback))}
	for _, a := range available {
		if a != fallback {
			names = append(names, a)
			tags = append(tags, language.Make(toBCP47(a)))
		}
	}

	if requested == "" {
		return fallback
	}
	for _, n := range names {
		if n == requested {
			return n
		}
	}
	_, idx, conf := language.NewMatcher(tags).Match(language.Make(toBCP47(requested)))
	if conf == language.No {
		return fallback
	}
	return names[idx]
}

func toBCP47(s string) string { return strings.ReplaceAll(s, "_", "-") }

// Render executes category/name with params. It never fails: a missing
// file yields a visible placeholder and a missing parameter yields the raw
// template text, both with a logged warning.
func (r *Renderer) Render(category, name string, params Params) string {
	tmpl, raw, err := r.load(category, name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			r.logger.Warn("missing template file", "locale", r.locale, "template", category+"/"+name)
			return fmt.Sprintf("[[ MISSING TEMPLATE: %s/%s ]]", category, name)
		}
		r.logger.Error("failed to load template", "template", category+"/"+name, "error", err)
		return fmt.Sprintf("[[ ERROR LOADING TEMPLATE: %s/%s ]]", category, name)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, params); err != nil {
		r.logger.Warn("missing template placeholder", "template", category+"/"+name, "error", err)
		return raw
	}
	return buf.String()
}

// reSingleBrace matches a "{name}" placeholder.
var reSingleBrace = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

func (r *Renderer) load(category, name string) (*template.Template, string, error) {
	key := path.Join(r.locale, category, name)

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.cache[key]; ok {
		return e.tmpl, e.raw, nil
	}

	data, err := fs.ReadFile(r.fsys, key)
	if err != nil {
		return nil, "", err
	}
	raw := strings.TrimSpace(string(data))
	if !strings.Contains(raw, "{{") && reSingleBrace.MatchString(raw) {
		r.logger.Warn("template uses single-brace placeholders, converting", "template", key)
		raw = reSingleBrace.ReplaceAllString(raw, "{{.${1}}}")
	}
	t, err := template.New(key).Option("missingkey=error").Parse(raw)
	if err != nil {
		return nil, raw, err
	}
	r.cache[key] = entry{tmpl: t, raw: raw}
	return t, raw, nil
}
