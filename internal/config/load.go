package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DefaultsFile = "config.defaults.yaml"
	RequiredFile = "config.required.yaml"
	MonitorFile  = "monitor.yaml"
)

// SecretsDir holds docker-style secret files. Tests point it elsewhere.
var SecretsDir = "/run/secrets"

// getenv is a package-level var to allow test injection.
var getenv = os.Getenv

// secretOverlays maps a secret/env name to the dotted key it overrides.
var secretOverlays = []struct {
	name string
	key  string
}{
	{"STEAM_API_KEY", "steam.api_key"},
	{"DISCORD_WEBHOOK_URL", "discord.webhook_url"},
}

// Set is the result of loading a config path.
type Set struct {
	// Global is defaults <- monitor, used for process-wide settings such
	// as logging and metrics.
	Global Server
	// Servers are the valid per-server configurations, sorted by file.
	Servers []Server
	// Skipped holds one *Error per server file that failed validation.
	Skipped []error
}

// All returns the valid servers.
func (s *Set) All() []Server { return s.Servers }

// Find returns the server whose ServerID or file name matches key.
func (s *Set) Find(key string) (Server, bool) {
	for _, srv := range s.Servers {
		if srv.ServerID() == key || srv.File == key || srv.DisplayName() == key {
			return srv, true
		}
	}
	return Server{}, false
}

// Load reads a config directory or a single YAML file. It fails only when
// no server configuration can be loaded at all.
func Load(path string, logger *slog.Logger) (*Set, error) {
	if logger == nil {
		logger = slog.Default()
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, &Error{File: path, Err: err}
	}
	if !info.IsDir() {
		return loadFile(path)
	}
	return loadDir(path, logger)
}

func loadFile(path string) (*Set, error) {
	doc, err := readYAML(path)
	if err != nil {
		return nil, err
	}
	name := filepath.Base(path)
	applySecrets(doc)

	srv, err := decode(doc, name)
	if err == nil {
		err = validateMap(doc, nil)
	}
	if err == nil {
		err = srv.Validate()
	}
	if err != nil {
		return nil, &Error{File: name, Err: err}
	}
	return &Set{Global: srv, Servers: []Server{srv}}, nil
}

func loadDir(dir string, logger *slog.Logger) (*Set, error) {
	defaults, err := readYAML(filepath.Join(dir, DefaultsFile))
	if err != nil {
		return nil, err
	}
	requiredDoc, err := readYAML(filepath.Join(dir, RequiredFile))
	if err != nil {
		return nil, err
	}
	monitor, err := readYAML(filepath.Join(dir, MonitorFile))
	if err != nil {
		return nil, err
	}
	required := requiredKeys(requiredDoc)

	files, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, &Error{File: dir, Err: err}
	}
	sort.Strings(files)

	type layered struct {
		name string
		doc  map[string]any
	}
	var docs []layered
	for _, f := range files {
		name := filepath.Base(f)
		if name == DefaultsFile || name == RequiredFile || name == MonitorFile {
			continue
		}
		server, err := readYAML(f)
		if err != nil {
			return nil, err
		}
		merged := merge(merge(merge(map[string]any{}, defaults), monitor), server)
		merged["server"] = merge(merge(map[string]any{}, asMap(monitor["server"])), asMap(server["server"]))
		docs = append(docs, layered{name: name, doc: merged})
	}
	if len(docs) == 0 && len(monitor) > 0 {
		docs = append(docs, layered{name: MonitorFile, doc: merge(merge(map[string]any{}, defaults), monitor)})
	}
	if len(docs) == 0 {
		return nil, &Error{File: dir, Err: errors.New("no server configuration found")}
	}

	set := &Set{}
	global, err := decode(merge(merge(map[string]any{}, defaults), monitor), MonitorFile)
	if err != nil {
		return nil, &Error{File: MonitorFile, Err: err}
	}
	set.Global = global

	for _, d := range docs {
		applySecrets(d.doc)
		srv, err := decode(d.doc, d.name)
		if err == nil {
			err = validateMap(d.doc, required)
		}
		if err == nil {
			err = srv.Validate()
		}
		if err != nil {
			cerr := &Error{File: d.name, Err: err}
			logger.Error("skipping server configuration", "file", d.name, "error", err)
			set.Skipped = append(set.Skipped, cerr)
			continue
		}
		set.Servers = append(set.Servers, srv)
	}

	if len(set.Servers) == 0 {
		return nil, &Error{File: dir, Err: fmt.Errorf("no valid server configuration: %w", errors.Join(set.Skipped...))}
	}
	return set, nil
}

// readYAML returns an empty map for a missing or empty file.
func readYAML(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, &Error{File: filepath.Base(path), Err: err}
	}
	out := map[string]any{}
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, &Error{File: filepath.Base(path), Err: fmt.Errorf("parse: %w", err)}
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

// decode layers a merged document over Default().
func decode(doc map[string]any, file string) (Server, error) {
	srv := Default()
	data, err := yaml.Marshal(doc)
	if err != nil {
		return Server{}, fmt.Errorf("re-encode: %w", err)
	}
	if err := yaml.Unmarshal(data, &srv); err != nil {
		return Server{}, fmt.Errorf("decode: %w", err)
	}
	srv.File = file
	return srv, nil
}

// merge copies override into base recursively and returns base.
func merge(base, override map[string]any) map[string]any {
	for k, v := range override {
		if om, ok := v.(map[string]any); ok {
			if bm, ok := base[k].(map[string]any); ok {
				base[k] = merge(bm, om)
				continue
			}
			base[k] = merge(map[string]any{}, om)
			continue
		}
		base[k] = v
	}
	return base
}

func asMap(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

// applySecrets overlays secret files and environment variables:
// secret file > environment > config value.
func applySecrets(doc map[string]any) {
	for _, o := range secretOverlays {
		if v := secretOrEnv(o.name); v != "" {
			setNested(doc, o.key, v)
		}
	}
}

func secretOrEnv(name string) string {
	if data, err := os.ReadFile(filepath.Join(SecretsDir, name)); err == nil {
		if v := strings.TrimSpace(string(data)); v != "" {
			return v
		}
	}
	return strings.TrimSpace(getenv(name))
}

// requiredKey is one entry of config.required.yaml.
type requiredKey struct {
	key         string
	description string
}

func requiredKeys(doc map[string]any) []requiredKey {
	var out []requiredKey
	for k, v := range asMap(doc["required"]) {
		desc, _ := asMap(v)["description"].(string)
		out = append(out, requiredKey{key: k, description: desc})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key < out[j].key })
	return out
}

// validateMap rejects top-level ip/port and reports missing required keys.
func validateMap(doc map[string]any, required []requiredKey) error {
	var errs []error
	for _, forbidden := range []string{"ip", "port"} {
		if _, ok := doc[forbidden]; ok {
			errs = append(errs, fmt.Errorf("%q must be inside the 'server:' block, not top-level", forbidden))
		}
	}
	for _, r := range required {
		if getNested(doc, r.key) == nil {
			msg := "missing required config option: " + r.key
			if r.description != "" {
				msg += " (" + r.description + ")"
			}
			errs = append(errs, errors.New(msg))
		}
	}
	return errors.Join(errs...)
}

func getNested(doc map[string]any, dotted string) any {
	var cur any = doc
	for _, k := range strings.Split(dotted, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		if cur, ok = m[k]; !ok {
			return nil
		}
	}
	return cur
}

func setNested(doc map[string]any, dotted string, v any) {
	keys := strings.Split(dotted, ".")
	cur := doc
	for _, k := range keys[:len(keys)-1] {
		next, ok := cur[k].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[k] = next
		}
		cur = next
	}
	cur[keys[len(keys)-1]] = v
}
