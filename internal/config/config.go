// Package config loads the per-server configuration.
//
// A config directory holds config.defaults.yaml, config.required.yaml,
// monitor.yaml and one YAML file per logical server. Each server's
// effective configuration is defaults <- monitor <- server file, merged
// key by key, with secrets from /run/secrets or the environment on top.
package config

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/HendryAvila/modwatch/internal/mods"
)

// ErrConfig is matched by every configuration error.
var ErrConfig = errors.New("config error")

// Error is a configuration problem in one file.
type Error struct {
	File string
	Err  error
}

func (e *Error) Error() string {
	if e.File == "" {
		return fmt.Sprintf("config: %v", e.Err)
	}
	return fmt.Sprintf("config %s: %v", e.File, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrConfig) match any *Error.
func (e *Error) Is(target error) bool { return target == ErrConfig }

// Server is the effective configuration of one logical server.
type Server struct {
	// File is the config file the server came from.
	File string `yaml:"-"`

	ServerName string `yaml:"server_name"`
	Locale     string `yaml:"locale"`
	LocalesDir string `yaml:"locales_dir"`
	DataDir    string `yaml:"data_dir"`

	Output       Output       `yaml:"output"`
	Mods         Mods         `yaml:"mods"`
	ThreadedMode ThreadedMode `yaml:"threaded_mode"`
	AsyncMode    AsyncMode    `yaml:"async_mode"`
	Steam        Steam        `yaml:"steam"`
	Discord      Discord      `yaml:"discord"`
	Endpoint     Endpoint     `yaml:"server"`
	Reboot       *Reboot      `yaml:"reboot"`
	Logging      Logging      `yaml:"logging"`
	History      History      `yaml:"history"`
	Metrics      Metrics      `yaml:"metrics"`
}

type Output struct {
	ToConsole         bool   `yaml:"to_console"`
	ToFile            bool   `yaml:"to_file"`
	ToDiscord         bool   `yaml:"to_discord"`
	FilePath          string `yaml:"file_path"`
	ShowRemovedMods   bool   `yaml:"show_removed_mods"`
	SilentOnNoChanges bool   `yaml:"silent_on_no_changes"`
	ShowIsland        bool   `yaml:"show_island"`
	ShowPlatform      bool   `yaml:"show_platform"`
	ShowDedicated     bool   `yaml:"show_dedicated"`
	ShowModCount      bool   `yaml:"show_mod_count"`
	ShowNextReboot    bool   `yaml:"show_next_reboot"`
}

// Changelog sources.
const (
	ChangelogFromDescription = "description"
	ChangelogFromPage        = "changelog_page"
)

type Mods struct {
	ModCheckingEnabled bool   `yaml:"mod_checking_enabled"`
	ModCheckMode       string `yaml:"mod_check_mode"`
	ShowModChangelog   bool   `yaml:"show_mod_changelog"`
	MaxChangelogLines  int    `yaml:"max_changelog_lines"`
	ShowModLinks       bool   `yaml:"show_mod_links"`
	ReportLimit        int    `yaml:"report_limit"`
	ChangelogSource    string `yaml:"changelog_source"`
}

type ThreadedMode struct {
	MaxWorkers int `yaml:"max_workers"`
}

type AsyncMode struct {
	MaxInFlight    int     `yaml:"max_in_flight"`
	TimeoutSeconds float64 `yaml:"timeout"`
}

type Steam struct {
	APIKey            string  `yaml:"api_key"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

type Discord struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// Endpoint is the game server's query address.
type Endpoint struct {
	IP                  string  `yaml:"ip"`
	Port                int     `yaml:"port"`
	QueryTimeoutSeconds float64 `yaml:"query_timeout"`
}

type Reboot struct {
	BaseTime        string `yaml:"base_time"`
	IntervalMinutes int    `yaml:"interval_minutes"`
}

type Logging struct {
	Level       string `yaml:"level"`
	File        string `yaml:"file"`
	MaxBytes    string `yaml:"max_bytes"`
	BackupCount int    `yaml:"backup_count"`
	Compress    bool   `yaml:"compress"`
}

type History struct {
	Enabled bool `yaml:"enabled"`
}

type Metrics struct {
	Textfile string `yaml:"textfile"`
}

// Default returns the built-in defaults every file is layered over.
func Default() Server {
	return Server{
		Locale:  "en_GB",
		DataDir: "data",
		Output: Output{
			ToConsole:       true,
			FilePath:        "output/summary.txt",
			ShowRemovedMods: true,
			ShowIsland:      true,
			ShowNextReboot:  true,
		},
		Mods: Mods{
			ModCheckingEnabled: true,
			ModCheckMode:       "serial",
			ShowModChangelog:   true,
			MaxChangelogLines:  10,
			ReportLimit:        10,
			ChangelogSource:    ChangelogFromDescription,
		},
		ThreadedMode: ThreadedMode{MaxWorkers: 10},
		AsyncMode:    AsyncMode{MaxInFlight: 10, TimeoutSeconds: 10},
		Steam:        Steam{RequestsPerSecond: 10},
		Endpoint:     Endpoint{QueryTimeoutSeconds: 5},
		Logging: Logging{
			Level:       "INFO",
			MaxBytes:    "50M",
			BackupCount: 10,
			Compress:    true,
		},
		History: History{Enabled: true},
	}
}

var reUnsafeID = regexp.MustCompile(`[^a-z0-9_-]+`)

// ServerID is the filesystem-safe identity of the logical server: the
// server name (or config file stem) lower-cased, with every run of other
// characters replaced by an underscore.
func (s *Server) ServerID() string {
	name := strings.TrimSpace(s.ServerName)
	if name == "" {
		name = strings.TrimSuffix(strings.TrimSuffix(s.File, ".yaml"), ".yml")
	}
	id := strings.Trim(reUnsafeID.ReplaceAllString(strings.ToLower(name), "_"), "_")
	if id == "" {
		return "server"
	}
	return id
}

// DisplayName is the name shown in report headers.
func (s *Server) DisplayName() string {
	if s.ServerName != "" {
		return s.ServerName
	}
	return strings.TrimSuffix(strings.TrimSuffix(s.File, ".yaml"), ".yml")
}

// Strategy returns the resolver strategy named by mods.mod_check_mode.
func (s *Server) Strategy() (mods.Strategy, error) {
	return mods.ParseStrategy(s.Mods.ModCheckMode)
}

// QueryTimeout is the server query timeout.
func (s *Server) QueryTimeout() time.Duration {
	return seconds(s.Endpoint.QueryTimeoutSeconds)
}

// AsyncTimeout is the cooperative resolver's batch deadline.
func (s *Server) AsyncTimeout() time.Duration {
	return seconds(s.AsyncMode.TimeoutSeconds)
}

func seconds(f float64) time.Duration { return time.Duration(f * float64(time.Second)) }

// RebootClock parses reboot.base_time. ok is false when no schedule is set.
func (s *Server) RebootClock() (hour, minute int, ok bool, err error) {
	if s.Reboot == nil || s.Reboot.BaseTime == "" {
		return 0, 0, false, nil
	}
	t, err := time.Parse("15:04", s.Reboot.BaseTime)
	if err != nil {
		return 0, 0, false, fmt.Errorf("reboot.base_time %q: want HH:MM", s.Reboot.BaseTime)
	}
	return t.Hour(), t.Minute(), true, nil
}

// Validate checks value ranges after merging.
func (s *Server) Validate() error {
	var errs []error
	if s.Endpoint.IP == "" {
		errs = append(errs, errors.New("server.ip is required"))
	}
	if s.Endpoint.Port <= 0 || s.Endpoint.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", s.Endpoint.Port))
	}
	if _, err := s.Strategy(); err != nil {
		errs = append(errs, err)
	}
	if s.Mods.ReportLimit < 0 {
		errs = append(errs, errors.New("mods.report_limit must be >= 0"))
	}
	if s.Mods.MaxChangelogLines < 0 {
		errs = append(errs, errors.New("mods.max_changelog_lines must be >= 0"))
	}
	switch s.Mods.ChangelogSource {
	case "", ChangelogFromDescription, ChangelogFromPage:
	default:
		errs = append(errs, fmt.Errorf("mods.changelog_source %q: use %s or %s", s.Mods.ChangelogSource, ChangelogFromDescription, ChangelogFromPage))
	}
	if _, _, _, err := s.RebootClock(); err != nil {
		errs = append(errs, err)
	}
	if s.Reboot != nil && s.Reboot.BaseTime != "" && s.Reboot.IntervalMinutes <= 0 {
		errs = append(errs, errors.New("reboot.interval_minutes must be > 0"))
	}
	if _, err := ParseSize(s.Logging.MaxBytes); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

var reShortSize = regexp.MustCompile(`^(?i)\s*(\d+)\s*([kmg])\s*$`)

// ParseSize reads a log size. Bare numbers are bytes; a single K, M or G
// suffix is binary (1024-based); anything else goes to go-humanize
// ("50 MB", "1GiB"). Empty means zero.
func ParseSize(s string) (int64, error) {
	orig := s
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	if m := reShortSize.FindStringSubmatch(s); m != nil {
		s = m[1] + strings.ToUpper(m[2]) + "iB"
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("logging.max_bytes %q: %w", orig, err)
	}
	return int64(n), nil
}
