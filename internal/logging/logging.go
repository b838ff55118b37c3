// Package logging builds the process logger: slog text output on stderr
// and, optionally, a size-rotated log file.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// LevelCritical sits above slog.LevelError for the CRITICAL config level.
const LevelCritical = slog.Level(12)

// Options configure Setup.
type Options struct {
	Level       string
	File        string
	MaxBytes    int64
	BackupCount int
	Compress    bool
	// Stderr defaults to os.Stderr.
	Stderr io.Writer
}

// ParseLevel accepts DEBUG, INFO, WARNING (or WARN), ERROR and CRITICAL in
// any case. Empty means INFO.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "", "INFO":
		return slog.LevelInfo, nil
	case "WARNING", "WARN":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	case "CRITICAL":
		return LevelCritical, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level: %s", s)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Setup returns a logger per opts and a closer for the log file.
func Setup(opts Options) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}

	var w io.Writer = opts.Stderr
	if w == nil {
		w = os.Stderr
	}
	var closer io.Closer = nopCloser{}

	if opts.File != "" {
		rw, err := NewRotatingWriter(opts.File, opts.MaxBytes, opts.BackupCount, opts.Compress)
		if err != nil {
			return nil, nil, err
		}
		w = io.MultiWriter(w, rw)
		closer = rw
	}

	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				if l, ok := a.Value.Any().(slog.Level); ok && l >= LevelCritical {
					a.Value = slog.StringValue("CRITICAL")
				}
			}
			return a
		},
	})
	return slog.New(handler), closer, nil
}
