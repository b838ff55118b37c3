// Package notify delivers finished report strings to output sinks.
package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Sink delivers one message.
type Sink interface {
	Name() string
	Send(ctx context.Context, message string) error
}

// DispatchError records a sink that failed to deliver.
type DispatchError struct {
	Sink string
	Err  error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch to %s: %v", e.Sink, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// Dispatch sends message to every sink. A failing sink is logged and the
// rest are still attempted; the failures are returned for bookkeeping.
func Dispatch(ctx context.Context, logger *slog.Logger, message string, sinks ...Sink) []*DispatchError {
	if logger == nil {
		logger = slog.Default()
	}
	var failed []*DispatchError
	for _, s := range sinks {
		if err := s.Send(ctx, message); err != nil {
			de := &DispatchError{Sink: s.Name(), Err: err}
			logger.Error("failed to deliver summary", "sink", de.Sink, "error", err)
			failed = append(failed, de)
			continue
		}
		logger.Debug("summary delivered", "sink", s.Name())
	}
	return failed
}

// --- Console ---

// Console writes messages to a writer, normally stdout.
type Console struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsole creates a console sink. A nil writer means os.Stdout.
func NewConsole(w io.Writer) *Console {
	if w == nil {
		w = os.Stdout
	}
	return &Console{w: w}
}

func (c *Console) Name() string { return "console" }

func (c *Console) Send(_ context.Context, message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintln(c.w, message)
	return err
}

// --- File ---

// File appends messages to a file, creating it and its directory on demand.
type File struct {
	mu   sync.Mutex
	path string
}

// NewFile creates a file sink.
func NewFile(path string) *File { return &File{path: path} }

func (f *File) Name() string { return "file" }

// Path returns the output file path.
func (f *File) Path() string { return f.path }

func (f *File) Send(_ context.Context, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	fh, err := os.OpenFile(f.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening output file: %w", err)
	}
	if _, err := fmt.Fprintln(fh, message); err != nil {
		_ = fh.Close()
		return fmt.Errorf("writing output file: %w", err)
	}
	return fh.Close()
}
