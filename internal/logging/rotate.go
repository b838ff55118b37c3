package logging

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// timeNow is a package-level var so tests can control backup names.
var timeNow = time.Now

// RotatingWriter appends to a log file and moves it aside once it would
// grow past maxBytes. Rotated files are named <stem>-<timestamp><ext>,
// optionally gzipped, and only the newest backupCount are kept.
type RotatingWriter struct {
	path        string
	maxBytes    int64
	backupCount int
	compress    bool

	mu   sync.Mutex
	file *os.File
	size int64
}

// NewRotatingWriter opens path for appending. maxBytes <= 0 disables
// rotation; backupCount <= 0 keeps every backup.
func NewRotatingWriter(path string, maxBytes int64, backupCount int, compress bool) (*RotatingWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	w := &RotatingWriter{path: path, maxBytes: maxBytes, backupCount: backupCount, compress: compress}
	if err := w.open(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *RotatingWriter) open() error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("stat log file: %w", err)
	}
	w.file = f
	w.size = info.Size()
	return nil
}

// Write implements io.Writer.
func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		if err := w.open(); err != nil {
			return 0, err
		}
	}
	// An empty file is never rotated, even if one write exceeds the limit.
	if w.maxBytes > 0 && w.size > 0 && w.size+int64(len(p)) > w.maxBytes {
		if err := w.rotate(); err != nil {
			return 0, fmt.Errorf("rotate log: %w", err)
		}
	}
	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

func (w *RotatingWriter) stemExt() (dir, stem, ext string) {
	dir = filepath.Dir(w.path)
	base := filepath.Base(w.path)
	ext = filepath.Ext(base)
	return dir, strings.TrimSuffix(base, ext), ext
}

func (w *RotatingWriter) rotate() error {
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("close current log: %w", err)
	}
	w.file = nil

	dir, stem, ext := w.stemExt()
	stamp := timeNow().Format("20060102-150405.000")
	rotated := filepath.Join(dir, fmt.Sprintf("%s-%s%s", stem, stamp, ext))
	for i := 1; exists(rotated) || exists(rotated+".gz"); i++ {
		rotated = filepath.Join(dir, fmt.Sprintf("%s-%s.%d%s", stem, stamp, i, ext))
	}

	if err := os.Rename(w.path, rotated); err != nil {
		return fmt.Errorf("rename log file: %w", err)
	}
	if w.compress {
		if err := gzipFile(rotated); err != nil {
			return err
		}
	}
	if err := w.open(); err != nil {
		return err
	}
	w.prune()
	return nil
}

func exists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

// Backups lists rotated files, oldest first.
func (w *RotatingWriter) Backups() ([]string, error) {
	dir, stem, ext := w.stemExt()
	matches, err := filepath.Glob(filepath.Join(dir, stem+"-*"+ext+"*"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

func (w *RotatingWriter) prune() {
	if w.backupCount <= 0 {
		return
	}
	files, err := w.Backups()
	if err != nil {
		return
	}
	for i := 0; i < len(files)-w.backupCount; i++ {
		_ = os.Remove(files[i])
	}
}

func gzipFile(path string) error {
	in, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open rotated log: %w", err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(path + ".gz")
	if err != nil {
		return fmt.Errorf("create gzip: %w", err)
	}
	gz := gzip.NewWriter(out)
	gz.Name = filepath.Base(path)

	if _, err := io.Copy(gz, in); err != nil {
		_ = gz.Close()
		_ = out.Close()
		_ = os.Remove(path + ".gz")
		return fmt.Errorf("compress rotated log: %w", err)
	}
	if err := gz.Close(); err != nil {
		_ = out.Close()
		_ = os.Remove(path + ".gz")
		return fmt.Errorf("compress rotated log: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close gzip: %w", err)
	}
	return os.Remove(path)
}

// Close closes the current file.
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}
