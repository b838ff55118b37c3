// Package snapshot persists the last known mod set of each logical server.
//
// One JSON file per server maps workshop id to {name, workshop_id,
// time_updated}. Saves go through a temp file and a rename, and the
// previous file is kept as <file>.bak so a reader never observes a
// half-written snapshot.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/HendryAvila/modwatch/internal/mods"
)

const (
	// TrackingDir is the subdirectory under the data dir holding snapshots.
	TrackingDir = "tracking"
	// backupSuffix is appended to the snapshot path for the previous version.
	backupSuffix = ".bak"
)

// Store defines the persistence interface for snapshots.
type Store interface {
	// Load never fails: missing or unreadable snapshots come back empty.
	Load(serverID string) mods.Snapshot
	Save(serverID string, snap mods.Snapshot) error
}

// FileStore implements Store on the local filesystem.
type FileStore struct {
	dataDir string
	logger  *slog.Logger
}

// NewFileStore creates a filesystem-backed snapshot store rooted at dataDir.
func NewFileStore(dataDir string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{dataDir: dataDir, logger: logger}
}

// Path returns the snapshot file for a server id.
func (fs *FileStore) Path(serverID string) string {
	return filepath.Join(fs.dataDir, TrackingDir, serverID+"_mods.json")
}

// Load reads the snapshot for serverID. A corrupt primary file falls back
// to the backup copy; if that is unusable too the result is empty.
func (fs *FileStore) Load(serverID string) mods.Snapshot {
	path := fs.Path(serverID)

	snap, err := readSnapshot(path)
	if err == nil {
		return snap
	}
	if errors.Is(err, os.ErrNotExist) {
		fs.logger.Info("no previous snapshot", "server", serverID)
		return mods.Snapshot{}
	}
	fs.logger.Warn("snapshot unreadable, trying backup", "server", serverID, "path", path, "error", err)

	snap, bakErr := readSnapshot(path + backupSuffix)
	if bakErr != nil {
		fs.logger.Warn("snapshot backup unusable, starting empty", "server", serverID, "error", bakErr)
		return mods.Snapshot{}
	}
	fs.logger.Warn("restored snapshot from backup", "server", serverID, "mods", len(snap))
	return snap
}

// Save replaces the snapshot for serverID wholesale. Entries without a
// WorkshopID are written with their map key, so Load returns what was saved
// with that field filled in.
func (fs *FileStore) Save(serverID string, snap mods.Snapshot) error {
	snap = withKeyedIDs(snap)
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}

	path := fs.Path(serverID)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating tracking directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp snapshot: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing temp snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("syncing temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp snapshot: %w", err)
	}

	// Only a readable snapshot replaces the backup, so a corrupt file never
	// overwrites the last good copy.
	if _, err := readSnapshot(path); err == nil {
		if err := copyFile(path, path+backupSuffix); err != nil {
			fs.logger.Warn("could not back up previous snapshot", "server", serverID, "error", err)
		}
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("replacing snapshot: %w", err)
	}
	fs.logger.Debug("saved snapshot", "server", serverID, "mods", len(snap))
	return nil
}

// readSnapshot parses one snapshot file. Empty files are an error so the
// caller can fall back to the backup.
func readSnapshot(path string) (mods.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("snapshot %s is empty", path)
	}

	var snap mods.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parsing snapshot %s: %w", path, err)
	}
	return withKeyedIDs(snap), nil
}

// withKeyedIDs returns a copy of snap where every entry missing a
// WorkshopID carries its map key.
func withKeyedIDs(snap mods.Snapshot) mods.Snapshot {
	out := make(mods.Snapshot, len(snap))
	for id, e := range snap {
		if e.WorkshopID == "" {
			e.WorkshopID = id
		}
		out[id] = e
	}
	return out
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
