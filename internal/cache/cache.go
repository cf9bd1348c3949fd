// Package cache persists resolved codebases as flat snapshot files.
package cache

import (
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/BrunoV21/CodeTide/internal/loader"
	"github.com/BrunoV21/CodeTide/internal/model"
)

// SnapshotVersion is bumped whenever the snapshot layout changes.
const SnapshotVersion = 1

const (
	snapshotFile = "codebase.gob"
	elementsFile = "cached_elements.json"
	idsFile      = "cached_ids.json"
)

var (
	ErrNoSnapshot      = errors.New("no snapshot")
	ErrSnapshotCorrupt = errors.New("snapshot corrupt")
	ErrSnapshotStale   = errors.New("snapshot stale")
	// ErrSnapshotUnreadable covers a snapshot file that exists but cannot
	// be opened.
	ErrSnapshotUnreadable = errors.New("snapshot unreadable")
)

// Snapshot is everything needed to restore a resolved codebase.
type Snapshot struct {
	Version      int
	ID           string
	Root         string
	CreatedAt    time.Time
	Files        []*model.FileModel
	Fingerprints map[string]loader.Fingerprint
	Failures     map[string]string
}

// ElementsSidecar is the JSON file of rendered element text.
type ElementsSidecar struct {
	SnapshotID string            `json:"snapshot_id"`
	Elements   map[string]string `json:"elements"`
}

// IDsSidecar is the JSON file listing every unique id.
type IDsSidecar struct {
	SnapshotID string   `json:"snapshot_id"`
	IDs        []string `json:"ids"`
}

// Store reads and writes snapshots under one directory. A single writer
// is assumed.
type Store struct {
	Dir string
}

// NewStore creates a store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{Dir: dir}
}

func (s *Store) path(name string) string { return filepath.Join(s.Dir, name) }

// Save writes snap atomically, assigning it a fresh id and the current
// version.
func (s *Store) Save(snap *Snapshot) error {
	snap.Version = SnapshotVersion
	snap.ID = uuid.NewString()
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now().UTC()
	}
	return s.writeAtomic(snapshotFile, func(w io.Writer) error {
		if err := gob.NewEncoder(w).Encode(snap); err != nil {
			return fmt.Errorf("encode snapshot: %w", err)
		}
		return nil
	})
}

// Load reads the snapshot for root. A missing file yields ErrNoSnapshot, one
// that cannot be opened ErrSnapshotUnreadable, an undecodable one
// ErrSnapshotCorrupt, and another version or root ErrSnapshotStale.
func (s *Store) Load(root string) (*Snapshot, error) {
	f, err := os.Open(s.path(snapshotFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshotUnreadable, err)
	}
	defer f.Close()

	var snap Snapshot
	if err := gob.NewDecoder(f).Decode(&snap); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshotCorrupt, err)
	}
	if snap.Version != SnapshotVersion {
		return nil, fmt.Errorf("%w: version %d, want %d", ErrSnapshotStale, snap.Version, SnapshotVersion)
	}
	if snap.Root != root {
		return nil, fmt.Errorf("%w: snapshot root %q, want %q", ErrSnapshotStale, snap.Root, root)
	}
	return &snap, nil
}

// SaveElements writes the rendered-element sidecar for snapshotID.
func (s *Store) SaveElements(snapshotID string, elements map[string]string) error {
	return s.writeJSON(elementsFile, ElementsSidecar{SnapshotID: snapshotID, Elements: elements})
}

// LoadElements reads the rendered-element sidecar.
func (s *Store) LoadElements() (*ElementsSidecar, error) {
	var side ElementsSidecar
	if err := s.readJSON(elementsFile, &side); err != nil {
		return nil, err
	}
	return &side, nil
}

// SaveIDs writes the id sidecar for snapshotID.
func (s *Store) SaveIDs(snapshotID string, ids []string) error {
	return s.writeJSON(idsFile, IDsSidecar{SnapshotID: snapshotID, IDs: ids})
}

// LoadIDs reads the id sidecar.
func (s *Store) LoadIDs() (*IDsSidecar, error) {
	var side IDsSidecar
	if err := s.readJSON(idsFile, &side); err != nil {
		return nil, err
	}
	return &side, nil
}

// Exists reports whether a snapshot file is present.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path(snapshotFile))
	return err == nil
}

// Delete removes the snapshot and its sidecars.
func (s *Store) Delete() error {
	for _, name := range []string{snapshotFile, elementsFile, idsFile} {
		if err := os.Remove(s.path(name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", name, err)
		}
	}
	return nil
}

func (s *Store) writeJSON(name string, v any) error {
	return s.writeAtomic(name, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encode %s: %w", name, err)
		}
		return nil
	})
}

func (s *Store) readJSON(name string, v any) error {
	data, err := os.ReadFile(s.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNoSnapshot
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSnapshotUnreadable, name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSnapshotCorrupt, name, err)
	}
	return nil
}

// writeAtomic writes name through a temp file in the same directory,
// syncing it before renaming it into place.
func (s *Store) writeAtomic(name string, write func(io.Writer) error) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(s.Dir, "."+name+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), s.path(name)); err != nil {
		return fmt.Errorf("rename %s: %w", name, err)
	}
	return nil
}
