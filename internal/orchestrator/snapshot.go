package orchestrator

import (
	"errors"
	"fmt"

	"github.com/BrunoV21/CodeTide/internal/cache"
	"github.com/BrunoV21/CodeTide/internal/config"
	"github.com/BrunoV21/CodeTide/internal/graph"
	"github.com/BrunoV21/CodeTide/internal/loader"
	"github.com/BrunoV21/CodeTide/internal/logging"
)

// SerializeOptions control Serialize.
type SerializeOptions struct {
	// IncludeCachedIDs also writes the sidecar listing every unique id.
	IncludeCachedIDs bool
}

// Serialize writes the snapshot and its sidecars to the cache directory.
func (e *Engine) Serialize(opts SerializeOptions) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.serializeLocked(opts)
}

func (e *Engine) serializeLocked(opts SerializeOptions) error {
	snap := &cache.Snapshot{
		Root:         e.cfg.Root,
		Files:        e.codebase.FileModels(),
		Fingerprints: e.fingerprints,
		Failures:     e.failures,
	}
	if err := e.store.Save(snap); err != nil {
		return fmt.Errorf("serialize: %w", err)
	}
	if err := e.store.SaveElements(snap.ID, e.codebase.CachedElements()); err != nil {
		return fmt.Errorf("serialize: %w", err)
	}
	if opts.IncludeCachedIDs {
		if err := e.store.SaveIDs(snap.ID, e.codebase.IDs()); err != nil {
			return fmt.Errorf("serialize: %w", err)
		}
	}
	e.snapshotID = snap.ID

	if e.cfg.Cache.Gitignore {
		if added, err := cache.EnsureGitignored(e.cfg.Root, e.store.Dir); err != nil {
			logging.Warn("could not update .gitignore", "component", "engine", "error", err)
		} else if added {
			logging.Info("added cache directory to .gitignore", "component", "engine", "dir", e.cfg.CacheDir)
		}
	}
	logging.Debug("snapshot written", "component", "engine", "id", snap.ID, "files", len(snap.Files))
	return nil
}

// restore replaces the engine state with the stored snapshot. It reports
// whether a snapshot was applied.
func (e *Engine) restore() (bool, error) {
	snap, err := e.store.Load(e.cfg.Root)
	if err != nil {
		return false, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.apply(snap)
	return true, nil
}

func (e *Engine) apply(snap *cache.Snapshot) {
	e.codebase = graph.FromFiles(e.cfg.Root, snap.Files)
	e.fingerprints = snap.Fingerprints
	if e.fingerprints == nil {
		e.fingerprints = make(map[string]loader.Fingerprint)
	}
	e.failures = snap.Failures
	if e.failures == nil {
		e.failures = make(map[string]string)
	}
	e.snapshotID = snap.ID
	e.complete = e.newAutocomplete()
}

// Deserialize builds an engine from the stored snapshot alone, without
// looking at the files on disk.
func Deserialize(cfg *config.Config) (*Engine, error) {
	e, err := NewEngine(cfg)
	if err != nil {
		return nil, err
	}
	if _, err := e.restore(); err != nil {
		return nil, fmt.Errorf("deserialize: %w", err)
	}
	if side, err := e.store.LoadElements(); err == nil && side.SnapshotID != e.snapshotID {
		logging.Warn("element sidecar belongs to another snapshot", "component", "engine",
			"sidecar", side.SnapshotID, "snapshot", e.snapshotID)
	} else if err != nil && !errors.Is(err, cache.ErrNoSnapshot) {
		logging.Warn("element sidecar unreadable", "component", "engine", "error", err)
	}
	return e, nil
}

// CachedIDs reads the id sidecar without loading the snapshot.
func CachedIDs(cfg *config.Config) ([]string, error) {
	side, err := cache.NewStore(cfg.CachePath()).LoadIDs()
	if err != nil {
		return nil, err
	}
	return side.IDs, nil
}
