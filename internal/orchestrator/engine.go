// Package orchestrator connects discovery, parsing, resolution, caching and
// the query surface into one Engine.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/BrunoV21/CodeTide/internal/cache"
	"github.com/BrunoV21/CodeTide/internal/config"
	"github.com/BrunoV21/CodeTide/internal/graph"
	"github.com/BrunoV21/CodeTide/internal/index"
	"github.com/BrunoV21/CodeTide/internal/loader"
	"github.com/BrunoV21/CodeTide/internal/logging"
	"github.com/BrunoV21/CodeTide/internal/model"
	"github.com/BrunoV21/CodeTide/internal/parser"
)

// Engine is the public surface over one project. Queries may run
// concurrently with each other and with updates.
type Engine struct {
	cfg      *config.Config
	registry *parser.Registry
	store    *cache.Store

	mu           sync.RWMutex
	codebase     *graph.Codebase
	complete     *index.Autocomplete
	fingerprints map[string]loader.Fingerprint
	failures     map[string]string
	snapshotID   string
}

// NewEngine creates an engine for cfg.Root with no files loaded.
func NewEngine(cfg *config.Config) (*Engine, error) {
	if cfg == nil {
		return nil, errors.New("nil config")
	}
	reg, err := parser.DefaultRegistry()
	if err != nil {
		return nil, fmt.Errorf("init parsers: %w", err)
	}
	reg = reg.Restrict(cfg.Languages)
	if len(reg.Languages()) == 0 {
		return nil, fmt.Errorf("no supported language in %v", cfg.Languages)
	}
	e := &Engine{
		cfg:          cfg,
		registry:     reg,
		store:        cache.NewStore(cfg.CachePath()),
		codebase:     graph.New(cfg.Root),
		fingerprints: make(map[string]loader.Fingerprint),
		failures:     make(map[string]string),
	}
	e.complete = e.newAutocomplete()
	return e, nil
}

// Config returns the configuration the engine was built with.
func (e *Engine) Config() *config.Config { return e.cfg }

// LoadResult describes how Load produced the current codebase.
type LoadResult struct {
	Root         string        `json:"root"`
	TotalFiles   int           `json:"total_files"`
	Elements     int           `json:"elements"`
	Failures     int           `json:"failures"`
	FromSnapshot bool          `json:"from_snapshot"`
	Update       *UpdateResult `json:"update,omitempty"`
	Duration     time.Duration `json:"duration"`
}

// Load restores the project snapshot and brings it up to date. Without a
// usable snapshot every file is parsed. When caching is enabled the result
// is persisted.
func (e *Engine) Load(ctx context.Context) (*LoadResult, error) {
	start := time.Now()
	ctx = logging.WithRunID(ctx)

	fromSnapshot := false
	if e.cfg.Cache.Enabled {
		restored, err := e.restore()
		switch {
		case err == nil:
			fromSnapshot = restored
		case errors.Is(err, cache.ErrNoSnapshot):
		case errors.Is(err, cache.ErrSnapshotCorrupt), errors.Is(err, cache.ErrSnapshotStale),
			errors.Is(err, cache.ErrSnapshotUnreadable):
			logging.WarnContext(ctx, "ignoring snapshot", "component", "engine", "error", err)
		default:
			return nil, err
		}
	}
	if fromSnapshot {
		logging.InfoContext(ctx, "restored snapshot", "component", "engine", "files", len(e.codebase.Files()))
	}

	upd, err := e.CheckForUpdates(ctx, UpdateOptions{
		Serialize:        e.cfg.Cache.Enabled,
		IncludeCachedIDs: e.cfg.Cache.IncludeCachedIDs,
	})
	if err != nil {
		return nil, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	res := &LoadResult{
		Root:         e.cfg.Root,
		TotalFiles:   len(e.codebase.Files()),
		Elements:     e.codebase.Len(),
		Failures:     len(e.failures),
		FromSnapshot: fromSnapshot,
		Update:       upd,
		Duration:     time.Since(start),
	}
	logging.InfoContext(ctx, "project loaded", "component", "engine",
		"files", res.TotalFiles, "elements", res.Elements, "failures", res.Failures,
		"from_snapshot", fromSnapshot, "duration", res.Duration.Round(time.Millisecond))
	return res, nil
}

// UpdateOptions control CheckForUpdates.
type UpdateOptions struct {
	// Serialize persists the codebase when anything changed.
	Serialize bool
	// IncludeCachedIDs also writes the id sidecar when serializing.
	IncludeCachedIDs bool
}

// UpdateResult lists what an update check changed.
type UpdateResult struct {
	Added      []string      `json:"added,omitempty"`
	Removed    []string      `json:"removed,omitempty"`
	Modified   []string      `json:"modified,omitempty"`
	ChangedIDs []string      `json:"changed_ids,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// Changed reports whether any file changed.
func (u *UpdateResult) Changed() bool {
	return len(u.Added)+len(u.Removed)+len(u.Modified) > 0
}

func (e *Engine) loaderConfig() loader.Config {
	return loader.Config{
		MaxFileSize:     e.cfg.Parse.MaxFileSize,
		Extensions:      e.registry.Extensions(),
		ExcludePatterns: append([]string{e.cfg.CacheDir}, e.cfg.Parse.ExcludePatterns...),
		UseGitignore:    e.cfg.Parse.UseGitignore,
	}
}

// CheckForUpdates rediscovers the project, reparses added and modified
// files, evicts removed ones and reruns inter-file resolution over the
// whole codebase. The returned ChangedIDs hold every id of added files,
// the old ids of removed files, the old and new ids of modified files and
// the ids of unchanged files whose resolved targets changed.
func (e *Engine) CheckForUpdates(ctx context.Context, opts UpdateOptions) (*UpdateResult, error) {
	start := time.Now()
	ctx = logging.WithRunID(ctx)

	e.mu.Lock()
	defer e.mu.Unlock()

	repo, err := loader.LoadRepository(e.cfg.Root, e.loaderConfig())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidRoot, err)
	}

	paths := repo.RelativePaths()
	current := make(map[string]loader.Fingerprint, len(paths))
	var readable []string
	for _, p := range paths {
		var prev *loader.Fingerprint
		if fp, ok := e.fingerprints[p]; ok {
			prev = &fp
		}
		fp, err := loader.FingerprintFile(e.cfg.Root, p, prev)
		if err != nil {
			logging.WarnContext(ctx, "skipping unreadable file", "component", "engine", "path", p, "error", err)
			continue
		}
		current[p] = fp
		readable = append(readable, p)
	}

	cs := loader.Diff(e.fingerprints, current, readable)
	res := &UpdateResult{Added: cs.Added, Removed: cs.Removed, Modified: cs.Modified}
	if cs.Empty() {
		res.Duration = time.Since(start)
		logging.DebugContext(ctx, "no changes", "component", "engine", "files", len(readable))
		return res, nil
	}
	logging.InfoContext(ctx, "applying changes", "component", "engine",
		"added", len(cs.Added), "modified", len(cs.Modified), "removed", len(cs.Removed))

	changed := make(map[string]bool)
	for _, p := range append(append([]string{}, cs.Removed...), cs.Modified...) {
		if f, ok := e.codebase.File(p); ok {
			for _, id := range f.IDs() {
				changed[id] = true
			}
		}
	}
	before := e.codebase.Bindings()

	toParse := append(append([]string{}, cs.Added...), cs.Modified...)
	sort.Strings(toParse)
	outcomes, err := e.parseFiles(ctx, toParse)
	if err != nil {
		return nil, err
	}
	// Past this point engine state changes, so the update runs to completion.
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("apply changes: %w", err)
	}

	evict := append([]string{}, cs.Removed...)
	var parsed []*model.FileModel
	for _, o := range outcomes {
		delete(e.failures, o.path)
		if o.failure != "" {
			e.failures[o.path] = o.failure
		}
		if o.file == nil {
			// A file that can no longer be parsed leaves the codebase and
			// is retried on the next check.
			evict = append(evict, o.path)
			delete(current, o.path)
			continue
		}
		parsed = append(parsed, o.file)
	}
	for _, p := range cs.Removed {
		delete(e.failures, p)
	}

	e.codebase.RemoveFiles(evict...)
	e.codebase.ReplaceFiles(parsed...)
	if err := e.codebase.Resolve(context.WithoutCancel(ctx), e.registry); err != nil {
		return nil, err
	}

	for _, f := range parsed {
		for _, id := range f.IDs() {
			changed[id] = true
		}
	}
	after := e.codebase.Bindings()
	for id, targets := range after {
		if old, ok := before[id]; ok && old != targets {
			changed[id] = true
		}
	}
	res.ChangedIDs = make([]string, 0, len(changed))
	for id := range changed {
		res.ChangedIDs = append(res.ChangedIDs, id)
	}
	sort.Strings(res.ChangedIDs)

	e.fingerprints = current
	e.complete = e.newAutocomplete()

	if opts.Serialize {
		if err := e.serializeLocked(SerializeOptions{IncludeCachedIDs: opts.IncludeCachedIDs}); err != nil {
			return nil, err
		}
	}
	res.Duration = time.Since(start)
	logging.InfoContext(ctx, "update applied", "component", "engine",
		"changed_ids", len(res.ChangedIDs), "duration", res.Duration.Round(time.Millisecond))
	return res, nil
}

func (e *Engine) newAutocomplete() *index.Autocomplete {
	opts := index.DefaultOptions()
	opts.MaxSuggestions = e.cfg.Retrieval.MaxSuggestions
	opts.MaxDistance = e.cfg.Retrieval.MaxDistance
	return index.New(e.codebase.IDs(), opts)
}

// Get returns the context for identifiers within degree hops. Unknown
// identifiers carry autocomplete suggestions.
func (e *Engine) Get(identifiers []string, degree int) (*model.ContextStructure, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if degree < 0 {
		degree = 0
	}
	cs, err := e.codebase.Get(identifiers, degree)
	if err != nil {
		var unknown *graph.UnknownIdentifierError
		if errors.As(err, &unknown) {
			unknown.Suggestions = e.complete.Suggest(unknown.Query, true)
		}
		return nil, err
	}
	return cs, nil
}

// GetString renders Get's result.
func (e *Engine) GetString(identifiers []string, degree int) (string, error) {
	cs, err := e.Get(identifiers, degree)
	if err != nil {
		return "", err
	}
	return cs.String(), nil
}

// GetTreeView renders the project tree.
func (e *Engine) GetTreeView(includeModules, includeTypes bool) string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.codebase.TreeView(includeModules, includeTypes)
}

// Suggest ranks ids for a prefix.
func (e *Engine) Suggest(prefix string, fuzzy bool) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.complete.Suggest(prefix, fuzzy)
}

// Resolve maps a partial identifier to its unique id.
func (e *Engine) Resolve(partial string) (string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	id, err := e.codebase.ResolveIdentifier(partial)
	if err != nil {
		var unknown *graph.UnknownIdentifierError
		if errors.As(err, &unknown) {
			unknown.Suggestions = e.complete.Suggest(unknown.Query, true)
		}
		return "", err
	}
	return id, nil
}

// ValidateIdentifier reports whether id exists and which ids are close.
func (e *Engine) ValidateIdentifier(id string) index.Validation {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.complete.Validate(id)
}

// IDs returns every unique id, sorted.
func (e *Engine) IDs() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.codebase.IDs()
}

// Files returns every loaded file path, sorted.
func (e *Engine) Files() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.codebase.Files()
}

// Stats summarizes the codebase.
func (e *Engine) Stats() graph.Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.codebase.Stats()
}

// Failures returns the parse error message per file.
func (e *Engine) Failures() map[string]string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]string, len(e.failures))
	for k, v := range e.failures {
		out[k] = v
	}
	return out
}

// Collisions returns ids declared by more than one file.
func (e *Engine) Collisions() []graph.Collision {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.codebase.Collisions()
}

// SnapshotID returns the id of the last snapshot written or restored.
func (e *Engine) SnapshotID() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snapshotID
}
