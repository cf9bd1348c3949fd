// Package watcher reports batches of source file changes under a project
// root.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	ignore "github.com/sabhiram/go-gitignore"

	"github.com/BrunoV21/CodeTide/internal/logging"
	"github.com/BrunoV21/CodeTide/internal/util"
)

// ChangeEvent is a set of project-relative paths that changed.
type ChangeEvent struct {
	Paths     []string
	Timestamp time.Time
}

// Options filter the events a FileWatcher reports.
type Options struct {
	// Extensions accepted, lowercase with the dot. Empty accepts all.
	Extensions []string
	// Ignore excludes matching paths and directories.
	Ignore *ignore.GitIgnore
}

// FileWatcher watches every non-ignored directory under a root.
type FileWatcher struct {
	watcher *fsnotify.Watcher
	root    string
	opts    Options
	events  chan ChangeEvent
	mu      sync.Mutex
	watched map[string]bool
}

// NewFileWatcher creates a watcher for root.
func NewFileWatcher(root string, opts Options) (*FileWatcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	return &FileWatcher{
		watcher: w,
		root:    abs,
		opts:    opts,
		events:  make(chan ChangeEvent, 100),
		watched: make(map[string]bool),
	}, nil
}

// Start registers the directory tree and processes events until ctx is done.
func (fw *FileWatcher) Start(ctx context.Context) error {
	if err := fw.addTree(fw.root, nil); err != nil {
		fw.watcher.Close()
		return err
	}
	logging.Info("started watching project", "component", "watcher", "path", fw.root, "dirs", fw.Watched())
	go fw.processEvents(ctx)
	return nil
}

// Watched returns the number of watched directories.
func (fw *FileWatcher) Watched() int {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return len(fw.watched)
}

// addTree watches dir and every non-ignored directory below it. onFile,
// when set, sees each file found on the way.
func (fw *FileWatcher) addTree(dir string, onFile func(path string)) error {
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			if onFile != nil {
				onFile(path)
			}
			return nil
		}
		if path != fw.root && fw.ignored(path, true) {
			return filepath.SkipDir
		}
		fw.mu.Lock()
		defer fw.mu.Unlock()
		if fw.watched[path] {
			return nil
		}
		if err := fw.watcher.Add(path); err != nil {
			logging.Warn("failed to watch directory", "component", "watcher", "path", path, "error", err)
			return nil
		}
		fw.watched[path] = true
		return nil
	})
	if err != nil {
		return fmt.Errorf("walk %s: %w", dir, err)
	}
	return nil
}

func (fw *FileWatcher) rel(path string) (string, bool) {
	rel, err := filepath.Rel(fw.root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return util.NormalizePath(rel), true
}

func (fw *FileWatcher) ignored(path string, dir bool) bool {
	if fw.opts.Ignore == nil {
		return false
	}
	rel, ok := fw.rel(path)
	if !ok {
		return true
	}
	if fw.opts.Ignore.MatchesPath(rel) {
		return true
	}
	return dir && fw.opts.Ignore.MatchesPath(rel+"/")
}

// Relevant reports whether a change to path should be reported.
func (fw *FileWatcher) Relevant(path string) bool {
	if fw.ignored(path, false) {
		return false
	}
	if len(fw.opts.Extensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range fw.opts.Extensions {
		if e == ext {
			return true
		}
	}
	return false
}

func (fw *FileWatcher) processEvents(ctx context.Context) {
	defer close(fw.events)
	defer fw.watcher.Close()

	const batchDelay = 100 * time.Millisecond
	pending := make(map[string]bool)
	flushTimer := time.NewTimer(batchDelay)
	flushTimer.Stop()

	record := func(path string) {
		if !fw.Relevant(path) {
			return
		}
		if rel, ok := fw.rel(path); ok {
			pending[rel] = true
			flushTimer.Reset(batchDelay)
		}
	}

	flush := func() {
		if len(pending) == 0 {
			return
		}
		paths := make([]string, 0, len(pending))
		for p := range pending {
			paths = append(paths, p)
		}
		sort.Strings(paths)
		pending = make(map[string]bool)
		select {
		case fw.events <- ChangeEvent{Paths: paths, Timestamp: time.Now()}:
		case <-ctx.Done():
		}
	}

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					// Files written before the watch was added produce no event.
					if !fw.ignored(event.Name, true) {
						if err := fw.addTree(event.Name, record); err != nil {
							logging.Warn("failed to watch new directory", "component", "watcher", "path", event.Name, "error", err)
						}
					}
					continue
				}
			}
			if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
				continue
			}
			record(event.Name)

		case <-flushTimer.C:
			flush()

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			if !errors.Is(err, fsnotify.ErrEventOverflow) {
				logging.Error("watcher error", "component", "watcher", "error", err)
				continue
			}
			// Overflow loses events; report everything so the caller rescans.
			logging.Warn("watcher event overflow", "component", "watcher")
			pending["."] = true
			flushTimer.Reset(batchDelay)
		}
	}
}

// Events returns the channel of batched changes. It is closed when the
// context passed to Start is done.
func (fw *FileWatcher) Events() <-chan ChangeEvent {
	return fw.events
}

// Close stops the underlying fsnotify watcher.
func (fw *FileWatcher) Close() error {
	return fw.watcher.Close()
}
