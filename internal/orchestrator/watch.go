package orchestrator

import (
	"context"
	"fmt"

	"github.com/BrunoV21/CodeTide/internal/loader"
	"github.com/BrunoV21/CodeTide/internal/logging"
	"github.com/BrunoV21/CodeTide/internal/watcher"
)

// Watch applies file changes under the project root as they happen until
// ctx is done. onUpdate, when set, sees every update that changed files.
// The returned channel is closed when watching has stopped.
func (e *Engine) Watch(ctx context.Context, onUpdate func(*UpdateResult)) (<-chan struct{}, error) {
	fw, err := watcher.NewFileWatcher(e.cfg.Root, watcher.Options{
		Extensions: e.registry.Extensions(),
		Ignore:     loader.Matcher(e.cfg.Root, e.loaderConfig()),
	})
	if err != nil {
		return nil, err
	}
	if err := fw.Start(ctx); err != nil {
		return nil, fmt.Errorf("start watcher: %w", err)
	}
	d := watcher.NewDebouncer(fw.Events(), e.cfg.Watch.Debounce, e.cfg.Watch.MaxWait)
	d.Start(ctx)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range d.Output() {
			logging.Debug("change batch", "component", "engine", "paths", len(ev.Paths))
			res, err := e.CheckForUpdates(ctx, UpdateOptions{
				Serialize:        e.cfg.Cache.Enabled,
				IncludeCachedIDs: e.cfg.Cache.IncludeCachedIDs,
			})
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logging.Error("update failed", "component", "engine", "error", err)
				continue
			}
			if onUpdate != nil && res.Changed() {
				onUpdate(res)
			}
		}
	}()
	return done, nil
}
