package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/BrunoV21/CodeTide/internal/logging"
	"github.com/BrunoV21/CodeTide/internal/model"
	"github.com/BrunoV21/CodeTide/internal/parser"
)

// parseOutcome is the result slot of one parse task.
type parseOutcome struct {
	path string
	file *model.FileModel
	// failure is the parse error message for a partial model.
	failure string
	// skipped is set when the file could not be read or has no parser.
	skipped error
}

// parseFiles reads, parses and intra-resolves paths on a bounded worker
// pool. Outcomes come back in the order of paths.
func (e *Engine) parseFiles(ctx context.Context, paths []string) ([]parseOutcome, error) {
	out := make([]parseOutcome, len(paths))
	if len(paths) == 0 {
		return out, nil
	}

	numWorkers := min(e.cfg.Parse.MaxConcurrency, len(paths))
	if numWorkers < 1 {
		numWorkers = 1
	}

	workCh := make(chan int, len(paths))
	for i := range paths {
		workCh <- i
	}
	close(workCh)

	var wg sync.WaitGroup
	for range numWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range workCh {
				if ctx.Err() != nil {
					out[i] = parseOutcome{path: paths[i], skipped: ctx.Err()}
					continue
				}
				out[i] = e.parseOne(ctx, paths[i])
			}
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("parse files: %w", err)
	}
	return out, nil
}

func (e *Engine) parseOne(ctx context.Context, path string) parseOutcome {
	res := parseOutcome{path: path}
	p, ok := e.registry.ForPath(path)
	if !ok {
		res.skipped = fmt.Errorf("no parser for %s", path)
		return res
	}
	f, err := parser.ReadAndParse(ctx, p, e.cfg.Root, path, e.cfg.Encoding)
	if ctxErr := ctx.Err(); ctxErr != nil {
		res.skipped = ctxErr
		return res
	}
	if err != nil {
		var perr *parser.ParseError
		if !errors.As(err, &perr) || f == nil {
			logging.WarnContext(ctx, "skipping file", "component", "engine", "path", path, "error", err)
			res.skipped = err
			if errors.As(err, &perr) {
				res.failure = perr.Message
			}
			return res
		}
		logging.WarnContext(ctx, "partial parse", "component", "engine", "path", path, "error", perr.Message)
		res.failure = perr.Message
	}
	p.ResolveIntraFileDependencies(f)
	res.file = f
	return res
}
