package runner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"slices"

	"github.com/fsnotify/fsnotify"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/macropower/shelf/pkg/expr"
	"github.com/macropower/shelf/pkg/filter"
	"github.com/macropower/shelf/pkg/log"
	"github.com/macropower/shelf/pkg/rule"
	"github.com/macropower/shelf/pkg/walk"
)

// Watcher re-evaluates entries when filesystem events occur in the rules'
// locations. Create one with [Runner.Watch].
type Watcher struct {
	runner      *Runner
	watcher     *fsnotify.Watcher
	watchedDirs map[string]struct{}
	scopes      []scope
}

type scope struct {
	rule   *rule.Rule
	walker *walk.Walker
}

// Watch creates a [Watcher] for every location of every rule. The returned
// [Watcher] is already receiving events. The caller must close it.
func (r *Runner) Watch(ctx context.Context) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		runner:      r,
		watcher:     fw,
		watchedDirs: map[string]struct{}{},
	}

	for _, rl := range r.rules {
		walkers, err := rl.Walkers(ctx)
		if err != nil {
			w.Close() //nolint:errcheck,gosec // Already failing.

			return nil, err //nolint:wrapcheck // Includes the rule name.
		}

		for _, wk := range walkers {
			w.scopes = append(w.scopes, scope{rule: rl, walker: wk})
		}
	}

	for _, s := range w.scopes {
		dirs, err := s.walker.Dirs(ctx)
		if err != nil {
			w.Close() //nolint:errcheck,gosec // Already failing.

			return nil, err //nolint:wrapcheck // Includes the location.
		}

		for _, dir := range dirs {
			err := w.add(dir)
			if err != nil {
				w.Close() //nolint:errcheck,gosec // Already failing.

				return nil, err
			}
		}
	}

	log.WithContext(ctx).DebugContext(ctx, "added file watchers",
		slog.Int("count", len(w.watchedDirs)),
	)

	return w, nil
}

func (w *Watcher) add(dir string) error {
	if _, ok := w.watchedDirs[dir]; ok {
		return nil
	}

	err := w.watcher.Add(dir)
	if err != nil {
		return fmt.Errorf("add %q to watcher: %w", dir, err)
	}

	w.watchedDirs[dir] = struct{}{}

	return nil
}

// Close stops watching and releases the rules' locations.
func (w *Watcher) Close() error {
	errs := []error{}
	for _, s := range w.scopes {
		errs = append(errs, s.walker.Close())
	}

	errs = append(errs, w.watcher.Close())

	return errors.Join(errs...)
}

// Run handles events until ctx is done, calling fn for every match.
// Evaluation errors are logged and do not stop the [Watcher].
func (w *Watcher) Run(ctx context.Context, fn func(*rule.Match)) error {
	logger := log.WithContext(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil

		case evt, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}

			w.handle(ctx, evt, fn)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}

			logger.ErrorContext(ctx, "watch filesystem", slog.Any("err", err))
		}
	}
}

func (w *Watcher) handle(ctx context.Context, evt fsnotify.Event, fn func(*rule.Match)) {
	ctx, span := w.runner.tracer.Start(ctx, "event", trace.WithAttributes(
		attribute.String("file", evt.Name),
		attribute.String("op", evt.Op.String()),
	))
	defer span.End()

	logger := log.WithContext(ctx).With(slog.String("event", evt.String()))

	matched, err := w.matchEvent(evt)
	if err != nil {
		logger.ErrorContext(ctx, "match file event", slog.Any("err", err))

		return
	}

	if !matched {
		return
	}

	if evt.Has(fsnotify.Create) {
		if info, err := os.Stat(evt.Name); err == nil && info.IsDir() {
			w.watchNewDir(ctx, evt.Name)
		}
	}

	for _, s := range w.scopes {
		e, ok, err := s.walker.EntryFor(evt.Name)
		if errors.Is(err, fs.ErrNotExist) {
			logger.DebugContext(ctx, "skipping entry that no longer exists")

			return
		}

		if err != nil {
			logger.ErrorContext(ctx, "resolve entry", slog.Any("err", err))

			continue
		}

		if !ok {
			continue
		}

		m, ok, err := s.rule.Evaluate(ctx, e)
		if errors.Is(err, filter.ErrPathNotFound) {
			logger.DebugContext(ctx, "skipping entry that no longer exists")

			return
		}

		if err != nil {
			logger.ErrorContext(ctx, "evaluate rule", slog.Any("err", err))

			continue
		}

		if ok {
			fn(m)
		}
	}
}

// watchNewDir adds a newly created directory to the watcher, if any scope
// descends into it.
func (w *Watcher) watchNewDir(ctx context.Context, p string) {
	for _, s := range w.scopes {
		if !s.walker.Contains(p) {
			continue
		}

		dirs, err := s.walker.Dirs(ctx)
		if err != nil {
			continue
		}

		if !slices.Contains(dirs, p) {
			continue
		}

		err = w.add(p)
		if err != nil {
			log.WithContext(ctx).WarnContext(ctx, "watch new directory", slog.Any("err", err))
		}

		return
	}
}

func (w *Watcher) matchEvent(evt fsnotify.Event) (bool, error) {
	program, err := w.runner.watchEvents.Get()
	if err != nil {
		return false, err //nolint:wrapcheck // Includes the expression.
	}

	ok, err := expr.EvalBool(program, map[string]any{
		expr.VarFile:    evt.Name,
		expr.VarFSEvent: int64(evt.Op),
	})
	if err != nil {
		return false, fmt.Errorf("watch events: %w", err)
	}

	return ok, nil
}
