// Package runner evaluates rules against the entries in their locations.
//
// A batch run walks every location of every rule, and evaluates the entries
// concurrently. Entries that disappear during the run are skipped, and
// entries that fail to evaluate are logged without stopping the run. In watch
// mode, entries are re-evaluated when filesystem events occur in a rule's
// locations.
package runner

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/macropower/shelf/pkg/expr"
	"github.com/macropower/shelf/pkg/filter"
	"github.com/macropower/shelf/pkg/log"
	"github.com/macropower/shelf/pkg/rule"
	"github.com/macropower/shelf/pkg/walk"
)

// DefaultWatchEvents is the default expression selecting the filesystem
// events that trigger an evaluation in watch mode.
const DefaultWatchEvents = "fs.event.has(fs.CREATE, fs.WRITE, fs.RENAME)"

// ErrNoRules is returned when a [Runner] has no rules.
var ErrNoRules = errors.New("no rules")

// Runner evaluates a set of rules. It is safe for concurrent use.
type Runner struct {
	tracer      trace.Tracer
	watchEvents *expr.LazyProgram
	rules       []*rule.Rule
	workers     int
}

// Opt configures a [Runner].
type Opt func(*Runner)

// WithWorkers sets the number of entries evaluated concurrently.
// Values below 1 use the number of CPUs.
func WithWorkers(n int) Opt {
	return func(r *Runner) {
		r.workers = n
	}
}

// WithWatchEvents sets the CEL expression selecting the filesystem events
// that trigger an evaluation in watch mode. The expression has access to
// `file` (string) and `fs.event` (int).
func WithWatchEvents(expression string) Opt {
	return func(r *Runner) {
		if expression != "" {
			r.watchEvents = expr.NewLazyProgram(expression, eventEnv)
		}
	}
}

var eventEnv = expr.MustNewEnvironment(expr.EventVariables())

// New creates a new [Runner] for the given built rules.
func New(rules []*rule.Rule, opts ...Opt) (*Runner, error) {
	if len(rules) == 0 {
		return nil, ErrNoRules
	}

	r := &Runner{
		rules:       rules,
		tracer:      otel.Tracer("runner"),
		watchEvents: expr.NewLazyProgram(DefaultWatchEvents, eventEnv),
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.workers < 1 {
		r.workers = runtime.NumCPU()
	}

	_, err := r.watchEvents.Get()
	if err != nil {
		return nil, fmt.Errorf("watch events: %w", err)
	}

	return r, nil
}

// Rules returns the rules of the [Runner].
func (r *Runner) Rules() []*rule.Rule {
	return r.rules
}

// Result is the outcome of a run.
type Result struct {
	// Started is when the run started.
	Started time.Time
	// RunID identifies the run in logs.
	RunID string
	// Matches are sorted by rule, then by path.
	Matches []*rule.Match
	// Evaluated is the number of rule evaluations.
	Evaluated int64
	// Skipped is the number of entries that disappeared during the run.
	Skipped int64
	// Failed is the number of entries and locations that could not be
	// evaluated. Their errors are logged.
	Failed int64
	// Duration is how long the run took.
	Duration time.Duration
}

type job struct {
	rule  *rule.Rule
	entry walk.Entry
	index int
}

type indexedMatch struct {
	match *rule.Match
	index int
}

// Run walks the locations of every rule and evaluates the entries found.
// Missing locations are skipped. Locations that cannot be walked are logged
// and counted in [Result.Failed].
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	return r.run(ctx, "run", func(ctx context.Context, submit func(job) error, fail func(error)) error {
		for i, rl := range r.rules {
			walkers, err := rl.Walkers(ctx)
			if err != nil {
				fail(err)

				continue
			}

			for j, w := range walkers {
				err = w.Walk(ctx, func(e walk.Entry) error {
					return submit(job{rule: rl, entry: e, index: i})
				})
				if cerr := w.Close(); cerr != nil && err == nil {
					err = fmt.Errorf("close %q: %w", w.Location(), cerr)
				}

				if ctxErr := ctx.Err(); ctxErr != nil {
					for _, rest := range walkers[j+1:] {
						rest.Close() //nolint:errcheck,gosec // Already failing.
					}

					return ctxErr //nolint:wrapcheck // Return the original error.
				}

				if err != nil {
					fail(err)
				}
			}
		}

		return nil
	})
}

// RunPaths evaluates every rule against each of the given paths, regardless
// of the rules' locations.
func (r *Runner) RunPaths(ctx context.Context, paths ...string) (*Result, error) {
	entries := make([]walk.Entry, 0, len(paths))
	for _, p := range paths {
		e, err := walk.NewEntry(p)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", p, err)
		}

		entries = append(entries, e)
	}

	return r.run(ctx, "run-paths", func(_ context.Context, submit func(job) error, _ func(error)) error {
		for i, rl := range r.rules {
			for _, e := range entries {
				err := submit(job{rule: rl, entry: e, index: i})
				if err != nil {
					return err
				}
			}
		}

		return nil
	})
}

func (r *Runner) run(
	ctx context.Context,
	name string,
	produce func(ctx context.Context, submit func(job) error, fail func(error)) error,
) (*Result, error) {
	res := &Result{
		RunID:   uuid.NewString(),
		Started: time.Now(),
	}

	ctx, span := r.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("run_id", res.RunID),
		attribute.Int("rules", len(r.rules)),
		attribute.Int("workers", r.workers),
	))
	defer span.End()

	logger := log.WithContext(ctx).With(slog.String("run_id", res.RunID))
	ctx = log.NewContext(ctx, logger)

	logger.DebugContext(ctx, "starting run", slog.Int("rules", len(r.rules)))

	var (
		mu        sync.Mutex
		matches   []indexedMatch
		evaluated atomic.Int64
		skipped   atomic.Int64
		failed    atomic.Int64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	submit := func(j job) error {
		if err := gctx.Err(); err != nil {
			return err //nolint:wrapcheck // Return the original error.
		}

		g.Go(func() error {
			evaluated.Add(1)

			m, ok, err := j.rule.Evaluate(gctx, j.entry)
			if errors.Is(err, filter.ErrPathNotFound) {
				skipped.Add(1)
				logger.DebugContext(gctx, "skipping entry that no longer exists",
					slog.String("path", j.entry.Path),
				)

				return nil
			}

			if err != nil {
				failed.Add(1)
				logger.ErrorContext(gctx, "evaluate entry",
					slog.String("path", j.entry.Path),
					slog.Any("err", err),
				)

				return nil
			}

			if ok {
				mu.Lock()
				matches = append(matches, indexedMatch{match: m, index: j.index})
				mu.Unlock()
			}

			return nil
		})

		return nil
	}

	fail := func(err error) {
		failed.Add(1)
		logger.ErrorContext(gctx, "walk rule locations", slog.Any("err", err))
	}

	err := produce(gctx, submit, fail)
	if werr := g.Wait(); werr != nil {
		err = werr
	}

	res.Duration = time.Since(res.Started)
	res.Evaluated = evaluated.Load()
	res.Skipped = skipped.Load()
	res.Failed = failed.Load()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		return nil, fmt.Errorf("%s: %w", name, err)
	}

	slices.SortFunc(matches, func(a, b indexedMatch) int {
		return cmp.Or(
			cmp.Compare(a.index, b.index),
			cmp.Compare(a.match.Entry.Path, b.match.Entry.Path),
		)
	})

	res.Matches = make([]*rule.Match, 0, len(matches))
	for _, im := range matches {
		res.Matches = append(res.Matches, im.match)
	}

	span.SetAttributes(
		attribute.Int64("evaluated", res.Evaluated),
		attribute.Int("matched", len(res.Matches)),
		attribute.Int64("skipped", res.Skipped),
		attribute.Int64("failed", res.Failed),
	)

	logger.DebugContext(ctx, "finished run",
		slog.Int64("evaluated", res.Evaluated),
		slog.Int("matched", len(res.Matches)),
		slog.Int64("skipped", res.Skipped),
		slog.Int64("failed", res.Failed),
		slog.Duration("duration", res.Duration),
	)

	return res, nil
}
