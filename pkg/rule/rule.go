package rule

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/macropower/shelf/pkg/expr"
	"github.com/macropower/shelf/pkg/filter"
	"github.com/macropower/shelf/pkg/log"
	"github.com/macropower/shelf/pkg/template"
	"github.com/macropower/shelf/pkg/walk"
)

// DefaultOutput is the output template used when none is configured.
const DefaultOutput = "{path}"

var (
	// ErrInvalidRule is returned when a rule cannot be built.
	ErrInvalidRule = errors.New("invalid rule")

	// ErrNotBuilt is returned when a rule is used before [Rule.Build].
	ErrNotBuilt = errors.New("rule has not been built")

	tracer = otel.Tracer("rule")
)

// FilterMode decides how filter results are combined.
type FilterMode string

const (
	// All matches when every filter matches. Evaluation stops at the first
	// filter that does not match.
	All FilterMode = "all"
	// Any matches when at least one filter matches. Evaluation stops at the
	// first filter that matches.
	Any FilterMode = "any"
	// None matches when no filter matches.
	None FilterMode = "none"
)

// Validate returns an error if m is not a known value.
// The zero value is treated as [All].
func (m FilterMode) Validate() error {
	switch m {
	case "", All, Any, None:
		return nil
	}

	return fmt.Errorf("%w: unknown filter mode %q: must be %q, %q or %q", ErrInvalidRule, string(m), All, Any, None)
}

// Rule selects filesystem entries with a chain of filters.
//
// Rules are evaluated per entry:
//  1. The filters are evaluated in order and combined by [FilterMode].
//     Matched filters contribute their data to the rule context, under the
//     filter's name. Later filters override earlier ones.
//  2. If set, the `when` CEL expression must return true. It has access to
//     the entry variables (`path`, `relative_path`, `name`, `is_dir`) and one
//     variable per filter, which is null if the filter did not match.
//  3. The output template is rendered with the same variables.
//
// Example:
//
//	name: old downloads
//	locations: [~/Downloads]
//	filters:
//	  - dateadded:
//	      days: 10
//	when: pathExt(path) == ".pdf"
//	output: "{name} added {dateadded.year}-{dateadded.month:02}"
type Rule struct {
	when    *expr.LazyProgram
	output  *template.Template
	filters []filter.Filter
	names   []string

	// Name of the rule.
	Name string `json:"name,omitempty" jsonschema:"title=Name"`
	// Locations are the directories the rule applies to.
	Locations []string `json:"locations" jsonschema:"title=Locations,minItems=1"`
	// Targets selects files or directories.
	Targets walk.Targets `json:"targets,omitempty" jsonschema:"title=Targets,enum=files,enum=dirs,default=files"`
	// FilterMode decides how filter results are combined.
	FilterMode FilterMode `json:"filterMode,omitempty" jsonschema:"title=Filter Mode,enum=all,enum=any,enum=none,default=all"`
	// Filters are evaluated in order against each entry.
	Filters []*filter.Spec `json:"filters,omitempty" jsonschema:"title=Filters"`
	// Exclude holds name patterns of entries to skip.
	Exclude []string `json:"exclude,omitempty" jsonschema:"title=Exclude"`
	// When is an optional CEL expression that must return true.
	When string `json:"when,omitempty" jsonschema:"title=When Expression"`
	// Output is the template rendered for each match.
	Output string `json:"output,omitempty" jsonschema:"title=Output Template"`
	// MaxDepth limits recursion into subfolders. 0 means no limit.
	MaxDepth uint `json:"maxDepth,omitempty" jsonschema:"title=Max Depth"`
	// Subfolders enables recursion into subdirectories.
	Subfolders bool `json:"subfolders,omitempty" jsonschema:"title=Subfolders"`
}

// Match is a matched entry.
type Match struct {
	// Context holds the data exposed by the matched filters.
	Context filter.Context
	// Rule is the name of the matched rule.
	Rule string
	// Output is the rendered output template.
	Output string
	// Entry is the matched entry.
	Entry walk.Entry
}

// New creates a new [Rule] and builds it with reg.
func New(reg *filter.Registry, name string, locations []string, filters ...*filter.Spec) (*Rule, error) {
	r := &Rule{
		Name:      name,
		Locations: locations,
		Filters:   filters,
	}

	err := r.Build(reg)
	if err != nil {
		return nil, err
	}

	return r, nil
}

// MustNew creates a new rule and panics if there's an error.
func MustNew(reg *filter.Registry, name string, locations []string, filters ...*filter.Spec) *Rule {
	r, err := New(reg, name, locations, filters...)
	if err != nil {
		panic(err)
	}

	return r
}

// Build creates the rule's filters with reg, and compiles its expressions.
func (r *Rule) Build(reg *filter.Registry) error {
	err := r.FilterMode.Validate()
	if err != nil {
		return r.wrap(err)
	}

	err = r.Targets.Validate()
	if err != nil {
		return r.wrap(fmt.Errorf("%w: %w", ErrInvalidRule, err))
	}

	r.filters = make([]filter.Filter, 0, len(r.Filters))
	r.names = nil

	seen := map[string]bool{}
	for i, spec := range r.Filters {
		if spec == nil {
			return r.wrap(fmt.Errorf("%w: filters[%d] is empty", ErrInvalidRule, i))
		}

		f, err := reg.NewFromSpec(spec)
		if err != nil {
			return r.wrap(fmt.Errorf("filters[%d]: %w", i, err))
		}

		r.filters = append(r.filters, f)
		if !seen[f.Name()] {
			seen[f.Name()] = true
			r.names = append(r.names, f.Name())
		}
	}

	env, err := expr.NewEnvironment(expr.EntryVariables(), expr.DynVariables(r.names...))
	if err != nil {
		return r.wrap(err)
	}

	r.when = nil
	if strings.TrimSpace(r.When) != "" {
		r.when = expr.NewLazyProgram(r.When, env)

		_, err := r.when.Get()
		if err != nil {
			return r.wrap(fmt.Errorf("when: %w", err))
		}
	}

	output := r.Output
	if output == "" {
		output = DefaultOutput
	}

	r.output, err = template.Parse(output, env)
	if err != nil {
		return r.wrap(fmt.Errorf("output: %w", err))
	}

	return nil
}

// Evaluate evaluates the rule against entry. It returns false if the entry
// does not match.
//
// Errors from filters, including [filter.ErrPathNotFound], are returned
// wrapped.
func (r *Rule) Evaluate(ctx context.Context, entry walk.Entry) (*Match, bool, error) {
	if r.output == nil {
		return nil, false, r.wrap(ErrNotBuilt)
	}

	ctx, span := tracer.Start(ctx, "evaluate", trace.WithAttributes(
		attribute.String("rule", r.Name),
		attribute.String("path", entry.Path),
	))
	defer span.End()

	fctx, ok, err := r.evaluateFilters(ctx, entry)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		return nil, false, r.wrap(err)
	}

	span.SetAttributes(attribute.Bool("filters.matched", ok))

	if !ok {
		return nil, false, nil
	}

	vars := r.vars(entry, fctx)

	if r.when != nil {
		program, err := r.when.Get()
		if err != nil {
			return nil, false, r.wrap(fmt.Errorf("when: %w", err))
		}

		ok, err := expr.EvalBool(program, vars)
		if err != nil {
			return nil, false, r.wrap(fmt.Errorf("when: %w", err))
		}

		if !ok {
			return nil, false, nil
		}
	}

	out, err := r.output.Render(vars)
	if err != nil {
		return nil, false, r.wrap(fmt.Errorf("output: %w", err))
	}

	return &Match{
		Rule:    r.Name,
		Entry:   entry,
		Context: fctx,
		Output:  out,
	}, true, nil
}

func (r *Rule) evaluateFilters(ctx context.Context, entry walk.Entry) (filter.Context, bool, error) {
	fctx := filter.Context{}

	mode := r.FilterMode
	if mode == "" {
		mode = All
	}

	if len(r.filters) == 0 {
		return fctx, mode != Any, nil
	}

	for _, f := range r.filters {
		res, err := f.Evaluate(ctx, entry.Path)
		if err != nil {
			return nil, false, fmt.Errorf("%s: %w", f.Name(), err)
		}

		switch mode {
		case All:
			if !res.Matched {
				return nil, false, nil
			}

			r.merge(ctx, fctx, res.Context, entry)

		case Any:
			if res.Matched {
				r.merge(ctx, fctx, res.Context, entry)

				return fctx, true, nil
			}

		case None:
			if res.Matched {
				return nil, false, nil
			}
		}
	}

	return fctx, mode != Any, nil
}

func (r *Rule) merge(ctx context.Context, dst, src filter.Context, entry walk.Entry) {
	collisions := dst.Merge(src)
	if len(collisions) > 0 {
		log.WithContext(ctx).WarnContext(ctx, "filter context keys overwritten",
			slog.String("rule", r.Name),
			slog.String("path", entry.Path),
			slog.Any("keys", collisions),
		)
	}
}

func (r *Rule) vars(entry walk.Entry, fctx filter.Context) map[string]any {
	vars := map[string]any{
		expr.VarPath:         entry.Path,
		expr.VarRelativePath: entry.RelativePath,
		expr.VarName:         entry.Name,
		expr.VarIsDir:        entry.IsDir,
	}

	for _, name := range r.names {
		vars[name] = fctx[name]
	}

	return vars
}

// FilterDescriptions returns a description of each filter.
func (r *Rule) FilterDescriptions() []string {
	descs := make([]string, 0, len(r.filters))
	for _, f := range r.filters {
		if s, ok := f.(fmt.Stringer); ok {
			descs = append(descs, s.String())
		} else {
			descs = append(descs, f.Name())
		}
	}

	return descs
}

// Walkers creates a [walk.Walker] for each location. Locations that do not
// exist are skipped with a warning. The caller must close the walkers.
func (r *Rule) Walkers(ctx context.Context) ([]*walk.Walker, error) {
	walkers := make([]*walk.Walker, 0, len(r.Locations))
	for _, loc := range r.Locations {
		w, err := walk.New(loc,
			walk.WithSubfolders(r.Subfolders),
			walk.WithTargets(r.Targets),
			walk.WithMaxDepth(r.MaxDepth),
			walk.WithExclude(r.Exclude...),
		)
		if errors.Is(err, fs.ErrNotExist) {
			log.WithContext(ctx).WarnContext(ctx, "skipping missing location",
				slog.String("rule", r.Name),
				slog.String("location", loc),
			)

			continue
		}

		if err != nil {
			for _, opened := range walkers {
				opened.Close() //nolint:errcheck,gosec // Best effort.
			}

			return nil, r.wrap(err)
		}

		walkers = append(walkers, w)
	}

	return walkers, nil
}

func (r *Rule) String() string {
	mode := r.FilterMode
	if mode == "" {
		mode = All
	}

	return fmt.Sprintf("%s (%s of %d filters): %s", r.Name, mode, len(r.Filters), strings.Join(r.Locations, ", "))
}

func (r *Rule) wrap(err error) error {
	if r.Name == "" {
		return err
	}

	return fmt.Errorf("rule %q: %w", r.Name, err)
}
