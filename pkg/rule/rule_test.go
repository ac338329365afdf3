package rule_test

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macropower/shelf/pkg/filter"
	"github.com/macropower/shelf/pkg/log"
	"github.com/macropower/shelf/pkg/rule"
	"github.com/macropower/shelf/pkg/temporal"
	"github.com/macropower/shelf/pkg/walk"
	"github.com/macropower/shelf/pkg/yaml"
)

// stubFilter matches when matched is true, and records how often it ran.
type stubFilter struct {
	err     error
	ctx     filter.Context
	name    string
	calls   int
	matched bool
	mu      sync.Mutex
}

func (s *stubFilter) Name() string { return s.name }

func (s *stubFilter) Evaluate(context.Context, string) (filter.Result, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	if s.err != nil {
		return filter.NoMatch, s.err
	}

	if !s.matched {
		return filter.NoMatch, nil
	}

	return filter.Match(s.ctx), nil
}

func (s *stubFilter) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.calls
}

func registry(stubs ...*stubFilter) *filter.Registry {
	reg := filter.NewRegistry()
	for _, s := range stubs {
		reg.Register(s.name, func([]byte) (filter.Filter, error) { return s, nil })
	}

	return reg
}

func spec(name string) *filter.Spec {
	return &filter.Spec{Name: name}
}

func entry(t *testing.T) walk.Entry {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "invoice.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF"), 0o600))

	return walk.Entry{
		Path:         path,
		RelativePath: "invoice.pdf",
		Location:     dir,
		Name:         "invoice.pdf",
	}
}

func TestRule_Evaluate_FilterModes(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		mode      rule.FilterMode
		results   []bool
		wantCalls []int
		want      bool
	}{
		"all, every filter matches": {
			mode:      rule.All,
			results:   []bool{true, true},
			wantCalls: []int{1, 1},
			want:      true,
		},
		"all, stops at first non-match": {
			mode:      rule.All,
			results:   []bool{false, true},
			wantCalls: []int{1, 0},
			want:      false,
		},
		"default mode is all": {
			results:   []bool{true, false},
			wantCalls: []int{1, 1},
			want:      false,
		},
		"any, stops at first match": {
			mode:      rule.Any,
			results:   []bool{true, false},
			wantCalls: []int{1, 0},
			want:      true,
		},
		"any, no filter matches": {
			mode:      rule.Any,
			results:   []bool{false, false},
			wantCalls: []int{1, 1},
			want:      false,
		},
		"none, no filter matches": {
			mode:      rule.None,
			results:   []bool{false, false},
			wantCalls: []int{1, 1},
			want:      true,
		},
		"none, one filter matches": {
			mode:      rule.None,
			results:   []bool{false, true},
			wantCalls: []int{1, 1},
			want:      false,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			stubs := []*stubFilter{
				{name: "first", matched: tc.results[0], ctx: filter.Context{"first": 1}},
				{name: "second", matched: tc.results[1], ctx: filter.Context{"second": 2}},
			}

			r := &rule.Rule{
				Name:       "test",
				Locations:  []string{"."},
				FilterMode: tc.mode,
				Filters:    []*filter.Spec{spec("first"), spec("second")},
			}
			require.NoError(t, r.Build(registry(stubs...)))

			e := entry(t)

			m, ok, err := r.Evaluate(t.Context(), e)
			require.NoError(t, err)
			assert.Equal(t, tc.want, ok)

			for i, s := range stubs {
				assert.Equal(t, tc.wantCalls[i], s.Calls(), "calls to %s", s.name)
			}

			if tc.want {
				require.NotNil(t, m)
				assert.Equal(t, "test", m.Rule)
				assert.Equal(t, e.Path, m.Output)
			} else {
				assert.Nil(t, m)
			}
		})
	}
}

func TestRule_Evaluate_NoFilters(t *testing.T) {
	t.Parallel()

	for mode, want := range map[rule.FilterMode]bool{rule.All: true, rule.Any: false, rule.None: true} {
		r := &rule.Rule{Name: "empty", FilterMode: mode}
		require.NoError(t, r.Build(filter.NewRegistry()))

		_, ok, err := r.Evaluate(t.Context(), entry(t))
		require.NoError(t, err)
		assert.Equal(t, want, ok, "mode %s", mode)
	}
}

func TestRule_Evaluate_ContextCollision(t *testing.T) {
	t.Parallel()

	stubs := []*stubFilter{
		{name: "first", matched: true, ctx: filter.Context{"shared": "first", "first": true}},
		{name: "second", matched: true, ctx: filter.Context{"shared": "second"}},
	}

	r := &rule.Rule{
		Name:    "collide",
		Filters: []*filter.Spec{spec("first"), spec("second")},
	}
	require.NoError(t, r.Build(registry(stubs...)))

	var buf bytes.Buffer

	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	ctx := log.NewContext(t.Context(), logger)

	m, ok, err := r.Evaluate(ctx, entry(t))
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, "second", m.Context["shared"])
	assert.Equal(t, true, m.Context["first"])
	assert.Contains(t, buf.String(), "filter context keys overwritten")
	assert.Contains(t, buf.String(), `"shared"`)
}

func TestRule_Evaluate_FilterError(t *testing.T) {
	t.Parallel()

	stub := &stubFilter{name: "broken", err: filter.ErrPathNotFound}

	r := &rule.Rule{Name: "err", Filters: []*filter.Spec{spec("broken")}}
	require.NoError(t, r.Build(registry(stub)))

	_, ok, err := r.Evaluate(t.Context(), entry(t))
	require.ErrorIs(t, err, filter.ErrPathNotFound)
	assert.False(t, ok)
	assert.ErrorContains(t, err, `rule "err"`)
}

func TestRule_Evaluate_WhenAndOutput(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 6, 20, 12, 0, 0, 0, time.UTC)

	e := entry(t)
	added := time.Date(2024, 3, 7, 9, 0, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(e.Path, added, added))

	reg := filter.NewRegistry()
	temporal.Register(reg, nil, temporal.WithClock(func() time.Time { return now }))

	tcs := map[string]struct {
		when       string
		output     string
		wantOutput string
		want       bool
	}{
		"default output": {
			wantOutput: e.Path,
			want:       true,
		},
		"when passes": {
			when:       `pathExt(path) == ".pdf" && lastmodified.year == 2024`,
			output:     "{name} {lastmodified.year}-{lastmodified.month:02}-{lastmodified.day:02}",
			wantOutput: "invoice.pdf 2024-03-07",
			want:       true,
		},
		"when fails": {
			when: `pathExt(path) == ".txt"`,
			want: false,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			r := &rule.Rule{
				Name:    name,
				When:    tc.when,
				Output:  tc.output,
				Filters: []*filter.Spec{{Name: "lastmodified", Options: []byte("days: 10\ntimezone: UTC\n")}},
			}
			require.NoError(t, r.Build(reg))

			m, ok, err := r.Evaluate(t.Context(), e)
			require.NoError(t, err)
			require.Equal(t, tc.want, ok)

			if tc.want {
				assert.Equal(t, tc.wantOutput, m.Output)
			}
		})
	}
}

func TestRule_Evaluate_AnyModeNullContext(t *testing.T) {
	t.Parallel()

	stubs := []*stubFilter{
		{name: "first", matched: true, ctx: filter.Context{"first": map[string]any{"n": 1}}},
		{name: "second", matched: true, ctx: filter.Context{"second": map[string]any{"n": 2}}},
	}

	r := &rule.Rule{
		Name:       "any",
		FilterMode: rule.Any,
		Filters:    []*filter.Spec{spec("first"), spec("second")},
		When:       `second == null && first.n == 1`,
	}
	require.NoError(t, r.Build(registry(stubs...)))

	_, ok, err := r.Evaluate(t.Context(), entry(t))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRule_Build_Errors(t *testing.T) {
	t.Parallel()

	reg := registry(&stubFilter{name: "dateadded"})

	tcs := map[string]struct {
		rule    *rule.Rule
		wantErr error
	}{
		"unknown filter": {
			rule:    &rule.Rule{Name: "r", Filters: []*filter.Spec{spec("dateaded")}},
			wantErr: filter.ErrUnknownFilter,
		},
		"invalid mode": {
			rule:    &rule.Rule{Name: "r", FilterMode: "some"},
			wantErr: rule.ErrInvalidRule,
		},
		"invalid targets": {
			rule:    &rule.Rule{Name: "r", Targets: "links"},
			wantErr: walk.ErrInvalidTargets,
		},
		"nil filter": {
			rule:    &rule.Rule{Name: "r", Filters: []*filter.Spec{nil}},
			wantErr: rule.ErrInvalidRule,
		},
		"invalid when": {
			rule: &rule.Rule{Name: "r", When: "path +"},
		},
		"unknown variable in output": {
			rule: &rule.Rule{Name: "r", Output: "{lastmodified.year}"},
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			err := tc.rule.Build(reg)
			require.Error(t, err)
			assert.ErrorContains(t, err, `rule "r"`)

			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
			}
		})
	}
}

func TestRule_Walkers_SkipsMissingLocations(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	missing := filepath.Join(dir, "missing")

	r := &rule.Rule{Name: "sparse", Locations: []string{missing, dir}}
	require.NoError(t, r.Build(filter.NewRegistry()))

	var buf bytes.Buffer
	ctx := log.NewContext(t.Context(), slog.New(slog.NewTextHandler(&buf, nil)))

	walkers, err := r.Walkers(ctx)
	require.NoError(t, err)
	t.Cleanup(func() {
		for _, w := range walkers {
			assert.NoError(t, w.Close())
		}
	})

	require.Len(t, walkers, 1)
	assert.Equal(t, dir, walkers[0].Location())
	assert.Contains(t, buf.String(), "skipping missing location")
	assert.Contains(t, buf.String(), missing)
}

func TestRule_Evaluate_NotBuilt(t *testing.T) {
	t.Parallel()

	r := &rule.Rule{Name: "raw"}

	_, _, err := r.Evaluate(t.Context(), walk.Entry{})
	require.ErrorIs(t, err, rule.ErrNotBuilt)
}

func TestRule_UnmarshalYAML(t *testing.T) {
	t.Parallel()

	src := `
name: old downloads
locations: ["~/Downloads"]
subfolders: true
filterMode: any
filters:
  - lastmodified
  - dateadded:
      days: 10
      mode: newer
when: pathExt(path) == ".pdf"
output: "{name}"
`

	var r rule.Rule
	require.NoError(t, yaml.NewDecoder(bytes.NewBufferString(src)).Decode(&r))

	assert.Equal(t, "old downloads", r.Name)
	assert.Equal(t, []string{"~/Downloads"}, r.Locations)
	assert.True(t, r.Subfolders)
	assert.Equal(t, rule.Any, r.FilterMode)
	require.Len(t, r.Filters, 2)
	assert.Equal(t, "lastmodified", r.Filters[0].Name)
	assert.Nil(t, r.Filters[0].Options)
	assert.Equal(t, "dateadded", r.Filters[1].Name)

	opts, err := temporal.DecodeOptions(r.Filters[1].Options)
	require.NoError(t, err)
	assert.Equal(t, temporal.Options{Days: 10, Mode: "newer"}, opts)

	reg := filter.NewRegistry()
	temporal.Register(reg, nil)
	require.NoError(t, r.Build(reg))
	assert.Equal(t, []string{
		"[LastModified] All files, any time last modified",
		"[DateAdded] All files added to the filesystem newer than 10 days",
	}, r.FilterDescriptions())
}

func TestMustNew(t *testing.T) {
	t.Parallel()

	reg := registry(&stubFilter{name: "ok", matched: true})

	r := rule.MustNew(reg, "valid", []string{"."}, spec("ok"))
	assert.Equal(t, "valid (all of 1 filters): .", r.String())

	assert.Panics(t, func() {
		rule.MustNew(reg, "invalid", []string{"."}, spec("missing"))
	})
}
