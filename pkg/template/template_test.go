package template_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macropower/shelf/pkg/expr"
	"github.com/macropower/shelf/pkg/filter"
	"github.com/macropower/shelf/pkg/template"
)

func newEnv(t *testing.T) *expr.Environment {
	t.Helper()

	env, err := expr.NewEnvironment(expr.EntryVariables(), expr.DynVariables("dateadded"))
	require.NoError(t, err)

	return env
}

func vars() map[string]any {
	return map[string]any{
		expr.VarPath:         "/home/u/Downloads/report.final.pdf",
		expr.VarRelativePath: "report.final.pdf",
		expr.VarName:         "report.final.pdf",
		expr.VarIsDir:        false,
		"dateadded":          filter.NewDateTime(time.Date(2024, 3, 7, 9, 5, 0, 0, time.UTC)),
	}
}

func TestTemplate_Render(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		src  string
		want string
	}{
		"literal only": {
			src:  "nothing to see",
			want: "nothing to see",
		},
		"date fields": {
			src:  "{dateadded.year}-{dateadded.month}-{dateadded.day}",
			want: "2024-3-7",
		},
		"zero padded": {
			src:  "{dateadded.year}/{dateadded.month:02}/{dateadded.day:02}",
			want: "2024/03/07",
		},
		"space padded": {
			src:  "[{dateadded.day:3}]",
			want: "[  7]",
		},
		"width narrower than value": {
			src:  "{dateadded.year:02}",
			want: "2024",
		},
		"zero padded string": {
			src:  "{string(dateadded.minute):03}",
			want: "005",
		},
		"functions": {
			src:  "{pathStem(path)}{pathExt(path)}",
			want: "report.final.pdf",
		},
		"escaped braces": {
			src:  "{{literal}} {name}",
			want: "{literal} report.final.pdf",
		},
		"map literal in expression": {
			src:  `{ {"a": "x"}["a"] }`,
			want: "x",
		},
		"brace inside string": {
			src:  `{"}" + name}`,
			want: "}report.final.pdf",
		},
		"ternary with integer branches": {
			src:  "{is_dir ? 1 : 2}",
			want: "2",
		},
		"ternary with integer branches and width": {
			src:  "{(is_dir ? 1 : 2):03}",
			want: "002",
		},
		"ternary with string branches": {
			src:  `{is_dir ? "dir" : "file"}`,
			want: "file",
		},
		"bool and weekday": {
			src:  "{is_dir} {dateadded.weekday}",
			want: "false Thursday",
		},
	}

	env := newEnv(t)

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			tmpl, err := template.Parse(tc.src, env)
			require.NoError(t, err)

			got, err := tmpl.Render(vars())
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.src, tmpl.String())
		})
	}
}

func TestTemplate_ParseErrors(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		src    string
		syntax bool
	}{
		"unclosed":           {src: "{dateadded.year", syntax: true},
		"stray close":        {src: "year}", syntax: true},
		"empty placeholder":  {src: "{}", syntax: true},
		"unknown variable":   {src: "{nope.year}"},
		"invalid cel":        {src: "{path +}"},
		"width only":         {src: "{:02}", syntax: true},
		"invalid with width": {src: "{path +:3}"},
	}

	env := newEnv(t)

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := template.Parse(tc.src, env)
			require.Error(t, err)

			if tc.syntax {
				require.ErrorIs(t, err, template.ErrSyntax)
			}
		})
	}
}

func TestTemplate_RenderMissingContext(t *testing.T) {
	t.Parallel()

	tmpl := template.MustParse("{dateadded.year}", newEnv(t))

	v := vars()
	delete(v, "dateadded")

	_, err := tmpl.Render(v)
	require.Error(t, err)
	assert.ErrorContains(t, err, "{dateadded.year}")
}
