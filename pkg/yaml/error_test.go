package yaml_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	goyaml "github.com/goccy/go-yaml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macropower/shelf/pkg/yaml"
)

const rulesDoc = `workers: 2
rules:
  - name: old downloads
    locations: [~/Downloads]
    filterMode: most
`

func TestError_Error(t *testing.T) {
	t.Parallel()

	path := func(s string) *goyaml.PathBuilder {
		return yaml.NewPathBuilder().Root().Child(s)
	}

	tcs := map[string]struct {
		err     *yaml.Error
		want    string
		prefix  string
		contain string
	}{
		"without location": {
			err:  yaml.NewError(errors.New("invalid rule")),
			want: "invalid rule",
		},
		"nil error": {
			err:  yaml.NewError(nil, yaml.WithPath(path("rules").Build())),
			want: "",
		},
		"path without source": {
			err:  yaml.NewError(errors.New("too few"), yaml.WithPath(path("workers").Build())),
			want: "error at $.workers: too few",
		},
		"path not in source": {
			err: yaml.NewError(errors.New("required"),
				yaml.WithPath(path("native").Build()),
				yaml.WithSource([]byte(rulesDoc)),
			),
			want: "error at $.native: required",
		},
		"annotated key": {
			err: yaml.NewError(errors.New("unknown mode"),
				yaml.WithPath(path("rules").Index(0).Child("filterMode").Build()),
				yaml.WithSource([]byte(rulesDoc)),
			),
			prefix:  "[5:5] unknown mode:",
			contain: "filterMode: most",
		},
		"annotated index": {
			err: yaml.NewError(errors.New("bad rule"),
				yaml.WithPath(path("rules").Index(0).Build()),
				yaml.WithSource([]byte(rulesDoc)),
			),
			prefix: "[3:",
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got := tc.err.Error()
			if tc.prefix == "" {
				assert.Equal(t, tc.want, got)

				return
			}

			assert.True(t, strings.HasPrefix(got, tc.prefix), got)
			assert.Contains(t, got, tc.contain)
		})
	}
}

func TestErrorWrapper_Wrap(t *testing.T) {
	t.Parallel()

	ew := yaml.NewErrorWrapper(yaml.WithSource([]byte(rulesDoc)))

	require.NoError(t, ew.Wrap(nil))

	plain := errors.New("plain")
	assert.Same(t, plain, ew.Wrap(plain))

	var yamlErr *yaml.Error

	wrapped := ew.Wrap(yaml.NewError(errors.New("bad")), yaml.WithColor(true))
	require.ErrorAs(t, wrapped, &yamlErr)
	assert.Equal(t, []byte(rulesDoc), yamlErr.Source)
	assert.True(t, yamlErr.Colored)
}

func TestDecoder_Decode(t *testing.T) {
	t.Parallel()

	type rule struct {
		Name      string   `json:"name"`
		Locations []string `json:"locations"`
	}

	var r rule

	err := yaml.NewStrictDecoder(bytes.NewReader([]byte("name: a\nlocations: [b]\n"))).Decode(&r)
	require.NoError(t, err)
	assert.Equal(t, rule{Name: "a", Locations: []string{"b"}}, r)

	err = yaml.NewStrictDecoder(bytes.NewReader([]byte("name: a\nsubfolder: true\n"))).Decode(&r)

	var yamlErr *yaml.Error
	require.ErrorAs(t, err, &yamlErr)
	assert.NotNil(t, yamlErr.Token)
	assert.Contains(t, err.Error(), "[2:1]")

	err = yaml.NewDecoder(bytes.NewReader([]byte("name: a\nsubfolder: true\n"))).Decode(&r)
	require.NoError(t, err)
}
