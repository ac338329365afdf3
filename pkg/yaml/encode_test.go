package yaml_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macropower/shelf/pkg/yaml"
)

func TestMarshal(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		in   any
		want string
	}{
		"indented sequence": {
			in:   map[string]any{"locations": []string{"Downloads", "Desktop"}},
			want: "locations:\n  - Downloads\n  - Desktop\n",
		},
		"nested mapping": {
			in:   map[string]any{"lastmodified": map[string]any{"days": 10}},
			want: "lastmodified:\n  days: 10\n",
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got, err := yaml.Marshal(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, string(got))
		})
	}
}
