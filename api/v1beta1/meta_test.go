package v1beta1_test

import (
	"testing"

	"github.com/invopop/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macropower/shelf/api/v1beta1"
)

func TestTypeMeta_Check(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		tm      v1beta1.TypeMeta
		wantErr bool
	}{
		"valid": {
			tm: v1beta1.TypeMeta{APIVersion: v1beta1.APIVersion, Kind: "Configuration"},
		},
		"unknown api version": {
			tm:      v1beta1.TypeMeta{APIVersion: "shelf.macropower.dev/v1", Kind: "Configuration"},
			wantErr: true,
		},
		"unknown kind": {
			tm:      v1beta1.TypeMeta{APIVersion: v1beta1.APIVersion, Kind: "Policy"},
			wantErr: true,
		},
		"empty": {
			wantErr: true,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			err := tc.tm.Check("Configuration")
			if tc.wantErr {
				require.ErrorIs(t, err, v1beta1.ErrTypeMeta)
			} else {
				require.NoError(t, err)
			}

			assert.Equal(t, tc.tm.APIVersion, tc.tm.GetAPIVersion())
			assert.Equal(t, tc.tm.Kind, tc.tm.GetKind())
		})
	}
}

func TestExtendSchemaWithEnums(t *testing.T) {
	t.Parallel()

	jss := (&jsonschema.Reflector{DoNotReference: true}).Reflect(&v1beta1.TypeMeta{})

	v1beta1.ExtendSchemaWithEnums(jss, v1beta1.ValidAPIVersions, []string{"Configuration", "Other"})

	apiVersion, ok := jss.Properties.Get("apiVersion")
	require.True(t, ok)
	assert.Equal(t, []any{v1beta1.APIVersion}, apiVersion.Enum)

	kind, ok := jss.Properties.Get("kind")
	require.True(t, ok)
	assert.Equal(t, []any{"Configuration", "Other"}, kind.Enum)

	assert.Panics(t, func() {
		v1beta1.ExtendSchemaWithEnums(&jsonschema.Schema{Properties: jsonschema.NewProperties()}, nil, nil)
	})
}
