package filter

import (
	"errors"
	"fmt"

	"github.com/goccy/go-yaml"
	"github.com/invopop/jsonschema"
)

var errInvalidSpec = errors.New("filter must be a name or a mapping with exactly one key")

// Spec is the configuration form of a filter. In YAML it is either a bare
// name:
//
//	- dateadded
//
// or a single-key mapping from the name to the filter's options:
//
//	- dateadded:
//	    days: 10
//	    mode: newer
type Spec struct {
	// Name is the registered filter name.
	Name string
	// Options holds the YAML-encoded options, or nil.
	Options []byte
}

// UnmarshalYAML implements [yaml.BytesUnmarshaler].
func (s *Spec) UnmarshalYAML(b []byte) error {
	var raw any

	err := yaml.Unmarshal(b, &raw)
	if err != nil {
		return fmt.Errorf("decode filter: %w", err)
	}

	switch v := raw.(type) {
	case string:
		s.Name = v
		s.Options = nil

	case map[string]any:
		if len(v) != 1 {
			return errInvalidSpec
		}

		for name, opts := range v {
			s.Name = name
			s.Options = nil

			if opts == nil {
				continue
			}

			s.Options, err = yaml.Marshal(opts)
			if err != nil {
				return fmt.Errorf("encode %s options: %w", name, err)
			}
		}

	default:
		return errInvalidSpec
	}

	return nil
}

// MarshalYAML implements [yaml.BytesMarshaler].
func (s Spec) MarshalYAML() ([]byte, error) {
	if len(s.Options) == 0 {
		return yaml.Marshal(s.Name) //nolint:wrapcheck // Return the original error.
	}

	var opts any

	err := yaml.Unmarshal(s.Options, &opts)
	if err != nil {
		return nil, fmt.Errorf("decode %s options: %w", s.Name, err)
	}

	return yaml.Marshal(map[string]any{s.Name: opts}) //nolint:wrapcheck // Return the original error.
}

// JSONSchema implements [jsonschema.JSONSchema] for configuration validation.
func (Spec) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Title: "Filter",
		OneOf: []*jsonschema.Schema{
			{
				Type:        "string",
				Description: "Filter name, using the default options.",
			},
			{
				Type:          "object",
				Description:   "Filter name mapped to its options.",
				MinProperties: ptr(uint64(1)),
				MaxProperties: ptr(uint64(1)),
			},
		},
	}
}

func ptr[T any](v T) *T {
	return &v
}
