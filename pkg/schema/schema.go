// Package schema generates JSON schemas for configuration types.
package schema

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// Generator creates JSON schemas from Go types.
// Uses [github.com/invopop/jsonschema].
type Generator struct {
	reflector *jsonschema.Reflector
	v         any
	id        string
}

// NewGenerator creates a [Generator] for v, identified by id.
func NewGenerator(id string, v any) *Generator {
	return &Generator{
		v:  v,
		id: id,
		reflector: &jsonschema.Reflector{
			// Optional fields use omitempty, everything else is required.
			RequiredFromJSONSchemaTags: false,
			DoNotReference:             true,
			ExpandedStruct:             true,
		},
	}
}

// Schema returns the reflected [jsonschema.Schema].
func (g *Generator) Schema() *jsonschema.Schema {
	jss := g.reflector.Reflect(g.v)
	jss.ID = jsonschema.ID(g.id)

	return jss
}

// Generate returns the indented JSON schema.
func (g *Generator) Generate() ([]byte, error) {
	b, err := json.MarshalIndent(g.Schema(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}

	return b, nil
}
