// Package configs provides the Configuration type for shelf.
package configs

import (
	"errors"
	"fmt"
	"slices"

	"github.com/invopop/jsonschema"
	"github.com/sahilm/fuzzy"

	_ "embed"

	"github.com/macropower/shelf/api"
	"github.com/macropower/shelf/api/v1beta1"
	"github.com/macropower/shelf/pkg/dateadded"
	"github.com/macropower/shelf/pkg/filter"
	"github.com/macropower/shelf/pkg/rule"
	"github.com/macropower/shelf/pkg/runner"
	"github.com/macropower/shelf/pkg/schema"
	"github.com/macropower/shelf/pkg/temporal"
	"github.com/macropower/shelf/pkg/yaml"
)

// SchemaID identifies the generated JSON schema.
const SchemaID = "https://shelf.macropower.dev/schemas/configs.v1beta1.json"

var (
	//go:embed config.yaml
	defaultConfigYAML []byte

	// ValidKinds contains the valid kind values for configurations.
	ValidKinds = []string{"Configuration"}

	// DefaultValidator validates configuration against the JSON schema.
	DefaultValidator = yaml.MustNewValidator(SchemaID, MustSchema())

	// ErrUnknownRule is returned when selecting a rule that does not exist.
	ErrUnknownRule = errors.New("unknown rule")

	// ErrDuplicateRule is returned when two rules share a name.
	ErrDuplicateRule = errors.New("duplicate rule name")

	// Compile-time interface checks.
	_ v1beta1.Object = (*Config)(nil)
)

// Config represents the shelf configuration.
//
//nolint:recvcheck // Must satisfy the jsonschema interface.
type Config struct {
	// Native configures the native "date added" query.
	Native *dateadded.Config `json:"native,omitempty" jsonschema:"title=Native Query"`
	// Watch configures watch mode.
	Watch            *runner.WatchConfig `json:"watch,omitempty" jsonschema:"title=Watch"`
	v1beta1.TypeMeta `json:",inline"`
	// Rules are evaluated in order.
	Rules []*rule.Rule `json:"rules" jsonschema:"title=Rules"`
	// Workers is the number of entries evaluated concurrently.
	// 0 uses the number of CPUs.
	Workers int `json:"workers,omitempty" jsonschema:"title=Workers,minimum=0"`
}

// New creates a new [Config] with default values.
func New() *Config {
	c := &Config{
		TypeMeta: v1beta1.TypeMeta{
			APIVersion: v1beta1.APIVersion,
			Kind:       "Configuration",
		},
		Rules: []*rule.Rule{},
	}
	c.EnsureDefaults()

	return c
}

// EnsureDefaults initializes nil fields to their default values.
func (c *Config) EnsureDefaults() {
	if c.Native == nil {
		c.Native = dateadded.NewConfig()
	} else {
		c.Native.EnsureDefaults()
	}

	if c.Watch == nil {
		c.Watch = runner.NewWatchConfig()
	} else {
		c.Watch.EnsureDefaults()
	}
}

// Validate validates the parts of the configuration the JSON schema cannot.
func (c *Config) Validate() error {
	err := c.Check(ValidKinds...)
	if err != nil {
		return err //nolint:wrapcheck // Return the original error.
	}

	if c.Native != nil {
		err := c.Native.Validate()
		if err != nil {
			return fmt.Errorf("validate native config: %w", err)
		}
	}

	seen := map[string]bool{}
	for _, r := range c.Rules {
		if r.Name == "" {
			continue
		}

		if seen[r.Name] {
			return fmt.Errorf("%w: %q", ErrDuplicateRule, r.Name)
		}

		seen[r.Name] = true
	}

	return nil
}

// NewRegistry creates a [filter.Registry] with the temporal filters, using
// the native query configuration.
func (c *Config) NewRegistry(fopts ...temporal.Opt) (*filter.Registry, error) {
	native := c.Native
	if native == nil {
		native = dateadded.NewConfig()
	}

	res, err := native.NewResolver()
	if err != nil {
		return nil, fmt.Errorf("native config: %w", err)
	}

	reg := filter.NewRegistry()
	temporal.Register(reg, res, fopts...)

	return reg, nil
}

// BuildRules builds the rules named in names, or all rules if names is
// empty, in configuration order. Rules without a name are named after
// their position.
func (c *Config) BuildRules(reg *filter.Registry, names ...string) ([]*rule.Rule, error) {
	for i, r := range c.Rules {
		if r.Name == "" {
			r.Name = fmt.Sprintf("rule %d", i+1)
		}
	}

	for _, name := range names {
		if !slices.ContainsFunc(c.Rules, func(r *rule.Rule) bool { return r.Name == name }) {
			return nil, c.unknownRule(name)
		}
	}

	rules := make([]*rule.Rule, 0, len(c.Rules))
	for _, r := range c.Rules {
		if len(names) > 0 && !slices.Contains(names, r.Name) {
			continue
		}

		err := r.Build(reg)
		if err != nil {
			return nil, err //nolint:wrapcheck // Includes the rule name.
		}

		rules = append(rules, r)
	}

	return rules, nil
}

func (c *Config) unknownRule(name string) error {
	names := make([]string, 0, len(c.Rules))
	for _, r := range c.Rules {
		names = append(names, r.Name)
	}

	matches := fuzzy.Find(name, names)
	if len(matches) > 0 {
		return fmt.Errorf("%w %q, did you mean %q?", ErrUnknownRule, name, matches[0].Str)
	}

	return fmt.Errorf("%w %q", ErrUnknownRule, name)
}

func (c Config) JSONSchemaExtend(jss *jsonschema.Schema) {
	v1beta1.ExtendSchemaWithEnums(jss, v1beta1.ValidAPIVersions, ValidKinds)
}

// MarshalYAML serializes the config to YAML.
func (c Config) MarshalYAML() ([]byte, error) {
	type alias Config

	b, err := api.MarshalYAML(alias(c))
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}

	return b, nil
}

// Schema generates the JSON schema for [Config].
func Schema() ([]byte, error) {
	b, err := schema.NewGenerator(SchemaID, New()).Generate()
	if err != nil {
		return nil, fmt.Errorf("generate config schema: %w", err)
	}

	return b, nil
}

// MustSchema is like [Schema], but panics on error.
func MustSchema() []byte {
	b, err := Schema()
	if err != nil {
		panic(err)
	}

	return b
}

// DefaultYAML returns the embedded default config.yaml.
func DefaultYAML() []byte {
	return slices.Clone(defaultConfigYAML)
}

// WriteDefault writes the embedded default config.yaml to the specified path.
func WriteDefault(path string, force bool) error {
	err := api.WriteDefaultFile(path, defaultConfigYAML, force, "configuration")
	if err != nil {
		return fmt.Errorf("write default config: %w", err)
	}

	return nil
}

// GetPath returns the path to the configuration file.
func GetPath() string {
	return api.GetConfigPath("config.yaml")
}
