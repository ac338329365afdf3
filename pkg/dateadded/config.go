package dateadded

import (
	"fmt"
	"os"
	"time"

	"github.com/macropower/shelf/pkg/execs"
	"github.com/macropower/shelf/pkg/filter"
)

// ErrInvalidConfig is returned for an invalid [Config]. It wraps
// [filter.ErrInvalidConfiguration].
var ErrInvalidConfig = fmt.Errorf("%w: native", filter.ErrInvalidConfiguration)

// Config configures the native "date added" query.
type Config struct {
	// Command is the query command line. The path is appended to its
	// arguments, and it must print a single [MdlsLayout] timestamp.
	// When empty, the platform default is used.
	Command string `json:"command,omitempty" jsonschema:"title=Command,example=mdls -name kMDItemDateAdded -raw"`
	// Timeout bounds each query, as a Go duration string.
	Timeout string `json:"timeout,omitempty" jsonschema:"title=Timeout,default=5s"`
	// Disabled skips the native query, so only modification times are used.
	Disabled bool `json:"disabled,omitempty" jsonschema:"title=Disabled"`
}

// NewConfig creates a new [Config] with default values.
func NewConfig() *Config {
	c := &Config{}
	c.EnsureDefaults()

	return c
}

// EnsureDefaults sets default values for empty fields.
func (c *Config) EnsureDefaults() {
	if c.Timeout == "" {
		c.Timeout = DefaultTimeout.String()
	}
}

// Validate returns an error if the command line or timeout cannot be parsed.
func (c *Config) Validate() error {
	_, err := c.timeout()
	if err != nil {
		return err
	}

	_, err = c.command()

	return err
}

// NewResolver creates a [Resolver] from the [Config].
func (c *Config) NewResolver() (*Resolver, error) {
	timeout, err := c.timeout()
	if err != nil {
		return nil, err
	}

	if c.Disabled {
		return NewResolver(WithNativeReader(NopReader{}), WithTimeout(timeout)), nil
	}

	cmd, err := c.command()
	if err != nil {
		return nil, err
	}

	var nr NativeReader
	if cmd == nil {
		nr = DefaultReader()
	} else {
		nr = NewMdlsReader(WithCommand(*cmd))
	}

	return NewResolver(WithNativeReader(nr), WithTimeout(timeout)), nil
}

func (c *Config) timeout() (time.Duration, error) {
	if c.Timeout == "" {
		return DefaultTimeout, nil
	}

	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 0, fmt.Errorf("%w: timeout: %w", ErrInvalidConfig, err)
	}

	if d < 0 {
		return 0, fmt.Errorf("%w: timeout: must not be negative", ErrInvalidConfig)
	}

	return d, nil
}

func (c *Config) command() (*execs.Command, error) {
	if c.Command == "" {
		return nil, nil //nolint:nilnil // Use the platform default.
	}

	cmd, err := execs.ParseCommand(os.Environ(), c.Command)
	if err != nil {
		return nil, fmt.Errorf("%w: command: %w", ErrInvalidConfig, err)
	}

	return &cmd, nil
}
