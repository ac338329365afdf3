package runner

// WatchConfig configures watch mode.
type WatchConfig struct {
	// Events is a CEL expression selecting the filesystem events that
	// trigger an evaluation. It has access to `file` (string) and
	// `fs.event` (int), see the `fs` constants.
	Events string `json:"events,omitempty" jsonschema:"title=Events"`
}

// NewWatchConfig creates a new [WatchConfig] with default values.
func NewWatchConfig() *WatchConfig {
	c := &WatchConfig{}
	c.EnsureDefaults()

	return c
}

// EnsureDefaults sets default values for empty fields.
func (c *WatchConfig) EnsureDefaults() {
	if c.Events == "" {
		c.Events = DefaultWatchEvents
	}
}
