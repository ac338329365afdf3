package temporal

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"github.com/macropower/shelf/pkg/duration"
	"github.com/macropower/shelf/pkg/filter"
	"github.com/macropower/shelf/pkg/yaml"
)

// Direction selects which side of the window matches.
type Direction int

const (
	// Older matches instants at least the configured duration in the past.
	Older Direction = iota
	// Newer matches instants less than the configured duration in the past.
	Newer
)

var (
	folder = cases.Fold()

	offsetRe = regexp.MustCompile(`^(?i:utc|gmt)?\s*([+-])(\d{1,2})(?::?(\d{2}))?$`)
)

// ParseDirection parses "older" or "newer", ignoring case and surrounding
// whitespace.
func ParseDirection(s string) (Direction, error) {
	switch folder.String(strings.TrimSpace(s)) {
	case "older":
		return Older, nil
	case "newer":
		return Newer, nil
	}

	return Older, fmt.Errorf("%w: unknown option for 'mode' %q: must be 'older' or 'newer'",
		filter.ErrInvalidConfiguration, s)
}

func (d Direction) String() string {
	if d == Newer {
		return "newer"
	}

	return "older"
}

// ParseLocation parses a timezone. It accepts IANA names such as
// "Europe/Moscow", the words "local" and "UTC", and numeric offsets such as
// "+03:00", "-0500" or "UTC+3". An empty string is the local timezone.
func ParseLocation(s string) (*time.Location, error) {
	s = strings.TrimSpace(s)

	switch strings.ToLower(s) {
	case "", "local":
		return time.Local, nil
	case "utc", "z":
		return time.UTC, nil
	}

	if m := offsetRe.FindStringSubmatch(s); m != nil {
		hours, _ := strconv.Atoi(m[2]) //nolint:errcheck // Matched by the regex.

		minutes := 0
		if m[3] != "" {
			minutes, _ = strconv.Atoi(m[3]) //nolint:errcheck // Matched by the regex.
		}

		if hours > 14 || minutes > 59 {
			return nil, fmt.Errorf("%w: timezone offset %q out of range", filter.ErrInvalidConfiguration, s)
		}

		offset := hours*60*60 + minutes*60
		if m[1] == "-" {
			offset = -offset
		}

		return time.FixedZone(s, offset), nil
	}

	loc, err := time.LoadLocation(s)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone %q: %w", filter.ErrInvalidConfiguration, s, err)
	}

	return loc, nil
}

// Options are the configuration options of a temporal filter.
type Options struct {
	// Mode is either "older" or "newer".
	Mode string `json:"mode,omitempty" jsonschema:"title=Mode,enum=older,enum=newer,default=older"`
	// Timezone used for the exposed date fields. Defaults to the local timezone.
	Timezone string `json:"timezone,omitempty" jsonschema:"title=Timezone"`
	// Years is the number of calendar years.
	Years int `json:"years,omitempty" jsonschema:"title=Years"`
	// Months is the number of calendar months.
	Months int `json:"months,omitempty" jsonschema:"title=Months"`
	// Weeks is the number of weeks.
	Weeks float64 `json:"weeks,omitempty" jsonschema:"title=Weeks"`
	// Days is the number of days.
	Days float64 `json:"days,omitempty" jsonschema:"title=Days"`
	// Hours is the number of hours.
	Hours float64 `json:"hours,omitempty" jsonschema:"title=Hours"`
	// Minutes is the number of minutes.
	Minutes float64 `json:"minutes,omitempty" jsonschema:"title=Minutes"`
	// Seconds is the number of seconds.
	Seconds float64 `json:"seconds,omitempty" jsonschema:"title=Seconds"`
}

// DecodeOptions decodes YAML-encoded [Options]. Unknown keys are rejected.
// Empty input yields the default options.
func DecodeOptions(b []byte) (Options, error) {
	var opts Options
	if len(bytes.TrimSpace(b)) == 0 {
		return opts, nil
	}

	err := yaml.NewStrictDecoder(bytes.NewReader(b)).Decode(&opts)
	if err != nil {
		return Options{}, fmt.Errorf("%w: %w", filter.ErrInvalidConfiguration, err)
	}

	return opts, nil
}

// Duration returns the [duration.Duration] described by the options.
func (o Options) Duration() duration.Duration {
	return duration.Duration{
		Years:   o.Years,
		Months:  o.Months,
		Weeks:   o.Weeks,
		Days:    o.Days,
		Hours:   o.Hours,
		Minutes: o.Minutes,
		Seconds: o.Seconds,
	}
}
