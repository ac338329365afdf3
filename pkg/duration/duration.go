// Package duration provides a calendar-aware span of time.
//
// Unlike [time.Duration], a [Duration] keeps years and months as calendar
// units. Adding one month to January 31st lands on the last day of February,
// and adding one year to February 29th lands on February 28th of the
// following year.
package duration

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Duration is a span made of calendar and clock components.
//
// The zero value is the null duration, see [Duration.IsZero].
type Duration struct {
	// Years is the number of calendar years.
	Years int `json:"years,omitempty" jsonschema:"title=Years"`
	// Months is the number of calendar months.
	Months int `json:"months,omitempty" jsonschema:"title=Months"`
	// Weeks is the number of weeks, seven wall-clock days each.
	Weeks float64 `json:"weeks,omitempty" jsonschema:"title=Weeks"`
	// Days is the number of wall-clock days.
	Days float64 `json:"days,omitempty" jsonschema:"title=Days"`
	// Hours is the number of elapsed hours.
	Hours float64 `json:"hours,omitempty" jsonschema:"title=Hours"`
	// Minutes is the number of elapsed minutes.
	Minutes float64 `json:"minutes,omitempty" jsonschema:"title=Minutes"`
	// Seconds is the number of elapsed seconds.
	Seconds float64 `json:"seconds,omitempty" jsonschema:"title=Seconds"`
}

// IsZero reports whether every component is exactly zero.
func (d Duration) IsZero() bool {
	return d == Duration{}
}

// AddTo returns t shifted by d.
//
// Years and months are applied first on the wall clock of t's location,
// clamping the day to the end of the target month. Whole days (including
// weeks) are then applied on the wall clock. Whatever remains (fractional
// days, hours, minutes and seconds) is applied as elapsed time.
func (d Duration) AddTo(t time.Time) time.Time {
	t = addMonths(t, d.Years*12+d.Months)

	wholeDays, fracDays := math.Modf(d.Weeks*7 + d.Days)
	if wholeDays != 0 {
		t = t.AddDate(0, 0, int(clamp(wholeDays, maxDays)))
	}

	elapsed := fracDays*secondsPerDay +
		d.Hours*secondsPerHour +
		d.Minutes*secondsPerMinute +
		d.Seconds

	return addSeconds(t, elapsed)
}

const (
	secondsPerMinute = 60
	secondsPerHour   = 60 * secondsPerMinute
	secondsPerDay    = 24 * secondsPerHour

	// Components are clamped to these bounds, far beyond any file's age,
	// so the arithmetic below stays within int64.
	maxDays    = 1 << 31
	maxSeconds = 1 << 53
)

// addSeconds adds an elapsed number of seconds to t. Unlike [time.Time.Add],
// it does not overflow past about 292 years.
func addSeconds(t time.Time, seconds float64) time.Time {
	if seconds == 0 || math.IsNaN(seconds) {
		return t
	}

	whole, frac := math.Modf(clamp(seconds, maxSeconds))

	return time.Unix(
		t.Unix()+int64(whole),
		int64(t.Nanosecond())+int64(math.Round(frac*float64(time.Second))),
	).In(t.Location())
}

func clamp(v, limit float64) float64 {
	return max(-limit, min(v, limit))
}

// String returns the duration in words, e.g. "1 year 2 months 10 days".
func (d Duration) String() string {
	parts := []string{}
	parts = appendUnit(parts, float64(d.Years), "year")
	parts = appendUnit(parts, float64(d.Months), "month")
	parts = appendUnit(parts, d.Weeks, "week")
	parts = appendUnit(parts, d.Days, "day")
	parts = appendUnit(parts, d.Hours, "hour")
	parts = appendUnit(parts, d.Minutes, "minute")
	parts = appendUnit(parts, d.Seconds, "second")

	if len(parts) == 0 {
		return "0 seconds"
	}

	return strings.Join(parts, " ")
}

func appendUnit(parts []string, v float64, unit string) []string {
	if v == 0 {
		return parts
	}

	n := strconv.FormatFloat(v, 'f', -1, 64)
	if v != 1 && v != -1 {
		unit += "s"
	}

	return append(parts, fmt.Sprintf("%s %s", n, unit))
}

// addMonths moves t by n calendar months, keeping the clock and clamping the
// day of month.
func addMonths(t time.Time, n int) time.Time {
	if n == 0 {
		return t
	}

	year, month, day := t.Date()

	idx := int(month) - 1 + n
	year += floorDiv(idx, 12)
	month = time.Month(idx-floorDiv(idx, 12)*12) + 1

	day = min(day, daysIn(year, month))

	hour, minute, sec := t.Clock()

	return time.Date(year, month, day, hour, minute, sec, t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}

	return q
}
