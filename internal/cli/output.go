package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/dustin/go-humanize"
	"golang.org/x/term"

	"github.com/macropower/shelf/pkg/filter"
	"github.com/macropower/shelf/pkg/rule"
	"github.com/macropower/shelf/pkg/runner"
)

const (
	formatText = "text"
	formatJSON = "json"
)

var allFormats = []string{formatText, formatJSON}

var (
	ruleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "#0CB37F", Dark: "#00FFB2"})
	subtleStyle  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#8E8C99", Dark: "#605F6B"})
	summaryStyle = subtleStyle.Italic(true)
)

// printer writes matches to the command output.
//
// Text output on a terminal is styled and truncated to the terminal width,
// and each match is followed by the age of its first temporal context.
// Otherwise each match is written as its rendered output, one per line.
type printer struct {
	w      io.Writer
	now    func() time.Time
	enc    *json.Encoder
	format string
	width  int
	styled bool
}

func newPrinter(w io.Writer, format string) (*printer, error) {
	if !slices.Contains(allFormats, format) {
		return nil, fmt.Errorf("unknown format %q, expected one of %q", format, allFormats)
	}

	p := &printer{
		w:      w,
		format: format,
		now:    time.Now,
	}

	if format == formatJSON {
		p.enc = json.NewEncoder(w)

		return p, nil
	}

	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) { //nolint:gosec // G115: Fd fits in int.
		p.styled = true

		width, _, err := term.GetSize(int(f.Fd())) //nolint:gosec // G115: Fd fits in int.
		if err == nil {
			p.width = width
		}
	}

	return p, nil
}

type jsonMatch struct {
	Context filter.Context `json:"context"`
	Rule    string         `json:"rule"`
	Path    string         `json:"path"`
	Output  string         `json:"output"`
}

// Match writes a single match.
func (p *printer) Match(m *rule.Match) error {
	if p.enc != nil {
		err := p.enc.Encode(jsonMatch{
			Rule:    m.Rule,
			Path:    m.Entry.Path,
			Output:  m.Output,
			Context: m.Context,
		})
		if err != nil {
			return fmt.Errorf("encode match: %w", err)
		}

		return nil
	}

	line := m.Output
	if p.styled {
		line = ruleStyle.Render(m.Rule) + " " + m.Output
		if t, ok := firstInstant(m.Context); ok {
			line += subtleStyle.Render(" · " + humanize.RelTime(t, p.now(), "ago", "from now"))
		}

		if p.width > 0 {
			line = ansi.Truncate(line, p.width, "…")
		}
	}

	_, err := fmt.Fprintln(p.w, line)
	if err != nil {
		return fmt.Errorf("write match: %w", err)
	}

	return nil
}

// Result writes every match of res, followed by a summary on terminals.
func (p *printer) Result(res *runner.Result) error {
	for _, m := range res.Matches {
		err := p.Match(m)
		if err != nil {
			return err
		}
	}

	if !p.styled {
		return nil
	}

	parts := []string{
		fmt.Sprintf("%s %s", humanize.Comma(int64(len(res.Matches))), plural(len(res.Matches), "match", "matches")),
		fmt.Sprintf("%s evaluated", humanize.Comma(res.Evaluated)),
	}
	if res.Skipped > 0 {
		parts = append(parts, fmt.Sprintf("%s skipped", humanize.Comma(res.Skipped)))
	}
	if res.Failed > 0 {
		parts = append(parts, fmt.Sprintf("%s failed", humanize.Comma(res.Failed)))
	}

	parts = append(parts, "took "+res.Duration.Round(time.Millisecond).String())

	_, err := fmt.Fprintln(p.w, summaryStyle.Render(strings.Join(parts, ", ")))
	if err != nil {
		return fmt.Errorf("write summary: %w", err)
	}

	return nil
}

// firstInstant returns the first [filter.DateTime] in c, by key order.
func firstInstant(c filter.Context) (time.Time, bool) {
	for _, k := range slices.Sorted(maps.Keys(c)) {
		if dt, ok := c[k].(filter.DateTime); ok {
			return dt.Time, true
		}
	}

	return time.Time{}, false
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}

	return many
}
