package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/lipgloss"

	"github.com/macropower/shelf/pkg/filter"
	"github.com/macropower/shelf/pkg/rule"
)

// ErrorHandler renders errors returned by commands.
func ErrorHandler(w io.Writer, styles fang.Styles, err error) {
	if errors.Is(err, context.Canceled) {
		// Interrupted, nothing to report.
		return
	}

	mustN(fmt.Fprintln(w, styles.ErrorHeader.String()))
	mustN(fmt.Fprintln(w, lipgloss.NewStyle().MarginLeft(2).Render(err.Error())))
	mustN(fmt.Fprintln(w))

	switch {
	case isUsageError(err):
		printHint(w, styles, styles.Program.Flag.Render("--help"), "for usage.")
	case isConfigError(err):
		printHint(w, styles, styles.Program.Command.Render(cmdName+" check"), "to validate the configuration.")
	}
}

func printHint(w io.Writer, styles fang.Styles, command, text string) {
	mustN(fmt.Fprintln(w, lipgloss.JoinHorizontal(
		lipgloss.Left,
		styles.ErrorText.UnsetWidth().Render("Try"),
		command,
		styles.ErrorText.UnsetWidth().UnsetMargins().UnsetTransform().PaddingLeft(1).Render(text),
	)))
	mustN(fmt.Fprintln(w))
}

func isConfigError(err error) bool {
	return errors.Is(err, rule.ErrInvalidRule) ||
		errors.Is(err, filter.ErrInvalidConfiguration) ||
		errors.Is(err, filter.ErrUnknownFilter)
}

// XXX: this is a hack to detect usage errors.
// See: https://github.com/spf13/cobra/pull/2266
func isUsageError(err error) bool {
	s := err.Error()
	for _, prefix := range []string{
		"flag needs an argument:",
		"unknown flag:",
		"unknown shorthand flag:",
		"unknown command",
		"invalid argument",
		"accepts ",
	} {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}

	return false
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

func mustN(_ int, err error) {
	must(err)
}
