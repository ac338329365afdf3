package cli_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/charmbracelet/fang"
	"github.com/stretchr/testify/assert"

	"github.com/macropower/shelf/internal/cli"
	"github.com/macropower/shelf/pkg/filter"
	"github.com/macropower/shelf/pkg/rule"
)

func TestErrorHandler(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		err      error
		wantHint string
	}{
		"usage error": {
			err:      errors.New("unknown flag: --nope"),
			wantHint: "--help",
		},
		"unknown filter": {
			err:      fmt.Errorf("rule %q: %w: %q", "old", filter.ErrUnknownFilter, "dateadd"),
			wantHint: "shelf check",
		},
		"invalid filter options": {
			err:      fmt.Errorf("rule %q: %w: mode", "old", filter.ErrInvalidConfiguration),
			wantHint: "shelf check",
		},
		"invalid rule": {
			err:      fmt.Errorf("rule %q: %w", "old", rule.ErrInvalidRule),
			wantHint: "shelf check",
		},
		"other error": {
			err: errors.New("boom"),
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			cli.ErrorHandler(&buf, fang.Styles{}, tc.err)

			assert.Contains(t, buf.String(), tc.err.Error())

			if tc.wantHint == "" {
				assert.NotContains(t, buf.String(), "Try")

				return
			}

			assert.Contains(t, buf.String(), tc.wantHint)
		})
	}
}

func TestErrorHandler_Canceled(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	cli.ErrorHandler(&buf, fang.Styles{}, fmt.Errorf("run: %w", context.Canceled))

	assert.Empty(t, buf.String())
}
