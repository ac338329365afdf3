// Package template renders output strings containing `{expression}`
// placeholders.
//
// Each placeholder is a CEL expression evaluated against the rule context,
// e.g. `{dateadded.year}` or `{pathStem(path)}`. A trailing `:N` pads the
// value to N characters with spaces, and `:0N` pads it with zeros, e.g.
// `{dateadded.month:02}`. A suffix that completes a conditional, as in
// `{is_dir ? 1 : 2}`, is part of the expression; wrap the conditional in
// parentheses to pad it. Literal braces are written as `{{` and `}}`.
package template

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"

	"github.com/macropower/shelf/pkg/expr"
)

var (
	// ErrSyntax is returned for malformed templates.
	ErrSyntax = errors.New("template syntax error")

	widthRe = regexp.MustCompile(`:(0?)([1-9]\d*)$`)
)

// Template is a parsed template. It is safe for concurrent use.
type Template struct {
	src   string
	parts []part
}

type part struct {
	program    *expr.LazyProgram
	literal    string
	width      int
	zeroPadded bool
}

// Parse parses src and compiles its placeholders in env.
func Parse(src string, env *expr.Environment) (*Template, error) {
	t := &Template{src: src}

	var lit strings.Builder

	flush := func() {
		if lit.Len() > 0 {
			t.parts = append(t.parts, part{literal: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(src); i++ {
		c := src[i]

		switch {
		case c == '{' && i+1 < len(src) && src[i+1] == '{':
			lit.WriteByte('{')
			i++

		case c == '}' && i+1 < len(src) && src[i+1] == '}':
			lit.WriteByte('}')
			i++

		case c == '}':
			return nil, fmt.Errorf("%w: unexpected '}' at offset %d", ErrSyntax, i)

		case c == '{':
			end, err := closingBrace(src, i+1)
			if err != nil {
				return nil, err
			}

			p, err := parsePlaceholder(src[i+1:end], env)
			if err != nil {
				return nil, err
			}

			flush()
			t.parts = append(t.parts, p)
			i = end

		default:
			lit.WriteByte(c)
		}
	}

	flush()

	return t, nil
}

// MustParse is like [Parse] but panics on error.
func MustParse(src string, env *expr.Environment) *Template {
	t, err := Parse(src, env)
	if err != nil {
		panic(err)
	}

	return t
}

// Render evaluates the placeholders with vars and returns the result.
func (t *Template) Render(vars map[string]any) (string, error) {
	var sb strings.Builder

	for _, p := range t.parts {
		if p.program == nil {
			sb.WriteString(p.literal)

			continue
		}

		program, err := p.program.Get()
		if err != nil {
			return "", err //nolint:wrapcheck // Already includes the expression.
		}

		val, err := expr.Eval(program, vars)
		if err != nil {
			return "", fmt.Errorf("{%s}: %w", p.program.Expression(), err)
		}

		sb.WriteString(format(val, p.width, p.zeroPadded))
	}

	return sb.String(), nil
}

func (t *Template) String() string {
	return t.src
}

func parsePlaceholder(body string, env *expr.Environment) (part, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return part{}, fmt.Errorf("%w: empty placeholder", ErrSyntax)
	}

	m := widthRe.FindStringSubmatchIndex(body)
	if m == nil {
		return compilePlaceholder(body, env)
	}

	width, err := strconv.Atoi(body[m[4]:m[5]])
	if err != nil {
		return part{}, fmt.Errorf("%w: width in {%s}: %w", ErrSyntax, body, err)
	}

	expression := strings.TrimSpace(body[:m[0]])
	if expression == "" {
		return part{}, fmt.Errorf("%w: empty placeholder", ErrSyntax)
	}

	p, err := compilePlaceholder(expression, env)
	if err != nil {
		// The suffix may belong to the expression, as in `{a ? 1 : 2}`.
		whole, wholeErr := compilePlaceholder(body, env)
		if wholeErr != nil {
			return part{}, err
		}

		return whole, nil
	}

	p.width = width
	p.zeroPadded = m[3] > m[2]

	return p, nil
}

func compilePlaceholder(body string, env *expr.Environment) (part, error) {
	p := part{program: expr.NewLazyProgram(body, env)}

	_, err := p.program.Get()
	if err != nil {
		return part{}, fmt.Errorf("placeholder: %w", err)
	}

	return p, nil
}

// closingBrace returns the index of the '}' closing a placeholder that
// starts at i, skipping nested braces and quoted strings.
func closingBrace(src string, i int) (int, error) {
	depth := 0

	var quote byte

	for ; i < len(src); i++ {
		c := src[i]

		if quote != 0 {
			switch c {
			case '\\':
				i++
			case quote:
				quote = 0
			}

			continue
		}

		switch c {
		case '"', '\'':
			quote = c
		case '{':
			depth++
		case '}':
			if depth == 0 {
				return i, nil
			}

			depth--
		}
	}

	return 0, fmt.Errorf("%w: unclosed '{'", ErrSyntax)
}

func format(val ref.Val, width int, zeroPadded bool) string {
	if n, ok := val.(types.Int); ok && zeroPadded {
		return fmt.Sprintf("%0*d", width, int64(n))
	}

	s := stringify(val)

	pad := width - utf8.RuneCountInString(s)
	if pad <= 0 {
		return s
	}

	if zeroPadded {
		return strings.Repeat("0", pad) + s
	}

	return strings.Repeat(" ", pad) + s
}

func stringify(val ref.Val) string {
	switch v := val.(type) {
	case types.String:
		return string(v)
	case types.Int:
		return strconv.FormatInt(int64(v), 10)
	case types.Uint:
		return strconv.FormatUint(uint64(v), 10)
	case types.Double:
		return strconv.FormatFloat(float64(v), 'f', -1, 64)
	case types.Bool:
		return strconv.FormatBool(bool(v))
	case types.Timestamp:
		return v.Format(time.RFC3339)
	case types.Null:
		return ""
	}

	return fmt.Sprint(val.Value())
}
