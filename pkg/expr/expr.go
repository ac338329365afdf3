package expr

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types/ref"
)

// Protect CEL environment creation and compilation from concurrent access.
var celMutex sync.Mutex

// ErrNotBool is returned when an expression that must be a condition
// evaluates to a non-boolean value.
var ErrNotBool = errors.New("expression did not return a boolean value")

// Environment provides a thread-safe wrapper around a [*cel.Env].
type Environment struct {
	env *cel.Env
}

// NewEnvironment creates a new [Environment].
func NewEnvironment(opts ...cel.EnvOption) (*Environment, error) {
	env, err := createEnvironment(opts...)
	if err != nil {
		return nil, err
	}

	return &Environment{env: env}, nil
}

// MustNewEnvironment creates a new [Environment] and panics on error.
func MustNewEnvironment(opts ...cel.EnvOption) *Environment {
	env, err := NewEnvironment(opts...)
	if err != nil {
		panic(err)
	}

	return env
}

// createEnvironment creates the [*cel.Env] using the global mutex.
func createEnvironment(opts ...cel.EnvOption) (*cel.Env, error) {
	celMutex.Lock()
	defer celMutex.Unlock()

	opts = append(opts, cel.Lib(&lib{}))

	celEnv, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}

	return celEnv, nil
}

// Compile compiles a CEL expression and returns a program.
//
//nolint:ireturn // Following CEL's function signature.
func (e *Environment) Compile(expression string) (cel.Program, error) {
	celMutex.Lock()
	defer celMutex.Unlock()

	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile expression: %w", issues.Err())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("create program: %w", err)
	}

	return program, nil
}

// Eval evaluates a program, converting each variable with [ConvertToCELValue].
//
//nolint:ireturn // Following CEL's function signature.
func Eval(program cel.Program, vars map[string]any) (ref.Val, error) {
	activation := make(map[string]any, len(vars))
	for k, v := range vars {
		activation[k] = ConvertToCELValue(v)
	}

	result, _, err := program.Eval(activation)
	if err != nil {
		return nil, fmt.Errorf("evaluate expression: %w", err)
	}

	return result, nil
}

// EvalBool evaluates a program that must return a boolean.
func EvalBool(program cel.Program, vars map[string]any) (bool, error) {
	result, err := Eval(program, vars)
	if err != nil {
		return false, err
	}

	b, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("%w: got %s", ErrNotBool, result.Type().TypeName())
	}

	return b, nil
}

// LazyProgram compiles an expression at most once, on first use, even when
// accessed concurrently.
type LazyProgram struct {
	err        error
	program    cel.Program
	env        *Environment
	expression string
	once       sync.Once
}

// NewLazyProgram creates a new [LazyProgram] that compiles expression in env
// when [LazyProgram.Get] is first called.
func NewLazyProgram(expression string, env *Environment) *LazyProgram {
	return &LazyProgram{
		expression: expression,
		env:        env,
	}
}

// Get returns the compiled program, compiling it on the first call.
// Subsequent calls return the cached result.
//
//nolint:ireturn // Following CEL's function signature.
func (lp *LazyProgram) Get() (cel.Program, error) {
	lp.once.Do(func() {
		lp.program, lp.err = lp.env.Compile(lp.expression)
		if lp.err != nil {
			lp.err = fmt.Errorf("%q: %w", lp.expression, lp.err)
		}
	})

	return lp.program, lp.err
}

// Expression returns the source expression.
func (lp *LazyProgram) Expression() string {
	return lp.expression
}
