package execs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os/exec"
	"slices"
	"strings"
	"time"

	"github.com/mattn/go-shellwords"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/macropower/shelf/pkg/log"
)

var (
	// ErrCommandExecution is returned when command execution fails.
	ErrCommandExecution = errors.New("run")

	// ErrEmptyCommand is returned when a command is empty.
	ErrEmptyCommand = errors.New("empty command")

	essentialVars = []string{"PATH", "HOME", "USER", "LANG", "LC_ALL", "TMPDIR"}
)

// Result represents the result of a command execution.
type Result struct {
	Stdout string
	Stderr string
}

// EnvVar represents an environment variable definition.
type EnvVar struct {
	// Name is the environment variable name.
	Name string `json:"name" jsonschema:"title=Name"`
	// Value is the environment variable value.
	Value string `json:"value,omitempty" jsonschema:"title=Value"`
}

// Command describes an external command.
type Command struct {
	baseEnv map[string]string
	// Command is the command to execute.
	Command string `json:"command" jsonschema:"title=Command,pattern=^\\S+$"`
	// Args contains the command line arguments.
	Args []string `json:"args,omitempty" jsonschema:"title=Arguments" yaml:"args,flow,omitempty"`
	// Env contains environment variable definitions.
	Env []EnvVar `json:"env,omitempty" jsonschema:"title=Environment Variables"`
}

// NewCommand creates a new [Command].
// It accepts a base environment, which usually will be from [os.Environ].
func NewCommand(baseEnv []string, name string, args ...string) Command {
	c := Command{
		Command: name,
		Args:    args,
	}
	c.SetBaseEnv(baseEnv)

	return c
}

// ParseCommand splits a shell-style command line into a [Command].
func ParseCommand(baseEnv []string, line string) (Command, error) {
	words, err := shellwords.Parse(line)
	if err != nil {
		return Command{}, fmt.Errorf("parse command %q: %w", line, err)
	}
	if len(words) == 0 {
		return Command{}, ErrEmptyCommand
	}

	return NewCommand(baseEnv, words[0], words[1:]...), nil
}

// SetBaseEnv replaces the environment that essential variables are taken from.
func (c *Command) SetBaseEnv(baseEnv []string) {
	c.baseEnv = make(map[string]string)
	for _, envVar := range baseEnv {
		key, value, ok := strings.Cut(envVar, "=")
		if ok {
			c.baseEnv[key] = value
		}
	}
}

// GetEnv constructs environment variables for command execution.
// Only essential variables are inherited from the base environment; the
// command's own [EnvVar]s take precedence.
func (c *Command) GetEnv() []string {
	envMap := make(map[string]string)

	for key, value := range c.baseEnv {
		if slices.Contains(essentialVars, key) {
			envMap[key] = value
		}
	}

	for _, envVar := range c.Env {
		if envVar.Name == "" {
			continue
		}

		envMap[envVar.Name] = envVar.Value
	}

	env := make([]string, 0, len(envMap))
	for _, key := range slices.Sorted(maps.Keys(envMap)) {
		env = append(env, fmt.Sprintf("%s=%s", key, envMap[key]))
	}

	return env
}

// WithArgs returns a copy of the command with extra arguments appended.
func (c Command) WithArgs(args ...string) Command {
	c.Args = append(slices.Clone(c.Args), args...)

	return c
}

func (c Command) String() string {
	return strings.TrimSpace(fmt.Sprintf("%s %s", c.Command, strings.Join(c.Args, " ")))
}

// Executor runs a [Command].
type Executor struct {
	tracer trace.Tracer
	cmd    Command
}

// NewExecutor creates a new [Executor].
func NewExecutor(cmd Command) Executor {
	return Executor{
		tracer: otel.Tracer("executor"),
		cmd:    cmd,
	}
}

// Exec runs the command in dir and waits for it to finish.
// A non-zero exit status is reported as [ErrCommandExecution], together with
// any output that was produced.
func (e Executor) Exec(ctx context.Context, dir string) (*Result, error) {
	ctx, span := e.tracer.Start(ctx, "exec", trace.WithAttributes(
		attribute.String("command", e.cmd.String()),
		attribute.String("path", dir),
	))
	defer span.End()

	if e.cmd.Command == "" {
		return nil, ErrEmptyCommand
	}

	logger := log.WithContext(ctx).With(
		slog.String("command", e.cmd.String()),
	)

	start := time.Now()

	//nolint:gosec // G204: Subprocess launched with a potential tainted input or cmd arguments.
	cmd := exec.CommandContext(ctx, e.cmd.Command, e.cmd.Args...)
	cmd.Dir = dir
	cmd.Env = e.cmd.GetEnv()

	var stdout, stderr bytes.Buffer

	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := &Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if err != nil {
		logger.DebugContext(ctx, "command failed",
			slog.Duration("duration", time.Since(start)),
			slog.Any("error", err),
		)

		if stdout.Len() > 0 || stderr.Len() > 0 {
			return result, fmt.Errorf("%w: %w", ErrCommandExecution, err)
		}

		return nil, fmt.Errorf("%w: %w", ErrCommandExecution, err)
	}

	logger.DebugContext(ctx, "command executed successfully",
		slog.Duration("duration", time.Since(start)),
	)

	return result, nil
}

func (e Executor) String() string {
	return e.cmd.String()
}
