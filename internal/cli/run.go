package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/macropower/shelf/api/v1beta1/configs"
	"github.com/macropower/shelf/pkg/config"
	"github.com/macropower/shelf/pkg/log"
	"github.com/macropower/shelf/pkg/rule"
	"github.com/macropower/shelf/pkg/runner"
)

const (
	cmdExamples = `  # Print the entries matched by every rule:
  shelf

  # Only evaluate some rules:
  shelf --rule "old downloads" --rule "recent screenshots"

  # Evaluate the rules against specific paths:
  shelf run ~/Downloads/report.pdf ~/Desktop/notes.txt

  # Override the output template:
  shelf --output '{dateadded.year}/{name}'

  # Keep watching the rules' locations:
  shelf --watch

  # Write matches as JSON lines:
  shelf --format json | jq .path`
)

type RunArgs struct {
	*RootArgs

	ConfigPath  string
	Output      string
	Format      string
	Rules       []string
	Paths       []string
	Workers     int
	Watch       bool
	WriteConfig bool
	ShowConfig  bool
}

func NewRunArgs(rootArgs *RootArgs) *RunArgs {
	return &RunArgs{
		RootArgs: rootArgs,
	}
}

func (ra *RunArgs) AddFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&ra.ConfigPath, "config", "c", "", "Path to the shelf configuration file")
	cmd.Flags().StringSliceVarP(&ra.Rules, "rule", "r", nil, "Only evaluate the named rules")
	cmd.Flags().StringVarP(&ra.Output, "output", "o", "", "Override the output template of every rule")
	cmd.Flags().StringVarP(&ra.Format, "format", "f", formatText, fmt.Sprintf("Output format, one of: %s", allFormats))
	cmd.Flags().IntVar(&ra.Workers, "workers", 0, "Number of entries evaluated concurrently (default from config)")
	cmd.Flags().BoolVarP(&ra.Watch, "watch", "w", false, "Watch the rules' locations and evaluate changed entries")
	cmd.Flags().BoolVar(&ra.WriteConfig, "write-config", false, "Write the default configuration file and exit")
	cmd.Flags().BoolVar(&ra.ShowConfig, "show-config", false, "Print the active configuration and exit")

	must(cmd.MarkFlagFilename("config", "yaml", "yml"))
	must(cmd.RegisterFlagCompletionFunc("rule", ruleCompletion(ra)))
	must(cmd.RegisterFlagCompletionFunc("format",
		cobra.FixedCompletions(allFormats, cobra.ShellCompDirectiveNoFileComp),
	))
}

func NewRunCmd(ra *RunArgs) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run [path...]",
		Short:   "Default command, evaluates the rules and prints the matches",
		Long:    "Evaluates every rule against the entries in its locations. If paths are given, every rule is evaluated against them instead.",
		Example: cmdExamples,
		Args:    cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ra.Paths = args

			return run(cmd, ra)
		},
	}
	ra.AddFlags(cmd)

	bindEnvVars(cmd)

	return cmd
}

func ruleCompletion(ra *RunArgs) cobra.CompletionFunc {
	return func(*cobra.Command, []string, string) ([]cobra.Completion, cobra.ShellCompDirective) {
		cfg, err := loadConfig(ra.ConfigPath, false)
		if err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}

		completions := make([]cobra.Completion, 0, len(cfg.Rules))
		for _, r := range cfg.Rules {
			if r.Name != "" {
				completions = append(completions, cobra.CompletionWithDesc(r.Name, r.String()))
			}
		}

		return completions, cobra.ShellCompDirectiveNoFileComp
	}
}

// loadConfig reads, validates, and loads the configuration at path, or at
// the default path if empty.
func loadConfig(path string, colored bool) (*configs.Config, error) {
	if path == "" {
		path = configs.GetPath()
	}

	cl, err := config.NewLoaderFromFile(path, configs.New, configs.DefaultValidator,
		config.WithColoredErrors(colored),
	)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	err = cl.Validate()
	if err != nil {
		return nil, fmt.Errorf("invalid config %q: %w", path, err)
	}

	cfg, err := cl.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid config %q: %w", path, err)
	}

	err = cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("invalid config %q: %w", path, err)
	}

	return cfg, nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)

	return ok && term.IsTerminal(int(f.Fd())) //nolint:gosec // G115: Fd fits in int.
}

func run(cmd *cobra.Command, ra *RunArgs) error {
	ctx := cmd.Context()

	configPath := ra.ConfigPath
	if configPath == "" {
		configPath = configs.GetPath()
	}

	err := configs.WriteDefault(configPath, false)
	if err != nil {
		slog.ErrorContext(ctx, "write default config", slog.Any("err", err))
	}

	if ra.WriteConfig {
		// Exit early after writing the default config.
		// Also, if there was an error, it should be fatal.
		return err
	}

	cfg, err := loadConfig(configPath, isTerminal(cmd.ErrOrStderr()))
	if err != nil {
		return err
	}

	if ra.ShowConfig {
		return showConfig(cmd, configPath, cfg)
	}

	p, err := newPrinter(cmd.OutOrStdout(), ra.Format)
	if err != nil {
		return err
	}

	shutdown, err := setupTracing(ctx, ra.TraceEndpoint)
	if err != nil {
		return err
	}

	defer shutdown(context.WithoutCancel(ctx))

	r, err := newRunner(ra, cfg)
	if err != nil {
		return err
	}

	if ra.Watch {
		return watch(ctx, r, p)
	}

	// Hold the logs while results are written to the terminal.
	if p.styled {
		logBuf := log.NewCircularBuffer(100)

		logHandler, err := log.CreateHandlerWithStrings(logBuf, ra.LogLevel, ra.LogFormat)
		if err != nil {
			return fmt.Errorf("create log handler: %w", err)
		}

		prev := slog.Default()
		slog.SetDefault(slog.New(logHandler))

		defer func() {
			slog.SetDefault(prev)
			flushLogs(cmd.ErrOrStderr(), logBuf)
		}()
	}

	var res *runner.Result
	if len(ra.Paths) > 0 {
		res, err = r.RunPaths(ctx, ra.Paths...)
	} else {
		res, err = r.Run(ctx)
	}

	if err != nil {
		return err //nolint:wrapcheck // Includes the run name.
	}

	slog.DebugContext(ctx, "run complete",
		slog.String("run_id", res.RunID),
		slog.Int("matches", len(res.Matches)),
	)

	return p.Result(res)
}

func newRunner(ra *RunArgs, cfg *configs.Config) (*runner.Runner, error) {
	if ra.Output != "" {
		for _, r := range cfg.Rules {
			r.Output = ra.Output
		}
	}

	reg, err := cfg.NewRegistry()
	if err != nil {
		return nil, fmt.Errorf("create filters: %w", err)
	}

	rules, err := cfg.BuildRules(reg, ra.Rules...)
	if err != nil {
		return nil, err //nolint:wrapcheck // Includes the rule name.
	}

	workers := cfg.Workers
	if ra.Workers > 0 {
		workers = ra.Workers
	}

	r, err := runner.New(rules,
		runner.WithWorkers(workers),
		runner.WithWatchEvents(cfg.Watch.Events),
	)
	if err != nil {
		return nil, fmt.Errorf("create runner: %w", err)
	}

	return r, nil
}

func watch(ctx context.Context, r *runner.Runner, p *printer) error {
	res, err := r.Run(ctx)
	if err != nil {
		return err //nolint:wrapcheck // Includes the run name.
	}

	err = p.Result(res)
	if err != nil {
		return err
	}

	w, err := r.Watch(ctx)
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}

	defer func() {
		err := w.Close()
		if err != nil {
			slog.ErrorContext(ctx, "close watcher", slog.Any("err", err))
		}
	}()

	slog.InfoContext(ctx, "watching for changes", slog.Int("rules", len(r.Rules())))

	return w.Run(ctx, func(m *rule.Match) { //nolint:wrapcheck // Return the original error.
		err := p.Match(m)
		if err != nil {
			slog.ErrorContext(ctx, "print match", slog.Any("err", err))
		}
	})
}

func showConfig(cmd *cobra.Command, configPath string, cfg *configs.Config) error {
	slog.InfoContext(cmd.Context(), "active configuration", slog.String("path", configPath))

	b, err := cfg.MarshalYAML()
	if err != nil {
		return fmt.Errorf("marshal config yaml: %w", err)
	}

	w := cmd.OutOrStdout()
	if !isTerminal(w) {
		_, err = w.Write(b)
		if err != nil {
			return fmt.Errorf("write config: %w", err)
		}

		return nil
	}

	err = quick.Highlight(w, string(b), "yaml", "terminal256", "onedark")
	if err != nil {
		return fmt.Errorf("highlight config: %w", err)
	}

	return nil
}

func flushLogs(w io.Writer, buf *log.CircularBuffer) {
	slog.Debug("flush logs to console",
		slog.Int("count", buf.Size()),
		slog.Int("max", buf.Capacity()),
		slog.Bool("truncated", buf.IsFull()),
	)

	_, err := buf.WriteTo(w)
	if err != nil {
		panic(err)
	}
}
