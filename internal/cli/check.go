package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/macropower/shelf/api/v1beta1/configs"
)

type CheckArgs struct {
	*RootArgs

	ConfigPath string
}

func NewCheckArgs(rootArgs *RootArgs) *CheckArgs {
	return &CheckArgs{
		RootArgs: rootArgs,
	}
}

func NewCheckCmd(ca *CheckArgs) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration and list its rules",
		Long:  "Validates the configuration file, builds every rule, and prints each rule with its filters.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return check(cmd, ca)
		},
	}

	cmd.Flags().StringVarP(&ca.ConfigPath, "config", "c", "", "Path to the shelf configuration file")
	must(cmd.MarkFlagFilename("config", "yaml", "yml"))

	bindEnvVars(cmd)

	return cmd
}

func check(cmd *cobra.Command, ca *CheckArgs) error {
	configPath := ca.ConfigPath
	if configPath == "" {
		configPath = configs.GetPath()
	}

	w := cmd.OutOrStdout()
	styled := isTerminal(w)

	cfg, err := loadConfig(configPath, isTerminal(cmd.ErrOrStderr()))
	if err != nil {
		return err
	}

	reg, err := cfg.NewRegistry()
	if err != nil {
		return fmt.Errorf("create filters: %w", err)
	}

	rules, err := cfg.BuildRules(reg)
	if err != nil {
		return err //nolint:wrapcheck // Includes the rule name.
	}

	var sb strings.Builder
	for _, r := range rules {
		name := r.Name
		if styled {
			name = ruleStyle.Render(name)
		}

		fmt.Fprintf(&sb, "%s\n", name)
		fmt.Fprintf(&sb, "  locations: %s\n", strings.Join(r.Locations, ", "))

		for _, desc := range r.FilterDescriptions() {
			fmt.Fprintf(&sb, "  - %s\n", desc)
		}
	}

	summary := fmt.Sprintf("%s: %d %s ok", configPath, len(rules), plural(len(rules), "rule", "rules"))
	if styled {
		summary = summaryStyle.Render(summary)
	}

	sb.WriteString(summary)

	out := sb.String()
	if styled {
		out = lipgloss.NewStyle().PaddingLeft(1).Render(out)
	}

	_, err = fmt.Fprintln(w, out)
	if err != nil {
		return fmt.Errorf("write rules: %w", err)
	}

	return nil
}
