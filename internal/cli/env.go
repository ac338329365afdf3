package cli

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// bindEnvVars binds environment variables to the command's flags.
// Variable names are SHELF_<FLAG_NAME>, with dashes replaced by underscores,
// e.g. "log-level" is read from SHELF_LOG_LEVEL.
//
// Arguments take precedence over environment variables, which take precedence
// over default values. The variable name is appended to each flag's usage.
func bindEnvVars(cmd *cobra.Command) {
	cmd.Flags().VisitAll(bindFlagToEnv)
	cmd.PersistentFlags().VisitAll(bindFlagToEnv)
}

func bindFlagToEnv(flag *pflag.Flag) {
	envName := flagToEnvName(flag.Name)

	if !strings.Contains(flag.Usage, envName) {
		flag.Usage = fmt.Sprintf("%s ($%s)", flag.Usage, envName)
	}

	if flag.Changed {
		return
	}

	envValue, ok := os.LookupEnv(envName)
	if !ok {
		return
	}

	// Slice flags append on Set, so replace the whole value.
	if sv, ok := flag.Value.(pflag.SliceValue); ok {
		err := sv.Replace(strings.Split(envValue, ","))
		if err != nil {
			logEnvError(flag, envName, envValue, err)
		}

		return
	}

	err := flag.Value.Set(envValue)
	if err != nil {
		logEnvError(flag, envName, envValue, err)
	}
}

// Invalid values are logged, and the default value is used.
func logEnvError(flag *pflag.Flag, envName, envValue string, err error) {
	slog.Error("failed to set flag from environment variable",
		slog.String("flag", flag.Name),
		slog.String("env", envName),
		slog.String("value", envValue),
		slog.Any("error", err),
	)
}

// flagToEnvName converts a flag name to its environment variable name.
func flagToEnvName(flagName string) string {
	return strings.ToUpper(cmdName + "_" + strings.ReplaceAll(flagName, "-", "_"))
}
