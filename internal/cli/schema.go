package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/macropower/shelf/api/v1beta1/configs"
)

func NewSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON schema of the configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := configs.Schema()
			if err != nil {
				return err //nolint:wrapcheck // Already wrapped.
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(b))
			if err != nil {
				return fmt.Errorf("write schema: %w", err)
			}

			return nil
		},
	}
}
