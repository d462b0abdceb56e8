package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newVersionCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.jsonOutput {
				return outputJSON(cmd.OutOrStdout(), map[string]string{
					"version": Version,
					"commit":  Commit,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pathguard version %s\n", GetVersion())
			return nil
		},
	}
}
