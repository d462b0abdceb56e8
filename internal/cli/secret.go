package cli

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"pathguard/internal/secrets"
)

// maxSecretBytes bounds a secret read from stdin.
const maxSecretBytes = 64 << 10

// secretStore keeps the fallback secrets file next to the config file.
func (a *app) secretStore() *secrets.Store {
	if a.configPath == "" {
		return secrets.NewStore("")
	}
	return secrets.NewStore(filepath.Join(filepath.Dir(a.configFile()), "secrets.yaml"))
}

func newSecretCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage secrets in the system keyring",
		Long: `Stores named secrets in the system keyring. When no keyring is available
they fall back to an owner-only secrets file next to the config.`,
	}

	cmd.AddCommand(newSecretGetCommand(a))
	cmd.AddCommand(newSecretSetCommand(a))
	cmd.AddCommand(newSecretDeleteCommand(a))
	cmd.AddCommand(newSecretStatusCommand(a))
	return cmd
}

func newSecretGetCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <name>",
		Short: "Print a secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := a.secretStore().Get(args[0])
			if err != nil {
				return err
			}
			if a.jsonOutput {
				return outputJSON(cmd.OutOrStdout(), map[string]string{
					"name":  args[0],
					"value": value,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), value)
			return nil
		},
	}
}

func newSecretSetCommand(a *app) *cobra.Command {
	var value string

	cmd := &cobra.Command{
		Use:   "set <name>",
		Short: "Store a secret",
		Long: `Stores a secret under name. The value comes from --value or, when stdin is
piped, from stdin with the trailing newline removed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("value") {
				if isTerminal(cmd.InOrStdin()) {
					return fmt.Errorf("no value: pass --value or pipe it on stdin")
				}
				data, err := io.ReadAll(io.LimitReader(cmd.InOrStdin(), maxSecretBytes))
				if err != nil {
					return fmt.Errorf("failed to read stdin: %w", err)
				}
				value = strings.TrimRight(string(data), "\r\n")
			}

			store := a.secretStore()
			if err := store.Set(args[0], value); err != nil {
				return err
			}

			if a.jsonOutput {
				return outputJSON(cmd.OutOrStdout(), map[string]interface{}{
					"name":   args[0],
					"stored": true,
				})
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Stored secret %q\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&value, "value", "", "Secret value")
	return cmd
}

func newSecretDeleteCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <name>",
		Aliases: []string{"rm"},
		Short:   "Delete a secret",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.secretStore().Delete(args[0]); err != nil {
				return err
			}
			if a.jsonOutput {
				return outputJSON(cmd.OutOrStdout(), map[string]interface{}{
					"name":    args[0],
					"deleted": true,
				})
			}
			return nil
		},
	}
}

func newSecretStatusCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report whether the system keyring is usable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			status := a.secretStore().Status()

			out := cmd.OutOrStdout()
			if a.jsonOutput {
				return outputJSON(out, status)
			}

			st := newStyles(out)
			if available, _ := status["available"].(bool); available {
				st.field(out, "keyring", st.ok.Render("available"))
			} else {
				st.field(out, "keyring", st.warn.Render("unavailable"))
				if msg, ok := status["error"].(string); ok {
					st.field(out, "error", st.dim.Render(msg))
				}
			}
			st.field(out, "fallback", status["file"])
			return nil
		},
	}
}
