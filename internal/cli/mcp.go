package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"pathguard/internal/mcp"
)

func newMCPCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve pathguard tools over MCP on stdio",
		Long: `Starts a Model Context Protocol server on stdin/stdout exposing the
path checks and confined file operations as tools. Every tool takes a root
name from the config; paths are always relative to that root.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a.logger.Debug("MCP roots", "roots", cfg.RootNames())
			server := mcp.NewServer(cfg, a.logger, GetVersion())
			return server.Serve(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}
