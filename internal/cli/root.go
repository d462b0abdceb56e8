package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"pathguard/internal/config"
	"pathguard/internal/logging"
)

var (
	// Version is set via ldflags during build
	Version = "dev"
	// Commit is set via ldflags during build
	Commit = "unknown"
)

// app carries global flag values and lazily loaded state shared by every
// subcommand of one invocation.
type app struct {
	jsonOutput bool
	configPath string

	logger *logging.AppLogger
	cfg    *config.Config
}

// loadConfig returns the configuration selected by --config, PATHGUARD_CONFIG
// or the XDG default, loading it once.
func (a *app) loadConfig() (*config.Config, error) {
	if a.cfg != nil {
		return a.cfg, nil
	}

	var (
		cfg *config.Config
		err error
	)
	if a.configPath != "" {
		cfg, err = config.LoadFrom(a.configFile())
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	a.cfg = cfg
	return cfg, nil
}

// NewRootCommand creates the root cobra command for pathguard
func NewRootCommand() *cobra.Command {
	a := &app{logger: logging.GetDefault()}
	return newRootCommand(a)
}

func newRootCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pathguard",
		Short: "Path safety checks and confined file operations",
		Long: `pathguard validates untrusted paths and performs file operations that cannot
escape a configured root directory: no traversal, no symlink escapes, atomic
writes and owner-only permissions.

It provides both CLI and MCP server interfaces for human and AI agent use.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVar(&a.jsonOutput, "json", false, "Output in JSON format")
	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "Config file (default: $XDG_CONFIG_HOME/pathguard/config.yaml)")

	cmd.AddCommand(newCheckCommand(a))
	cmd.AddCommand(newNormalizeCommand(a))
	cmd.AddCommand(newSanitizeCommand(a))
	cmd.AddCommand(newResolveCommand(a))
	cmd.AddCommand(newReadCommand(a))
	cmd.AddCommand(newWriteCommand(a))
	cmd.AddCommand(newMkdirCommand(a))
	cmd.AddCommand(newRemoveCommand(a))
	cmd.AddCommand(newImportCommand(a))
	cmd.AddCommand(newPermsCommand(a))
	cmd.AddCommand(newRealpathCommand(a))
	cmd.AddCommand(newAuditCommand(a))
	cmd.AddCommand(newRootsCommand(a))
	cmd.AddCommand(newInitCommand(a))
	cmd.AddCommand(newSecretCommand(a))
	cmd.AddCommand(newMCPCommand(a))
	cmd.AddCommand(newVersionCommand(a))

	return cmd
}

// Run executes the command line in args and returns the process exit code.
func Run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	a := &app{logger: logging.GetDefault()}
	cmd := newRootCommand(a)
	cmd.SetArgs(args)
	cmd.SetIn(stdin)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.Execute()
	if err != nil {
		a.logger.Debug("Command failed", "args", args, "error", err)
		printError(stderr, a.jsonOutput, err)
	}
	return getExitCode(err)
}

// Execute runs pathguard with the process arguments and standard streams.
func Execute() int {
	return Run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
}

// GetVersion returns the version string
func GetVersion() string {
	if len(Commit) >= 7 && Commit != "unknown" {
		return fmt.Sprintf("%s (%s)", Version, Commit[:7])
	}
	return Version
}
