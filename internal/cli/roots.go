package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"pathguard/internal/config"
	"pathguard/pkg/fileops"
)

// configFile returns the config location this invocation reads and writes.
func (a *app) configFile() string {
	if a.configPath != "" {
		return fileops.ExpandPath(a.configPath)
	}
	return config.ConfigPath()
}

type rootStatus struct {
	Name   string `json:"name"`
	Path   string `json:"path"`
	Exists bool   `json:"exists"`
}

func newRootsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "roots",
		Short: "List configured roots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}

			roots := make([]rootStatus, 0, len(cfg.Roots))
			for _, name := range cfg.RootNames() {
				dir, _ := cfg.Root(name)
				info, err := os.Stat(dir)
				roots = append(roots, rootStatus{
					Name:   name,
					Path:   dir,
					Exists: err == nil && info.IsDir(),
				})
			}

			out := cmd.OutOrStdout()
			if a.jsonOutput {
				return outputJSON(out, map[string]interface{}{
					"config": a.configFile(),
					"roots":  roots,
				})
			}

			st := newStyles(out)
			for _, r := range roots {
				path := r.Path
				if !r.Exists {
					path += " " + st.dim.Render("(missing)")
				}
				st.field(out, r.Name, path)
			}
			return nil
		},
	}

	cmd.AddCommand(newRootsAddCommand(a))
	return cmd
}

func newRootsAddCommand(a *app) *cobra.Command {
	var create bool

	cmd := &cobra.Command{
		Use:   "add <name> <dir>",
		Short: "Add or replace a root and save the config",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, dir := args[0], fileops.ExpandPath(args[1])

			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.PutRoot(name, dir); err != nil {
				return err
			}
			if create {
				if err := cfg.EnsureRoot(name); err != nil {
					return a.reject("create root", dir, err)
				}
			}
			if err := cfg.SaveTo(a.configFile()); err != nil {
				return err
			}

			if a.jsonOutput {
				return outputJSON(cmd.OutOrStdout(), rootStatus{Name: name, Path: dir, Exists: create})
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Root %q set to %s\n", name, dir)
			return nil
		},
	}

	cmd.Flags().BoolVar(&create, "create", false, "Create the directory owner-only")
	return cmd
}

func newInitCommand(a *app) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config and create the default root",
		Long: `Writes a config file with the default root under the XDG data directory
and an owner-only permission policy, then creates the root directory.
An existing config is left alone unless --force is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.configFile()

			if _, err := os.Lstat(path); err == nil && !force {
				return fmt.Errorf("config already exists at %s (use --force to overwrite)", path)
			}

			cfg := config.DefaultConfig()
			if err := cfg.SaveTo(path); err != nil {
				return err
			}
			for _, name := range cfg.RootNames() {
				if err := cfg.EnsureRoot(name); err != nil {
					return a.reject("create root", name, err)
				}
			}
			a.cfg = &cfg

			if a.jsonOutput {
				return outputJSON(cmd.OutOrStdout(), map[string]interface{}{
					"config": path,
					"roots":  cfg.Roots,
				})
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Wrote config to %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config")
	return cmd
}
