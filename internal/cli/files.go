package cli

import (
	"encoding/base64"
	"fmt"
	"io"
	"path/filepath"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"pathguard/pkg/fileops"
)

// openRoot binds the configured root called name.
func (a *app) openRoot(name string) (*fileops.SafePath, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}
	sp, err := cfg.OpenRoot(name)
	if err != nil {
		a.logger.LogRejection("open root", name, err)
		return nil, err
	}
	return sp, nil
}

// reject logs a refused operation and passes err through.
func (a *app) reject(op, path string, err error) error {
	a.logger.LogRejection(op, path, err)
	return err
}

func newResolveCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <root> <relative>",
		Short: "Join a relative path onto a configured root",
		Long: `Joins an untrusted relative path onto the named root and prints the
absolute result. Traversal, absolute input and symlinks leading outside the
root are rejected with exit status 2.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sp, err := a.openRoot(args[0])
			if err != nil {
				return err
			}

			resolved, err := sp.Resolve(args[1])
			if err != nil {
				return a.reject("resolve", args[1], err)
			}

			if a.jsonOutput {
				return outputJSON(cmd.OutOrStdout(), map[string]string{
					"root":     args[0],
					"base":     sp.Base(),
					"path":     args[1],
					"resolved": resolved,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), resolved)
			return nil
		},
	}
}

func newReadCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "read <root> <relative>",
		Short: "Read a file inside a configured root",
		Long: `Reads a regular file inside the named root and writes it to stdout.
Symlinks are refused. Binary content is base64 encoded when stdout is a
terminal.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sp, err := a.openRoot(args[0])
			if err != nil {
				return err
			}

			data, err := sp.Read(args[1])
			if err != nil {
				return a.reject("read", args[1], err)
			}

			out := cmd.OutOrStdout()
			if a.jsonOutput {
				result := map[string]interface{}{
					"path":       args[1],
					"size_bytes": len(data),
				}
				if utf8.Valid(data) {
					result["encoding"] = "utf-8"
					result["content"] = string(data)
				} else {
					result["encoding"] = "base64"
					result["content"] = base64.StdEncoding.EncodeToString(data)
				}
				return outputJSON(out, result)
			}

			if isTerminal(out) && !utf8.Valid(data) {
				fmt.Fprintln(cmd.ErrOrStderr(), "Warning: binary file detected, outputting base64 encoding")
				fmt.Fprintln(out, base64.StdEncoding.EncodeToString(data))
				return nil
			}
			_, err = out.Write(data)
			return err
		},
	}
}

func newWriteCommand(a *app) *cobra.Command {
	var (
		content string
		parents bool
	)

	cmd := &cobra.Command{
		Use:   "write <root> <relative>",
		Short: "Atomically write a file inside a configured root",
		Long: `Writes content to a file inside the named root. The file is replaced
atomically and created owner-only. Content comes from --content or, when
stdin is piped, from stdin.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			hasContent := cmd.Flags().Changed("content")

			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			sp, err := a.openRoot(args[0])
			if err != nil {
				return err
			}

			var data []byte
			switch {
			case hasContent:
				data = []byte(content)
			case isTerminal(cmd.InOrStdin()):
				return fmt.Errorf("no content: pass --content or pipe data on stdin")
			default:
				limit := cfg.Limits.MaxReadBytes
				data, err = io.ReadAll(io.LimitReader(cmd.InOrStdin(), limit+1))
				if err != nil {
					return fmt.Errorf("failed to read stdin: %w", err)
				}
				if int64(len(data)) > limit {
					return fmt.Errorf("stdin: %w (limit %d bytes)", fileops.ErrFileTooLarge, limit)
				}
			}

			if parents {
				if dir := filepath.Dir(filepath.FromSlash(args[1])); dir != "." {
					if err := sp.EnsureDir(dir); err != nil {
						return a.reject("write", args[1], err)
					}
				}
			}

			resolved, err := sp.Resolve(args[1])
			if err != nil {
				return a.reject("write", args[1], err)
			}
			if err := sp.Write(args[1], data); err != nil {
				return a.reject("write", args[1], err)
			}

			if a.jsonOutput {
				return outputJSON(cmd.OutOrStdout(), map[string]interface{}{
					"written":    true,
					"path":       resolved,
					"size_bytes": len(data),
				})
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %d bytes to %s\n", len(data), resolved)
			return nil
		},
	}

	cmd.Flags().StringVar(&content, "content", "", "Content to write (inline string)")
	cmd.Flags().BoolVarP(&parents, "parents", "p", false, "Create missing parent directories")
	return cmd
}

func newMkdirCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir <root> <relative>",
		Short: "Ensure a directory exists inside a configured root",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sp, err := a.openRoot(args[0])
			if err != nil {
				return err
			}

			resolved, err := sp.Resolve(args[1])
			if err != nil {
				return a.reject("mkdir", args[1], err)
			}
			if err := sp.EnsureDir(args[1]); err != nil {
				return a.reject("mkdir", args[1], err)
			}

			if a.jsonOutput {
				return outputJSON(cmd.OutOrStdout(), map[string]interface{}{
					"created": true,
					"path":    resolved,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), resolved)
			return nil
		},
	}
}

func newRemoveCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <root> <relative>",
		Aliases: []string{"remove"},
		Short:   "Remove a file or empty directory inside a configured root",
		Long: `Removes a regular file or an empty directory inside the named root.
Symlinks and the root itself are refused.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sp, err := a.openRoot(args[0])
			if err != nil {
				return err
			}

			if err := sp.Remove(args[1]); err != nil {
				return a.reject("remove", args[1], err)
			}

			if a.jsonOutput {
				return outputJSON(cmd.OutOrStdout(), map[string]interface{}{
					"removed": true,
					"path":    args[1],
				})
			}
			return nil
		},
	}
}

func newImportCommand(a *app) *cobra.Command {
	var parents bool

	cmd := &cobra.Command{
		Use:   "import <root> <source> <relative>",
		Short: "Copy an external file into a configured root",
		Long: `Copies a regular file from anywhere on disk into the named root. The source
must not be a symlink; the destination is written atomically and owner-only.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, src, dst := args[0], args[1], args[2]

			sp, err := a.openRoot(root)
			if err != nil {
				return err
			}

			if parents {
				if dir := filepath.Dir(filepath.FromSlash(dst)); dir != "." {
					if err := sp.EnsureDir(dir); err != nil {
						return a.reject("import", dst, err)
					}
				}
			}

			resolved, err := sp.Resolve(dst)
			if err != nil {
				return a.reject("import", dst, err)
			}
			if err := sp.Copy(src, dst); err != nil {
				return a.reject("import", dst, err)
			}

			if a.jsonOutput {
				return outputJSON(cmd.OutOrStdout(), map[string]interface{}{
					"imported": true,
					"source":   src,
					"path":     resolved,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), resolved)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&parents, "parents", "p", false, "Create missing parent directories")
	return cmd
}
