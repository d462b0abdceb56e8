package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"pathguard/pkg/fileops"
)

func newCheckCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check <path>",
		Short: "Check an untrusted path for traversal",
		Long: `Reports whether a raw path attempts traversal (absolute, "..", NUL) and
shows its normalized form. Nothing on disk is consulted.

Exits with status 2 when the path is rejected.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			traversal := fileops.IsPathTraversal(path)
			normalized, normErr := fileops.NormalizePath(path)

			var verdict error
			if traversal {
				verdict = &fileops.Error{Kind: fileops.KindTraversal, Op: "check", Path: path}
			}

			out := cmd.OutOrStdout()
			if a.jsonOutput {
				result := map[string]interface{}{
					"path":         path,
					"is_traversal": traversal,
				}
				if normErr != nil {
					result["normalize_error"] = normErr.Error()
				} else {
					result["normalized"] = normalized
				}
				if err := outputJSON(out, result); err != nil {
					return err
				}
				if verdict != nil {
					return silentError{verdict}
				}
				return nil
			}

			st := newStyles(out)
			if traversal {
				fmt.Fprintf(out, "%s %q\n", st.bad.Render("REJECTED"), path)
			} else {
				fmt.Fprintf(out, "%s %q\n", st.ok.Render("OK"), path)
			}
			if normErr == nil {
				st.field(out, "normalized", normalized)
			}
			if verdict != nil {
				return silentError{verdict}
			}
			return nil
		},
	}
}

func newNormalizeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "normalize <path>",
		Short: "Collapse separators and dot segments",
		Long: `Collapses duplicate separators, "." segments and inner ".." segments without
touching disk. A path whose ".." segments climb above its start is rejected.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			normalized, err := fileops.NormalizePath(args[0])
			if err != nil {
				return err
			}
			if a.jsonOutput {
				return outputJSON(cmd.OutOrStdout(), map[string]string{
					"path":       args[0],
					"normalized": normalized,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), normalized)
			return nil
		},
	}
}

func newSanitizeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sanitize <name>",
		Short: "Reduce a user-supplied file name to one safe segment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, err := fileops.SanitizeFilename(args[0])
			if err != nil {
				return err
			}
			if a.jsonOutput {
				return outputJSON(cmd.OutOrStdout(), map[string]string{
					"input":     args[0],
					"sanitized": name,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), name)
			return nil
		},
	}
}

func newRealpathCommand(a *app) *cobra.Command {
	var escapesBase string

	cmd := &cobra.Command{
		Use:   "realpath <path>",
		Short: "Resolve a path through all symlinks",
		Long: `Prints the canonical path with every symlink resolved. For a symlink the
immediate target is shown too, and --base reports whether the link leads
outside that directory.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]

			resolved, err := fileops.GetRealPath(path)
			if err != nil {
				return err
			}

			isLink := fileops.IsSymlink(path)
			result := map[string]interface{}{
				"path":       path,
				"real_path":  resolved,
				"is_symlink": isLink,
			}
			if isLink {
				target, err := fileops.GetSymlinkTarget(path)
				if err != nil {
					return err
				}
				result["target"] = target

				if escapesBase != "" {
					escapes, err := fileops.SymlinkEscapesBase(path, escapesBase)
					if err != nil {
						return err
					}
					result["escapes_base"] = escapes
				}
			}

			out := cmd.OutOrStdout()
			if a.jsonOutput {
				return outputJSON(out, result)
			}

			if !isLink {
				fmt.Fprintln(out, resolved)
				return nil
			}

			st := newStyles(out)
			st.field(out, "real path", resolved)
			st.field(out, "target", result["target"])
			if escapes, ok := result["escapes_base"].(bool); ok {
				verdict := st.ok.Render("no")
				if escapes {
					verdict = st.bad.Render("yes")
				}
				st.field(out, "escapes base", verdict)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&escapesBase, "base", "", "Report whether a symlink escapes this directory")
	return cmd
}

// silentError marks an error whose details were already printed.
type silentError struct {
	err error
}

func (e silentError) Error() string { return e.err.Error() }
func (e silentError) Unwrap() error { return e.err }
