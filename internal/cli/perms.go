package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"pathguard/pkg/fileops"
)

func newPermsCommand(a *app) *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "perms <path>",
		Short: "Show permissions and whether they are too permissive",
		Long: `Describes the permission bits and owner of a file or directory and reports
whether group or others have any access.

With --strict the path is validated the way config and secret files are:
the command exits with status 2 when it is too permissive.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]

			desc, err := fileops.GetFilePermissions(path)
			if err != nil {
				return err
			}
			tooOpen, err := fileops.IsPermissionTooPermissive(path)
			if err != nil {
				return err
			}

			var verdict error
			if strict {
				verdict = fileops.ValidateConfigFilePermissions(path)
			}

			out := cmd.OutOrStdout()
			if a.jsonOutput {
				if err := outputJSON(out, map[string]interface{}{
					"path":           desc.Path,
					"mode":           desc.Octal(),
					"is_dir":         desc.IsDir,
					"is_symlink":     desc.IsSymlink,
					"owner":          desc.Owner,
					"group_access":   desc.GroupAccess(),
					"other_access":   desc.OtherAccess(),
					"too_permissive": tooOpen,
				}); err != nil {
					return err
				}
				if verdict != nil {
					return silentError{verdict}
				}
				return nil
			}

			st := newStyles(out)
			st.field(out, "path", desc.Path)
			st.field(out, "mode", desc.Octal())
			switch {
			case desc.IsSymlink:
				st.field(out, "type", "symlink")
			case desc.IsDir:
				st.field(out, "type", "directory")
			default:
				st.field(out, "type", "file")
			}
			if desc.Owner.Known {
				st.field(out, "owner", fmt.Sprintf("uid=%d gid=%d", desc.Owner.UID, desc.Owner.GID))
			} else {
				st.field(out, "owner", st.dim.Render("unknown"))
			}
			if tooOpen {
				st.field(out, "verdict", st.bad.Render("too permissive"))
			} else {
				st.field(out, "verdict", st.ok.Render("owner only"))
			}

			return verdict
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "Fail when the path is readable or writable by group or others")
	return cmd
}
