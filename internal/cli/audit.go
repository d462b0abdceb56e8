package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"pathguard/pkg/fileops"
)

func newAuditCommand(a *app) *cobra.Command {
	var (
		fix       bool
		maxDepth  int
		noHidden  bool
		sensitive []string
		skip      []string
	)

	cmd := &cobra.Command{
		Use:   "audit <root>",
		Short: "Audit a configured root for symlinks and loose permissions",
		Long: `Walks the named root without following symlinks and reports symlinks,
symlinks leading outside the root, files the permission policy rejects and
world-writable directories.

With --fix, offending files and directories are tightened to satisfy the
policy. The command exits with status 2 when problems remain.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			sp, err := a.openRoot(args[0])
			if err != nil {
				return err
			}

			opts := fileops.DefaultAuditOptions()
			opts.MaxDepth = maxDepth
			opts.IncludeHidden = !noHidden
			opts.Policy = cfg.PermissionPolicy()
			opts.SensitivePatterns = sensitive
			if len(skip) > 0 {
				opts.SkipPatterns = skip
			}

			report, err := sp.Audit(opts)
			if err != nil {
				return a.reject("audit", args[0], err)
			}

			var fixed []string
			remaining := report.Findings
			if fix {
				remaining = nil
				for _, f := range report.Findings {
					if f.Kind != fileops.FindingTooPermissive && f.Kind != fileops.FindingWorldWritableDir {
						remaining = append(remaining, f)
						continue
					}
					policy := opts.Policy
					if f.Kind == fileops.FindingWorldWritableDir {
						policy.ForbiddenBits |= 0o002
					}
					changed, err := fileops.FixPermissions(filepath.Join(report.Base, filepath.FromSlash(f.Path)), policy)
					if err != nil {
						a.logger.LogRejection("fix permissions", f.Path, err)
						remaining = append(remaining, f)
						continue
					}
					if changed {
						fixed = append(fixed, f.Path)
					}
				}
			}

			issues := 0
			for _, f := range remaining {
				if f.Kind != fileops.FindingSymlink {
					issues++
				}
			}

			out := cmd.OutOrStdout()
			if a.jsonOutput {
				findings := report.Findings
				if findings == nil {
					findings = []fileops.Finding{}
				}
				if err := outputJSON(out, map[string]interface{}{
					"root":          args[0],
					"base":          report.Base,
					"findings":      findings,
					"fixed":         fixed,
					"files_scanned": report.FilesScanned,
					"dirs_scanned":  report.DirsScanned,
					"issues":        issues,
				}); err != nil {
					return err
				}
				if issues > 0 {
					return silentError{fmt.Errorf("%w: %d in %s", errIssuesFound, issues, report.Base)}
				}
				return nil
			}

			st := newStyles(out)
			for _, f := range report.Findings {
				line := fmt.Sprintf("%-20s %s", f.Kind, f.Path)
				switch f.Kind {
				case fileops.FindingSymlink:
					fmt.Fprintln(out, st.dim.Render(line+" -> "+f.Target))
				case fileops.FindingEscapingSymlink:
					fmt.Fprintln(out, st.bad.Render(line+" -> "+f.Target))
				default:
					fmt.Fprintf(out, "%s %04o\n", st.warn.Render(line), uint32(f.Mode.Perm()))
				}
			}
			for _, path := range fixed {
				fmt.Fprintf(out, "%s %s\n", st.ok.Render("fixed"), path)
			}

			summary := fmt.Sprintf("%d files, %d directories scanned", report.FilesScanned, report.DirsScanned)
			if issues > 0 {
				fmt.Fprintf(out, "%s %s\n", st.bad.Render(fmt.Sprintf("%d issues", issues)), summary)
				return silentError{fmt.Errorf("%w: %d in %s", errIssuesFound, issues, report.Base)}
			}
			fmt.Fprintf(out, "%s %s\n", st.ok.Render("clean"), summary)
			return nil
		},
	}

	cmd.Flags().BoolVar(&fix, "fix", false, "Tighten permissions the policy rejects")
	cmd.Flags().IntVar(&maxDepth, "max-depth", 20, "Maximum directory depth")
	cmd.Flags().BoolVar(&noHidden, "no-hidden", false, "Skip dot-files and dot-directories")
	cmd.Flags().StringSliceVar(&sensitive, "sensitive", nil, "Only check files matching these globs against the policy")
	cmd.Flags().StringSliceVar(&skip, "skip", nil, "Directory names not to descend into (default .git,node_modules,vendor)")
	return cmd
}
