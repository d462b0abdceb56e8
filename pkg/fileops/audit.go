package fileops

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// FindingKind classifies one audit finding.
type FindingKind string

const (
	// FindingSymlink is a symlink that resolves inside the base.
	FindingSymlink FindingKind = "symlink"
	// FindingEscapingSymlink is a symlink that points outside the base.
	FindingEscapingSymlink FindingKind = "escaping_symlink"
	// FindingTooPermissive is a file the permission policy rejects.
	FindingTooPermissive FindingKind = "too_permissive"
	// FindingWorldWritableDir is a directory anyone may write to.
	FindingWorldWritableDir FindingKind = "world_writable_dir"
)

// Finding is one problem discovered by AuditTree. Path is relative to the
// audited base.
type Finding struct {
	Kind   FindingKind `json:"kind"`
	Path   string      `json:"path"`
	Mode   os.FileMode `json:"mode"`
	Target string      `json:"target,omitempty"`
}

// AuditOptions configures AuditTree.
type AuditOptions struct {
	// MaxDepth limits recursion below the base. The base itself is depth 0.
	MaxDepth int

	// IncludeHidden controls whether dot-files and dot-directories are audited.
	IncludeHidden bool

	// SkipPatterns are directory names that are not descended into.
	SkipPatterns []string

	// Policy decides which files are too permissive. A zero policy selects
	// DefaultPermissionPolicy.
	Policy PermissionPolicy

	// SensitivePatterns are filepath.Match globs on file names. Only matching
	// files are checked against Policy; when empty every file is.
	SensitivePatterns []string

	// SkipUnreadableDirs skips directories that cannot be read instead of
	// failing the audit.
	SkipUnreadableDirs bool
}

// AuditReport is the result of one AuditTree walk.
type AuditReport struct {
	Base         string    `json:"base"`
	Findings     []Finding `json:"findings"`
	FilesScanned int       `json:"files_scanned"`
	DirsScanned  int       `json:"dirs_scanned"`
}

// Count returns how many findings have the given kind.
func (r *AuditReport) Count(kind FindingKind) int {
	n := 0
	for _, f := range r.Findings {
		if f.Kind == kind {
			n++
		}
	}
	return n
}

// HasIssues reports whether any finding other than an in-bounds symlink was
// recorded.
func (r *AuditReport) HasIssues() bool {
	return len(r.Findings) > r.Count(FindingSymlink)
}

// DefaultAuditOptions returns the options used when AuditTree gets nil.
func DefaultAuditOptions() *AuditOptions {
	return &AuditOptions{
		MaxDepth:           20,
		IncludeHidden:      true,
		SkipPatterns:       []string{".git", "node_modules", "vendor"},
		Policy:             DefaultPermissionPolicy,
		SkipUnreadableDirs: true,
	}
}

type auditor struct {
	root   *os.Root
	base   string
	opts   *AuditOptions
	report *AuditReport
}

// AuditTree walks base inside an os.Root and reports symlinks (noting those
// that escape base), files that fail the permission policy and world-writable
// directories. Symlinks are reported, never followed. base must be a real
// directory; opts may be nil.
//
// Usage example:
//
//	report, err := fileops.AuditTree(configDir, nil)
//	if err != nil {
//	    return err
//	}
//	for _, f := range report.Findings {
//	    fmt.Printf("%s %s\n", f.Kind, f.Path)
//	}
func AuditTree(base string, opts *AuditOptions) (*AuditReport, error) {
	const op = "audit"

	if opts == nil {
		opts = DefaultAuditOptions()
	}
	o := *opts
	if o.Policy.ForbiddenBits == 0 {
		o.Policy = DefaultPermissionPolicy
	}

	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}
	if err := validateBaseDirectory(op, abs); err != nil {
		return nil, err
	}
	canonical, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base directory: %w", err)
	}

	root, err := os.OpenRoot(canonical)
	if err != nil {
		return nil, fmt.Errorf("cannot open audit root: %w", err)
	}
	defer root.Close()

	a := &auditor{
		root:   root,
		base:   canonical,
		opts:   &o,
		report: &AuditReport{Base: canonical, Findings: []Finding{}},
	}

	info, err := root.Lstat(".")
	if err != nil {
		return nil, fmt.Errorf("failed to stat audit root: %w", err)
	}
	a.checkDirectory(".", info)

	if err := a.walk(".", 0); err != nil {
		return nil, err
	}
	return a.report, nil
}

func (a *auditor) walk(relativePath string, depth int) error {
	if depth > a.opts.MaxDepth {
		return nil
	}

	dir, err := a.root.Open(relativePath)
	if err != nil {
		if a.opts.SkipUnreadableDirs {
			return nil
		}
		return fmt.Errorf("failed to open directory %s: %w", relativePath, err)
	}
	entries, err := dir.ReadDir(-1)
	dir.Close()
	if err != nil {
		if a.opts.SkipUnreadableDirs {
			return nil
		}
		return fmt.Errorf("failed to read directory %s: %w", relativePath, err)
	}
	a.report.DirsScanned++

	for _, entry := range entries {
		name := entry.Name()
		if !a.opts.IncludeHidden && strings.HasPrefix(name, ".") {
			continue
		}
		entryPath := filepath.Join(relativePath, name)

		// DirEntry.Info does not follow symlinks
		info, err := entry.Info()
		if err != nil {
			continue
		}

		switch {
		case info.Mode()&os.ModeSymlink != 0:
			a.checkSymlink(entryPath, info)
		case info.IsDir():
			a.checkDirectory(entryPath, info)
			if slices.Contains(a.opts.SkipPatterns, name) {
				continue
			}
			if err := a.walk(entryPath, depth+1); err != nil {
				return err
			}
		case info.Mode().IsRegular():
			a.report.FilesScanned++
			a.checkFile(entryPath, info)
		}
	}

	return nil
}

func (a *auditor) checkSymlink(entryPath string, info os.FileInfo) {
	finding := Finding{Kind: FindingSymlink, Path: entryPath, Mode: info.Mode()}

	target, err := a.root.Readlink(entryPath)
	if err == nil {
		finding.Target = target
	}

	escapes, err := SymlinkEscapesBase(filepath.Join(a.base, entryPath), a.base)
	if err != nil || escapes {
		finding.Kind = FindingEscapingSymlink
	}
	a.report.Findings = append(a.report.Findings, finding)
}

func (a *auditor) checkDirectory(entryPath string, info os.FileInfo) {
	if info.Mode().Perm()&0o002 != 0 {
		a.report.Findings = append(a.report.Findings, Finding{
			Kind: FindingWorldWritableDir,
			Path: entryPath,
			Mode: info.Mode().Perm(),
		})
	}
}

func (a *auditor) checkFile(entryPath string, info os.FileInfo) {
	if !a.isSensitive(filepath.Base(entryPath)) {
		return
	}
	if !a.opts.Policy.Allows(info.Mode()) {
		a.report.Findings = append(a.report.Findings, Finding{
			Kind: FindingTooPermissive,
			Path: entryPath,
			Mode: info.Mode().Perm(),
		})
	}
}

func (a *auditor) isSensitive(name string) bool {
	if len(a.opts.SensitivePatterns) == 0 {
		return true
	}
	for _, pattern := range a.opts.SensitivePatterns {
		if ok, _ := filepath.Match(pattern, name); ok {
			return true
		}
	}
	return false
}
