package fileops

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// SafePathOptions configures a SafePath. Zero values select the package
// defaults.
type SafePathOptions struct {
	// DirMode is applied to directories created by EnsureDir.
	DirMode os.FileMode
	// FileMode is applied to files written by Write and Copy.
	FileMode os.FileMode
	// MaxReadBytes limits Read. Zero means no limit.
	MaxReadBytes int64
	// Policy bounds DirMode and FileMode. The zero value means
	// DefaultPermissionPolicy.
	Policy PermissionPolicy
}

// SafePath is a handle bound to one canonical base directory. Every method
// takes an untrusted path relative to that base and validates it on each call
// exactly as the matching free function does with the same base.
//
// A SafePath holds no open descriptors and is safe for concurrent use.
type SafePath struct {
	base     string
	settings opSettings
}

// NewSafePath binds a handle to base. It fails with a KindNotFound error when
// base is missing, KindSymlinkRejected when base is itself a symlink and
// KindNotADirectory when it is not a directory. A DirMode or FileMode carrying
// a bit forbidden by opts.Policy fails with KindPermissionTooOpen. opts may be
// nil.
//
// Usage example:
//
//	sp, err := fileops.NewSafePath(downloadsDir, nil)
//	if err != nil {
//	    return err
//	}
//	if err := sp.EnsureDir("images"); err != nil {
//	    return err
//	}
//	return sp.Write(filepath.Join("images", name), data)
func NewSafePath(base string, opts *SafePathOptions) (*SafePath, error) {
	const op = "safe path"

	settings := defaultSettings
	if opts != nil {
		if opts.DirMode != 0 {
			settings.dirMode = opts.DirMode.Perm()
		}
		if opts.FileMode != 0 {
			settings.fileMode = opts.FileMode.Perm()
		}
		settings.maxReadBytes = opts.MaxReadBytes

		policy := opts.Policy
		if policy.ForbiddenBits == 0 {
			policy = DefaultPermissionPolicy
		}
		if !policy.Allows(settings.dirMode) {
			return nil, newError(KindPermissionTooOpen, op, base,
				fmt.Errorf("dir mode %04o grants forbidden bits %04o", uint32(settings.dirMode), uint32(policy.ForbiddenBits)))
		}
		if !policy.Allows(settings.fileMode) {
			return nil, newError(KindPermissionTooOpen, op, base,
				fmt.Errorf("file mode %04o grants forbidden bits %04o", uint32(settings.fileMode), uint32(policy.ForbiddenBits)))
		}
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

	return &SafePath{base: canonical, settings: settings}, nil
}

// Base returns the canonical base directory.
func (sp *SafePath) Base() string {
	return sp.base
}

// Resolve returns the absolute path for relative inside the base.
func (sp *SafePath) Resolve(relative string) (string, error) {
	return JoinSafePath(sp.base, relative)
}

// Read returns the contents of a regular file inside the base.
func (sp *SafePath) Read(relative string) ([]byte, error) {
	return readFile(relative, sp.base, sp.settings)
}

// Write atomically replaces a file inside the base. Its directory must exist.
func (sp *SafePath) Write(relative string, content []byte) error {
	return writeFile(relative, sp.base, sp.settings, func(w io.Writer) error {
		_, err := w.Write(content)
		return err
	})
}

// EnsureDir creates a directory inside the base, with its missing parents.
func (sp *SafePath) EnsureDir(relative string) error {
	return ensureDirectory(relative, sp.base, sp.settings)
}

// Copy imports the regular file src into the base at relative.
func (sp *SafePath) Copy(src, relative string) error {
	return copyFile(src, relative, sp.base, sp.settings)
}

// Remove deletes a regular file or empty directory inside the base.
func (sp *SafePath) Remove(relative string) error {
	return removeEntry(relative, sp.base)
}

// Audit walks the base and reports permission and symlink findings.
func (sp *SafePath) Audit(opts *AuditOptions) (*AuditReport, error) {
	return AuditTree(sp.base, opts)
}
