package fileops

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// PermissionPolicy defines which permission bits a sensitive file may not carry.
type PermissionPolicy struct {
	// ForbiddenBits are the mode bits that make an entry too permissive.
	ForbiddenBits os.FileMode
}

// DefaultPermissionPolicy forbids every group and other bit: anything looser
// than owner-only access is flagged.
var DefaultPermissionPolicy = PermissionPolicy{ForbiddenBits: 0o077}

// Allows reports whether mode carries none of the forbidden bits.
func (p PermissionPolicy) Allows(mode os.FileMode) bool {
	return mode.Perm()&p.ForbiddenBits == 0
}

// Tighten returns mode with the forbidden bits cleared. It never adds a bit.
func (p PermissionPolicy) Tighten(mode os.FileMode) os.FileMode {
	return mode.Perm() &^ p.ForbiddenBits
}

// Owner identifies the owning user and group of an entry. On platforms
// without POSIX ownership both ids are -1 and Known is false.
type Owner struct {
	UID   int  `json:"uid"`
	GID   int  `json:"gid"`
	Known bool `json:"known"`
}

// UnknownOwner is returned where ownership cannot be determined.
var UnknownOwner = Owner{UID: -1, GID: -1}

// PermissionDescriptor is a fresh snapshot of one entry's permission state.
type PermissionDescriptor struct {
	Path      string      `json:"path"`
	Mode      os.FileMode `json:"mode"`
	IsDir     bool        `json:"is_dir"`
	IsSymlink bool        `json:"is_symlink"`
	Owner     Owner       `json:"owner"`
}

// GroupAccess reports whether the group class may read or write.
func (d PermissionDescriptor) GroupAccess() bool {
	return d.Mode&0o060 != 0
}

// OtherAccess reports whether the other class may read or write.
func (d PermissionDescriptor) OtherAccess() bool {
	return d.Mode&0o006 != 0
}

// Octal renders the permission bits as a four digit octal string.
func (d PermissionDescriptor) Octal() string {
	return fmt.Sprintf("%04o", uint32(d.Mode.Perm()))
}

// GetFilePermissions reads the permission bits and owner of path. A symlink is
// described by the mode and owner of the entry it points to, with IsSymlink set.
// A missing path, or a dangling link, fails with a KindNotFound error.
func GetFilePermissions(path string) (PermissionDescriptor, error) {
	const op = "permissions"

	linfo, err := os.Lstat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return PermissionDescriptor{}, newError(KindNotFound, op, path, err)
		}
		return PermissionDescriptor{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	info := linfo
	isLink := linfo.Mode()&os.ModeSymlink != 0
	if isLink {
		info, err = os.Stat(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return PermissionDescriptor{}, newError(KindNotFound, op, path, err)
			}
			return PermissionDescriptor{}, fmt.Errorf("failed to stat %s: %w", path, err)
		}
	}

	return PermissionDescriptor{
		Path:      path,
		Mode:      info.Mode().Perm(),
		IsDir:     info.IsDir(),
		IsSymlink: isLink,
		Owner:     ownerOf(info),
	}, nil
}

// IsTooPermissive reports whether path carries a bit the policy forbids.
func (p PermissionPolicy) IsTooPermissive(path string) (bool, error) {
	desc, err := GetFilePermissions(path)
	if err != nil {
		return false, err
	}
	return !p.Allows(desc.Mode), nil
}

// Validate fails with a KindPermissionTooOpen error when path is too
// permissive under p.
func (p PermissionPolicy) Validate(path string) error {
	desc, err := GetFilePermissions(path)
	if err != nil {
		return err
	}
	if !p.Allows(desc.Mode) {
		return newError(KindPermissionTooOpen, "validate permissions", path,
			fmt.Errorf("mode %s grants group or other access", desc.Octal()))
	}
	return nil
}

// IsPermissionTooPermissive reports whether group or other may read, write or
// execute path under DefaultPermissionPolicy: 0600 passes, 0644, 0666 and 0777
// do not.
func IsPermissionTooPermissive(path string) (bool, error) {
	return DefaultPermissionPolicy.IsTooPermissive(path)
}

// ValidateConfigFilePermissions must be called before reading a file that
// holds configuration or secrets. It fails with a KindPermissionTooOpen error
// when the file is readable or writable beyond its owner, and with a
// KindNotFound error when it is missing.
//
// Usage example:
//
//	if err := fileops.ValidateConfigFilePermissions(cfgPath); err != nil {
//	    return fmt.Errorf("refusing config: %w", err)
//	}
func ValidateConfigFilePermissions(path string) error {
	return DefaultPermissionPolicy.Validate(path)
}

// FixPermissions clears the bits policy forbids on a regular file or
// directory. Symlinks are refused. It reports whether the mode changed.
func FixPermissions(path string, policy PermissionPolicy) (bool, error) {
	const op = "fix permissions"

	info, err := os.Lstat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, newError(KindNotFound, op, path, err)
		}
		return false, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return false, newError(KindSymlinkRejected, op, path, nil)
	}
	if !info.Mode().IsRegular() && !info.IsDir() {
		return false, newError(KindNotAFile, op, path, nil)
	}

	current := info.Mode().Perm()
	tightened := policy.Tighten(current)
	if tightened == current {
		return false, nil
	}

	if err := os.Chmod(path, tightened); err != nil {
		return false, fmt.Errorf("failed to chmod %s: %w", path, err)
	}
	return true, nil
}
