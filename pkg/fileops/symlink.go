package fileops

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"
)

// IsSymlink reports whether path itself is a symbolic link. It uses lstat, so
// a dangling link still reports true. A path that cannot be inspected,
// including one that does not exist, reports false.
//
// Usage example:
//
//	if fileops.IsSymlink(target) {
//	    return fmt.Errorf("refusing to follow %s", target)
//	}
func IsSymlink(path string) bool {
	info, err := os.Lstat(path)
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeSymlink != 0
}

// GetRealPath returns the absolute path with every symlink dereferenced.
// Every component must exist: a missing component, or a file used as a
// directory, fails with a KindNotFound error. Any other stat failure is
// returned wrapped.
func GetRealPath(path string) (string, error) {
	const op = "realpath"

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR) {
			return "", newError(KindNotFound, op, path, err)
		}
		return "", fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	return resolved, nil
}

// GetSymlinkTarget returns the target stored in the link, without resolving
// it. It fails with a KindNotFound error when the link is absent.
func GetSymlinkTarget(linkPath string) (string, error) {
	target, err := os.Readlink(linkPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", newError(KindNotFound, "readlink", linkPath, err)
		}
		return "", fmt.Errorf("failed to read symlink: %w", err)
	}
	return target, nil
}

// SymlinkEscapesBase reports whether the link at linkPath points outside base.
// Dangling links are judged by where they would point. linkPath must be a
// symlink.
func SymlinkEscapesBase(linkPath, base string) (bool, error) {
	if !IsSymlink(linkPath) {
		return false, newError(KindNotAFile, "symlink check", linkPath, errors.New("not a symbolic link"))
	}

	target, err := GetSymlinkTarget(linkPath)
	if err != nil {
		return false, err
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(filepath.Dir(linkPath), target)
	}

	return !IsPathInBounds(base, target), nil
}

// rejectSymlinkComponents walks rel below base and fails with a
// KindSymlinkRejected error on the first existing component that is a symlink.
// The walk stops quietly at the first component that does not exist.
func rejectSymlinkComponents(op, base, rel string) error {
	if rel == "" || rel == "." {
		return nil
	}

	current := base
	for _, segment := range strings.Split(rel, string(filepath.Separator)) {
		current = filepath.Join(current, segment)
		info, err := os.Lstat(current)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			if errors.Is(err, syscall.ENOTDIR) {
				return newError(KindNotADirectory, op, filepath.Dir(current), err)
			}
			return fmt.Errorf("failed to inspect %s: %w", current, err)
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return newError(KindSymlinkRejected, op, current, nil)
		}
	}
	return nil
}

// systemLinkDepth is how many leading components of an absolute path may be
// symlinks when no base is given. Top-level links belong to the OS layout:
// /tmp -> private/tmp and /var -> private/var on darwin, /lib -> usr/lib on
// merged-usr Linux. Any symlink deeper than that is refused.
const systemLinkDepth = 1

// checkUnbasedPath walks the absolute path abs from the filesystem root and
// fails with a KindSymlinkRejected error on the first existing component below
// systemLinkDepth that is a symlink, the final component included. It returns
// the deepest existing component, from which missing segments can be created.
func checkUnbasedPath(op, abs string) (string, error) {
	volume := filepath.VolumeName(abs)
	current := volume + string(filepath.Separator)
	anchor := current

	rest := strings.TrimLeft(abs[len(volume):], `/\`)
	if rest == "" {
		return anchor, nil
	}

	for depth, segment := range strings.Split(rest, string(filepath.Separator)) {
		current = filepath.Join(current, segment)
		info, err := os.Lstat(current)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR) {
				return anchor, nil
			}
			return "", fmt.Errorf("failed to inspect %s: %w", current, err)
		}
		if info.Mode()&os.ModeSymlink != 0 && depth >= systemLinkDepth {
			return "", newError(KindSymlinkRejected, op, current, nil)
		}
		anchor = current
	}
	return anchor, nil
}
