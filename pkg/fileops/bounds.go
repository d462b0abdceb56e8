package fileops

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
)

// maxSymlinkHops bounds dangling-link resolution, matching the usual kernel
// MAXSYMLINKS limit.
const maxSymlinkHops = 40

var errTooManyLinks = errors.New("too many levels of symbolic links")

// canonicalPath returns the absolute, symlink-resolved form of path. Unlike
// filepath.EvalSymlinks it accepts paths that do not exist yet: the longest
// existing ancestor is resolved and the missing tail is appended. A dangling
// symlink on the way is followed to where it points, so a link aimed outside a
// base is judged by its target and not by its name.
func canonicalPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return resolveExisting(abs, 0)
}

func resolveExisting(abs string, hops int) (string, error) {
	if hops > maxSymlinkHops {
		return "", errTooManyLinks
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if err == nil {
		return resolved, nil
	}
	// a missing component, or a file used as a directory, means the rest
	// of the path does not exist yet
	if !errors.Is(err, fs.ErrNotExist) && !errors.Is(err, syscall.ENOTDIR) {
		return "", err
	}

	parent := filepath.Dir(abs)
	if parent == abs {
		return abs, nil
	}

	realParent, err := resolveExisting(parent, hops)
	if err != nil {
		return "", err
	}
	resolved = filepath.Join(realParent, filepath.Base(abs))

	if target, err := os.Readlink(resolved); err == nil {
		if !filepath.IsAbs(target) {
			target = filepath.Join(realParent, target)
		}
		return resolveExisting(filepath.Clean(target), hops+1)
	}

	return resolved, nil
}

// caseInsensitiveFS reports whether bounds comparisons fold case. The default
// filesystems on Windows and macOS are case-insensitive, so "/Data" and "/data"
// name the same directory there.
func caseInsensitiveFS() bool {
	return runtime.GOOS == "windows" || runtime.GOOS == "darwin"
}

// containsPath reports whether target equals base or lies below it on a
// segment boundary. Both arguments must already be canonical.
func containsPath(base, target string) bool {
	if caseInsensitiveFS() {
		base = strings.ToLower(base)
		target = strings.ToLower(target)
	}

	if target == base {
		return true
	}

	prefix := base
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(target, prefix)
}

// IsPathInBounds reports whether target is base itself or lies inside base.
// Both paths are made absolute and symlink-resolved before comparing, and the
// comparison is aligned to path segments: "/data_other" is not inside "/data".
// Any resolution failure yields false.
func IsPathInBounds(base, target string) bool {
	canonicalBase, err := canonicalPath(base)
	if err != nil {
		return false
	}
	canonicalTarget, err := canonicalPath(target)
	if err != nil {
		return false
	}
	return containsPath(canonicalBase, canonicalTarget)
}

// JoinSafePath joins an untrusted relative candidate onto base and returns the
// absolute result, failing closed:
//
//  1. An empty candidate returns base unchanged.
//  2. IsPathTraversal rejects the raw candidate with a KindTraversal error.
//  3. NormalizePath cleans it.
//  4. The cleaned candidate is joined to the absolute base.
//  5. The symlink-resolved join must lie inside the symlink-resolved base, or
//     the call fails with a KindOutOfBounds error.
//
// The returned path is the lexical join (absolute base plus cleaned
// candidate), so symlinks inside base remain visible to later link-aware
// checks. It is only valid at the time of the call: re-validate before use.
//
// Usage example:
//
//	target, err := fileops.JoinSafePath("/srv/uploads", userName)
//	if err != nil {
//	    return err
//	}
func JoinSafePath(base, candidate string) (string, error) {
	const op = "join"

	if candidate == "" {
		return base, nil
	}

	if IsPathTraversal(candidate) {
		return "", newError(KindTraversal, op, candidate, nil)
	}

	normalized, err := NormalizePath(candidate)
	if err != nil {
		return "", err
	}

	absBase, err := filepath.Abs(base)
	if err != nil {
		return "", newError(KindOutOfBounds, op, candidate, err)
	}
	joined := filepath.Join(absBase, normalized)

	canonicalBase, err := canonicalPath(absBase)
	if err != nil {
		return "", newError(KindOutOfBounds, op, candidate, err)
	}
	canonicalJoined, err := canonicalPath(joined)
	if err != nil {
		return "", newError(KindOutOfBounds, op, candidate, err)
	}

	if !containsPath(canonicalBase, canonicalJoined) {
		return "", newError(KindOutOfBounds, op, candidate, nil)
	}

	return joined, nil
}
