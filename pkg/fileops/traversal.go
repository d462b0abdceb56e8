package fileops

import (
	"path/filepath"
	"strings"
)

// splitSegments splits a raw path on both '/' and '\'. Backslash is treated
// as a separator on every platform so names produced on Windows cannot smuggle
// a ".." segment past a Unix host.
func splitSegments(p string) []string {
	return strings.FieldsFunc(p, func(r rune) bool {
		return r == '/' || r == '\\'
	})
}

// IsPathTraversal reports whether a raw, unnormalized candidate path looks like
// an attempt to escape a base directory. It returns true when the candidate
//
//   - is absolute for the host platform, starts with a separator, or carries a
//     volume name
//   - contains a ".." segment anywhere, using either separator
//   - contains a NUL byte
//
// Plain relative names, dot-files such as ".gitignore" and a single leading
// "./" are accepted. This is a conservative pre-filter on raw text. It does not
// prove the path is safe after it has been joined; JoinSafePath does that.
//
// Usage example:
//
//	if fileops.IsPathTraversal(name) {
//	    return fmt.Errorf("refusing %q", name)
//	}
func IsPathTraversal(candidate string) bool {
	if strings.ContainsRune(candidate, 0) {
		return true
	}

	if filepath.IsAbs(candidate) || filepath.VolumeName(candidate) != "" {
		return true
	}
	if strings.HasPrefix(candidate, "/") || strings.HasPrefix(candidate, `\`) {
		return true
	}

	for _, segment := range splitSegments(candidate) {
		if segment == ".." {
			return true
		}
	}

	return false
}

// NormalizePath collapses duplicate separators and "." segments, strips a
// leading "./" and drops any trailing separator, leaving every other character
// untouched. Both '/' and '\' are accepted as input separators and the result
// uses the host separator.
//
// Inner ".." segments are collapsed against the preceding segment. A candidate
// whose ".." segments would climb above its starting point fails with a
// KindTraversal error instead of being silently clamped, and so does a
// candidate containing a NUL byte. An empty or all-dot candidate normalizes
// to ".".
//
// NormalizePath is idempotent on every input it accepts.
func NormalizePath(candidate string) (string, error) {
	const op = "normalize"

	if strings.ContainsRune(candidate, 0) {
		return "", newError(KindTraversal, op, candidate, nil)
	}

	volume := filepath.VolumeName(candidate)
	rest := candidate[len(volume):]
	rooted := strings.HasPrefix(rest, "/") || strings.HasPrefix(rest, `\`)

	var stack []string
	for _, segment := range splitSegments(rest) {
		switch segment {
		case ".":
			continue
		case "..":
			if len(stack) == 0 {
				return "", newError(KindTraversal, op, candidate, nil)
			}
			stack = stack[:len(stack)-1]
		default:
			stack = append(stack, segment)
		}
	}

	sep := string(filepath.Separator)
	joined := strings.Join(stack, sep)
	switch {
	case rooted:
		joined = sep + joined
	case joined == "" && volume == "":
		joined = "."
	}

	return volume + joined, nil
}
