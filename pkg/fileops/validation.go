package fileops

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// SanitizeFilename reduces a user-supplied name to a single safe path segment,
// for handlers that materialize downloaded or imported files.
//
// Any directory part is dropped, ".." sequences and surrounding whitespace are
// removed, and both '/' and '\' count as separators. A name that is empty, or
// that is nothing but "." or ".." after cleaning, or that holds a NUL byte,
// fails with a KindTraversal error.
//
// Usage example:
//
//	clean, err := fileops.SanitizeFilename("../../../etc/passwd")
//	if err != nil {
//	    return err
//	}
//	// clean is "passwd"
func SanitizeFilename(filename string) (string, error) {
	const op = "sanitize filename"

	if strings.ContainsRune(filename, 0) {
		return "", newError(KindTraversal, op, filename, nil)
	}

	segments := splitSegments(filename)
	if len(segments) == 0 {
		return "", newError(KindTraversal, op, filename, nil)
	}
	clean := segments[len(segments)-1]

	clean = strings.ReplaceAll(clean, "..", "")
	clean = strings.TrimSpace(clean)

	if clean == "" || clean == "." || clean == ".." {
		return "", newError(KindTraversal, op, filename, nil)
	}

	return clean, nil
}

// ExpandPath expands a leading "~/" to the user's home directory. Other paths
// are returned unchanged.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

// IsReservedDirectory reports whether path is, or lies inside, a system or
// credential directory that must never be configured as a trust root: /etc,
// /bin, C:\Windows, ~/.ssh and the like. Paths are symlink-resolved first and
// anything that cannot be resolved counts as reserved. User temp directories
// are exempt.
func IsReservedDirectory(path string) bool {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return true
	}
	if resolved, err := filepath.EvalSymlinks(absPath); err == nil {
		absPath = resolved
	}
	absPath = filepath.Clean(absPath)

	if absPath == "/" || absPath == `\` || strings.EqualFold(absPath, `C:\`) {
		return true
	}

	for _, reserved := range getReservedDirectories() {
		reservedAbs, err := filepath.Abs(reserved)
		if err != nil {
			continue
		}
		if resolved, err := filepath.EvalSymlinks(reservedAbs); err == nil {
			reservedAbs = resolved
		}
		reservedAbs = filepath.Clean(reservedAbs)

		if strings.EqualFold(absPath, reservedAbs) {
			return true
		}

		prefix := strings.ToLower(reservedAbs) + string(os.PathSeparator)
		if strings.HasPrefix(strings.ToLower(absPath), prefix) {
			if isUserTempDirectory(absPath) {
				continue
			}
			return true
		}
	}

	return false
}

// getReservedDirectories lists the system locations refused as roots on the
// current platform, plus the user's credential directories.
func getReservedDirectories() []string {
	var reserved []string

	switch runtime.GOOS {
	case "windows":
		reserved = []string{
			`C:\Windows`,
			`C:\Program Files`,
			`C:\Program Files (x86)`,
			`C:\ProgramData\Microsoft`,
		}

	case "darwin":
		reserved = []string{
			"/System",
			"/bin",
			"/sbin",
			"/usr/bin",
			"/usr/sbin",
			"/etc",
			"/private/etc",
			"/var/db",
			"/var/log",
			"/var/root",
			"/Library/System",
			"/Applications",
		}

	default:
		reserved = []string{
			"/bin",
			"/sbin",
			"/usr/bin",
			"/usr/sbin",
			"/etc",
			"/boot",
			"/dev",
			"/proc",
			"/sys",
			"/var/lib",
			"/var/log",
			"/var/cache",
		}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return reserved
	}

	// root's home is only off limits to other users
	if runtime.GOOS != "windows" && filepath.Clean(home) != "/root" {
		reserved = append(reserved, "/root")
	}

	return append(reserved,
		filepath.Join(home, ".ssh"),
		filepath.Join(home, ".gnupg"),
		filepath.Join(home, ".aws"),
	)
}

// isUserTempDirectory reports whether path sits in a per-user or system temp
// area, which stays usable even under a reserved prefix such as /var.
func isUserTempDirectory(path string) bool {
	switch runtime.GOOS {
	case "darwin":
		if strings.Contains(path, "/var/folders/") {
			return true
		}
	case "linux":
		if path == "/tmp" || strings.HasPrefix(path, "/tmp/") {
			return true
		}
	case "windows":
		lower := strings.ToLower(path)
		if strings.Contains(lower, `\temp\`) || strings.Contains(lower, `\tmp\`) {
			return true
		}
	}

	systemTemp := filepath.Clean(os.TempDir())
	cleanPath := filepath.Clean(path)
	return cleanPath == systemTemp || strings.HasPrefix(cleanPath, systemTemp+string(os.PathSeparator))
}
