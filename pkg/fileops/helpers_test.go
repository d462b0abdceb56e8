package fileops

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// Test helpers

// createTempDir returns a fresh, symlink-free temporary directory.
func createTempDir(t *testing.T) string {
	t.Helper()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to resolve temp directory: %v", err)
	}
	return dir
}

func createTestFile(t *testing.T, dir, filename, content string) string {
	t.Helper()
	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to create test file %s: %v", path, err)
	}
	return path
}

func createTestDir(t *testing.T, parent, name string) string {
	t.Helper()
	path := filepath.Join(parent, name)
	if err := os.MkdirAll(path, 0o700); err != nil {
		t.Fatalf("Failed to create test directory %s: %v", path, err)
	}
	return path
}

func createTestSymlink(t *testing.T, target, link string) {
	t.Helper()
	if err := os.Symlink(target, link); err != nil {
		if runtime.GOOS == "windows" {
			t.Skipf("symlink creation failed on Windows: %v", err)
		}
		t.Fatalf("failed to create symlink: %v", err)
	}
}

func readFileContent(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}

func fileExists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

func isWindows() bool {
	return runtime.GOOS == "windows"
}

func skipOnWindows(t *testing.T) {
	t.Helper()
	if isWindows() {
		t.Skip("POSIX permission semantics required")
	}
}

// expectKind fails the test unless err is an *Error of the given kind.
func expectKind(t *testing.T, err error, kind Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("Expected %s error, got nil", kind)
	}
	var e *Error
	if !errors.As(err, &e) {
		t.Fatalf("Expected *Error of kind %s, got %T: %v", kind, err, err)
	}
	if e.Kind != kind {
		t.Fatalf("Expected kind %s, got %s (%v)", kind, e.Kind, err)
	}
}
