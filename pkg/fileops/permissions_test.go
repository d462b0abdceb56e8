package fileops

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func createFileWithMode(t *testing.T, dir, name string, mode os.FileMode) string {
	t.Helper()
	path := createTestFile(t, dir, name, "secret: value\n")
	if err := os.Chmod(path, mode); err != nil {
		t.Fatalf("Failed to chmod %s: %v", path, err)
	}
	return path
}

func TestIsPermissionTooPermissive(t *testing.T) {
	skipOnWindows(t)
	tempDir := createTempDir(t)

	tests := []struct {
		name     string
		mode     os.FileMode
		expected bool
	}{
		{name: "world read write execute", mode: 0o777, expected: true},
		{name: "world read write", mode: 0o666, expected: true},
		{name: "world readable", mode: 0o644, expected: true},
		{name: "group readable", mode: 0o640, expected: true},
		{name: "group writable", mode: 0o620, expected: true},
		{name: "other executable", mode: 0o701, expected: true},
		{name: "owner read write", mode: 0o600, expected: false},
		{name: "owner read only", mode: 0o400, expected: false},
		{name: "owner all", mode: 0o700, expected: false},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := createFileWithMode(t, tempDir, "file"+string(rune('a'+i)), tt.mode)

			got, err := IsPermissionTooPermissive(path)
			if err != nil {
				t.Fatalf("IsPermissionTooPermissive failed: %v", err)
			}
			if got != tt.expected {
				t.Errorf("IsPermissionTooPermissive(%04o) = %v, want %v", tt.mode, got, tt.expected)
			}
		})
	}

	t.Run("missing file", func(t *testing.T) {
		_, err := IsPermissionTooPermissive(filepath.Join(tempDir, "missing"))
		expectKind(t, err, KindNotFound)
	})
}

func TestValidateConfigFilePermissions(t *testing.T) {
	skipOnWindows(t)
	tempDir := createTempDir(t)

	t.Run("owner only config passes", func(t *testing.T) {
		path := createFileWithMode(t, tempDir, "ok.yaml", 0o600)
		if err := ValidateConfigFilePermissions(path); err != nil {
			t.Errorf("Expected 0600 config to pass, got %v", err)
		}
	})

	t.Run("world readable config fails", func(t *testing.T) {
		path := createFileWithMode(t, tempDir, "readable.yaml", 0o644)
		err := ValidateConfigFilePermissions(path)
		expectKind(t, err, KindPermissionTooOpen)
		if !errors.Is(err, ErrPermission) {
			t.Errorf("Expected errors.Is(err, ErrPermission)")
		}
	})

	t.Run("world writable config fails", func(t *testing.T) {
		path := createFileWithMode(t, tempDir, "open.yaml", 0o777)
		expectKind(t, ValidateConfigFilePermissions(path), KindPermissionTooOpen)
	})

	t.Run("missing config", func(t *testing.T) {
		expectKind(t, ValidateConfigFilePermissions(filepath.Join(tempDir, "none.yaml")), KindNotFound)
	})
}

func TestGetFilePermissions(t *testing.T) {
	skipOnWindows(t)
	tempDir := createTempDir(t)
	path := createFileWithMode(t, tempDir, "desc.txt", 0o640)

	t.Run("regular file", func(t *testing.T) {
		desc, err := GetFilePermissions(path)
		if err != nil {
			t.Fatalf("GetFilePermissions failed: %v", err)
		}
		if desc.Mode != 0o640 {
			t.Errorf("Mode = %04o, want 0640", desc.Mode)
		}
		if desc.Octal() != "0640" {
			t.Errorf("Octal = %q, want 0640", desc.Octal())
		}
		if !desc.GroupAccess() {
			t.Error("Expected group access for 0640")
		}
		if desc.OtherAccess() {
			t.Error("Expected no other access for 0640")
		}
		if desc.IsDir || desc.IsSymlink {
			t.Errorf("Unexpected type flags: %+v", desc)
		}
		if !desc.Owner.Known || desc.Owner.UID != os.Getuid() || desc.Owner.GID < 0 {
			t.Errorf("Owner = %+v, want uid %d", desc.Owner, os.Getuid())
		}
	})

	t.Run("directory", func(t *testing.T) {
		dir := createTestDir(t, tempDir, "dir")
		desc, err := GetFilePermissions(dir)
		if err != nil {
			t.Fatalf("GetFilePermissions failed: %v", err)
		}
		if !desc.IsDir {
			t.Error("Expected IsDir")
		}
	})

	t.Run("symlink describes its target", func(t *testing.T) {
		link := filepath.Join(tempDir, "desc_link")
		createTestSymlink(t, path, link)

		desc, err := GetFilePermissions(link)
		if err != nil {
			t.Fatalf("GetFilePermissions failed: %v", err)
		}
		if !desc.IsSymlink {
			t.Error("Expected IsSymlink")
		}
		if desc.Mode != 0o640 {
			t.Errorf("Mode = %04o, want target mode 0640", desc.Mode)
		}
	})

	t.Run("symlink owner is the target owner", func(t *testing.T) {
		if os.Geteuid() != 0 {
			t.Skip("changing link ownership requires root")
		}
		link := filepath.Join(tempDir, "owned_link")
		createTestSymlink(t, path, link)
		if err := os.Lchown(link, 4321, 4321); err != nil {
			t.Fatalf("Lchown failed: %v", err)
		}

		desc, err := GetFilePermissions(link)
		if err != nil {
			t.Fatalf("GetFilePermissions failed: %v", err)
		}
		target, err := GetOwner(path)
		if err != nil {
			t.Fatalf("GetOwner failed: %v", err)
		}
		if desc.Owner != target {
			t.Errorf("Owner = %+v, want target owner %+v", desc.Owner, target)
		}
		linkOwner, err := GetOwner(link)
		if err != nil {
			t.Fatalf("GetOwner failed: %v", err)
		}
		if linkOwner.UID != 4321 {
			t.Errorf("GetOwner(link) = %+v, want the link's own uid 4321", linkOwner)
		}
	})

	t.Run("missing path", func(t *testing.T) {
		_, err := GetFilePermissions(filepath.Join(tempDir, "missing"))
		expectKind(t, err, KindNotFound)
	})
}

func TestGetOwner(t *testing.T) {
	skipOnWindows(t)
	tempDir := createTempDir(t)
	path := createTestFile(t, tempDir, "owned.txt", "x")

	owner, err := GetOwner(path)
	if err != nil {
		t.Fatalf("GetOwner failed: %v", err)
	}
	if !owner.Known || owner.UID != os.Getuid() || owner.GID != os.Getgid() {
		t.Errorf("GetOwner = %+v, want uid %d gid %d", owner, os.Getuid(), os.Getgid())
	}

	_, err = GetOwner(filepath.Join(tempDir, "missing"))
	expectKind(t, err, KindNotFound)
}

func TestPermissionPolicy(t *testing.T) {
	strict := DefaultPermissionPolicy
	groupRead := PermissionPolicy{ForbiddenBits: 0o037}

	tests := []struct {
		name     string
		policy   PermissionPolicy
		mode     os.FileMode
		allowed  bool
		tightens os.FileMode
	}{
		{name: "strict allows 0600", policy: strict, mode: 0o600, allowed: true, tightens: 0o600},
		{name: "strict rejects 0644", policy: strict, mode: 0o644, allowed: false, tightens: 0o600},
		{name: "strict rejects 0777", policy: strict, mode: 0o777, allowed: false, tightens: 0o700},
		{name: "group read allows 0640", policy: groupRead, mode: 0o640, allowed: true, tightens: 0o640},
		{name: "group read rejects 0660", policy: groupRead, mode: 0o660, allowed: false, tightens: 0o640},
		{name: "type bits ignored", policy: strict, mode: os.ModeDir | 0o700, allowed: true, tightens: 0o700},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.policy.Allows(tt.mode); got != tt.allowed {
				t.Errorf("Allows(%v) = %v, want %v", tt.mode, got, tt.allowed)
			}
			if got := tt.policy.Tighten(tt.mode); got != tt.tightens {
				t.Errorf("Tighten(%v) = %04o, want %04o", tt.mode, got, tt.tightens)
			}
		})
	}
}

func TestFixPermissions(t *testing.T) {
	skipOnWindows(t)
	tempDir := createTempDir(t)

	t.Run("tightens a loose file", func(t *testing.T) {
		path := createFileWithMode(t, tempDir, "loose.yaml", 0o664)

		changed, err := FixPermissions(path, DefaultPermissionPolicy)
		if err != nil {
			t.Fatalf("FixPermissions failed: %v", err)
		}
		if !changed {
			t.Error("Expected the mode to change")
		}
		info, _ := os.Stat(path)
		if info.Mode().Perm() != 0o600 {
			t.Errorf("Mode after fix = %04o, want 0600", info.Mode().Perm())
		}

		changed, err = FixPermissions(path, DefaultPermissionPolicy)
		if err != nil || changed {
			t.Errorf("Second FixPermissions = (%v, %v), want (false, nil)", changed, err)
		}
	})

	t.Run("never loosens", func(t *testing.T) {
		path := createFileWithMode(t, tempDir, "tight.yaml", 0o400)
		changed, err := FixPermissions(path, DefaultPermissionPolicy)
		if err != nil || changed {
			t.Errorf("FixPermissions = (%v, %v), want (false, nil)", changed, err)
		}
	})

	t.Run("tightens a directory", func(t *testing.T) {
		dir := createTestDir(t, tempDir, "opendir")
		if err := os.Chmod(dir, 0o777); err != nil {
			t.Fatalf("chmod failed: %v", err)
		}
		if _, err := FixPermissions(dir, DefaultPermissionPolicy); err != nil {
			t.Fatalf("FixPermissions failed: %v", err)
		}
		info, _ := os.Stat(dir)
		if info.Mode().Perm() != 0o700 {
			t.Errorf("Mode after fix = %04o, want 0700", info.Mode().Perm())
		}
	})

	t.Run("refuses symlinks", func(t *testing.T) {
		target := createFileWithMode(t, tempDir, "target.yaml", 0o644)
		link := filepath.Join(tempDir, "fix_link")
		createTestSymlink(t, target, link)

		_, err := FixPermissions(link, DefaultPermissionPolicy)
		expectKind(t, err, KindSymlinkRejected)

		info, _ := os.Stat(target)
		if info.Mode().Perm() != 0o644 {
			t.Errorf("Symlink target was modified: %04o", info.Mode().Perm())
		}
	})

	t.Run("missing path", func(t *testing.T) {
		_, err := FixPermissions(filepath.Join(tempDir, "missing"), DefaultPermissionPolicy)
		expectKind(t, err, KindNotFound)
	})
}
