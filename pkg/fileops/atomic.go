package fileops

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
)

const (
	// DefaultDirMode is applied to every directory this package creates.
	DefaultDirMode os.FileMode = 0o700
	// DefaultFileMode is applied to every file this package writes.
	DefaultFileMode os.FileMode = 0o600
)

// ErrFileTooLarge is returned when a read exceeds its size limit.
var ErrFileTooLarge = errors.New("file exceeds size limit")

// opSettings carries the modes and limits one operation runs with.
type opSettings struct {
	dirMode      os.FileMode
	fileMode     os.FileMode
	maxReadBytes int64
}

var defaultSettings = opSettings{dirMode: DefaultDirMode, fileMode: DefaultFileMode}

// target is a validated operation target. All I/O on it goes through an
// os.Root opened at root, addressing the entry as rel.
type target struct {
	op      string
	path    string
	root    string
	rel     string
	bounded bool

	// anchor is the deepest existing component of an unbased path.
	anchor string
}

// resolveTarget validates path for op. With a base, path is an untrusted
// relative candidate run through JoinSafePath, and no existing component
// between base and the target may be a symlink. Without a base, path is taken
// as given, confined to its parent directory, and no existing component below
// the top level of the filesystem may be a symlink.
func resolveTarget(op, path, base string) (target, error) {
	if base == "" {
		abs, err := filepath.Abs(path)
		if err != nil {
			return target{}, fmt.Errorf("failed to get absolute path: %w", err)
		}
		anchor, err := checkUnbasedPath(op, abs)
		if err != nil {
			return target{}, err
		}
		return target{
			op:     op,
			path:   abs,
			root:   filepath.Dir(abs),
			rel:    filepath.Base(abs),
			anchor: anchor,
		}, nil
	}

	if err := validateBaseDirectory(op, base); err != nil {
		return target{}, err
	}

	joined, err := JoinSafePath(base, path)
	if err != nil {
		return target{}, err
	}

	absBase, err := filepath.Abs(base)
	if err != nil {
		return target{}, fmt.Errorf("failed to get absolute path: %w", err)
	}
	joined, err = filepath.Abs(joined)
	if err != nil {
		return target{}, fmt.Errorf("failed to get absolute path: %w", err)
	}
	rel, err := filepath.Rel(absBase, joined)
	if err != nil {
		return target{}, newError(KindOutOfBounds, op, path, err)
	}

	if err := rejectSymlinkComponents(op, absBase, rel); err != nil {
		return target{}, err
	}

	return target{op: op, path: joined, root: absBase, rel: rel, bounded: true}, nil
}

// validateBaseDirectory requires base to exist as a real directory.
func validateBaseDirectory(op, base string) error {
	info, err := os.Lstat(base)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return newError(KindNotFound, op, base, err)
		}
		return fmt.Errorf("failed to stat base directory: %w", err)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return newError(KindSymlinkRejected, op, base, nil)
	}
	if !info.IsDir() {
		return newError(KindNotADirectory, op, base, nil)
	}
	return nil
}

// classifyStatError maps an lstat failure on t to a typed error.
func classifyStatError(t target, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return newError(KindNotFound, t.op, t.path, err)
	case errors.Is(err, syscall.ENOTDIR):
		return newError(KindNotADirectory, t.op, filepath.Dir(t.path), err)
	default:
		return fmt.Errorf("failed to stat %s: %w", t.path, err)
	}
}

// SafeEnsureDirectory makes sure path exists as a real directory. When base is
// non-empty, path is an untrusted candidate relative to base and is joined
// with JoinSafePath first.
//
// It fails with a KindSymlinkRejected error when the target, or any component
// between base and the target, is a symlink. Without a base the same holds for
// every component below the top level of the filesystem, so system links such
// as darwin's /tmp are followed but a link anywhere deeper is not. It fails
// with a KindNotADirectory error when something other than a directory
// occupies the path. Missing segments are created with DefaultDirMode. On
// Linux creation goes through securejoin so each segment is opened relative
// to its parent.
//
// Usage example:
//
//	if err := fileops.SafeEnsureDirectory("exports/2024", baseDir); err != nil {
//	    return err
//	}
func SafeEnsureDirectory(path, base string) error {
	return ensureDirectory(path, base, defaultSettings)
}

func ensureDirectory(path, base string, s opSettings) error {
	t, err := resolveTarget("ensure directory", path, base)
	if err != nil {
		return err
	}

	info, err := os.Lstat(t.path)
	if err == nil {
		return checkDirectory(t, info)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return classifyStatError(t, err)
	}

	if t.bounded {
		err = mkdirInRoot(t.root, t.rel, s.dirMode)
	} else {
		var rel string
		rel, err = filepath.Rel(t.anchor, t.path)
		if err == nil {
			err = mkdirInRoot(t.anchor, rel, s.dirMode)
		}
	}
	if err != nil {
		if errors.Is(err, syscall.ENOTDIR) {
			return newError(KindNotADirectory, t.op, t.path, err)
		}
		return fmt.Errorf("failed to create directory %s: %w", t.path, err)
	}

	// whatever now sits at the path must still be a real directory
	info, err = os.Lstat(t.path)
	if err != nil {
		return classifyStatError(t, err)
	}
	return checkDirectory(t, info)
}

func checkDirectory(t target, info os.FileInfo) error {
	if info.Mode()&os.ModeSymlink != 0 {
		return newError(KindSymlinkRejected, t.op, t.path, nil)
	}
	if !info.IsDir() {
		return newError(KindNotADirectory, t.op, t.path, nil)
	}
	return nil
}

// SafeWriteFile atomically replaces path with content. When base is
// non-empty, path is an untrusted candidate relative to base.
//
// The content goes to a uniquely named temporary file created with O_EXCL in
// the target's directory, is synced, and is renamed over the target through
// an os.Root, so the target either holds the old bytes or the new ones and a
// symlink planted at the target is replaced rather than followed. Symlink
// targets fail with a KindSymlinkRejected error, directories with a
// KindNotAFile error. The parent directory must already exist, otherwise the
// call fails with a KindNotFound error: call SafeEnsureDirectory first.
func SafeWriteFile(path string, content []byte, base string) error {
	return writeFile(path, base, defaultSettings, func(w io.Writer) error {
		_, err := w.Write(content)
		return err
	})
}

func writeFile(path, base string, s opSettings, fill func(io.Writer) error) error {
	t, err := resolveTarget("write", path, base)
	if err != nil {
		return err
	}
	return writeAtomic(t, s.fileMode, fill)
}

func writeAtomic(t target, mode os.FileMode, fill func(io.Writer) error) error {
	info, err := os.Lstat(t.path)
	switch {
	case err == nil:
		if info.Mode()&os.ModeSymlink != 0 {
			return newError(KindSymlinkRejected, t.op, t.path, nil)
		}
		if !info.Mode().IsRegular() {
			return newError(KindNotAFile, t.op, t.path, nil)
		}
	case !errors.Is(err, fs.ErrNotExist):
		return classifyStatError(t, err)
	}

	parent := filepath.Dir(t.path)
	parentInfo, err := os.Stat(parent)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return newError(KindNotFound, t.op, parent, err)
		}
		return fmt.Errorf("failed to stat parent directory: %w", err)
	}
	if !parentInfo.IsDir() {
		return newError(KindNotADirectory, t.op, parent, nil)
	}

	root, err := os.OpenRoot(t.root)
	if err != nil {
		return fmt.Errorf("failed to open root %s: %w", t.root, err)
	}
	defer root.Close()

	tempRel := filepath.Join(filepath.Dir(t.rel), "."+filepath.Base(t.rel)+"."+uuid.NewString()+".tmp")
	tempFile, err := root.OpenFile(tempRel, os.O_WRONLY|os.O_CREATE|os.O_EXCL|openNoFollow, mode)
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}

	var committed bool
	defer func() {
		tempFile.Close()
		if !committed {
			root.Remove(tempRel)
		}
	}()

	if err := fill(tempFile); err != nil {
		return fmt.Errorf("failed to write file contents: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("failed to close temporary file: %w", err)
	}

	if err := root.Rename(tempRel, t.rel); err != nil {
		return fmt.Errorf("failed to move file into place: %w", err)
	}
	committed = true

	return nil
}

// SafeReadFile reads path, refusing symlinks. When base is non-empty, path is
// an untrusted candidate relative to base. A missing file fails with a
// KindNotFound error and a non-regular entry with a KindNotAFile error.
func SafeReadFile(path, base string) ([]byte, error) {
	return readFile(path, base, defaultSettings)
}

// SafeReadFileLimit is SafeReadFile that refuses files larger than maxBytes
// with ErrFileTooLarge. A maxBytes of zero or less means no limit.
func SafeReadFileLimit(path, base string, maxBytes int64) ([]byte, error) {
	s := defaultSettings
	s.maxReadBytes = maxBytes
	return readFile(path, base, s)
}

func readFile(path, base string, s opSettings) ([]byte, error) {
	t, err := resolveTarget("read", path, base)
	if err != nil {
		return nil, err
	}

	info, err := os.Lstat(t.path)
	if err != nil {
		if errors.Is(err, syscall.ENOTDIR) {
			return nil, newError(KindNotFound, t.op, t.path, err)
		}
		return nil, classifyStatError(t, err)
	}
	if err := checkRegularFile(t, info); err != nil {
		return nil, err
	}
	if s.maxReadBytes > 0 && info.Size() > s.maxReadBytes {
		return nil, fmt.Errorf("%s: %w (%d > %d bytes)", t.path, ErrFileTooLarge, info.Size(), s.maxReadBytes)
	}

	root, err := os.OpenRoot(t.root)
	if err != nil {
		return nil, fmt.Errorf("failed to open root %s: %w", t.root, err)
	}
	defer root.Close()

	f, err := root.OpenFile(t.rel, os.O_RDONLY|openNoFollow, 0)
	if err != nil {
		return nil, classifyOpenError(t, err)
	}
	defer f.Close()

	if err := checkSameFile(t, info, f); err != nil {
		return nil, err
	}

	var reader io.Reader = f
	if s.maxReadBytes > 0 {
		reader = io.LimitReader(f, s.maxReadBytes+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", t.path, err)
	}
	if s.maxReadBytes > 0 && int64(len(data)) > s.maxReadBytes {
		return nil, fmt.Errorf("%s: %w (limit %d bytes)", t.path, ErrFileTooLarge, s.maxReadBytes)
	}
	return data, nil
}

func checkRegularFile(t target, info os.FileInfo) error {
	if info.Mode()&os.ModeSymlink != 0 {
		return newError(KindSymlinkRejected, t.op, t.path, nil)
	}
	if !info.Mode().IsRegular() {
		return newError(KindNotAFile, t.op, t.path, nil)
	}
	return nil
}

// checkSameFile fails when the opened file is not the entry that was
// inspected before opening, meaning it was swapped in between.
func checkSameFile(t target, before os.FileInfo, f *os.File) error {
	after, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat opened file: %w", err)
	}
	if !os.SameFile(before, after) {
		return newError(KindSymlinkRejected, t.op, t.path, errors.New("entry replaced while opening"))
	}
	return nil
}

func classifyOpenError(t target, err error) error {
	switch {
	case errors.Is(err, syscall.ELOOP):
		return newError(KindSymlinkRejected, t.op, t.path, err)
	case errors.Is(err, fs.ErrNotExist):
		return newError(KindNotFound, t.op, t.path, err)
	default:
		return fmt.Errorf("failed to open %s: %w", t.path, err)
	}
}

// SafeCopyFile copies the regular file src to dst using the same atomic path
// as SafeWriteFile. src must not be a symlink. When base is non-empty, dst is
// an untrusted candidate relative to base; src is trusted and taken as given.
func SafeCopyFile(src, dst, base string) error {
	return copyFile(src, dst, base, defaultSettings)
}

func copyFile(src, dst, base string, s opSettings) error {
	const op = "copy"

	srcTarget := target{op: op, path: src}
	info, err := os.Lstat(src)
	if err != nil {
		return classifyStatError(srcTarget, err)
	}
	if err := checkRegularFile(srcTarget, info); err != nil {
		return err
	}

	srcFile, err := os.OpenFile(src, os.O_RDONLY|openNoFollow, 0)
	if err != nil {
		return classifyOpenError(srcTarget, err)
	}
	defer srcFile.Close()

	if err := checkSameFile(srcTarget, info, srcFile); err != nil {
		return err
	}

	dstTarget, err := resolveTarget(op, dst, base)
	if err != nil {
		return err
	}
	return writeAtomic(dstTarget, s.fileMode, func(w io.Writer) error {
		_, err := io.Copy(w, srcFile)
		return err
	})
}

// removeEntry deletes a regular file or empty directory. The base directory
// itself and symlinks are refused.
func removeEntry(path, base string) error {
	t, err := resolveTarget("remove", path, base)
	if err != nil {
		return err
	}
	if t.bounded && t.rel == "." {
		return newError(KindOutOfBounds, t.op, path, errors.New("refusing to remove the base directory"))
	}

	info, err := os.Lstat(t.path)
	if err != nil {
		return classifyStatError(t, err)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return newError(KindSymlinkRejected, t.op, t.path, nil)
	}

	root, err := os.OpenRoot(t.root)
	if err != nil {
		return fmt.Errorf("failed to open root %s: %w", t.root, err)
	}
	defer root.Close()

	if err := root.Remove(t.rel); err != nil {
		return fmt.Errorf("failed to remove %s: %w", t.path, err)
	}
	return nil
}
