// Package fileops is a path-safety layer: it validates untrusted paths against
// a trusted base directory and performs the few disk operations that must not
// be raced.
//
// Every failure is an *Error carrying a Kind. Match kinds with errors.Is
// against the sentinels (ErrTraversal, ErrOutOfBounds, ErrSymlinkRejected,
// ErrNotADirectory, ErrNotAFile, ErrPermission, ErrNotFound) or read them with
// KindOf. Nothing in this package falls back to a default location or repairs
// an unsafe path.
//
// # Validation Pipeline
//
// JoinSafePath runs the checks in order and stops at the first failure:
//
// 1. **Raw text**: IsPathTraversal() - absolute paths, ".." segments, NUL bytes
// 2. **Normalization**: NormalizePath() - collapses separators and "." segments
// 3. **Containment**: IsPathInBounds() - symlink-resolved, segment-aligned
//
// # Example: Materializing a Downloaded File
//
//	name, err := fileops.SanitizeFilename(remoteName)
//	if err != nil {
//	    return err
//	}
//	sp, err := fileops.NewSafePath(downloadDir, nil)
//	if err != nil {
//	    return err
//	}
//	if err := sp.EnsureDir("incoming"); err != nil {
//	    return err
//	}
//	return sp.Write(filepath.Join("incoming", name), body)
//
// # Atomic Operations
//
// SafeWriteFile, SafeReadFile, SafeEnsureDirectory and SafeCopyFile
// re-validate immediately before acting and address the target through an
// os.Root. Writes go to an O_EXCL temporary file that is renamed over the
// target. Reads compare the opened file with the entry inspected before
// opening. A write never creates its parent directory.
//
// # Permissions
//
// DefaultPermissionPolicy forbids group and other access (mask 0077).
// Configuration loaders call ValidateConfigFilePermissions before reading a
// file that may hold secrets. AuditTree and FixPermissions apply a policy to a
// whole tree.
package fileops
