package fileops

import (
	"errors"
	"fmt"
)

// Kind classifies a path-safety failure.
type Kind string

const (
	KindTraversal         Kind = "PATH_TRAVERSAL"
	KindOutOfBounds       Kind = "OUT_OF_BOUNDS"
	KindSymlinkRejected   Kind = "SYMLINK_REJECTED"
	KindNotADirectory     Kind = "NOT_A_DIRECTORY"
	KindNotAFile          Kind = "NOT_A_FILE"
	KindPermissionTooOpen Kind = "PERMISSION_TOO_OPEN"
	KindNotFound          Kind = "NOT_FOUND"
)

// Sentinel errors, one per Kind. Match them with errors.Is.
var (
	ErrTraversal       = errors.New("path traversal detected")
	ErrOutOfBounds     = errors.New("path outside base directory")
	ErrSymlinkRejected = errors.New("symlink rejected")
	ErrNotADirectory   = errors.New("not a directory")
	ErrNotAFile        = errors.New("not a regular file")
	ErrPermission      = errors.New("file permissions too permissive")
	ErrNotFound        = errors.New("path not found")
)

var kindSentinels = map[Kind]error{
	KindTraversal:         ErrTraversal,
	KindOutOfBounds:       ErrOutOfBounds,
	KindSymlinkRejected:   ErrSymlinkRejected,
	KindNotADirectory:     ErrNotADirectory,
	KindNotAFile:          ErrNotAFile,
	KindPermissionTooOpen: ErrPermission,
	KindNotFound:          ErrNotFound,
}

// Error is the typed failure returned by every validating operation in this
// package. Op names the operation, Path the offending input.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	msg := kindSentinels[e.Kind].Error()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Path != "" {
		msg = fmt.Sprintf("%s: %q", msg, e.Path)
	}
	if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for e's Kind.
func (e *Error) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

func newError(kind Kind, op, path string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: cause}
}

// KindOf returns the Kind carried by err, or "" if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
