//go:build !unix

package fileops

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

const openNoFollow = 0

// GetOwner returns UnknownOwner for an existing path; this platform has no
// POSIX ownership.
func GetOwner(path string) (Owner, error) {
	if _, err := os.Lstat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return UnknownOwner, newError(KindNotFound, "owner", path, err)
		}
		return UnknownOwner, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	return UnknownOwner, nil
}

func ownerOf(os.FileInfo) Owner {
	return UnknownOwner
}
