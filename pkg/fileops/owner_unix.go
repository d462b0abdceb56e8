//go:build unix

package fileops

import (
	"errors"
	"fmt"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// openNoFollow refuses to open a final path component that is a symlink.
const openNoFollow = unix.O_NOFOLLOW

// GetOwner returns the uid and gid of path itself, without following a
// final symlink.
func GetOwner(path string) (Owner, error) {
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		if errors.Is(err, unix.ENOENT) {
			return UnknownOwner, newError(KindNotFound, "owner", path, err)
		}
		return UnknownOwner, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	return Owner{UID: int(st.Uid), GID: int(st.Gid), Known: true}, nil
}

// ownerOf reads the owner recorded in info, so it describes the same inode
// as the rest of info.
func ownerOf(info os.FileInfo) Owner {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return UnknownOwner
	}
	return Owner{UID: int(st.Uid), GID: int(st.Gid), Known: true}
}
