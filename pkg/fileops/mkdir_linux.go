//go:build linux

package fileops

import (
	"fmt"
	"os"

	securejoin "github.com/cyphar/filepath-securejoin"
)

// mkdirInRoot creates rel and any missing parents below root. Every component
// is resolved relative to an fd on root, so a segment swapped for a symlink
// mid-call cannot redirect creation outside it.
func mkdirInRoot(root, rel string, mode os.FileMode) error {
	if err := securejoin.MkdirAll(root, rel, mode); err != nil {
		return fmt.Errorf("failed to make directory: %w", err)
	}
	return nil
}
