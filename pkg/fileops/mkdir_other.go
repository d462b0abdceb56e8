//go:build !linux

package fileops

import (
	"fmt"
	"os"
)

// mkdirInRoot creates rel and any missing parents below root, confined to
// root by os.Root.
func mkdirInRoot(root, rel string, mode os.FileMode) error {
	r, err := os.OpenRoot(root)
	if err != nil {
		return fmt.Errorf("failed to open root %s: %w", root, err)
	}
	defer r.Close()

	if err := r.MkdirAll(rel, mode); err != nil {
		return fmt.Errorf("failed to make directory: %w", err)
	}
	return nil
}
