// Package fileio holds small file helpers shared by the persistent stores
package fileio

import (
	"os"
	"path/filepath"

	fileutil "github.com/projectdiscovery/utils/file"
)

// WriteAtomic writes data to a temporary file next to path and renames it
// into place, creating the parent directory when missing
func WriteAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if !fileutil.FolderExists(dir) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}
