// Package atomicfile writes files so that a concurrent reader always
// observes either the previous contents or the complete new contents,
// never a partial write.
package atomicfile

import (
	"fmt"
	"os"
	"path/filepath"
)

// Write creates the parent directory if needed, writes data to a sibling
// temp file, fsyncs it, then renames it over path. The rename is atomic on
// the host filesystem; cross-device renames are not handled.
func Write(path string, data []byte) error {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", path, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file for %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to fsync temp file for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file for %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file into %s: %w", path, err)
	}
	return nil
}

// WriteText is a convenience wrapper over Write for string content.
func WriteText(path string, contents string) error {
	return Write(path, []byte(contents))
}
