// Package fileutil provides small file helpers shared by the pipeline.
package fileutil

import (
	"fmt"
	"os"
	"path/filepath"
)

// Exists returns true if the path exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// IsNonEmpty returns true if the file exists with non-zero size.
func IsNonEmpty(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Size() > 0
}

// SizeOf returns the file size, or 0 with an error.
func SizeOf(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", path, err)
	}
	return info.Size(), nil
}

// RemoveGlob removes every path matching the pattern, best effort. It
// returns the number removed and the first removal error, if any.
func RemoveGlob(pattern string) (int, error) {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return 0, fmt.Errorf("glob %s: %w", pattern, err)
	}
	var removed int
	var firstErr error
	for _, m := range matches {
		if err := os.Remove(m); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		removed++
	}
	return removed, firstErr
}

// WriteTmpThenMove writes a file through a temporary sibling and renames it
// into place, so a crash never leaves a partially written final file.
func WriteTmpThenMove(outPath string, writeFunc func(tmpPath string) error) error {
	tmpPath := outPath + ".tmp"
	if err := writeFunc(tmpPath); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := syncFile(tmpPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := os.Rename(tmpPath, outPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp to final: %w", err)
	}
	return nil
}

func syncFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	err = f.Sync()
	closeErr := f.Close()
	if err != nil {
		return err
	}
	return closeErr
}
