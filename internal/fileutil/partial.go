package fileutil

import (
	"os"
	"path/filepath"
	"strings"
)

// LegacyPartialSuffix marks downloads interrupted by older mirror versions.
const LegacyPartialSuffix = ".bak"

// PartialMarkers lists leftovers of interrupted writes to path: pending temp
// files (".<name><digits>") and "<name>.bak". Results are absolute paths.
func PartialMarkers(path string) []string {
	dir, name := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	tempPrefix := "." + name
	var markers []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		entryName := entry.Name()
		switch {
		case entryName == name+LegacyPartialSuffix:
		case strings.HasPrefix(entryName, tempPrefix) && isDigits(entryName[len(tempPrefix):]):
		default:
			continue
		}
		markers = append(markers, filepath.Join(dir, entryName))
	}
	return markers
}

// RemoveAll deletes every path, ignoring ones that are already gone, and
// returns the first other failure.
func RemoveAll(paths []string) error {
	var firstErr error
	for _, path := range paths {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
