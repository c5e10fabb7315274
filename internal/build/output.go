package build

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// OutputMissingError reports a build that exited successfully but did not
// produce its binary at the expected path. It carries a listing of the
// directory that should have contained the output, for diagnosis.
type OutputMissingError struct {
	Path    string
	Listing []string
}

func (e *OutputMissingError) Error() string {
	if len(e.Listing) == 0 {
		return fmt.Sprintf("expected build output %s not found (directory is empty or missing)", e.Path)
	}
	return fmt.Sprintf("expected build output %s not found; directory contains: %s",
		e.Path, strings.Join(e.Listing, ", "))
}

// CheckOutput verifies the compiled binary exists at path and is a regular,
// non-empty file. On absence it fails with a listing of the actual directory
// contents.
func CheckOutput(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &OutputMissingError{Path: path, Listing: listDir(filepath.Dir(path))}
		}
		return fmt.Errorf("checking build output %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("build output %s is a directory, expected a file", path)
	}
	if info.Size() == 0 {
		return fmt.Errorf("build output %s is empty", path)
	}
	return nil
}

// listDir returns the sorted entry names of dir, with directories marked by a
// trailing slash. Returns nil if the directory cannot be read.
func listDir(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
