package testfs

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// -----------------------------------------------------------------------------
// Reap Operations - Capture filesystem state
// -----------------------------------------------------------------------------

// Reaped is the on-disk state of one directory.
type Reaped struct {
	Files    []string          // Regular files, relative, sorted
	Symlinks map[string]string // Link path (relative) to raw target
}

// Reap walks dir without following symlinks and records what it finds.
func Reap(dir string) (*Reaped, error) {
	r := &Reaped{Symlinks: make(map[string]string)}

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		switch {
		case d.Type()&fs.ModeSymlink != 0:
			target, err := os.Readlink(path)
			if err != nil {
				return err
			}
			r.Symlinks[rel] = target
		case d.Type().IsRegular():
			r.Files = append(r.Files, rel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(r.Files)
	return r, nil
}
