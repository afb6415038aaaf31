// Package pathnorm resolves filesystem paths to their requested-absolute and
// canonical (symlink-resolved) forms, used to detect aliasing.
package pathnorm

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Root is a scan root in its three forms.
type Root struct {
	Path      string // As requested by the caller
	Absolute  string // Absolute, not canonicalized
	Canonical string // Symlinks resolved
}

// Resolve returns the absolute and canonical forms of path.
func Resolve(path string) (Root, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Root{}, fmt.Errorf("resolve %s: %w", path, err)
	}
	canonical, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return Root{}, fmt.Errorf("resolve %s: %w", path, err)
	}
	return Root{Path: path, Absolute: abs, Canonical: canonical}, nil
}

// Join returns the full, absolute and canonical names of rel below the root.
//
// The canonical form is exact only when no path component of rel is a
// symlink, which holds for anything a non-following walker reaches.
func (r Root) Join(rel string) (fullName, absolute, canonical string) {
	return filepath.Join(r.Path, rel), filepath.Join(r.Absolute, rel), filepath.Join(r.Canonical, rel)
}

// WithSeparator returns the cleaned path terminated by exactly one separator,
// so that prefix checks are directory-aware ("/a/" never prefixes "/ab/").
func WithSeparator(path string) string {
	cleaned := filepath.Clean(path)
	if strings.HasSuffix(cleaned, string(os.PathSeparator)) {
		return cleaned
	}
	return cleaned + string(os.PathSeparator)
}

// IsStrictDescendant reports whether child lies strictly inside parent.
func IsStrictDescendant(parent, child string) bool {
	p, c := WithSeparator(parent), WithSeparator(child)
	return p != c && strings.HasPrefix(c, p)
}
