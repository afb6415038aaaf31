// Package resolver validates requested scan roots and removes roots that
// another requested root already covers.
//
// # Why This Matters
//
// A file reachable under two requested roots would be indexed twice with two
// different scan roots, manufacturing a false duplicate (or hiding a unique
// file). Dropping covered roots before walking keeps every file indexed once.
//
// # Policy
//
//	Input roots (canonical, separator-terminated)
//	    │
//	    ├──► Drop a root whose canonical path equals an earlier one (alias)
//	    │
//	    ├──► Drop a root that is a strict descendant of any other root
//	    │
//	    └──► Output: kept roots in request order, plus the ignored ones
//
// Chains (/a, /a/b, /a/b/c) keep the outermost ancestor only.
package resolver

import (
	"errors"
	"os"

	"github.com/ivoronin/dupescan/internal/pathnorm"
	"github.com/ivoronin/dupescan/internal/types"
)

// Resolve checks that every path is an existing directory and resolves it.
// Returns *types.InvalidRootError for the first offending path.
func Resolve(paths []string) ([]pathnorm.Root, error) {
	roots := make([]pathnorm.Root, 0, len(paths))
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			reason := err.Error()
			if errors.Is(err, os.ErrNotExist) {
				reason = "no such directory"
			}
			return nil, &types.InvalidRootError{Path: p, Reason: reason}
		}
		if !info.IsDir() {
			return nil, &types.InvalidRootError{Path: p, Reason: "not a directory"}
		}
		root, err := pathnorm.Resolve(p)
		if err != nil {
			return nil, &types.InvalidRootError{Path: p, Reason: err.Error()}
		}
		roots = append(roots, root)
	}
	return roots, nil
}

// Clean splits roots into those to scan and those already covered.
func Clean(roots []pathnorm.Root) (kept, ignored []pathnorm.Root) {
	for i, root := range roots {
		if coveredBy(roots, i) {
			ignored = append(ignored, root)
			continue
		}
		kept = append(kept, root)
	}
	return kept, ignored
}

// coveredBy reports whether roots[i] is an alias of an earlier root or a
// strict descendant of any other root.
func coveredBy(roots []pathnorm.Root, i int) bool {
	self := pathnorm.WithSeparator(roots[i].Canonical)
	for j, other := range roots {
		if j == i {
			continue
		}
		otherPath := pathnorm.WithSeparator(other.Canonical)
		if j < i && otherPath == self {
			return true
		}
		if pathnorm.IsStrictDescendant(otherPath, self) {
			return true
		}
	}
	return false
}
