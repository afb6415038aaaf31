//go:build unix

package testfs

import (
	"path/filepath"
	"testing"
)

// -----------------------------------------------------------------------------
// Harness - Integration Test API
// -----------------------------------------------------------------------------

// Harness owns a temporary directory populated from a FileTree.
//
// Usage:
//
//	h := testfs.New(t, given)
//	dups, err := eng.FindDuplicates(ctx, []string{h.Path("1"), h.Path("2")})
//	// ... delete some files
//	h.Assert(then)
type Harness struct {
	t    *testing.T
	root string
}

// New creates the tree below t.TempDir(). The directory is removed by the
// testing package when the test ends.
func New(t *testing.T, given FileTree) *Harness {
	t.Helper()

	h := &Harness{t: t, root: t.TempDir()}
	if err := SowFileTree(h.root, given); err != nil {
		t.Fatalf("failed to setup files: %v", err)
	}
	return h
}

// Root returns the temporary directory root path.
func (h *Harness) Root() string {
	return h.root
}

// Path joins elements onto the root.
func (h *Harness) Path(elem ...string) string {
	return filepath.Join(append([]string{h.root}, elem...)...)
}

// Paths joins each relative path onto the root.
func (h *Harness) Paths(rels ...string) []string {
	out := make([]string, len(rels))
	for i, rel := range rels {
		out[i] = h.Path(rel)
	}
	return out
}

// Assert verifies every directory of expected against the disk.
func (h *Harness) Assert(expected FileTree) {
	h.t.Helper()

	for _, dir := range expected.Dirs {
		AssertDir(h.t, h.root, dir)
	}
}
