package testfs

import (
	"iter"
	"path/filepath"
	"slices"
	"testing"

	"github.com/ivoronin/dupescan/internal/types"
)

// -----------------------------------------------------------------------------
// Assertion Functions
// -----------------------------------------------------------------------------

// AssertDir verifies that the files and symlinks expected in dir exist, and
// that no other regular files do.
func AssertDir(t *testing.T, root string, expected Dir) {
	t.Helper()

	actual, err := Reap(filepath.Join(root, expected.Path))
	if err != nil {
		t.Fatalf("reap %s: %v", expected.Path, err)
	}

	var want []string
	for _, f := range expected.Files {
		want = append(want, f.Path...)
	}
	slices.Sort(want)
	if !slices.Equal(actual.Files, want) {
		t.Errorf("%s: files on disk = %v, want %v", expected.Path, actual.Files, want)
	}

	for _, sym := range expected.Symlinks {
		target, ok := actual.Symlinks[sym.Path]
		if !ok {
			t.Errorf("expected symlink not found: %s", sym.Path)
			continue
		}
		if want := filepath.Join(root, sym.Target); target != want {
			t.Errorf("symlink %s: got target %q, want %q", sym.Path, target, want)
		}
	}
}

// Drain collects a record sequence, failing the test on the first error.
func Drain(t *testing.T, seq iter.Seq2[*types.FileRecord, error]) []*types.FileRecord {
	t.Helper()
	var records []*types.FileRecord
	for r, err := range seq {
		if err != nil {
			t.Fatalf("iterate records: %v", err)
		}
		records = append(records, r)
	}
	return records
}

// FullNames returns the full names of records, sorted.
func FullNames(records []*types.FileRecord) []string {
	names := make([]string, len(records))
	for i, r := range records {
		names[i] = r.FullName
	}
	slices.Sort(names)
	return names
}

// AssertFullNames verifies that records name exactly want (in any order).
func AssertFullNames(t *testing.T, what string, records []*types.FileRecord, want ...string) {
	t.Helper()

	got := FullNames(records)
	want = slices.Clone(want)
	slices.Sort(want)
	if !slices.Equal(got, want) {
		t.Errorf("%s = %v, want %v", what, got, want)
	}
}
