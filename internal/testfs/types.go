// Package testfs builds directory trees for tests and checks what a scan or a
// delete left behind.
//
// # FileTree Specification
//
// Tests describe a tree once and use it for setup and verification:
//
//	given := testfs.FileTree{
//	    Dirs: []testfs.Dir{
//	        {
//	            Path: "1",
//	            Files: []testfs.File{
//	                {Path: []string{"a.data", "sub/a.data"}, Chunks: []testfs.Chunk{{Pattern: 'A', Size: "4097"}}},
//	            },
//	        },
//	        {
//	            Path:     "links",
//	            Symlinks: []testfs.Symlink{{Path: "1", Target: "1"}},
//	        },
//	    },
//	}
//
//	h := testfs.New(t, given)
//	roots := []string{h.Path("1"), h.Path("links/1")}
//
// Subdirectories are created automatically from file paths (mkdir -p semantics).
//
// # Context-Dependent Field Usage
//
//	| Field          | Setup                         | Verification              |
//	|----------------|-------------------------------|---------------------------|
//	| Dir.Path       | Directory under the root      | Scope for assertions      |
//	| File.Path      | Independent copies, same data | Each path is a file       |
//	| File.Chunks    | Generate content              | Ignored                   |
//	| Symlink.Path   | Create symlink                | Assert is symlink         |
//	| Symlink.Target | Tree-relative target          | Assert symlink target     |
package testfs

import "github.com/dustin/go-humanize"

// FileTree describes a filesystem state (used for both setup and verification).
type FileTree struct {
	Dirs []Dir
}

// Dir is a directory below the harness root, typically a scan root.
type Dir struct {
	// Path is relative to the harness root, e.g. "1" or "data/sub".
	Path string

	Files    []File
	Symlinks []Symlink
}

// File defines one or more regular files with identical content.
//
// Every path is written separately, so each is its own file on disk with
// its own canonical path. Same chunks = same content = duplicates.
type File struct {
	// Path contains one or more paths relative to the Dir.
	Path []string

	// Chunks specifies file content as a sequence of filled regions.
	// Use plain byte counts or IEC units for sizes: "4097", "1KiB", "1MiB".
	Chunks []Chunk
}

// Chunk defines a region of file content filled with a pattern byte.
type Chunk struct {
	// Pattern is the fill byte for this chunk region.
	Pattern rune

	// Size parsed via go-humanize.
	Size string
}

// TotalSize calculates the sum of all chunk sizes in bytes.
func (f *File) TotalSize() int64 {
	var total int64
	for _, c := range f.Chunks {
		size, _ := humanize.ParseBytes(c.Size)
		total += int64(size)
	}
	return total
}

// Symlink defines a symbolic link.
type Symlink struct {
	// Path is relative to the Dir.
	Path string

	// Target is relative to the harness root; the link is created with the
	// absolute target path.
	Target string
}
