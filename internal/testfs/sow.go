package testfs

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
)

// -----------------------------------------------------------------------------
// Sow Operations - Create filesystem from spec
// -----------------------------------------------------------------------------

// SowFileTree creates a filesystem structure from a FileTree specification
// below root.
func SowFileTree(root string, spec FileTree) error {
	for _, dir := range spec.Dirs {
		if err := sowDir(root, dir); err != nil {
			return fmt.Errorf("sow dir %s: %w", dir.Path, err)
		}
	}
	return nil
}

// sowDir creates all files and symlinks in a directory.
func sowDir(root string, dir Dir) error {
	dirPath := filepath.Join(root, dir.Path)

	if err := os.MkdirAll(dirPath, 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}

	for _, f := range dir.Files {
		for _, p := range f.Path {
			path := filepath.Join(dirPath, p)
			if err := writeChunkedFile(path, f.Chunks); err != nil {
				return fmt.Errorf("create %s: %w", path, err)
			}
		}
	}

	for _, sym := range dir.Symlinks {
		linkPath := filepath.Join(dirPath, sym.Path)
		target := filepath.Join(root, sym.Target)
		if err := createSymlink(target, linkPath); err != nil {
			return fmt.Errorf("symlink %s -> %s: %w", linkPath, target, err)
		}
	}
	return nil
}

// writeChunkedFile streams content directly to disk.
func writeChunkedFile(path string, chunks []Chunk) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	for _, c := range chunks {
		if err := writeChunk(f, c); err != nil {
			return err
		}
	}
	return nil
}

// writeChunk writes a single chunk to the file using streaming.
func writeChunk(f *os.File, c Chunk) error {
	const maxBufSize = 1 << 20 // 1MiB max buffer

	size, err := humanize.ParseBytes(c.Size)
	if err != nil {
		return fmt.Errorf("parse chunk size %q: %w", c.Size, err)
	}

	buf := bytes.Repeat([]byte{byte(c.Pattern)}, min(int(size), maxBufSize))

	remaining := int64(size)
	for remaining > 0 {
		toWrite := min(int64(len(buf)), remaining)
		if _, err := f.Write(buf[:toWrite]); err != nil {
			return err
		}
		remaining -= toWrite
	}
	return nil
}

// createSymlink creates a symlink, creating parent dirs.
func createSymlink(target, link string) error {
	if err := os.MkdirAll(filepath.Dir(link), 0o755); err != nil {
		return err
	}
	return os.Symlink(target, link)
}
