//go:build unix

package hasher

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ivoronin/dupescan/internal/cache"
	"github.com/ivoronin/dupescan/internal/types"
)

// =============================================================================
// Section 1: Digests
// =============================================================================

// TestKnownDigests tests each algorithm against published vectors.
func TestKnownDigests(t *testing.T) {
	tests := []struct {
		algo    Algorithm
		content string
		want    string
	}{
		{MD5, "", "d41d8cd98f00b204e9800998ecf8427e"},
		{MD5, "abc", "900150983cd24fb0d6963f7d28e17f72"},
		{SHA256, "", "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"},
		{SHA256, "abc", "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"},
		{BLAKE3, "", "af1349b9f5f9a1a6a0404dea36dcc9499bcb25c9adc112b7cc9a93cae41f3262"},
		{BLAKE3, "abc", "6437b3ac38465133ffb63b75273a8db548c558465d79db03fd359c6cd5bd9d85"},
	}
	for _, tt := range tests {
		t.Run(string(tt.algo)+"/"+tt.content, func(t *testing.T) {
			path := writeFile(t, []byte(tt.content))
			got, err := New(tt.algo, nil).Hash(path)
			if err != nil {
				t.Fatalf("Hash() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Hash() = %s, want %s", got, tt.want)
			}
		})
	}
}

// TestMultiChunkContent tests files spanning several read chunks.
func TestMultiChunkContent(t *testing.T) {
	content := bytes.Repeat([]byte("0123456789abcdef"), ChunkSize/8+3)
	path := writeFile(t, content)

	got, err := New(SHA256, nil).Hash(path)
	if err != nil {
		t.Fatalf("Hash() error: %v", err)
	}
	want := sha256.Sum256(content)
	if got != hex.EncodeToString(want[:]) {
		t.Errorf("Hash() = %s, want %x", got, want)
	}
}

// TestSameContentSameDigest tests equality across distinct files.
func TestSameContentSameDigest(t *testing.T) {
	content := bytes.Repeat([]byte{'A'}, 4097)
	h := New(MD5, nil)

	a := hashOf(t, h, writeFile(t, content))
	b := hashOf(t, h, writeFile(t, content))
	c := hashOf(t, h, writeFile(t, append(content[:4096:4096], 'B')))

	if a != b {
		t.Errorf("equal content hashed differently: %s vs %s", a, b)
	}
	if a == c {
		t.Errorf("different content hashed equally: %s", a)
	}
}

// =============================================================================
// Section 2: Failures
// =============================================================================

// TestUnreadableFile tests that failures surface as UnreadableFileError.
func TestUnreadableFile(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name   string
		path   string
		wantOp string
	}{
		{"missing", filepath.Join(dir, "missing"), "open"},
		{"directory", dir, "read"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New(SHA256, nil)
			sum, err := h.Hash(tt.path)
			if sum != "" {
				t.Errorf("Hash() = %q, want empty digest on failure", sum)
			}
			var unreadable *types.UnreadableFileError
			if !errors.As(err, &unreadable) {
				t.Fatalf("Hash() error = %v, want UnreadableFileError", err)
			}
			if unreadable.Op != tt.wantOp {
				t.Errorf("Op = %q, want %q", unreadable.Op, tt.wantOp)
			}
		})
	}
}

// =============================================================================
// Section 3: Algorithms and Cache
// =============================================================================

// TestParseAlgorithm tests name validation.
func TestParseAlgorithm(t *testing.T) {
	tests := []struct {
		in      string
		want    Algorithm
		wantErr bool
	}{
		{"", SHA256, false},
		{"md5", MD5, false},
		{"SHA256", SHA256, false},
		{"blake3", BLAKE3, false},
		{"crc32", "", true},
	}
	for _, tt := range tests {
		got, err := ParseAlgorithm(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseAlgorithm(%q) = %q, %v", tt.in, got, err)
		}
	}
}

// TestCacheHitSkipsRead tests that an unchanged stat signature reuses the
// cached digest even if content changed underneath.
func TestCacheHitSkipsRead(t *testing.T) {
	cachePath := filepath.Join(t.TempDir(), "cache.db")
	path := writeFile(t, []byte("original"))
	mtime := time.Unix(1700000000, 0)
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatal(err)
	}

	c1, err := cache.Open(cachePath)
	if err != nil {
		t.Fatal(err)
	}
	first, err := New(SHA256, c1).Hash(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := c1.Close(); err != nil {
		t.Fatal(err)
	}

	// Same size, same inode, restored mtime
	if err := os.WriteFile(path, []byte("modified"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatal(err)
	}

	c2, err := cache.Open(cachePath)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = c2.Close() }()

	cached, err := New(SHA256, c2).Hash(path)
	if err != nil {
		t.Fatal(err)
	}
	if cached != first {
		t.Errorf("expected cached digest %s, got %s", first, cached)
	}

	fresh, _ := New(SHA256, nil).Hash(path)
	if fresh == first {
		t.Error("uncached digest should reflect modified content")
	}
}

func writeFile(t *testing.T, content []byte) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "hash-*")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.Write(content); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	return f.Name()
}

func hashOf(t *testing.T, h *Computer, path string) string {
	t.Helper()
	sum, err := h.Hash(path)
	if err != nil {
		t.Fatalf("Hash(%s) error: %v", path, err)
	}
	return sum
}
