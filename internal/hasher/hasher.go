// Package hasher computes content digests of whole files.
//
// Files are streamed in fixed-size chunks, so memory use does not depend on
// file size. Any open, stat or read failure is reported as
// *types.UnreadableFileError; callers treat it as "no hash".
package hasher

import (
	"crypto/md5" //nolint:gosec // content fingerprint, not a security boundary
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"
	"sync"
	"syscall"

	"github.com/ivoronin/dupescan/internal/cache"
	"github.com/ivoronin/dupescan/internal/types"
	"github.com/zeebo/blake3"
)

// ChunkSize is the read buffer size used while streaming file content.
const ChunkSize = 64 * 1024

// Algorithm names a supported digest.
type Algorithm string

const (
	MD5    Algorithm = "md5"
	SHA256 Algorithm = "sha256"
	BLAKE3 Algorithm = "blake3"
)

// DefaultAlgorithm is used when none is configured.
const DefaultAlgorithm = SHA256

// Algorithms lists the accepted names, for help text and validation.
var Algorithms = []Algorithm{MD5, SHA256, BLAKE3}

// ParseAlgorithm validates a digest name (case-insensitive).
func ParseAlgorithm(name string) (Algorithm, error) {
	if name == "" {
		return DefaultAlgorithm, nil
	}
	a := Algorithm(strings.ToLower(name))
	for _, known := range Algorithms {
		if a == known {
			return a, nil
		}
	}
	return "", fmt.Errorf("unknown hash algorithm %q (want one of md5, sha256, blake3)", name)
}

func (a Algorithm) newHash() hash.Hash {
	switch a {
	case MD5:
		return md5.New() //nolint:gosec
	case BLAKE3:
		return blake3.New()
	default:
		return sha256.New()
	}
}

// Computer hashes files with one algorithm and an optional cache.
// Safe for concurrent use.
type Computer struct {
	algo  Algorithm
	cache *cache.Cache
	bufs  sync.Pool
}

// New creates a Computer. c may be nil or disabled.
func New(algo Algorithm, c *cache.Cache) *Computer {
	return &Computer{
		algo:  algo,
		cache: c,
		bufs: sync.Pool{New: func() any {
			b := make([]byte, ChunkSize)
			return &b
		}},
	}
}

// Algorithm returns the digest in use.
func (h *Computer) Algorithm() Algorithm { return h.algo }

// Hash returns the lowercase hex digest of the file at path.
func (h *Computer) Hash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", &types.UnreadableFileError{Path: path, Op: "open", Err: err}
	}
	defer func() { _ = f.Close() }()

	var key cache.Key
	if h.cache.Enabled() {
		info, err := f.Stat()
		if err != nil {
			return "", &types.UnreadableFileError{Path: path, Op: "stat", Err: err}
		}
		key = cache.Key{Algorithm: string(h.algo), Path: path, Size: info.Size(), ModTime: info.ModTime()}
		if st, ok := info.Sys().(*syscall.Stat_t); ok {
			key.Ino = st.Ino
		}
		if cached, _ := h.cache.Lookup(key); cached != "" {
			return cached, nil
		}
	}

	bufp := h.bufs.Get().(*[]byte)
	defer h.bufs.Put(bufp)

	digest := h.algo.newHash()
	if _, err := io.CopyBuffer(digest, f, *bufp); err != nil {
		return "", &types.UnreadableFileError{Path: path, Op: "read", Err: err}
	}
	sum := hex.EncodeToString(digest.Sum(nil))

	if h.cache.Enabled() {
		_ = h.cache.Store(key, sum)
	}
	return sum, nil
}
