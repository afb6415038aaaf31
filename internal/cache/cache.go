// Package cache persists whole-file content hashes across runs.
package cache

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

const bucketName = "hashes"

// Key identifies one version of a file's content.
// Any change in path, size, inode or mtime is a cache miss.
type Key struct {
	Algorithm string
	Path      string
	Size      int64
	Ino       uint64
	ModTime   time.Time
}

// Cache provides persistent caching of file hashes using BoltDB.
// Implements self-cleaning: each run creates a new database, only used entries survive.
type Cache struct {
	readDB  *bolt.DB // Existing cache (read-only)
	writeDB *bolt.DB // New cache (write) - BoltDB locks this file
	path    string   // Final path (for atomic swap)
	enabled bool
}

// Open opens existing cache for reading and creates new cache for writing.
// BoltDB's built-in file locking on .new file prevents concurrent instances.
// Returns disabled cache if path is empty.
func Open(path string) (*Cache, error) {
	if path == "" {
		return &Cache{enabled: false}, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	c := &Cache{path: path, enabled: true}
	var err error

	if _, statErr := os.Stat(path); statErr == nil {
		c.readDB, err = bolt.Open(path, 0o600, &bolt.Options{
			ReadOnly: true,
			Timeout:  1 * time.Second,
		})
		if err != nil {
			// Can't open existing - continue without read cache
			c.readDB = nil
		}
	}

	newPath := path + ".new"
	c.writeDB, err = bolt.Open(newPath, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("create new cache (locked by another instance?): %w", err)
	}

	if err := c.writeDB.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	}); err != nil {
		_ = c.Close()
		return nil, err
	}

	return c, nil
}

// Enabled reports whether lookups can ever hit.
func (c *Cache) Enabled() bool { return c != nil && c.enabled }

// Close closes both databases and atomically replaces old with new.
// Only replaces if write database closed successfully to avoid data loss.
func (c *Cache) Close() error {
	var errs []error
	if c.readDB != nil {
		if err := c.readDB.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.writeDB != nil {
		if err := c.writeDB.Close(); err != nil {
			errs = append(errs, err)
		} else if err := os.Rename(c.path+".new", c.path); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

const keyVersion byte = 2 // Increment when key format changes

// makeKey builds deterministic byte key for BoltDB lookup.
// Key = ver(1) + algorithm + NUL + path + NUL + size(8) + ino(8) + mtime(8)
func makeKey(k Key) []byte {
	buf := new(bytes.Buffer)
	buf.WriteByte(keyVersion)
	buf.WriteString(k.Algorithm)
	buf.WriteByte(0)
	buf.WriteString(k.Path)
	buf.WriteByte(0)
	_ = binary.Write(buf, binary.BigEndian, k.Size)
	_ = binary.Write(buf, binary.BigEndian, k.Ino)
	_ = binary.Write(buf, binary.BigEndian, k.ModTime.UnixNano())
	return buf.Bytes()
}

// Lookup retrieves a cached hex digest.
// On HIT: copies entry to writeDB (self-cleaning).
// Returns ("", nil) if not found, ("", err) on read error.
func (c *Cache) Lookup(k Key) (string, error) {
	if !c.Enabled() || c.readDB == nil {
		return "", nil
	}

	var hash string
	err := c.readDB.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return nil
		}
		hash = string(b.Get(makeKey(k)))
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("cache lookup: %w", err)
	}
	if hash == "" {
		return "", nil
	}

	// Self-cleaning: copy valid entry to new database
	_ = c.Store(k, hash)

	return hash, nil
}

// Store saves a hex digest to the new database. Empty digests are ignored.
func (c *Cache) Store(k Key, hash string) error {
	if !c.Enabled() || c.writeDB == nil || hash == "" {
		return nil
	}

	err := c.writeDB.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		return b.Put(makeKey(k), []byte(hash))
	})
	if err != nil {
		return fmt.Errorf("cache store: %w", err)
	}
	return nil
}
