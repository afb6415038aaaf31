// Package report writes scan results.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/ivoronin/dupescan/internal/types"
)

// DefaultTemplate prints one tab-separated line per record.
const DefaultTemplate = "${hash}\t${size}\t${fullname}"

// Records is a lazily evaluated result stream.
type Records = iter.Seq2[*types.FileRecord, error]

// Writer formats a result stream.
type Writer interface {
	Write(w io.Writer, records Records) error
}

// Variables returns the template variables for one record.
// Unknown hash or size render as empty strings.
func Variables(r *types.FileRecord) map[string]string {
	return map[string]string{
		"hash":           r.HashString(),
		"size":           r.SizeString(),
		"fullname":       r.FullName,
		"path":           r.ScanRoot,
		"abspath":        r.AbsolutePath,
		"realpath":       r.CanonicalPath,
		"scan_root":      r.ScanRoot,
		"absolute_path":  r.AbsolutePath,
		"canonical_path": r.CanonicalPath,
	}
}

// Template substitutes ${var} (or $var) per record. Unknown variables expand
// to nothing.
type Template struct {
	Format string
}

// Write implements Writer.
func (t Template) Write(w io.Writer, records Records) error {
	for r, err := range records {
		if err != nil {
			return err
		}
		vars := Variables(r)
		line := os.Expand(t.Format, func(name string) string { return vars[name] })
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// Pretty groups consecutive records by hash and size under a header line.
type Pretty struct{}

// Write implements Writer.
func (Pretty) Write(w io.Writer, records Records) error {
	var prevHash, prevSize string
	first := true

	for r, err := range records {
		if err != nil {
			return err
		}
		hash, size := r.HashString(), r.SizeString()
		if first || hash != prevHash || size != prevSize {
			human := ""
			if n, ok := r.SizeValue(); ok {
				human = humanize.IBytes(uint64(n))
			}
			if _, err := fmt.Fprintf(w, "%s\t%s\t(%s)\n", hash, size, human); err != nil {
				return err
			}
			prevHash, prevSize, first = hash, size, false
		}
		if _, err := fmt.Fprintf(w, "\t%s\n", r.FullName); err != nil {
			return err
		}
	}
	return nil
}

// jsonRecord is the wire form of a record.
type jsonRecord struct {
	Hash          *string `json:"hash"`
	Size          *int64  `json:"size"`
	FullName      string  `json:"full_name"`
	ScanRoot      string  `json:"scan_root"`
	AbsolutePath  string  `json:"absolute_path"`
	CanonicalPath string  `json:"canonical_path"`
}

// NewJSONRecord converts a record to its wire form.
func NewJSONRecord(r *types.FileRecord) any {
	return jsonRecord{
		Hash:          r.Hash,
		Size:          r.Size,
		FullName:      r.FullName,
		ScanRoot:      r.ScanRoot,
		AbsolutePath:  r.AbsolutePath,
		CanonicalPath: r.CanonicalPath,
	}
}

// JSON writes one object per line.
type JSON struct{}

// Write implements Writer.
func (JSON) Write(w io.Writer, records Records) error {
	enc := json.NewEncoder(w)
	for r, err := range records {
		if err != nil {
			return err
		}
		if err := enc.Encode(NewJSONRecord(r)); err != nil {
			return err
		}
	}
	return nil
}

// Count wraps records and counts how many were yielded.
func Count(records Records, n *int) Records {
	return func(yield func(*types.FileRecord, error) bool) {
		for r, err := range records {
			if err == nil {
				*n++
			}
			if !yield(r, err) {
				return
			}
		}
	}
}

