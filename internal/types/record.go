// Package types provides shared types used across the dupescan codebase.
package types

import "strconv"

// FileRecord is one indexed file.
//
// FullName is the primary key: the requested scan root joined with the path
// relative to it. Size and Hash are optional; nil means "unknown" and always
// classifies the file as unique.
type FileRecord struct {
	FullName      string  `json:"fullname"`
	Size          *int64  `json:"size"`
	Hash          *string `json:"hash"`
	ScanRoot      string  `json:"path"`
	AbsolutePath  string  `json:"abspath"`
	CanonicalPath string  `json:"realpath"`
}

// SizeValue returns the size and whether it is known.
func (r *FileRecord) SizeValue() (int64, bool) {
	if r.Size == nil {
		return 0, false
	}
	return *r.Size, true
}

// HashValue returns the hash and whether it was computed.
func (r *FileRecord) HashValue() (string, bool) {
	if r.Hash == nil {
		return "", false
	}
	return *r.Hash, true
}

// SizeString renders the size for text output, empty when unknown.
func (r *FileRecord) SizeString() string {
	if r.Size == nil {
		return ""
	}
	return strconv.FormatInt(*r.Size, 10)
}

// HashString renders the hash for text output, empty when unknown.
func (r *FileRecord) HashString() string {
	if r.Hash == nil {
		return ""
	}
	return *r.Hash
}

// ClusterSummary describes one duplicate cluster without its members.
type ClusterSummary struct {
	Hash  string `json:"hash"`
	Size  int64  `json:"size"`
	Count int    `json:"count"`
}

// Int64 returns a pointer to v.
func Int64(v int64) *int64 { return &v }

// String returns a pointer to v.
func String(v string) *string { return &v }
