package types

import (
	"errors"
	"fmt"
)

// ErrNotIndexed is returned when a path is not present in the index.
var ErrNotIndexed = errors.New("file is not indexed")

// UnreadableFileError reports a file whose size or content could not be read.
// It never aborts a scan: the record is kept with a nil field and treated as unique.
type UnreadableFileError struct {
	Path string
	Op   string // "stat", "open", "read"
	Err  error
}

func (e *UnreadableFileError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *UnreadableFileError) Unwrap() error { return e.Err }

// InvalidRootError reports a requested scan root that is not a directory.
type InvalidRootError struct {
	Path   string
	Reason string
}

func (e *InvalidRootError) Error() string {
	return fmt.Sprintf("%s is not a directory: %s", e.Path, e.Reason)
}

// IndexInconsistencyError reports an indexed duplicate that no longer exists on disk.
type IndexInconsistencyError struct {
	Path string
}

func (e *IndexInconsistencyError) Error() string {
	return fmt.Sprintf("index is inconsistent: %s not found in the filesystem", e.Path)
}

// NoDuplicateError rejects deleting a file without a verified surviving copy.
type NoDuplicateError struct {
	Path string
}

func (e *NoDuplicateError) Error() string {
	return fmt.Sprintf("cannot delete a file without duplicates: %s", e.Path)
}

// DuplicateKeyError reports a second insert of the same full name.
// Overlapping roots reaching the walker cause it; it is never retried.
type DuplicateKeyError struct {
	FullName string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("file already indexed: %s", e.FullName)
}
