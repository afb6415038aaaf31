// Package engine drives a duplicate scan over the metadata index.
//
// A scan runs four phases, each finishing before the next one starts:
//
//	resolve  → validate roots, drop nested and aliased ones
//	walk     → insert one record per regular file
//	screen   → group same-sized records by canonical path
//	verify   → hash one name per canonical path, write the digest back
//
// Queries (duplicates, unique files, clusters) read the index afterwards.
package engine

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"path/filepath"

	"github.com/ivoronin/dupescan/internal/index"
	"github.com/ivoronin/dupescan/internal/resolver"
	"github.com/ivoronin/dupescan/internal/scanner"
	"github.com/ivoronin/dupescan/internal/screener"
	"github.com/ivoronin/dupescan/internal/types"
	"github.com/ivoronin/dupescan/internal/verifier"
	"github.com/sirupsen/logrus"
)

// Options tunes a scan.
type Options struct {
	Workers      int      // Parallel directory reads and file hashes
	MinSize      int64    // Ignore files smaller than this
	Excludes     []string // Glob patterns matched against base names
	ShowProgress bool
}

// Stats counts what the last scan did.
type Stats struct {
	Roots      int   // Roots walked after cleaning
	Files      int64 // Records inserted
	ScanErrors int64 // Unlistable directories and unstatable files
	Candidates int64 // Records sharing a size with another file
	Hashed     int64 // Files hashed (one per canonical path)
	Failed     int64 // Files that could not be hashed
}

// Engine finds duplicate files. It is not safe for concurrent scans.
type Engine struct {
	idx    *index.Index
	hasher verifier.Hasher
	opts   Options
	log    logrus.FieldLogger
	stats  Stats
}

// New creates an Engine writing to idx.
func New(idx *index.Index, hasher verifier.Hasher, opts Options, log logrus.FieldLogger) *Engine {
	return &Engine{idx: idx, hasher: hasher, opts: opts, log: log}
}

// Stats returns counters from the most recent Scan.
func (e *Engine) Stats() Stats { return e.stats }

// Scan rebuilds the index from roots.
//
// An invalid root fails the scan before anything is read or written.
// Unreadable files are logged and stay unhashed.
func (e *Engine) Scan(ctx context.Context, roots []string) error {
	resolved, err := resolver.Resolve(roots)
	if err != nil {
		return err
	}

	kept, ignored := resolver.Clean(resolved)
	for _, r := range ignored {
		e.log.WithField("path", r.Path).Warn("ignoring root covered by another root")
	}

	e.stats = Stats{Roots: len(kept)}

	if err := e.idx.Reset(ctx); err != nil {
		return fmt.Errorf("reset index: %w", err)
	}

	walked, err := scanner.New(kept, scanner.Options{
		Workers:      e.opts.Workers,
		MinSize:      e.opts.MinSize,
		Excludes:     e.opts.Excludes,
		ShowProgress: e.opts.ShowProgress,
	}, e.log).Run(ctx, func(records []*types.FileRecord) error {
		return e.idx.AddFiles(ctx, records)
	})
	e.stats.Files = walked.Files
	e.stats.ScanErrors = walked.Errors
	if err != nil {
		return fmt.Errorf("walk: %w", err)
	}

	candidates, err := index.Collect(e.idx.FindDuplicateSizeGroups(ctx))
	if err != nil {
		return fmt.Errorf("find size groups: %w", err)
	}
	e.stats.Candidates = int64(len(candidates))

	groups := screener.New(candidates, e.opts.ShowProgress).Run()

	verified, err := verifier.New(groups, e.hasher, verifier.Options{
		Workers:      e.opts.Workers,
		ShowProgress: e.opts.ShowProgress,
	}, e.log).Run(ctx, e.idx.UpdateHash)
	e.stats.Hashed = verified.Hashed
	e.stats.Failed = verified.Failed
	if err != nil {
		return fmt.Errorf("hash: %w", err)
	}

	e.log.WithFields(logrus.Fields{
		"roots":      e.stats.Roots,
		"files":      e.stats.Files,
		"candidates": e.stats.Candidates,
		"hashed":     e.stats.Hashed,
		"failed":     e.stats.Failed,
	}).Info("scan complete")
	return nil
}

// FindDuplicates scans roots and returns every record with a verified
// duplicate, ordered by hash, size and full name.
func (e *Engine) FindDuplicates(ctx context.Context, roots []string) (iter.Seq2[*types.FileRecord, error], error) {
	if err := e.Scan(ctx, roots); err != nil {
		return nil, err
	}
	return e.Duplicates(ctx), nil
}

// FindUnique scans roots and returns every record without a verified
// duplicate.
func (e *Engine) FindUnique(ctx context.Context, roots []string) (iter.Seq2[*types.FileRecord, error], error) {
	if err := e.Scan(ctx, roots); err != nil {
		return nil, err
	}
	return e.Unique(ctx), nil
}

// Duplicates queries the index without scanning.
func (e *Engine) Duplicates(ctx context.Context) iter.Seq2[*types.FileRecord, error] {
	return e.idx.FindDuplicateClusters(ctx)
}

// Unique queries the index without scanning.
func (e *Engine) Unique(ctx context.Context) iter.Seq2[*types.FileRecord, error] {
	return e.idx.FindUniqueFiles(ctx)
}

// Clusters returns one page of duplicate cluster summaries, largest first.
func (e *Engine) Clusters(ctx context.Context, limit, offset int) ([]types.ClusterSummary, error) {
	return e.idx.FindDuplicateClusterSummaries(ctx, limit, offset)
}

// ClusterMembers lists the records of one cluster.
func (e *Engine) ClusterMembers(ctx context.Context, hash string, size int64) iter.Seq2[*types.FileRecord, error] {
	return e.idx.FindClusterMembers(ctx, hash, size)
}

// Lookup finds the record for path, which may be a full name or an absolute
// path. A relative path that is not a full name is retried as absolute.
func (e *Engine) Lookup(ctx context.Context, path string) (*types.FileRecord, error) {
	rec, err := e.idx.Lookup(ctx, path)
	if err == nil || !errors.Is(err, types.ErrNotIndexed) || filepath.IsAbs(path) {
		return rec, err
	}

	abs, absErr := filepath.Abs(path)
	if absErr != nil {
		return nil, err
	}
	return e.idx.Lookup(ctx, abs)
}

// Delete removes the file at path from disk and the index, provided another
// copy of its content is confirmed to survive elsewhere.
func (e *Engine) Delete(ctx context.Context, path string) error {
	rec, err := e.Lookup(ctx, path)
	if err != nil {
		return err
	}

	if err := e.idx.DeleteFile(ctx, rec.FullName); err != nil {
		return err
	}

	e.log.WithField("path", rec.AbsolutePath).Info("deleted duplicate")
	return nil
}
