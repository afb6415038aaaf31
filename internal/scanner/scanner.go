// Package scanner walks scan roots in parallel and streams one record per
// regular file into a sink.
//
// # Architecture Overview
//
// The scanner uses a concurrent fan-out/fan-in architecture to traverse
// several directory trees at once while respecting system resource limits.
//
// # Concurrency Model
//
//  1. WALKER GOROUTINES (fan-out)
//     - One goroutine spawned per directory discovered, across all roots
//     - Concurrency limited by semaphore (walkerSem)
//     - Each walker: acquires semaphore → lists directory → releases semaphore → spawns child walkers
//
//  2. COLLECTOR GOROUTINE (fan-in)
//     - Single goroutine that drains resultCh into batches
//     - Hands each batch to the sink, so sink calls never overlap
//     - A sink error cancels the walk; the collector keeps draining so
//       walkers never block on a full channel
//
//  3. MAIN GOROUTINE (orchestrator)
//     - Spawns one walker per root
//     - Waits for all walkers (walkerWg.Wait)
//     - Closes resultCh and waits for the collector's final flush
//
// # Data Flow
//
//	Run(ctx, sink)
//	    │
//	    ├──► spawn collector goroutine (resultCh → batch → sink)
//	    │
//	    ├──► for each root: walkDirectory(root, "")
//	    │                 │
//	    │                 ├──► ctx cancelled? stop
//	    │                 ├──► acquire semaphore
//	    │                 ├──► listDirectory() → records, subdirs
//	    │                 ├──► release semaphore
//	    │                 ├──► send records to resultCh
//	    │                 └──► for each subdir: walkDirectory(root, rel)
//	    │
//	    ├──► walkerWg.Wait(), close(resultCh), collectorWg.Wait()
//	    │
//	    └──► return sink error, cancellation, or nil
//
// # Symbolic Links
//
// Directory entries are classified without following links, so a symlink to a
// file or a directory is neither yielded nor descended into. The requested
// root itself is opened by name and therefore followed when it is a link.
package scanner

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/ivoronin/dupescan/internal/pathnorm"
	"github.com/ivoronin/dupescan/internal/progress"
	"github.com/ivoronin/dupescan/internal/types"
	"github.com/sirupsen/logrus"
)

const (
	listBatchSize = 1000 // Directory entries per ReadDir call
	sinkBatchSize = 500  // Records per sink call
)

// Sink receives discovered records. Calls are serialized.
type Sink func(records []*types.FileRecord) error

// Options tunes a scan.
type Options struct {
	Workers      int      // Max concurrent directory reads
	MinSize      int64    // Skip files with a known size below this
	Excludes     []string // Glob patterns matched against base names
	ShowProgress bool
}

// Scanner discovers regular files under a set of roots.
//
// The scanner is designed for single-use: create with New(), call Run() once.
type Scanner struct {
	// Config (immutable, set by New)
	roots []pathnorm.Root
	opts  Options
	log   logrus.FieldLogger

	// Runtime (initialized in Run)
	ctx       context.Context
	walkerWg  sync.WaitGroup
	walkerSem types.Semaphore
	resultCh  chan *types.FileRecord
	stats     *stats
	bar       *progress.Bar
}

// New creates a Scanner over already resolved and de-overlapped roots.
func New(roots []pathnorm.Root, opts Options, log logrus.FieldLogger) *Scanner {
	return &Scanner{roots: roots, opts: opts, log: log}
}

// stats tracks scanning progress using atomic counters for lock-free updates.
type stats struct {
	scannedFiles atomic.Int64 // Regular files discovered
	matchedFiles atomic.Int64 // Files passing size/exclude filters
	matchedBytes atomic.Int64
	failed       atomic.Int64 // Unlistable directories and unstatable files
	startTime    time.Time
}

func (s *stats) String() string {
	return fmt.Sprintf("Scanned %d files, indexed %d (%s), %d errors in %.1fs",
		s.scannedFiles.Load(), s.matchedFiles.Load(),
		humanize.IBytes(uint64(s.matchedBytes.Load())), s.failed.Load(),
		time.Since(s.startTime).Seconds())
}

// Result summarizes a finished walk.
type Result struct {
	Files  int64 // Records handed to the sink
	Errors int64 // Entries that could not be listed or stat'ed
}

// Run walks every root and feeds records to sink.
// It returns the first sink error, or ctx.Err() if the walk was cancelled.
func (s *Scanner) Run(parent context.Context, sink Sink) (Result, error) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	s.ctx = ctx
	s.walkerSem = types.NewSemaphore(s.opts.Workers)
	s.bar = progress.New(s.opts.ShowProgress, -1)
	s.stats = &stats{startTime: time.Now()}
	s.bar.Describe(s.stats)
	s.resultCh = make(chan *types.FileRecord, listBatchSize)

	var sinkErr error
	collectorWg := sync.WaitGroup{}
	collectorWg.Add(1)
	go func() {
		defer collectorWg.Done()
		batch := make([]*types.FileRecord, 0, sinkBatchSize)
		flush := func() {
			if len(batch) == 0 {
				return
			}
			if sinkErr == nil {
				if err := sink(batch); err != nil {
					sinkErr = err
					cancel()
				}
			}
			batch = make([]*types.FileRecord, 0, sinkBatchSize)
		}
		for r := range s.resultCh {
			batch = append(batch, r)
			if len(batch) == sinkBatchSize {
				flush()
			}
		}
		flush()
	}()

	for _, root := range s.roots {
		s.log.WithField("root", root.Path).Debug("walking root")
		s.walkDirectory(root, "")
	}

	s.walkerWg.Wait()
	close(s.resultCh)
	collectorWg.Wait()

	s.bar.Finish(s.stats)
	result := Result{Files: s.stats.matchedFiles.Load(), Errors: s.stats.failed.Load()}
	if sinkErr != nil {
		return result, sinkErr
	}
	return result, parent.Err()
}

// walkDirectory spawns a goroutine to process one directory and recursively spawn children.
//
// walkerWg.Add(1) happens before the spawn so Wait cannot race with it. The
// semaphore is released after listing but before spawning children.
func (s *Scanner) walkDirectory(root pathnorm.Root, rel string) {
	s.walkerWg.Add(1)
	go func() {
		defer s.walkerWg.Done()

		if s.ctx.Err() != nil {
			return
		}

		s.walkerSem.Acquire()
		records, subdirs, err := s.listDirectory(root, rel)
		s.walkerSem.Release()
		if err != nil {
			s.stats.failed.Add(1)
			s.log.WithField("path", filepath.Join(root.Path, rel)).WithError(err).Warn("cannot list directory")
		}

		for _, r := range records {
			s.resultCh <- r
		}
		s.bar.Describe(s.stats)

		for _, sub := range subdirs {
			s.walkDirectory(root, sub)
		}
	}()
}

// listDirectory reads one directory in batches, returning records for
// matching regular files and relative paths of subdirectories. Entries read
// before an error are still returned.
func (s *Scanner) listDirectory(root pathnorm.Root, rel string) (records []*types.FileRecord, subdirs []string, err error) {
	dir, err := os.Open(filepath.Join(root.Absolute, rel))
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = dir.Close() }()

	for {
		entries, err := dir.ReadDir(listBatchSize)
		if len(entries) == 0 {
			if err != nil && err != io.EOF {
				return records, subdirs, err
			}
			break
		}

		for _, entry := range entries {
			r, sub := s.processEntry(root, rel, entry)
			if r != nil {
				records = append(records, r)
			}
			if sub != "" {
				subdirs = append(subdirs, sub)
			}
		}
	}

	return records, subdirs, nil
}

// processEntry turns one directory entry into a record or a subdirectory.
// Returns (nil, "") for entries that are skipped.
func (s *Scanner) processEntry(root pathnorm.Root, dirRel string, entry os.DirEntry) (*types.FileRecord, string) {
	rel := filepath.Join(dirRel, entry.Name())

	if s.shouldExclude(entry.Name()) {
		return nil, ""
	}
	if entry.IsDir() {
		return nil, rel
	}
	// Symlinks, devices, sockets and pipes are not content we index
	if !entry.Type().IsRegular() {
		if entry.Type()&os.ModeSymlink != 0 {
			s.log.WithField("path", filepath.Join(root.Path, rel)).Debug("skipping symlink")
		}
		return nil, ""
	}

	s.stats.scannedFiles.Add(1)
	full, abs, canonical := root.Join(rel)
	record := &types.FileRecord{
		FullName:      full,
		ScanRoot:      root.Path,
		AbsolutePath:  abs,
		CanonicalPath: canonical,
	}

	info, err := entry.Info()
	if err != nil {
		s.stats.failed.Add(1)
		s.log.WithField("path", full).WithError(&types.UnreadableFileError{Path: full, Op: "stat", Err: err}).
			Warn("cannot determine file size")
	} else {
		if info.Size() < s.opts.MinSize {
			return nil, ""
		}
		record.Size = types.Int64(info.Size())
		s.stats.matchedBytes.Add(info.Size())
	}

	s.stats.matchedFiles.Add(1)
	return record, ""
}

// shouldExclude checks if a base name matches any glob exclude pattern.
func (s *Scanner) shouldExclude(name string) bool {
	for _, pattern := range s.opts.Excludes {
		if matched, _ := filepath.Match(pattern, name); matched {
			return true
		}
	}
	return false
}
