// Package verifier runs the hashing pass over candidate groups.
//
// # Sibling Group Optimization
//
// Records in one sibling group share a canonical path: they are names of the
// same file and necessarily have identical content. The verifier hashes only
// ONE representative per sibling group and assigns the digest to every name.
//
// # Concurrency Model
//
//  1. HASHING GOROUTINES (bounded pool)
//     - errgroup with SetLimit(workers)
//     - One task per sibling group; each task reads one file
//     - A read failure is a warning and leaves the group unhashed
//
//  2. WRITER GOROUTINE (fan-in)
//     - Single goroutine draining resultsCh
//     - Serializes index writes, so the store never sees concurrent calls
//     - A store failure cancels the pool and is returned by Run
//
// # Data Flow
//
//	Run(ctx, store)
//	    │
//	    ├──► start writer (resultsCh → store per member name)
//	    │
//	    ├──► for each sibling group: g.Go(hash representative → resultsCh)
//	    │
//	    ├──► g.Wait(), close(resultsCh), writerWg.Wait()
//	    │
//	    └──► return store error, cancellation, or nil
package verifier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/ivoronin/dupescan/internal/progress"
	"github.com/ivoronin/dupescan/internal/types"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// fmtBytes is a shorthand for humanize.IBytes (human-readable byte sizes).
var fmtBytes = humanize.IBytes

// Hasher computes a content digest for a file path.
type Hasher interface {
	Hash(path string) (string, error)
}

// Store persists a digest for one record. Calls are serialized.
type Store func(ctx context.Context, fullName, hash string) error

// Options tunes the hashing pass.
type Options struct {
	Workers      int // Max concurrent file reads
	ShowProgress bool
}

// Result summarizes a finished pass.
type Result struct {
	Hashed int64 // Sibling groups hashed
	Failed int64 // Sibling groups whose representative could not be read
}

// stats tracks hashing progress.
type stats struct {
	totalBytes  uint64
	hashedBytes atomic.Uint64
	hashed      atomic.Int64
	failed      atomic.Int64
	startTime   time.Time
}

func (s *stats) String() string {
	elapsed := time.Since(s.startTime).Truncate(time.Millisecond)
	return fmt.Sprintf("Hashed %d files (%s out of %s), %d unreadable in %v",
		s.hashed.Load(), fmtBytes(s.hashedBytes.Load()), fmtBytes(s.totalBytes),
		s.failed.Load(), elapsed)
}

type hashResult struct {
	hash     string
	siblings types.SiblingGroup
}

// Verifier hashes candidate groups.
//
// The verifier is designed for single-use: create with New(), call Run() once.
type Verifier struct {
	// Config (immutable, set by New)
	groups types.CandidateGroups
	hasher Hasher
	opts   Options
	log    logrus.FieldLogger

	// Runtime (initialized in Run)
	bar   *progress.Bar
	stats *stats
}

// New creates a Verifier for the given candidate groups.
func New(groups types.CandidateGroups, hasher Hasher, opts Options, log logrus.FieldLogger) *Verifier {
	return &Verifier{groups: groups, hasher: hasher, opts: opts, log: log}
}

// Run hashes one representative per sibling group and stores the digest for
// every name in the group.
func (v *Verifier) Run(parent context.Context, store Store) (Result, error) {
	var siblings []types.SiblingGroup
	var totalBytes uint64
	for _, cg := range v.groups.Items() {
		for _, sg := range cg.Items() {
			siblings = append(siblings, sg)
			size, _ := sg.First().SizeValue()
			totalBytes += uint64(size)
		}
	}
	if len(siblings) == 0 {
		return Result{}, nil
	}

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	v.bar = progress.New(v.opts.ShowProgress, int64(len(siblings)))
	v.stats = &stats{totalBytes: totalBytes, startTime: time.Now()}
	v.bar.Describe(v.stats)

	resultsCh := make(chan hashResult, max(v.opts.Workers, 1))

	var storeErr error
	var writerWg sync.WaitGroup
	writerWg.Add(1)
	go func() {
		defer writerWg.Done()
		for r := range resultsCh {
			if storeErr != nil {
				continue // Drain so hashing goroutines never block
			}
			for _, rec := range r.siblings.Items() {
				if err := store(ctx, rec.FullName, r.hash); err != nil {
					storeErr = fmt.Errorf("store hash for %s: %w", rec.FullName, err)
					cancel()
					break
				}
			}
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(v.opts.Workers, 1))
	for _, sg := range siblings {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			return v.hashGroup(gctx, sg, resultsCh)
		})
	}
	waitErr := g.Wait()
	close(resultsCh)
	writerWg.Wait()

	v.bar.Finish(v.stats)
	result := Result{Hashed: v.stats.hashed.Load(), Failed: v.stats.failed.Load()}
	switch {
	case storeErr != nil:
		return result, storeErr
	case parent.Err() != nil:
		return result, parent.Err()
	case waitErr != nil && !errors.Is(waitErr, context.Canceled):
		return result, waitErr
	}
	return result, nil
}

// hashGroup hashes the representative of one sibling group.
func (v *Verifier) hashGroup(ctx context.Context, sg types.SiblingGroup, out chan<- hashResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rep := sg.First()
	defer v.bar.Add(1)

	hash, err := v.hasher.Hash(rep.AbsolutePath)
	if err != nil {
		v.stats.failed.Add(1)
		v.log.WithField("path", rep.FullName).WithError(err).Warn("cannot hash file, treating as unique")
		return nil
	}
	size, _ := rep.SizeValue()
	v.stats.hashed.Add(1)
	v.stats.hashedBytes.Add(uint64(size))
	v.bar.Describe(v.stats)
	v.log.WithFields(logrus.Fields{"path": rep.FullName, "hash": hash}).Debug("hashed")

	select {
	case out <- hashResult{hash: hash, siblings: sg}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
