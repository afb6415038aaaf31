// Package screener turns the size work-list into hashing units.
//
// # Overview
//
// The index already narrowed records to those whose size is shared with a
// record of a different canonical path. The screener groups them by size and
// then by canonical path (sibling groups), producing candidate groups for
// hashing. One canonical path is one file on disk, however many names reach
// it, so each sibling group is hashed once.
//
// # Processing Pipeline
//
//	Input: []*types.FileRecord (size work-list)
//	    │
//	    ├──► Drop records with unknown size
//	    │
//	    ├──► Group by size
//	    │
//	    ├──► Group by canonical path (preserves all names as SiblingGroups)
//	    │
//	    ├──► Filter: keep groups with 2+ distinct canonical paths
//	    │
//	    └──► Output: types.CandidateGroups
//
// No I/O is performed; screening is single-threaded.
package screener

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/ivoronin/dupescan/internal/progress"
	"github.com/ivoronin/dupescan/internal/types"
)

// Screener groups size candidates into sibling groups.
//
// The screener is designed for single-use: create with New(), call Run() once.
type Screener struct {
	records      []*types.FileRecord
	showProgress bool
}

// New creates a Screener over the size work-list.
func New(records []*types.FileRecord, showProgress bool) *Screener {
	return &Screener{records: records, showProgress: showProgress}
}

// stats tracks screening progress.
type stats struct {
	candidateFiles int // Distinct canonical paths, not names
	candidateBytes int64
	startTime      time.Time
}

func (s *stats) String() string {
	return fmt.Sprintf("Selected %d candidates (%s) in %.1fs",
		s.candidateFiles, humanize.IBytes(uint64(s.candidateBytes)),
		time.Since(s.startTime).Seconds())
}

// Run screens records and returns candidate groups.
func (s *Screener) Run() types.CandidateGroups {
	bar := progress.New(s.showProgress, -1)
	st := &stats{startTime: time.Now()}

	bySize := make(map[int64][]*types.FileRecord)
	for _, r := range s.records {
		size, ok := r.SizeValue()
		if !ok {
			continue
		}
		bySize[size] = append(bySize[size], r)
	}

	var result []types.CandidateGroup
	for size, records := range bySize {
		siblings := groupByCanonicalPath(records)
		if siblings.Len() < 2 {
			continue
		}
		result = append(result, siblings)
		st.candidateFiles += siblings.Len()
		st.candidateBytes += size * int64(siblings.Len())
	}

	bar.Finish(st)

	return types.NewCandidateGroups(result)
}

// groupByCanonicalPath groups records naming the same file on disk.
func groupByCanonicalPath(records []*types.FileRecord) types.CandidateGroup {
	byPath := make(map[string][]*types.FileRecord)
	for _, r := range records {
		byPath[r.CanonicalPath] = append(byPath[r.CanonicalPath], r)
	}

	siblings := make([]types.SiblingGroup, 0, len(byPath))
	for _, records := range byPath {
		siblings = append(siblings, types.NewSiblingGroup(records))
	}

	return types.NewCandidateGroup(siblings)
}
