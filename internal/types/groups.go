package types

import (
	"cmp"
	"slices"
)

// Sorted is an ordered collection that maintains sort order by a key function.
// T is the element type, K is the comparable key type.
// Once constructed, items are guaranteed to be sorted by key.
type Sorted[T any, K cmp.Ordered] struct {
	items   []T
	keyFunc func(T) K
}

// NewSorted creates a sorted collection from items using keyFunc for ordering.
// Items are copied and sorted at construction time.
func NewSorted[T any, K cmp.Ordered](items []T, keyFunc func(T) K) Sorted[T, K] {
	sorted := make([]T, len(items))
	copy(sorted, items)
	slices.SortStableFunc(sorted, func(a, b T) int {
		return cmp.Compare(keyFunc(a), keyFunc(b))
	})
	return Sorted[T, K]{items: sorted, keyFunc: keyFunc}
}

// Items returns the sorted items.
func (s Sorted[T, K]) Items() []T { return s.items }

// First returns the first item (smallest key), or zero value if empty.
func (s Sorted[T, K]) First() T {
	if len(s.items) == 0 {
		var zero T
		return zero
	}
	return s.items[0]
}

// Len returns the number of items.
func (s Sorted[T, K]) Len() int { return len(s.items) }

// SiblingGroup contains records naming the same underlying file (same
// canonical path, reached through different roots or names).
// Records are sorted by FullName.
type SiblingGroup = Sorted[*FileRecord, string]

// NewSiblingGroup creates a SiblingGroup sorted by full name.
func NewSiblingGroup(records []*FileRecord) SiblingGroup {
	return NewSorted(records, func(r *FileRecord) string { return r.FullName })
}

// CandidateGroup contains sibling groups of equal size (potential duplicates).
// Sorted by the first full name of each sibling group.
type CandidateGroup = Sorted[SiblingGroup, string]

// NewCandidateGroup creates a CandidateGroup sorted by first full name.
func NewCandidateGroup(siblings []SiblingGroup) CandidateGroup {
	return NewSorted(siblings, func(sg SiblingGroup) string { return sg.First().FullName })
}

// CandidateGroups is a sorted collection of candidate groups.
type CandidateGroups = Sorted[CandidateGroup, string]

// NewCandidateGroups creates sorted CandidateGroups.
func NewCandidateGroups(groups []CandidateGroup) CandidateGroups {
	return NewSorted(groups, func(cg CandidateGroup) string {
		return cg.First().First().FullName
	})
}

// Semaphore implements a counting semaphore using a buffered channel.
// It limits concurrent access to a resource by blocking when the limit is reached.
type Semaphore chan struct{}

// NewSemaphore creates a semaphore that allows up to n concurrent acquisitions.
func NewSemaphore(n int) Semaphore { return make(chan struct{}, max(n, 1)) }

// Acquire blocks until a slot is available, then claims it.
func (s Semaphore) Acquire() { s <- struct{}{} }

// Release frees a slot, unblocking one waiting Acquire call.
func (s Semaphore) Release() { <-s }
