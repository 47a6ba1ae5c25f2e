package storage

import (
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/pitgo/core"
	"github.com/hupe1980/pitgo/query"
)

// Snapshot is a reference-counted, frozen view of one partition.
//
// The document arena is shared with the partition (append-only, so sharing is
// safe); the live bitmap is a private clone taken at acquisition. Once the
// reference count drops to zero the handle is dead and must not be used.
type Snapshot struct {
	part       core.PartitionID
	generation uint64
	docs       []Doc
	live       *roaring.Bitmap
	refs       atomic.Int32
}

func newSnapshot(part core.PartitionID, generation uint64, docs []Doc, live *roaring.Bitmap) *Snapshot {
	s := &Snapshot{
		part:       part,
		generation: generation,
		docs:       docs,
		live:       live,
	}
	s.refs.Store(1)
	return s
}

// Partition returns the identity of the partition this snapshot was taken from.
func (s *Snapshot) Partition() core.PartitionID { return s.part }

// Generation returns the partition generation captured at acquisition.
func (s *Snapshot) Generation() uint64 { return s.generation }

// NumDocs returns the number of documents visible through the snapshot.
func (s *Snapshot) NumDocs() uint64 { return s.live.GetCardinality() }

// Incref takes an additional reference. Returns false if the snapshot is
// already fully released.
func (s *Snapshot) Incref() bool {
	for {
		n := s.refs.Load()
		if n <= 0 {
			return false
		}
		if s.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// Release drops one reference. The last release frees the live set.
// Releasing below zero is a bug in the caller.
func (s *Snapshot) Release() {
	n := s.refs.Add(-1)
	if n == 0 {
		s.live = nil
		s.docs = nil
		return
	}
	if n < 0 {
		panic("storage: snapshot released more often than acquired")
	}
}

// Released reports whether the final reference has been dropped.
func (s *Snapshot) Released() bool { return s.refs.Load() <= 0 }

// Search executes the query against the frozen view and returns the hits in
// ordinal order.
func (s *Snapshot) Search(q query.Query) []Hit {
	if q == nil {
		q = query.MatchAll{}
	}
	var hits []Hit
	it := s.live.Iterator()
	for it.HasNext() {
		ord := it.Next()
		doc := s.docs[ord]
		if q.Matches(doc.Fields) {
			hits = append(hits, Hit{ID: doc.ID})
		}
	}
	return hits
}

// Count executes the query and returns only the hit count.
func (s *Snapshot) Count(q query.Query) uint64 {
	if q == nil {
		return s.live.GetCardinality()
	}
	if _, ok := q.(query.MatchAll); ok {
		return s.live.GetCardinality()
	}
	var n uint64
	it := s.live.Iterator()
	for it.HasNext() {
		ord := it.Next()
		if q.Matches(s.docs[ord].Fields) {
			n++
		}
	}
	return n
}
