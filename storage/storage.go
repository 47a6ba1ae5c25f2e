// Package storage provides the in-memory partition store and the
// point-in-time snapshot handles the reader-context machinery holds on to.
//
// A Partition is one shard of one index. Writes (index/delete) accumulate in
// a pending set and become visible to searches only after Refresh, mirroring
// the refresh semantics of segment-based engines. A Snapshot freezes the
// visible document set at acquisition time; concurrent writes, refreshes, or
// deletes never show through an acquired snapshot.
package storage

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/pitgo/core"
	"github.com/hupe1980/pitgo/query"
)

// ErrPartitionNotFound is returned when a partition is not hosted by this store.
var ErrPartitionNotFound = errors.New("partition not found")

// DefaultSearchIdleAfter matches the storage layer's default idle threshold.
const DefaultSearchIdleAfter = 30 * time.Second

// Doc is one document with its source fields.
type Doc struct {
	ID     string       `json:"id"`
	Fields query.Fields `json:"fields"`
}

// Hit is one matching document reference.
type Hit struct {
	ID string `json:"id"`
}

// Partition is one shard of one index.
//
// Documents are kept in an append-only arena addressed by dense ordinals; the
// committed visibility set is a roaring bitmap over those ordinals. Snapshot
// acquisition clones the bitmap, so the arena plus a bitmap clone is a fully
// frozen view.
type Partition struct {
	id        core.PartitionID
	idleAfter time.Duration

	mu          sync.RWMutex
	docs        []Doc
	ords        map[string]uint32
	live        *roaring.Bitmap
	pendingAdds []uint32
	pendingDels []uint32
	generation  uint64

	accessMu   sync.Mutex
	lastAccess time.Time
}

// NewPartition creates an empty partition.
// idleAfter <= 0 falls back to DefaultSearchIdleAfter.
func NewPartition(id core.PartitionID, idleAfter time.Duration) *Partition {
	if idleAfter <= 0 {
		idleAfter = DefaultSearchIdleAfter
	}
	return &Partition{
		id:         id,
		idleAfter:  idleAfter,
		ords:       make(map[string]uint32),
		live:       roaring.New(),
		lastAccess: time.Now(),
	}
}

// ID returns the partition identity.
func (p *Partition) ID() core.PartitionID { return p.id }

// Index stages a document. It becomes searchable after the next Refresh.
// Re-indexing an existing document ID replaces it at the next Refresh.
func (p *Partition) Index(doc Doc) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if old, ok := p.ords[doc.ID]; ok {
		p.pendingDels = append(p.pendingDels, old)
	}
	ord := uint32(len(p.docs))
	p.docs = append(p.docs, doc)
	p.ords[doc.ID] = ord
	p.pendingAdds = append(p.pendingAdds, ord)
}

// Delete stages removal of a document. Takes effect at the next Refresh.
// Deleting an unknown ID is a no-op.
func (p *Partition) Delete(docID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ord, ok := p.ords[docID]
	if !ok {
		return
	}
	delete(p.ords, docID)
	p.pendingDels = append(p.pendingDels, ord)
}

// Refresh makes all staged writes visible to new snapshots and bumps the
// partition generation. Snapshots acquired earlier are unaffected.
func (p *Partition) Refresh() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.pendingAdds) == 0 && len(p.pendingDels) == 0 {
		return
	}
	for _, ord := range p.pendingAdds {
		p.live.Add(ord)
	}
	for _, ord := range p.pendingDels {
		p.live.Remove(ord)
	}
	p.pendingAdds = p.pendingAdds[:0]
	p.pendingDels = p.pendingDels[:0]
	p.generation++
}

// Generation returns the committed generation counter.
func (p *Partition) Generation() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.generation
}

// NumLiveDocs returns the committed document count.
func (p *Partition) NumLiveDocs() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.live.GetCardinality()
}

// AcquireSnapshot freezes the currently committed view and returns a handle
// with one reference owned by the caller.
//
// Acquisition is bookkeeping only: it does not count as search activity and
// never takes the partition out of search-idle state.
func (p *Partition) AcquireSnapshot() *Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return newSnapshot(p.id, p.generation, p.docs[:len(p.docs):len(p.docs)], p.live.Clone())
}

// Search runs a live search: it acquires a fresh snapshot, executes the
// query, and records search activity for idle tracking.
func (p *Partition) Search(q query.Query) []Hit {
	p.markAccess()

	snap := p.AcquireSnapshot()
	defer snap.Release()
	return snap.Search(q)
}

// IsSearchIdle reports whether no live search has touched this partition
// within the idle-after window. Context bookkeeping and queries through held
// snapshots do not reset the window.
func (p *Partition) IsSearchIdle() bool {
	p.accessMu.Lock()
	defer p.accessMu.Unlock()
	return time.Since(p.lastAccess) >= p.idleAfter
}

func (p *Partition) markAccess() {
	p.accessMu.Lock()
	p.lastAccess = time.Now()
	p.accessMu.Unlock()
}

// Store is the set of partitions hosted by one node.
type Store struct {
	mu        sync.RWMutex
	parts     map[core.PartitionID]*Partition
	idleAfter time.Duration
}

// NewStore creates an empty store. idleAfter applies to all partitions
// created through it; <= 0 uses DefaultSearchIdleAfter.
func NewStore(idleAfter time.Duration) *Store {
	return &Store{
		parts:     make(map[core.PartitionID]*Partition),
		idleAfter: idleAfter,
	}
}

// CreatePartition registers a new empty partition.
func (s *Store) CreatePartition(id core.PartitionID) (*Partition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.parts[id]; ok {
		return nil, fmt.Errorf("storage: partition %s already exists", id)
	}
	p := NewPartition(id, s.idleAfter)
	s.parts[id] = p
	return p, nil
}

// DropPartition removes a partition from the store. Snapshots already
// acquired from it stay valid until released.
func (s *Store) DropPartition(id core.PartitionID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.parts[id]; !ok {
		return false
	}
	delete(s.parts, id)
	return true
}

// Get returns the partition with the given identity.
func (s *Store) Get(id core.PartitionID) (*Partition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.parts[id]
	return p, ok
}

// Len returns the number of hosted partitions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.parts)
}
