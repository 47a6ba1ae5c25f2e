package storage

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/pitgo/core"
	"github.com/hupe1980/pitgo/query"
)

var testPart = core.PartitionID{Index: "logs", Shard: 0}

func newTestPartition() *Partition {
	return NewPartition(testPart, DefaultSearchIdleAfter)
}

func fill(p *Partition, n int) {
	for i := 0; i < n; i++ {
		p.Index(Doc{
			ID:     fmt.Sprintf("doc-%d", i),
			Fields: query.Fields{"n": i},
		})
	}
}

func TestStagedWritesInvisibleUntilRefresh(t *testing.T) {
	p := newTestPartition()
	fill(p, 5)

	assert.Equal(t, uint64(0), p.NumLiveDocs())
	assert.Empty(t, p.Search(query.MatchAll{}))

	p.Refresh()
	assert.Equal(t, uint64(5), p.NumLiveDocs())
	assert.Len(t, p.Search(query.MatchAll{}), 5)
}

func TestDeleteStaged(t *testing.T) {
	p := newTestPartition()
	fill(p, 3)
	p.Refresh()

	p.Delete("doc-1")
	assert.Equal(t, uint64(3), p.NumLiveDocs(), "delete should stay pending until refresh")

	p.Refresh()
	assert.Equal(t, uint64(2), p.NumLiveDocs())

	// Unknown IDs are a no-op.
	p.Delete("nope")
	p.Refresh()
	assert.Equal(t, uint64(2), p.NumLiveDocs())
}

func TestReindexReplaces(t *testing.T) {
	p := newTestPartition()
	p.Index(Doc{ID: "a", Fields: query.Fields{"v": 1}})
	p.Refresh()

	p.Index(Doc{ID: "a", Fields: query.Fields{"v": 2}})
	p.Refresh()

	require.Equal(t, uint64(1), p.NumLiveDocs())
	hits := p.Search(query.Term{Field: "v", Value: 2})
	require.Len(t, hits, 1)
	assert.Equal(t, "a", hits[0].ID)
	assert.Empty(t, p.Search(query.Term{Field: "v", Value: 1}))
}

func TestSnapshotFrozenAcrossWrites(t *testing.T) {
	p := newTestPartition()
	fill(p, 3)
	p.Refresh()

	snap := p.AcquireSnapshot()
	defer snap.Release()

	p.Delete("doc-0")
	p.Index(Doc{ID: "doc-3", Fields: query.Fields{"n": 3}})
	p.Refresh()

	// The partition moved on.
	assert.Equal(t, uint64(3), p.NumLiveDocs())
	assert.Empty(t, p.Search(query.Term{Field: "n", Value: 0}))

	// The snapshot did not.
	assert.Equal(t, uint64(3), snap.NumDocs())
	hits := snap.Search(query.MatchAll{})
	require.Len(t, hits, 3)
	ids := make(map[string]bool)
	for _, h := range hits {
		ids[h.ID] = true
	}
	assert.True(t, ids["doc-0"])
	assert.False(t, ids["doc-3"])
}

func TestSnapshotGeneration(t *testing.T) {
	p := newTestPartition()
	fill(p, 1)
	p.Refresh()

	snap := p.AcquireSnapshot()
	defer snap.Release()
	gen := snap.Generation()

	fill(p, 1)
	p.Refresh()

	assert.Equal(t, gen, snap.Generation())
	assert.Greater(t, p.Generation(), gen)
}

func TestSnapshotRefcount(t *testing.T) {
	p := newTestPartition()
	fill(p, 1)
	p.Refresh()

	snap := p.AcquireSnapshot()
	require.True(t, snap.Incref())

	snap.Release()
	assert.False(t, snap.Released(), "second reference still held")

	snap.Release()
	assert.True(t, snap.Released())
	assert.False(t, snap.Incref(), "dead snapshot must not revive")
}

func TestSnapshotCount(t *testing.T) {
	p := newTestPartition()
	fill(p, 10)
	p.Refresh()

	snap := p.AcquireSnapshot()
	defer snap.Release()

	assert.Equal(t, uint64(10), snap.Count(nil))
	assert.Equal(t, uint64(10), snap.Count(query.MatchAll{}))

	gte := float64(5)
	assert.Equal(t, uint64(5), snap.Count(query.Range{Field: "n", GTE: &gte}))
}

func TestSearchIdle(t *testing.T) {
	p := NewPartition(testPart, 50*time.Millisecond)

	assert.False(t, p.IsSearchIdle())

	time.Sleep(70 * time.Millisecond)
	assert.True(t, p.IsSearchIdle())

	// A live search resets the idle window.
	p.Search(query.MatchAll{})
	assert.False(t, p.IsSearchIdle())
}

func TestSnapshotAcquisitionKeepsIdle(t *testing.T) {
	p := NewPartition(testPart, 50*time.Millisecond)
	fill(p, 2)
	p.Refresh()

	time.Sleep(70 * time.Millisecond)
	require.True(t, p.IsSearchIdle())

	snap := p.AcquireSnapshot()
	snap.Search(query.MatchAll{})
	snap.Release()

	assert.True(t, p.IsSearchIdle(), "snapshot bookkeeping must not reset the idle window")
}

func TestStore(t *testing.T) {
	s := NewStore(0)

	p, err := s.CreatePartition(testPart)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, 1, s.Len())

	_, err = s.CreatePartition(testPart)
	require.Error(t, err, "duplicate partition must be rejected")

	got, ok := s.Get(testPart)
	require.True(t, ok)
	assert.Same(t, p, got)

	assert.True(t, s.DropPartition(testPart))
	assert.False(t, s.DropPartition(testPart))
	assert.Equal(t, 0, s.Len())
}

func TestDroppedPartitionSnapshotStaysValid(t *testing.T) {
	s := NewStore(0)
	p, err := s.CreatePartition(testPart)
	require.NoError(t, err)

	fill(p, 4)
	p.Refresh()
	snap := p.AcquireSnapshot()

	require.True(t, s.DropPartition(testPart))

	assert.Len(t, snap.Search(query.MatchAll{}), 4)
	snap.Release()
}
