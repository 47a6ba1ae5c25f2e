package cluster

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/pitgo/core"
)

func newTestState(t *testing.T, nodes ...core.NodeID) *State {
	t.Helper()
	s := NewState()
	for _, n := range nodes {
		s.AddNode(n)
	}
	return s
}

func TestCreateIndexRoundRobin(t *testing.T) {
	s := newTestState(t, "n1", "n2")

	assignments, err := s.CreateIndex("logs", 4)
	require.NoError(t, err)
	require.Len(t, assignments, 4)

	perNode := make(map[core.NodeID]int)
	for i, a := range assignments {
		assert.Equal(t, core.PartitionID{Index: "logs", Shard: i}, a.Partition)
		perNode[a.Node]++
	}
	assert.Equal(t, 2, perNode["n1"])
	assert.Equal(t, 2, perNode["n2"])
}

func TestCreateIndexErrors(t *testing.T) {
	s := NewState()
	_, err := s.CreateIndex("logs", 1)
	require.Error(t, err, "no nodes registered")

	s.AddNode("n1")
	_, err = s.CreateIndex("logs", 0)
	require.Error(t, err)

	_, err = s.CreateIndex("logs", 1)
	require.NoError(t, err)
	_, err = s.CreateIndex("logs", 1)
	require.Error(t, err, "duplicate index")
}

func TestDeleteIndex(t *testing.T) {
	s := newTestState(t, "n1")
	_, err := s.CreateIndex("logs", 1)
	require.NoError(t, err)

	assert.True(t, s.HasIndex("logs"))
	assert.True(t, s.DeleteIndex("logs"))
	assert.False(t, s.HasIndex("logs"))
	assert.False(t, s.DeleteIndex("logs"))
}

func TestResolveConcrete(t *testing.T) {
	s := newTestState(t, "n1")
	_, err := s.CreateIndex("logs", 2)
	require.NoError(t, err)

	got, err := s.Resolve([]string{"logs"}, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "logs", got[0].Partition.Index)
}

func TestResolveMissingConcrete(t *testing.T) {
	s := newTestState(t, "n1")

	_, err := s.Resolve([]string{"nope"}, DefaultOptions())
	require.Error(t, err)

	var inf *IndexNotFoundError
	require.True(t, errors.As(err, &inf))
	assert.Equal(t, "nope", inf.Index)

	got, err := s.Resolve([]string{"nope"}, Options{IgnoreUnavailable: true, AllowNoIndices: true})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestResolveWildcard(t *testing.T) {
	s := newTestState(t, "n1")
	for _, name := range []string{"index-1", "index-2", "other"} {
		_, err := s.CreateIndex(name, 1)
		require.NoError(t, err)
	}

	got, err := s.Resolve([]string{"index-*"}, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "index-1", got[0].Partition.Index)
	assert.Equal(t, "index-2", got[1].Partition.Index)
}

func TestResolveWildcardNoMatch(t *testing.T) {
	s := newTestState(t, "n1")
	_, err := s.CreateIndex("logs", 1)
	require.NoError(t, err)

	_, err = s.Resolve([]string{"zzz-*"}, DefaultOptions())
	require.Error(t, err)

	got, err := s.Resolve([]string{"zzz-*"}, Options{ExpandWildcards: true, AllowNoIndices: true})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestResolveWildcardDisabled(t *testing.T) {
	s := newTestState(t, "n1")
	_, err := s.CreateIndex("logs", 1)
	require.NoError(t, err)

	_, err = s.Resolve([]string{"log*"}, Options{})
	require.Error(t, err)
}

func TestResolveSortedAndDeduplicated(t *testing.T) {
	s := newTestState(t, "n1")
	_, err := s.CreateIndex("b", 1)
	require.NoError(t, err)
	_, err = s.CreateIndex("a", 2)
	require.NoError(t, err)

	got, err := s.Resolve([]string{"*", "a"}, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, core.PartitionID{Index: "a", Shard: 0}, got[0].Partition)
	assert.Equal(t, core.PartitionID{Index: "a", Shard: 1}, got[1].Partition)
	assert.Equal(t, core.PartitionID{Index: "b", Shard: 0}, got[2].Partition)
}

func TestNodes(t *testing.T) {
	s := newTestState(t, "n1", "n2")
	assert.Equal(t, []core.NodeID{"n1", "n2"}, s.Nodes())
}
