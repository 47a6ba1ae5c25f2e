// Package cluster holds the routing-layer boundary: the catalog of indices,
// their shard-to-node assignment, and index-pattern resolution.
//
// Replication and membership consensus are out of scope; the state here is
// the minimal single-copy routing table the reader-context coordinator needs
// to fan out and to re-check index existence per use.
package cluster

import (
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/hupe1980/pitgo/core"
)

// IndexNotFoundError reports that an index pattern resolved to nothing, or
// that a previously-captured index no longer exists.
type IndexNotFoundError struct {
	Index string
}

func (e *IndexNotFoundError) Error() string {
	return fmt.Sprintf("no such index [%s]", e.Index)
}

// Options controls index-pattern resolution.
type Options struct {
	// ExpandWildcards enables glob patterns ("index-*", "*").
	ExpandWildcards bool

	// AllowNoIndices tolerates patterns that match nothing.
	AllowNoIndices bool

	// IgnoreUnavailable tolerates concrete names that do not exist.
	IgnoreUnavailable bool
}

// DefaultOptions mirrors the strict default resolution behavior.
func DefaultOptions() Options {
	return Options{ExpandWildcards: true}
}

// Assignment maps one partition to the node hosting it.
type Assignment struct {
	Partition core.PartitionID `json:"partition"`
	Node      core.NodeID      `json:"node"`
}

type indexMeta struct {
	name   string
	shards []core.NodeID // shard ordinal -> owning node
}

// State is the in-memory routing table.
// Safe for concurrent use.
type State struct {
	mu       sync.RWMutex
	nodes    []core.NodeID
	indices  map[string]*indexMeta
	nextNode int
}

// NewState creates an empty routing table.
func NewState() *State {
	return &State{indices: make(map[string]*indexMeta)}
}

// AddNode registers a node as a shard host.
func (s *State) AddNode(id core.NodeID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes = append(s.nodes, id)
}

// Nodes returns the registered nodes in registration order.
func (s *State) Nodes() []core.NodeID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.NodeID, len(s.nodes))
	copy(out, s.nodes)
	return out
}

// CreateIndex registers an index with the given shard count and assigns
// shards round-robin across registered nodes.
func (s *State) CreateIndex(name string, shards int) ([]Assignment, error) {
	if shards <= 0 {
		return nil, fmt.Errorf("cluster: index %q needs at least one shard", name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.nodes) == 0 {
		return nil, fmt.Errorf("cluster: no nodes registered")
	}
	if _, ok := s.indices[name]; ok {
		return nil, fmt.Errorf("cluster: index %q already exists", name)
	}

	meta := &indexMeta{name: name, shards: make([]core.NodeID, shards)}
	out := make([]Assignment, shards)
	for i := 0; i < shards; i++ {
		node := s.nodes[s.nextNode%len(s.nodes)]
		s.nextNode++
		meta.shards[i] = node
		out[i] = Assignment{
			Partition: core.PartitionID{Index: name, Shard: i},
			Node:      node,
		}
	}
	s.indices[name] = meta
	return out, nil
}

// DeleteIndex removes an index from the catalog.
//
// Deletion touches only the routing table: live reader contexts holding
// snapshots of the index keep their entries, and the existence loss surfaces
// on the next use of such a context.
func (s *State) DeleteIndex(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.indices[name]; !ok {
		return false
	}
	delete(s.indices, name)
	return true
}

// HasIndex reports whether the index currently exists.
func (s *State) HasIndex(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.indices[name]
	return ok
}

// Resolve expands the given patterns against the current catalog and returns
// the matched partition assignments, sorted by index then shard.
//
// Membership is captured by the caller at open time; later catalog changes
// never alter an already-resolved set.
func (s *State) Resolve(patterns []string, opts Options) ([]Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make(map[string]*indexMeta)
	for _, pattern := range patterns {
		if isWildcard(pattern) {
			if !opts.ExpandWildcards {
				return nil, &IndexNotFoundError{Index: pattern}
			}
			for name, meta := range s.indices {
				if ok, _ := path.Match(pattern, name); ok {
					matched[name] = meta
				}
			}
			continue
		}
		meta, ok := s.indices[pattern]
		if !ok {
			if opts.IgnoreUnavailable {
				continue
			}
			return nil, &IndexNotFoundError{Index: pattern}
		}
		matched[pattern] = meta
	}

	if len(matched) == 0 {
		if opts.AllowNoIndices {
			return nil, nil
		}
		return nil, &IndexNotFoundError{Index: strings.Join(patterns, ",")}
	}

	names := make([]string, 0, len(matched))
	for name := range matched {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []Assignment
	for _, name := range names {
		meta := matched[name]
		for shard, node := range meta.shards {
			out = append(out, Assignment{
				Partition: core.PartitionID{Index: name, Shard: shard},
				Node:      node,
			})
		}
	}
	return out, nil
}

func isWildcard(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[")
}
