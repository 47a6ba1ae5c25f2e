package pitgo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hupe1980/pitgo/cluster"
	"github.com/hupe1980/pitgo/contexts"
	"github.com/hupe1980/pitgo/core"
	"github.com/hupe1980/pitgo/node"
	"github.com/hupe1980/pitgo/pitid"
	"github.com/hupe1980/pitgo/query"
	"github.com/hupe1980/pitgo/storage"
	"github.com/hupe1980/pitgo/transport"
)

// SearchRequest describes a search. Exactly one of Indices or ContextID
// selects the scope: a live search resolves Indices against current routing
// state, a context search runs against the partitions captured in ContextID.
type SearchRequest struct {
	// Indices are index names or patterns for a live search.
	// Must be empty when ContextID is set.
	Indices []string

	// Options controls pattern resolution for live searches.
	Options cluster.Options

	// Query selects documents. nil matches everything.
	Query query.Query

	// ContextID is an encoded reader-context token from Open.
	ContextID string

	// KeepAlive, when positive, renews the context lease before the query
	// executes. Zero leaves the lease ticking down. Context searches only.
	KeepAlive time.Duration

	// Preference is an opaque routing hint, reserved for replica selection.
	Preference string
}

// Hit identifies one matching document.
type Hit struct {
	Index string `json:"index"`
	Shard int    `json:"shard"`
	ID    string `json:"id"`
}

// SearchResponse is the joined outcome of a search fan-out.
type SearchResponse struct {
	// TotalHits counts matches across all successful shards.
	TotalHits int64 `json:"total_hits"`

	// Hits lists the matches, ordered by index, shard, document ID.
	Hits []Hit `json:"hits"`

	// ContextID echoes the request token on context searches.
	ContextID string `json:"context_id,omitempty"`

	TotalShards      int `json:"total_shards"`
	SuccessfulShards int `json:"successful_shards"`
	FailedShards     int `json:"failed_shards"`

	// ShardFailures carries per-shard failures of a partially successful
	// search. Empty on full success.
	ShardFailures []ShardFailure `json:"shard_failures,omitempty"`
}

// Search executes the request and joins per-shard outcomes.
//
// Shard-level failures (expired context entries, unreachable nodes) are
// partial: the response reports them alongside the surviving hits, and only
// a search in which every shard failed returns a SearchPhaseError. Missing
// indices are total: a context whose index was deleted fails the whole
// request with IndexNotFoundError.
func (c *Coordinator) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	start := time.Now()
	resp, err := c.search(ctx, req)

	totalShards, failedShards := 0, 0
	var hits int64
	if resp != nil {
		totalShards, failedShards, hits = resp.TotalShards, resp.FailedShards, resp.TotalHits
	}
	c.metrics.RecordSearch(totalShards, failedShards, time.Since(start), err)
	c.logger.LogSearch(ctx, totalShards, failedShards, hits, err)
	return resp, err
}

func (c *Coordinator) search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	if c.closed.Load() {
		return nil, ErrCoordinatorClosed
	}

	q := req.Query
	if q == nil {
		q = query.MatchAll{}
	}
	spec, err := query.ToSpec(q)
	if err != nil {
		return nil, err
	}

	if req.ContextID != "" {
		if len(req.Indices) > 0 {
			return nil, fmt.Errorf("search: indices cannot be combined with a context id")
		}
		return c.searchContext(ctx, req, spec)
	}
	return c.searchLive(ctx, req, spec)
}

// shardJoin accumulates fan-out outcomes under one lock.
type shardJoin struct {
	mu       sync.Mutex
	hits     []Hit
	total    int64
	failures []ShardFailure
}

func (j *shardJoin) addResult(res node.QueryResult) {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, shard := range res.Shards {
		j.total += shard.Total
		for _, h := range shard.Hits {
			j.hits = append(j.hits, Hit{
				Index: shard.Partition.Index,
				Shard: shard.Partition.Shard,
				ID:    h.ID,
			})
		}
	}
}

func (j *shardJoin) addFailure(nodeID core.NodeID, parts []core.PartitionID, cause error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, p := range parts {
		j.failures = append(j.failures, ShardFailure{
			Node:      nodeID,
			Partition: p,
			Reason:    cause.Error(),
			err:       cause,
		})
	}
}

func (j *shardJoin) finish(totalShards int) *SearchResponse {
	sort.Slice(j.hits, func(a, b int) bool {
		if j.hits[a].Index != j.hits[b].Index {
			return j.hits[a].Index < j.hits[b].Index
		}
		if j.hits[a].Shard != j.hits[b].Shard {
			return j.hits[a].Shard < j.hits[b].Shard
		}
		return j.hits[a].ID < j.hits[b].ID
	})
	sort.Slice(j.failures, func(a, b int) bool {
		fa, fb := j.failures[a].Partition, j.failures[b].Partition
		if fa.Index != fb.Index {
			return fa.Index < fb.Index
		}
		return fa.Shard < fb.Shard
	})

	return &SearchResponse{
		TotalHits:        j.total,
		Hits:             j.hits,
		TotalShards:      totalShards,
		SuccessfulShards: totalShards - len(j.failures),
		FailedShards:     len(j.failures),
		ShardFailures:    j.failures,
	}
}

func (c *Coordinator) searchContext(ctx context.Context, req SearchRequest, spec query.Spec) (*SearchResponse, error) {
	id, err := pitid.Decode(req.ContextID)
	if err != nil {
		return nil, err
	}

	// Existence is re-checked on every use. Snapshot content stays frozen,
	// but an index deleted since open fails the whole request.
	for _, index := range id.Indices() {
		if !c.state.HasIndex(index) {
			return nil, &IndexNotFoundError{Index: index}
		}
	}

	join := &shardJoin{}
	var wg sync.WaitGroup

	for _, entry := range id.Entries {
		entry := entry
		wg.Add(1)
		task := func() {
			defer wg.Done()

			callCtx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()

			resp, err := c.transport.QueryContext(callCtx, entry.Node, transport.QueryRequest{
				Key:       entry.Key,
				Query:     spec,
				KeepAlive: req.KeepAlive,
			})
			if err != nil {
				join.addFailure(entry.Node, entry.Parts, c.contextFailure(entry, err))
				return
			}
			join.addResult(resp.Result)
		}
		if err := c.pool.Submit(ctx, task); err != nil {
			wg.Done()
			join.addFailure(entry.Node, entry.Parts, err)
		}
	}
	wg.Wait()

	resp := join.finish(id.NumShards())
	resp.ContextID = req.ContextID

	if resp.TotalShards > 0 && resp.FailedShards == resp.TotalShards {
		return resp, &SearchPhaseError{Failures: resp.ShardFailures}
	}
	return resp, nil
}

// contextFailure classifies one node's context-query error.
func (c *Coordinator) contextFailure(entry pitid.Entry, err error) error {
	if errors.Is(err, contexts.ErrNotFound) {
		return &ContextMissingError{Node: entry.Node, Key: entry.Key, cause: err}
	}
	return err
}

func (c *Coordinator) searchLive(ctx context.Context, req SearchRequest, spec query.Spec) (*SearchResponse, error) {
	opts := req.Options
	if opts == (cluster.Options{}) {
		opts = cluster.DefaultOptions()
	}

	assignments, err := c.state.Resolve(req.Indices, opts)
	if err != nil {
		return nil, translateError(err)
	}

	byNode := groupByNode(assignments)
	join := &shardJoin{}

	var (
		wg      sync.WaitGroup
		hardMu  sync.Mutex
		hardErr error
	)

	for _, nodeID := range sortedNodeIDs(byNode) {
		nodeID := nodeID
		parts := byNode[nodeID]
		wg.Add(1)
		task := func() {
			defer wg.Done()

			callCtx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()

			resp, err := c.transport.Search(callCtx, nodeID, transport.SearchRequest{
				Partitions: parts,
				Query:      spec,
			})
			if err != nil {
				// Routing said the partition lives here but the node
				// disagrees: the index is gone, fail the whole request.
				if errors.Is(err, storage.ErrPartitionNotFound) {
					hardMu.Lock()
					if hardErr == nil {
						hardErr = translateError(err)
					}
					hardMu.Unlock()
					return
				}
				join.addFailure(nodeID, parts, err)
				return
			}
			join.addResult(resp.Result)
		}
		if err := c.pool.Submit(ctx, task); err != nil {
			wg.Done()
			join.addFailure(nodeID, parts, err)
		}
	}
	wg.Wait()

	if hardErr != nil {
		return nil, hardErr
	}

	resp := join.finish(len(assignments))
	if resp.TotalShards > 0 && resp.FailedShards == resp.TotalShards {
		return resp, &SearchPhaseError{Failures: resp.ShardFailures}
	}
	return resp, nil
}
