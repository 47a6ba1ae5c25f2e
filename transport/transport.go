// Package transport defines the node-to-node call boundary the coordinator
// fans out over, plus an in-process implementation.
//
// Failures cross this boundary as values, never as panics: a node that
// cannot be reached or times out yields an error for that one call, and the
// coordinator turns it into a per-shard failure without touching the
// (possibly still valid) remote entry.
package transport

import (
	"context"
	"errors"
	"time"

	"github.com/hupe1980/pitgo/core"
	"github.com/hupe1980/pitgo/node"
	"github.com/hupe1980/pitgo/query"
)

// ErrNodeUnavailable is returned when the target node is unknown or
// unreachable.
var ErrNodeUnavailable = errors.New("node unavailable")

// OpenRequest asks a node to capture snapshots and register a context entry.
type OpenRequest struct {
	Partitions []core.PartitionID `json:"partitions"`
	KeepAlive  time.Duration      `json:"keep_alive"`
}

// OpenResponse carries the node-local context key.
type OpenResponse struct {
	Key core.ContextKey `json:"key"`
}

// QueryRequest executes a query against a node's context entry.
// KeepAlive == 0 means "do not renew"; the lease keeps ticking down.
type QueryRequest struct {
	Key       core.ContextKey `json:"key"`
	Query     query.Spec      `json:"query"`
	KeepAlive time.Duration   `json:"keep_alive,omitempty"`
}

// QueryResponse carries the per-shard results of a context query.
type QueryResponse struct {
	Result node.QueryResult `json:"result"`
}

// CloseRequest drops a node's context entry.
type CloseRequest struct {
	Key core.ContextKey `json:"key"`
}

// CloseResponse reports whether an entry was actually freed.
type CloseResponse struct {
	Freed bool `json:"freed"`
}

// SearchRequest executes a live (non-context) query against partitions the
// node hosts.
type SearchRequest struct {
	Partitions []core.PartitionID `json:"partitions"`
	Query      query.Spec         `json:"query"`
}

// SearchResponse carries the per-shard results of a live search.
type SearchResponse struct {
	Result node.QueryResult `json:"result"`
}

// Transport dispatches one call to one node.
//
// Implementations must preserve the error contract: context-missing,
// partition-not-found, and keepalive validation errors returned by the
// remote node must come back as errors matching the corresponding
// contexts/storage errors via errors.Is/As.
type Transport interface {
	OpenContext(ctx context.Context, nodeID core.NodeID, req OpenRequest) (OpenResponse, error)
	QueryContext(ctx context.Context, nodeID core.NodeID, req QueryRequest) (QueryResponse, error)
	CloseContext(ctx context.Context, nodeID core.NodeID, req CloseRequest) (CloseResponse, error)
	Search(ctx context.Context, nodeID core.NodeID, req SearchRequest) (SearchResponse, error)
	Stats(ctx context.Context, nodeID core.NodeID) (node.Stats, error)
}
