package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/pitgo/core"
	"github.com/hupe1980/pitgo/node"
)

// Local is an in-process Transport over a set of co-located nodes.
// Used in tests and single-process deployments.
type Local struct {
	mu    sync.RWMutex
	nodes map[core.NodeID]*node.Node
}

var _ Transport = (*Local)(nil)

// NewLocal creates an empty in-process transport.
func NewLocal() *Local {
	return &Local{nodes: make(map[core.NodeID]*node.Node)}
}

// Register adds a node as a call target.
func (l *Local) Register(n *node.Node) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nodes[n.ID()] = n
}

// Deregister removes a node, simulating it leaving the cluster.
func (l *Local) Deregister(id core.NodeID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.nodes, id)
}

func (l *Local) lookup(id core.NodeID) (*node.Node, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n, ok := l.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeUnavailable, id)
	}
	return n, nil
}

// OpenContext implements Transport.
func (l *Local) OpenContext(ctx context.Context, nodeID core.NodeID, req OpenRequest) (OpenResponse, error) {
	if err := ctx.Err(); err != nil {
		return OpenResponse{}, err
	}
	n, err := l.lookup(nodeID)
	if err != nil {
		return OpenResponse{}, err
	}
	key, err := n.OpenLocal(req.Partitions, req.KeepAlive)
	if err != nil {
		return OpenResponse{}, err
	}
	return OpenResponse{Key: key}, nil
}

// QueryContext implements Transport.
func (l *Local) QueryContext(ctx context.Context, nodeID core.NodeID, req QueryRequest) (QueryResponse, error) {
	if err := ctx.Err(); err != nil {
		return QueryResponse{}, err
	}
	n, err := l.lookup(nodeID)
	if err != nil {
		return QueryResponse{}, err
	}
	q, err := req.Query.Build()
	if err != nil {
		return QueryResponse{}, err
	}
	res, err := n.QueryLocal(req.Key, q, req.KeepAlive)
	if err != nil {
		return QueryResponse{}, err
	}
	return QueryResponse{Result: res}, nil
}

// CloseContext implements Transport.
func (l *Local) CloseContext(ctx context.Context, nodeID core.NodeID, req CloseRequest) (CloseResponse, error) {
	if err := ctx.Err(); err != nil {
		return CloseResponse{}, err
	}
	n, err := l.lookup(nodeID)
	if err != nil {
		return CloseResponse{}, err
	}
	return CloseResponse{Freed: n.CloseLocal(req.Key)}, nil
}

// Search implements Transport.
func (l *Local) Search(ctx context.Context, nodeID core.NodeID, req SearchRequest) (SearchResponse, error) {
	if err := ctx.Err(); err != nil {
		return SearchResponse{}, err
	}
	n, err := l.lookup(nodeID)
	if err != nil {
		return SearchResponse{}, err
	}
	q, err := req.Query.Build()
	if err != nil {
		return SearchResponse{}, err
	}
	res, err := n.Search(req.Partitions, q)
	if err != nil {
		return SearchResponse{}, err
	}
	return SearchResponse{Result: res}, nil
}

// Stats implements Transport.
func (l *Local) Stats(ctx context.Context, nodeID core.NodeID) (node.Stats, error) {
	if err := ctx.Err(); err != nil {
		return node.Stats{}, err
	}
	n, err := l.lookup(nodeID)
	if err != nil {
		return node.Stats{}, err
	}
	return n.Stats(), nil
}
