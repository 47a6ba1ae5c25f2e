package pitgo

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/pitgo/cluster"
	"github.com/hupe1980/pitgo/core"
	"github.com/hupe1980/pitgo/pitid"
	"github.com/hupe1980/pitgo/transport"
)

// DefaultRequestTimeout bounds per-node calls unless overridden.
const DefaultRequestTimeout = 30 * time.Second

// Coordinator fans reader-context operations out to every participating
// node and joins the per-node outcomes into one client-visible result.
//
// All methods are safe for concurrent use.
type Coordinator struct {
	state     *cluster.State
	transport transport.Transport
	pool      *WorkerPool
	logger    *Logger
	metrics   MetricsCollector
	timeout   time.Duration
	closed    atomic.Bool
}

// New constructs a Coordinator over the given routing state and transport.
func New(state *cluster.State, tp transport.Transport, optFns ...Option) (*Coordinator, error) {
	if state == nil {
		return nil, fmt.Errorf("coordinator: cluster state is nil")
	}
	if tp == nil {
		return nil, fmt.Errorf("coordinator: transport is nil")
	}

	opts := options{
		logger:         NoopLogger(),
		metrics:        NoopMetricsCollector{},
		requestTimeout: DefaultRequestTimeout,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Coordinator{
		state:     state,
		transport: tp,
		pool:      NewWorkerPool(opts.poolSize),
		logger:    opts.logger,
		metrics:   opts.metrics,
		timeout:   opts.requestTimeout,
	}, nil
}

// Shutdown stops the fan-out worker pool. In-flight requests complete;
// later calls fail with ErrCoordinatorClosed. Idempotent.
func (c *Coordinator) Shutdown() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	c.pool.Close()
}

// OpenRequest describes a reader-context open.
type OpenRequest struct {
	// Indices are the index names or patterns to capture.
	Indices []string

	// Options controls pattern resolution. Zero value uses the strict
	// defaults (wildcards expanded, no-match is an error).
	Options cluster.Options

	// KeepAlive is the initial lease duration. Must be positive and
	// within every participating node's ceiling.
	KeepAlive time.Duration

	// Preference and Routing are opaque hints passed through to the
	// routing layer. Unused with single-copy assignment; reserved for
	// replica selection.
	Preference string
	Routing    string
}

// Open resolves the index patterns once, captures a snapshot-backed context
// entry on every node owning a matched partition, and returns the encoded
// context ID.
//
// Open is atomic from the client's perspective: if any node fails, every
// already-created entry is rolled back and no live context remains.
func (c *Coordinator) Open(ctx context.Context, req OpenRequest) (string, error) {
	start := time.Now()
	token, shards, err := c.open(ctx, req)
	c.metrics.RecordOpen(time.Since(start), err)
	c.logger.LogOpen(ctx, req.Indices, shards, req.KeepAlive, err)
	return token, err
}

func (c *Coordinator) open(ctx context.Context, req OpenRequest) (string, int, error) {
	if c.closed.Load() {
		return "", 0, ErrCoordinatorClosed
	}
	if req.KeepAlive <= 0 {
		return "", 0, fmt.Errorf("%w: %v", ErrInvalidKeepAlive, req.KeepAlive)
	}

	opts := req.Options
	if opts == (cluster.Options{}) {
		opts = cluster.DefaultOptions()
	}

	assignments, err := c.state.Resolve(req.Indices, opts)
	if err != nil {
		return "", 0, translateError(err)
	}
	if len(assignments) == 0 {
		return "", 0, &IndexNotFoundError{Index: joinPatterns(req.Indices)}
	}

	byNode := groupByNode(assignments)
	nodeIDs := sortedNodeIDs(byNode)

	var (
		mu      sync.Mutex
		entries []pitid.Entry
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, nodeID := range nodeIDs {
		nodeID := nodeID
		parts := byNode[nodeID]
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(gctx, c.timeout)
			defer cancel()

			resp, err := c.transport.OpenContext(callCtx, nodeID, transport.OpenRequest{
				Partitions: parts,
				KeepAlive:  req.KeepAlive,
			})
			if err != nil {
				return fmt.Errorf("node %s: %w", nodeID, err)
			}
			mu.Lock()
			entries = append(entries, pitid.Entry{Node: nodeID, Key: resp.Key, Parts: parts})
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		// All-or-nothing: roll back whatever was created.
		c.rollback(entries)
		return "", 0, translateError(err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Node < entries[j].Node })

	token, err := pitid.Encode(pitid.ID{Entries: entries})
	if err != nil {
		c.rollback(entries)
		return "", 0, err
	}
	return token, len(assignments), nil
}

// rollback best-effort closes already-created entries after a partial open
// failure. Runs on a fresh context so a cancelled open still cleans up;
// entries it cannot reach fall to the node-side reaper.
func (c *Coordinator) rollback(entries []pitid.Entry) {
	if len(entries) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	var wg sync.WaitGroup
	for _, e := range entries {
		e := e
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.transport.CloseContext(ctx, e.Node, transport.CloseRequest{Key: e.Key}); err != nil {
				c.logger.WithNode(string(e.Node)).DebugContext(ctx, "open rollback close failed", "error", err)
			}
		}()
	}
	wg.Wait()
}

func joinPatterns(patterns []string) string {
	out := ""
	for i, p := range patterns {
		if i > 0 {
			out += ","
		}
		out += p
	}
	return out
}

func groupByNode(assignments []cluster.Assignment) map[core.NodeID][]core.PartitionID {
	byNode := make(map[core.NodeID][]core.PartitionID)
	for _, a := range assignments {
		byNode[a.Node] = append(byNode[a.Node], a.Partition)
	}
	return byNode
}

func sortedNodeIDs(byNode map[core.NodeID][]core.PartitionID) []core.NodeID {
	out := make([]core.NodeID, 0, len(byNode))
	for id := range byNode {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Stats returns per-node context statistics for every registered node.
// Used operationally to detect context leaks.
func (c *Coordinator) Stats(ctx context.Context) (map[core.NodeID]NodeStats, error) {
	if c.closed.Load() {
		return nil, ErrCoordinatorClosed
	}

	out := make(map[core.NodeID]NodeStats)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, nodeID := range c.state.Nodes() {
		nodeID := nodeID
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(gctx, c.timeout)
			defer cancel()

			stats, err := c.transport.Stats(callCtx, nodeID)
			if err != nil {
				return fmt.Errorf("node %s: %w", nodeID, err)
			}
			mu.Lock()
			out[nodeID] = NodeStats{
				OpenContexts: stats.OpenContexts,
				OpenedTotal:  stats.OpenedTotal,
				ExpiredTotal: stats.ExpiredTotal,
				ClosedTotal:  stats.ClosedTotal,
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// NodeStats mirrors one node's context bookkeeping counters.
type NodeStats struct {
	OpenContexts int   `json:"open_contexts"`
	OpenedTotal  int64 `json:"opened_total"`
	ExpiredTotal int64 `json:"expired_total"`
	ClosedTotal  int64 `json:"closed_total"`
}

// OpenContextsTotal sums open contexts across all nodes.
func OpenContextsTotal(stats map[core.NodeID]NodeStats) int {
	n := 0
	for _, s := range stats {
		n += s.OpenContexts
	}
	return n
}
