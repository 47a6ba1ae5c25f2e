// Package node implements the per-node service: it owns the partition store,
// the reader-context table, and the reaper, and executes local open, query,
// renew, and close operations on behalf of the coordinator.
package node

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hupe1980/pitgo/config"
	"github.com/hupe1980/pitgo/contexts"
	"github.com/hupe1980/pitgo/core"
	"github.com/hupe1980/pitgo/query"
	"github.com/hupe1980/pitgo/storage"
)

// ErrClosed is returned by operations on a shut-down node.
var ErrClosed = errors.New("node is closed")

// Options configures a Node.
type Options struct {
	// Contexts controls the context table and reaper.
	Contexts config.ContextsConfig

	// Storage controls partition behavior.
	Storage config.StorageConfig

	// Logger for node-level events. nil disables logging.
	Logger *slog.Logger
}

// Node is one data-holding node.
type Node struct {
	id     core.NodeID
	store  *storage.Store
	table  *contexts.Table[*storage.Snapshot]
	reaper *contexts.Reaper[*storage.Snapshot]
	logger *slog.Logger
	closed atomic.Bool
}

// New creates a node and starts its reaper.
func New(id core.NodeID, optFns ...func(*Options)) *Node {
	def := config.Default()
	opts := Options{
		Contexts: def.Contexts,
		Storage:  def.Storage,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	table := contexts.NewTable[*storage.Snapshot](func(o *contexts.TableOptions) {
		o.MaxKeepAlive = opts.Contexts.MaxKeepAlive
		o.MaxOpenContexts = opts.Contexts.MaxOpenContexts
		o.OpenRatePerSec = opts.Contexts.OpenRatePerSec
	})
	reaper := contexts.NewReaper(table, func(o *contexts.ReaperOptions) {
		o.Interval = opts.Contexts.ReapInterval
		o.Logger = opts.Logger
	})

	n := &Node{
		id:     id,
		store:  storage.NewStore(opts.Storage.SearchIdleAfter),
		table:  table,
		reaper: reaper,
		logger: opts.Logger,
	}
	reaper.Start()
	return n
}

// ID returns the node identity.
func (n *Node) ID() core.NodeID { return n.id }

// Store exposes the partition store for provisioning and test inspection.
func (n *Node) Store() *storage.Store { return n.store }

// CreatePartition provisions an empty partition on this node.
func (n *Node) CreatePartition(id core.PartitionID) error {
	if n.closed.Load() {
		return ErrClosed
	}
	_, err := n.store.CreatePartition(id)
	return err
}

// Index stages a document into the given partition.
func (n *Node) Index(id core.PartitionID, doc storage.Doc) error {
	p, ok := n.store.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", storage.ErrPartitionNotFound, id)
	}
	p.Index(doc)
	return nil
}

// DeleteDoc stages removal of a document from the given partition.
func (n *Node) DeleteDoc(id core.PartitionID, docID string) error {
	p, ok := n.store.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", storage.ErrPartitionNotFound, id)
	}
	p.Delete(docID)
	return nil
}

// Refresh makes staged writes visible on the given partition.
func (n *Node) Refresh(id core.PartitionID) error {
	p, ok := n.store.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", storage.ErrPartitionNotFound, id)
	}
	p.Refresh()
	return nil
}

// ShardResult is the outcome of running a query against one partition.
type ShardResult struct {
	Partition core.PartitionID `json:"partition"`
	Total     int64            `json:"total"`
	Hits      []storage.Hit    `json:"hits"`
}

// QueryResult aggregates shard results of one local execution.
type QueryResult struct {
	Shards []ShardResult `json:"shards"`
}

// OpenLocal captures snapshots of the given partitions and registers a
// context entry with the given keepalive. On any failure nothing is
// registered and every acquired snapshot is released again.
func (n *Node) OpenLocal(partitionIDs []core.PartitionID, keepAlive time.Duration) (core.ContextKey, error) {
	if n.closed.Load() {
		return "", ErrClosed
	}
	if len(partitionIDs) == 0 {
		return "", fmt.Errorf("node: open with no partitions")
	}

	snaps := make([]*storage.Snapshot, 0, len(partitionIDs))
	release := func() {
		for _, s := range snaps {
			s.Release()
		}
	}
	for _, pid := range partitionIDs {
		p, ok := n.store.Get(pid)
		if !ok {
			release()
			return "", fmt.Errorf("%w: %s", storage.ErrPartitionNotFound, pid)
		}
		snaps = append(snaps, p.AcquireSnapshot())
	}

	key, err := n.table.Create(snaps, keepAlive)
	if err != nil {
		release()
		return "", err
	}

	if n.logger != nil {
		n.logger.Debug("opened reader context",
			"key", string(key),
			"partitions", len(snaps),
			"keep_alive", keepAlive,
		)
	}
	return key, nil
}

// QueryLocal resolves the context entry, renews the lease first when a
// keepalive is supplied, and executes the query against the held snapshots.
//
// Returns contexts.ErrNotFound when the entry expired, was reaped, or the
// node restarted since open.
func (n *Node) QueryLocal(key core.ContextKey, q query.Query, renewKeepAlive time.Duration) (QueryResult, error) {
	if n.closed.Load() {
		return QueryResult{}, ErrClosed
	}

	if renewKeepAlive > 0 {
		if err := n.table.Renew(key, renewKeepAlive); err != nil {
			return QueryResult{}, err
		}
	}

	entry, err := n.table.Acquire(key)
	if err != nil {
		return QueryResult{}, err
	}
	defer n.table.ReleaseRef(entry)

	var res QueryResult
	for _, snap := range entry.Handles() {
		hits := snap.Search(q)
		res.Shards = append(res.Shards, ShardResult{
			Partition: snap.Partition(),
			Total:     int64(len(hits)),
			Hits:      hits,
		})
	}
	return res, nil
}

// RenewLocal extends the lease of a context entry.
func (n *Node) RenewLocal(key core.ContextKey, keepAlive time.Duration) error {
	if n.closed.Load() {
		return ErrClosed
	}
	return n.table.Renew(key, keepAlive)
}

// CloseLocal drops a context entry, releasing its snapshots. Idempotent;
// returns whether an entry was actually freed.
func (n *Node) CloseLocal(key core.ContextKey) bool {
	freed := n.table.Remove(key)
	if freed && n.logger != nil {
		n.logger.Debug("closed reader context", "key", string(key))
	}
	return freed
}

// Search runs a live (non-context) query against the given partitions.
// This path records search activity and resets search-idle state.
func (n *Node) Search(partitionIDs []core.PartitionID, q query.Query) (QueryResult, error) {
	if n.closed.Load() {
		return QueryResult{}, ErrClosed
	}

	var res QueryResult
	for _, pid := range partitionIDs {
		p, ok := n.store.Get(pid)
		if !ok {
			return QueryResult{}, fmt.Errorf("%w: %s", storage.ErrPartitionNotFound, pid)
		}
		hits := p.Search(q)
		res.Shards = append(res.Shards, ShardResult{
			Partition: pid,
			Total:     int64(len(hits)),
			Hits:      hits,
		})
	}
	return res, nil
}

// Stats is a point-in-time view of the node's context bookkeeping, used
// operationally to detect leaks.
type Stats struct {
	OpenContexts int   `json:"open_contexts"`
	OpenedTotal  int64 `json:"opened_total"`
	ExpiredTotal int64 `json:"expired_total"`
	ClosedTotal  int64 `json:"closed_total"`
}

// Stats returns the current context counters.
func (n *Node) Stats() Stats {
	return Stats{
		OpenContexts: n.table.Len(),
		OpenedTotal:  n.table.OpenedTotal(),
		ExpiredTotal: n.table.ExpiredTotal(),
		ClosedTotal:  n.table.ClosedTotal(),
	}
}

// Close shuts the node down: the reaper stops and every live context entry
// is released. Idempotent.
func (n *Node) Close() error {
	if !n.closed.CompareAndSwap(false, true) {
		return nil
	}
	n.reaper.Stop()
	released := n.table.Clear()
	if n.logger != nil && released > 0 {
		n.logger.Info("released reader contexts on shutdown", "count", released)
	}
	return nil
}
