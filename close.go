package pitgo

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/pitgo/contexts"
	"github.com/hupe1980/pitgo/pitid"
	"github.com/hupe1980/pitgo/transport"
)

// Close releases the reader context identified by the token on every
// participating node and reports whether any entry was actually freed.
//
// Close is best-effort and idempotent: entries already expired, reaped, or
// closed count as freed-elsewhere, and an unreachable node does not fail the
// call — its entry falls to the node-side reaper. Closing the same token
// twice returns (false, nil) the second time.
func (c *Coordinator) Close(ctx context.Context, contextID string) (bool, error) {
	start := time.Now()
	freed, err := c.close(ctx, contextID)
	c.metrics.RecordClose(time.Since(start), err)
	c.logger.LogClose(ctx, freed, err)
	return freed, err
}

func (c *Coordinator) close(ctx context.Context, contextID string) (bool, error) {
	if c.closed.Load() {
		return false, ErrCoordinatorClosed
	}

	id, err := pitid.Decode(contextID)
	if err != nil {
		return false, err
	}

	var (
		wg    sync.WaitGroup
		freed atomic.Bool
	)

	for _, entry := range id.Entries {
		entry := entry
		wg.Add(1)
		go func() {
			defer wg.Done()

			callCtx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()

			resp, err := c.transport.CloseContext(callCtx, entry.Node, transport.CloseRequest{Key: entry.Key})
			if err != nil {
				// Missing entries and dead nodes are fine: the entry is
				// gone either way, or the reaper will get it.
				if errors.Is(err, contexts.ErrNotFound) || errors.Is(err, transport.ErrNodeUnavailable) {
					return
				}
				c.logger.WithNode(string(entry.Node)).DebugContext(ctx, "close reader context failed", "error", err)
				return
			}
			if resp.Freed {
				freed.Store(true)
			}
		}()
	}
	wg.Wait()

	return freed.Load(), nil
}
