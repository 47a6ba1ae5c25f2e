package pitgo

import (
	"errors"
	"fmt"

	"github.com/hupe1980/pitgo/cluster"
	"github.com/hupe1980/pitgo/contexts"
	"github.com/hupe1980/pitgo/core"
	"github.com/hupe1980/pitgo/pitid"
	"github.com/hupe1980/pitgo/storage"
)

var (
	// ErrInvalidKeepAlive is returned when a keepalive is non-positive or
	// exceeds the configured ceiling. Rejected before any state is created.
	ErrInvalidKeepAlive = errors.New("invalid keep_alive")

	// ErrInvalidContextID is returned when a context-ID token cannot be
	// decoded.
	ErrInvalidContextID = pitid.ErrInvalidID

	// ErrCoordinatorClosed is returned after Shutdown.
	ErrCoordinatorClosed = errors.New("coordinator is closed")
)

// IndexNotFoundError indicates that an index pattern resolved to nothing at
// open time, or that an index captured by a live context no longer exists at
// use time.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type IndexNotFoundError struct {
	Index string
	cause error
}

func (e *IndexNotFoundError) Error() string {
	return fmt.Sprintf("no such index [%s]", e.Index)
}

func (e *IndexNotFoundError) Unwrap() error { return e.cause }

// ContextMissingError indicates that a referenced node-local context entry
// was not found: expired, reaped, closed, or the node restarted.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ContextMissingError struct {
	Node  core.NodeID
	Key   core.ContextKey
	cause error
}

func (e *ContextMissingError) Error() string {
	return fmt.Sprintf("search context missing on node %s [%s]", e.Node, e.Key)
}

func (e *ContextMissingError) Unwrap() error { return e.cause }

// ShardFailure is one shard's failure inside an otherwise dispatched
// search. Failures cross the fan-out boundary as values, not panics.
type ShardFailure struct {
	Node      core.NodeID      `json:"node"`
	Partition core.PartitionID `json:"partition"`
	Reason    string           `json:"reason"`

	err error
}

// Cause returns the underlying error of the failure. May be nil for
// failures rebuilt from wire responses.
func (f ShardFailure) Cause() error { return f.err }

// SearchPhaseError is returned when every shard of a search failed.
// Partial failures are reported inside SearchResponse instead.
type SearchPhaseError struct {
	Failures []ShardFailure
}

func (e *SearchPhaseError) Error() string {
	return fmt.Sprintf("search phase failed: all %d shards failed", len(e.Failures))
}

// Unwrap exposes the underlying shard failure causes to errors.Is/As.
func (e *SearchPhaseError) Unwrap() []error {
	var errs []error
	for _, f := range e.Failures {
		if f.err != nil {
			errs = append(errs, f.err)
		}
	}
	return errs
}

// translateError normalizes subsystem errors into the public contract.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	var inf *cluster.IndexNotFoundError
	if errors.As(err, &inf) {
		return &IndexNotFoundError{Index: inf.Index, cause: err}
	}

	var ka *contexts.KeepAliveError
	if errors.As(err, &ka) {
		return fmt.Errorf("%w: %w", ErrInvalidKeepAlive, err)
	}

	// A partition missing on its assigned node means the index is gone
	// from the node's perspective even when routing still lists it.
	if errors.Is(err, storage.ErrPartitionNotFound) {
		return &IndexNotFoundError{cause: err}
	}

	return err
}
