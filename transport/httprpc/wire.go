// Package httprpc implements the Transport boundary over HTTP.
//
// Every node runs a Server exposing its local context operations; the
// coordinator side uses Client, which implements transport.Transport. The
// wire error envelope preserves error identity across the boundary, so
// errors.Is/As behave the same for remote and in-process calls.
package httprpc

import (
	"errors"
	"time"

	"github.com/hupe1980/pitgo/contexts"
	"github.com/hupe1980/pitgo/storage"
	"github.com/hupe1980/pitgo/transport"
)

// Wire error types.
const (
	errContextMissing    = "context_missing"
	errPartitionNotFound = "partition_not_found"
	errInvalidKeepAlive  = "invalid_keep_alive"
	errTooManyContexts   = "too_many_contexts"
	errThrottled         = "throttled"
	errNodeClosed        = "node_closed"
	errBadRequest        = "bad_request"
	errInternal          = "internal"
)

// errorEnvelope is the JSON error body.
type errorEnvelope struct {
	Error wireError `json:"error"`
}

type wireError struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`

	// Set for invalid_keep_alive so the client can rebuild the typed error.
	KeepAlive time.Duration `json:"keep_alive,omitempty"`
	Max       time.Duration `json:"max,omitempty"`
}

// toWire classifies an error into its envelope form.
func toWire(err error) wireError {
	switch {
	case errors.Is(err, contexts.ErrNotFound):
		return wireError{Type: errContextMissing, Reason: err.Error()}
	case errors.Is(err, storage.ErrPartitionNotFound):
		return wireError{Type: errPartitionNotFound, Reason: err.Error()}
	case errors.Is(err, contexts.ErrTooManyContexts):
		return wireError{Type: errTooManyContexts, Reason: err.Error()}
	case errors.Is(err, contexts.ErrOpenThrottled):
		return wireError{Type: errThrottled, Reason: err.Error()}
	}
	var ka *contexts.KeepAliveError
	if errors.As(err, &ka) {
		return wireError{
			Type:      errInvalidKeepAlive,
			Reason:    err.Error(),
			KeepAlive: ka.KeepAlive,
			Max:       ka.Max,
		}
	}
	return wireError{Type: errInternal, Reason: err.Error()}
}

// fromWire rebuilds the matching Go error from an envelope.
func (we wireError) fromWire() error {
	switch we.Type {
	case errContextMissing:
		return contexts.ErrNotFound
	case errPartitionNotFound:
		return storage.ErrPartitionNotFound
	case errTooManyContexts:
		return contexts.ErrTooManyContexts
	case errThrottled:
		return contexts.ErrOpenThrottled
	case errInvalidKeepAlive:
		return &contexts.KeepAliveError{KeepAlive: we.KeepAlive, Max: we.Max}
	case errNodeClosed:
		return transport.ErrNodeUnavailable
	default:
		return &RemoteError{Type: we.Type, Reason: we.Reason}
	}
}

// RemoteError is a node-side failure that has no typed local counterpart.
type RemoteError struct {
	Type   string
	Reason string
}

func (e *RemoteError) Error() string {
	return "remote: " + e.Type + ": " + e.Reason
}
