package httprpc

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/pitgo/contexts"
	"github.com/hupe1980/pitgo/storage"
)

func TestWirePreservesErrorIdentity(t *testing.T) {
	tests := []struct {
		name string
		in   error
		want error
	}{
		{name: "context missing", in: contexts.ErrNotFound, want: contexts.ErrNotFound},
		{name: "wrapped context missing", in: fmt.Errorf("query: %w", contexts.ErrNotFound), want: contexts.ErrNotFound},
		{name: "partition not found", in: storage.ErrPartitionNotFound, want: storage.ErrPartitionNotFound},
		{name: "too many contexts", in: contexts.ErrTooManyContexts, want: contexts.ErrTooManyContexts},
		{name: "throttled", in: contexts.ErrOpenThrottled, want: contexts.ErrOpenThrottled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rebuilt := toWire(tt.in).fromWire()
			assert.True(t, errors.Is(rebuilt, tt.want), "got %v", rebuilt)
		})
	}
}

func TestWireKeepAliveError(t *testing.T) {
	in := &contexts.KeepAliveError{KeepAlive: 48 * time.Hour, Max: 24 * time.Hour}
	rebuilt := toWire(in).fromWire()

	var ka *contexts.KeepAliveError
	require.ErrorAs(t, rebuilt, &ka)
	assert.Equal(t, in.KeepAlive, ka.KeepAlive)
	assert.Equal(t, in.Max, ka.Max)
}

func TestWireUnknownTypeBecomesRemoteError(t *testing.T) {
	rebuilt := wireError{Type: "internal", Reason: "boom"}.fromWire()

	var remote *RemoteError
	require.ErrorAs(t, rebuilt, &remote)
	assert.Equal(t, "internal", remote.Type)
	assert.Equal(t, "boom", remote.Reason)
}
