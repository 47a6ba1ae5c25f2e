package httprpc

import (
	"context"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/pitgo/contexts"
	"github.com/hupe1980/pitgo/core"
	"github.com/hupe1980/pitgo/node"
	"github.com/hupe1980/pitgo/query"
	"github.com/hupe1980/pitgo/storage"
	"github.com/hupe1980/pitgo/transport"
)

var testPart = core.PartitionID{Index: "logs", Shard: 0}

func newTestSetup(t *testing.T, optFns ...func(*node.Options)) (*Client, *node.Node) {
	t.Helper()

	n := node.New("n1", optFns...)
	t.Cleanup(func() { _ = n.Close() })

	require.NoError(t, n.CreatePartition(testPart))
	for i := 0; i < 6; i++ {
		require.NoError(t, n.Index(testPart, storage.Doc{
			ID:     fmt.Sprintf("doc-%d", i),
			Fields: query.Fields{"n": i},
		}))
	}
	require.NoError(t, n.Refresh(testPart))

	srv := NewServer(n, "ignored")
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	client := NewClient(func(o *ClientOptions) {
		o.HTTPClient = ts.Client()
	})
	client.AddNode("n1", ts.URL)
	return client, n
}

func TestClientServerRoundTrip(t *testing.T) {
	client, _ := newTestSetup(t)
	ctx := context.Background()

	openResp, err := client.OpenContext(ctx, "n1", transport.OpenRequest{
		Partitions: []core.PartitionID{testPart},
		KeepAlive:  time.Minute,
	})
	require.NoError(t, err)
	require.NotEmpty(t, openResp.Key)

	queryResp, err := client.QueryContext(ctx, "n1", transport.QueryRequest{
		Key:   openResp.Key,
		Query: query.Spec{Kind: query.KindMatchAll},
	})
	require.NoError(t, err)
	require.Len(t, queryResp.Result.Shards, 1)
	assert.Equal(t, int64(6), queryResp.Result.Shards[0].Total)
	assert.Equal(t, testPart, queryResp.Result.Shards[0].Partition)

	stats, err := client.Stats(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.OpenContexts)

	closeResp, err := client.CloseContext(ctx, "n1", transport.CloseRequest{Key: openResp.Key})
	require.NoError(t, err)
	assert.True(t, closeResp.Freed)

	closeResp, err = client.CloseContext(ctx, "n1", transport.CloseRequest{Key: openResp.Key})
	require.NoError(t, err)
	assert.False(t, closeResp.Freed)
}

func TestContextMissingCrossesWire(t *testing.T) {
	client, _ := newTestSetup(t)

	_, err := client.QueryContext(context.Background(), "n1", transport.QueryRequest{
		Key:   "no-such-key",
		Query: query.Spec{Kind: query.KindMatchAll},
	})
	require.ErrorIs(t, err, contexts.ErrNotFound)
}

func TestPartitionNotFoundCrossesWire(t *testing.T) {
	client, _ := newTestSetup(t)

	_, err := client.OpenContext(context.Background(), "n1", transport.OpenRequest{
		Partitions: []core.PartitionID{{Index: "ghost", Shard: 0}},
		KeepAlive:  time.Minute,
	})
	require.ErrorIs(t, err, storage.ErrPartitionNotFound)
}

func TestKeepAliveErrorCrossesWire(t *testing.T) {
	client, _ := newTestSetup(t, func(o *node.Options) {
		o.Contexts.MaxKeepAlive = time.Hour
	})

	_, err := client.OpenContext(context.Background(), "n1", transport.OpenRequest{
		Partitions: []core.PartitionID{testPart},
		KeepAlive:  2 * time.Hour,
	})
	require.Error(t, err)

	var kaErr *contexts.KeepAliveError
	require.ErrorAs(t, err, &kaErr)
	assert.Equal(t, 2*time.Hour, kaErr.KeepAlive)
	assert.Equal(t, time.Hour, kaErr.Max)
}

func TestRenewEndpoint(t *testing.T) {
	client, _ := newTestSetup(t)
	ctx := context.Background()

	openResp, err := client.OpenContext(ctx, "n1", transport.OpenRequest{
		Partitions: []core.PartitionID{testPart},
		KeepAlive:  time.Minute,
	})
	require.NoError(t, err)

	require.NoError(t, client.Renew(ctx, "n1", openResp.Key, time.Hour))
	require.ErrorIs(t, client.Renew(ctx, "n1", "no-such-key", time.Hour), contexts.ErrNotFound)
}

func TestRemoteSearch(t *testing.T) {
	client, _ := newTestSetup(t)

	gte := float64(3)
	resp, err := client.Search(context.Background(), "n1", transport.SearchRequest{
		Partitions: []core.PartitionID{testPart},
		Query:      query.Spec{Kind: query.KindRange, Field: "n", GTE: &gte},
	})
	require.NoError(t, err)
	require.Len(t, resp.Result.Shards, 1)
	assert.Equal(t, int64(3), resp.Result.Shards[0].Total)
}

func TestUnknownNode(t *testing.T) {
	client := NewClient()
	_, err := client.Stats(context.Background(), "ghost")
	require.ErrorIs(t, err, transport.ErrNodeUnavailable)
}

func TestUnreachableNode(t *testing.T) {
	client := NewClient(func(o *ClientOptions) {
		o.RequestTimeout = 200 * time.Millisecond
	})
	client.AddNode("dead", "http://127.0.0.1:1")

	_, err := client.Stats(context.Background(), "dead")
	require.ErrorIs(t, err, transport.ErrNodeUnavailable)
}

func TestNodeClosedCrossesWire(t *testing.T) {
	client, n := newTestSetup(t)
	require.NoError(t, n.Close())

	_, err := client.OpenContext(context.Background(), "n1", transport.OpenRequest{
		Partitions: []core.PartitionID{testPart},
		KeepAlive:  time.Minute,
	})
	require.ErrorIs(t, err, transport.ErrNodeUnavailable)
}
