package httprpc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/hupe1980/pitgo/codec"
	"github.com/hupe1980/pitgo/core"
	"github.com/hupe1980/pitgo/node"
	"github.com/hupe1980/pitgo/transport"
)

// ClientOptions configures a Client.
type ClientOptions struct {
	// HTTPClient to use. nil uses a client with RequestTimeout.
	HTTPClient *http.Client

	// RequestTimeout is the per-call timeout when HTTPClient is nil.
	RequestTimeout time.Duration

	// Codec for request/response bodies. nil uses codec.Default.
	Codec codec.Codec
}

// Client implements transport.Transport over HTTP.
//
// A call that times out or fails at the connection level yields an error for
// that one request only; the remote entry is left alone and may still be
// valid for later calls.
type Client struct {
	httpClient *http.Client
	codec      codec.Codec

	mu    sync.RWMutex
	bases map[core.NodeID]string
}

var _ transport.Transport = (*Client)(nil)

// NewClient creates a client with no known nodes.
func NewClient(optFns ...func(*ClientOptions)) *Client {
	opts := ClientOptions{
		RequestTimeout: 30 * time.Second,
		Codec:          codec.Default,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.RequestTimeout}
	}
	c := opts.Codec
	if c == nil {
		c = codec.Default
	}
	return &Client{
		httpClient: httpClient,
		codec:      c,
		bases:      make(map[core.NodeID]string),
	}
}

// AddNode registers the base URL for a node.
func (c *Client) AddNode(id core.NodeID, baseURL string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bases[id] = baseURL
}

// RemoveNode forgets a node.
func (c *Client) RemoveNode(id core.NodeID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.bases, id)
}

func (c *Client) baseURL(id core.NodeID) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	base, ok := c.bases[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", transport.ErrNodeUnavailable, id)
	}
	return base, nil
}

// OpenContext implements transport.Transport.
func (c *Client) OpenContext(ctx context.Context, nodeID core.NodeID, req transport.OpenRequest) (transport.OpenResponse, error) {
	var resp transport.OpenResponse
	err := c.post(ctx, nodeID, "/contexts/open", req, &resp)
	return resp, err
}

// QueryContext implements transport.Transport.
func (c *Client) QueryContext(ctx context.Context, nodeID core.NodeID, req transport.QueryRequest) (transport.QueryResponse, error) {
	var resp transport.QueryResponse
	err := c.post(ctx, nodeID, "/contexts/query", req, &resp)
	return resp, err
}

// CloseContext implements transport.Transport.
func (c *Client) CloseContext(ctx context.Context, nodeID core.NodeID, req transport.CloseRequest) (transport.CloseResponse, error) {
	var resp transport.CloseResponse
	err := c.post(ctx, nodeID, "/contexts/close", req, &resp)
	return resp, err
}

// Search implements transport.Transport.
func (c *Client) Search(ctx context.Context, nodeID core.NodeID, req transport.SearchRequest) (transport.SearchResponse, error) {
	var resp transport.SearchResponse
	err := c.post(ctx, nodeID, "/search", req, &resp)
	return resp, err
}

// Renew explicitly extends the lease of a node-local context entry without
// running a query. Not part of transport.Transport; searches renew inline.
func (c *Client) Renew(ctx context.Context, nodeID core.NodeID, key core.ContextKey, keepAlive time.Duration) error {
	return c.post(ctx, nodeID, "/contexts/renew", renewRequest{Key: string(key), KeepAlive: keepAlive}, nil)
}

// Stats implements transport.Transport.
func (c *Client) Stats(ctx context.Context, nodeID core.NodeID) (node.Stats, error) {
	base, err := c.baseURL(nodeID)
	if err != nil {
		return node.Stats{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/stats", nil)
	if err != nil {
		return node.Stats{}, fmt.Errorf("httprpc: create request: %w", err)
	}
	var stats node.Stats
	if err := c.do(httpReq, &stats); err != nil {
		return node.Stats{}, err
	}
	return stats, nil
}

func (c *Client) post(ctx context.Context, nodeID core.NodeID, path string, req, resp any) error {
	base, err := c.baseURL(nodeID)
	if err != nil {
		return err
	}
	body, err := c.codec.Marshal(req)
	if err != nil {
		return fmt.Errorf("httprpc: marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, base+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("httprpc: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentTypeJSON)
	return c.do(httpReq, resp)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", transport.ErrNodeUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("httprpc: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var env errorEnvelope
		if err := c.codec.Unmarshal(data, &env); err != nil || env.Error.Type == "" {
			return fmt.Errorf("httprpc: status %d: %s", resp.StatusCode, string(data))
		}
		return env.Error.fromWire()
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := c.codec.Unmarshal(data, out); err != nil {
		return fmt.Errorf("httprpc: decode response: %w", err)
	}
	return nil
}
