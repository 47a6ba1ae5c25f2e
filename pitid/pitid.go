// Package pitid implements the opaque context-ID token.
//
// A token aggregates one node-local context key per participating node plus
// the routing metadata (node ID, index, shard) needed to address each node
// directly. Tokens are a versioned value type: clients must treat them as
// opaque strings, and nodes of mixed versions must round-trip them exactly.
//
// Wire format: one format byte, then a zstd-compressed JSON payload, the
// whole thing base64url-encoded without padding.
package pitid

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/hupe1980/pitgo/codec"
	"github.com/hupe1980/pitgo/core"
)

// formatV1 is the only token format so far. Bump on any payload change.
const formatV1 = 0x01

// ErrInvalidID is returned when a token cannot be decoded.
//
// The original underlying error (if any) can be accessed via errors.Unwrap
// on the returned error.
var ErrInvalidID = errors.New("invalid context id")

// Entry is one node's contribution to a context ID.
type Entry struct {
	Node  core.NodeID        `json:"node"`
	Key   core.ContextKey    `json:"key"`
	Parts []core.PartitionID `json:"parts"`
}

// ID is the decoded form of a context-ID token.
//
// An ID is immutable after open; closing a context invalidates every key it
// contains, so tokens are never reused.
type ID struct {
	Entries []Entry `json:"entries"`
}

type payload struct {
	Entries []Entry `json:"entries"`
}

var (
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	zstdDecoder, _ = zstd.NewReader(nil)
)

// Encode serializes the ID into its opaque token form.
func Encode(id ID) (string, error) {
	return EncodeWithCodec(id, codec.Default)
}

// EncodeWithCodec serializes the ID using the given payload codec.
func EncodeWithCodec(id ID, c codec.Codec) (string, error) {
	if len(id.Entries) == 0 {
		return "", fmt.Errorf("pitid: refusing to encode empty id")
	}
	if c == nil {
		c = codec.Default
	}
	body, err := c.Marshal(payload{Entries: id.Entries})
	if err != nil {
		return "", fmt.Errorf("pitid: marshal payload: %w", err)
	}
	raw := make([]byte, 1, 1+len(body)/2)
	raw[0] = formatV1
	raw = zstdEncoder.EncodeAll(body, raw)
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// Decode parses an opaque token back into an ID.
//
// Decoding is deterministic: the exact (node, key, partitions) tuples the
// token was built from come back, in order.
func Decode(token string) (ID, error) {
	return DecodeWithCodec(token, codec.Default)
}

// DecodeWithCodec parses a token using the given payload codec.
func DecodeWithCodec(token string, c codec.Codec) (ID, error) {
	if c == nil {
		c = codec.Default
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return ID{}, fmt.Errorf("%w: %w", ErrInvalidID, err)
	}
	if len(raw) < 2 {
		return ID{}, fmt.Errorf("%w: truncated token", ErrInvalidID)
	}
	if raw[0] != formatV1 {
		return ID{}, fmt.Errorf("%w: unknown format 0x%02x", ErrInvalidID, raw[0])
	}
	body, err := zstdDecoder.DecodeAll(raw[1:], nil)
	if err != nil {
		return ID{}, fmt.Errorf("%w: %w", ErrInvalidID, err)
	}
	var p payload
	if err := c.Unmarshal(body, &p); err != nil {
		return ID{}, fmt.Errorf("%w: %w", ErrInvalidID, err)
	}
	if len(p.Entries) == 0 {
		return ID{}, fmt.Errorf("%w: no entries", ErrInvalidID)
	}
	return ID{Entries: p.Entries}, nil
}

// Indices returns the distinct index names captured by the ID, in first-seen
// order.
func (id ID) Indices() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, e := range id.Entries {
		for _, p := range e.Parts {
			if _, ok := seen[p.Index]; ok {
				continue
			}
			seen[p.Index] = struct{}{}
			out = append(out, p.Index)
		}
	}
	return out
}

// NumShards returns the total number of partitions referenced by the ID.
func (id ID) NumShards() int {
	n := 0
	for _, e := range id.Entries {
		n += len(e.Parts)
	}
	return n
}
