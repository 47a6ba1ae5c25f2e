package pitid

import (
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/pitgo/core"
)

func sampleID() ID {
	return ID{Entries: []Entry{
		{
			Node: "node-a",
			Key:  "ctx-1",
			Parts: []core.PartitionID{
				{Index: "logs", Shard: 0},
				{Index: "logs", Shard: 2},
			},
		},
		{
			Node: "node-b",
			Key:  "ctx-2",
			Parts: []core.PartitionID{
				{Index: "logs", Shard: 1},
				{Index: "metrics", Shard: 0},
			},
		},
	}}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	id := sampleID()

	token, err := Encode(id)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	decoded, err := Decode(token)
	require.NoError(t, err)
	assert.Equal(t, id, decoded)
}

func TestEncodeDeterministic(t *testing.T) {
	a, err := Encode(sampleID())
	require.NoError(t, err)
	b, err := Encode(sampleID())
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestEncodeEmptyID(t *testing.T) {
	_, err := Encode(ID{})
	require.Error(t, err)
}

func TestDecodeInvalid(t *testing.T) {
	tests := []struct {
		name  string
		token string
	}{
		{name: "not base64", token: "!!! not a token !!!"},
		{name: "empty", token: ""},
		{name: "truncated", token: base64.RawURLEncoding.EncodeToString([]byte{formatV1})},
		{name: "garbage payload", token: base64.RawURLEncoding.EncodeToString([]byte{formatV1, 0xde, 0xad, 0xbe, 0xef})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.token)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidID), "want ErrInvalidID, got %v", err)
		})
	}
}

func TestDecodeUnknownFormat(t *testing.T) {
	token, err := Encode(sampleID())
	require.NoError(t, err)

	raw, err := base64.RawURLEncoding.DecodeString(token)
	require.NoError(t, err)
	raw[0] = 0x7f

	_, err = Decode(base64.RawURLEncoding.EncodeToString(raw))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidID))
}

func TestDecodeTamperedPayload(t *testing.T) {
	token, err := Encode(sampleID())
	require.NoError(t, err)

	raw, err := base64.RawURLEncoding.DecodeString(token)
	require.NoError(t, err)
	raw[len(raw)/2] ^= 0xff

	if _, err := Decode(base64.RawURLEncoding.EncodeToString(raw)); err == nil {
		t.Fatal("expected tampered token to fail decoding")
	}
}

func TestIndices(t *testing.T) {
	id := sampleID()
	assert.Equal(t, []string{"logs", "metrics"}, id.Indices())
}

func TestNumShards(t *testing.T) {
	assert.Equal(t, 4, sampleID().NumShards())
}
