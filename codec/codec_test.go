package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestByName(t *testing.T) {
	for _, name := range []string{"json", "go-json"} {
		c, ok := ByName(name)
		require.True(t, ok, name)
		assert.Equal(t, name, c.Name())
	}

	_, ok := ByName("msgpack")
	assert.False(t, ok)
}

func TestCodecsInteroperate(t *testing.T) {
	in := sample{Name: "ctx", Count: 3}

	// A body produced by one codec must decode with the other.
	stdBody, err := (JSON{}).Marshal(in)
	require.NoError(t, err)
	fastBody, err := (GoJSON{}).Marshal(in)
	require.NoError(t, err)

	var a, b sample
	require.NoError(t, (GoJSON{}).Unmarshal(stdBody, &a))
	require.NoError(t, (JSON{}).Unmarshal(fastBody, &b))
	assert.Equal(t, in, a)
	assert.Equal(t, in, b)
}

func TestUnmarshalGarbage(t *testing.T) {
	var out sample
	require.Error(t, (JSON{}).Unmarshal([]byte("{nope"), &out))
	require.Error(t, (GoJSON{}).Unmarshal([]byte("{nope"), &out))
}

func TestDefaultIsGoJSON(t *testing.T) {
	assert.Equal(t, "go-json", Default.Name())
}

func TestMustMarshal(t *testing.T) {
	out := MustMarshal(nil, sample{Name: "x"})
	assert.NotEmpty(t, out)
}
