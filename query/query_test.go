package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fptr(v float64) *float64 { return &v }

func TestMatchAll(t *testing.T) {
	q := MatchAll{}
	assert.True(t, q.Matches(Fields{"any": "thing"}))
	assert.True(t, q.Matches(nil))
}

func TestTerm(t *testing.T) {
	q := Term{Field: "level", Value: "error"}

	assert.True(t, q.Matches(Fields{"level": "error"}))
	assert.False(t, q.Matches(Fields{"level": "info"}))
	assert.False(t, q.Matches(Fields{"other": "error"}))
	assert.False(t, q.Matches(nil))
}

func TestTermNumeric(t *testing.T) {
	q := Term{Field: "code", Value: 404}
	assert.True(t, q.Matches(Fields{"code": 404}))
	assert.False(t, q.Matches(Fields{"code": 500}))
}

func TestRange(t *testing.T) {
	tests := []struct {
		name   string
		q      Range
		fields Fields
		want   bool
	}{
		{name: "inside", q: Range{Field: "v", GTE: fptr(1), LTE: fptr(10)}, fields: Fields{"v": 5}, want: true},
		{name: "at lower bound", q: Range{Field: "v", GTE: fptr(1)}, fields: Fields{"v": 1}, want: true},
		{name: "below lower bound", q: Range{Field: "v", GTE: fptr(1)}, fields: Fields{"v": 0}, want: false},
		{name: "at upper bound", q: Range{Field: "v", LTE: fptr(10)}, fields: Fields{"v": 10}, want: true},
		{name: "above upper bound", q: Range{Field: "v", LTE: fptr(10)}, fields: Fields{"v": 11}, want: false},
		{name: "float value", q: Range{Field: "v", GTE: fptr(1.5)}, fields: Fields{"v": 1.75}, want: true},
		{name: "missing field", q: Range{Field: "v", GTE: fptr(1)}, fields: Fields{"w": 5}, want: false},
		{name: "non numeric field", q: Range{Field: "v", GTE: fptr(1)}, fields: Fields{"v": "nope"}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.q.Matches(tt.fields))
		})
	}
}

func TestSpecRoundTrip(t *testing.T) {
	queries := []Query{
		MatchAll{},
		Term{Field: "level", Value: "error"},
		Range{Field: "v", GTE: fptr(1), LTE: fptr(10)},
	}
	for _, q := range queries {
		spec, err := ToSpec(q)
		require.NoError(t, err)

		rebuilt, err := spec.Build()
		require.NoError(t, err)
		assert.Equal(t, q, rebuilt)
	}
}

func TestSpecEmptyKindIsMatchAll(t *testing.T) {
	q, err := Spec{}.Build()
	require.NoError(t, err)
	assert.Equal(t, MatchAll{}, q)
}

func TestSpecUnknownKind(t *testing.T) {
	_, err := Spec{Kind: "fuzzy"}.Build()
	require.Error(t, err)
}
