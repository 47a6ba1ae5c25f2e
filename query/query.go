// Package query defines the minimal query model executed against frozen
// partition snapshots.
//
// Query planning and relevance scoring live outside this module; the types
// here exist so the reader-context machinery has something concrete to run
// against a snapshot and to ship across the transport boundary.
package query

// Fields holds the source fields of one document.
type Fields map[string]any

// Query selects documents from a snapshot.
// Implementations must be stateless and safe for concurrent use.
type Query interface {
	Matches(f Fields) bool
}

// MatchAll matches every live document.
type MatchAll struct{}

// Matches implements Query.
func (MatchAll) Matches(Fields) bool { return true }

// Term matches documents whose field equals the given value.
type Term struct {
	Field string
	Value any
}

// Matches implements Query.
func (t Term) Matches(f Fields) bool {
	v, ok := f[t.Field]
	if !ok {
		return false
	}
	if fv, ok := toFloat(v); ok {
		if tv, ok := toFloat(t.Value); ok {
			return fv == tv
		}
		return false
	}
	return v == t.Value
}

// Range matches documents whose numeric field lies within [GTE, LTE].
// Nil bounds are open.
type Range struct {
	Field string
	GTE   *float64
	LTE   *float64
}

// Matches implements Query.
func (r Range) Matches(f Fields) bool {
	v, ok := f[r.Field]
	if !ok {
		return false
	}
	fv, ok := toFloat(v)
	if !ok {
		return false
	}
	if r.GTE != nil && fv < *r.GTE {
		return false
	}
	if r.LTE != nil && fv > *r.LTE {
		return false
	}
	return true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
