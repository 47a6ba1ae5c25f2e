package query

import "fmt"

// Spec is the wire form of a Query.
//
// The transport ships Specs, not Query values, so the query model can evolve
// without breaking node-to-node compatibility: an unknown kind is rejected at
// decode time instead of silently matching nothing.
type Spec struct {
	Kind  string   `json:"kind"`
	Field string   `json:"field,omitempty"`
	Value any      `json:"value,omitempty"`
	GTE   *float64 `json:"gte,omitempty"`
	LTE   *float64 `json:"lte,omitempty"`
}

// Kinds understood by Spec.
const (
	KindMatchAll = "match_all"
	KindTerm     = "term"
	KindRange    = "range"
)

// ToSpec converts a Query into its wire form.
func ToSpec(q Query) (Spec, error) {
	switch t := q.(type) {
	case MatchAll:
		return Spec{Kind: KindMatchAll}, nil
	case Term:
		return Spec{Kind: KindTerm, Field: t.Field, Value: t.Value}, nil
	case Range:
		return Spec{Kind: KindRange, Field: t.Field, GTE: t.GTE, LTE: t.LTE}, nil
	default:
		return Spec{}, fmt.Errorf("query: unsupported query type %T", q)
	}
}

// Build converts the wire form back into an executable Query.
func (s Spec) Build() (Query, error) {
	switch s.Kind {
	case KindMatchAll, "":
		return MatchAll{}, nil
	case KindTerm:
		return Term{Field: s.Field, Value: s.Value}, nil
	case KindRange:
		return Range{Field: s.Field, GTE: s.GTE, LTE: s.LTE}, nil
	default:
		return nil, fmt.Errorf("query: unknown query kind %q", s.Kind)
	}
}
