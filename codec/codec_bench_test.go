package codec

import (
	"fmt"
	"testing"
)

// tokenPayload mirrors the shape of a context-ID body: a handful of entries,
// each with routing metadata and a list of partitions.
type tokenPayload struct {
	Entries []tokenEntry `json:"entries"`
}

type tokenEntry struct {
	Node  string       `json:"node"`
	Key   string       `json:"key"`
	Parts []tokenShard `json:"parts"`
}

type tokenShard struct {
	Index string `json:"index"`
	Shard int    `json:"shard"`
}

func benchPayload(nodes, shardsPerNode int) tokenPayload {
	var p tokenPayload
	for n := 0; n < nodes; n++ {
		e := tokenEntry{
			Node: fmt.Sprintf("7b9c2f4e-node-%d", n),
			Key:  fmt.Sprintf("a1d8e3c6-ctx-%d", n),
		}
		for s := 0; s < shardsPerNode; s++ {
			e.Parts = append(e.Parts, tokenShard{Index: "logs-2026.08", Shard: n*shardsPerNode + s})
		}
		p.Entries = append(p.Entries, e)
	}
	return p
}

func BenchmarkMarshal(b *testing.B) {
	payload := benchPayload(5, 4)
	for _, c := range []Codec{JSON{}, GoJSON{}} {
		b.Run(c.Name(), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := c.Marshal(payload); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkUnmarshal(b *testing.B) {
	payload := benchPayload(5, 4)
	for _, c := range []Codec{JSON{}, GoJSON{}} {
		body := MustMarshal(c, payload)
		b.Run(c.Name(), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				var out tokenPayload
				if err := c.Unmarshal(body, &out); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
