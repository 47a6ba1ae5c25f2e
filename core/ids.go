package core

import (
	"fmt"

	"github.com/google/uuid"
)

// NodeID identifies a data-holding node in the cluster.
//
// Node IDs are stable for the lifetime of a node process and are embedded in
// context IDs for direct addressing, so a coordinator can reach every
// participant without a discovery round trip.
type NodeID string

// NewNodeID returns a fresh random node identity.
func NewNodeID() NodeID {
	return NodeID(uuid.NewString())
}

// PartitionID identifies one shard of one index.
type PartitionID struct {
	Index string `json:"index"`
	Shard int    `json:"shard"`
}

func (p PartitionID) String() string {
	return fmt.Sprintf("%s[%d]", p.Index, p.Shard)
}

// ContextKey is a node-local identifier for one reader-context entry.
// It is unique per node and never reused after the entry is removed.
type ContextKey string

// NewContextKey returns a fresh random context key.
func NewContextKey() ContextKey {
	return ContextKey(uuid.NewString())
}
