// Package pitgo provides distributed point-in-time reader contexts for a
// partitioned search engine.
//
// A reader context is a lease over a frozen snapshot of one or more index
// partitions. Opening a context captures a snapshot on every node hosting a
// matched partition and returns one opaque, self-describing context ID;
// every later search carrying that ID sees exactly the data visible at open
// time, regardless of concurrent writes, deletes, or refreshes. Contexts are
// closed explicitly or reaped after their keepalive lapses.
//
// # Quick Start
//
//	state := cluster.NewState()
//	tp := transport.NewLocal()
//	// ... register nodes, create indices, provision partitions ...
//
//	coord, err := pitgo.New(state, tp)
//	if err != nil {
//	    panic(err)
//	}
//	defer coord.Shutdown()
//
//	id, err := coord.Open(ctx, pitgo.OpenRequest{
//	    Indices:   []string{"logs-*"},
//	    KeepAlive: 2 * time.Minute,
//	})
//
//	resp, err := coord.Search(ctx, pitgo.SearchRequest{
//	    ContextID: id,
//	    KeepAlive: 2 * time.Minute, // renew; omit to let the lease tick down
//	})
//
//	freed, err := coord.Close(ctx, id)
//
// # Consistency rules
//
// Snapshot content is frozen at open and never re-checked. Index existence
// is re-checked on every use: deleting an index referenced by a live context
// makes later searches on that context fail with IndexNotFoundError, even
// though the per-node entries are still reachable. Lease loss is softer and
// per-shard: an expired entry surfaces as a ShardFailure, and only a search
// in which every shard failed returns a SearchPhaseError.
//
// # Deployment modes
//
// The Transport boundary separates the coordinator from the nodes. In a
// single process, transport.Local wires them directly; across machines, each
// node runs an httprpc.Server (see cmd/pitnode) and the coordinator uses an
// httprpc.Client. Error identity is preserved either way.
package pitgo
