package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/hupe1980/pitgo"
	"github.com/hupe1980/pitgo/cluster"
	"github.com/hupe1980/pitgo/node"
	"github.com/hupe1980/pitgo/query"
	"github.com/hupe1980/pitgo/storage"
	"github.com/hupe1980/pitgo/transport"
)

func main() {
	ctx := context.Background()

	state := cluster.NewState()
	tp := transport.NewLocal()

	n := node.New("node-1")
	defer n.Close()
	state.AddNode(n.ID())
	tp.Register(n)

	assignments, err := state.CreateIndex("logs", 2)
	if err != nil {
		log.Fatal(err)
	}
	for _, a := range assignments {
		if err := n.CreatePartition(a.Partition); err != nil {
			log.Fatal(err)
		}
	}
	for i := 0; i < 100; i++ {
		a := assignments[i%len(assignments)]
		if err := n.Index(a.Partition, storage.Doc{
			ID:     fmt.Sprintf("doc-%d", i),
			Fields: query.Fields{"n": i},
		}); err != nil {
			log.Fatal(err)
		}
	}
	for _, a := range assignments {
		if err := n.Refresh(a.Partition); err != nil {
			log.Fatal(err)
		}
	}

	coord, err := pitgo.New(state, tp)
	if err != nil {
		log.Fatal(err)
	}
	defer coord.Shutdown()

	id, err := coord.Open(ctx, pitgo.OpenRequest{
		Indices:   []string{"logs"},
		KeepAlive: 2 * time.Minute,
	})
	if err != nil {
		log.Fatal(err)
	}

	// Delete half the documents; the context keeps the open-time view.
	for i := 0; i < 50; i++ {
		a := assignments[i%len(assignments)]
		if err := n.DeleteDoc(a.Partition, fmt.Sprintf("doc-%d", i)); err != nil {
			log.Fatal(err)
		}
	}
	for _, a := range assignments {
		if err := n.Refresh(a.Partition); err != nil {
			log.Fatal(err)
		}
	}

	frozen, err := coord.Search(ctx, pitgo.SearchRequest{ContextID: id})
	if err != nil {
		log.Fatal(err)
	}
	live, err := coord.Search(ctx, pitgo.SearchRequest{Indices: []string{"logs"}})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("context sees %d docs, live search sees %d\n", frozen.TotalHits, live.TotalHits)

	if _, err := coord.Close(ctx, id); err != nil {
		log.Fatal(err)
	}
}
