// Command pitnode runs one data-holding node and exposes its reader-context
// operations over HTTP.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hupe1980/pitgo/config"
	"github.com/hupe1980/pitgo/core"
	"github.com/hupe1980/pitgo/node"
	"github.com/hupe1980/pitgo/transport/httprpc"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			logger.Error("load config", "error", err)
			os.Exit(1)
		}
	}

	nodeID := core.NodeID(cfg.Node.NodeID)
	if nodeID == "" {
		nodeID = core.NewNodeID()
	}
	n := node.New(nodeID, func(o *node.Options) {
		o.Contexts = cfg.Contexts
		o.Storage = cfg.Storage
		o.Logger = logger
	})

	addr := fmt.Sprintf("%s:%d", cfg.HTTP.ListenAddress, cfg.HTTP.Port)
	srv := httprpc.NewServer(n, addr, func(o *httprpc.ServerOptions) {
		o.Logger = logger
	})
	if err := srv.Start(); err != nil {
		logger.Error("start server", "error", err)
		os.Exit(1)
	}
	logger.Info("node started", "node_id", string(n.ID()), "addr", addr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	if err := srv.Stop(); err != nil {
		logger.Error("stop server", "error", err)
	}
	if err := n.Close(); err != nil {
		logger.Error("close node", "error", err)
	}
}
