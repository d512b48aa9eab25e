package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/vintage-exchange/marketnode/internal/config"
	"github.com/vintage-exchange/marketnode/internal/node"
	"go.uber.org/zap"
)

var Version = "dev" // Overridden by release build script

var (
	rpcPortFlag = flag.Int("rpcPort", 0, "RPC port (overrides RPC_PORT)")
	dbPathFlag  = flag.String("dbPath", "./db", "data directory")
)

func initLogger() {
	logger := zap.Must(zap.NewProduction())
	if config.Get().LogZapMode == "development" {
		logger = zap.Must(zap.NewDevelopment())
	}
	zap.ReplaceGlobals(logger)
}

func main() {
	flag.Parse()
	initLogger()

	zap.L().Info("Starting vintage-exchange/marketnode...",
		zap.String("Version", Version))

	// Main context: canceled when we want to stop normal operation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rpcPort := *rpcPortFlag
	if rpcPort == 0 {
		rpcPort = config.Get().RPCPort
	}
	if rpcPort == 0 {
		rpcPort = 8080
	}

	n := node.NewNode(node.NodeConfig{
		RPCPort: rpcPort,
		DBPath:  *dbPathFlag,
	})
	if err := n.Start(ctx); err != nil {
		zap.L().Fatal("Failed to start node", zap.Error(err))
	}

	// Catch up to two signals: first for graceful, second to force
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	doneCh := make(chan struct{})

	go func() {
		<-sigCh
		zap.L().Info("Received shutdown signal, initiating graceful shutdown...")

		if err := n.Stop(); err != nil {
			zap.L().Warn("Error stopping node", zap.Error(err))
		}
		cancel()
		close(doneCh)

		// If a second signal arrives, force an immediate exit
		<-sigCh
		zap.L().Error("Received second signal, forcing shutdown")
		os.Exit(1)
	}()

	// Wait for either normal context cancellation or graceful shutdown completion
	select {
	case <-ctx.Done():
	case <-doneCh:
	}

	zap.L().Info("Shutdown complete")
	_ = zap.L().Sync()
}
