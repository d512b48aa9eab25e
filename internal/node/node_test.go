package node_test

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vintage-exchange/marketnode/internal/node"
	"go.uber.org/zap"
)

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func TestNodeStartStop(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "db")

	logger, _ := zap.NewDevelopment()
	zap.ReplaceGlobals(logger)
	defer logger.Sync()

	cfg := node.NodeConfig{
		RPCPort: freePort(t),
		DBPath:  dbPath,
	}

	n := node.NewNode(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := n.Start(ctx); err != nil {
		t.Fatalf("failed to start node: %v", err)
	}

	// Check that the data directory was created
	if _, err := os.Stat(dbPath); err != nil {
		t.Errorf("expected DB path to be created, but got error: %v", err)
	}

	if err := n.Stop(); err != nil {
		t.Fatalf("failed to stop node: %v", err)
	}
}

func TestNodeStartTwice(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	zap.ReplaceGlobals(logger)
	defer logger.Sync()

	cfg := node.NodeConfig{
		RPCPort: freePort(t),
		DBPath:  t.TempDir(),
	}
	n := node.NewNode(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := n.Start(ctx); err != nil {
		t.Fatalf("failed to start node: %v", err)
	}
	defer n.Stop()

	if err := n.Start(ctx); err == nil {
		t.Errorf("expected error when starting already running node, but got nil")
	}
}

func TestNodeInvalidPort(t *testing.T) {
	n := node.NewNode(node.NodeConfig{RPCPort: 0, DBPath: t.TempDir()})
	if err := n.Start(context.Background()); err == nil {
		t.Errorf("expected error for invalid rpc port, but got nil")
	}
}

func TestNodeStopWithoutStart(t *testing.T) {
	n := node.NewNode(node.NodeConfig{RPCPort: freePort(t), DBPath: t.TempDir()})
	if err := n.Stop(); err == nil {
		t.Errorf("expected error when stopping a node that never started, but got nil")
	}
}
