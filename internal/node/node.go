package node

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/vintage-exchange/marketnode/internal/auction"
	"github.com/vintage-exchange/marketnode/internal/config"
	"github.com/vintage-exchange/marketnode/internal/das"
	"github.com/vintage-exchange/marketnode/internal/db"
	"github.com/vintage-exchange/marketnode/internal/escrow"
	"github.com/vintage-exchange/marketnode/internal/market"
	"github.com/vintage-exchange/marketnode/internal/registry"
	"github.com/vintage-exchange/marketnode/internal/rpc"
	"go.uber.org/zap"
)

// NodeConfig holds user-supplied settings from flags or env.
type NodeConfig struct {
	RPCPort int
	DBPath  string
}

// Node owns the market node's resources: the snapshot store, the catalog
// database, the source clients, the synchronizer and the RPC server.
type Node struct {
	mu      sync.Mutex
	cfg     NodeConfig
	running bool

	cancel   context.CancelFunc
	badgerDB *badger.DB
	sqlite   *sql.DB
	closeRPC func()
}

// NewNode constructs a new Node from a given NodeConfig.
func NewNode(cfg NodeConfig) *Node {
	return &Node{cfg: cfg}
}

// Start opens the databases, builds the source clients from the app
// configuration, starts the RPC server and kicks off market synchronization
// in the background. It returns once the RPC server is listening.
func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.running {
		return fmt.Errorf("node is already running")
	}

	if n.cfg.RPCPort <= 0 {
		return fmt.Errorf("invalid rpc port %d", n.cfg.RPCPort)
	}
	if err := os.MkdirAll(n.cfg.DBPath, 0o755); err != nil {
		return fmt.Errorf("cannot create dbPath %s: %v", n.cfg.DBPath, err)
	}

	runCtx, cancel := context.WithCancel(ctx)

	badgerDB, err := db.OpenBadger(filepath.Join(n.cfg.DBPath, "badger"))
	if err != nil {
		cancel()
		return err
	}

	sqlite, err := db.OpenSqlite(filepath.Join(n.cfg.DBPath, "sqlite", "sqlite"))
	if err != nil {
		cancel()
		badgerDB.Close()
		return err
	}

	appCfg := config.Get()
	dasClient := das.NewClient(appCfg.HeliusRpcUrl)
	auctionSource := auction.NewSource(appCfg.SolanaRpcUrl)
	escrowClient := escrow.NewClient(appCfg.EscrowBaseHost, appCfg.EscrowPortRangeStart, appCfg.EscrowPortRangeEnd)
	collectionRegistry := registry.NewSheetsRegistry(appCfg.CollectionRegistrySpreadsheetId, appCfg.SheetsApiKey)

	synchronizer := market.NewSynchronizer(runCtx, sqlite, badgerDB, dasClient, auctionSource, escrowClient, collectionRegistry)

	updatesChan := make(chan market.SyncUpdate, 1)
	go drainSyncUpdates(runCtx, updatesChan)
	go func() {
		if err := <-market.BlockUntilFirstSyncAsync(runCtx, synchronizer, updatesChan); err != nil {
			zap.L().Error("Market synchronizer stopped", zap.Error(err))
		}
	}()

	n.cancel = cancel
	n.badgerDB = badgerDB
	n.sqlite = sqlite
	n.closeRPC = rpc.StartRPCServer(n.cfg.RPCPort, runCtx, sqlite, escrowClient)
	n.running = true

	zap.L().Info("Node started successfully",
		zap.Int("rpcPort", n.cfg.RPCPort),
		zap.String("dbPath", n.cfg.DBPath),
	)
	return nil
}

// Stop gracefully stops the Node.
func (n *Node) Stop() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.running {
		return fmt.Errorf("node not running")
	}

	n.closeRPC()
	n.cancel()

	if err := n.badgerDB.Close(); err != nil {
		zap.L().Warn("Error closing BadgerDB", zap.Error(err))
	}
	if err := n.sqlite.Close(); err != nil {
		zap.L().Warn("Error closing SQLite", zap.Error(err))
	}

	n.running = false
	zap.L().Info("Node stopped.")
	return nil
}

func drainSyncUpdates(ctx context.Context, updatesChan <-chan market.SyncUpdate) {
	for {
		select {
		case <-ctx.Done():
			return
		case update := <-updatesChan:
			zap.L().Info("Sync round completed",
				zap.Int("collections", update.Collections),
				zap.Int("nfts", update.NFTs),
				zap.Int("listings", update.Listings),
				zap.Int("sales", update.Sales),
			)
		}
	}
}
