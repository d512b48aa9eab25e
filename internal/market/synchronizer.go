package market

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/vintage-exchange/marketnode/internal/auction"
	"github.com/vintage-exchange/marketnode/internal/config"
	"github.com/vintage-exchange/marketnode/internal/das"
	"github.com/vintage-exchange/marketnode/internal/db"
	"github.com/vintage-exchange/marketnode/internal/escrow"
	"github.com/vintage-exchange/marketnode/internal/market/marketdb"
	"github.com/vintage-exchange/marketnode/internal/registry"
	"github.com/vintage-exchange/marketnode/pkg/backoff"
	"go.uber.org/zap"
)

// SyncUpdate summarizes one completed sync round.
type SyncUpdate struct {
	Collections int
	NFTs        int
	Listings    int
	Sales       int
}

type Synchronizer interface {
	// Sync runs rounds until the context is canceled. It signals
	// firstSyncChan exactly once, after the first completed round, and
	// pushes a SyncUpdate per round when updatesChan has room.
	Sync(updatesChan chan<- SyncUpdate, firstSyncChan chan<- bool) error
}

type DefaultSynchronizer struct {
	ctx           context.Context
	sqlDB         *sql.DB
	dasClient     das.Client
	auctionSource auction.Source
	escrowClient  escrow.Client
	registry      registry.Registry
	snapshots     SnapshotDb
	checkpoints   CheckpointDb
	collectionDb  marketdb.CollectionDb
	nftDb         marketdb.NFTDb
	listingDb     marketdb.ListingDb
	saleDb        marketdb.SaleDb

	interval           time.Duration
	maxPageSize        int
	auctionHouse       string
	customAuctionHouse string

	now func() int64
}

func NewSynchronizer(
	ctx context.Context,
	sqlDB *sql.DB,
	badgerDB *badger.DB,
	dasClient das.Client,
	auctionSource auction.Source,
	escrowClient escrow.Client,
	collectionRegistry registry.Registry,
) *DefaultSynchronizer {
	interval := config.Get().MarketSyncIntervalSeconds
	if interval == 0 {
		interval = 30
	}
	maxPageSize := config.Get().MarketSyncMaxPageSize
	if maxPageSize == 0 {
		maxPageSize = 1000
	}
	return &DefaultSynchronizer{
		ctx:                ctx,
		sqlDB:              sqlDB,
		dasClient:          dasClient,
		auctionSource:      auctionSource,
		escrowClient:       escrowClient,
		registry:           collectionRegistry,
		snapshots:          NewSnapshotDb(badgerDB),
		checkpoints:        NewCheckpointDb(badgerDB),
		collectionDb:       marketdb.NewCollectionDb(),
		nftDb:              marketdb.NewNFTDb(),
		listingDb:          marketdb.NewListingDb(),
		saleDb:             marketdb.NewSaleDb(),
		interval:           time.Duration(interval) * time.Second,
		maxPageSize:        maxPageSize,
		auctionHouse:       config.Get().AuctionHouseAddress,
		customAuctionHouse: config.Get().CustomAuctionHouseAddress,
		now:                func() int64 { return time.Now().Unix() },
	}
}

func (s *DefaultSynchronizer) Sync(updatesChan chan<- SyncUpdate, firstSyncChan chan<- bool) error {
	zap.L().Info("Starting market sync",
		zap.Duration("interval", s.interval),
		zap.Int("maxPageSize", s.maxPageSize),
	)

	firstSyncDone := false
	for {
		update, err := s.runRound()
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			zap.L().Warn("Sync round failed", zap.Error(err))
		} else {
			if !firstSyncDone {
				firstSyncDone = true
				firstSyncChan <- true
			}
			select {
			case updatesChan <- update:
			default:
			}
		}

		if backoff.SleepInterrupted(s.ctx, s.interval) {
			return nil
		}
	}
}

// runRound refreshes the registry, the asset index and the listing snapshots,
// then reconciles everything into the catalog. A single source failing
// degrades that source to its last snapshot instead of failing the round.
func (s *DefaultSynchronizer) runRound() (SyncUpdate, error) {
	var update SyncUpdate

	collections, err := s.syncRegistry()
	if err != nil {
		return update, err
	}
	update.Collections = len(collections)

	for _, collection := range collections {
		nfts, err := s.syncCollectionAssets(collection)
		if err != nil {
			if s.ctx.Err() != nil {
				return update, s.ctx.Err()
			}
			zap.L().Warn("Failed to sync collection assets",
				zap.String("collection", collection),
				zap.Error(err),
			)
			continue
		}
		update.NFTs += nfts
	}

	s.refreshAuctionSnapshots()
	s.refreshEscrowSnapshots()

	listings, sales, err := s.reconcileCatalog()
	if err != nil {
		return update, err
	}
	update.Listings = listings
	update.Sales = sales
	return update, nil
}

// syncRegistry pulls the collection registry and upserts its rows. When the
// registry is unreachable the collections already in the catalog keep the
// round going.
func (s *DefaultSynchronizer) syncRegistry() ([]string, error) {
	collections, err := s.registry.Collections(s.ctx)
	if err != nil {
		if s.ctx.Err() != nil {
			return nil, s.ctx.Err()
		}
		zap.L().Warn("Registry unreachable, keeping known collections", zap.Error(err))
		return s.knownCollections()
	}

	now := s.now()
	_, err = db.TxRunner(s.ctx, s.sqlDB, func(txn *sql.Tx) (struct{}, error) {
		for _, collection := range collections {
			err := s.collectionDb.Upsert(txn, &marketdb.Collection{
				Address:   collection.Address,
				Name:      collection.Name,
				Symbol:    collection.Symbol,
				Source:    "registry",
				UpdatedAt: now,
			})
			if err != nil {
				return struct{}{}, err
			}
		}
		return struct{}{}, nil
	})
	if err != nil {
		return nil, err
	}

	addresses := make([]string, len(collections))
	for i, collection := range collections {
		addresses[i] = collection.Address
	}
	return addresses, nil
}

func (s *DefaultSynchronizer) knownCollections() ([]string, error) {
	_, collections, err := s.collectionDb.GetAll(s.sqlDB, 10000, 1)
	if err != nil {
		return nil, err
	}
	addresses := make([]string, len(collections))
	for i, collection := range collections {
		addresses[i] = collection.Address
	}
	return addresses, nil
}

// syncCollectionAssets walks the DAS index for one collection, committing a
// page per transaction and advancing the checkpoint only after the commit, so
// a crash resumes at the last durable page.
func (s *DefaultSynchronizer) syncCollectionAssets(collection string) (int, error) {
	checkpoint, _ := s.checkpoints.Get(collection)
	if checkpoint.Page > 0 {
		return s.syncCollectionAssetsByPage(collection, checkpoint)
	}

	total := 0
	cursor := checkpoint.Cursor
	for {
		if err := s.ctx.Err(); err != nil {
			return total, err
		}
		assets, next, err := s.dasClient.SearchAssets(s.ctx, collection, cursor, s.maxPageSize)
		if err != nil {
			// Some DAS providers only support page pagination; fall back
			// and let the checkpoint remember which walk we are in.
			zap.L().Warn("Cursor pagination failed, falling back to pages",
				zap.String("collection", collection),
				zap.Error(err),
			)
			return s.syncCollectionAssetsByPage(collection, Checkpoint{Page: 1})
		}
		if len(assets) == 0 {
			break
		}

		if err := s.commitAssets(collection, assets); err != nil {
			return total, err
		}
		total += len(assets)

		if next == "" {
			break
		}
		cursor = next
		if err := s.checkpoints.Set(collection, Checkpoint{Cursor: cursor, UpdatedAt: s.now()}); err != nil {
			return total, err
		}
	}

	// The walk finished, the next round refreshes from the start.
	return total, s.checkpoints.Delete(collection)
}

func (s *DefaultSynchronizer) syncCollectionAssetsByPage(collection string, checkpoint Checkpoint) (int, error) {
	total := 0
	page := checkpoint.Page
	if page < 1 {
		page = 1
	}
	for {
		if err := s.ctx.Err(); err != nil {
			return total, err
		}
		assets, hasMore, err := s.dasClient.GetAssetsByGroup(s.ctx, collection, page, s.maxPageSize)
		if err != nil {
			return total, err
		}
		if len(assets) > 0 {
			if err := s.commitAssets(collection, assets); err != nil {
				return total, err
			}
			total += len(assets)
		}
		if !hasMore {
			break
		}
		page++
		if err := s.checkpoints.Set(collection, Checkpoint{Page: page, UpdatedAt: s.now()}); err != nil {
			return total, err
		}
	}
	return total, s.checkpoints.Delete(collection)
}

func (s *DefaultSynchronizer) commitAssets(collection string, assets []das.Asset) error {
	now := s.now()
	_, err := db.TxRunner(s.ctx, s.sqlDB, func(txn *sql.Tx) (struct{}, error) {
		for i := range assets {
			asset := &assets[i]
			if asset.Burnt {
				// DAS serves skeleton content for burnt assets; keep the
				// stored metadata and only flip the flag.
				if err := s.nftDb.MarkBurnt(txn, asset.ID, now); err == nil {
					continue
				}
			}
			if err := s.nftDb.Upsert(txn, assetToNFT(asset, collection, now)); err != nil {
				return struct{}{}, err
			}
		}
		return struct{}{}, nil
	})
	return err
}

func assetToNFT(asset *das.Asset, collection string, now int64) *marketdb.NFT {
	return &marketdb.NFT{
		Mint:        asset.ID,
		Collection:  collection,
		Name:        asset.Content.Metadata.Name,
		ImageURL:    asset.Content.Links.Image,
		MetadataURI: asset.Content.JsonUri,
		Owner:       asset.Ownership.Owner,
		Rarity:      asset.Rarity(),
		Burnt:       asset.Burnt,
		UpdatedAt:   now,
	}
}

// refreshAuctionSnapshots reads both auction houses. A failed read keeps the
// previous snapshots for that source.
func (s *DefaultSynchronizer) refreshAuctionSnapshots() {
	houses := []struct {
		address string
		source  string
	}{
		{s.auctionHouse, marketdb.SourceAuctionHouse},
		{s.customAuctionHouse, marketdb.SourceCustomAuctionHouse},
	}
	for _, house := range houses {
		if house.address == "" {
			continue
		}
		listings, err := s.auctionSource.Listings(s.ctx, house.address)
		if err != nil {
			zap.L().Warn("Auction house unreachable, keeping last snapshots",
				zap.String("auctionHouse", house.address),
				zap.Error(err),
			)
			continue
		}
		snapshots := make([]*ListingSnapshot, 0, len(listings))
		now := s.now()
		for i := range listings {
			listing := &listings[i]
			snapshots = append(snapshots, &ListingSnapshot{
				Mint:            listing.Mint,
				Seller:          listing.Seller,
				PriceLamports:   listing.PriceLamports,
				Source:          house.source,
				AuctionHouse:    listing.AuctionHouse,
				Sold:            listing.Sold(),
				PurchaseReceipt: listing.PurchaseReceipt,
				CanceledAt:      listing.CanceledAt,
				CreatedAt:       listing.CreatedAt,
				ObservedAt:      now,
			})
		}
		if err := s.snapshots.ReplaceSource(house.source, snapshots); err != nil {
			zap.L().Error("Failed to store auction snapshots", zap.Error(err))
		}
	}
}

func (s *DefaultSynchronizer) refreshEscrowSnapshots() {
	listings, err := s.escrowClient.Listings(s.ctx)
	if err != nil {
		if errors.Is(err, escrow.ErrNoEscrowServer) {
			zap.L().Warn("No escrow server found, keeping last snapshots")
		} else {
			zap.L().Warn("Escrow server unreachable, keeping last snapshots", zap.Error(err))
		}
		return
	}

	snapshots := make([]*ListingSnapshot, 0, len(listings))
	now := s.now()
	for i := range listings {
		listing := &listings[i]
		snapshots = append(snapshots, &ListingSnapshot{
			Mint:          listing.Mint,
			Seller:        listing.Seller,
			PriceLamports: listing.PriceLamports,
			Source:        marketdb.SourceEscrow,
			EscrowAccount: listing.EscrowAccount,
			Sold:          listing.State == escrow.StateSold,
			CreatedAt:     listing.ListedAt,
			ObservedAt:    now,
		})
	}
	if err := s.snapshots.ReplaceSource(marketdb.SourceEscrow, snapshots); err != nil {
		zap.L().Error("Failed to store escrow snapshots", zap.Error(err))
	}
}

// reconcileCatalog folds the current snapshots and the open catalog rows into
// canonical listing states and commits the result in one transaction.
func (s *DefaultSynchronizer) reconcileCatalog() (listings int, sales int, err error) {
	var snapshots []*ListingSnapshot
	for _, source := range []string{marketdb.SourceAuctionHouse, marketdb.SourceCustomAuctionHouse, marketdb.SourceEscrow} {
		snaps, err := s.snapshots.GetBySource(source)
		if err != nil {
			return 0, 0, err
		}
		snapshots = append(snapshots, snaps...)
	}

	prior, err := s.listingDb.GetOpen(s.sqlDB)
	if err != nil {
		return 0, 0, err
	}

	mints := make([]string, 0, len(snapshots)+len(prior))
	for _, snap := range snapshots {
		mints = append(mints, snap.Mint)
	}
	for _, listing := range prior {
		mints = append(mints, listing.Mint)
	}
	nfts, err := s.nftDb.GetByMints(s.sqlDB, mints)
	if err != nil {
		return 0, 0, err
	}
	s.spotFetchAssets(mints, nfts)
	assets := make(map[string]AssetFact, len(nfts))
	for mint, nft := range nfts {
		if nft == nil {
			continue
		}
		assets[mint] = AssetFact{Owner: nft.Owner, Burnt: nft.Burnt}
	}

	outcome := Reconcile(ReconcileInput{
		Now:       s.now(),
		Assets:    assets,
		Snapshots: snapshots,
		Prior:     prior,
	})

	_, err = db.TxRunner(s.ctx, s.sqlDB, func(txn *sql.Tx) (struct{}, error) {
		for _, listing := range outcome.Listings {
			if err := s.listingDb.Upsert(txn, listing); err != nil {
				return struct{}{}, err
			}
		}
		for _, sale := range outcome.Sales {
			if err := s.saleDb.Insert(txn, sale); err != nil {
				return struct{}{}, err
			}
		}
		return struct{}{}, nil
	})
	if err != nil {
		return 0, 0, err
	}
	return len(outcome.Listings), len(outcome.Sales), nil
}

// spotFetchAssets indexes mints that appear in listing snapshots before any
// collection walk reached them, so reconciliation has an ownership fact for
// them. Fetched rows are added to known.
func (s *DefaultSynchronizer) spotFetchAssets(mints []string, known map[string]*marketdb.NFT) {
	for _, mint := range mints {
		if _, ok := known[mint]; ok {
			continue
		}
		asset, err := s.dasClient.GetAsset(s.ctx, mint)
		if err != nil {
			if !errors.Is(err, das.ErrAssetNotFound) {
				zap.L().Warn("Failed to spot fetch asset", zap.String("mint", mint), zap.Error(err))
			}
			// No ownership fact; the reconciler treats the mint as unknown.
			known[mint] = nil
			continue
		}
		nft := assetToNFT(asset, asset.Collection(), s.now())
		_, err = db.TxRunner(s.ctx, s.sqlDB, func(txn *sql.Tx) (struct{}, error) {
			return struct{}{}, s.nftDb.Upsert(txn, nft)
		})
		if err != nil {
			zap.L().Warn("Failed to index spot fetched asset", zap.String("mint", mint), zap.Error(err))
			continue
		}
		known[mint] = nft
	}
}

// BlockUntilFirstSyncAsync starts the synchronizer in the background and
// blocks until the catalog has completed its first round, the context is
// canceled, or the synchronizer stops. The returned channel carries the
// synchronizer's terminal error.
func BlockUntilFirstSyncAsync(ctx context.Context, synchronizer Synchronizer, updatesChan chan<- SyncUpdate) <-chan error {
	errChan := make(chan error, 1)
	firstSyncChan := make(chan bool, 1)

	go func() {
		errChan <- synchronizer.Sync(updatesChan, firstSyncChan)
	}()

	select {
	case <-firstSyncChan:
		zap.L().Info("First market sync completed")
	case <-ctx.Done():
	}
	return errChan
}
