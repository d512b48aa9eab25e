package market

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
)

const (
	snapshotPrefix         = "market:snapshot:"
	snapshotBySellerPrefix = "market:snapshotBySeller:"
)

// ListingSnapshot is one source's last observation of a listing. Snapshots
// survive restarts so a source outage degrades to stale data instead of an
// empty market.
type ListingSnapshot struct {
	Mint            string `json:"mint"`
	Seller          string `json:"seller"`
	PriceLamports   uint64 `json:"price_lamports"`
	Source          string `json:"source"`
	AuctionHouse    string `json:"auction_house"`
	EscrowAccount   string `json:"escrow_account"`
	Sold            bool   `json:"sold"`
	PurchaseReceipt string `json:"purchase_receipt"`
	CanceledAt      *int64 `json:"canceled_at,omitempty"`
	CreatedAt       int64  `json:"created_at"`
	ObservedAt      int64  `json:"observed_at"`
}

type SnapshotDb interface {
	// ReplaceSource atomically swaps all snapshots held for a source with
	// the given set.
	ReplaceSource(source string, snapshots []*ListingSnapshot) error
	Get(source string, mint string) (*ListingSnapshot, bool, error)
	GetBySource(source string) ([]*ListingSnapshot, error)
	GetBySeller(seller string) ([]*ListingSnapshot, error)
}

func NewSnapshotDb(db *badger.DB) SnapshotDb {
	return &SnapshotDbImpl{db: db}
}

type SnapshotDbImpl struct {
	mu sync.RWMutex
	db *badger.DB
}

func snapshotKey(source string, mint string) []byte {
	return []byte(snapshotPrefix + source + ":" + mint)
}

func sellerKey(seller string, source string, mint string) []byte {
	return []byte(snapshotBySellerPrefix + seller + ":" + source + ":" + mint)
}

func (s *SnapshotDbImpl) ReplaceSource(source string, snapshots []*ListingSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Update(func(txn *badger.Txn) error {
		if err := s.deleteSourceLocked(txn, source); err != nil {
			return err
		}
		for _, snap := range snapshots {
			if snap.Source != source {
				return fmt.Errorf("snapshot for mint %s carries source %q, expected %q", snap.Mint, snap.Source, source)
			}
			val, err := json.Marshal(snap)
			if err != nil {
				return err
			}
			if err := txn.Set(snapshotKey(source, snap.Mint), val); err != nil {
				return err
			}
			if snap.Seller != "" {
				if err := txn.Set(sellerKey(snap.Seller, source, snap.Mint), snapshotKey(source, snap.Mint)); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// deleteSourceLocked removes a source's snapshots and their seller index
// entries inside an open transaction.
func (s *SnapshotDbImpl) deleteSourceLocked(txn *badger.Txn, source string) error {
	var keysToDelete [][]byte

	prefix := []byte(snapshotPrefix + source + ":")
	opts := badger.DefaultIteratorOptions
	it := txn.NewIterator(opts)
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		val, err := item.ValueCopy(nil)
		if err != nil {
			it.Close()
			return err
		}
		var snap ListingSnapshot
		if err := json.Unmarshal(val, &snap); err != nil {
			it.Close()
			return err
		}
		keysToDelete = append(keysToDelete, append([]byte(nil), item.Key()...))
		if snap.Seller != "" {
			keysToDelete = append(keysToDelete, sellerKey(snap.Seller, source, snap.Mint))
		}
	}
	it.Close()

	for _, k := range keysToDelete {
		if err := txn.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

func (s *SnapshotDbImpl) Get(source string, mint string) (*ListingSnapshot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var snap ListingSnapshot
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(snapshotKey(source, mint))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(val, &snap); err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil || !found {
		return nil, false, err
	}
	return &snap, true, nil
}

func (s *SnapshotDbImpl) GetBySource(source string) ([]*ListingSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var snapshots []*ListingSnapshot
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(snapshotPrefix + source + ":")
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var snap ListingSnapshot
			if err := json.Unmarshal(val, &snap); err != nil {
				return err
			}
			snapshots = append(snapshots, &snap)
		}
		return nil
	})
	return snapshots, err
}

func (s *SnapshotDbImpl) GetBySeller(seller string) ([]*ListingSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var snapshots []*ListingSnapshot
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(snapshotBySellerPrefix + seller + ":")
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		var primaryKeys [][]byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			primaryKeys = append(primaryKeys, val)
		}

		for _, key := range primaryKeys {
			item, err := txn.Get(key)
			if err == badger.ErrKeyNotFound {
				// Dangling index entry, the primary was replaced.
				continue
			}
			if err != nil {
				return err
			}
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			var snap ListingSnapshot
			if err := json.Unmarshal(val, &snap); err != nil {
				return err
			}
			snapshots = append(snapshots, &snap)
		}
		return nil
	})
	return snapshots, err
}
