package marketdb

import (
	"github.com/vintage-exchange/marketnode/internal/db"
)

// ListingState is the lifecycle state of a catalog listing.
type ListingState string

const (
	// ListingStateActive means at least one source currently reports the
	// listing as purchasable.
	ListingStateActive ListingState = "active"
	// ListingStatePendingSale means sale evidence exists but the on-chain
	// receipt still reports the listing as open.
	ListingStatePendingSale ListingState = "pending_sale"
	ListingStateSold        ListingState = "sold"
	ListingStateCancelled   ListingState = "cancelled"
	// ListingStateStale means the listing's seller no longer owns the NFT
	// and no sale evidence explains the transfer.
	ListingStateStale ListingState = "stale"
)

func (s ListingState) Valid() bool {
	switch s {
	case ListingStateActive, ListingStatePendingSale, ListingStateSold, ListingStateCancelled, ListingStateStale:
		return true
	}
	return false
}

// Listing sources, in the order a seller would think of them.
const (
	SourceAuctionHouse       = "auction_house"
	SourceCustomAuctionHouse = "custom_auction_house"
	SourceEscrow             = "escrow"
)

type Collection struct {
	Address   string `json:"address"`
	Name      string `json:"name"`
	Symbol    string `json:"symbol"`
	Source    string `json:"source"`
	UpdatedAt int64  `json:"updated_at"`
}

func (c *Collection) ScanRow(scanner db.RowScanner) error {
	return scanner.Scan(&c.Address, &c.Name, &c.Symbol, &c.Source, &c.UpdatedAt)
}

type NFT struct {
	Mint        string `json:"mint"`
	Collection  string `json:"collection"`
	Name        string `json:"name"`
	ImageURL    string `json:"image_url"`
	MetadataURI string `json:"metadata_uri"`
	Owner       string `json:"owner"`
	Rarity      string `json:"rarity"`
	Burnt       bool   `json:"burnt"`
	UpdatedAt   int64  `json:"updated_at"`
}

func (n *NFT) ScanRow(scanner db.RowScanner) error {
	return scanner.Scan(&n.Mint, &n.Collection, &n.Name, &n.ImageURL, &n.MetadataURI, &n.Owner, &n.Rarity, &n.Burnt, &n.UpdatedAt)
}

type Listing struct {
	Mint          string       `json:"mint"`
	Seller        string       `json:"seller"`
	PriceLamports uint64       `json:"price_lamports"`
	Source        string       `json:"source"`
	AuctionHouse  string       `json:"auction_house"`
	EscrowAccount string       `json:"escrow_account"`
	State         ListingState `json:"state"`
	ListedAt      int64        `json:"listed_at"`
	UpdatedAt     int64        `json:"updated_at"`
}

func (l *Listing) ScanRow(scanner db.RowScanner) error {
	return scanner.Scan(&l.Mint, &l.Seller, &l.PriceLamports, &l.Source, &l.AuctionHouse, &l.EscrowAccount, &l.State, &l.ListedAt, &l.UpdatedAt)
}

type Sale struct {
	ID            int64  `json:"id"`
	Mint          string `json:"mint"`
	Seller        string `json:"seller"`
	Buyer         string `json:"buyer"`
	PriceLamports uint64 `json:"price_lamports"`
	Signature     string `json:"signature"`
	OccurredAt    int64  `json:"occurred_at"`
	Source        string `json:"source"`
}

func (s *Sale) ScanRow(scanner db.RowScanner) error {
	return scanner.Scan(&s.ID, &s.Mint, &s.Seller, &s.Buyer, &s.PriceLamports, &s.Signature, &s.OccurredAt, &s.Source)
}
