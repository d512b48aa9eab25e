package marketdb

import (
	"database/sql"
	"fmt"

	"github.com/vintage-exchange/marketnode/internal/db"
)

type ListingDb interface {
	Upsert(txn *sql.Tx, listing *Listing) error
	SetState(txn *sql.Tx, mint string, state ListingState, updatedAt int64) error
	Get(rq db.QueryRunner, mint string) (*Listing, error)
	GetAll(rq db.QueryRunner, state ListingState, pageSize int, page int) (total int, listings []*Listing, err error)
	GetBySeller(rq db.QueryRunner, seller string, pageSize int, page int) (total int, listings []*Listing, err error)
	// GetForCollection loads every listing whose NFT belongs to the
	// collection, unpaginated, for reconciliation.
	GetForCollection(rq db.QueryRunner, collection string) ([]*Listing, error)
	// GetOpen loads every listing that can still change state.
	GetOpen(rq db.QueryRunner) ([]*Listing, error)
}

func NewListingDb() ListingDb {
	return &ListingDbImpl{}
}

type ListingDbImpl struct{}

const allListingsQuery = `
	SELECT mint, seller, price_lamports, source, auction_house, escrow_account, state, listed_at, updated_at
	FROM listings
`

func (l *ListingDbImpl) Upsert(txn *sql.Tx, listing *Listing) error {
	if !listing.State.Valid() {
		return fmt.Errorf("invalid listing state: %s", listing.State)
	}
	_, err := txn.Exec(`
		INSERT INTO listings (mint, seller, price_lamports, source, auction_house, escrow_account, state, listed_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(mint)
		DO UPDATE SET
			seller = excluded.seller,
			price_lamports = excluded.price_lamports,
			source = excluded.source,
			auction_house = excluded.auction_house,
			escrow_account = excluded.escrow_account,
			state = excluded.state,
			listed_at = excluded.listed_at,
			updated_at = excluded.updated_at`,
		listing.Mint, listing.Seller, listing.PriceLamports, listing.Source, listing.AuctionHouse,
		listing.EscrowAccount, listing.State, listing.ListedAt, listing.UpdatedAt)
	return err
}

func (l *ListingDbImpl) SetState(txn *sql.Tx, mint string, state ListingState, updatedAt int64) error {
	if !state.Valid() {
		return fmt.Errorf("invalid listing state: %s", state)
	}
	res, err := txn.Exec("UPDATE listings SET state = ?, updated_at = ? WHERE mint = ?", state, updatedAt, mint)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("cannot set state on unknown listing: %s", mint)
	}
	return nil
}

func (l *ListingDbImpl) Get(rq db.QueryRunner, mint string) (*Listing, error) {
	var listing Listing
	err := listing.ScanRow(rq.QueryRow(allListingsQuery+"WHERE mint = ?", mint))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("listing not found: %s", mint)
	}
	return &listing, err
}

func (l *ListingDbImpl) GetAll(rq db.QueryRunner, state ListingState, pageSize int, page int) (int, []*Listing, error) {
	options := db.QueryOptions{PageSize: pageSize, Page: page, Direction: db.QueryDirectionAsc}
	var params []interface{}
	if state != "" {
		options.Where = "state = ?"
		params = append(params, state)
	}
	return db.GetPaginatedResponseForQuery(
		"listings",
		rq,
		allListingsQuery,
		options,
		[]string{"mint"},
		params,
		func() *Listing { return &Listing{} },
	)
}

func (l *ListingDbImpl) GetBySeller(rq db.QueryRunner, seller string, pageSize int, page int) (int, []*Listing, error) {
	return db.GetPaginatedResponseForQuery(
		"listings",
		rq,
		allListingsQuery,
		db.QueryOptions{Where: "seller = ?", PageSize: pageSize, Page: page, Direction: db.QueryDirectionAsc},
		[]string{"mint"},
		[]interface{}{seller},
		func() *Listing { return &Listing{} },
	)
}

func (l *ListingDbImpl) GetOpen(rq db.QueryRunner) ([]*Listing, error) {
	rows, err := rq.Query(allListingsQuery+"WHERE state IN (?, ?, ?) ORDER BY mint ASC",
		ListingStateActive, ListingStatePendingSale, ListingStateStale)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	listings, err := db.ScanAll(rows, func() *Listing { return &Listing{} })
	if err != nil {
		return nil, err
	}
	return listings, rows.Err()
}

func (l *ListingDbImpl) GetForCollection(rq db.QueryRunner, collection string) ([]*Listing, error) {
	rows, err := rq.Query(`
		SELECT l.mint, l.seller, l.price_lamports, l.source, l.auction_house, l.escrow_account, l.state, l.listed_at, l.updated_at
		FROM listings l
		JOIN nfts n ON n.mint = l.mint
		WHERE n.collection = ?
		ORDER BY l.mint ASC`, collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	listings, err := db.ScanAll(rows, func() *Listing { return &Listing{} })
	if err != nil {
		return nil, err
	}
	return listings, rows.Err()
}
