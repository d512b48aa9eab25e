package marketdb

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/vintage-exchange/marketnode/internal/db"
)

type NFTDb interface {
	Upsert(txn *sql.Tx, nft *NFT) error
	MarkBurnt(txn *sql.Tx, mint string, updatedAt int64) error
	Get(rq db.QueryRunner, mint string) (*NFT, error)
	GetAll(rq db.QueryRunner, pageSize int, page int) (total int, nfts []*NFT, err error)
	GetByCollection(rq db.QueryRunner, collection string, pageSize int, page int) (total int, nfts []*NFT, err error)
	GetByOwner(rq db.QueryRunner, owner string, pageSize int, page int) (total int, nfts []*NFT, err error)
	// GetByMints loads the NFTs for the given mints, keyed by mint. Unknown
	// mints are simply absent from the result.
	GetByMints(rq db.QueryRunner, mints []string) (map[string]*NFT, error)
}

func NewNFTDb() NFTDb {
	return &NFTDbImpl{}
}

type NFTDbImpl struct{}

const allNftsQuery = `
	SELECT mint, collection, name, image_url, metadata_uri, owner, rarity, burnt, updated_at
	FROM nfts
`

func (n *NFTDbImpl) Upsert(txn *sql.Tx, nft *NFT) error {
	if nft.Rarity == "" {
		nft.Rarity = "none"
	}
	_, err := txn.Exec(`
		INSERT INTO nfts (mint, collection, name, image_url, metadata_uri, owner, rarity, burnt, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(mint)
		DO UPDATE SET
			collection = excluded.collection,
			name = excluded.name,
			image_url = excluded.image_url,
			metadata_uri = excluded.metadata_uri,
			owner = excluded.owner,
			rarity = excluded.rarity,
			burnt = excluded.burnt,
			updated_at = excluded.updated_at`,
		nft.Mint, nft.Collection, nft.Name, nft.ImageURL, nft.MetadataURI, nft.Owner, nft.Rarity, nft.Burnt, nft.UpdatedAt)
	return err
}

func (n *NFTDbImpl) MarkBurnt(txn *sql.Tx, mint string, updatedAt int64) error {
	res, err := txn.Exec("UPDATE nfts SET burnt = 1, updated_at = ? WHERE mint = ?", updatedAt, mint)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("cannot mark unknown NFT as burnt: %s", mint)
	}
	return nil
}

func (n *NFTDbImpl) Get(rq db.QueryRunner, mint string) (*NFT, error) {
	var nft NFT
	err := nft.ScanRow(rq.QueryRow(allNftsQuery+"WHERE mint = ?", mint))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("NFT not found: %s", mint)
	}
	return &nft, err
}

func (n *NFTDbImpl) GetByMints(rq db.QueryRunner, mints []string) (map[string]*NFT, error) {
	result := make(map[string]*NFT, len(mints))
	if len(mints) == 0 {
		return result, nil
	}

	const chunkSize = 500
	for start := 0; start < len(mints); start += chunkSize {
		end := start + chunkSize
		if end > len(mints) {
			end = len(mints)
		}
		chunk := mints[start:end]

		placeholders := strings.Repeat("?,", len(chunk))
		placeholders = placeholders[:len(placeholders)-1]
		params := make([]interface{}, len(chunk))
		for i, mint := range chunk {
			params[i] = mint
		}

		rows, err := rq.Query(allNftsQuery+"WHERE mint IN ("+placeholders+")", params...)
		if err != nil {
			return nil, err
		}
		nfts, err := db.ScanAll(rows, func() *NFT { return &NFT{} })
		if err != nil {
			rows.Close()
			return nil, err
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
		for _, nft := range nfts {
			result[nft.Mint] = nft
		}
	}
	return result, nil
}

func (n *NFTDbImpl) GetAll(rq db.QueryRunner, pageSize int, page int) (int, []*NFT, error) {
	return db.GetPaginatedResponseForQuery(
		"nfts",
		rq,
		allNftsQuery,
		db.QueryOptions{PageSize: pageSize, Page: page, Direction: db.QueryDirectionAsc},
		[]string{"mint"},
		nil,
		func() *NFT { return &NFT{} },
	)
}

func (n *NFTDbImpl) GetByCollection(rq db.QueryRunner, collection string, pageSize int, page int) (int, []*NFT, error) {
	return db.GetPaginatedResponseForQuery(
		"nfts",
		rq,
		allNftsQuery,
		db.QueryOptions{Where: "collection = ?", PageSize: pageSize, Page: page, Direction: db.QueryDirectionAsc},
		[]string{"mint"},
		[]interface{}{collection},
		func() *NFT { return &NFT{} },
	)
}

func (n *NFTDbImpl) GetByOwner(rq db.QueryRunner, owner string, pageSize int, page int) (int, []*NFT, error) {
	return db.GetPaginatedResponseForQuery(
		"nfts",
		rq,
		allNftsQuery,
		db.QueryOptions{Where: "owner = ?", PageSize: pageSize, Page: page, Direction: db.QueryDirectionAsc},
		[]string{"mint"},
		[]interface{}{owner},
		func() *NFT { return &NFT{} },
	)
}
