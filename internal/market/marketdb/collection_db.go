package marketdb

import (
	"database/sql"
	"fmt"

	"github.com/vintage-exchange/marketnode/internal/db"
)

type CollectionDb interface {
	Upsert(txn *sql.Tx, collection *Collection) error
	Get(rq db.QueryRunner, address string) (*Collection, error)
	GetAll(rq db.QueryRunner, pageSize int, page int) (total int, collections []*Collection, err error)
}

func NewCollectionDb() CollectionDb {
	return &CollectionDbImpl{}
}

type CollectionDbImpl struct{}

const allCollectionsQuery = `
	SELECT address, name, symbol, source, updated_at
	FROM collections
`

func (c *CollectionDbImpl) Upsert(txn *sql.Tx, collection *Collection) error {
	_, err := txn.Exec(`
		INSERT INTO collections (address, name, symbol, source, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(address)
		DO UPDATE SET name = excluded.name, symbol = excluded.symbol, source = excluded.source, updated_at = excluded.updated_at`,
		collection.Address, collection.Name, collection.Symbol, collection.Source, collection.UpdatedAt)
	return err
}

func (c *CollectionDbImpl) Get(rq db.QueryRunner, address string) (*Collection, error) {
	var collection Collection
	err := collection.ScanRow(rq.QueryRow(allCollectionsQuery+"WHERE address = ?", address))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("collection not found: %s", address)
	}
	return &collection, err
}

func (c *CollectionDbImpl) GetAll(rq db.QueryRunner, pageSize int, page int) (int, []*Collection, error) {
	return db.GetPaginatedResponseForQuery(
		"collections",
		rq,
		allCollectionsQuery,
		db.QueryOptions{PageSize: pageSize, Page: page, Direction: db.QueryDirectionAsc},
		[]string{"address"},
		nil,
		func() *Collection { return &Collection{} },
	)
}
