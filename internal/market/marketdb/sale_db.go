package marketdb

import (
	"database/sql"

	"github.com/vintage-exchange/marketnode/internal/db"
)

type SaleDb interface {
	// Insert records a sale, silently ignoring a duplicate of the same
	// mint and signature.
	Insert(txn *sql.Tx, sale *Sale) error
	GetAll(rq db.QueryRunner, pageSize int, page int) (total int, sales []*Sale, err error)
	GetByMint(rq db.QueryRunner, mint string, pageSize int, page int) (total int, sales []*Sale, err error)
}

func NewSaleDb() SaleDb {
	return &SaleDbImpl{}
}

type SaleDbImpl struct{}

const allSalesQuery = `
	SELECT id, mint, seller, buyer, price_lamports, signature, occurred_at, source
	FROM sales
`

func (s *SaleDbImpl) Insert(txn *sql.Tx, sale *Sale) error {
	_, err := txn.Exec(`
		INSERT INTO sales (mint, seller, buyer, price_lamports, signature, occurred_at, source)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(mint, signature) DO NOTHING`,
		sale.Mint, sale.Seller, sale.Buyer, sale.PriceLamports, sale.Signature, sale.OccurredAt, sale.Source)
	return err
}

func (s *SaleDbImpl) GetAll(rq db.QueryRunner, pageSize int, page int) (int, []*Sale, error) {
	return db.GetPaginatedResponseForQuery(
		"sales",
		rq,
		allSalesQuery,
		db.QueryOptions{PageSize: pageSize, Page: page, Direction: db.QueryDirectionDesc},
		[]string{"occurred_at", "id"},
		nil,
		func() *Sale { return &Sale{} },
	)
}

func (s *SaleDbImpl) GetByMint(rq db.QueryRunner, mint string, pageSize int, page int) (int, []*Sale, error) {
	return db.GetPaginatedResponseForQuery(
		"sales",
		rq,
		allSalesQuery,
		db.QueryOptions{Where: "mint = ?", PageSize: pageSize, Page: page, Direction: db.QueryDirectionDesc},
		[]string{"occurred_at", "id"},
		[]interface{}{mint},
		func() *Sale { return &Sale{} },
	)
}
