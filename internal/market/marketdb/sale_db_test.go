package marketdb

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaleDb_Insert(t *testing.T) {
	sqlDB, cleanup := setupMarketTestDB(t)
	defer cleanup()
	saleDb := NewSaleDb()

	sale := &Sale{
		Mint:          "MintA",
		Seller:        "SellerA",
		Buyer:         "BuyerA",
		PriceLamports: 3_000_000_000,
		Signature:     "sig1",
		OccurredAt:    100,
		Source:        SourceAuctionHouse,
	}

	inTx(t, sqlDB, func(txn *sql.Tx) {
		require.NoError(t, saleDb.Insert(txn, sale))
		// Same mint and signature again is a no-op.
		require.NoError(t, saleDb.Insert(txn, sale))
	})

	total, sales, err := saleDb.GetAll(sqlDB, 10, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, sales, 1)
	assert.Equal(t, "BuyerA", sales[0].Buyer)
	assert.Equal(t, uint64(3_000_000_000), sales[0].PriceLamports)
}

func TestSaleDb_Queries(t *testing.T) {
	sqlDB, cleanup := setupMarketTestDB(t)
	defer cleanup()
	saleDb := NewSaleDb()

	inTx(t, sqlDB, func(txn *sql.Tx) {
		for _, s := range []Sale{
			{Mint: "MintA", Signature: "sig1", OccurredAt: 100},
			{Mint: "MintA", Signature: "sig2", OccurredAt: 300},
			{Mint: "MintB", Signature: "sig3", OccurredAt: 200},
		} {
			s := s
			require.NoError(t, saleDb.Insert(txn, &s))
		}
	})

	t.Run("all ordered newest first", func(t *testing.T) {
		total, sales, err := saleDb.GetAll(sqlDB, 10, 1)
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		require.Len(t, sales, 3)
		assert.Equal(t, "sig2", sales[0].Signature)
		assert.Equal(t, "sig3", sales[1].Signature)
		assert.Equal(t, "sig1", sales[2].Signature)
	})

	t.Run("by mint", func(t *testing.T) {
		total, sales, err := saleDb.GetByMint(sqlDB, "MintA", 10, 1)
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		require.Len(t, sales, 2)
		assert.Equal(t, "sig2", sales[0].Signature)
	})
}
