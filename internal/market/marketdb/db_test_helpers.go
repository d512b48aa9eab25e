package marketdb

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vintage-exchange/marketnode/internal/db/testdb"
)

// setupMarketTestDB opens a fresh catalog database with the schema migrated.
func setupMarketTestDB(t *testing.T) (*sql.DB, func()) {
	t.Helper()
	return testdb.SetupTestDB(t)
}

// inTx runs fn in a transaction and commits it.
func inTx(t *testing.T, sqlDB *sql.DB, fn func(txn *sql.Tx)) {
	t.Helper()
	txn, err := sqlDB.Begin()
	require.NoError(t, err)
	fn(txn)
	require.NoError(t, txn.Commit())
}
