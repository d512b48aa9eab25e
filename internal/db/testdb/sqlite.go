package testdb

import (
	"database/sql"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vintage-exchange/marketnode/internal/db"
)

const testDBPath = "./db/sqlite/test/sqlite"

func SetupTestDB(t *testing.T) (*sql.DB, func()) {
	db, err := db.OpenSqlite(testDBPath)
	require.NoError(t, err)

	cleanup := func() {
		db.Close()
		os.RemoveAll("./db")
	}
	return db, cleanup
}
