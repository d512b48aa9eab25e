package handlers

import (
	"database/sql"
	"net/http"
	"strings"

	"github.com/vintage-exchange/marketnode/internal/market/marketdb"
)

// SalesGetHandler serves /api/v1/sales and /api/v1/sales/{mint}, newest
// first.
func SalesGetHandler(r *http.Request, db *sql.DB) (any, error) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	page, pageSize, _ := ExtractPagination(r)

	var total int
	var sales []*marketdb.Sale
	var err error
	if len(parts) > 3 {
		total, sales, err = saleDb.GetByMint(db, parts[3], pageSize, page)
	} else {
		total, sales, err = saleDb.GetAll(db, pageSize, page)
	}
	if err != nil {
		return nil, err
	}

	resp := PaginatedResponse[marketdb.Sale]{
		Page:     page,
		PageSize: pageSize,
		Data:     sales,
	}
	resp.ReturnPaginatedData(r, total)
	return resp, nil
}
