package handlers

import (
	"database/sql"
	"net/http"
	"strings"

	"github.com/vintage-exchange/marketnode/internal/market/marketdb"
)

var collectionDb marketdb.CollectionDb = marketdb.NewCollectionDb()

// CollectionsGetHandler serves /api/v1/collections and
// /api/v1/collections/{address}.
func CollectionsGetHandler(r *http.Request, db *sql.DB) (any, error) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")

	if len(parts) > 3 {
		collection, err := collectionDb.Get(db, parts[3])
		if err != nil {
			return nil, err
		}
		return *collection, nil
	}

	page, pageSize, _ := ExtractPagination(r)
	total, collections, err := collectionDb.GetAll(db, pageSize, page)
	if err != nil {
		return nil, err
	}

	resp := PaginatedResponse[marketdb.Collection]{
		Page:     page,
		PageSize: pageSize,
		Data:     collections,
	}
	resp.ReturnPaginatedData(r, total)
	return resp, nil
}
