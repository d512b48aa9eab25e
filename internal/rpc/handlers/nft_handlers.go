package handlers

import (
	"database/sql"
	"net/http"
	"strings"

	"github.com/vintage-exchange/marketnode/internal/market/marketdb"
)

var nftDb marketdb.NFTDb = marketdb.NewNFTDb()

// NFTsGetHandler serves /api/v1/nfts, /api/v1/nfts/{mint} and
// /api/v1/nfts/owner/{owner}. A ?collection= filter narrows the list.
func NFTsGetHandler(r *http.Request, db *sql.DB) (any, error) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")

	if len(parts) > 4 && parts[3] == "owner" {
		return nftsListResponse(r, db, func(pageSize, page int) (int, []*marketdb.NFT, error) {
			return nftDb.GetByOwner(db, parts[4], pageSize, page)
		})
	}

	if len(parts) > 3 {
		nft, err := nftDb.Get(db, parts[3])
		if err != nil {
			return nil, err
		}
		return *nft, nil
	}

	if collection := r.URL.Query().Get("collection"); collection != "" {
		return nftsListResponse(r, db, func(pageSize, page int) (int, []*marketdb.NFT, error) {
			return nftDb.GetByCollection(db, collection, pageSize, page)
		})
	}

	return nftsListResponse(r, db, func(pageSize, page int) (int, []*marketdb.NFT, error) {
		return nftDb.GetAll(db, pageSize, page)
	})
}

func nftsListResponse(r *http.Request, db *sql.DB, query func(pageSize, page int) (int, []*marketdb.NFT, error)) (any, error) {
	page, pageSize, _ := ExtractPagination(r)
	total, nfts, err := query(pageSize, page)
	if err != nil {
		return nil, err
	}

	resp := PaginatedResponse[marketdb.NFT]{
		Page:     page,
		PageSize: pageSize,
		Data:     nfts,
	}
	resp.ReturnPaginatedData(r, total)
	return resp, nil
}
