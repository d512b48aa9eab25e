package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	dbpkg "github.com/vintage-exchange/marketnode/internal/db"
	"github.com/vintage-exchange/marketnode/internal/escrow"
	"github.com/vintage-exchange/marketnode/internal/market/marketdb"
	"github.com/vintage-exchange/marketnode/pkg/solana"
)

var listingDb marketdb.ListingDb = marketdb.NewListingDb()
var saleDb marketdb.SaleDb = marketdb.NewSaleDb()

// ListingsGetHandler serves /api/v1/listings, /api/v1/listings/{mint} and
// /api/v1/listings/seller/{seller}. The list defaults to active listings;
// ?state= selects another state and ?state=all lifts the filter.
func ListingsGetHandler(r *http.Request, db *sql.DB) (any, error) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")

	if len(parts) > 4 && parts[3] == "seller" {
		return listingsListResponse(r, func(pageSize, page int) (int, []*marketdb.Listing, error) {
			return listingDb.GetBySeller(db, parts[4], pageSize, page)
		})
	}

	if len(parts) > 3 {
		listing, err := listingDb.Get(db, parts[3])
		if err != nil {
			return nil, err
		}
		return *listing, nil
	}

	state := marketdb.ListingStateActive
	switch param := r.URL.Query().Get("state"); param {
	case "":
	case "all":
		state = ""
	default:
		state = marketdb.ListingState(param)
		if !state.Valid() {
			return nil, fmt.Errorf("unknown listing state: %s", param)
		}
	}
	return listingsListResponse(r, func(pageSize, page int) (int, []*marketdb.Listing, error) {
		return listingDb.GetAll(db, state, pageSize, page)
	})
}

func listingsListResponse(r *http.Request, query func(pageSize, page int) (int, []*marketdb.Listing, error)) (any, error) {
	page, pageSize, _ := ExtractPagination(r)
	total, listings, err := query(pageSize, page)
	if err != nil {
		return nil, err
	}

	resp := PaginatedResponse[marketdb.Listing]{
		Page:     page,
		PageSize: pageSize,
		Data:     listings,
	}
	resp.ReturnPaginatedData(r, total)
	return resp, nil
}

type CreateListingRequest struct {
	Mint          string `json:"mint"`
	Seller        string `json:"seller"`
	PriceLamports uint64 `json:"price_lamports"`
}

// ListingCreateHandler proxies a new listing to the escrow server and writes
// the listing into the catalog optimistically. The next sync round confirms
// or corrects it.
func ListingCreateHandler(r *http.Request, db *sql.DB, escrowClient escrow.Client) (any, error) {
	var req CreateListingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, fmt.Errorf("invalid request body: %w", err)
	}
	if !solana.IsValidAddress(req.Mint) {
		return nil, fmt.Errorf("invalid mint address: %s", req.Mint)
	}
	if !solana.IsValidAddress(req.Seller) {
		return nil, fmt.Errorf("invalid seller address: %s", req.Seller)
	}
	if req.PriceLamports == 0 {
		return nil, errors.New("price must be greater than zero")
	}

	escrowResp, err := escrowClient.List(r.Context(), escrow.ListRequest{
		Mint:          req.Mint,
		Seller:        req.Seller,
		PriceLamports: req.PriceLamports,
	})
	if err != nil {
		return nil, err
	}

	now := time.Now().Unix()
	listing := &marketdb.Listing{
		Mint:          req.Mint,
		Seller:        req.Seller,
		PriceLamports: req.PriceLamports,
		Source:        marketdb.SourceEscrow,
		EscrowAccount: escrowResp.EscrowAccount,
		State:         marketdb.ListingStateActive,
		ListedAt:      now,
		UpdatedAt:     now,
	}
	_, err = dbpkg.TxRunner(r.Context(), db, func(txn *sql.Tx) (struct{}, error) {
		return struct{}{}, listingDb.Upsert(txn, listing)
	})
	if err != nil {
		return nil, err
	}
	return *listing, nil
}

// ListingDeleteHandler proxies a delisting for /api/v1/listings/{mint} to the
// escrow server and cancels the catalog row.
func ListingDeleteHandler(r *http.Request, db *sql.DB, escrowClient escrow.Client) (any, error) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) < 4 {
		return nil, errors.New("mint is required")
	}
	mint := parts[3]

	listing, err := listingDb.Get(db, mint)
	if err != nil {
		return nil, err
	}

	signature, err := escrowClient.Unlist(r.Context(), escrow.UnlistRequest{
		Mint:   mint,
		Seller: listing.Seller,
	})
	if err != nil {
		return nil, err
	}

	_, err = dbpkg.TxRunner(r.Context(), db, func(txn *sql.Tx) (struct{}, error) {
		return struct{}{}, listingDb.SetState(txn, mint, marketdb.ListingStateCancelled, time.Now().Unix())
	})
	if err != nil {
		return nil, err
	}
	return map[string]string{"mint": mint, "signature": signature}, nil
}

type PurchaseListingRequest struct {
	Mint  string `json:"mint"`
	Buyer string `json:"buyer"`
}

// PurchaseCreateHandler proxies a purchase to the escrow server, records the
// sale and moves the listing to pending_sale until the next sync round
// confirms the receipt settled.
func PurchaseCreateHandler(r *http.Request, db *sql.DB, escrowClient escrow.Client) (any, error) {
	var req PurchaseListingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, fmt.Errorf("invalid request body: %w", err)
	}
	if !solana.IsValidAddress(req.Mint) {
		return nil, fmt.Errorf("invalid mint address: %s", req.Mint)
	}
	if !solana.IsValidAddress(req.Buyer) {
		return nil, fmt.Errorf("invalid buyer address: %s", req.Buyer)
	}

	escrowResp, err := escrowClient.Purchase(r.Context(), escrow.PurchaseRequest{
		Mint:  req.Mint,
		Buyer: req.Buyer,
	})
	if err != nil {
		return nil, err
	}

	now := time.Now().Unix()
	sale := &marketdb.Sale{
		Mint:          req.Mint,
		Seller:        escrowResp.Seller,
		Buyer:         req.Buyer,
		PriceLamports: escrowResp.PriceLamports,
		Signature:     escrowResp.Signature,
		OccurredAt:    now,
		Source:        marketdb.SourceEscrow,
	}
	_, err = dbpkg.TxRunner(r.Context(), db, func(txn *sql.Tx) (struct{}, error) {
		if err := listingDb.SetState(txn, req.Mint, marketdb.ListingStatePendingSale, now); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, saleDb.Insert(txn, sale)
	})
	if err != nil {
		return nil, err
	}
	return *sale, nil
}
