package handlers

import (
	"net/http"

	"github.com/vintage-exchange/marketnode/internal/db"
)

type StatusResponse struct {
	Status      string `json:"status"`
	Collections int    `json:"collections"`
	NFTs        int    `json:"nfts"`
	Listings    int    `json:"listings"`
	Sales       int    `json:"sales"`
}

func StatusGetHandler(r *http.Request, rq db.QueryRunner) (StatusResponse, error) {
	resp := StatusResponse{Status: "OK"}

	counts := []struct {
		table string
		dest  *int
	}{
		{"collections", &resp.Collections},
		{"nfts", &resp.NFTs},
		{"listings", &resp.Listings},
		{"sales", &resp.Sales},
	}
	for _, count := range counts {
		if err := rq.QueryRow("SELECT COUNT(*) FROM " + count.table).Scan(count.dest); err != nil {
			return StatusResponse{}, err
		}
	}
	return resp, nil
}
