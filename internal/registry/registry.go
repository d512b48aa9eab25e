package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vintage-exchange/marketnode/pkg/backoff"
	"github.com/vintage-exchange/marketnode/pkg/solana"
	"go.uber.org/zap"
)

const (
	sheetsBaseURL = "https://sheets.googleapis.com"

	// collectionsRange covers the address, name, symbol and enabled columns,
	// skipping the header row.
	collectionsRange = "collections!A2:D"
)

// Collection is one registry row describing a tracked collection.
type Collection struct {
	Address string
	Name    string
	Symbol  string
}

// Registry lists the collections the node should track.
type Registry interface {
	Collections(ctx context.Context) ([]Collection, error)
}

// SheetsRegistry reads the registry from a Google Sheets spreadsheet via the
// public values API.
type SheetsRegistry struct {
	baseURL       string
	spreadsheetID string
	apiKey        string
	http          *http.Client
	retry         backoff.Policy
}

func NewSheetsRegistry(spreadsheetID string, apiKey string) *SheetsRegistry {
	return &SheetsRegistry{
		baseURL:       sheetsBaseURL,
		spreadsheetID: spreadsheetID,
		apiKey:        apiKey,
		http:          &http.Client{Timeout: 30 * time.Second},
		retry:         backoff.DefaultPolicy(),
	}
}

type valuesResponse struct {
	Values [][]string `json:"values"`
}

func (r *SheetsRegistry) Collections(ctx context.Context) ([]Collection, error) {
	endpoint := fmt.Sprintf("%s/v4/spreadsheets/%s/values/%s?key=%s",
		r.baseURL,
		url.PathEscape(r.spreadsheetID),
		url.PathEscape(collectionsRange),
		url.QueryEscape(r.apiKey),
	)

	var values valuesResponse
	err := r.retry.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return err
		}
		resp, err := r.http.Do(req)
		if err != nil {
			zap.L().Warn("registry request failed", zap.Error(err))
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return fmt.Errorf("sheets API returned status %d: %s", resp.StatusCode, string(body))
		}
		return json.NewDecoder(resp.Body).Decode(&values)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch collection registry: %w", err)
	}

	return parseRows(values.Values), nil
}

// parseRows filters the raw sheet rows down to enabled collections with valid
// addresses, dropping duplicates on address.
func parseRows(rows [][]string) []Collection {
	collections := make([]Collection, 0, len(rows))
	seen := make(map[string]bool, len(rows))

	for _, row := range rows {
		if len(row) < 4 {
			continue
		}
		address := strings.TrimSpace(row[0])
		name := strings.TrimSpace(row[1])
		symbol := strings.TrimSpace(row[2])
		enabled := strings.TrimSpace(row[3])

		if address == "" || !strings.EqualFold(enabled, "TRUE") {
			continue
		}
		if err := solana.ValidateAddress(address); err != nil {
			zap.L().Warn("registry row has invalid collection address",
				zap.String("address", address),
				zap.Error(err),
			)
			continue
		}
		if seen[address] {
			continue
		}
		seen[address] = true

		collections = append(collections, Collection{
			Address: address,
			Name:    name,
			Symbol:  symbol,
		})
	}
	return collections
}
