package auction

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mr-tron/base58"
	"github.com/vintage-exchange/marketnode/pkg/backoff"
	"go.uber.org/zap"
)

// Listing is one on-chain listing resolved to its mint.
type Listing struct {
	Mint            string
	Seller          string
	AuctionHouse    string
	TradeState      string
	PurchaseReceipt string
	PriceLamports   uint64
	CreatedAt       int64
	CanceledAt      *int64
}

func (l *Listing) Sold() bool {
	return l.PurchaseReceipt != ""
}

func (l *Listing) Canceled() bool {
	return l.CanceledAt != nil
}

// Source reads the listing receipts an auction house currently holds on chain.
type Source interface {
	Listings(ctx context.Context, auctionHouse string) ([]Listing, error)
}

type DefaultSource struct {
	endpoint string
	http     *http.Client
	retry    backoff.Policy

	// Metadata accounts never change their mint, so resolved pairs are
	// cached for the life of the process.
	mintMu    sync.Mutex
	mintCache map[string]string
}

func NewSource(endpoint string) *DefaultSource {
	return &DefaultSource{
		endpoint:  endpoint,
		http:      &http.Client{Timeout: 60 * time.Second},
		retry:     backoff.DefaultPolicy(),
		mintCache: make(map[string]string),
	}
}

// auctionHouseOffset is where the auction house pubkey sits in a
// ListingReceipt: after the discriminator, trade state and bookkeeper.
const auctionHouseOffset = 8 + 32 + 32

func (s *DefaultSource) Listings(ctx context.Context, auctionHouse string) ([]Listing, error) {
	params := []any{
		MetaplexAuctionHouseProgram,
		map[string]any{
			"encoding":   "base64",
			"commitment": "confirmed",
			"filters": []any{
				map[string]any{"memcmp": map[string]any{
					"offset": 0,
					"bytes":  base58.Encode(listingReceiptDiscriminator),
				}},
				map[string]any{"memcmp": map[string]any{
					"offset": auctionHouseOffset,
					"bytes":  auctionHouse,
				}},
			},
		},
	}

	var accounts []programAccount
	if err := s.call(ctx, "getProgramAccounts", params, &accounts); err != nil {
		return nil, fmt.Errorf("getProgramAccounts for auction house %s: %w", auctionHouse, err)
	}

	receipts := make([]*ListingReceipt, 0, len(accounts))
	metadataAddrs := make([]string, 0, len(accounts))
	for _, acc := range accounts {
		data, err := acc.Account.decode()
		if err != nil {
			zap.L().Warn("skipping undecodable account", zap.String("pubkey", acc.Pubkey), zap.Error(err))
			continue
		}
		receipt, err := DecodeListingReceipt(data)
		if err != nil {
			zap.L().Warn("skipping malformed listing receipt", zap.String("pubkey", acc.Pubkey), zap.Error(err))
			continue
		}
		receipts = append(receipts, receipt)
		metadataAddrs = append(metadataAddrs, receipt.Metadata)
	}

	mints, err := s.resolveMints(ctx, metadataAddrs)
	if err != nil {
		return nil, err
	}

	listings := make([]Listing, 0, len(receipts))
	for _, receipt := range receipts {
		mint, ok := mints[receipt.Metadata]
		if !ok {
			zap.L().Warn("listing receipt references unknown metadata account",
				zap.String("metadata", receipt.Metadata),
				zap.String("seller", receipt.Seller),
			)
			continue
		}
		listings = append(listings, Listing{
			Mint:            mint,
			Seller:          receipt.Seller,
			AuctionHouse:    receipt.AuctionHouse,
			TradeState:      receipt.TradeState,
			PurchaseReceipt: receipt.PurchaseReceipt,
			PriceLamports:   receipt.Price,
			CreatedAt:       receipt.CreatedAt,
			CanceledAt:      receipt.CanceledAt,
		})
	}
	return listings, nil
}

// resolveMints maps metadata account addresses to their mints, batching
// lookups for addresses not yet cached.
func (s *DefaultSource) resolveMints(ctx context.Context, metadataAddrs []string) (map[string]string, error) {
	resolved := make(map[string]string, len(metadataAddrs))
	var missing []string

	s.mintMu.Lock()
	for _, addr := range metadataAddrs {
		if mint, ok := s.mintCache[addr]; ok {
			resolved[addr] = mint
		} else {
			missing = append(missing, addr)
		}
	}
	s.mintMu.Unlock()

	const batchSize = 100
	for start := 0; start < len(missing); start += batchSize {
		end := start + batchSize
		if end > len(missing) {
			end = len(missing)
		}
		batch := missing[start:end]

		params := []any{batch, map[string]any{"encoding": "base64", "commitment": "confirmed"}}
		var result struct {
			Value []*accountData `json:"value"`
		}
		if err := s.call(ctx, "getMultipleAccounts", params, &result); err != nil {
			return nil, fmt.Errorf("getMultipleAccounts: %w", err)
		}

		for i, acc := range result.Value {
			if acc == nil {
				continue
			}
			data, err := acc.decode()
			if err != nil {
				continue
			}
			mint, err := decodeMetadataMint(data)
			if err != nil {
				zap.L().Warn("failed to decode metadata account", zap.String("pubkey", batch[i]), zap.Error(err))
				continue
			}
			resolved[batch[i]] = mint
		}
	}

	s.mintMu.Lock()
	for addr, mint := range resolved {
		s.mintCache[addr] = mint
	}
	s.mintMu.Unlock()

	return resolved, nil
}

type programAccount struct {
	Pubkey  string      `json:"pubkey"`
	Account accountData `json:"account"`
}

type accountData struct {
	Data  []string `json:"data"`
	Owner string   `json:"owner"`
}

func (a *accountData) decode() ([]byte, error) {
	if len(a.Data) < 1 {
		return nil, fmt.Errorf("account data missing")
	}
	return base64.StdEncoding.DecodeString(a.Data[0])
}

type rpcRequest struct {
	JsonRpc string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("solana RPC error %d: %s", e.Code, e.Message)
}

func (s *DefaultSource) call(ctx context.Context, method string, params any, out any) error {
	payload, err := json.Marshal(rpcRequest{
		JsonRpc: "2.0",
		ID:      uuid.NewString(),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", method, err)
	}

	return s.retry.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.http.Do(req)
		if err != nil {
			zap.L().Warn("solana RPC request failed", zap.String("method", method), zap.Error(err))
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return fmt.Errorf("solana RPC returned status %d: %s", resp.StatusCode, string(body))
		}

		var rpcResp rpcResponse
		if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
			return fmt.Errorf("failed to decode %s response: %w", method, err)
		}
		if rpcResp.Error != nil {
			return rpcResp.Error
		}
		if out != nil && len(rpcResp.Result) > 0 {
			if err := json.Unmarshal(rpcResp.Result, out); err != nil {
				return fmt.Errorf("failed to unmarshal %s result: %w", method, err)
			}
		}
		return nil
	})
}
