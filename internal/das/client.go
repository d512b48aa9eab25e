package das

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vintage-exchange/marketnode/pkg/backoff"
	"go.uber.org/zap"
)

var ErrAssetNotFound = errors.New("asset not found")

// Client queries the Helius DAS API for asset metadata and ownership.
type Client interface {
	// SearchAssets pages through a collection with cursor pagination and
	// returns the next cursor ("" when the collection is exhausted).
	SearchAssets(ctx context.Context, collection string, cursor string, limit int) ([]Asset, string, error)

	// GetAssetsByGroup pages through a collection with page-number pagination.
	// hasMore is false once the collection (or the upstream pagination cap)
	// is exhausted.
	GetAssetsByGroup(ctx context.Context, collection string, page int, limit int) (assets []Asset, hasMore bool, err error)

	GetAsset(ctx context.Context, id string) (*Asset, error)
}

type DefaultClient struct {
	endpoint string
	http     *http.Client
	retry    backoff.Policy
}

func NewClient(endpoint string) *DefaultClient {
	return &DefaultClient{
		endpoint: endpoint,
		http:     &http.Client{Timeout: 30 * time.Second},
		retry:    backoff.DefaultPolicy(),
	}
}

type rpcRequest struct {
	JsonRpc string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("DAS RPC error %d: %s", e.Code, e.Message)
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type assetPage struct {
	Total  int     `json:"total"`
	Limit  int     `json:"limit"`
	Cursor string  `json:"cursor"`
	Items  []Asset `json:"items"`
}

func (c *DefaultClient) SearchAssets(ctx context.Context, collection string, cursor string, limit int) ([]Asset, string, error) {
	params := map[string]any{
		"grouping": []string{"collection", collection},
		"limit":    limit,
		"sortBy":   map[string]string{"sortBy": "id", "sortDirection": "asc"},
		"displayOptions": map[string]bool{
			"showCollectionMetadata": true,
		},
	}
	if cursor != "" {
		params["cursor"] = cursor
	}

	var page assetPage
	if err := c.call(ctx, "searchAssets", params, &page); err != nil {
		return nil, "", fmt.Errorf("searchAssets for collection %s: %w", collection, err)
	}
	if len(page.Items) == 0 {
		return nil, "", nil
	}
	return page.Items, page.Cursor, nil
}

func (c *DefaultClient) GetAssetsByGroup(ctx context.Context, collection string, page int, limit int) ([]Asset, bool, error) {
	params := map[string]any{
		"groupKey":   "collection",
		"groupValue": collection,
		"page":       page,
		"limit":      limit,
		"sortBy":     map[string]string{"sortBy": "id", "sortDirection": "asc"},
		"displayOptions": map[string]bool{
			"showUnverifiedCollections": true,
			"showCollectionMetadata":    true,
			"showFungible":              false,
		},
	}

	var result assetPage
	err := c.call(ctx, "getAssetsByGroup", params, &result)
	if err != nil {
		// The upstream hard-caps page*limit; hitting the cap ends the walk
		// rather than failing the sync round.
		var rpcErr *rpcError
		if errors.As(err, &rpcErr) && strings.Contains(rpcErr.Message, "Paginating beyond 500000 items") {
			zap.L().Warn("DAS pagination cap reached",
				zap.String("collection", collection),
				zap.Int("page", page),
			)
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("getAssetsByGroup for collection %s page %d: %w", collection, page, err)
	}
	if len(result.Items) == 0 {
		return nil, false, nil
	}
	return result.Items, len(result.Items) == limit, nil
}

func (c *DefaultClient) GetAsset(ctx context.Context, id string) (*Asset, error) {
	params := map[string]any{"id": id}

	var asset Asset
	if err := c.call(ctx, "getAsset", params, &asset); err != nil {
		return nil, fmt.Errorf("getAsset %s: %w", id, err)
	}
	if asset.ID == "" {
		return nil, ErrAssetNotFound
	}
	return &asset, nil
}

// call performs one JSON-RPC method call, retrying transport failures,
// non-200 statuses and embedded RPC errors on the client's backoff ladder.
func (c *DefaultClient) call(ctx context.Context, method string, params any, out any) error {
	payload, err := json.Marshal(rpcRequest{
		JsonRpc: "2.0",
		ID:      uuid.NewString(),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", method, err)
	}

	return c.retry.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			zap.L().Warn("DAS request failed", zap.String("method", method), zap.Error(err))
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return fmt.Errorf("DAS returned status %d: %s", resp.StatusCode, string(body))
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
