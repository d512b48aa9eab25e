package das

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vintage-exchange/marketnode/pkg/backoff"
)

func newTestClient(endpoint string) *DefaultClient {
	c := NewClient(endpoint)
	c.retry = backoff.Policy{Base: time.Millisecond, Cap: time.Millisecond, MaxAttempts: 3}
	return c
}

func rpcResult(t *testing.T, w http.ResponseWriter, result any) {
	t.Helper()
	raw, err := json.Marshal(result)
	require.NoError(t, err)
	require.NoError(t, json.NewEncoder(w).Encode(map[string]any{
		"jsonrpc": "2.0",
		"result":  json.RawMessage(raw),
	}))
}

func TestSearchAssets(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "searchAssets", req.Method)

		params := req.Params.(map[string]any)
		grouping := params["grouping"].([]any)
		assert.Equal(t, "collection", grouping[0])
		assert.Equal(t, "Coll1111111111111111111111111111111111111111", grouping[1])
		assert.Nil(t, params["cursor"])

		rpcResult(t, w, assetPage{
			Cursor: "next-cursor",
			Items: []Asset{
				{ID: "MintA111"},
				{ID: "MintB222"},
			},
		})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	assets, cursor, err := client.SearchAssets(context.Background(), "Coll1111111111111111111111111111111111111111", "", 100)
	require.NoError(t, err)
	assert.Equal(t, "next-cursor", cursor)
	require.Len(t, assets, 2)
	assert.Equal(t, "MintA111", assets[0].ID)
}

func TestSearchAssets_SendsCursor(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		params := req.Params.(map[string]any)
		assert.Equal(t, "resume-here", params["cursor"])

		rpcResult(t, w, assetPage{})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	assets, cursor, err := client.SearchAssets(context.Background(), "coll", "resume-here", 100)
	require.NoError(t, err)
	assert.Empty(t, cursor)
	assert.Empty(t, assets)
}

func TestGetAssetsByGroup(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "getAssetsByGroup", req.Method)

		params := req.Params.(map[string]any)
		assert.Equal(t, "collection", params["groupKey"])
		assert.Equal(t, float64(3), params["page"])
		assert.Equal(t, float64(2), params["limit"])

		rpcResult(t, w, assetPage{Items: []Asset{{ID: "a"}, {ID: "b"}}})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	assets, hasMore, err := client.GetAssetsByGroup(context.Background(), "coll", 3, 2)
	require.NoError(t, err)
	assert.True(t, hasMore)
	assert.Len(t, assets, 2)
}

func TestGetAssetsByGroup_LastPage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rpcResult(t, w, assetPage{Items: []Asset{{ID: "a"}}})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	assets, hasMore, err := client.GetAssetsByGroup(context.Background(), "coll", 1, 100)
	require.NoError(t, err)
	assert.False(t, hasMore)
	assert.Len(t, assets, 1)
}

func TestGetAssetsByGroup_PaginationCap(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"error": map[string]any{
				"code":    -32602,
				"message": "Paginating beyond 500000 items is not supported",
			},
		}))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	assets, hasMore, err := client.GetAssetsByGroup(context.Background(), "coll", 5001, 100)
	require.NoError(t, err)
	assert.False(t, hasMore)
	assert.Empty(t, assets)
}

func TestGetAsset(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "getAsset", req.Method)

		rpcResult(t, w, Asset{
			ID: "Mint1111",
			Ownership: Ownership{
				Owner: "Owner111",
			},
			Burnt: false,
		})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	asset, err := client.GetAsset(context.Background(), "Mint1111")
	require.NoError(t, err)
	assert.Equal(t, "Mint1111", asset.ID)
	assert.Equal(t, "Owner111", asset.Ownership.Owner)
}

func TestGetAsset_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rpcResult(t, w, map[string]any{})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.GetAsset(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrAssetNotFound)
}

func TestCall_RetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "upstream unavailable", http.StatusBadGateway)
			return
		}
		rpcResult(t, w, Asset{ID: "Mint1111"})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	asset, err := client.GetAsset(context.Background(), "Mint1111")
	require.NoError(t, err)
	assert.Equal(t, "Mint1111", asset.ID)
	assert.Equal(t, int32(3), calls.Load())
}

func TestCall_GivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.GetAsset(context.Background(), "Mint1111")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "giving up after 3 attempts")
	assert.Equal(t, int32(3), calls.Load())
}

func TestCall_RPCErrorSurfacesCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"jsonrpc":"2.0","error":{"code":-32600,"message":"Invalid request"}}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.GetAsset(context.Background(), "Mint1111")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DAS RPC error -32600")
}
