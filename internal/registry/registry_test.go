package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vintage-exchange/marketnode/pkg/backoff"
)

func testAddress(fill byte) string {
	key := make([]byte, 32)
	for i := range key {
		key[i] = fill
	}
	return base58.Encode(key)
}

func newTestRegistry(baseURL string) *SheetsRegistry {
	r := NewSheetsRegistry("sheet-1", "key-1")
	r.baseURL = baseURL
	r.retry = backoff.Policy{Base: time.Millisecond, Cap: time.Millisecond, MaxAttempts: 3}
	return r
}

func TestCollections(t *testing.T) {
	addrA := testAddress(1)
	addrB := testAddress(2)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v4/spreadsheets/sheet-1/values/collections!A2:D", r.URL.Path)
		assert.Equal(t, "key-1", r.URL.Query().Get("key"))

		json.NewEncoder(w).Encode(valuesResponse{Values: [][]string{
			{addrA, "Degen Apes", "DAPE", "TRUE"},
			{addrB, "Pixel Cats", "PCAT", "true"},
		}})
	}))
	defer server.Close()

	reg := newTestRegistry(server.URL)
	collections, err := reg.Collections(context.Background())
	require.NoError(t, err)
	require.Len(t, collections, 2)
	assert.Equal(t, Collection{Address: addrA, Name: "Degen Apes", Symbol: "DAPE"}, collections[0])
	assert.Equal(t, Collection{Address: addrB, Name: "Pixel Cats", Symbol: "PCAT"}, collections[1])
}

func TestCollections_RetriesServerErrors(t *testing.T) {
	addr := testAddress(3)
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 2 {
			http.Error(w, "quota exceeded", http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(valuesResponse{Values: [][]string{
			{addr, "Degen Apes", "DAPE", "TRUE"},
		}})
	}))
	defer server.Close()

	reg := newTestRegistry(server.URL)
	collections, err := reg.Collections(context.Background())
	require.NoError(t, err)
	assert.Len(t, collections, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCollections_GivesUpAfterRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer server.Close()

	reg := newTestRegistry(server.URL)
	_, err := reg.Collections(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to fetch collection registry")
	assert.Contains(t, err.Error(), "status 403")
}

func TestParseRows(t *testing.T) {
	addrA := testAddress(1)
	addrB := testAddress(2)

	t.Run("skips disabled rows", func(t *testing.T) {
		collections := parseRows([][]string{
			{addrA, "A", "AAA", "TRUE"},
			{addrB, "B", "BBB", "FALSE"},
		})
		require.Len(t, collections, 1)
		assert.Equal(t, addrA, collections[0].Address)
	})

	t.Run("skips short and blank rows", func(t *testing.T) {
		collections := parseRows([][]string{
			{addrA, "A", "AAA"},
			{"", "B", "BBB", "TRUE"},
			{addrA, "A", "AAA", "TRUE"},
		})
		assert.Len(t, collections, 1)
	})

	t.Run("skips invalid addresses", func(t *testing.T) {
		collections := parseRows([][]string{
			{"not-an-address-0OIl", "A", "AAA", "TRUE"},
			{fmt.Sprintf("  %s  ", addrA), "A", "AAA", "TRUE"},
		})
		require.Len(t, collections, 1)
		assert.Equal(t, addrA, collections[0].Address)
	})

	t.Run("dedupes on address", func(t *testing.T) {
		collections := parseRows([][]string{
			{addrA, "A", "AAA", "TRUE"},
			{addrA, "A renamed", "AAA", "TRUE"},
		})
		require.Len(t, collections, 1)
		assert.Equal(t, "A", collections[0].Name)
	})

	t.Run("empty sheet", func(t *testing.T) {
		assert.Empty(t, parseRows(nil))
	})
}
