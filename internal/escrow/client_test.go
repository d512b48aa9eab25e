package escrow

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vintage-exchange/marketnode/pkg/backoff"
)

func serverPort(t *testing.T, server *httptest.Server) int {
	t.Helper()
	addr, ok := server.Listener.Addr().(*net.TCPAddr)
	require.True(t, ok)
	return addr.Port
}

func newEscrowServer(t *testing.T, mux *http.ServeMux) (*httptest.Server, int) {
	t.Helper()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, serverPort(t, server)
}

func clientFor(port int) *DefaultClient {
	c := NewClient("127.0.0.1", port-1, port+1)
	c.retry = backoff.Policy{Base: time.Millisecond, Cap: time.Millisecond, MaxAttempts: 3}
	return c
}

func TestListings_DiscoversServerInPortRange(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /listings", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"listings": []Listing{
				{Mint: "MintA", Seller: "SellerA", PriceLamports: 1_000_000_000, EscrowAccount: "Esc1", ListedAt: 1700000000, State: StateActive},
				{Mint: "MintB", Seller: "SellerB", PriceLamports: 2_000_000_000, EscrowAccount: "Esc2", ListedAt: 1700000100, State: StateSold},
			},
		})
	})
	_, port := newEscrowServer(t, mux)

	client := clientFor(port)
	listings, err := client.Listings(context.Background())
	require.NoError(t, err)
	require.Len(t, listings, 2)
	assert.Equal(t, "MintA", listings[0].Mint)
	assert.Equal(t, uint64(1_000_000_000), listings[0].PriceLamports)
	assert.Equal(t, StateActive, listings[0].State)
	assert.Equal(t, StateSold, listings[1].State)
}

func TestListings_NoServerInRange(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := listener.Addr().(*net.TCPAddr).Port
	require.NoError(t, listener.Close())

	client := NewClient("127.0.0.1", port, port)
	client.retry = backoff.Policy{Base: time.Millisecond, Cap: time.Millisecond, MaxAttempts: 2}

	_, err = client.Listings(context.Background())
	assert.ErrorIs(t, err, ErrNoEscrowServer)
}

func TestListings_RemembersDiscoveredPort(t *testing.T) {
	var healthProbes atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /listings", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"listings": []Listing{}})
	})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			healthProbes.Add(1)
			w.WriteHeader(http.StatusOK)
			return
		}
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(server.Close)

	client := clientFor(serverPort(t, server))
	for i := 0; i < 3; i++ {
		_, err := client.Listings(context.Background())
		require.NoError(t, err)
	}
	assert.LessOrEqual(t, healthProbes.Load(), int32(3))
	assert.NotZero(t, client.port)
}

func TestListings_ForgetsPortWhenServerGoesAway(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /listings", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"listings": []Listing{}})
	})
	server, port := newEscrowServer(t, mux)

	client := clientFor(port)
	client.retry = backoff.Policy{Base: time.Millisecond, Cap: time.Millisecond, MaxAttempts: 1}

	_, err := client.Listings(context.Background())
	require.NoError(t, err)
	require.Equal(t, port, client.port)

	server.Close()
	_, err = client.Listings(context.Background())
	require.Error(t, err)
	assert.Zero(t, client.port)
}

func TestList(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /list", func(w http.ResponseWriter, r *http.Request) {
		var req ListRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "MintA", req.Mint)
		assert.Equal(t, "SellerA", req.Seller)
		assert.Equal(t, uint64(500_000_000), req.PriceLamports)
		json.NewEncoder(w).Encode(ListResponse{EscrowAccount: "Esc1", Signature: "sig1"})
	})
	_, port := newEscrowServer(t, mux)

	client := clientFor(port)
	resp, err := client.List(context.Background(), ListRequest{Mint: "MintA", Seller: "SellerA", PriceLamports: 500_000_000})
	require.NoError(t, err)
	assert.Equal(t, "Esc1", resp.EscrowAccount)
	assert.Equal(t, "sig1", resp.Signature)
}

func TestUnlist(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /unlist", func(w http.ResponseWriter, r *http.Request) {
		var req UnlistRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "MintA", req.Mint)
		json.NewEncoder(w).Encode(map[string]string{"signature": "sig2"})
	})
	_, port := newEscrowServer(t, mux)

	client := clientFor(port)
	sig, err := client.Unlist(context.Background(), UnlistRequest{Mint: "MintA", Seller: "SellerA"})
	require.NoError(t, err)
	assert.Equal(t, "sig2", sig)
}

func TestPurchase(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /purchase", func(w http.ResponseWriter, r *http.Request) {
		var req PurchaseRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "BuyerA", req.Buyer)
		json.NewEncoder(w).Encode(PurchaseResponse{Signature: "sig3", Seller: "SellerA", PriceLamports: 2_000_000_000})
	})
	_, port := newEscrowServer(t, mux)

	client := clientFor(port)
	resp, err := client.Purchase(context.Background(), PurchaseRequest{Mint: "MintA", Buyer: "BuyerA"})
	require.NoError(t, err)
	assert.Equal(t, "sig3", resp.Signature)
	assert.Equal(t, "SellerA", resp.Seller)
}

func TestDo_SurfacesServerErrorWithoutRetrying(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /list", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"error": "mint already listed"})
	})
	_, port := newEscrowServer(t, mux)

	client := clientFor(port)
	_, err := client.List(context.Background(), ListRequest{Mint: "MintA", Seller: "SellerA", PriceLamports: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 409")
	assert.Contains(t, err.Error(), "mint already listed")
	assert.Equal(t, int32(1), calls.Load())
}
