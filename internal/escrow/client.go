package escrow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/vintage-exchange/marketnode/pkg/backoff"
	"go.uber.org/zap"
)

// ErrNoEscrowServer is returned when no port in the configured range answers
// the health probe.
var ErrNoEscrowServer = errors.New("no escrow server found in port range")

// Escrow listing states as reported by the server.
const (
	StateActive = "active"
	StateSold   = "sold"
)

// Listing is one escrowed listing as reported by the escrow server.
type Listing struct {
	Mint          string `json:"mint"`
	Seller        string `json:"seller"`
	PriceLamports uint64 `json:"price_lamports"`
	EscrowAccount string `json:"escrow_account"`
	ListedAt      int64  `json:"listed_at"`
	State         string `json:"state"`
}

type ListRequest struct {
	Mint          string `json:"mint"`
	Seller        string `json:"seller"`
	PriceLamports uint64 `json:"price_lamports"`
}

type ListResponse struct {
	EscrowAccount string `json:"escrow_account"`
	Signature     string `json:"signature"`
}

type UnlistRequest struct {
	Mint   string `json:"mint"`
	Seller string `json:"seller"`
}

type PurchaseRequest struct {
	Mint  string `json:"mint"`
	Buyer string `json:"buyer"`
}

type PurchaseResponse struct {
	Signature     string `json:"signature"`
	Seller        string `json:"seller"`
	PriceLamports uint64 `json:"price_lamports"`
}

type txResponse struct {
	Signature string `json:"signature"`
}

// Client talks to the escrow server, locating it by scanning a port range.
type Client interface {
	Listings(ctx context.Context) ([]Listing, error)
	List(ctx context.Context, req ListRequest) (*ListResponse, error)
	Unlist(ctx context.Context, req UnlistRequest) (string, error)
	Purchase(ctx context.Context, req PurchaseRequest) (*PurchaseResponse, error)
}

type DefaultClient struct {
	host      string
	portStart int
	portEnd   int
	http      *http.Client
	probe     *http.Client
	retry     backoff.Policy

	mu   sync.Mutex
	port int
}

func NewClient(host string, portStart int, portEnd int) *DefaultClient {
	return &DefaultClient{
		host:      host,
		portStart: portStart,
		portEnd:   portEnd,
		http:      &http.Client{Timeout: 30 * time.Second},
		probe:     &http.Client{Timeout: 500 * time.Millisecond},
		retry:     backoff.Policy{Base: time.Second, Cap: 30 * time.Second, MaxAttempts: 5},
	}
}

func (c *DefaultClient) Listings(ctx context.Context) ([]Listing, error) {
	var resp struct {
		Listings []Listing `json:"listings"`
	}
	if err := c.do(ctx, http.MethodGet, "/listings", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Listings, nil
}

func (c *DefaultClient) List(ctx context.Context, req ListRequest) (*ListResponse, error) {
	var resp ListResponse
	if err := c.do(ctx, http.MethodPost, "/list", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *DefaultClient) Unlist(ctx context.Context, req UnlistRequest) (string, error) {
	var resp txResponse
	if err := c.do(ctx, http.MethodPost, "/unlist", req, &resp); err != nil {
		return "", err
	}
	return resp.Signature, nil
}

func (c *DefaultClient) Purchase(ctx context.Context, req PurchaseRequest) (*PurchaseResponse, error) {
	var resp PurchaseResponse
	if err := c.do(ctx, http.MethodPost, "/purchase", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// do performs one request against the discovered escrow port. A transport
// failure forgets the remembered port and rescans on the retry ladder; HTTP
// error statuses are surfaced immediately with the response body.
func (c *DefaultClient) do(ctx context.Context, method string, path string, body any, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("failed to marshal %s request: %w", path, err)
		}
	}

	return c.retry.Do(ctx, func() error {
		port, err := c.discover(ctx)
		if err != nil {
			return err
		}

		url := fmt.Sprintf("http://%s:%d%s", c.host, port, path)
		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			zap.L().Warn("escrow server unreachable, forgetting port",
				zap.Int("port", port),
				zap.Error(err),
			)
			c.forget(port)
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return &backoff.PermanentError{Err: statusError(resp)}
		}
		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return fmt.Errorf("failed to decode %s response: %w", path, err)
			}
		}
		return nil
	})
}

// statusError surfaces the server's error message when the body carries one.
func statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		return fmt.Errorf("escrow returned status %d: %s", resp.StatusCode, body.Error)
	}
	return fmt.Errorf("escrow returned status %d: %s", resp.StatusCode, string(raw))
}

// discover returns the remembered escrow port, scanning the configured range
// when none is remembered.
func (c *DefaultClient) discover(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.port != 0 {
		return c.port, nil
	}

	for port := c.portStart; port <= c.portEnd; port++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if c.healthy(ctx, port) {
			zap.L().Info("escrow server discovered", zap.String("host", c.host), zap.Int("port", port))
			c.port = port
			return port, nil
		}
	}
	return 0, ErrNoEscrowServer
}

func (c *DefaultClient) healthy(ctx context.Context, port int) bool {
	url := fmt.Sprintf("http://%s:%d/health", c.host, port)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := c.probe.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 256))
	return resp.StatusCode == http.StatusOK
}

func (c *DefaultClient) forget(port int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.port == port {
		c.port = 0
	}
}
