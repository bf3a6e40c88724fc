// Package keys distributes Ed25519 verification keys over HTTP: a fetch
// client for verifiers and a serving handler for signers. The wire format is
// a bare {"publicKey": "<hex>"} document.
package keys

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// KeyDocument is the wire format of the key endpoint.
type KeyDocument struct {
	PublicKey  string `json:"publicKey"`
	KeyVersion string `json:"keyVersion,omitempty"`
}

// Client fetches public keys from a distribution endpoint. Fetches are
// rate-limited so chatty verifiers cannot hammer the key service.
type Client struct {
	endpoint string
	http     *http.Client
	limiter  *rate.Limiter
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.http = h }
}

// WithRateLimit caps fetches per second (default 1/s, burst 5).
func WithRateLimit(perSecond float64, burst int) ClientOption {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst) }
}

// NewClient creates a key-distribution client for an endpoint URL.
func NewClient(endpoint string, opts ...ClientOption) *Client {
	c := &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: 10 * time.Second},
		limiter:  rate.NewLimiter(rate.Limit(1), 5),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch retrieves and validates the current public key hex.
func (c *Client) Fetch(ctx context.Context) (*KeyDocument, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("keys: rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("keys: build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("keys: fetch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("keys: endpoint returned %d", resp.StatusCode)
	}

	var doc KeyDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("keys: decode response: %w", err)
	}
	if err := validateKeyHex(doc.PublicKey); err != nil {
		return nil, err
	}
	return &doc, nil
}

func validateKeyHex(pubHex string) error {
	raw, err := hex.DecodeString(pubHex)
	if err != nil {
		return fmt.Errorf("keys: public key is not hex: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return fmt.Errorf("keys: public key must be %d bytes, got %d", ed25519.PublicKeySize, len(raw))
	}
	return nil
}
