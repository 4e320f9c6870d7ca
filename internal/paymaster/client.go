// Package paymaster talks to the sponsorship relay: it resolves the sponsor
// key for a domain, quotes metered fees, and submits partially-signed
// transactions for counter-signing and fee payment.
package paymaster

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fogo-foundation/fogo-sessions-sub001/internal/chain"
	"github.com/fogo-foundation/fogo-sessions-sub001/internal/logger"
)

// HTTPError represents a transport-level failure: the paymaster could not
// process the request at all. Distinct from a 200 response reporting that the
// transaction landed on chain and failed.
type HTTPError struct {
	StatusCode int
	Status     string
	URL        string
	Method     string
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s %s failed with status %d %s: %s", e.Method, e.URL, e.StatusCode, e.Status, e.Body)
}

// Client is an HTTP client for one paymaster endpoint. Sponsor keys and fee
// configs are memoized for the client's lifetime; both caches are read-mostly
// and safe to populate redundantly under a race, since values are idempotent
// per key.
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu       sync.Mutex
	sponsors map[string]chain.PublicKey
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a paymaster client for baseURL.
func NewClient(baseURL string, options ...Option) *Client {
	client := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
		sponsors:   make(map[string]chain.PublicKey),
	}
	for _, option := range options {
		option(client)
	}
	return client
}

// get performs an idempotent GET with retry on transient failures.
func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	fullURL := c.baseURL + path + "?" + query.Encode()

	var body []byte
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		req.Header.Set("X-Request-Id", uuid.NewString())

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("paymaster request failed: %w", err)
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read paymaster response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			httpErr := &HTTPError{
				StatusCode: resp.StatusCode,
				Status:     resp.Status,
				URL:        fullURL,
				Method:     http.MethodGet,
				Body:       string(raw),
			}
			if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
				return httpErr
			}
			return backoff.Permanent(httpErr)
		}
		body = raw
		return nil
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 100 * time.Millisecond
	expBackoff.MaxInterval = 5 * time.Second
	expBackoff.MaxElapsedTime = 20 * time.Second

	if err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(expBackoff, 3), ctx)); err != nil {
		return nil, err
	}
	return body, nil
}

// ResolveSponsor returns the sponsor public key assigned to domain. Sponsors
// are not expected to rotate mid-session, so the result is cached for the
// client's lifetime.
func (c *Client) ResolveSponsor(ctx context.Context, domain string) (chain.PublicKey, error) {
	c.mu.Lock()
	cached, ok := c.sponsors[domain]
	c.mu.Unlock()
	if ok {
		return cached, nil
	}

	query := url.Values{}
	query.Set("domain", domain)
	query.Set("index", "autoassign")
	body, err := c.get(ctx, "/api/sponsor_pubkey", query)
	if err != nil {
		return chain.PublicKey{}, fmt.Errorf("failed to resolve sponsor for %s: %w", domain, err)
	}

	sponsor, err := chain.PublicKeyFromBase58(strings.TrimSpace(string(body)))
	if err != nil {
		return chain.PublicKey{}, fmt.Errorf("paymaster returned malformed sponsor key: %w", err)
	}

	c.mu.Lock()
	c.sponsors[domain] = sponsor
	c.mu.Unlock()

	logger.Debug("resolved sponsor",
		zap.String("domain", domain),
		zap.String("sponsor", sponsor.String()))
	return sponsor, nil
}

// QuoteFee returns the metered fee for a transaction variation, denominated
// in feeMint base units. Callers only invoke this when both a variation and a
// fee mint are specified; otherwise the fee is defined as zero.
func (c *Client) QuoteFee(ctx context.Context, domain, variation string, feeMint chain.PublicKey) (uint64, error) {
	if variation == "" {
		return 0, fmt.Errorf("fee quote requires a variation")
	}
	if feeMint.IsZero() {
		return 0, fmt.Errorf("fee quote requires a fee mint")
	}

	query := url.Values{}
	query.Set("domain", domain)
	query.Set("variation", variation)
	query.Set("mint", feeMint.String())
	body, err := c.get(ctx, "/api/fee", query)
	if err != nil {
		return 0, fmt.Errorf("failed to quote fee: %w", err)
	}

	fee, err := strconv.ParseUint(strings.TrimSpace(string(body)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("paymaster returned malformed fee %q: %w", string(body), err)
	}
	return fee, nil
}
