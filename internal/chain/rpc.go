package chain

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/fogo-foundation/fogo-sessions-sub001/internal/logger"
)

// ErrAccountNotFound is returned when the queried account does not exist.
var ErrAccountNotFound = errors.New("account not found")

// Reader reads chain state needed by the session protocol: individual
// accounts and the latest blockhash.
type Reader interface {
	GetAccountInfo(ctx context.Context, address PublicKey) ([]byte, error)
	GetLatestBlockhash(ctx context.Context) (Hash, error)
}

// RPCClient is a JSON-RPC Reader over HTTP.
type RPCClient struct {
	endpoint   string
	httpClient *http.Client
	requestID  atomic.Uint64
	maxRetries uint64
}

// RPCOption customizes an RPCClient.
type RPCOption func(*RPCClient)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) RPCOption {
	return func(c *RPCClient) {
		c.httpClient = hc
	}
}

// WithMaxRetries sets how many times transient transport failures are retried.
func WithMaxRetries(n uint64) RPCOption {
	return func(c *RPCClient) {
		c.maxRetries = n
	}
}

// NewRPCClient creates a Reader for the given JSON-RPC endpoint.
func NewRPCClient(endpoint string, options ...RPCOption) *RPCClient {
	client := &RPCClient{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		maxRetries: 3,
	}
	for _, option := range options {
		option(client)
	}
	return client
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// call performs one JSON-RPC request, retrying transient transport failures.
// Reads are idempotent, so retrying is safe here; submission paths never go
// through this client.
func (c *RPCClient) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal rpc request: %w", err)
	}

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create rpc request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("rpc request failed: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read rpc response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			err := fmt.Errorf("rpc endpoint returned status %d: %s", resp.StatusCode, string(body))
			if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
				return err
			}
			return backoff.Permanent(err)
		}

		var envelope rpcResponse
		if err := json.Unmarshal(body, &envelope); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode rpc response: %w", err))
		}
		if envelope.Error != nil {
			return backoff.Permanent(fmt.Errorf("rpc error %d: %s", envelope.Error.Code, envelope.Error.Message))
		}
		if result != nil {
			if err := json.Unmarshal(envelope.Result, result); err != nil {
				return backoff.Permanent(fmt.Errorf("failed to decode %s result: %w", method, err))
			}
		}
		return nil
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 100 * time.Millisecond
	expBackoff.MaxInterval = 2 * time.Second
	expBackoff.MaxElapsedTime = 15 * time.Second

	err = backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(expBackoff, c.maxRetries), ctx))
	if err != nil {
		logger.Warn("rpc call failed",
			zap.String("method", method),
			zap.Error(err))
	}
	return err
}

type accountInfoResult struct {
	Value *struct {
		Data []string `json:"data"`
	} `json:"value"`
}

// GetAccountInfo fetches the raw data of address. Returns ErrAccountNotFound
// when the account does not exist.
func (c *RPCClient) GetAccountInfo(ctx context.Context, address PublicKey) ([]byte, error) {
	var result accountInfoResult
	params := []interface{}{
		address.String(),
		map[string]string{"encoding": "base64", "commitment": "confirmed"},
	}
	if err := c.call(ctx, "getAccountInfo", params, &result); err != nil {
		return nil, err
	}
	if result.Value == nil {
		return nil, fmt.Errorf("account %s: %w", address, ErrAccountNotFound)
	}
	if len(result.Value.Data) < 1 {
		return nil, fmt.Errorf("account %s returned no data", address)
	}
	data, err := base64.StdEncoding.DecodeString(result.Value.Data[0])
	if err != nil {
		return nil, fmt.Errorf("failed to decode account %s data: %w", address, err)
	}
	return data, nil
}

type latestBlockhashResult struct {
	Value struct {
		Blockhash string `json:"blockhash"`
	} `json:"value"`
}

// GetLatestBlockhash fetches the most recent blockhash.
func (c *RPCClient) GetLatestBlockhash(ctx context.Context) (Hash, error) {
	var result latestBlockhashResult
	params := []interface{}{map[string]string{"commitment": "confirmed"}}
	if err := c.call(ctx, "getLatestBlockhash", params, &result); err != nil {
		return Hash{}, err
	}
	hash, err := HashFromBase58(result.Value.Blockhash)
	if err != nil {
		return Hash{}, fmt.Errorf("rpc returned malformed blockhash: %w", err)
	}
	return hash, nil
}

var _ Reader = (*RPCClient)(nil)
