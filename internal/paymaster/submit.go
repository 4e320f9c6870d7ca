package paymaster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fogo-foundation/fogo-sessions-sub001/internal/logger"
)

// InstructionError is the decoded on-chain rejection of one instruction.
type InstructionError struct {
	InstructionIndex int
	// Detail is either a bare error name or an object form such as
	// {"Custom": 6003}.
	Detail json.RawMessage
}

// CustomCode extracts the program's custom error code, when present.
func (e *InstructionError) CustomCode() (uint32, bool) {
	if e == nil {
		return 0, false
	}
	var obj struct {
		Custom *uint32 `json:"Custom"`
	}
	if err := json.Unmarshal(e.Detail, &obj); err == nil && obj.Custom != nil {
		return *obj.Custom, true
	}
	return 0, false
}

func (e *InstructionError) Error() string {
	if code, ok := e.CustomCode(); ok {
		return fmt.Sprintf("instruction %d failed with custom error %d", e.InstructionIndex, code)
	}
	return fmt.Sprintf("instruction %d failed: %s", e.InstructionIndex, string(e.Detail))
}

// SubmitResult is the paymaster's verdict on a submitted transaction. A
// transaction that landed on chain and failed is a first-class outcome, not a
// Go error: Err carries the decoded instruction failure and Signature is
// still populated.
type SubmitResult struct {
	Signature string
	Err       *InstructionError
}

// Succeeded reports whether the transaction executed without error.
func (r *SubmitResult) Succeeded() bool {
	return r.Err == nil
}

type submitRequest struct {
	Transaction string `json:"transaction"`
}

type submitResponse struct {
	Type      string `json:"type"`
	Signature string `json:"signature"`
	Error     *struct {
		InstructionError []json.RawMessage `json:"InstructionError"`
	} `json:"error"`
}

// Submit posts a base64 wire transaction for sponsoring and submission.
// Never retried: submission is not idempotent.
func (c *Client) Submit(ctx context.Context, domain, variation, wireTransaction string) (*SubmitResult, error) {
	query := url.Values{}
	query.Set("domain", domain)
	if variation != "" {
		query.Set("variation", variation)
	}
	fullURL := c.baseURL + "/api/sponsor_and_send?" + query.Encode()

	payload, err := json.Marshal(submitRequest{Transaction: wireTransaction})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal submit request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fullURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("paymaster submit failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read submit response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			URL:        fullURL,
			Method:     http.MethodPost,
			Body:       string(body),
		}
	}

	var decoded submitResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode submit response: %w", err)
	}

	switch decoded.Type {
	case "success":
		logger.Info("transaction sponsored and sent",
			zap.String("domain", domain),
			zap.String("signature", decoded.Signature))
		return &SubmitResult{Signature: decoded.Signature}, nil

	case "failed":
		result := &SubmitResult{Signature: decoded.Signature}
		if decoded.Error != nil && len(decoded.Error.InstructionError) == 2 {
			var index int
			if err := json.Unmarshal(decoded.Error.InstructionError[0], &index); err != nil {
				return nil, fmt.Errorf("failed to decode instruction error index: %w", err)
			}
			result.Err = &InstructionError{
				InstructionIndex: index,
				Detail:           decoded.Error.InstructionError[1],
			}
		} else {
			return nil, fmt.Errorf("paymaster reported failure without a decodable error: %s", string(body))
		}
		logger.Warn("transaction failed on chain",
			zap.String("domain", domain),
			zap.String("signature", decoded.Signature),
			zap.String("error", result.Err.Error()))
		return result, nil

	default:
		return nil, fmt.Errorf("paymaster returned unknown response type %q", decoded.Type)
	}
}
