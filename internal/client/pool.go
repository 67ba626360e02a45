package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrInsufficientBalance is returned by Deposit when the pooling service
// rejects the amount against the burner's actual balance. The settlement
// loop reacts by re-quoting the true on-chain balance before retrying.
var ErrInsufficientBalance = errors.New("insufficient balance for deposit")

// PoolClient talks to the pooling/settlement service over HTTP JSON. The
// service protocol is opaque to the core: deposits pool value, balances
// report the pooled position, private transfers re-emit value to a target
// address without an on-chain link.
type PoolClient struct {
	baseURL string
	client  *http.Client
}

// NewPoolClient creates a pooling service client.
func NewPoolClient(baseURL string) *PoolClient {
	return &PoolClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type poolRequest struct {
	Address string `json:"address,omitempty"`
	From    string `json:"from,omitempty"`
	To      string `json:"to,omitempty"`
	Amount  uint64 `json:"amount,omitempty"`
}

type poolResponse struct {
	Receipt string `json:"receipt,omitempty"`
	Balance uint64 `json:"balance,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

// Deposit moves lamports from the burner address into the pool.
func (c *PoolClient) Deposit(ctx context.Context, address string, lamports uint64) (string, error) {
	resp, err := c.post(ctx, "/v1/deposit", poolRequest{Address: address, Amount: lamports})
	if err != nil {
		return "", fmt.Errorf("deposit failed: %w", err)
	}
	return resp.Receipt, nil
}

// Balance returns the pooled balance held for the address.
func (c *PoolClient) Balance(ctx context.Context, address string) (uint64, error) {
	url := fmt.Sprintf("%s/v1/balance?address=%s", c.baseURL, address)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}

	httpResp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to get pool balance: %w", err)
	}
	defer httpResp.Body.Close()

	resp, err := decodePoolResponse(httpResp)
	if err != nil {
		return 0, fmt.Errorf("failed to get pool balance: %w", err)
	}
	return resp.Balance, nil
}

// PrivateTransfer moves lamports from one pooled position to the target
// address through the service's private path.
func (c *PoolClient) PrivateTransfer(ctx context.Context, from, to string, lamports uint64) (string, error) {
	resp, err := c.post(ctx, "/v1/transfer", poolRequest{From: from, To: to, Amount: lamports})
	if err != nil {
		return "", fmt.Errorf("private transfer failed: %w", err)
	}
	return resp.Receipt, nil
}

func (c *PoolClient) post(ctx context.Context, path string, body poolRequest) (*poolResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	return decodePoolResponse(httpResp)
}

func decodePoolResponse(httpResp *http.Response) (*poolResponse, error) {
	var resp poolResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		if resp.Code == "insufficient_balance" {
			return nil, ErrInsufficientBalance
		}
		if resp.Error != "" {
			return nil, fmt.Errorf("status %d: %s", httpResp.StatusCode, resp.Error)
		}
		return nil, fmt.Errorf("status %d", httpResp.StatusCode)
	}
	return &resp, nil
}
