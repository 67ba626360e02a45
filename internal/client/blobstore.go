package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"veilpay/internal/model"
)

// BlobClient talks to the remote blob store over HTTP JSON. The store is
// untrusted for confidentiality: every blob it sees is client-side
// encrypted, and record ids carry no semantic meaning. It is trusted for
// availability only.
type BlobClient struct {
	baseURL string
	client  *http.Client
}

// NewBlobClient creates a remote blob store client.
func NewBlobClient(baseURL string) *BlobClient {
	return &BlobClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// ListAll fetches every stored record.
func (c *BlobClient) ListAll(ctx context.Context) ([]model.RemoteRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/records", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to list records: status %d", resp.StatusCode)
	}

	var records []model.RemoteRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("failed to decode records: %w", err)
	}
	return records, nil
}

// Create uploads an encrypted blob and returns the backend-assigned id.
func (c *BlobClient) Create(ctx context.Context, blob []byte) (string, error) {
	payload, err := json.Marshal(model.RemoteRecord{Blob: blob})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/records", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to create record: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("failed to create record: status %d", resp.StatusCode)
	}

	var created model.RemoteRecord
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("failed to decode created record: %w", err)
	}
	return created.ID, nil
}

// Delete removes a record by id, reporting whether it existed.
func (c *BlobClient) Delete(ctx context.Context, id string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/v1/records/"+id, nil)
	if err != nil {
		return false, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to delete record: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("failed to delete record: status %d", resp.StatusCode)
	}
}
