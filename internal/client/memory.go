package client

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"veilpay/internal/model"
)

// MemoryBlobStore is an in-process blob store used in development and in
// tests. It mirrors the remote store's contract, including opaque ids.
type MemoryBlobStore struct {
	mu      sync.Mutex
	records map[string]model.RemoteRecord
}

// NewMemoryBlobStore returns an empty in-memory store.
func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{records: make(map[string]model.RemoteRecord)}
}

// ListAll returns copies of every stored record.
func (s *MemoryBlobStore) ListAll(ctx context.Context) ([]model.RemoteRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.RemoteRecord, 0, len(s.records))
	for _, rec := range s.records {
		blob := make([]byte, len(rec.Blob))
		copy(blob, rec.Blob)
		out = append(out, model.RemoteRecord{ID: rec.ID, Blob: blob, CreatedAt: rec.CreatedAt})
	}
	return out, nil
}

// Create stores a copy of the blob under a fresh opaque id.
func (s *MemoryBlobStore) Create(ctx context.Context, blob []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make([]byte, len(blob))
	copy(stored, blob)

	id := uuid.NewString()
	s.records[id] = model.RemoteRecord{ID: id, Blob: stored, CreatedAt: time.Now().UTC()}
	return id, nil
}

// Delete removes the record, reporting whether it existed.
func (s *MemoryBlobStore) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; !ok {
		return false, nil
	}
	delete(s.records, id)
	return true, nil
}

// Len reports the number of stored records.
func (s *MemoryBlobStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
