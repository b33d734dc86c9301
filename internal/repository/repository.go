// Package repository persists sealed (already encrypted) account state.
// Nothing in this package ever sees plaintext.
package repository

import (
	"context"
	"sync"
)

// Slots of the account state
const (
	SlotSnapshot     = "snapshot"
	SlotLoanRequests = "loan_requests"
	SlotRepayments   = "repayments"
)

// SealedStore stores opaque blobs keyed by account and slot
type SealedStore interface {
	Put(ctx context.Context, account, slot string, blob []byte) error
	// Get returns ok == false when nothing was stored for the slot
	Get(ctx context.Context, account, slot string) (blob []byte, ok bool, err error)
}

// MemoryStore is an in-process SealedStore
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (m *MemoryStore) Put(_ context.Context, account, slot string, blob []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[account+"/"+slot] = append([]byte(nil), blob...)
	return nil
}

func (m *MemoryStore) Get(_ context.Context, account, slot string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	blob, ok := m.data[account+"/"+slot]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), blob...), true, nil
}
