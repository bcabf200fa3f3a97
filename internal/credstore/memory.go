package credstore

import (
	"context"
	"sync"

	"github.com/unidrive/unidrive/internal/item"
)

type memoryKey struct {
	service item.Service
	account string
}

// Memory is an in-process Store backed by a map. It is the default for
// single-process use and for tests.
type Memory struct {
	mu      sync.RWMutex
	records map[memoryKey]Record
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{records: make(map[memoryKey]Record)}
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, service item.Service, accountID string) (*Record, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[memoryKey{service: service, account: accountID}]
	if !ok {
		return nil, false, nil
	}

	// Copy so callers cannot mutate the stored record.
	out := rec

	return &out, true, nil
}

// Put implements Store.
func (m *Memory) Put(_ context.Context, service item.Service, accountID string, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records[memoryKey{service: service, account: accountID}] = rec

	return nil
}

// Clear implements Store.
func (m *Memory) Clear(_ context.Context, service item.Service, accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case service == "":
		clear(m.records)
	case accountID == "":
		for k := range m.records {
			if k.service == service {
				delete(m.records, k)
			}
		}
	default:
		delete(m.records, memoryKey{service: service, account: accountID})
	}

	return nil
}
