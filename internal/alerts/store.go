package alerts

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// Store persists alerts. Implementations provide per-record atomicity for
// Insert and SetStatus; no cross-record transactions are required.
type Store interface {
	Insert(ctx context.Context, a Alert) (Alert, error)
	Find(ctx context.Context, f Filter) ([]Alert, error)
	FindByID(ctx context.Context, id string) (Alert, error)
	SetStatus(ctx context.Context, id string, status Status) (Alert, error)
	DeleteAll(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
}

// MemoryStore is an in-process Store for development and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	alerts []Alert
	index  map[string]int
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{index: make(map[string]int)}
}

func (m *MemoryStore) Insert(_ context.Context, a Alert) (Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.index[a.ID]; exists {
		return Alert{}, fmt.Errorf("alert %s already exists", a.ID)
	}
	m.index[a.ID] = len(m.alerts)
	m.alerts = append(m.alerts, a)
	return a, nil
}

func (m *MemoryStore) Find(_ context.Context, f Filter) ([]Alert, error) {
	m.mu.RLock()
	out := make([]Alert, 0, len(m.alerts))
	for i := len(m.alerts) - 1; i >= 0; i-- {
		if f.Matches(m.alerts[i]) {
			out = append(out, m.alerts[i])
		}
	}
	m.mu.RUnlock()

	// Newest insert first on equal timestamps.
	slices.SortStableFunc(out, func(a, b Alert) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
	return out, nil
}

func (m *MemoryStore) FindByID(_ context.Context, id string) (Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.index[id]
	if !ok {
		return Alert{}, ErrNotFound
	}
	return m.alerts[i], nil
}

func (m *MemoryStore) SetStatus(_ context.Context, id string, status Status) (Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.index[id]
	if !ok {
		return Alert{}, ErrNotFound
	}
	m.alerts[i].Status = status
	return m.alerts[i], nil
}

func (m *MemoryStore) DeleteAll(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := int64(len(m.alerts))
	m.alerts = nil
	m.index = make(map[string]int)
	return n, nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }
