package topup

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Compile-time assertion.
var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-memory Store implementation for demo/testing.
type MemoryStore struct {
	requests map[string]*TopupRequest
	mu       sync.RWMutex
}

// NewMemoryStore creates a new in-memory top-up store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{requests: make(map[string]*TopupRequest)}
}

func (m *MemoryStore) Create(_ context.Context, req *TopupRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *req
	m.requests[req.ID] = &cp
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*TopupRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.requests[id]
	if !ok {
		return nil, ErrTopupNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) MarkProcessed(_ context.Context, id string, status Status, adminID, notes string, processedAt time.Time) (*TopupRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return nil, ErrTopupNotFound
	}
	if r.Status != string(StatusPending) {
		return nil, ErrAlreadyProcessed
	}
	r.Status = string(status)
	r.ProcessedBy = adminID
	r.AdminNotes = notes
	at := processedAt
	r.ProcessedAt = &at
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) ListByUser(_ context.Context, userID string, limit int) ([]*TopupRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*TopupRequest
	for _, r := range m.requests {
		if r.UserID == userID {
			cp := *r
			result = append(result, &cp)
		}
	}
	sortNewestFirst(result)
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MemoryStore) ListByStatus(_ context.Context, status Status, limit int) ([]*TopupRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*TopupRequest
	for _, r := range m.requests {
		if r.Status == string(status) {
			cp := *r
			result = append(result, &cp)
		}
	}
	// Queue order: oldest decisions first.
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func sortNewestFirst(reqs []*TopupRequest) {
	sort.Slice(reqs, func(i, j int) bool {
		if reqs[i].CreatedAt.Equal(reqs[j].CreatedAt) {
			return reqs[i].ID > reqs[j].ID
		}
		return reqs[i].CreatedAt.After(reqs[j].CreatedAt)
	})
}
