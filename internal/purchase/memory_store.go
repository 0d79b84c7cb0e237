package purchase

import (
	"context"
	"sort"
	"sync"
)

// Compile-time assertion.
var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-memory Store implementation for demo/testing.
type MemoryStore struct {
	purchases map[string]*Purchase
	mu        sync.RWMutex
}

// NewMemoryStore creates a new in-memory purchase store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{purchases: make(map[string]*Purchase)}
}

func (m *MemoryStore) Create(_ context.Context, p *Purchase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.Status == string(StatusCompleted) {
		for _, existing := range m.purchases {
			if existing.Status == string(StatusCompleted) &&
				existing.BuyerID == p.BuyerID && existing.ItemID == p.ItemID {
				return ErrAlreadyPurchased
			}
		}
	}
	cp := *p
	m.purchases[p.ID] = &cp
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Purchase, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.purchases[id]
	if !ok {
		return nil, ErrPurchaseNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryStore) HasCompleted(_ context.Context, buyerID, itemID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.purchases {
		if p.Status == string(StatusCompleted) && p.BuyerID == buyerID && p.ItemID == itemID {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) ListByBuyer(_ context.Context, buyerID string, limit int) ([]*Purchase, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.filterLocked(limit, func(p *Purchase) bool { return p.BuyerID == buyerID }), nil
}

func (m *MemoryStore) ListBySeller(_ context.Context, sellerID string, limit int) ([]*Purchase, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.filterLocked(limit, func(p *Purchase) bool { return p.SellerID == sellerID }), nil
}

func (m *MemoryStore) filterLocked(limit int, match func(*Purchase) bool) []*Purchase {
	var result []*Purchase
	for _, p := range m.purchases {
		if match(p) {
			cp := *p
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID > result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}
