package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/santrihub/dinwallet/internal/idgen"
)

// MemoryStore is an in-memory ledger store for demo/development mode.
//
// All mutations run under one mutex, so batches are naturally atomic and
// version conflicts cannot occur here. Versions are still incremented so
// callers observe the same wallet shape as with the postgres store.
type MemoryStore struct {
	wallets map[string]*Wallet
	entries []*Entry
	mu      sync.RWMutex
}

// NewMemoryStore creates a new in-memory ledger store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		wallets: make(map[string]*Wallet),
		entries: make([]*Entry, 0),
	}
}

func (m *MemoryStore) GetOrCreateWallet(ctx context.Context, userID string) (*Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w := m.getOrCreateLocked(userID)
	cp := *w
	return &cp, nil
}

func (m *MemoryStore) GetWallet(ctx context.Context, userID string) (*Wallet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	w, ok := m.wallets[userID]
	if !ok {
		return nil, ErrWalletNotFound
	}
	cp := *w
	return &cp, nil
}

func (m *MemoryStore) Apply(ctx context.Context, relatedID string, adjustments []Adjustment) ([]*Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Stage new balances first so a failing adjustment leaves nothing applied.
	type staged struct {
		wallet  *Wallet
		balance map[Currency]int64
	}
	stagedByUser := make(map[string]*staged)
	order := make([]string, 0, len(adjustments))

	for _, adj := range adjustments {
		st, ok := stagedByUser[adj.UserID]
		if !ok {
			w := m.getOrCreateLocked(adj.UserID)
			st = &staged{
				wallet: w,
				balance: map[Currency]int64{
					Dincoin: w.Dincoin,
					Dircoin: w.Dircoin,
				},
			}
			stagedByUser[adj.UserID] = st
			order = append(order, adj.UserID)
		}
		next := st.balance[adj.Currency] + adj.Delta
		if next < 0 {
			return nil, ErrInsufficientFunds
		}
		st.balance[adj.Currency] = next
	}

	// Commit: bump each touched wallet once and journal every adjustment.
	now := time.Now()
	for _, userID := range order {
		st := stagedByUser[userID]
		st.wallet.Dincoin = st.balance[Dincoin]
		st.wallet.Dircoin = st.balance[Dircoin]
		st.wallet.Version++
		st.wallet.UpdatedAt = now
	}

	running := make(map[string]map[Currency]int64)
	for _, adj := range adjustments {
		w := stagedByUser[adj.UserID].wallet
		if running[adj.UserID] == nil {
			running[adj.UserID] = map[Currency]int64{
				Dincoin: w.Dincoin,
				Dircoin: w.Dircoin,
			}
		}
	}
	// Replay deltas backwards so each entry records the balance immediately
	// after it was applied, not the batch's final balance.
	balanceAfter := make([]int64, len(adjustments))
	for i := len(adjustments) - 1; i >= 0; i-- {
		adj := adjustments[i]
		balanceAfter[i] = running[adj.UserID][adj.Currency]
		running[adj.UserID][adj.Currency] -= adj.Delta
	}
	for i, adj := range adjustments {
		m.entries = append(m.entries, &Entry{
			ID:           idgen.WithPrefix("led_"),
			WalletID:     adj.UserID,
			Currency:     adj.Currency,
			Delta:        adj.Delta,
			Reason:       adj.Reason,
			RelatedID:    relatedID,
			BalanceAfter: balanceAfter[i],
			CreatedAt:    now,
		})
	}

	result := make([]*Wallet, 0, len(order))
	for _, userID := range order {
		cp := *stagedByUser[userID].wallet
		result = append(result, &cp)
	}
	return result, nil
}

func (m *MemoryStore) SumByWallet(ctx context.Context, walletID string, currency Currency) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var sum int64
	for _, e := range m.entries {
		if e.WalletID == walletID && e.Currency == currency {
			sum += e.Delta
		}
	}
	return sum, nil
}

func (m *MemoryStore) EntriesByRelated(ctx context.Context, relatedID string) ([]*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Entry
	for _, e := range m.entries {
		if e.RelatedID == relatedID {
			cp := *e
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (m *MemoryStore) ListEntries(ctx context.Context, walletID string, limit int) ([]*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Entry
	for i := len(m.entries) - 1; i >= 0 && len(result) < limit; i-- {
		if m.entries[i].WalletID == walletID {
			cp := *m.entries[i]
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (m *MemoryStore) WalletIDs(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.wallets))
	for id := range m.wallets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// getOrCreateLocked returns the live wallet for userID, creating an empty
// one on first access. Caller must hold mu.
func (m *MemoryStore) getOrCreateLocked(userID string) *Wallet {
	if w, ok := m.wallets[userID]; ok {
		return w
	}
	now := time.Now()
	w := &Wallet{
		UserID:    userID,
		Dincoin:   0,
		Dircoin:   0,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.wallets[userID] = w
	return w
}
