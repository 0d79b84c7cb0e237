// Package ledger tracks user wallet balances in the platform's two virtual
// currencies and journals every balance change.
//
// Flow:
//  1. An admin approves a top-up request and the wallet is credited.
//  2. A buyer checks out a marketplace item: the buyer is debited, the
//     seller credited net of the platform fee.
//  3. Every credit and debit appends an immutable journal entry.
//  4. Reconciliation replays journal sums against stored balances.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/santrihub/dinwallet/internal/metrics"
	"github.com/santrihub/dinwallet/internal/retry"
)

var (
	ErrInsufficientFunds      = errors.New("ledger: insufficient funds")
	ErrWalletNotFound         = errors.New("ledger: wallet not found")
	ErrInvalidCurrency        = errors.New("ledger: invalid currency")
	ErrInvalidAmount          = errors.New("ledger: invalid amount")
	ErrConcurrentModification = errors.New("ledger: concurrent modification")

	// ErrVersionConflict signals that a wallet changed between read and
	// commit. Stores return it, the Ledger retries; callers only ever see
	// ErrConcurrentModification once the retry budget is spent.
	ErrVersionConflict = errors.New("ledger: wallet version conflict")
)

// Currency is one of the platform's two virtual currencies.
type Currency string

const (
	Dincoin Currency = "dincoin"
	Dircoin Currency = "dircoin"
)

// ParseCurrency validates a currency string from an API boundary.
func ParseCurrency(s string) (Currency, error) {
	switch Currency(s) {
	case Dincoin:
		return Dincoin, nil
	case Dircoin:
		return Dircoin, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidCurrency, s)
}

// Valid reports whether c is a recognized currency.
func (c Currency) Valid() bool {
	return c == Dincoin || c == Dircoin
}

// Reason classifies a journal entry.
type Reason string

const (
	ReasonTopup          Reason = "topup"
	ReasonPurchaseDebit  Reason = "purchase-debit"
	ReasonPurchaseCredit Reason = "purchase-credit"
	ReasonPlatformFee    Reason = "platform-fee"
)

func (r Reason) valid() bool {
	switch r {
	case ReasonTopup, ReasonPurchaseDebit, ReasonPurchaseCredit, ReasonPlatformFee:
		return true
	}
	return false
}

// Wallet holds one user's balance pair. The version column is the optimistic
// concurrency guard: every successful mutation increments it, and a commit
// is only valid against the version it read.
type Wallet struct {
	UserID    string    `json:"userId"`
	Dincoin   int64     `json:"dincoin"`
	Dircoin   int64     `json:"dircoin"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Balance returns the wallet's balance in the given currency.
func (w *Wallet) Balance(c Currency) int64 {
	if c == Dincoin {
		return w.Dincoin
	}
	return w.Dircoin
}

func (w *Wallet) setBalance(c Currency, v int64) {
	if c == Dincoin {
		w.Dincoin = v
	} else {
		w.Dircoin = v
	}
}

// Entry is an immutable journal record of a single balance change.
type Entry struct {
	ID           string    `json:"id"`
	WalletID     string    `json:"walletId"`
	Currency     Currency  `json:"currency"`
	Delta        int64     `json:"delta"`
	Reason       Reason    `json:"reason"`
	RelatedID    string    `json:"relatedId"`
	BalanceAfter int64     `json:"balanceAfter"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Adjustment is one balance change inside an atomic unit.
type Adjustment struct {
	UserID   string
	Currency Currency
	Delta    int64
	Reason   Reason
}

// Store persists wallets and journal entries.
//
// Apply is the atomic unit: it applies every adjustment and appends one
// journal entry per adjustment, all-or-nothing. Wallets are created lazily.
// A would-be-negative balance fails the whole batch with
// ErrInsufficientFunds; a lost-update race fails it with ErrVersionConflict
// so the caller can retry.
type Store interface {
	GetOrCreateWallet(ctx context.Context, userID string) (*Wallet, error)
	GetWallet(ctx context.Context, userID string) (*Wallet, error)
	Apply(ctx context.Context, relatedID string, adjustments []Adjustment) ([]*Wallet, error)
	SumByWallet(ctx context.Context, walletID string, currency Currency) (int64, error)
	EntriesByRelated(ctx context.Context, relatedID string) ([]*Entry, error)
	ListEntries(ctx context.Context, walletID string, limit int) ([]*Entry, error)
	WalletIDs(ctx context.Context) ([]string, error)
}

const (
	// maxApplyAttempts bounds the optimistic-concurrency retry loop.
	maxApplyAttempts = 5
	applyBaseDelay   = 5 * time.Millisecond
)

// Ledger manages wallet balances and the journal.
type Ledger struct {
	store       Store
	maxAttempts int
}

// New creates a new ledger over the given store.
func New(store Store) *Ledger {
	return &Ledger{store: store, maxAttempts: maxApplyAttempts}
}

// GetOrCreate returns the user's wallet, creating an empty one on first access.
func (l *Ledger) GetOrCreate(ctx context.Context, userID string) (*Wallet, error) {
	if userID == "" {
		return nil, ErrWalletNotFound
	}
	return l.store.GetOrCreateWallet(ctx, userID)
}

// GetBalance returns the user's wallet without creating one.
func (l *Ledger) GetBalance(ctx context.Context, userID string) (*Wallet, error) {
	return l.store.GetWallet(ctx, userID)
}

// Adjust atomically applies a single balance change plus its journal entry.
func (l *Ledger) Adjust(ctx context.Context, userID string, currency Currency, delta int64, reason Reason, relatedID string) (*Wallet, error) {
	wallets, err := l.Apply(ctx, relatedID, []Adjustment{{
		UserID:   userID,
		Currency: currency,
		Delta:    delta,
		Reason:   reason,
	}})
	if err != nil {
		return nil, err
	}
	return wallets[0], nil
}

// Apply executes a batch of adjustments as one atomic unit, retrying the
// whole read-compute-commit cycle on version conflicts. After the retry
// budget is spent it fails with ErrConcurrentModification.
func (l *Ledger) Apply(ctx context.Context, relatedID string, adjustments []Adjustment) ([]*Wallet, error) {
	if len(adjustments) == 0 {
		return nil, fmt.Errorf("%w: empty adjustment batch", ErrInvalidAmount)
	}
	for _, adj := range adjustments {
		if adj.UserID == "" {
			return nil, ErrWalletNotFound
		}
		if !adj.Currency.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidCurrency, adj.Currency)
		}
		if adj.Delta == 0 {
			return nil, fmt.Errorf("%w: zero delta", ErrInvalidAmount)
		}
		if !adj.Reason.valid() {
			return nil, fmt.Errorf("%w: unknown reason %q", ErrInvalidAmount, adj.Reason)
		}
	}

	var wallets []*Wallet
	err := retry.Do(ctx, l.maxAttempts, applyBaseDelay, func() error {
		var err error
		wallets, err = l.store.Apply(ctx, relatedID, adjustments)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrVersionConflict) {
			metrics.VersionConflictsTotal.Inc()
			return err
		}
		return retry.Permanent(err)
	})
	if err != nil {
		if errors.Is(err, ErrVersionConflict) {
			return nil, ErrConcurrentModification
		}
		return nil, err
	}

	for _, adj := range adjustments {
		metrics.LedgerAdjustmentsTotal.WithLabelValues(string(adj.Reason)).Inc()
	}
	return wallets, nil
}

// History returns the most recent journal entries for a wallet.
func (l *Ledger) History(ctx context.Context, userID string, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	return l.store.ListEntries(ctx, userID, limit)
}

// EntriesByRelated returns the journal entries tied to a top-up request or
// purchase, for audit lookups.
func (l *Ledger) EntriesByRelated(ctx context.Context, relatedID string) ([]*Entry, error) {
	return l.store.EntriesByRelated(ctx, relatedID)
}

// SumByWallet returns the running journal sum for a wallet and currency.
func (l *Ledger) SumByWallet(ctx context.Context, walletID string, currency Currency) (int64, error) {
	return l.store.SumByWallet(ctx, walletID, currency)
}

// WalletIDs returns every known wallet ID, for reconciliation sweeps.
func (l *Ledger) WalletIDs(ctx context.Context) ([]string, error) {
	return l.store.WalletIDs(ctx)
}
