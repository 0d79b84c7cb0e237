//go:build integration

package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/santrihub/dinwallet/internal/testutil"
)

func setupPostgres(t *testing.T) (*PostgresStore, func()) {
	t.Helper()
	db, cleanup := testutil.PGTest(t)
	return NewPostgresStore(db), cleanup
}

func TestPostgres_GetOrCreateWallet(t *testing.T) {
	store, cleanup := setupPostgres(t)
	defer cleanup()

	ctx := context.Background()

	w, err := store.GetOrCreateWallet(ctx, "alice")
	if err != nil {
		t.Fatalf("GetOrCreateWallet failed: %v", err)
	}
	if w.Dincoin != 0 || w.Dircoin != 0 || w.Version != 1 {
		t.Errorf("Unexpected fresh wallet: %+v", w)
	}

	// Idempotent
	again, err := store.GetOrCreateWallet(ctx, "alice")
	if err != nil {
		t.Fatalf("GetOrCreateWallet failed: %v", err)
	}
	if again.Version != 1 {
		t.Errorf("Expected version 1, got %d", again.Version)
	}
}

func TestPostgres_GetWalletNotFound(t *testing.T) {
	store, cleanup := setupPostgres(t)
	defer cleanup()

	_, err := store.GetWallet(context.Background(), "nobody")
	if !errors.Is(err, ErrWalletNotFound) {
		t.Errorf("Expected ErrWalletNotFound, got %v", err)
	}
}

func TestPostgres_ApplyCreditAndDebit(t *testing.T) {
	store, cleanup := setupPostgres(t)
	defer cleanup()

	ctx := context.Background()

	if _, err := store.Apply(ctx, "tpu_1", []Adjustment{
		{UserID: "alice", Currency: Dircoin, Delta: 100, Reason: ReasonTopup},
	}); err != nil {
		t.Fatalf("Credit failed: %v", err)
	}

	wallets, err := store.Apply(ctx, "pur_1", []Adjustment{
		{UserID: "alice", Currency: Dircoin, Delta: -30, Reason: ReasonPurchaseDebit},
	})
	if err != nil {
		t.Fatalf("Debit failed: %v", err)
	}
	if wallets[0].Dircoin != 70 {
		t.Errorf("Expected dircoin 70, got %d", wallets[0].Dircoin)
	}
	if wallets[0].Version != 3 {
		t.Errorf("Expected version 3 after two mutations, got %d", wallets[0].Version)
	}
}

func TestPostgres_ApplyOverdraft(t *testing.T) {
	store, cleanup := setupPostgres(t)
	defer cleanup()

	ctx := context.Background()

	store.Apply(ctx, "tpu_1", []Adjustment{
		{UserID: "alice", Currency: Dircoin, Delta: 50, Reason: ReasonTopup},
	})

	_, err := store.Apply(ctx, "pur_1", []Adjustment{
		{UserID: "alice", Currency: Dircoin, Delta: -80, Reason: ReasonPurchaseDebit},
		{UserID: "bob", Currency: Dircoin, Delta: 80, Reason: ReasonPurchaseCredit},
	})
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("Expected ErrInsufficientFunds, got %v", err)
	}

	// Nothing landed
	w, _ := store.GetWallet(ctx, "alice")
	if w.Dircoin != 50 {
		t.Errorf("Balance changed by failed batch: %d", w.Dircoin)
	}
	entries, _ := store.EntriesByRelated(ctx, "pur_1")
	if len(entries) != 0 {
		t.Errorf("Expected no entries for failed batch, got %d", len(entries))
	}
}

func TestPostgres_ApplyMultiWallet(t *testing.T) {
	store, cleanup := setupPostgres(t)
	defer cleanup()

	ctx := context.Background()

	store.Apply(ctx, "tpu_1", []Adjustment{
		{UserID: "buyer", Currency: Dircoin, Delta: 1000, Reason: ReasonTopup},
	})

	wallets, err := store.Apply(ctx, "pur_1", []Adjustment{
		{UserID: "buyer", Currency: Dircoin, Delta: -200, Reason: ReasonPurchaseDebit},
		{UserID: "seller", Currency: Dircoin, Delta: 195, Reason: ReasonPurchaseCredit},
		{UserID: "platform", Currency: Dircoin, Delta: 5, Reason: ReasonPlatformFee},
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if len(wallets) != 3 {
		t.Fatalf("Expected 3 wallets, got %d", len(wallets))
	}

	entries, err := store.EntriesByRelated(ctx, "pur_1")
	if err != nil {
		t.Fatalf("EntriesByRelated failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(entries))
	}

	seller, _ := store.GetWallet(ctx, "seller")
	if seller.Dircoin != 195 {
		t.Errorf("Expected seller dircoin 195, got %d", seller.Dircoin)
	}
}

func TestPostgres_SumByWallet(t *testing.T) {
	store, cleanup := setupPostgres(t)
	defer cleanup()

	ctx := context.Background()

	store.Apply(ctx, "tpu_1", []Adjustment{
		{UserID: "alice", Currency: Dircoin, Delta: 100, Reason: ReasonTopup},
	})
	store.Apply(ctx, "pur_1", []Adjustment{
		{UserID: "alice", Currency: Dircoin, Delta: -40, Reason: ReasonPurchaseDebit},
	})

	sum, err := store.SumByWallet(ctx, "alice", Dircoin)
	if err != nil {
		t.Fatalf("SumByWallet failed: %v", err)
	}
	if sum != 60 {
		t.Errorf("Expected sum 60, got %d", sum)
	}

	w, _ := store.GetWallet(ctx, "alice")
	if sum != w.Dircoin {
		t.Errorf("Journal sum %d disagrees with balance %d", sum, w.Dircoin)
	}
}

func TestPostgres_ListEntries(t *testing.T) {
	store, cleanup := setupPostgres(t)
	defer cleanup()

	ctx := context.Background()

	store.Apply(ctx, "tpu_1", []Adjustment{
		{UserID: "alice", Currency: Dircoin, Delta: 100, Reason: ReasonTopup},
	})
	store.Apply(ctx, "pur_1", []Adjustment{
		{UserID: "alice", Currency: Dircoin, Delta: -10, Reason: ReasonPurchaseDebit},
	})

	entries, err := store.ListEntries(ctx, "alice", 10)
	if err != nil {
		t.Fatalf("ListEntries failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	// Most recent first
	if entries[0].Reason != ReasonPurchaseDebit {
		t.Errorf("Expected newest entry first, got reason %s", entries[0].Reason)
	}
	if entries[0].BalanceAfter != 90 {
		t.Errorf("Expected balanceAfter 90, got %d", entries[0].BalanceAfter)
	}
}

func TestPostgres_ConcurrentAdjustments(t *testing.T) {
	store, cleanup := setupPostgres(t)
	defer cleanup()

	// The ledger retries version conflicts, so all credits must land.
	l := New(store)
	ctx := context.Background()

	const workers = 10
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.Adjust(ctx, "alice", Dircoin, 1, ReasonTopup, "tpu_c"); err != nil {
				t.Errorf("Adjust failed: %v", err)
			}
		}()
	}
	wg.Wait()

	w, err := store.GetWallet(ctx, "alice")
	if err != nil {
		t.Fatalf("GetWallet failed: %v", err)
	}
	if w.Dircoin != workers {
		t.Errorf("Expected dircoin %d, got %d", workers, w.Dircoin)
	}

	sum, _ := store.SumByWallet(ctx, "alice", Dircoin)
	if sum != w.Dircoin {
		t.Errorf("Journal sum %d disagrees with balance %d", sum, w.Dircoin)
	}
}

func TestPostgres_ConcurrentDebits_NoOverdraft(t *testing.T) {
	store, cleanup := setupPostgres(t)
	defer cleanup()

	l := New(store)
	ctx := context.Background()

	if _, err := l.Adjust(ctx, "alice", Dircoin, 5, ReasonTopup, "tpu_1"); err != nil {
		t.Fatalf("Adjust failed: %v", err)
	}

	// 10 concurrent debits of 1 each against a balance of 5
	var wg sync.WaitGroup
	var mu sync.Mutex
	var successes int
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Adjust(ctx, "alice", Dircoin, -1, ReasonPurchaseDebit, "pur_c")
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			} else if !errors.Is(err, ErrInsufficientFunds) && !errors.Is(err, ErrConcurrentModification) {
				t.Errorf("Unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	w, _ := store.GetWallet(ctx, "alice")
	if w.Dircoin < 0 {
		t.Fatalf("Overdraft: balance %d", w.Dircoin)
	}
	if int64(successes) != 5-w.Dircoin {
		t.Errorf("Successes %d inconsistent with remaining balance %d", successes, w.Dircoin)
	}
}
