package reconciliation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/santrihub/dinwallet/internal/ledger"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunAll_CleanLedger(t *testing.T) {
	l := ledger.New(ledger.NewMemoryStore())
	ctx := context.Background()

	if _, err := l.Adjust(ctx, "alice", ledger.Dincoin, 10, ledger.ReasonTopup, "tpu_1"); err != nil {
		t.Fatalf("Adjust: %v", err)
	}
	if _, err := l.Adjust(ctx, "alice", ledger.Dircoin, 1000, ledger.ReasonTopup, "tpu_1"); err != nil {
		t.Fatalf("Adjust: %v", err)
	}
	if _, err := l.Adjust(ctx, "bob", ledger.Dircoin, 50, ledger.ReasonTopup, "tpu_2"); err != nil {
		t.Fatalf("Adjust: %v", err)
	}

	svc := NewService(l, testLogger())
	report, err := svc.RunAll(ctx)
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	if !report.Clean {
		t.Errorf("expected clean report, got %+v", report.Discrepancies)
	}
	if report.WalletsChecked != 2 {
		t.Errorf("walletsChecked = %d, want 2", report.WalletsChecked)
	}
}

// driftedSource wraps a real ledger but misreports one journal sum, the way
// a balance mutated outside the ledger would look.
type driftedSource struct {
	LedgerSource
	walletID string
	currency ledger.Currency
	drift    int64
}

func (d *driftedSource) SumByWallet(ctx context.Context, walletID string, currency ledger.Currency) (int64, error) {
	sum, err := d.LedgerSource.SumByWallet(ctx, walletID, currency)
	if walletID == d.walletID && currency == d.currency {
		sum -= d.drift
	}
	return sum, err
}

func TestRunAll_DetectsDiscrepancy(t *testing.T) {
	l := ledger.New(ledger.NewMemoryStore())
	ctx := context.Background()

	if _, err := l.Adjust(ctx, "alice", ledger.Dircoin, 100, ledger.ReasonTopup, "tpu_1"); err != nil {
		t.Fatalf("Adjust: %v", err)
	}

	svc := NewService(&driftedSource{LedgerSource: l, walletID: "alice", currency: ledger.Dircoin, drift: 30}, testLogger())
	report, err := svc.RunAll(ctx)
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	if report.Clean {
		t.Fatal("expected discrepant report")
	}
	if len(report.Discrepancies) != 1 {
		t.Fatalf("discrepancies = %d, want 1", len(report.Discrepancies))
	}
	d := report.Discrepancies[0]
	if d.WalletID != "alice" || d.Currency != "dircoin" {
		t.Errorf("unexpected discrepancy target: %+v", d)
	}
	if d.WalletBalance != 100 || d.JournalSum != 70 || d.Diff != 30 {
		t.Errorf("unexpected discrepancy amounts: %+v", d)
	}
}

type failingSource struct {
	LedgerSource
}

func (f *failingSource) WalletIDs(ctx context.Context) ([]string, error) {
	return nil, errors.New("store down")
}

func TestRunAll_SourceError(t *testing.T) {
	l := ledger.New(ledger.NewMemoryStore())
	svc := NewService(&failingSource{LedgerSource: l}, testLogger())
	if _, err := svc.RunAll(context.Background()); err == nil {
		t.Fatal("expected error from failing source")
	}
}

func TestTimer_RunsAndStops(t *testing.T) {
	l := ledger.New(ledger.NewMemoryStore())
	svc := NewService(l, testLogger())
	timer := NewTimer(svc, 10*time.Millisecond, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go timer.Start(ctx)
	time.Sleep(30 * time.Millisecond)
	if !timer.Running() {
		t.Error("timer should be running")
	}

	timer.Stop()
	time.Sleep(30 * time.Millisecond)
	if timer.Running() {
		t.Error("timer should have stopped")
	}
}
