// Package reconciliation verifies that every wallet balance matches the sum
// of its journal entries. The journal is the source of truth; a mismatch
// means a balance mutated outside the ledger and is surfaced to operators as
// a fatal integrity alert, never silently corrected.
package reconciliation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/santrihub/dinwallet/internal/ledger"
	"github.com/santrihub/dinwallet/internal/metrics"
)

// LedgerSource is the slice of the ledger the checker reads.
type LedgerSource interface {
	WalletIDs(ctx context.Context) ([]string, error)
	GetBalance(ctx context.Context, userID string) (*ledger.Wallet, error)
	SumByWallet(ctx context.Context, walletID string, currency ledger.Currency) (int64, error)
}

// Discrepancy is one wallet/currency pair whose stored balance disagrees
// with the journal.
type Discrepancy struct {
	WalletID      string `json:"walletId"`
	Currency      string `json:"currency"`
	WalletBalance int64  `json:"walletBalance"`
	JournalSum    int64  `json:"journalSum"`
	Diff          int64  `json:"diff"`
}

// Report is the outcome of one reconciliation sweep.
type Report struct {
	RanAt          time.Time     `json:"ranAt"`
	WalletsChecked int           `json:"walletsChecked"`
	Clean          bool          `json:"clean"`
	Discrepancies  []Discrepancy `json:"discrepancies"`
	Duration       string        `json:"duration"`
}

// Service runs reconciliation sweeps over the ledger.
type Service struct {
	source LedgerSource
	logger *slog.Logger
}

// NewService creates a reconciliation service.
func NewService(source LedgerSource, logger *slog.Logger) *Service {
	return &Service{source: source, logger: logger}
}

// RunAll checks every wallet in both currencies. Discrepancies are reported
// and alerted, not fixed: the operator decides what to do with a broken
// ledger.
func (s *Service) RunAll(ctx context.Context) (*Report, error) {
	start := time.Now()

	ids, err := s.source.WalletIDs(ctx)
	if err != nil {
		metrics.ReconciliationRunsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to list wallets: %w", err)
	}

	report := &Report{
		RanAt:         start,
		Discrepancies: []Discrepancy{},
	}

	for _, id := range ids {
		wallet, err := s.source.GetBalance(ctx, id)
		if err != nil {
			metrics.ReconciliationRunsTotal.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("failed to load wallet %s: %w", id, err)
		}
		report.WalletsChecked++

		for _, currency := range []ledger.Currency{ledger.Dincoin, ledger.Dircoin} {
			sum, err := s.source.SumByWallet(ctx, id, currency)
			if err != nil {
				metrics.ReconciliationRunsTotal.WithLabelValues("error").Inc()
				return nil, fmt.Errorf("failed to sum journal for %s/%s: %w", id, currency, err)
			}
			balance := wallet.Balance(currency)
			if sum != balance {
				d := Discrepancy{
					WalletID:      id,
					Currency:      string(currency),
					WalletBalance: balance,
					JournalSum:    sum,
					Diff:          balance - sum,
				}
				report.Discrepancies = append(report.Discrepancies, d)
				s.logger.Error("LEDGER INTEGRITY: wallet balance does not match journal",
					"walletId", d.WalletID,
					"currency", d.Currency,
					"walletBalance", d.WalletBalance,
					"journalSum", d.JournalSum,
					"diff", d.Diff,
				)
			}
		}
	}

	report.Clean = len(report.Discrepancies) == 0
	report.Duration = time.Since(start).String()

	metrics.ReconciliationDiscrepancies.Set(float64(len(report.Discrepancies)))
	if report.Clean {
		metrics.ReconciliationRunsTotal.WithLabelValues("clean").Inc()
		s.logger.Info("reconciliation clean", "wallets", report.WalletsChecked, "duration", report.Duration)
	} else {
		metrics.ReconciliationRunsTotal.WithLabelValues("discrepant").Inc()
	}

	return report, nil
}
