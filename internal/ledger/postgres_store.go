package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/lib/pq"

	"github.com/santrihub/dinwallet/internal/idgen"
)

// PostgresStore implements Store with PostgreSQL.
//
// Apply runs each batch in one serializable transaction and commits wallet
// rows with a conditional UPDATE against the version it read. A lost race
// surfaces as ErrVersionConflict either from the zero-row update or from
// the serialization failure at commit; the ledger retries both.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed ledger store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) GetOrCreateWallet(ctx context.Context, userID string) (*Wallet, error) {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO wallets (user_id, dincoin, dircoin, version, created_at, updated_at)
		VALUES ($1, 0, 0, 1, NOW(), NOW())
		ON CONFLICT (user_id) DO NOTHING
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to create wallet: %w", err)
	}
	return p.GetWallet(ctx, userID)
}

func (p *PostgresStore) GetWallet(ctx context.Context, userID string) (*Wallet, error) {
	w := &Wallet{}
	err := p.db.QueryRowContext(ctx, `
		SELECT user_id, dincoin, dircoin, version, created_at, updated_at
		FROM wallets WHERE user_id = $1
	`, userID).Scan(&w.UserID, &w.Dincoin, &w.Dircoin, &w.Version, &w.CreatedAt, &w.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrWalletNotFound
	}
	if err != nil {
		return nil, err
	}
	return w, nil
}

func (p *PostgresStore) Apply(ctx context.Context, relatedID string, adjustments []Adjustment) ([]*Wallet, error) {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	// Touch wallets in sorted order so concurrent batches cannot deadlock.
	userIDs := make([]string, 0, len(adjustments))
	seen := make(map[string]bool)
	for _, adj := range adjustments {
		if !seen[adj.UserID] {
			seen[adj.UserID] = true
			userIDs = append(userIDs, adj.UserID)
		}
	}
	sort.Strings(userIDs)

	wallets := make(map[string]*Wallet, len(userIDs))
	for _, userID := range userIDs {
		w, err := getOrCreateWalletTx(ctx, tx, userID)
		if err != nil {
			return nil, mapPQError(err)
		}
		wallets[userID] = w
	}

	// Stage new balances; a failing adjustment rolls back the whole batch.
	for _, adj := range adjustments {
		w := wallets[adj.UserID]
		next := w.Balance(adj.Currency) + adj.Delta
		if next < 0 {
			return nil, ErrInsufficientFunds
		}
		w.setBalance(adj.Currency, next)
	}

	now := time.Now()
	for _, userID := range userIDs {
		w := wallets[userID]
		res, err := tx.ExecContext(ctx, `
			UPDATE wallets SET
				dincoin    = $2,
				dircoin    = $3,
				version    = version + 1,
				updated_at = $4
			WHERE user_id = $1 AND version = $5
		`, w.UserID, w.Dincoin, w.Dircoin, now, w.Version)
		if err != nil {
			return nil, mapPQError(err)
		}
		rows, _ := res.RowsAffected()
		if rows == 0 {
			return nil, ErrVersionConflict
		}
		w.Version++
		w.UpdatedAt = now
	}

	// Journal every adjustment with the balance immediately after it applied.
	running := make(map[string]map[Currency]int64, len(userIDs))
	for userID, w := range wallets {
		running[userID] = map[Currency]int64{
			Dincoin: w.Dincoin,
			Dircoin: w.Dircoin,
		}
	}
	balanceAfter := make([]int64, len(adjustments))
	for i := len(adjustments) - 1; i >= 0; i-- {
		adj := adjustments[i]
		balanceAfter[i] = running[adj.UserID][adj.Currency]
		running[adj.UserID][adj.Currency] -= adj.Delta
	}
	for i, adj := range adjustments {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO ledger_entries (id, wallet_id, currency, delta, reason, related_id, balance_after, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, idgen.WithPrefix("led_"), adj.UserID, string(adj.Currency), adj.Delta,
			string(adj.Reason), relatedID, balanceAfter[i], now)
		if err != nil {
			return nil, fmt.Errorf("failed to record entry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, mapPQError(err)
	}

	result := make([]*Wallet, 0, len(userIDs))
	for _, userID := range userIDs {
		result = append(result, wallets[userID])
	}
	return result, nil
}

func (p *PostgresStore) SumByWallet(ctx context.Context, walletID string, currency Currency) (int64, error) {
	var sum int64
	err := p.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(delta), 0) FROM ledger_entries
		WHERE wallet_id = $1 AND currency = $2
	`, walletID, string(currency)).Scan(&sum)
	return sum, err
}

func (p *PostgresStore) EntriesByRelated(ctx context.Context, relatedID string) ([]*Entry, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, wallet_id, currency, delta, reason, related_id, balance_after, created_at
		FROM ledger_entries
		WHERE related_id = $1
		ORDER BY created_at ASC, id ASC
	`, relatedID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (p *PostgresStore) ListEntries(ctx context.Context, walletID string, limit int) ([]*Entry, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, wallet_id, currency, delta, reason, related_id, balance_after, created_at
		FROM ledger_entries
		WHERE wallet_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, walletID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (p *PostgresStore) WalletIDs(ctx context.Context) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT user_id FROM wallets ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func getOrCreateWalletTx(ctx context.Context, tx *sql.Tx, userID string) (*Wallet, error) {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO wallets (user_id, dincoin, dircoin, version, created_at, updated_at)
		VALUES ($1, 0, 0, 1, NOW(), NOW())
		ON CONFLICT (user_id) DO NOTHING
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to create wallet: %w", err)
	}

	w := &Wallet{}
	err = tx.QueryRowContext(ctx, `
		SELECT user_id, dincoin, dircoin, version, created_at, updated_at
		FROM wallets WHERE user_id = $1
	`, userID).Scan(&w.UserID, &w.Dincoin, &w.Dircoin, &w.Version, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return w, nil
}

func scanEntries(rows *sql.Rows) ([]*Entry, error) {
	var entries []*Entry
	for rows.Next() {
		e := &Entry{}
		var currency, reason string
		if err := rows.Scan(&e.ID, &e.WalletID, &currency, &e.Delta, &reason, &e.RelatedID, &e.BalanceAfter, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Currency = Currency(currency)
		e.Reason = Reason(reason)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// mapPQError translates postgres failure codes into ledger sentinels.
// 40001 is a serialization failure (retryable); 23514 is a CHECK
// violation, which only the non-negative balance constraints can raise.
func mapPQError(err error) error {
	if pqErr, ok := err.(*pq.Error); ok {
		switch pqErr.Code {
		case "40001":
			return fmt.Errorf("%w: %s", ErrVersionConflict, pqErr.Message)
		case "23514":
			return ErrInsufficientFunds
		}
	}
	return err
}
