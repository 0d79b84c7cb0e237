package purchase

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
)

// PostgresStore persists purchases in PostgreSQL. A partial unique index on
// (buyer_id, item_id) WHERE status = 'completed' backs the duplicate guard
// across instances.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL purchase store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const purchaseColumns = `id, buyer_id, seller_id, item_id, currency, amount, fee,
		status, COALESCE(failure_reason, ''), created_at`

func (s *PostgresStore) Create(ctx context.Context, p *Purchase) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO purchases (id, buyer_id, seller_id, item_id, currency, amount,
			fee, status, failure_reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), $10)`,
		p.ID, p.BuyerID, p.SellerID, p.ItemID, p.Currency, p.Amount,
		p.Fee, p.Status, p.FailureReason, p.CreatedAt,
	)
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
		return ErrAlreadyPurchased
	}
	return err
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Purchase, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+purchaseColumns+`
		FROM purchases WHERE id = $1`, id)
	return scanPurchase(row)
}

func (s *PostgresStore) HasCompleted(ctx context.Context, buyerID, itemID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM purchases
			WHERE buyer_id = $1 AND item_id = $2 AND status = 'completed')`,
		buyerID, itemID,
	).Scan(&exists)
	return exists, err
}

func (s *PostgresStore) ListByBuyer(ctx context.Context, buyerID string, limit int) ([]*Purchase, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+purchaseColumns+`
		FROM purchases WHERE buyer_id = $1
		ORDER BY created_at DESC, id DESC LIMIT $2`, buyerID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanPurchases(rows)
}

func (s *PostgresStore) ListBySeller(ctx context.Context, sellerID string, limit int) ([]*Purchase, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+purchaseColumns+`
		FROM purchases WHERE seller_id = $1
		ORDER BY created_at DESC, id DESC LIMIT $2`, sellerID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanPurchases(rows)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPurchase(row rowScanner) (*Purchase, error) {
	p := &Purchase{}
	err := row.Scan(
		&p.ID, &p.BuyerID, &p.SellerID, &p.ItemID, &p.Currency, &p.Amount,
		&p.Fee, &p.Status, &p.FailureReason, &p.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrPurchaseNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func scanPurchases(rows *sql.Rows) ([]*Purchase, error) {
	var result []*Purchase
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}
