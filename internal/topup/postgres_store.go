package topup

import (
	"context"
	"database/sql"
	"time"
)

// PostgresStore persists top-up requests in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL top-up store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const topupColumns = `id, user_id, currency, amount, payment_method, transfer_amount,
		status, COALESCE(processed_by, ''), COALESCE(admin_notes, ''), created_at, processed_at`

func (s *PostgresStore) Create(ctx context.Context, req *TopupRequest) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO topup_requests (id, user_id, currency, amount, payment_method,
			transfer_amount, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		req.ID, req.UserID, req.Currency, req.Amount, req.PaymentMethod,
		req.TransferAmount, req.Status, req.CreatedAt,
	)
	return err
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*TopupRequest, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+topupColumns+`
		FROM topup_requests WHERE id = $1`, id)
	return scanTopup(row)
}

// MarkProcessed guards the transition in SQL: the UPDATE only matches a row
// that is still pending, so a lost race shows up as zero rows affected.
func (s *PostgresStore) MarkProcessed(ctx context.Context, id string, status Status, adminID, notes string, processedAt time.Time) (*TopupRequest, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE topup_requests
		SET status = $2, processed_by = $3, admin_notes = $4, processed_at = $5
		WHERE id = $1 AND status = 'pending'
		RETURNING `+topupColumns, id, string(status), adminID, notes, processedAt)

	req, err := scanTopup(row)
	if err == ErrTopupNotFound {
		// Either the row does not exist or it was already decided.
		if _, getErr := s.Get(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrAlreadyProcessed
	}
	return req, err
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID string, limit int) ([]*TopupRequest, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+topupColumns+`
		FROM topup_requests WHERE user_id = $1
		ORDER BY created_at DESC, id DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanTopups(rows)
}

func (s *PostgresStore) ListByStatus(ctx context.Context, status Status, limit int) ([]*TopupRequest, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+topupColumns+`
		FROM topup_requests WHERE status = $1
		ORDER BY created_at ASC, id ASC LIMIT $2`, string(status), limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanTopups(rows)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTopup(row rowScanner) (*TopupRequest, error) {
	req := &TopupRequest{}
	var processedAt sql.NullTime
	err := row.Scan(
		&req.ID, &req.UserID, &req.Currency, &req.Amount, &req.PaymentMethod,
		&req.TransferAmount, &req.Status, &req.ProcessedBy, &req.AdminNotes,
		&req.CreatedAt, &processedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrTopupNotFound
	}
	if err != nil {
		return nil, err
	}
	if processedAt.Valid {
		req.ProcessedAt = &processedAt.Time
	}
	return req, nil
}

func scanTopups(rows *sql.Rows) ([]*TopupRequest, error) {
	var result []*TopupRequest
	for rows.Next() {
		req, err := scanTopup(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, req)
	}
	return result, rows.Err()
}
