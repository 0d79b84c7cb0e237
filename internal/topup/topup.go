// Package topup implements the top-up request workflow: users ask for
// wallet credit, admins approve or reject.
//
// Flow:
//  1. User submits a request. A pending row is created with no wallet effect.
//  2. Admin approves. The wallet is credited and the journal written in one
//     atomic unit; a dincoin top-up also cross-credits dircoin at the fixed
//     conversion rate.
//  3. Admin rejects. The status flips and notes are recorded, wallets untouched.
//
// A request leaves pending exactly once. Retried decisions return
// ErrAlreadyProcessed instead of crediting twice.
package topup

import (
	"context"
	"errors"
	"time"
)

// Errors
var (
	ErrTopupNotFound    = errors.New("topup request not found")
	ErrAlreadyProcessed = errors.New("topup request already processed")
	ErrRateLimited      = errors.New("topup submission rate limit exceeded")
	ErrInvalidAmount    = errors.New("invalid topup amount")
)

// Status is the lifecycle state of a top-up request.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// TopupRequest is a user's request to have wallet balance credited after an
// out-of-band transfer. TransferAmount is the fiat-equivalent reference the
// user claims to have sent; it is informational and never enters the ledger.
type TopupRequest struct {
	ID             string     `json:"id"`
	UserID         string     `json:"userId"`
	Currency       string     `json:"currency"`
	Amount         int64      `json:"amount"`
	PaymentMethod  string     `json:"paymentMethod,omitempty"`
	TransferAmount int64      `json:"transferAmount,omitempty"`
	Status         string     `json:"status"`
	ProcessedBy    string     `json:"processedBy,omitempty"`
	AdminNotes     string     `json:"adminNotes,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	ProcessedAt    *time.Time `json:"processedAt,omitempty"`
}

// Pending reports whether the request is still awaiting a decision.
func (t *TopupRequest) Pending() bool {
	return t.Status == string(StatusPending)
}

// Store persists top-up requests.
type Store interface {
	Create(ctx context.Context, req *TopupRequest) error
	Get(ctx context.Context, id string) (*TopupRequest, error)
	// MarkProcessed transitions a request out of pending. Implementations
	// must guard on the current status: if the row is no longer pending the
	// call returns ErrAlreadyProcessed and writes nothing.
	MarkProcessed(ctx context.Context, id string, status Status, adminID, notes string, processedAt time.Time) (*TopupRequest, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*TopupRequest, error)
	ListByStatus(ctx context.Context, status Status, limit int) ([]*TopupRequest, error)
}

// SubmitRequest is the request body for POST /v1/topups.
type SubmitRequest struct {
	UserID         string `json:"userId" binding:"required"`
	Amount         int64  `json:"amount" binding:"required"`
	Currency       string `json:"currency" binding:"required"`
	PaymentMethod  string `json:"paymentMethod"`
	TransferAmount int64  `json:"transferAmount"`
}

// DecisionRequest is the request body for approve/reject endpoints.
type DecisionRequest struct {
	Notes string `json:"notes"`
}
