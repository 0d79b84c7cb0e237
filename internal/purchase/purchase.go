// Package purchase settles item purchases between two users: the buyer is
// debited, the seller is credited net of the platform fee, and the fee lands
// in the platform's wallet. The three legs and their journal entries commit
// as one atomic ledger batch sharing the purchase id.
package purchase

import (
	"context"
	"errors"
	"time"
)

// Errors
var (
	ErrPurchaseNotFound = errors.New("purchase not found")
	ErrSelfPurchase     = errors.New("buyer and seller must differ")
	ErrAlreadyPurchased = errors.New("item already purchased by this buyer")
	ErrRateLimited      = errors.New("purchase rate limit exceeded")
	ErrInvalidAmount    = errors.New("invalid purchase amount")
)

// Status is the terminal state of a settlement attempt.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Purchase records one settlement attempt. Fee is the platform's cut in the
// purchase currency; the seller received Amount - Fee.
type Purchase struct {
	ID            string    `json:"id"`
	BuyerID       string    `json:"buyerId"`
	SellerID      string    `json:"sellerId"`
	ItemID        string    `json:"itemId"`
	Currency      string    `json:"currency"`
	Amount        int64     `json:"amount"`
	Fee           int64     `json:"fee"`
	Status        string    `json:"status"`
	FailureReason string    `json:"failureReason,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Store persists purchases.
type Store interface {
	// Create inserts a purchase row. A completed row that collides with an
	// existing completed purchase for the same (buyer, item) fails with
	// ErrAlreadyPurchased.
	Create(ctx context.Context, p *Purchase) error
	Get(ctx context.Context, id string) (*Purchase, error)
	HasCompleted(ctx context.Context, buyerID, itemID string) (bool, error)
	ListByBuyer(ctx context.Context, buyerID string, limit int) ([]*Purchase, error)
	ListBySeller(ctx context.Context, sellerID string, limit int) ([]*Purchase, error)
}

// SettleRequest is the request body for POST /v1/purchases.
type SettleRequest struct {
	BuyerID  string `json:"buyerId" binding:"required"`
	SellerID string `json:"sellerId" binding:"required"`
	ItemID   string `json:"itemId" binding:"required"`
	Currency string `json:"currency" binding:"required"`
	Amount   int64  `json:"amount" binding:"required"`
}
