package purchase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/santrihub/dinwallet/internal/idgen"
	"github.com/santrihub/dinwallet/internal/ledger"
	"github.com/santrihub/dinwallet/internal/metrics"
	"github.com/santrihub/dinwallet/internal/ratelimit"
	"github.com/santrihub/dinwallet/internal/realtime"
	"github.com/santrihub/dinwallet/internal/traces"
	"go.opentelemetry.io/otel/codes"
)

// Broadcaster pushes wallet events to the realtime feed.
type Broadcaster interface {
	BroadcastEvent(eventType realtime.EventType, data map[string]interface{})
}

// Service implements purchase settlement.
type Service struct {
	store   Store
	ledger  *ledger.Ledger
	limiter *ratelimit.KeyedLimiter
	hub     Broadcaster
	locks   sync.Map // per (buyer, item) locks

	feeBps            int64
	platformAccountID string
	maxAmount         int64
}

// NewService creates a purchase service. limiter and hub may be nil.
func NewService(store Store, l *ledger.Ledger, limiter *ratelimit.KeyedLimiter, hub Broadcaster, feeBps int64, platformAccountID string, maxAmount int64) *Service {
	return &Service{
		store:             store,
		ledger:            l,
		limiter:           limiter,
		hub:               hub,
		feeBps:            feeBps,
		platformAccountID: platformAccountID,
		maxAmount:         maxAmount,
	}
}

func (s *Service) buyerItemLock(buyerID, itemID string) *sync.Mutex {
	v, _ := s.locks.LoadOrStore(buyerID+"\x00"+itemID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// Fee returns the platform's cut for an amount: floor(amount * bps / 10000).
func (s *Service) Fee(amount int64) int64 {
	return amount * s.feeBps / 10000
}

// Settle executes a purchase: debit the buyer, credit the seller net of the
// platform fee, credit the fee wallet, journal all three legs under the
// purchase id, then record the completed purchase. The ledger batch is
// atomic; an insufficient-funds buyer leaves every wallet untouched.
func (s *Service) Settle(ctx context.Context, req SettleRequest) (*Purchase, error) {
	ctx, span := traces.StartSpan(ctx, "purchase.Settle",
		traces.UserID(req.BuyerID), traces.ItemID(req.ItemID), traces.Amount(req.Amount))
	defer span.End()

	currency, err := ledger.ParseCurrency(req.Currency)
	if err != nil {
		return nil, err
	}
	if req.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidAmount)
	}
	if s.maxAmount > 0 && req.Amount > s.maxAmount {
		return nil, fmt.Errorf("%w: amount exceeds maximum %d", ErrInvalidAmount, s.maxAmount)
	}
	if req.BuyerID == req.SellerID {
		return nil, ErrSelfPurchase
	}

	if err := s.limiter.Allow(ctx, req.BuyerID); err != nil {
		metrics.RateLimitRejectionsTotal.WithLabelValues("purchase").Inc()
		return nil, fmt.Errorf("%w: too many purchases for buyer %s", ErrRateLimited, req.BuyerID)
	}

	mu := s.buyerItemLock(req.BuyerID, req.ItemID)
	mu.Lock()
	defer mu.Unlock()

	done, err := s.store.HasCompleted(ctx, req.BuyerID, req.ItemID)
	if err != nil {
		return nil, fmt.Errorf("failed to check purchase history: %w", err)
	}
	if done {
		return nil, ErrAlreadyPurchased
	}

	fee := s.Fee(req.Amount)
	sellerNet := req.Amount - fee
	purchaseID := idgen.WithPrefix("pur_")

	adjustments := []ledger.Adjustment{{
		UserID:   req.BuyerID,
		Currency: currency,
		Delta:    -req.Amount,
		Reason:   ledger.ReasonPurchaseDebit,
	}}
	if sellerNet > 0 {
		adjustments = append(adjustments, ledger.Adjustment{
			UserID:   req.SellerID,
			Currency: currency,
			Delta:    sellerNet,
			Reason:   ledger.ReasonPurchaseCredit,
		})
	}
	if fee > 0 {
		adjustments = append(adjustments, ledger.Adjustment{
			UserID:   s.platformAccountID,
			Currency: currency,
			Delta:    fee,
			Reason:   ledger.ReasonPlatformFee,
		})
	}

	if _, err := s.ledger.Apply(ctx, purchaseID, adjustments); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "settlement failed")
		s.recordFailed(ctx, purchaseID, req, currency, fee, err)
		metrics.PurchasesTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("settlement failed: %w", err)
	}

	now := time.Now()
	purchase := &Purchase{
		ID:        purchaseID,
		BuyerID:   req.BuyerID,
		SellerID:  req.SellerID,
		ItemID:    req.ItemID,
		Currency:  string(currency),
		Amount:    req.Amount,
		Fee:       fee,
		Status:    string(StatusCompleted),
		CreatedAt: now,
	}
	if err := s.store.Create(ctx, purchase); err != nil {
		// Money already moved. Reverse all three legs before surfacing the
		// failure so the journal and balances stay consistent.
		//
		// The legs and the purchase row commit separately, so a crash
		// between them leaves moved money with no purchase record.
		// Recovery: every leg carries the purchase id as related_id, so
		// on a CRITICAL log (or after a crash) operators check
		// EntriesByRelated(purchaseID); legs present with no completed
		// row means reverse manually before the buyer retries.
		for i := range adjustments {
			adjustments[i].Delta = -adjustments[i].Delta
		}
		if _, revErr := s.ledger.Apply(ctx, purchaseID, adjustments); revErr != nil {
			log.Printf("CRITICAL: purchase %s settled but row insert failed AND reversal failed: %v (insert err: %v)", purchaseID, revErr, err)
		} else {
			log.Printf("CRITICAL: purchase %s settled but row insert failed, legs reversed: %v", purchaseID, err)
		}
		metrics.PurchasesTotal.WithLabelValues("failed").Inc()
		if errors.Is(err, ErrAlreadyPurchased) {
			return nil, ErrAlreadyPurchased
		}
		return nil, fmt.Errorf("failed to record purchase: %w", err)
	}

	metrics.PurchasesTotal.WithLabelValues("completed").Inc()
	if s.hub != nil {
		s.hub.BroadcastEvent(realtime.EventPurchaseCompleted, map[string]interface{}{
			"purchaseId": purchase.ID,
			"buyerId":    purchase.BuyerID,
			"sellerId":   purchase.SellerID,
			"itemId":     purchase.ItemID,
			"currency":   purchase.Currency,
			"amount":     purchase.Amount,
			"fee":        purchase.Fee,
		})
	}

	return purchase, nil
}

// recordFailed writes a failed purchase row for the audit trail. Best effort:
// the settlement error is what the caller sees either way.
func (s *Service) recordFailed(ctx context.Context, purchaseID string, req SettleRequest, currency ledger.Currency, fee int64, cause error) {
	failed := &Purchase{
		ID:            purchaseID,
		BuyerID:       req.BuyerID,
		SellerID:      req.SellerID,
		ItemID:        req.ItemID,
		Currency:      string(currency),
		Amount:        req.Amount,
		Fee:           fee,
		Status:        string(StatusFailed),
		FailureReason: cause.Error(),
		CreatedAt:     time.Now(),
	}
	if err := s.store.Create(ctx, failed); err != nil {
		log.Printf("failed to record failed purchase %s: %v", purchaseID, err)
	}
}

// Get returns a single purchase.
func (s *Service) Get(ctx context.Context, id string) (*Purchase, error) {
	return s.store.Get(ctx, id)
}

// ListByBuyer returns a buyer's purchases, newest first.
func (s *Service) ListByBuyer(ctx context.Context, buyerID string, limit int) ([]*Purchase, error) {
	return s.store.ListByBuyer(ctx, buyerID, limit)
}

// ListBySeller returns a seller's sales, newest first.
func (s *Service) ListBySeller(ctx context.Context, sellerID string, limit int) ([]*Purchase, error) {
	return s.store.ListBySeller(ctx, sellerID, limit)
}
