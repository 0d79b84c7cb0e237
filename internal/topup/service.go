package topup

import (
	"context"
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

// Broadcaster pushes wallet events to the realtime feed. Nil-safe in Hub form.
type Broadcaster interface {
	BroadcastEvent(eventType realtime.EventType, data map[string]interface{})
}

// Service implements the top-up request workflow.
type Service struct {
	store   Store
	ledger  *ledger.Ledger
	limiter *ratelimit.KeyedLimiter
	hub     Broadcaster
	locks   sync.Map // per-request ID locks

	// ConversionRate is the dircoin credited per dincoin on an approved
	// dincoin top-up.
	conversionRate int64
	maxAmount      int64
}

// NewService creates a top-up service. limiter and hub may be nil; a nil
// limiter disables submission rate limiting.
func NewService(store Store, l *ledger.Ledger, limiter *ratelimit.KeyedLimiter, hub Broadcaster, conversionRate, maxAmount int64) *Service {
	return &Service{
		store:          store,
		ledger:         l,
		limiter:        limiter,
		hub:            hub,
		conversionRate: conversionRate,
		maxAmount:      maxAmount,
	}
}

func (s *Service) requestLock(id string) *sync.Mutex {
	v, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	return v.(*sync.Mutex)
}

func (s *Service) broadcast(eventType realtime.EventType, data map[string]interface{}) {
	if s.hub != nil {
		s.hub.BroadcastEvent(eventType, data)
	}
}

// Submit creates a pending top-up request. No wallet effect until an admin
// decides it.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*TopupRequest, error) {
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
	if req.TransferAmount < 0 {
		return nil, fmt.Errorf("%w: transferAmount cannot be negative", ErrInvalidAmount)
	}

	if err := s.limiter.Allow(ctx, req.UserID); err != nil {
		metrics.RateLimitRejectionsTotal.WithLabelValues("topup").Inc()
		return nil, fmt.Errorf("%w: too many submissions for user %s", ErrRateLimited, req.UserID)
	}

	now := time.Now()
	topup := &TopupRequest{
		ID:             idgen.WithPrefix("tpu_"),
		UserID:         req.UserID,
		Currency:       string(currency),
		Amount:         req.Amount,
		PaymentMethod:  req.PaymentMethod,
		TransferAmount: req.TransferAmount,
		Status:         string(StatusPending),
		CreatedAt:      now,
	}

	if err := s.store.Create(ctx, topup); err != nil {
		return nil, fmt.Errorf("failed to create topup request: %w", err)
	}

	metrics.TopupsSubmittedTotal.Inc()
	s.broadcast(realtime.EventTopupSubmitted, map[string]interface{}{
		"topupId":  topup.ID,
		"userId":   topup.UserID,
		"currency": topup.Currency,
		"amount":   topup.Amount,
	})

	return topup, nil
}

// Get returns a single top-up request.
func (s *Service) Get(ctx context.Context, id string) (*TopupRequest, error) {
	return s.store.Get(ctx, id)
}

// ListByUser returns a user's top-up requests, newest first.
func (s *Service) ListByUser(ctx context.Context, userID string, limit int) ([]*TopupRequest, error) {
	return s.store.ListByUser(ctx, userID, limit)
}

// ListPending returns pending requests awaiting an admin decision.
func (s *Service) ListPending(ctx context.Context, limit int) ([]*TopupRequest, error) {
	return s.store.ListByStatus(ctx, StatusPending, limit)
}

// ListByStatus returns requests in the given state.
func (s *Service) ListByStatus(ctx context.Context, status Status, limit int) ([]*TopupRequest, error) {
	return s.store.ListByStatus(ctx, status, limit)
}

// Approve credits the requester's wallet and flips the request to approved.
// The credit and its journal entries land in one atomic ledger batch; a
// dincoin top-up also cross-credits dircoin at the configured conversion
// rate. Retried approvals return ErrAlreadyProcessed without a second credit.
func (s *Service) Approve(ctx context.Context, requestID, adminID, notes string) (*ledger.Wallet, error) {
	ctx, span := traces.StartSpan(ctx, "topup.Approve",
		traces.TopupID(requestID), traces.UserID(adminID))
	defer span.End()

	mu := s.requestLock(requestID)
	mu.Lock()
	defer mu.Unlock()

	req, err := s.store.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !req.Pending() {
		return nil, ErrAlreadyProcessed
	}

	currency, err := ledger.ParseCurrency(req.Currency)
	if err != nil {
		return nil, err
	}

	adjustments := []ledger.Adjustment{{
		UserID:   req.UserID,
		Currency: currency,
		Delta:    req.Amount,
		Reason:   ledger.ReasonTopup,
	}}
	if currency == ledger.Dincoin && s.conversionRate > 0 {
		adjustments = append(adjustments, ledger.Adjustment{
			UserID:   req.UserID,
			Currency: ledger.Dircoin,
			Delta:    req.Amount * s.conversionRate,
			Reason:   ledger.ReasonTopup,
		})
	}

	wallets, err := s.ledger.Apply(ctx, req.ID, adjustments)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "wallet credit failed")
		return nil, fmt.Errorf("failed to credit wallet: %w", err)
	}
	wallet := wallets[0]

	now := time.Now()
	updated, err := s.store.MarkProcessed(ctx, req.ID, StatusApproved, adminID, notes, now)
	if err != nil {
		// Money already moved. Reverse the credits so the pending request
		// stays consistent with the ledger, then surface the failure.
		//
		// The credit and the status update commit separately, so a crash
		// between them leaves a credited wallet against a pending request.
		// Recovery: journal entries carry the topup id as related_id, so
		// on a CRITICAL log (or after a crash) operators check
		// EntriesByRelated(topupID) before re-approving; entries present
		// with status still pending means reverse manually, never approve
		// again.
		for i := range adjustments {
			adjustments[i].Delta = -adjustments[i].Delta
		}
		if _, revErr := s.ledger.Apply(ctx, req.ID, adjustments); revErr != nil {
			log.Printf("CRITICAL: topup %s wallet credited but status update failed AND reversal failed: %v (status err: %v)", req.ID, revErr, err)
		} else {
			log.Printf("CRITICAL: topup %s wallet credited but status update failed, credits reversed: %v", req.ID, err)
		}
		return nil, fmt.Errorf("failed to mark topup approved: %w", err)
	}

	metrics.TopupsProcessedTotal.WithLabelValues("approved").Inc()
	s.broadcast(realtime.EventTopupApproved, map[string]interface{}{
		"topupId":  updated.ID,
		"userId":   updated.UserID,
		"currency": updated.Currency,
		"amount":   updated.Amount,
	})

	return wallet, nil
}

// Reject flips the request to rejected with the admin's reason. No wallet
// effect. Same idempotency guard as Approve.
func (s *Service) Reject(ctx context.Context, requestID, adminID, reason string) (*TopupRequest, error) {
	ctx, span := traces.StartSpan(ctx, "topup.Reject",
		traces.TopupID(requestID), traces.UserID(adminID))
	defer span.End()

	mu := s.requestLock(requestID)
	mu.Lock()
	defer mu.Unlock()

	req, err := s.store.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !req.Pending() {
		return nil, ErrAlreadyProcessed
	}

	updated, err := s.store.MarkProcessed(ctx, req.ID, StatusRejected, adminID, reason, time.Now())
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to mark topup rejected: %w", err)
	}

	metrics.TopupsProcessedTotal.WithLabelValues("rejected").Inc()
	s.broadcast(realtime.EventTopupRejected, map[string]interface{}{
		"topupId":  updated.ID,
		"userId":   updated.UserID,
		"currency": updated.Currency,
		"amount":   updated.Amount,
	})

	return updated, nil
}
