package purchase

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/santrihub/dinwallet/internal/ledger"
	"github.com/santrihub/dinwallet/internal/validation"
)

// Handler provides HTTP endpoints for purchase settlement.
type Handler struct {
	service *Service
}

// NewHandler creates a new purchase handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up purchase routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/purchases", h.Settle)
	r.GET("/purchases/:id", h.Get)
	r.GET("/users/:userId/purchases", h.ListByUser)
}

// Settle handles POST /v1/purchases
func (h *Handler) Settle(c *gin.Context) {
	var req SettleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "Invalid request body"})
		return
	}

	if errs := validation.Validate(
		validation.Required("buyerId", req.BuyerID),
		validation.ValidUserID("buyerId", req.BuyerID),
		validation.Required("sellerId", req.SellerID),
		validation.ValidUserID("sellerId", req.SellerID),
		validation.Required("itemId", req.ItemID),
		validation.MaxLength("itemId", req.ItemID, validation.MaxItemIDLength),
	); errs != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": errs.Error()})
		return
	}

	purchase, err := h.service.Settle(c.Request.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		code := "settlement_failed"
		switch {
		case errors.Is(err, ledger.ErrInvalidCurrency):
			status = http.StatusBadRequest
			code = "invalid_currency"
		case errors.Is(err, ErrInvalidAmount):
			status = http.StatusBadRequest
			code = "invalid_amount"
		case errors.Is(err, ErrSelfPurchase):
			status = http.StatusBadRequest
			code = "self_purchase"
		case errors.Is(err, ErrAlreadyPurchased):
			status = http.StatusConflict
			code = "already_purchased"
		case errors.Is(err, ledger.ErrInsufficientFunds):
			status = http.StatusPaymentRequired
			code = "insufficient_funds"
		case errors.Is(err, ledger.ErrConcurrentModification):
			status = http.StatusConflict
			code = "concurrent_modification"
		case errors.Is(err, ErrRateLimited):
			status = http.StatusTooManyRequests
			code = "rate_limited"
		}
		c.JSON(status, gin.H{"error": code, "message": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"purchase": purchase})
}

// Get handles GET /v1/purchases/:id
func (h *Handler) Get(c *gin.Context) {
	id := c.Param("id")

	purchase, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ErrPurchaseNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "Purchase not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"purchase": purchase})
}

// ListByUser handles GET /v1/users/:userId/purchases. The role query
// parameter switches between the buyer view (default) and the seller view.
func (h *Handler) ListByUser(c *gin.Context) {
	userID := c.Param("userId")
	limit := parseLimit(c, 50, 200)

	var (
		purchases []*Purchase
		err       error
	)
	if c.Query("role") == "seller" {
		purchases, err = h.service.ListBySeller(c.Request.Context(), userID, limit)
	} else {
		purchases, err = h.service.ListByBuyer(c.Request.Context(), userID, limit)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}
	if purchases == nil {
		purchases = []*Purchase{}
	}

	c.JSON(http.StatusOK, gin.H{"purchases": purchases, "count": len(purchases)})
}

func parseLimit(c *gin.Context, defaultLimit, maxLimit int) int {
	limit := defaultLimit
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
			if limit > maxLimit {
				limit = maxLimit
			}
		}
	}
	return limit
}
