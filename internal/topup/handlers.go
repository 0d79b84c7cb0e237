package topup

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/santrihub/dinwallet/internal/ledger"
	"github.com/santrihub/dinwallet/internal/validation"
)

// Handler provides HTTP endpoints for the top-up workflow. Admin decision
// endpoints live in the admin package.
type Handler struct {
	service *Service
}

// NewHandler creates a new top-up handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up top-up routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/topups", h.Submit)
	r.GET("/topups/:id", h.Get)
	r.GET("/users/:userId/topups", h.ListByUser)
}

// Submit handles POST /v1/topups
func (h *Handler) Submit(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "Invalid request body"})
		return
	}

	if errs := validation.Validate(
		validation.Required("userId", req.UserID),
		validation.ValidUserID("userId", req.UserID),
	); errs != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": errs.Error()})
		return
	}

	topup, err := h.service.Submit(c.Request.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		code := "submit_failed"
		switch {
		case errors.Is(err, ledger.ErrInvalidCurrency):
			status = http.StatusBadRequest
			code = "invalid_currency"
		case errors.Is(err, ErrInvalidAmount):
			status = http.StatusBadRequest
			code = "invalid_amount"
		case errors.Is(err, ErrRateLimited):
			status = http.StatusTooManyRequests
			code = "rate_limited"
		}
		c.JSON(status, gin.H{"error": code, "message": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"topup": topup})
}

// Get handles GET /v1/topups/:id
func (h *Handler) Get(c *gin.Context) {
	id := c.Param("id")

	topup, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ErrTopupNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "Topup request not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"topup": topup})
}

// ListByUser handles GET /v1/users/:userId/topups
func (h *Handler) ListByUser(c *gin.Context) {
	userID := c.Param("userId")
	limit := parseLimit(c, 50, 200)

	topups, err := h.service.ListByUser(c.Request.Context(), userID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}
	if topups == nil {
		topups = []*TopupRequest{}
	}

	c.JSON(http.StatusOK, gin.H{"topups": topups, "count": len(topups)})
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
