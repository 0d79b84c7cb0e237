package ledger

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// Handler provides HTTP endpoints for wallet and journal queries
type Handler struct {
	ledger *Ledger
}

// NewHandler creates a new ledger handler
func NewHandler(ledger *Ledger) *Handler {
	return &Handler{ledger: ledger}
}

// RegisterRoutes sets up wallet routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/wallets/:userId/balance", h.GetBalance)
	r.GET("/wallets/:userId/ledger", h.GetHistory)
}

// GetBalance handles GET /wallets/:userId/balance
func (h *Handler) GetBalance(c *gin.Context) {
	userID := c.Param("userId")

	wallet, err := h.ledger.GetBalance(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, ErrWalletNotFound) {
			// A user who never transacted has an empty wallet, not a 404.
			c.JSON(http.StatusOK, gin.H{
				"wallet": &Wallet{UserID: userID, Version: 0},
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "balance_error",
			"message": "Failed to retrieve balance",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"wallet": wallet,
	})
}

// GetHistory handles GET /wallets/:userId/ledger
func (h *Handler) GetHistory(c *gin.Context) {
	userID := c.Param("userId")

	limit := 50
	if limitStr := c.Query("limit"); limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	entries, err := h.ledger.History(c.Request.Context(), userID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "ledger_error",
			"message": "Failed to retrieve ledger history",
		})
		return
	}
	if entries == nil {
		entries = []*Entry{}
	}

	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"count":   len(entries),
	})
}
