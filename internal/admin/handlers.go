package admin

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/santrihub/dinwallet/internal/ledger"
	"github.com/santrihub/dinwallet/internal/reconciliation"
	"github.com/santrihub/dinwallet/internal/topup"
)

// AdminHeader carries the pre-authenticated acting admin's user ID. The
// gateway in front of this service resolves authentication; we only check
// the role.
const AdminHeader = "X-Admin-User"

// Handler provides the operator HTTP surface.
type Handler struct {
	gateway    *Gateway
	reconciler *reconciliation.Service
}

// NewHandler creates an admin handler. reconciler may be nil to disable the
// reconcile endpoint.
func NewHandler(gateway *Gateway, reconciler *reconciliation.Service) *Handler {
	return &Handler{gateway: gateway, reconciler: reconciler}
}

// RegisterRoutes sets up admin routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	admin := r.Group("/admin")
	admin.POST("/topups/:id/approve", h.ApproveTopup)
	admin.POST("/topups/:id/reject", h.RejectTopup)
	admin.GET("/topups", h.ListTopups)
	admin.GET("/reconcile", h.Reconcile)
}

func adminID(c *gin.Context) string {
	return c.GetHeader(AdminHeader)
}

func decisionStatus(err error) (int, string) {
	switch {
	case errors.Is(err, ErrUnauthorizedApprover):
		return http.StatusForbidden, "unauthorized_approver"
	case errors.Is(err, topup.ErrTopupNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, topup.ErrAlreadyProcessed):
		return http.StatusConflict, "already_processed"
	case errors.Is(err, ledger.ErrConcurrentModification):
		return http.StatusConflict, "concurrent_modification"
	default:
		return http.StatusInternalServerError, "decision_failed"
	}
}

// ApproveTopup handles POST /v1/admin/topups/:id/approve
func (h *Handler) ApproveTopup(c *gin.Context) {
	id := c.Param("id")

	var req topup.DecisionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "Invalid request body"})
			return
		}
	}

	wallet, err := h.gateway.Approve(c.Request.Context(), id, adminID(c), req.Notes)
	if err != nil {
		status, code := decisionStatus(err)
		c.JSON(status, gin.H{"error": code, "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"wallet": wallet})
}

// RejectTopup handles POST /v1/admin/topups/:id/reject
func (h *Handler) RejectTopup(c *gin.Context) {
	id := c.Param("id")

	var req topup.DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "Invalid request body"})
		return
	}
	if req.Notes == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "A rejection reason is required"})
		return
	}

	updated, err := h.gateway.Reject(c.Request.Context(), id, adminID(c), req.Notes)
	if err != nil {
		status, code := decisionStatus(err)
		c.JSON(status, gin.H{"error": code, "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"topup": updated})
}

// ListTopups handles GET /v1/admin/topups?status=pending
func (h *Handler) ListTopups(c *gin.Context) {
	status := topup.Status(c.DefaultQuery("status", string(topup.StatusPending)))
	switch status {
	case topup.StatusPending, topup.StatusApproved, topup.StatusRejected:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "Unknown status"})
		return
	}

	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}

	topups, err := h.gateway.ListByStatus(c.Request.Context(), adminID(c), status, limit)
	if err != nil {
		status, code := decisionStatus(err)
		c.JSON(status, gin.H{"error": code, "message": err.Error()})
		return
	}
	if topups == nil {
		topups = []*topup.TopupRequest{}
	}

	c.JSON(http.StatusOK, gin.H{"topups": topups, "count": len(topups)})
}

// Reconcile handles GET /v1/admin/reconcile
func (h *Handler) Reconcile(c *gin.Context) {
	if err := h.gateway.Authorize(c.Request.Context(), adminID(c)); err != nil {
		status, code := decisionStatus(err)
		c.JSON(status, gin.H{"error": code, "message": err.Error()})
		return
	}
	if h.reconciler == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "unavailable", "message": "Reconciliation is not enabled"})
		return
	}

	report, err := h.reconciler.RunAll(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"report": report})
}
