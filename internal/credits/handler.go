package credits

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ce-seminars/backend/internal/middleware"
	"github.com/ce-seminars/backend/internal/models"
	"github.com/ce-seminars/backend/pkg/database"
	"github.com/ce-seminars/backend/pkg/response"
)

// Ledger is the ledger surface the handler needs.
type Ledger interface {
	Award(ctx context.Context, q database.DBTX, e *models.CreditEntry) (bool, error)
	TotalForUser(ctx context.Context, userID uuid.UUID) (int, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.CreditEntry, error)
}

// AdjustRequest is the body for POST /credits/adjust.
type AdjustRequest struct {
	UserID  string `json:"user_id" binding:"required,uuid"`
	EventID string `json:"event_id" binding:"required,uuid"`
	Credits int    `json:"credits" binding:"required"`
	Source  string `json:"source" binding:"omitempty,oneof=seminar event manual"`
	Note    string `json:"note" binding:"required"`
}

// Summary is a user's ledger with its recomputed total.
type Summary struct {
	Total   int                  `json:"total"`
	Entries []models.CreditEntry `json:"entries"`
}

// Handler handles CE credit endpoints.
type Handler struct {
	ledger Ledger
	logger *zap.Logger
}

// NewHandler creates a credits handler.
func NewHandler(ledger Ledger, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{ledger: ledger, logger: logger}
}

// Mine handles GET /credits/me.
func (h *Handler) Mine(c *gin.Context) {
	userID, _, ok := middleware.CurrentUser(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	h.writeSummary(c, userID)
}

// ForUser handles GET /users/:id/credits (admin/staff).
func (h *Handler) ForUser(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid user id")
		return
	}
	h.writeSummary(c, userID)
}

func (h *Handler) writeSummary(c *gin.Context, userID uuid.UUID) {
	ctx := c.Request.Context()
	entries, err := h.ledger.ListByUser(ctx, userID)
	if err != nil {
		response.Internal(c, "failed to load credits")
		return
	}
	total, err := h.ledger.TotalForUser(ctx, userID)
	if err != nil {
		response.Internal(c, "failed to load credits")
		return
	}
	if entries == nil {
		entries = []models.CreditEntry{}
	}
	response.OK(c, Summary{Total: total, Entries: entries})
}

// Adjust handles POST /credits/adjust (admin only). Adjustments may be negative and are never de-duplicated.
func (h *Handler) Adjust(c *gin.Context) {
	var req AdjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	source := models.CreditSource(req.Source)
	if source == "" {
		source = models.CreditSourceManual
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		response.BadRequest(c, "invalid user_id")
		return
	}
	eventID, err := uuid.Parse(req.EventID)
	if err != nil {
		response.BadRequest(c, "invalid event_id")
		return
	}
	adminID, _, _ := middleware.CurrentUser(c)
	e := &models.CreditEntry{
		UserID:          userID,
		EventID:         eventID,
		Credits:         req.Credits,
		Source:          source,
		TransactionType: models.TransactionAdjustment,
		Note:            req.Note,
	}
	if _, err := h.ledger.Award(c.Request.Context(), nil, e); err != nil {
		h.logger.Error("credit adjustment failed", zap.Error(err), zap.String("user_id", req.UserID))
		response.Internal(c, "failed to record adjustment")
		return
	}
	h.logger.Info("credit adjustment recorded",
		zap.String("user_id", req.UserID),
		zap.Int("credits", req.Credits),
		zap.String("admin_id", adminID.String()))
	response.Created(c, e)
}
