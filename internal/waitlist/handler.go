package waitlist

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ce-seminars/backend/internal/models"
	"github.com/ce-seminars/backend/pkg/response"
)

// JoinRequest is the body for POST /seminars/:id/waitlist.
type JoinRequest struct {
	Email    string `json:"email" binding:"required,email"`
	FullName string `json:"full_name" binding:"required"`
}

// NotifyRequest is the body for POST /seminars/:id/waitlist/notify.
type NotifyRequest struct {
	Slots int `json:"slots" binding:"omitempty,min=1,max=100"`
}

// SeminarLookup checks that a seminar exists.
type SeminarLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Seminar, error)
}

// Handler handles waitlist HTTP endpoints.
type Handler struct {
	promoter *Promoter
	seminars SeminarLookup
	logger   *zap.Logger
}

// NewHandler creates a waitlist handler.
func NewHandler(promoter *Promoter, seminars SeminarLookup, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{promoter: promoter, seminars: seminars, logger: logger}
}

// Join handles POST /seminars/:id/waitlist (public).
func (h *Handler) Join(c *gin.Context) {
	seminarID, ok := h.seminarParam(c)
	if !ok {
		return
	}
	var req JoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	e := &models.WaitlistEntry{SeminarID: seminarID, Email: req.Email, FullName: req.FullName}
	if err := h.promoter.Join(c.Request.Context(), e); err != nil {
		h.logger.Error("join waitlist failed", zap.Error(err))
		response.Internal(c, "failed to join waitlist")
		return
	}
	response.Created(c, e)
}

// List handles GET /seminars/:id/waitlist (admin).
func (h *Handler) List(c *gin.Context) {
	seminarID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid seminar id")
		return
	}
	list, err := h.promoter.List(c.Request.Context(), seminarID)
	if err != nil {
		response.Internal(c, "failed to list waitlist")
		return
	}
	if list == nil {
		list = []models.WaitlistEntry{}
	}
	response.OK(c, list)
}

// Notify handles POST /seminars/:id/waitlist/notify (admin): promotes the next entries on demand.
func (h *Handler) Notify(c *gin.Context) {
	seminarID, ok := h.seminarParam(c)
	if !ok {
		return
	}
	var req NotifyRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "invalid request: "+err.Error())
			return
		}
	}
	n, err := h.promoter.NotifyNext(c.Request.Context(), seminarID, req.Slots)
	if err != nil {
		h.logger.Error("waitlist notify failed", zap.Error(err))
		response.Internal(c, "failed to notify waitlist")
		return
	}
	response.OK(c, gin.H{"notified": n})
}

func (h *Handler) seminarParam(c *gin.Context) (uuid.UUID, bool) {
	seminarID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid seminar id")
		return uuid.Nil, false
	}
	if _, err := h.seminars.GetByID(c.Request.Context(), seminarID); err != nil {
		response.NotFound(c, "seminar not found")
		return uuid.Nil, false
	}
	return seminarID, true
}
