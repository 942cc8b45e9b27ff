package emaillogs

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ce-seminars/backend/internal/models"
	"github.com/ce-seminars/backend/pkg/response"
)

// ErrRegistrationMismatch is returned by a Resender when the registration belongs to another seminar.
var ErrRegistrationMismatch = errors.New("registration does not belong to seminar")

// Lister reads email logs.
type Lister interface {
	ListBySeminar(ctx context.Context, seminarID uuid.UUID) ([]*models.EmailLog, error)
}

// Resender re-queues a registration's confirmation email.
type Resender interface {
	ResendConfirmation(ctx context.Context, seminarID, registrationID uuid.UUID) error
}

// Handler handles email log HTTP endpoints.
type Handler struct {
	logs     Lister
	resender Resender
}

// NewHandler creates an email logs handler.
func NewHandler(logs Lister, resender Resender) *Handler {
	return &Handler{logs: logs, resender: resender}
}

// ListBySeminar handles GET /seminars/:id/emails (admin).
func (h *Handler) ListBySeminar(c *gin.Context) {
	seminarID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid seminar id")
		return
	}
	logs, err := h.logs.ListBySeminar(c.Request.Context(), seminarID)
	if err != nil {
		response.Internal(c, "failed to load email logs")
		return
	}
	if logs == nil {
		logs = []*models.EmailLog{}
	}
	response.OK(c, logs)
}

// ResendRequest is the body for POST /seminars/:id/emails/resend.
type ResendRequest struct {
	RegistrationID string `json:"registration_id" binding:"required,uuid"`
}

// Resend handles POST /seminars/:id/emails/resend (admin).
func (h *Handler) Resend(c *gin.Context) {
	seminarID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid seminar id")
		return
	}
	var body ResendRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "registration_id required")
		return
	}
	regID, err := uuid.Parse(body.RegistrationID)
	if err != nil {
		response.BadRequest(c, "invalid registration_id")
		return
	}
	if err := h.resender.ResendConfirmation(c.Request.Context(), seminarID, regID); err != nil {
		if errors.Is(err, ErrRegistrationMismatch) {
			response.NotFound(c, "registration not found for seminar")
			return
		}
		response.Internal(c, "failed to queue email")
		return
	}
	response.Accepted(c, gin.H{"message": "resend queued"})
}
