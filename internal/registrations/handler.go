package registrations

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ce-seminars/backend/internal/middleware"
	"github.com/ce-seminars/backend/internal/models"
	"github.com/ce-seminars/backend/pkg/response"
)

// CancelRequest is the body for POST /registrations/:id/cancel.
type CancelRequest struct {
	Reason string `json:"reason" binding:"required,max=500"`
}

// QRLinker produces download links for stored QR images.
type QRLinker interface {
	PresignQR(ctx context.Context, seminarID, registrationID string) (string, error)
}

// View is a registration with its scannable credential.
type View struct {
	*models.Registration
	Credential string `json:"credential"`
	QRURL      string `json:"qr_url,omitempty"`
}

// Handler handles registration HTTP endpoints.
type Handler struct {
	svc    *Service
	qr     QRLinker
	logger *zap.Logger
}

// NewHandler creates a registrations handler. qr may be nil when images are stored locally.
func NewHandler(svc *Service, qr QRLinker, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, qr: qr, logger: logger}
}

// Signup handles POST /seminars/:id/signup.
func (h *Handler) Signup(c *gin.Context) {
	seminarID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid seminar id")
		return
	}
	userID, _, ok := middleware.CurrentUser(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	res, err := h.svc.Signup(c.Request.Context(), userID, seminarID)
	if err != nil {
		if errors.Is(err, ErrSeminarNotFound) {
			response.NotFound(c, "seminar not found")
			return
		}
		h.logger.Error("signup failed", zap.Error(err), zap.String("seminar_id", seminarID.String()))
		response.Internal(c, "failed to sign up")
		return
	}
	if res.Waitlisted {
		response.Accepted(c, res)
		return
	}
	response.Created(c, res)
}

// Mine handles GET /registrations/me.
func (h *Handler) Mine(c *gin.Context) {
	userID, _, ok := middleware.CurrentUser(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	list, err := h.svc.ListByUser(c.Request.Context(), userID)
	if err != nil {
		response.Internal(c, "failed to list registrations")
		return
	}
	if list == nil {
		list = []models.Registration{}
	}
	response.OK(c, list)
}

// Get handles GET /registrations/:id. Owners and staff see the credential.
func (h *Handler) Get(c *gin.Context) {
	reg, ok := h.loadAuthorized(c, true)
	if !ok {
		return
	}
	cred, err := h.svc.Credential(reg)
	if err != nil {
		response.Internal(c, "failed to issue credential")
		return
	}
	view := View{Registration: reg, Credential: cred}
	if h.qr != nil && strings.HasPrefix(reg.QRImagePath, "https://") {
		if url, err := h.qr.PresignQR(c.Request.Context(), reg.SeminarID.String(), reg.ID.String()); err == nil {
			view.QRURL = url
		} else {
			h.logger.Warn("presign qr failed", zap.Error(err))
		}
	}
	response.OK(c, view)
}

// Cancel handles POST /registrations/:id/cancel (owner or admin).
func (h *Handler) Cancel(c *gin.Context) {
	reg, ok := h.loadAuthorized(c, false)
	if !ok {
		return
	}
	var req CancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	updated, err := h.svc.Cancel(c.Request.Context(), reg.ID, req.Reason)
	if err != nil {
		if errors.Is(err, models.ErrInvalidTransition) {
			response.Conflict(c, "registration is not active")
			return
		}
		h.logger.Error("cancel registration failed", zap.Error(err))
		response.Internal(c, "failed to cancel registration")
		return
	}
	response.OK(c, updated)
}

// ListBySeminar handles GET /seminars/:id/registrations (admin, staff).
func (h *Handler) ListBySeminar(c *gin.Context) {
	seminarID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid seminar id")
		return
	}
	list, err := h.svc.ListBySeminar(c.Request.Context(), seminarID)
	if err != nil {
		response.Internal(c, "failed to list registrations")
		return
	}
	if list == nil {
		list = []models.RegistrationWithUser{}
	}
	response.OK(c, list)
}

// loadAuthorized resolves :id and checks the caller owns it, is admin, or (when staffAllowed) is staff.
func (h *Handler) loadAuthorized(c *gin.Context, staffAllowed bool) (*models.Registration, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid registration id")
		return nil, false
	}
	userID, role, ok := middleware.CurrentUser(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return nil, false
	}
	reg, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, "registration not found")
			return nil, false
		}
		response.Internal(c, "failed to load registration")
		return nil, false
	}
	allowed := reg.UserID == userID || role == models.RoleAdmin || (staffAllowed && middleware.IsStaff(role))
	if !allowed {
		response.Forbidden(c, "not your registration")
		return nil, false
	}
	return reg, true
}
