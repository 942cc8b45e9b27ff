package attendance

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ce-seminars/backend/internal/middleware"
	"github.com/ce-seminars/backend/internal/models"
	"github.com/ce-seminars/backend/pkg/response"
)

// ScanRequest is the body for POST /checkin/scan.
type ScanRequest struct {
	Credential string `json:"credential" binding:"required"`
	SessionID  string `json:"session_id" binding:"required,uuid"`
}

// ManualRequest is the body for POST /checkin/manual.
type ManualRequest struct {
	RegistrationID string `json:"registration_id" binding:"required,uuid"`
	SessionID      string `json:"session_id" binding:"required,uuid"`
	IsMakeup       bool   `json:"is_makeup"`
}

// Handler handles check-in HTTP endpoints.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates an attendance handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// Scan handles POST /checkin/scan (admin, staff).
func (h *Handler) Scan(c *gin.Context) {
	var req ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	sessionID, err := uuid.Parse(req.SessionID)
	if err != nil {
		response.BadRequest(c, "invalid session_id")
		return
	}
	res, err := h.svc.CheckIn(c.Request.Context(), req.Credential, sessionID)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Created(c, res)
}

// Manual handles POST /checkin/manual (admin only).
func (h *Handler) Manual(c *gin.Context) {
	var req ManualRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	regID, err := uuid.Parse(req.RegistrationID)
	if err != nil {
		response.BadRequest(c, "invalid registration_id")
		return
	}
	sessionID, err := uuid.Parse(req.SessionID)
	if err != nil {
		response.BadRequest(c, "invalid session_id")
		return
	}
	adminID, _, _ := middleware.CurrentUser(c)
	res, err := h.svc.ManualCheckIn(c.Request.Context(), regID, sessionID, req.IsMakeup, adminID)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Created(c, res)
}

// SessionSheet handles GET /sessions/:id/attendance (admin, staff).
func (h *Handler) SessionSheet(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	list, err := h.svc.ListBySession(c.Request.Context(), sessionID)
	if err != nil {
		h.logger.Error("list session attendance failed", zap.Error(err))
		response.Internal(c, "failed to list attendance")
		return
	}
	if list == nil {
		list = []models.AttendeeRow{}
	}
	response.OK(c, list)
}

// RegistrationHistory handles GET /registrations/:id/attendance (admin, staff).
func (h *Handler) RegistrationHistory(c *gin.Context) {
	regID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid registration id")
		return
	}
	list, err := h.svc.ListByRegistration(c.Request.Context(), regID)
	if err != nil {
		response.Internal(c, "failed to list attendance")
		return
	}
	if list == nil {
		list = []models.Attendance{}
	}
	response.OK(c, list)
}

func writeError(c *gin.Context, err error) {
	var ce *Error
	if !errors.As(err, &ce) {
		response.Internal(c, "failed to record attendance")
		return
	}
	response.Fail(c, ce.Status(), string(ce.Code), ce.Msg)
}
