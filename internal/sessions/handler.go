package sessions

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ce-seminars/backend/internal/models"
	"github.com/ce-seminars/backend/internal/seminars"
	"github.com/ce-seminars/backend/pkg/database"
	"github.com/ce-seminars/backend/pkg/response"
)

const dateLayout = "2006-01-02"

// CreateRequest is the body for POST /seminars/:id/sessions.
type CreateRequest struct {
	SessionNumber int    `json:"session_number" binding:"required,min=1"`
	SessionDate   string `json:"session_date" binding:"required"` // YYYY-MM-DD
	Capacity      int    `json:"capacity" binding:"min=0"`
	Topic         string `json:"topic"`
}

// Store is the catalog surface the handler needs; *Repository implements it.
type Store interface {
	Create(ctx context.Context, s *models.Session) error
	ListBySeminar(ctx context.Context, seminarID uuid.UUID) ([]models.Session, error)
	NextUpcoming(ctx context.Context, seminarID uuid.UUID, from time.Time) (*models.Session, error)
}

// SeminarLookup confirms the parent seminar exists.
type SeminarLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Seminar, error)
}

// Handler handles session catalog endpoints.
type Handler struct {
	repo     Store
	seminars SeminarLookup
	logger   *zap.Logger
	now      func() time.Time
}

// NewHandler creates a session handler.
func NewHandler(repo Store, lookup SeminarLookup, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, seminars: lookup, logger: logger, now: time.Now}
}

// Create handles POST /seminars/:id/sessions (admin only).
func (h *Handler) Create(c *gin.Context) {
	seminarID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid seminar id")
		return
	}
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	date, err := time.Parse(dateLayout, req.SessionDate)
	if err != nil {
		response.BadRequest(c, "invalid session_date, want YYYY-MM-DD")
		return
	}
	if _, err := h.seminars.GetByID(c.Request.Context(), seminarID); err != nil {
		if errors.Is(err, seminars.ErrNotFound) {
			response.NotFound(c, "seminar not found")
			return
		}
		h.logger.Error("load seminar failed", zap.Error(err), zap.String("seminar_id", seminarID.String()))
		response.Internal(c, "failed to create session")
		return
	}
	s := &models.Session{
		SeminarID:     seminarID,
		SessionNumber: req.SessionNumber,
		SessionDate:   date,
		Capacity:      req.Capacity,
		Topic:         req.Topic,
	}
	if err := h.repo.Create(c.Request.Context(), s); err != nil {
		if database.IsUniqueViolation(err) {
			response.Conflict(c, "session number already scheduled")
			return
		}
		if database.IsForeignKeyViolation(err) {
			response.NotFound(c, "seminar not found")
			return
		}
		h.logger.Error("create session failed", zap.Error(err), zap.String("seminar_id", seminarID.String()))
		response.Internal(c, "failed to create session")
		return
	}
	response.Created(c, s)
}

// List handles GET /seminars/:id/sessions.
func (h *Handler) List(c *gin.Context) {
	seminarID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid seminar id")
		return
	}
	list, err := h.repo.ListBySeminar(c.Request.Context(), seminarID)
	if err != nil {
		h.logger.Error("list sessions failed", zap.Error(err), zap.String("seminar_id", seminarID.String()))
		response.Internal(c, "failed to list sessions")
		return
	}
	if list == nil {
		list = []models.Session{}
	}
	response.OK(c, list)
}

// Next handles GET /seminars/:id/sessions/next.
func (h *Handler) Next(c *gin.Context) {
	seminarID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid seminar id")
		return
	}
	s, err := h.repo.NextUpcoming(c.Request.Context(), seminarID, h.now())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, "no upcoming session")
			return
		}
		h.logger.Error("load next session failed", zap.Error(err), zap.String("seminar_id", seminarID.String()))
		response.Internal(c, "failed to load next session")
		return
	}
	response.OK(c, s)
}
