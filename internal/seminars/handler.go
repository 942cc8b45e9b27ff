package seminars

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ce-seminars/backend/internal/middleware"
	"github.com/ce-seminars/backend/internal/models"
	"github.com/ce-seminars/backend/pkg/database"
	"github.com/ce-seminars/backend/pkg/response"
)

// CreateRequest is the body for POST /seminars.
type CreateRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
	Capacity    int    `json:"capacity" binding:"min=0"`
	ProductID   *int64 `json:"product_id"`
}

// Store is the catalog surface the handler needs; *Repository implements it.
type Store interface {
	Create(ctx context.Context, s *models.Seminar) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Seminar, error)
	List(ctx context.Context) ([]models.Seminar, error)
	Update(ctx context.Context, s *models.Seminar) error
	Stats(ctx context.Context, seminarID uuid.UUID) (*Stats, error)
}

// Handler handles seminar HTTP endpoints.
type Handler struct {
	repo   Store
	logger *zap.Logger
}

// NewHandler creates a seminar handler.
func NewHandler(repo Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, logger: logger}
}

// Create handles POST /seminars (admin only).
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	userID, _, _ := middleware.CurrentUser(c)
	s := &models.Seminar{
		Title:       req.Title,
		Description: req.Description,
		Capacity:    req.Capacity,
		ProductID:   req.ProductID,
		CreatedBy:   userID,
	}
	if err := h.repo.Create(c.Request.Context(), s); err != nil {
		if database.IsUniqueViolation(err) {
			response.Conflict(c, "product already linked to another seminar")
			return
		}
		h.logger.Error("create seminar failed", zap.Error(err))
		response.Internal(c, "failed to create seminar")
		return
	}
	response.Created(c, s)
}

// Update handles PATCH /seminars/:id (admin only).
func (h *Handler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid seminar id")
		return
	}
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	s := &models.Seminar{ID: id, Title: req.Title, Description: req.Description, Capacity: req.Capacity, ProductID: req.ProductID}
	if err := h.repo.Update(c.Request.Context(), s); err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, "seminar not found")
			return
		}
		h.logger.Error("update seminar failed", zap.Error(err))
		response.Internal(c, "failed to update seminar")
		return
	}
	response.OK(c, s)
}

// List handles GET /seminars.
func (h *Handler) List(c *gin.Context) {
	list, err := h.repo.List(c.Request.Context())
	if err != nil {
		response.Internal(c, "failed to list seminars")
		return
	}
	response.OK(c, list)
}

// GetByID handles GET /seminars/:id.
func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid seminar id")
		return
	}
	s, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, "seminar not found")
			return
		}
		response.Internal(c, "failed to load seminar")
		return
	}
	response.OK(c, s)
}

// Stats handles GET /seminars/:id/stats (admin/staff).
func (h *Handler) Stats(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid seminar id")
		return
	}
	st, err := h.repo.Stats(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("seminar stats failed", zap.Error(err), zap.String("seminar_id", id.String()))
		response.Internal(c, "failed to compute stats")
		return
	}
	response.OK(c, st)
}
