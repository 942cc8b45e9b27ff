package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ce-seminars/backend/internal/models"
	"github.com/ce-seminars/backend/internal/seminars"
	"github.com/ce-seminars/backend/pkg/response"
)

// Source loads a seminar's registrants with names and credit totals.
type Source interface {
	ListBySeminar(ctx context.Context, seminarID uuid.UUID) ([]models.RegistrationWithUser, error)
}

// SeminarLookup resolves the seminar title for file names.
type SeminarLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Seminar, error)
}

// Handler serves registrant exports.
type Handler struct {
	source   Source
	seminars SeminarLookup
	logger   *zap.Logger
}

// NewHandler creates an export handler.
func NewHandler(source Source, sems SeminarLookup, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{source: source, seminars: sems, logger: logger}
}

var unsafeName = regexp.MustCompile(`[^a-zA-Z0-9]+`)

func fileName(title, ext string) string {
	base := strings.Trim(unsafeName.ReplaceAllString(strings.ToLower(title), "-"), "-")
	if base == "" {
		base = "seminar"
	}
	return fmt.Sprintf("%s-registrants-%s.%s", base, time.Now().UTC().Format("20060102"), ext)
}

// Registrants handles GET /seminars/:id/registrations/export?format=csv|xlsx.
func (h *Handler) Registrants(c *gin.Context) {
	seminarID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid seminar id")
		return
	}
	format := strings.ToLower(c.DefaultQuery("format", FormatCSV))
	if format != FormatCSV && format != FormatXLSX {
		response.BadRequest(c, "format must be csv or xlsx")
		return
	}
	sem, err := h.seminars.GetByID(c.Request.Context(), seminarID)
	if errors.Is(err, seminars.ErrNotFound) {
		response.NotFound(c, "seminar not found")
		return
	}
	if err != nil {
		response.Internal(c, "failed to load seminar")
		return
	}
	list, err := h.source.ListBySeminar(c.Request.Context(), seminarID)
	if err != nil {
		h.logger.Error("export list failed", zap.String("seminar_id", seminarID.String()), zap.Error(err))
		response.Internal(c, "failed to load registrants")
		return
	}
	rows := Rows(list)

	if format == FormatXLSX {
		data, err := XLSX(sem.Title, rows)
		if err != nil {
			h.logger.Error("xlsx export failed", zap.Error(err))
			response.Internal(c, "failed to build export")
			return
		}
		c.Header("Content-Disposition", `attachment; filename="`+fileName(sem.Title, FormatXLSX)+`"`)
		c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
		return
	}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, rows); err != nil {
		response.Internal(c, "failed to build export")
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+fileName(sem.Title, FormatCSV)+`"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}
