package seminars

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ce-seminars/backend/internal/models"
)

// ErrNotFound is returned when no seminar matches.
var ErrNotFound = errors.New("seminar not found")

const seminarColumns = `id, title, description, capacity, product_id, created_by, created_at, updated_at`

// Repository handles seminar persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a seminar repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanSeminar(row pgx.Row) (*models.Seminar, error) {
	var s models.Seminar
	err := row.Scan(&s.ID, &s.Title, &s.Description, &s.Capacity, &s.ProductID, &s.CreatedBy, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Create inserts a new seminar.
func (r *Repository) Create(ctx context.Context, s *models.Seminar) error {
	const q = `INSERT INTO seminars (title, description, capacity, product_id, created_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, s.Title, s.Description, s.Capacity, s.ProductID, s.CreatedBy).
		Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
}

// GetByID returns a seminar by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Seminar, error) {
	return scanSeminar(r.pool.QueryRow(ctx, `SELECT `+seminarColumns+` FROM seminars WHERE id = $1`, id))
}

// GetByProductID returns the seminar sold as the given e-commerce product.
func (r *Repository) GetByProductID(ctx context.Context, productID int64) (*models.Seminar, error) {
	return scanSeminar(r.pool.QueryRow(ctx, `SELECT `+seminarColumns+` FROM seminars WHERE product_id = $1`, productID))
}

// List returns all seminars, newest first.
func (r *Repository) List(ctx context.Context) ([]models.Seminar, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+seminarColumns+` FROM seminars ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Seminar
	for rows.Next() {
		s, err := scanSeminar(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *s)
	}
	return list, rows.Err()
}

// Update changes a seminar's editable fields.
func (r *Repository) Update(ctx context.Context, s *models.Seminar) error {
	const q = `UPDATE seminars SET title = $1, description = $2, capacity = $3, product_id = $4, updated_at = NOW()
		WHERE id = $5 RETURNING updated_at`
	err := r.pool.QueryRow(ctx, q, s.Title, s.Description, s.Capacity, s.ProductID, s.ID).Scan(&s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// SessionAttendance is the attendance count for one session.
type SessionAttendance struct {
	SessionID     uuid.UUID `json:"session_id"`
	SessionNumber int       `json:"session_number"`
	Attended      int       `json:"attended"`
	Makeups       int       `json:"makeups"`
}

// Stats summarizes a seminar's registrations, attendance and credits.
type Stats struct {
	Active         int                 `json:"active"`
	Completed      int                 `json:"completed"`
	Cancelled      int                 `json:"cancelled"`
	Waiting        int                 `json:"waiting"`
	CreditsAwarded int                 `json:"credits_awarded"`
	Sessions       []SessionAttendance `json:"sessions"`
}

// Stats computes the seminar dashboard aggregates.
func (r *Repository) Stats(ctx context.Context, seminarID uuid.UUID) (*Stats, error) {
	var st Stats
	const counts = `SELECT
		COUNT(*) FILTER (WHERE status = 'active'),
		COUNT(*) FILTER (WHERE status = 'completed'),
		COUNT(*) FILTER (WHERE status = 'cancelled')
		FROM seminar_registrations WHERE seminar_id = $1`
	if err := r.pool.QueryRow(ctx, counts, seminarID).Scan(&st.Active, &st.Completed, &st.Cancelled); err != nil {
		return nil, err
	}
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM seminar_waitlist WHERE seminar_id = $1 AND status = 'waiting'`, seminarID).
		Scan(&st.Waiting); err != nil {
		return nil, err
	}
	if err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(credits), 0) FROM credit_ledger WHERE event_id = $1 AND source = 'seminar'`, seminarID).
		Scan(&st.CreditsAwarded); err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, `SELECT s.id, s.session_number, COUNT(a.id), COUNT(a.id) FILTER (WHERE a.is_makeup)
		FROM seminar_sessions s LEFT JOIN seminar_attendance a ON a.session_id = s.id
		WHERE s.seminar_id = $1 GROUP BY s.id, s.session_number ORDER BY s.session_number`, seminarID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var sa SessionAttendance
		if err := rows.Scan(&sa.SessionID, &sa.SessionNumber, &sa.Attended, &sa.Makeups); err != nil {
			return nil, err
		}
		st.Sessions = append(st.Sessions, sa)
	}
	return &st, rows.Err()
}
