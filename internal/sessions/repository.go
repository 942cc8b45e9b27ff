package sessions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ce-seminars/backend/internal/models"
)

// ErrNotFound is returned when no session matches.
var ErrNotFound = errors.New("session not found")

const sessionColumns = `id, seminar_id, session_number, session_date, capacity, topic, created_at`

// Repository is the session catalog.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a session catalog repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanSession(row pgx.Row) (*models.Session, error) {
	var s models.Session
	err := row.Scan(&s.ID, &s.SeminarID, &s.SessionNumber, &s.SessionDate, &s.Capacity, &s.Topic, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// registrationStart counts the live registrations whose first session falls on date.
// A nil date means the registration starts with the first session.
type registrationStart struct {
	date *time.Time
	n    int
}

// fillRegistered sets each session's RegisteredCount to the live registrations that began on or before it.
func fillRegistered(list []models.Session, starts []registrationStart) {
	for i := range list {
		total := 0
		for _, st := range starts {
			if st.date == nil || !st.date.After(list[i].SessionDate) {
				total += st.n
			}
		}
		list[i].RegisteredCount = total
	}
}

func (r *Repository) registrationStarts(ctx context.Context, seminarID uuid.UUID) ([]registrationStart, error) {
	const q = `SELECT start_session_date, COUNT(*) FROM seminar_registrations
		WHERE seminar_id = $1 AND status <> 'cancelled'
		GROUP BY start_session_date`
	rows, err := r.pool.Query(ctx, q, seminarID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var starts []registrationStart
	for rows.Next() {
		var st registrationStart
		if err := rows.Scan(&st.date, &st.n); err != nil {
			return nil, err
		}
		starts = append(starts, st)
	}
	return starts, rows.Err()
}

func (r *Repository) withRegistered(ctx context.Context, seminarID uuid.UUID, list []models.Session) error {
	if len(list) == 0 {
		return nil
	}
	starts, err := r.registrationStarts(ctx, seminarID)
	if err != nil {
		return fmt.Errorf("count registrations: %w", err)
	}
	fillRegistered(list, starts)
	return nil
}

func (r *Repository) one(ctx context.Context, s *models.Session, err error) (*models.Session, error) {
	if err != nil {
		return nil, err
	}
	list := []models.Session{*s}
	if err := r.withRegistered(ctx, s.SeminarID, list); err != nil {
		return nil, err
	}
	return &list[0], nil
}

// Create inserts a session into a seminar's schedule.
func (r *Repository) Create(ctx context.Context, s *models.Session) error {
	const q = `INSERT INTO seminar_sessions (seminar_id, session_number, session_date, capacity, topic)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`
	if err := r.pool.QueryRow(ctx, q, s.SeminarID, s.SessionNumber, s.SessionDate, s.Capacity, s.Topic).
		Scan(&s.ID, &s.CreatedAt); err != nil {
		return err
	}
	list := []models.Session{*s}
	if err := r.withRegistered(ctx, s.SeminarID, list); err != nil {
		return err
	}
	s.RegisteredCount = list[0].RegisteredCount
	return nil
}

// GetByID returns a session by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	s, err := scanSession(r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM seminar_sessions WHERE id = $1`, id))
	return r.one(ctx, s, err)
}

// ListBySeminar returns a seminar's sessions ordered by session number.
func (r *Repository) ListBySeminar(ctx context.Context, seminarID uuid.UUID) ([]models.Session, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM seminar_sessions WHERE seminar_id = $1 ORDER BY session_number`, seminarID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()
	if err := r.withRegistered(ctx, seminarID, list); err != nil {
		return nil, err
	}
	return list, nil
}

// NextUpcoming returns the first session on or after the given day.
func (r *Repository) NextUpcoming(ctx context.Context, seminarID uuid.UUID, from time.Time) (*models.Session, error) {
	const q = `SELECT ` + sessionColumns + ` FROM seminar_sessions
		WHERE seminar_id = $1 AND session_date >= $2::date
		ORDER BY session_date, session_number LIMIT 1`
	s, err := scanSession(r.pool.QueryRow(ctx, q, seminarID, from))
	return r.one(ctx, s, err)
}
