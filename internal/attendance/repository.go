package attendance

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ce-seminars/backend/internal/credits"
	"github.com/ce-seminars/backend/internal/models"
	"github.com/ce-seminars/backend/internal/registrations"
	"github.com/ce-seminars/backend/pkg/database"
)

// Repository is the PostgreSQL attendance store.
type Repository struct {
	pool          *pgxpool.Pool
	registrations *registrations.Repository
	ledger        *credits.Repository
}

// NewRepository creates an attendance repository that shares the registration and ledger repositories.
func NewRepository(pool *pgxpool.Pool, regs *registrations.Repository, ledger *credits.Repository) *Repository {
	return &Repository{pool: pool, registrations: regs, ledger: ledger}
}

// InTx runs fn in one database transaction.
func (r *Repository) InTx(ctx context.Context, fn func(Tx) error) error {
	return database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(&pgTx{tx: tx, registrations: r.registrations, ledger: r.ledger})
	})
}

// HasAttendance reports whether the registration already checked in to the session.
func (r *Repository) HasAttendance(ctx context.Context, registrationID, sessionID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM seminar_attendance WHERE registration_id = $1 AND session_id = $2)`,
		registrationID, sessionID).Scan(&exists)
	return exists, err
}

// ListBySession returns who attended a session, in check-in order.
func (r *Repository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.AttendeeRow, error) {
	const q = `SELECT a.id, a.registration_id, r.user_id, u.full_name, u.email, a.is_makeup, a.method, a.checked_in_at
		FROM seminar_attendance a
		JOIN seminar_registrations r ON r.id = a.registration_id
		JOIN users u ON u.id = r.user_id
		WHERE a.session_id = $1
		ORDER BY a.checked_in_at ASC`
	rows, err := r.pool.Query(ctx, q, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.AttendeeRow
	for rows.Next() {
		var row models.AttendeeRow
		if err := rows.Scan(&row.AttendanceID, &row.RegistrationID, &row.UserID, &row.FullName, &row.Email,
			&row.IsMakeup, &row.Method, &row.CheckedInAt); err != nil {
			return nil, err
		}
		list = append(list, row)
	}
	return list, rows.Err()
}

// ListByRegistration returns a registration's attendance history.
func (r *Repository) ListByRegistration(ctx context.Context, registrationID uuid.UUID) ([]models.Attendance, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, registration_id, session_id, is_makeup, checked_in_by, method, credits_awarded, checked_in_at
		FROM seminar_attendance WHERE registration_id = $1 ORDER BY checked_in_at ASC`, registrationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Attendance
	for rows.Next() {
		var a models.Attendance
		if err := rows.Scan(&a.ID, &a.RegistrationID, &a.SessionID, &a.IsMakeup, &a.CheckedInBy, &a.Method, &a.CreditsAwarded, &a.CheckedInAt); err != nil {
			return nil, err
		}
		list = append(list, a)
	}
	return list, rows.Err()
}

type pgTx struct {
	tx            pgx.Tx
	registrations *registrations.Repository
	ledger        *credits.Repository
}

func (t *pgTx) LockRegistration(ctx context.Context, id uuid.UUID) (*models.Registration, error) {
	return t.registrations.GetForUpdate(ctx, t.tx, id)
}

func (t *pgTx) InsertAttendance(ctx context.Context, a *models.Attendance) (bool, error) {
	const q = `INSERT INTO seminar_attendance (registration_id, session_id, is_makeup, checked_in_by, method, credits_awarded)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (registration_id, session_id) DO NOTHING
		RETURNING id, checked_in_at`
	err := t.tx.QueryRow(ctx, q, a.RegistrationID, a.SessionID, a.IsMakeup, a.CheckedInBy, string(a.Method), a.CreditsAwarded).
		Scan(&a.ID, &a.CheckedInAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert attendance: %w", err)
	}
	return true, nil
}

func (t *pgTx) UpdateSessionCounts(ctx context.Context, reg *models.Registration) error {
	return t.registrations.UpdateSessionCounts(ctx, t.tx, reg)
}

func (t *pgTx) IncrementScanCount(ctx context.Context, reg *models.Registration) error {
	return t.registrations.IncrementScanCount(ctx, t.tx, reg)
}

func (t *pgTx) UseMakeup(ctx context.Context, reg *models.Registration) error {
	return t.registrations.UseMakeup(ctx, t.tx, reg)
}

func (t *pgTx) AwardCredits(ctx context.Context, e *models.CreditEntry) (bool, error) {
	return t.ledger.Award(ctx, t.tx, e)
}
