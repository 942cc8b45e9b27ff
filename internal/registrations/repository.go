package registrations

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ce-seminars/backend/internal/models"
	"github.com/ce-seminars/backend/pkg/database"
)

// ErrNotFound is returned when no registration matches.
var ErrNotFound = errors.New("registration not found")

const registrationColumns = `id, user_id, seminar_id, order_id, registered_at, start_session_date,
	sessions_completed, sessions_remaining, makeup_used, status, qr_token, qr_image_path, qr_scan_count, notes, updated_at`

// Repository handles registration persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a registrations repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanRegistration(row pgx.Row) (*models.Registration, error) {
	var reg models.Registration
	err := row.Scan(&reg.ID, &reg.UserID, &reg.SeminarID, &reg.OrderID, &reg.RegisteredAt, &reg.StartSessionDate,
		&reg.SessionsCompleted, &reg.SessionsRemaining, &reg.MakeupUsed, &reg.Status,
		&reg.QRToken, &reg.QRImagePath, &reg.QRScanCount, &reg.Notes, &reg.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

// Create inserts a fresh registration for (user, seminar). When one already exists the stored
// row is loaded into reg and created is false.
func (r *Repository) Create(ctx context.Context, reg *models.Registration) (created bool, err error) {
	const q = `INSERT INTO seminar_registrations (user_id, seminar_id, order_id, start_session_date, qr_token)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, seminar_id) DO NOTHING
		RETURNING ` + registrationColumns
	got, err := scanRegistration(r.pool.QueryRow(ctx, q, reg.UserID, reg.SeminarID, reg.OrderID, reg.StartSessionDate, reg.QRToken))
	if err == nil {
		*reg = *got
		return true, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return false, fmt.Errorf("insert registration: %w", err)
	}
	existing, err := r.GetByUserAndSeminar(ctx, reg.UserID, reg.SeminarID)
	if err != nil {
		return false, err
	}
	*reg = *existing
	return false, nil
}

// SetQRImage stores where the rendered QR image lives.
func (r *Repository) SetQRImage(ctx context.Context, id uuid.UUID, path string) error {
	_, err := r.pool.Exec(ctx, `UPDATE seminar_registrations SET qr_image_path = $1, updated_at = NOW() WHERE id = $2`, path, id)
	return err
}

// GetByID returns a registration by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Registration, error) {
	return scanRegistration(r.pool.QueryRow(ctx, `SELECT `+registrationColumns+` FROM seminar_registrations WHERE id = $1`, id))
}

// GetForUpdate loads a registration and locks its row for the rest of the transaction.
func (r *Repository) GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Registration, error) {
	return scanRegistration(tx.QueryRow(ctx, `SELECT `+registrationColumns+` FROM seminar_registrations WHERE id = $1 FOR UPDATE`, id))
}

// GetByUserAndSeminar returns the registration for a (user, seminar) pair.
func (r *Repository) GetByUserAndSeminar(ctx context.Context, userID, seminarID uuid.UUID) (*models.Registration, error) {
	return scanRegistration(r.pool.QueryRow(ctx,
		`SELECT `+registrationColumns+` FROM seminar_registrations WHERE user_id = $1 AND seminar_id = $2`, userID, seminarID))
}

// ListBySeminar returns a seminar's registrations with registrant name, email and seminar credit total.
func (r *Repository) ListBySeminar(ctx context.Context, seminarID uuid.UUID) ([]models.RegistrationWithUser, error) {
	const q = `SELECT r.id, r.user_id, r.seminar_id, r.order_id, r.registered_at, r.start_session_date,
		r.sessions_completed, r.sessions_remaining, r.makeup_used, r.status, r.qr_token, r.qr_image_path,
		r.qr_scan_count, r.notes, r.updated_at, u.full_name, u.email,
		COALESCE((SELECT SUM(c.credits) FROM credit_ledger c WHERE c.user_id = r.user_id AND c.event_id = r.seminar_id), 0)
		FROM seminar_registrations r
		JOIN users u ON u.id = r.user_id
		WHERE r.seminar_id = $1
		ORDER BY r.registered_at ASC`
	rows, err := r.pool.Query(ctx, q, seminarID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.RegistrationWithUser
	for rows.Next() {
		var x models.RegistrationWithUser
		if err := rows.Scan(&x.ID, &x.UserID, &x.SeminarID, &x.OrderID, &x.RegisteredAt, &x.StartSessionDate,
			&x.SessionsCompleted, &x.SessionsRemaining, &x.MakeupUsed, &x.Status, &x.QRToken, &x.QRImagePath,
			&x.QRScanCount, &x.Notes, &x.UpdatedAt, &x.FullName, &x.Email, &x.TotalCredits); err != nil {
			return nil, err
		}
		list = append(list, x)
	}
	return list, rows.Err()
}

// ListByUser returns a user's registrations, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Registration, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+registrationColumns+` FROM seminar_registrations WHERE user_id = $1 ORDER BY registered_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *reg)
	}
	return list, rows.Err()
}

// CountActive returns the number of active registrations for a seminar.
func (r *Repository) CountActive(ctx context.Context, seminarID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM seminar_registrations WHERE seminar_id = $1 AND status = 'active'`, seminarID).Scan(&n)
	return n, err
}

// UpdateSessionCounts advances reg by one completed session and persists the counters and status.
// This is the only write path for session counters; q is normally the check-in transaction.
func (r *Repository) UpdateSessionCounts(ctx context.Context, q database.DBTX, reg *models.Registration) error {
	reg.CompleteSession()
	tag, err := q.Exec(ctx, `UPDATE seminar_registrations
		SET sessions_completed = $1, sessions_remaining = $2, status = $3, updated_at = NOW()
		WHERE id = $4`, reg.SessionsCompleted, reg.SessionsRemaining, string(reg.Status), reg.ID)
	if err != nil {
		return fmt.Errorf("update session counts: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementScanCount records one more automatic scan, refusing to exceed the cap.
func (r *Repository) IncrementScanCount(ctx context.Context, q database.DBTX, reg *models.Registration) error {
	err := q.QueryRow(ctx, `UPDATE seminar_registrations
		SET qr_scan_count = qr_scan_count + 1, updated_at = NOW()
		WHERE id = $1 AND qr_scan_count < $2
		RETURNING qr_scan_count`, reg.ID, models.MaxQRScans).Scan(&reg.QRScanCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrScanCapReached
	}
	return err
}

// ErrScanCapReached is returned by IncrementScanCount when the registration already used every scan.
var ErrScanCapReached = errors.New("qr scan cap reached")

// UseMakeup marks the registration's single makeup session as used.
func (r *Repository) UseMakeup(ctx context.Context, q database.DBTX, reg *models.Registration) error {
	if _, err := q.Exec(ctx, `UPDATE seminar_registrations SET makeup_used = TRUE, updated_at = NOW() WHERE id = $1`, reg.ID); err != nil {
		return fmt.Errorf("use makeup: %w", err)
	}
	reg.MakeupUsed = true
	return nil
}

// Cancel persists a cancellation. Only active rows are updated so a concurrent completion wins.
func (r *Repository) Cancel(ctx context.Context, reg *models.Registration) error {
	tag, err := r.pool.Exec(ctx, `UPDATE seminar_registrations
		SET status = 'cancelled', notes = $1, updated_at = NOW()
		WHERE id = $2 AND status = 'active'`, reg.Notes, reg.ID)
	if err != nil {
		return fmt.Errorf("cancel registration: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrInvalidTransition
	}
	return nil
}
