package emaillogs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ce-seminars/backend/internal/models"
)

// Repository handles email_logs persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an email logs repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a pending log row before the email is queued.
func (r *Repository) Create(ctx context.Context, el *models.EmailLog) error {
	const q = `INSERT INTO email_logs (seminar_id, registration_id, waitlist_id, email_type, recipient_email, subject, status)
		VALUES ($1, $2, $3, $4, $5, $6, 'pending')
		RETURNING id, status, created_at`
	if err := r.pool.QueryRow(ctx, q, el.SeminarID, el.RegistrationID, el.WaitlistID, el.EmailType, el.RecipientEmail, el.Subject).
		Scan(&el.ID, &el.Status, &el.CreatedAt); err != nil {
		return fmt.Errorf("insert email log: %w", err)
	}
	return nil
}

// MarkSent records a successful delivery.
func (r *Repository) MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE email_logs SET status = 'sent', sent_at = $1, error_message = NULL WHERE id = $2`, at, id)
	return err
}

// MarkFailed records a delivery failure.
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := r.pool.Exec(ctx, `UPDATE email_logs SET status = 'failed', error_message = $1 WHERE id = $2`, reason, id)
	return err
}

// ListBySeminar returns email logs for a seminar, newest first.
func (r *Repository) ListBySeminar(ctx context.Context, seminarID uuid.UUID) ([]*models.EmailLog, error) {
	const q = `SELECT id, seminar_id, registration_id, waitlist_id, email_type, recipient_email, subject, status, sent_at, error_message, created_at
		FROM email_logs
		WHERE seminar_id = $1
		ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, q, seminarID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.EmailLog
	for rows.Next() {
		var el models.EmailLog
		var subject, errMsg *string
		if err := rows.Scan(&el.ID, &el.SeminarID, &el.RegistrationID, &el.WaitlistID, &el.EmailType, &el.RecipientEmail,
			&subject, &el.Status, &el.SentAt, &errMsg, &el.CreatedAt); err != nil {
			return nil, err
		}
		if subject != nil {
			el.Subject = *subject
		}
		if errMsg != nil {
			el.ErrorMessage = *errMsg
		}
		list = append(list, &el)
	}
	return list, rows.Err()
}
