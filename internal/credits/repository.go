package credits

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

// Repository is the append-only CE credit ledger.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a ledger repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Award appends a ledger entry using q (pool or transaction). Entries carrying an idempotency key
// that was already recorded are skipped and inserted is false; entries without a key always append.
func (r *Repository) Award(ctx context.Context, q database.DBTX, e *models.CreditEntry) (inserted bool, err error) {
	if q == nil {
		q = r.pool
	}
	const stmt = `INSERT INTO credit_ledger (user_id, event_id, credits, source, transaction_type, note, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (idempotency_key) WHERE idempotency_key IS NOT NULL DO NOTHING
		RETURNING id, created_at`
	err = q.QueryRow(ctx, stmt, e.UserID, e.EventID, e.Credits, string(e.Source), e.TransactionType, e.Note, e.IdempotencyKey).
		Scan(&e.ID, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert ledger entry: %w", err)
	}
	return true, nil
}

// Total returns the user's credits for one event.
func (r *Repository) Total(ctx context.Context, userID, eventID uuid.UUID) (int, error) {
	var total int
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(credits), 0) FROM credit_ledger WHERE user_id = $1 AND event_id = $2`,
		userID, eventID).Scan(&total)
	return total, err
}

// TotalForUser returns the user's credits across all events.
func (r *Repository) TotalForUser(ctx context.Context, userID uuid.UUID) (int, error) {
	var total int
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(credits), 0) FROM credit_ledger WHERE user_id = $1`, userID).Scan(&total)
	return total, err
}

// ListByUser returns a user's ledger entries, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.CreditEntry, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, user_id, event_id, credits, source, transaction_type, note, idempotency_key, created_at
		FROM credit_ledger WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.CreditEntry
	for rows.Next() {
		var e models.CreditEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.EventID, &e.Credits, &e.Source, &e.TransactionType, &e.Note, &e.IdempotencyKey, &e.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, e)
	}
	return list, rows.Err()
}
