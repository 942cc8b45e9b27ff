package waitlist

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ce-seminars/backend/internal/models"
	"github.com/ce-seminars/backend/pkg/database"
)

// ErrNotFound is returned when no waitlist entry matches.
var ErrNotFound = errors.New("waitlist entry not found")

const entryColumns = `id, seminar_id, user_id, email, full_name, position, status, created_at, notified_at, expires_at`

// Repository handles waitlist persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a waitlist repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanEntry(row pgx.Row) (*models.WaitlistEntry, error) {
	var e models.WaitlistEntry
	err := row.Scan(&e.ID, &e.SeminarID, &e.UserID, &e.Email, &e.FullName, &e.Position, &e.Status, &e.CreatedAt, &e.NotifiedAt, &e.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Join appends e to the seminar's waitlist with position = current max + 1. Joining twice with the
// same email returns the existing entry.
func (r *Repository) Join(ctx context.Context, e *models.WaitlistEntry) error {
	e.Email = strings.ToLower(strings.TrimSpace(e.Email))
	return database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		// Serialize position assignment per seminar.
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, e.SeminarID.String()); err != nil {
			return fmt.Errorf("lock waitlist: %w", err)
		}
		const q = `INSERT INTO seminar_waitlist (seminar_id, user_id, email, full_name, position)
			VALUES ($1, $2, $3, $4, COALESCE((SELECT MAX(position) FROM seminar_waitlist WHERE seminar_id = $1), 0) + 1)
			ON CONFLICT (seminar_id, email) DO NOTHING
			RETURNING ` + entryColumns
		got, err := scanEntry(tx.QueryRow(ctx, q, e.SeminarID, e.UserID, e.Email, e.FullName))
		if errors.Is(err, ErrNotFound) {
			got, err = scanEntry(tx.QueryRow(ctx,
				`SELECT `+entryColumns+` FROM seminar_waitlist WHERE seminar_id = $1 AND email = $2`, e.SeminarID, e.Email))
		}
		if err != nil {
			return fmt.Errorf("join waitlist: %w", err)
		}
		*e = *got
		return nil
	})
}

// InTx runs fn in one database transaction.
func (r *Repository) InTx(ctx context.Context, fn func(Tx) error) error {
	return database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(&pgTx{tx: tx})
	})
}

type pgTx struct {
	tx pgx.Tx
}

// ClaimNext locks the oldest waiting entry not in skip. Rows locked by another promotion are skipped.
// Returns ErrNotFound when none is left.
func (t *pgTx) ClaimNext(ctx context.Context, seminarID uuid.UUID, skip []uuid.UUID) (*models.WaitlistEntry, error) {
	if skip == nil {
		skip = []uuid.UUID{}
	}
	return scanEntry(t.tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM seminar_waitlist
		WHERE seminar_id = $1 AND status = 'waiting' AND NOT (id = ANY($2::uuid[]))
		ORDER BY created_at ASC, position ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED`, seminarID, skip))
}

// MarkNotified moves a claimed waiting entry to notified with its hold window.
func (t *pgTx) MarkNotified(ctx context.Context, id uuid.UUID, notifiedAt, expiresAt time.Time) error {
	tag, err := t.tx.Exec(ctx, `UPDATE seminar_waitlist
		SET status = 'notified', notified_at = $1, expires_at = $2
		WHERE id = $3 AND status = 'waiting'`, notifiedAt, expiresAt, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListBySeminar returns the whole waitlist in position order.
func (r *Repository) ListBySeminar(ctx context.Context, seminarID uuid.UUID) ([]models.WaitlistEntry, error) {
	return r.list(ctx, `SELECT `+entryColumns+` FROM seminar_waitlist WHERE seminar_id = $1 ORDER BY position ASC`, seminarID)
}

func (r *Repository) list(ctx context.Context, q string, args ...any) ([]models.WaitlistEntry, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.WaitlistEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *e)
	}
	return list, rows.Err()
}

// ExpireStale moves notified entries whose hold window ended before now to expired.
func (r *Repository) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE seminar_waitlist SET status = 'expired'
		WHERE status = 'notified' AND expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("expire waitlist: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
