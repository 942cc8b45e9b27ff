package orders

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository tracks which orders have been turned into registrations.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an order repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Claim marks orderID as being processed. Returns false when another delivery already claimed it.
func (r *Repository) Claim(ctx context.Context, orderID string) (bool, error) {
	const q = `INSERT INTO processed_orders (order_id) VALUES ($1)
		ON CONFLICT (order_id) DO NOTHING
		RETURNING order_id`
	var id string
	err := r.pool.QueryRow(ctx, q, orderID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Complete records the registrations an order produced.
func (r *Repository) Complete(ctx context.Context, orderID string, registrationIDs []uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE processed_orders SET registration_ids = $2, processed_at = NOW() WHERE order_id = $1`,
		orderID, registrationIDs)
	return err
}

// Release forgets a claim so a redelivery of the order can be processed again.
func (r *Repository) Release(ctx context.Context, orderID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM processed_orders WHERE order_id = $1`, orderID)
	return err
}
