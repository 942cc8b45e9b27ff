// Package waitlist keeps the per-seminar waiting list and promotes entries when seats free up.
package waitlist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ce-seminars/backend/internal/metrics"
	"github.com/ce-seminars/backend/internal/models"
)

// DefaultHoldWindow is how long a notified entry keeps its claim when none is configured.
const DefaultHoldWindow = 48 * time.Hour

// Store is the persistence the promoter needs; *Repository implements it.
type Store interface {
	Join(ctx context.Context, e *models.WaitlistEntry) error
	ListBySeminar(ctx context.Context, seminarID uuid.UUID) ([]models.WaitlistEntry, error)
	ExpireStale(ctx context.Context, now time.Time) (int, error)
	// InTx commits when fn returns nil and rolls back otherwise.
	InTx(ctx context.Context, fn func(Tx) error) error
}

// Tx is one promotion attempt. ClaimNext must lock the returned row until the transaction ends
// and skip rows already locked by concurrent promotions.
type Tx interface {
	ClaimNext(ctx context.Context, seminarID uuid.UUID, skip []uuid.UUID) (*models.WaitlistEntry, error)
	MarkNotified(ctx context.Context, id uuid.UUID, notifiedAt, expiresAt time.Time) error
}

var (
	// errSendFailed rolls back the mark of an entry whose notification failed.
	errSendFailed = errors.New("waitlist notification failed")
	errExhausted  = errors.New("no waiting entries left")
)

// Notifier tells a waitlisted person a seat is available until expiresAt.
type Notifier interface {
	NotifyWaitlist(ctx context.Context, e *models.WaitlistEntry, expiresAt time.Time) error
}

// Promoter notifies the oldest waiting entries when seats free up.
type Promoter struct {
	store    Store
	notifier Notifier
	hold     time.Duration
	metrics  *metrics.Metrics
	now      func() time.Time
	logger   *zap.Logger
}

// NewPromoter creates a promoter. hold <= 0 uses DefaultHoldWindow.
func NewPromoter(store Store, notifier Notifier, hold time.Duration, m *metrics.Metrics, logger *zap.Logger) *Promoter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if hold <= 0 {
		hold = DefaultHoldWindow
	}
	return &Promoter{store: store, notifier: notifier, hold: hold, metrics: m, now: time.Now, logger: logger}
}

// Join adds a contact to a seminar's waitlist.
func (p *Promoter) Join(ctx context.Context, e *models.WaitlistEntry) error {
	return p.store.Join(ctx, e)
}

// List returns a seminar's waitlist.
func (p *Promoter) List(ctx context.Context, seminarID uuid.UUID) ([]models.WaitlistEntry, error) {
	return p.store.ListBySeminar(ctx, seminarID)
}

// NotifyNext makes up to slots notification attempts, oldest waiting entry first, and returns how
// many succeeded. Each attempt claims its entry under a row lock, marks it notified and sends in one
// transaction, so concurrent promotions never pick the same entry. Entries whose notification fails
// stay waiting and are retried on the next promotion.
func (p *Promoter) NotifyNext(ctx context.Context, seminarID uuid.UUID, slots int) (int, error) {
	if slots <= 0 {
		slots = 1
	}
	notified := 0
	skip := []uuid.UUID{}
attempts:
	for attempt := 0; attempt < slots; attempt++ {
		var entry *models.WaitlistEntry
		err := p.store.InTx(ctx, func(tx Tx) error {
			e, err := tx.ClaimNext(ctx, seminarID, skip)
			if errors.Is(err, ErrNotFound) {
				return errExhausted
			}
			if err != nil {
				return err
			}
			entry = e
			skip = append(skip, e.ID)
			now := p.now()
			expires := now.Add(p.hold)
			if err := tx.MarkNotified(ctx, e.ID, now, expires); err != nil {
				return fmt.Errorf("mark notified: %w", err)
			}
			if err := p.notifier.NotifyWaitlist(ctx, e, expires); err != nil {
				p.logger.Warn("waitlist notification failed",
					zap.String("waitlist_id", e.ID.String()),
					zap.String("email", e.Email),
					zap.Error(err))
				return errSendFailed
			}
			return nil
		})
		switch {
		case errors.Is(err, errExhausted):
			break attempts
		case errors.Is(err, errSendFailed):
			p.metrics.WaitlistNotification("failed")
		case err != nil:
			if entry == nil {
				return notified, fmt.Errorf("claim waitlist entry: %w", err)
			}
			p.metrics.WaitlistNotification("failed")
			p.logger.Error("waitlist promotion failed", zap.String("waitlist_id", entry.ID.String()), zap.Error(err))
		default:
			p.metrics.WaitlistNotification("sent")
			notified++
		}
	}
	if notified > 0 {
		p.logger.Info("waitlist promoted", zap.String("seminar_id", seminarID.String()), zap.Int("notified", notified))
	}
	return notified, nil
}

// ExpireStale expires notified entries whose hold window has lapsed.
func (p *Promoter) ExpireStale(ctx context.Context) (int, error) {
	n, err := p.store.ExpireStale(ctx, p.now())
	if err != nil {
		return 0, err
	}
	p.metrics.WaitlistExpired(n)
	return n, nil
}
