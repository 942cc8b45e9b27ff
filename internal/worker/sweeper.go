package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Expirer expires stale waitlist holds.
type Expirer interface {
	ExpireStale(ctx context.Context) (int, error)
}

// WaitlistSweeper periodically expires notified waitlist entries whose hold window lapsed.
type WaitlistSweeper struct {
	expirer  Expirer
	interval time.Duration
	logger   *zap.Logger
}

// NewWaitlistSweeper creates a sweeper.
func NewWaitlistSweeper(expirer Expirer, interval time.Duration, logger *zap.Logger) *WaitlistSweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &WaitlistSweeper{expirer: expirer, interval: interval, logger: logger}
}

// Sweep runs one expiry pass.
func (s *WaitlistSweeper) Sweep(ctx context.Context) {
	n, err := s.expirer.ExpireStale(ctx)
	if err != nil {
		s.logger.Error("waitlist sweep failed", zap.Error(err))
		return
	}
	if n > 0 {
		s.logger.Info("waitlist holds expired", zap.Int("count", n))
	}
}

// Run sweeps immediately and then every interval until ctx is done.
func (s *WaitlistSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.Sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("waitlist sweeper stopping")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}
