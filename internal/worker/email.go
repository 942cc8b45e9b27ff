package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ce-seminars/backend/internal/metrics"
	"github.com/ce-seminars/backend/pkg/queue"
)

// JobQueue is the queue surface the processor needs.
type JobQueue interface {
	Dequeue(ctx context.Context, timeout time.Duration) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) (dead bool, err error)
}

// DeliveryLog records delivery outcomes.
type DeliveryLog interface {
	MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}

// EmailProcessor delivers queued email jobs.
type EmailProcessor struct {
	queue   JobQueue
	logs    DeliveryLog
	sender  Sender
	metrics *metrics.Metrics
	backoff time.Duration
	poll    time.Duration
	logger  *zap.Logger
}

// NewEmailProcessor creates an email processor.
func NewEmailProcessor(q JobQueue, logs DeliveryLog, sender Sender, m *metrics.Metrics, logger *zap.Logger) *EmailProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmailProcessor{
		queue:   q,
		logs:    logs,
		sender:  sender,
		metrics: m,
		backoff: queue.RetryBackoff,
		poll:    5 * time.Second,
		logger:  logger,
	}
}

// Process delivers one job and records the outcome in the email log.
func (p *EmailProcessor) Process(ctx context.Context, job *queue.Job) error {
	payload, err := job.Email()
	if err != nil {
		return err
	}
	err = p.sender.Send(ctx, Email{
		To:      payload.RecipientEmail,
		ToName:  payload.RecipientName,
		Subject: payload.Subject,
		Body:    payload.BodyText,
	})
	if err != nil {
		return fmt.Errorf("send %s to %s: %w", payload.EmailType, payload.RecipientEmail, err)
	}
	if err := p.logs.MarkSent(ctx, payload.EmailLogID, time.Now()); err != nil {
		p.logger.Warn("mark email sent failed", zap.String("email_log_id", payload.EmailLogID.String()), zap.Error(err))
	}
	p.logger.Info("email sent",
		zap.String("email_type", payload.EmailType),
		zap.String("email_log_id", payload.EmailLogID.String()))
	return nil
}

// handle processes a job and applies retry or dead-lettering on failure.
func (p *EmailProcessor) handle(ctx context.Context, job *queue.Job) bool {
	p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
	err := p.Process(ctx, job)
	if err == nil {
		p.metrics.EmailProcessed("sent")
		return true
	}
	p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
	dead, reErr := p.queue.Retry(ctx, job)
	if reErr != nil {
		p.logger.Error("retry enqueue failed", zap.Error(reErr))
		return false
	}
	if !dead {
		p.metrics.EmailProcessed("retry")
		return false
	}
	p.metrics.EmailProcessed("dead")
	if payload, pErr := job.Email(); pErr == nil {
		if mErr := p.logs.MarkFailed(ctx, payload.EmailLogID, err.Error()); mErr != nil {
			p.logger.Warn("mark email failed", zap.Error(mErr))
		}
	}
	return false
}

// Run starts the worker loop: dequeue, process, retry on error. It returns when ctx is done.
func (p *EmailProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("email worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx, p.poll)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			sleep(ctx, p.backoff)
			continue
		}
		if job == nil {
			continue
		}
		if !p.handle(ctx, job) {
			sleep(ctx, p.backoff)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
