// Package notify turns domain events into queued emails with a delivery log row per message.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ce-seminars/backend/internal/attendance"
	"github.com/ce-seminars/backend/internal/emaillogs"
	"github.com/ce-seminars/backend/internal/models"
	"github.com/ce-seminars/backend/pkg/queue"
)

// LogStore records outbound emails.
type LogStore interface {
	Create(ctx context.Context, el *models.EmailLog) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}

// Enqueuer hands email jobs to the worker.
type Enqueuer interface {
	EnqueueEmail(ctx context.Context, payload queue.EmailPayload) error
}

// UserLookup resolves recipients.
type UserLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// SeminarLookup resolves seminar titles.
type SeminarLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Seminar, error)
}

// RegistrationLookup resolves registrations for resends.
type RegistrationLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Registration, error)
}

// Mailer composes and queues emails.
type Mailer struct {
	logs          LogStore
	queue         Enqueuer
	users         UserLookup
	seminars      SeminarLookup
	registrations RegistrationLookup
	logger        *zap.Logger
}

// NewMailer creates a mailer.
func NewMailer(logs LogStore, q Enqueuer, users UserLookup, seminars SeminarLookup, regs RegistrationLookup, logger *zap.Logger) *Mailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mailer{logs: logs, queue: q, users: users, seminars: seminars, registrations: regs, logger: logger}
}

type message struct {
	emailType      string
	seminarID      uuid.UUID
	registrationID *uuid.UUID
	waitlistID     *uuid.UUID
	to             string
	name           string
	subject        string
	body           string
}

// send writes a pending log row and queues the job. A queueing failure marks the row failed.
func (m *Mailer) send(ctx context.Context, msg message) error {
	seminarID := msg.seminarID
	el := &models.EmailLog{
		SeminarID:      &seminarID,
		RegistrationID: msg.registrationID,
		WaitlistID:     msg.waitlistID,
		EmailType:      msg.emailType,
		RecipientEmail: msg.to,
		Subject:        msg.subject,
	}
	if err := m.logs.Create(ctx, el); err != nil {
		return err
	}
	err := m.queue.EnqueueEmail(ctx, queue.EmailPayload{
		EmailLogID:     el.ID,
		EmailType:      msg.emailType,
		SeminarID:      msg.seminarID,
		RegistrationID: msg.registrationID,
		WaitlistID:     msg.waitlistID,
		RecipientEmail: msg.to,
		RecipientName:  msg.name,
		Subject:        msg.subject,
		BodyText:       msg.body,
	})
	if err != nil {
		if mErr := m.logs.MarkFailed(ctx, el.ID, err.Error()); mErr != nil {
			m.logger.Warn("mark email failed", zap.String("email_log_id", el.ID.String()), zap.Error(mErr))
		}
		return fmt.Errorf("enqueue email: %w", err)
	}
	return nil
}

func (m *Mailer) recipient(ctx context.Context, userID, seminarID uuid.UUID) (*models.User, *models.Seminar, error) {
	u, err := m.users.GetByID(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("load user: %w", err)
	}
	s, err := m.seminars.GetByID(ctx, seminarID)
	if err != nil {
		return nil, nil, fmt.Errorf("load seminar: %w", err)
	}
	return u, s, nil
}

func (m *Mailer) confirmation(ctx context.Context, reg *models.Registration) error {
	u, s, err := m.recipient(ctx, reg.UserID, reg.SeminarID)
	if err != nil {
		return err
	}
	regID := reg.ID
	return m.send(ctx, message{
		emailType:      models.EmailTypeRegistrationConfirmation,
		seminarID:      reg.SeminarID,
		registrationID: &regID,
		to:             u.Email,
		name:           u.FullName,
		subject:        "You're registered: " + s.Title,
		body:           confirmationBody(u.FullName, s.Title, reg),
	})
}

// RegistrationCreated queues the registration confirmation.
func (m *Mailer) RegistrationCreated(ctx context.Context, reg *models.Registration) {
	if err := m.confirmation(ctx, reg); err != nil {
		m.logger.Warn("queue confirmation email failed", zap.String("registration_id", reg.ID.String()), zap.Error(err))
	}
}

// RegistrationCancelled queues the cancellation notice.
func (m *Mailer) RegistrationCancelled(ctx context.Context, reg *models.Registration) {
	u, s, err := m.recipient(ctx, reg.UserID, reg.SeminarID)
	if err == nil {
		regID := reg.ID
		err = m.send(ctx, message{
			emailType:      models.EmailTypeCancellation,
			seminarID:      reg.SeminarID,
			registrationID: &regID,
			to:             u.Email,
			name:           u.FullName,
			subject:        "Registration cancelled: " + s.Title,
			body:           cancellationBody(u.FullName, s.Title, reg),
		})
	}
	if err != nil {
		m.logger.Warn("queue cancellation email failed", zap.String("registration_id", reg.ID.String()), zap.Error(err))
	}
}

// CheckedIn queues the completion email when a check-in finishes the series.
func (m *Mailer) CheckedIn(ctx context.Context, r *attendance.Result) {
	if !r.SeriesCompleted {
		return
	}
	u, s, err := m.recipient(ctx, r.UserID, r.SeminarID)
	if err == nil {
		regID := r.RegistrationID
		err = m.send(ctx, message{
			emailType:      models.EmailTypeSeminarCompleted,
			seminarID:      r.SeminarID,
			registrationID: &regID,
			to:             u.Email,
			name:           u.FullName,
			subject:        "Congratulations on completing " + s.Title,
			body:           completionBody(u.FullName, s.Title, r.SessionsCompleted),
		})
	}
	if err != nil {
		m.logger.Warn("queue completion email failed", zap.String("registration_id", r.RegistrationID.String()), zap.Error(err))
	}
}

// NotifyWaitlist queues the seat-available email. An error leaves the entry waiting.
func (m *Mailer) NotifyWaitlist(ctx context.Context, e *models.WaitlistEntry, expiresAt time.Time) error {
	s, err := m.seminars.GetByID(ctx, e.SeminarID)
	if err != nil {
		return fmt.Errorf("load seminar: %w", err)
	}
	waitlistID := e.ID
	return m.send(ctx, message{
		emailType:  models.EmailTypeWaitlistSpot,
		seminarID:  e.SeminarID,
		waitlistID: &waitlistID,
		to:         e.Email,
		name:       e.FullName,
		subject:    "A seat opened up: " + s.Title,
		body:       waitlistBody(e.FullName, s.Title, expiresAt),
	})
}

// ResendConfirmation re-queues the confirmation for a registration of the given seminar.
func (m *Mailer) ResendConfirmation(ctx context.Context, seminarID, registrationID uuid.UUID) error {
	reg, err := m.registrations.GetByID(ctx, registrationID)
	if err != nil {
		return fmt.Errorf("load registration: %w", err)
	}
	if reg.SeminarID != seminarID {
		return emaillogs.ErrRegistrationMismatch
	}
	return m.confirmation(ctx, reg)
}
