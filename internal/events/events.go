// Package events turns committed registration and attendance changes into broker messages.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ce-seminars/backend/internal/attendance"
	"github.com/ce-seminars/backend/internal/models"
)

// Routing keys.
const (
	KeyAttendanceRecorded    = "attendance.recorded"
	KeyRegistrationCreated   = "registration.created"
	KeyRegistrationCancelled = "registration.cancelled"
)

const publishTimeout = 5 * time.Second

// Publisher is satisfied by mq.Publisher and mq.Nop.
type Publisher interface {
	PublishJSON(ctx context.Context, key string, v any) error
}

// AttendanceRecorded is the body of an attendance.recorded event.
type AttendanceRecorded struct {
	AttendanceID      uuid.UUID `json:"attendance_id"`
	RegistrationID    uuid.UUID `json:"registration_id"`
	UserID            uuid.UUID `json:"user_id"`
	SeminarID         uuid.UUID `json:"seminar_id"`
	SessionID         uuid.UUID `json:"session_id"`
	SessionNumber     int       `json:"session_number"`
	Method            string    `json:"method"`
	IsMakeup          bool      `json:"is_makeup"`
	CreditsAwarded    int       `json:"credits_awarded"`
	SessionsCompleted int       `json:"sessions_completed"`
	SeriesCompleted   bool      `json:"series_completed"`
	CheckedInAt       time.Time `json:"checked_in_at"`
}

// RegistrationChanged is the body of registration.created and registration.cancelled events.
type RegistrationChanged struct {
	RegistrationID uuid.UUID `json:"registration_id"`
	UserID         uuid.UUID `json:"user_id"`
	SeminarID      uuid.UUID `json:"seminar_id"`
	OrderID        *string   `json:"order_id,omitempty"`
	Status         string    `json:"status"`
	Notes          string    `json:"notes,omitempty"`
	At             time.Time `json:"at"`
}

// Emitter listens to the attendance and registration services. Publish failures are logged only.
type Emitter struct {
	pub    Publisher
	logger *zap.Logger
	now    func() time.Time
}

// NewEmitter creates an Emitter.
func NewEmitter(pub Publisher, logger *zap.Logger) *Emitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Emitter{pub: pub, logger: logger, now: time.Now}
}

// CheckedIn publishes attendance.recorded.
func (e *Emitter) CheckedIn(ctx context.Context, r *attendance.Result) {
	e.publish(ctx, KeyAttendanceRecorded, AttendanceRecorded{
		AttendanceID:      r.AttendanceID,
		RegistrationID:    r.RegistrationID,
		UserID:            r.UserID,
		SeminarID:         r.SeminarID,
		SessionID:         r.SessionID,
		SessionNumber:     r.SessionNumber,
		Method:            string(r.Method),
		IsMakeup:          r.IsMakeup,
		CreditsAwarded:    r.CreditsAwarded,
		SessionsCompleted: r.SessionsCompleted,
		SeriesCompleted:   r.SeriesCompleted,
		CheckedInAt:       r.CheckedInAt,
	})
}

// RegistrationCreated publishes registration.created.
func (e *Emitter) RegistrationCreated(ctx context.Context, reg *models.Registration) {
	e.publish(ctx, KeyRegistrationCreated, e.changed(reg))
}

// RegistrationCancelled publishes registration.cancelled.
func (e *Emitter) RegistrationCancelled(ctx context.Context, reg *models.Registration) {
	e.publish(ctx, KeyRegistrationCancelled, e.changed(reg))
}

func (e *Emitter) changed(reg *models.Registration) RegistrationChanged {
	return RegistrationChanged{
		RegistrationID: reg.ID,
		UserID:         reg.UserID,
		SeminarID:      reg.SeminarID,
		OrderID:        reg.OrderID,
		Status:         string(reg.Status),
		Notes:          reg.Notes,
		At:             e.now().UTC(),
	}
}

func (e *Emitter) publish(ctx context.Context, key string, body any) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := e.pub.PublishJSON(ctx, key, body); err != nil {
		e.logger.Warn("publish event failed", zap.String("key", key), zap.Error(err))
	}
}
