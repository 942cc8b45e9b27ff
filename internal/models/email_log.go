package models

import (
	"time"

	"github.com/google/uuid"
)

// EmailType for outbound mail.
const (
	EmailTypeRegistrationConfirmation = "registration_confirmation"
	EmailTypeWaitlistSpot             = "waitlist_spot_available"
	EmailTypeSeminarCompleted         = "seminar_completed"
	EmailTypeCancellation             = "registration_cancelled"
)

// EmailLogStatus for delivery.
const (
	EmailLogStatusPending = "pending"
	EmailLogStatusSent    = "sent"
	EmailLogStatusFailed  = "failed"
)

// EmailLog records one outbound email and its delivery state.
type EmailLog struct {
	ID             uuid.UUID  `json:"id"`
	SeminarID      *uuid.UUID `json:"seminar_id,omitempty"`
	RegistrationID *uuid.UUID `json:"registration_id,omitempty"`
	WaitlistID     *uuid.UUID `json:"waitlist_id,omitempty"`
	EmailType      string     `json:"email_type"`
	RecipientEmail string     `json:"recipient_email"`
	Subject        string     `json:"subject,omitempty"`
	Status         string     `json:"status"`
	SentAt         *time.Time `json:"sent_at,omitempty"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}
