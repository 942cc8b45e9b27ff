package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// SessionsPerSeminar is the fixed length of a seminar series.
const SessionsPerSeminar = 10

// MaxQRScans is the hard cap on automatic check-ins per registration.
const MaxQRScans = 10

// RegistrationStatus is the lifecycle state of a registration.
type RegistrationStatus string

const (
	RegistrationActive    RegistrationStatus = "active"
	RegistrationCompleted RegistrationStatus = "completed"
	RegistrationCancelled RegistrationStatus = "cancelled"
)

// ErrInvalidTransition is returned when a status change is not allowed from the current state.
var ErrInvalidTransition = errors.New("invalid registration status transition")

// Valid reports whether s is one of the known statuses.
func (s RegistrationStatus) Valid() bool {
	switch s {
	case RegistrationActive, RegistrationCompleted, RegistrationCancelled:
		return true
	}
	return false
}

// CanTransition reports whether a registration may move from s to next.
// active -> completed | cancelled; completed and cancelled are terminal.
func (s RegistrationStatus) CanTransition(next RegistrationStatus) bool {
	switch s {
	case RegistrationActive:
		return next == RegistrationCompleted || next == RegistrationCancelled
	case RegistrationCompleted, RegistrationCancelled:
		return false
	default:
		return false
	}
}

// Registration is a user's enrollment in a seminar series.
type Registration struct {
	ID                uuid.UUID          `json:"id"`
	UserID            uuid.UUID          `json:"user_id"`
	SeminarID         uuid.UUID          `json:"seminar_id"`
	OrderID           *string            `json:"order_id,omitempty"`
	RegisteredAt      time.Time          `json:"registered_at"`
	StartSessionDate  *time.Time         `json:"start_session_date,omitempty"`
	SessionsCompleted int                `json:"sessions_completed"`
	SessionsRemaining int                `json:"sessions_remaining"`
	MakeupUsed        bool               `json:"makeup_used"`
	Status            RegistrationStatus `json:"status"`
	QRToken           string             `json:"-"`
	QRImagePath       string             `json:"qr_image_path,omitempty"`
	QRScanCount       int                `json:"qr_scan_count"`
	Notes             string             `json:"notes,omitempty"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

// CompleteSession advances the session counters by one attended session.
// Counters saturate at the series length so completed+remaining stays constant, and
// status flips to completed exactly when remaining reaches zero on an active registration.
// Cancelled registrations keep their status.
func (r *Registration) CompleteSession() {
	if r.SessionsCompleted < SessionsPerSeminar {
		r.SessionsCompleted++
	}
	r.SessionsRemaining = SessionsPerSeminar - r.SessionsCompleted
	if r.SessionsRemaining < 0 {
		r.SessionsRemaining = 0
	}
	if r.SessionsRemaining == 0 && r.Status == RegistrationActive {
		r.Status = RegistrationCompleted
	}
}

// Cancel moves the registration to cancelled and records the reason.
func (r *Registration) Cancel(reason string) error {
	if !r.Status.CanTransition(RegistrationCancelled) {
		return ErrInvalidTransition
	}
	r.Status = RegistrationCancelled
	r.Notes = reason
	return nil
}

// RegistrationWithUser joins a registration with the registrant's directory entry and credit total.
type RegistrationWithUser struct {
	Registration
	FullName     string `json:"full_name"`
	Email        string `json:"email"`
	TotalCredits int    `json:"total_credits"`
}
