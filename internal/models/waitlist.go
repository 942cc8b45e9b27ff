package models

import (
	"time"

	"github.com/google/uuid"
)

// WaitlistStatus is the state of a waitlist entry.
type WaitlistStatus string

const (
	WaitlistWaiting  WaitlistStatus = "waiting"
	WaitlistNotified WaitlistStatus = "notified"
	WaitlistExpired  WaitlistStatus = "expired"
)

// WaitlistEntry is a pending signup for a full seminar.
type WaitlistEntry struct {
	ID         uuid.UUID      `json:"id"`
	SeminarID  uuid.UUID      `json:"seminar_id"`
	UserID     *uuid.UUID     `json:"user_id,omitempty"`
	Email      string         `json:"email"`
	FullName   string         `json:"full_name"`
	Position   int            `json:"position"`
	Status     WaitlistStatus `json:"status"`
	CreatedAt  time.Time      `json:"created_at"`
	NotifiedAt *time.Time     `json:"notified_at,omitempty"`
	ExpiresAt  *time.Time     `json:"expires_at,omitempty"`
}
