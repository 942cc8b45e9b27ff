package models

import (
	"time"

	"github.com/google/uuid"
)

// CreditsPerSession is the CE credit amount awarded per attended session.
const CreditsPerSession = 2

// CheckInMethod identifies how an attendance row was recorded.
type CheckInMethod string

const (
	CheckInQR     CheckInMethod = "qr"
	CheckInManual CheckInMethod = "manual"
)

// Attendance is one successful check-in of a registration at a session.
type Attendance struct {
	ID             uuid.UUID     `json:"id"`
	RegistrationID uuid.UUID     `json:"registration_id"`
	SessionID      uuid.UUID     `json:"session_id"`
	IsMakeup       bool          `json:"is_makeup"`
	CheckedInBy    *uuid.UUID    `json:"checked_in_by,omitempty"`
	Method         CheckInMethod `json:"method"`
	CreditsAwarded int           `json:"credits_awarded"`
	CheckedInAt    time.Time     `json:"checked_in_at"`
}

// AttendeeRow is one line of a session's attendee sheet.
type AttendeeRow struct {
	AttendanceID   uuid.UUID     `json:"attendance_id"`
	RegistrationID uuid.UUID     `json:"registration_id"`
	UserID         uuid.UUID     `json:"user_id"`
	FullName       string        `json:"full_name"`
	Email          string        `json:"email"`
	IsMakeup       bool          `json:"is_makeup"`
	Method         CheckInMethod `json:"method"`
	CheckedInAt    time.Time     `json:"checked_in_at"`
}
