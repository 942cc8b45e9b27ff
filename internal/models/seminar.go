package models

import (
	"time"

	"github.com/google/uuid"
)

// Seminar is a recurring 10-session course.
type Seminar struct {
	ID          uuid.UUID `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Capacity    int       `json:"capacity"` // 0 = unlimited
	ProductID   *int64    `json:"product_id,omitempty"`
	CreatedBy   uuid.UUID `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Session is one scheduled occurrence within a seminar.
type Session struct {
	ID              uuid.UUID `json:"id"`
	SeminarID       uuid.UUID `json:"seminar_id"`
	SessionNumber   int       `json:"session_number"`
	SessionDate     time.Time `json:"session_date"`
	Capacity        int       `json:"capacity"`
	RegisteredCount int       `json:"registered_count"`
	Topic           string    `json:"topic"`
	CreatedAt       time.Time `json:"created_at"`
}
