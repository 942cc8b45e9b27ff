package models

import (
	"time"

	"github.com/google/uuid"
)

// CreditSource is where a ledger entry originated.
type CreditSource string

const (
	CreditSourceSeminar CreditSource = "seminar"
	CreditSourceEvent   CreditSource = "event"
	CreditSourceManual  CreditSource = "manual"
)

// Ledger transaction types.
const (
	TransactionEarned     = "earned"
	TransactionAdjustment = "adjustment"
)

// CreditEntry is one append-only CE credit transaction.
type CreditEntry struct {
	ID              uuid.UUID    `json:"id"`
	UserID          uuid.UUID    `json:"user_id"`
	EventID         uuid.UUID    `json:"event_id"`
	Credits         int          `json:"credits"`
	Source          CreditSource `json:"source"`
	TransactionType string       `json:"transaction_type"`
	Note            string       `json:"note,omitempty"`
	IdempotencyKey  *string      `json:"idempotency_key,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
}
