package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LoanRequest represents a loan the account owner asked the lending venue for
type LoanRequest struct {
	ID           uuid.UUID       `json:"id"`
	Amount       decimal.Decimal `json:"amount"`
	InterestRate float64         `json:"interest_rate"` // ratio in [0, 1], never currency
	DurationDays uint32          `json:"duration_days"`
	RequestedAt  time.Time       `json:"requested_at"`
}

// SubmissionOutcome is the lending venue's answer to a submitted request.
// A rejection is a normal result, not an error.
type SubmissionOutcome string

const (
	SubmissionAccepted SubmissionOutcome = "accepted"
	SubmissionRejected SubmissionOutcome = "rejected"
)
