package models

import "github.com/shopspring/decimal"

// LoanState is the lifecycle position of a loan obligation
type LoanState string

const (
	LoanRequested   LoanState = "requested"
	LoanOutstanding LoanState = "outstanding"
	LoanSettled     LoanState = "settled"
)

// Repayment represents an obligation derived from an accepted loan
type Repayment struct {
	AmountDue decimal.Decimal `json:"amount_due"`
	DueDate   uint64          `json:"due_date"` // Unix timestamp
}

// Pending reports whether anything is still owed.
func (r Repayment) Pending() bool {
	return r.AmountDue.IsPositive()
}

// State maps the obligation onto the loan lifecycle.
func (r Repayment) State() LoanState {
	if r.Pending() {
		return LoanOutstanding
	}
	return LoanSettled
}
