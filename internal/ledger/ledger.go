// Package ledger records loan requests and repayment obligations for one
// account. Requests and repayments are kept in separate append-only lists;
// recording a request never creates a repayment.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Dan9191/plutus/internal/confidential"
	"github.com/Dan9191/plutus/internal/gateway"
	"github.com/Dan9191/plutus/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Validation errors for loan parameters
var (
	ErrNonPositiveAmount   = errors.New("loan amount must be positive")
	ErrInvalidRate         = errors.New("interest rate must be within [0, 1]")
	ErrNonPositiveDuration = errors.New("loan duration must be positive")
)

// Ledger holds the account's loan requests and repayments
type Ledger struct {
	requests   *confidential.Box[[]models.LoanRequest]
	repayments *confidential.Box[[]models.Repayment]
	now        func() time.Time
}

// New creates a ledger with empty request and repayment lists
func New(sealer confidential.Sealer) *Ledger {
	return &Ledger{
		requests:   confidential.NewWith(sealer, []models.LoanRequest{}),
		repayments: confidential.NewWith(sealer, []models.Repayment{}),
		now:        time.Now,
	}
}

// Requests exposes the request container for persistence
func (l *Ledger) Requests() *confidential.Box[[]models.LoanRequest] { return l.requests }

// Repayments exposes the repayment container for persistence
func (l *Ledger) Repayments() *confidential.Box[[]models.Repayment] { return l.repayments }

// ValidateRequest checks loan parameters without recording anything
func ValidateRequest(amount decimal.Decimal, interestRate float64, durationDays uint32) error {
	if !amount.IsPositive() {
		return ErrNonPositiveAmount
	}
	if err := models.ValidateAmount(amount); err != nil {
		return err
	}
	// NaN fails both comparisons
	if !(interestRate >= 0 && interestRate <= 1) {
		return ErrInvalidRate
	}
	if durationDays == 0 {
		return ErrNonPositiveDuration
	}
	return nil
}

// RecordRequest validates and appends a loan request
func (l *Ledger) RecordRequest(ctx context.Context, amount decimal.Decimal, interestRate float64, durationDays uint32) (models.LoanRequest, error) {
	if err := ValidateRequest(amount, interestRate, durationDays); err != nil {
		return models.LoanRequest{}, err
	}

	requests, err := l.requests.Get(ctx)
	if err != nil {
		return models.LoanRequest{}, err
	}

	req := models.LoanRequest{
		ID:           uuid.New(),
		Amount:       amount,
		InterestRate: interestRate,
		DurationDays: durationDays,
		RequestedAt:  l.now().UTC(),
	}
	l.requests.Set(append(requests, req))
	return req, nil
}

type submission struct {
	RequestID    string      `json:"request_id"`
	Amount       json.Number `json:"amount"`
	InterestRate float64     `json:"interest_rate"`
	Duration     uint32      `json:"duration"`
}

// SubmitRequest forwards req to the lending venue. Only HTTP 200 counts as
// accepted; every other status is a rejection, not an error.
func (l *Ledger) SubmitRequest(ctx context.Context, s gateway.Submitter, endpoint string, req models.LoanRequest) (models.SubmissionOutcome, error) {
	payload, err := json.Marshal(submission{
		RequestID:    req.ID.String(),
		Amount:       json.Number(req.Amount.String()),
		InterestRate: req.InterestRate,
		Duration:     req.DurationDays,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode loan request: %w", err)
	}

	resp, err := s.Submit(ctx, endpoint, req.ID.String(), payload)
	if err != nil {
		return "", err
	}
	if resp.StatusCode == http.StatusOK {
		return models.SubmissionAccepted, nil
	}
	return models.SubmissionRejected, nil
}

// ScheduleRepayment appends an obligation coming from the venue's acceptance flow
func (l *Ledger) ScheduleRepayment(ctx context.Context, amountDue decimal.Decimal, dueDate uint64) (models.Repayment, error) {
	if err := models.ValidateAmount(amountDue); err != nil {
		return models.Repayment{}, err
	}
	repayments, err := l.repayments.Get(ctx)
	if err != nil {
		return models.Repayment{}, err
	}
	r := models.Repayment{AmountDue: amountDue, DueDate: dueDate}
	l.repayments.Set(append(repayments, r))
	return r, nil
}

// NextDueRepayment returns the first stored repayment with something still owed.
// This is first-match in stored order, not the earliest due date.
func (l *Ledger) NextDueRepayment(ctx context.Context) (*models.Repayment, error) {
	repayments, err := l.repayments.Get(ctx)
	if err != nil {
		return nil, err
	}
	for _, r := range repayments {
		if r.Pending() {
			return &r, nil
		}
	}
	return nil, nil
}

// StatusSummary renders every request in insertion order, one per line
func (l *Ledger) StatusSummary(ctx context.Context) (string, error) {
	requests, err := l.requests.Get(ctx)
	if err != nil {
		return "", err
	}
	lines := make([]string, 0, len(requests))
	for _, req := range requests {
		lines = append(lines, fmt.Sprintf("Loan Amount: %s, Interest Rate: %s, Duration: %d days",
			req.Amount.String(), strconv.FormatFloat(req.InterestRate, 'f', -1, 64), req.DurationDays))
	}
	return strings.Join(lines, "\n"), nil
}

// Counts returns the number of requests and of pending repayments
func (l *Ledger) Counts(ctx context.Context) (requests int, pending int, err error) {
	reqs, err := l.requests.Get(ctx)
	if err != nil {
		return 0, 0, err
	}
	repayments, err := l.repayments.Get(ctx)
	if err != nil {
		return 0, 0, err
	}
	for _, r := range repayments {
		if r.Pending() {
			pending++
		}
	}
	return len(reqs), pending, nil
}
