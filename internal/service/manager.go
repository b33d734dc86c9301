package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/Dan9191/plutus/internal/config"
	"github.com/Dan9191/plutus/internal/confidential"
	"github.com/Dan9191/plutus/internal/gateway"
	"github.com/Dan9191/plutus/internal/ledger"
	"github.com/Dan9191/plutus/internal/models"
	"github.com/Dan9191/plutus/internal/records"
	"github.com/Dan9191/plutus/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Caller-facing verdicts
const (
	MsgAffordable        = "You can afford this purchase!"
	MsgInsufficientFunds = "Insufficient funds. Consider applying for a loan."
	MsgLoanRequested     = "Loan requested successfully!"
	MsgLoanFailed        = "Loan request failed."
	MsgNoRepaymentsDue   = "No repayments due."
)

// ErrNoRateProvider is returned by QuoteRate when no reference rate source is configured
var ErrNoRateProvider = errors.New("no reference rate provider configured")

// ErrRateUnavailable wraps failures of the configured reference rate source
var ErrRateUnavailable = errors.New("reference rate unavailable")

// Gateway is everything the manager needs from the external systems
type Gateway interface {
	gateway.Fetcher
	gateway.Submitter
}

// RateProvider quotes a reference interest rate as a ratio in [0, 1]
type RateProvider interface {
	ReferenceRate(ctx context.Context) (float64, error)
}

// Manager is the financial assistant for a single account. Every operation
// holds the account lock, so invocations never interleave.
type Manager struct {
	mu      sync.Mutex
	cfg     *config.Config
	records *records.Store
	ledger  *ledger.Ledger
	gw      Gateway
	store   repository.SealedStore
	rates   RateProvider
	log     *logrus.Logger
}

// NewManager wires the record store and ledger behind sealer. store and rates may be nil.
func NewManager(cfg *config.Config, sealer confidential.Sealer, gw Gateway, store repository.SealedStore, rates RateProvider, log *logrus.Logger) *Manager {
	return &Manager{
		cfg:     cfg,
		records: records.NewStore(sealer),
		ledger:  ledger.New(sealer),
		gw:      gw,
		store:   store,
		rates:   rates,
		log:     log,
	}
}

// Restore loads previously persisted sealed state. Missing slots keep their defaults.
func (m *Manager) Restore(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.store == nil {
		return nil
	}
	restorers := map[string]func([]byte){
		repository.SlotSnapshot:     m.records.Box().Restore,
		repository.SlotLoanRequests: m.ledger.Requests().Restore,
		repository.SlotRepayments:   m.ledger.Repayments().Restore,
	}
	for slot, restore := range restorers {
		blob, ok, err := m.store.Get(ctx, m.cfg.AccountID, slot)
		if err != nil {
			return fmt.Errorf("failed to restore %s: %w", slot, err)
		}
		if ok {
			restore(blob)
			m.log.Infof("Restored %s for account %s", slot, m.cfg.AccountID)
		}
	}
	return nil
}

// FetchFinancialData pulls a fresh snapshot from the data provider
func (m *Manager) FetchFinancialData(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.records.Fetch(ctx, m.gw, m.cfg.FinancialDataURL, token); err != nil {
		m.log.Warnf("Financial data fetch failed for account %s: %v", m.cfg.AccountID, err)
		return err
	}
	m.persist(ctx, repository.SlotSnapshot)
	m.log.Infof("Financial data ingested for account %s", m.cfg.AccountID)
	return nil
}

// ViewTransactionSummary renders transactions in stored order, one per line
func (m *Manager) ViewTransactionSummary(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	lines, err := m.records.TransactionSummary(ctx)
	if err != nil {
		return "", err
	}
	rendered := make([]string, 0, len(lines))
	for _, l := range lines {
		rendered = append(rendered, fmt.Sprintf("Date: %d, Amount: %s, Description: %s", l.Date, l.Amount.String(), l.Description))
	}
	return strings.Join(rendered, "\n"), nil
}

// ViewBankBalance renders the current balance
func (m *Manager) ViewBankBalance(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	balance, err := m.records.Balance(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Current Bank Balance: %s", balance.String()), nil
}

// AnalyzeFinancials answers whether a purchase fits the current balance
func (m *Manager) AnalyzeFinancials(ctx context.Context, purchaseAmount decimal.Decimal) (string, error) {
	if err := models.ValidateAmount(purchaseAmount); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ok, err := m.records.CanAfford(ctx, purchaseAmount)
	if err != nil {
		return "", err
	}
	if ok {
		return MsgAffordable, nil
	}
	return MsgInsufficientFunds, nil
}

// RequestLoan records the request and then submits it to the lending venue.
// The request stays recorded whatever the venue answers.
func (m *Manager) RequestLoan(ctx context.Context, amount decimal.Decimal, interestRate float64, durationDays uint32) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, err := m.ledger.RecordRequest(ctx, amount, interestRate, durationDays)
	if err != nil {
		return "", err
	}
	m.persist(ctx, repository.SlotLoanRequests)

	outcome, err := m.ledger.SubmitRequest(ctx, m.gw, m.cfg.LendingURL, req)
	if err != nil {
		m.log.Errorf("Loan request %s could not be submitted: %v", req.ID, err)
		return "", err
	}

	m.log.WithFields(logrus.Fields{
		"account":    m.cfg.AccountID,
		"request_id": req.ID.String(),
		"outcome":    outcome,
	}).Info("Loan request submitted")

	if outcome == models.SubmissionAccepted {
		return MsgLoanRequested, nil
	}
	return MsgLoanFailed, nil
}

// ScheduleRepayment records an obligation reported by the lending venue
func (m *Manager) ScheduleRepayment(ctx context.Context, amountDue decimal.Decimal, dueDate uint64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, err := m.ledger.ScheduleRepayment(ctx, amountDue, dueDate)
	if err != nil {
		return "", err
	}
	m.persist(ctx, repository.SlotRepayments)
	m.log.Infof("Repayment scheduled for account %s", m.cfg.AccountID)
	return fmt.Sprintf("Repayment scheduled: %s before %d", r.AmountDue.String(), r.DueDate), nil
}

// NextDueRepayment returns the first pending repayment, or nil
func (m *Manager) NextDueRepayment(ctx context.Context) (*models.Repayment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.ledger.NextDueRepayment(ctx)
}

// TrackRepayments renders the next pending repayment
func (m *Manager) TrackRepayments(ctx context.Context) (string, error) {
	next, err := m.NextDueRepayment(ctx)
	if err != nil {
		return "", err
	}
	if next == nil {
		return MsgNoRepaymentsDue, nil
	}
	return fmt.Sprintf("Payment due: %s before %d", next.AmountDue.String(), next.DueDate), nil
}

// ViewLoanStatus renders every loan request in insertion order
func (m *Manager) ViewLoanStatus(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.ledger.StatusSummary(ctx)
}

// ViewFinancialStatus aggregates balance, transaction count, loan count and
// pending repayments. Any failed read fails the whole digest.
func (m *Manager) ViewFinancialStatus(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	balance, err := m.records.Balance(ctx)
	if err != nil {
		return "", err
	}
	txCount, err := m.records.TransactionCount(ctx)
	if err != nil {
		return "", err
	}
	loans, pending, err := m.ledger.Counts(ctx)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("Bank Balance: %s\nCredit Transactions: %d\nOutstanding Loans: %d\nRepayments Due: %d",
		balance.String(), txCount, loans, pending), nil
}

// QuoteRate returns the reference interest rate as a ratio
func (m *Manager) QuoteRate(ctx context.Context) (float64, error) {
	if m.rates == nil {
		return 0, ErrNoRateProvider
	}
	rate, err := m.rates.ReferenceRate(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrRateUnavailable, err)
	}
	return rate, nil
}

// persist writes the sealed slots. The in-memory state is authoritative for
// the invocation, so a failed write is logged rather than returned.
func (m *Manager) persist(ctx context.Context, slots ...string) {
	if m.store == nil {
		return
	}
	for _, slot := range slots {
		var blob []byte
		var ok bool
		switch slot {
		case repository.SlotSnapshot:
			blob, ok = m.records.Box().Sealed()
		case repository.SlotLoanRequests:
			blob, ok = m.ledger.Requests().Sealed()
		case repository.SlotRepayments:
			blob, ok = m.ledger.Repayments().Sealed()
		}
		if !ok {
			m.log.Warnf("Nothing sealed to persist for %s", slot)
			continue
		}
		if err := m.store.Put(ctx, m.cfg.AccountID, slot, blob); err != nil {
			m.log.Errorf("Failed to persist %s for account %s: %v", slot, m.cfg.AccountID, err)
		}
	}
}
