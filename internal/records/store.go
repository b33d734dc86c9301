// Package records holds the account's financial snapshot behind the
// confidentiality boundary.
package records

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Dan9191/plutus/internal/confidential"
	"github.com/Dan9191/plutus/internal/gateway"
	"github.com/Dan9191/plutus/internal/models"
	"github.com/shopspring/decimal"
)

// Ingest errors
var (
	ErrMalformedPayload = errors.New("malformed financial data payload")
	ErrTransportFailure = errors.New("financial data transport failure")
)

// TransactionLine is one rendered row of the transaction summary
type TransactionLine struct {
	Date        uint64
	Amount      decimal.Decimal
	Description string
}

// Store holds exactly one live FinancialSnapshot
type Store struct {
	snapshot *confidential.Box[models.FinancialSnapshot]
}

// NewStore creates an empty store; reads fail until the first successful ingest
func NewStore(sealer confidential.Sealer) *Store {
	return &Store{snapshot: confidential.New[models.FinancialSnapshot](sealer)}
}

// Box exposes the underlying container for persistence
func (s *Store) Box() *confidential.Box[models.FinancialSnapshot] {
	return s.snapshot
}

// Fetch pulls a snapshot through the gateway and ingests it. Transport
// failures are reported as ErrTransportFailure and are not retried here.
func (s *Store) Fetch(ctx context.Context, f gateway.Fetcher, endpoint, token string) error {
	raw, err := f.Fetch(ctx, endpoint, token)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransportFailure, err)
	}
	return s.Ingest(raw)
}

// Ingest parses raw into a snapshot and replaces the stored one wholesale.
// On error the previous snapshot stays live.
func (s *Store) Ingest(raw gateway.RawResponse) error {
	snapshot, err := parseSnapshot(raw)
	if err != nil {
		return err
	}
	s.snapshot.Set(snapshot)
	return nil
}

// Balance returns the current bank balance
func (s *Store) Balance(ctx context.Context) (decimal.Decimal, error) {
	snapshot, err := s.snapshot.Get(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return snapshot.BankBalance, nil
}

// TransactionSummary returns transactions in stored order
func (s *Store) TransactionSummary(ctx context.Context) ([]TransactionLine, error) {
	snapshot, err := s.snapshot.Get(ctx)
	if err != nil {
		return nil, err
	}
	lines := make([]TransactionLine, 0, len(snapshot.CreditHistory))
	for _, txn := range snapshot.CreditHistory {
		lines = append(lines, TransactionLine{Date: txn.Date, Amount: txn.Amount, Description: txn.Description})
	}
	return lines, nil
}

// TransactionCount returns the number of transactions in the snapshot
func (s *Store) TransactionCount(ctx context.Context) (int, error) {
	snapshot, err := s.snapshot.Get(ctx)
	if err != nil {
		return 0, err
	}
	return len(snapshot.CreditHistory), nil
}

// CanAfford reports whether balance >= amount
func (s *Store) CanAfford(ctx context.Context, amount decimal.Decimal) (bool, error) {
	balance, err := s.Balance(ctx)
	if err != nil {
		return false, err
	}
	return balance.GreaterThanOrEqual(amount), nil
}

type wirePayload struct {
	CreditHistory []wireTransaction `json:"credit_history"`
	BankBalance   *decimal.Decimal  `json:"bank_balance"`
}

type wireTransaction struct {
	Amount      *decimal.Decimal `json:"amount"`
	Date        uint64           `json:"date"`
	Description string           `json:"description"`
}

func parseSnapshot(raw []byte) (models.FinancialSnapshot, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	var payload wirePayload
	if err := dec.Decode(&payload); err != nil {
		return models.FinancialSnapshot{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if dec.More() {
		return models.FinancialSnapshot{}, fmt.Errorf("%w: trailing data after payload", ErrMalformedPayload)
	}
	if payload.BankBalance == nil {
		return models.FinancialSnapshot{}, fmt.Errorf("%w: bank_balance is required", ErrMalformedPayload)
	}
	if err := models.ValidateAmount(*payload.BankBalance); err != nil {
		return models.FinancialSnapshot{}, fmt.Errorf("%w: bank_balance: %v", ErrMalformedPayload, err)
	}

	snapshot := models.FinancialSnapshot{
		CreditHistory: make([]models.Transaction, 0, len(payload.CreditHistory)),
		BankBalance:   *payload.BankBalance,
	}
	for i, txn := range payload.CreditHistory {
		if txn.Amount == nil {
			return models.FinancialSnapshot{}, fmt.Errorf("%w: credit_history[%d]: amount is required", ErrMalformedPayload, i)
		}
		if err := models.ValidateAmount(*txn.Amount); err != nil {
			return models.FinancialSnapshot{}, fmt.Errorf("%w: credit_history[%d]: %v", ErrMalformedPayload, i, err)
		}
		snapshot.CreditHistory = append(snapshot.CreditHistory, models.Transaction{
			Amount:      *txn.Amount,
			Date:        txn.Date,
			Description: txn.Description,
		})
	}
	return snapshot, nil
}
