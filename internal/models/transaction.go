package models

import "github.com/shopspring/decimal"

// Transaction represents a single credit history entry as reported by the data provider
type Transaction struct {
	Amount      decimal.Decimal `json:"amount"`
	Date        uint64          `json:"date"` // Unix timestamp, rendered verbatim
	Description string          `json:"description"`
}

// FinancialSnapshot is the full balance and history picture at last ingestion
type FinancialSnapshot struct {
	CreditHistory []Transaction   `json:"credit_history"`
	BankBalance   decimal.Decimal `json:"bank_balance"`
}
