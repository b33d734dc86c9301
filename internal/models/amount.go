package models

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// MaxAmountBits is the width of the unsigned range every monetary amount must fit in.
const MaxAmountBits = 128

// ErrInvalidAmount is returned for amounts that are negative, fractional or wider than 128 bits.
var ErrInvalidAmount = errors.New("amount must be a non-negative integer of at most 128 bits")

// ValidateAmount checks that d is a whole number of minor units in [0, 2^128).
func ValidateAmount(d decimal.Decimal) error {
	if d.IsNegative() || !d.IsInteger() {
		return ErrInvalidAmount
	}
	if d.BigInt().BitLen() > MaxAmountBits {
		return ErrInvalidAmount
	}
	return nil
}

// ParseAmount parses a decimal string into a validated amount
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	if err := ValidateAmount(d); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}
