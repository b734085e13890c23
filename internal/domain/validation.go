package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Validation constants
const (
	// MoneyScale is the number of decimal places kept for monetary amounts.
	MoneyScale = 2
	// UnitPriceScale is the precision of weighted-average unit prices.
	UnitPriceScale = 6
	// QuantityScale bounds the precision of stock quantities.
	QuantityScale = 6

	MaxAmount   = "1000000000000000" // 10^15
	MaxIDLength = 64
)

var maxAmount = decimal.RequireFromString(MaxAmount)

// ValidateAmount checks a monetary amount: positive, at most MoneyScale
// decimals, below MaxAmount.
func ValidateAmount(field string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return &ValidationError{Field: field, Reason: "must be positive", Err: ErrInvalidAmount}
	}

	if !amount.Equal(amount.Round(MoneyScale)) {
		return &ValidationError{Field: field, Reason: fmt.Sprintf("must have at most %d decimal places", MoneyScale)}
	}

	if amount.GreaterThan(maxAmount) {
		return &ValidationError{Field: field, Reason: "exceeds maximum allowed amount " + MaxAmount}
	}

	return nil
}

// ValidateQuantity checks a strictly positive stock quantity.
func ValidateQuantity(field string, qty decimal.Decimal) error {
	if !qty.IsPositive() {
		return &ValidationError{Field: field, Reason: "must be positive", Err: ErrInvalidQuantity}
	}

	if !qty.Equal(qty.Round(QuantityScale)) {
		return &ValidationError{Field: field, Reason: fmt.Sprintf("must have at most %d decimal places", QuantityScale), Err: ErrInvalidQuantity}
	}

	return nil
}

// ValidateUnitPrice checks a non-negative unit price.
func ValidateUnitPrice(field string, price decimal.Decimal) error {
	if price.IsNegative() {
		return &ValidationError{Field: field, Reason: "must not be negative", Err: ErrInvalidUnitPrice}
	}
	return nil
}

// RequireID checks that an identifier is present and reasonably sized.
func RequireID(field, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return NewValidationError(field, "is required")
	}
	if len(id) > MaxIDLength {
		return NewValidationError(field, fmt.Sprintf("exceeds %d characters", MaxIDLength))
	}
	return nil
}

// Page size bounds for list operations.
const (
	DefaultPageSize = 50
	MaxPageSize     = 1000
)

// ValidatePagination validates and limits pagination parameters
func ValidatePagination(limit, offset int) (int, int, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}

	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	if offset < 0 {
		offset = 0
	}

	return limit, offset, nil
}
