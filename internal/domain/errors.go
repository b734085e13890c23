package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// Lookup errors
	ErrAccountNotFound      = errors.New("account not found")
	ErrJournalEntryNotFound = errors.New("journal entry not found")
	ErrEventNotFound        = errors.New("accounting event not found")
	ErrOpenItemNotFound     = errors.New("open item not found")
	ErrStockNotFound        = errors.New("stock not found")

	// Input errors
	ErrValidation       = errors.New("validation failed")
	ErrInvalidQuantity  = errors.New("quantity must be positive")
	ErrInvalidUnitPrice = errors.New("unit price must not be negative")
	ErrInvalidAmount    = errors.New("amount must be positive")

	// Business rule errors
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrOverpayment       = errors.New("payment exceeds open balance")
	ErrOpenItemExists    = errors.New("open item already exists for source")
	ErrInvalidStatus     = errors.New("invalid status transition")

	// ErrInvariantViolation marks a defect in posting rules or the chart of
	// accounts. It is never caused by user input.
	ErrInvariantViolation = errors.New("ledger invariant violated")
)

// ValidationError describes a malformed or incomplete input field.
type ValidationError struct {
	Field  string
	Reason string
	// Err optionally narrows the failure, e.g. ErrInvalidQuantity.
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError is shorthand for a ValidationError without a cause.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// InsufficientStockError reports a decrement that would drive stock below zero.
type InsufficientStockError struct {
	MaterialID string
	Requested  decimal.Decimal
	Available  decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for material %s: requested %s, available %s",
		e.MaterialID, e.Requested.String(), e.Available.String())
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// OverpaymentError reports a settlement larger than the open balance.
type OverpaymentError struct {
	Kind     OpenItemKind
	SourceID string
	Amount   decimal.Decimal
	Balance  decimal.Decimal
}

func (e *OverpaymentError) Error() string {
	return fmt.Sprintf("payment of %s exceeds open %s balance %s for %s",
		e.Amount.String(), e.Kind.label(), e.Balance.String(), e.SourceID)
}

func (e *OverpaymentError) Is(target error) bool {
	return target == ErrOverpayment
}

// InvariantViolation is raised when a posting rule produces an entry that
// cannot be booked: unbalanced, unknown account, malformed line.
type InvariantViolation struct {
	Rule   string
	Detail string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violation in %s: %s", e.Rule, e.Detail)
}

func (e *InvariantViolation) Is(target error) bool {
	return target == ErrInvariantViolation
}

// IsBusinessError reports whether err is caused by the request itself rather
// than by infrastructure.
func IsBusinessError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrOverpayment) ||
		errors.Is(err, ErrOpenItemExists) ||
		errors.Is(err, ErrOpenItemNotFound) ||
		errors.Is(err, ErrInvalidStatus) ||
		errors.Is(err, ErrInvariantViolation)
}

// ErrorClass returns a short label used for metrics.
func ErrorClass(err error) string {
	switch {
	case errors.Is(err, ErrInvariantViolation):
		return "invariant"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrOverpayment):
		return "overpayment"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrOpenItemNotFound), errors.Is(err, ErrOpenItemExists):
		return "open_item"
	case errors.Is(err, ErrInvalidStatus):
		return "status"
	default:
		return "internal"
	}
}
