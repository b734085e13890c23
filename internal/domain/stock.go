package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MovementType is the kind of inventory movement.
type MovementType string

const (
	MovementTypeIn     MovementType = "IN"
	MovementTypeOut    MovementType = "OUT"
	MovementTypeAdjust MovementType = "ADJUST"
)

// Stock is the on-hand position of one material.
type Stock struct {
	MaterialID   string
	Quantity     decimal.Decimal
	AvgUnitPrice decimal.Decimal
	Version      int64
	UpdatedAt    time.Time
}

// NewStock returns an empty position for a material.
func NewStock(materialID string) *Stock {
	return &Stock{
		MaterialID:   materialID,
		Quantity:     decimal.Zero,
		AvgUnitPrice: decimal.Zero,
	}
}

// Value is quantity times average unit price, rounded to money scale.
func (s *Stock) Value() decimal.Decimal {
	return s.Quantity.Mul(s.AvgUnitPrice).Round(MoneyScale)
}

// Receive adds quantity at unitPrice and blends the weighted average.
func (s *Stock) Receive(qty, unitPrice decimal.Decimal, now time.Time) error {
	if err := ValidateQuantity("quantity", qty); err != nil {
		return err
	}
	if err := ValidateUnitPrice("unit_price", unitPrice); err != nil {
		return err
	}

	newQty := s.Quantity.Add(qty)
	if newQty.IsZero() {
		s.AvgUnitPrice = unitPrice
	} else {
		total := s.Quantity.Mul(s.AvgUnitPrice).Add(qty.Mul(unitPrice))
		s.AvgUnitPrice = total.DivRound(newQty, UnitPriceScale)
	}
	s.Quantity = newQty
	s.touch(now)

	return nil
}

// Issue removes quantity at the current average and returns the issued value.
// The average is unchanged.
func (s *Stock) Issue(qty decimal.Decimal, now time.Time) (decimal.Decimal, error) {
	if err := ValidateQuantity("quantity", qty); err != nil {
		return decimal.Zero, err
	}
	if qty.GreaterThan(s.Quantity) {
		return decimal.Zero, &InsufficientStockError{MaterialID: s.MaterialID, Requested: qty, Available: s.Quantity}
	}

	value := qty.Mul(s.AvgUnitPrice).Round(MoneyScale)
	s.Quantity = s.Quantity.Sub(qty)
	s.touch(now)

	return value, nil
}

// Adjust applies a signed count correction. The average is unchanged.
func (s *Stock) Adjust(delta decimal.Decimal, now time.Time) error {
	if delta.IsZero() {
		return &ValidationError{Field: "quantity", Reason: "adjustment must not be zero", Err: ErrInvalidQuantity}
	}
	if err := ValidateQuantity("quantity", delta.Abs()); err != nil {
		return err
	}

	newQty := s.Quantity.Add(delta)
	if newQty.IsNegative() {
		return &InsufficientStockError{MaterialID: s.MaterialID, Requested: delta.Neg(), Available: s.Quantity}
	}

	s.Quantity = newQty
	s.touch(now)

	return nil
}

func (s *Stock) touch(now time.Time) {
	s.Version++
	s.UpdatedAt = now
}

// StockMovement is an append-only record of one inventory change. Quantity is
// signed for ADJUST and an unsigned magnitude for IN and OUT.
type StockMovement struct {
	ID              string
	MaterialID      string
	Type            MovementType
	Quantity        decimal.Decimal
	UnitPrice       *decimal.Decimal
	ProjectID       string
	PurchaseOrderID string
	Reason          string
	JournalEntryID  string
	CreatedAt       time.Time
}

// SignedQuantity returns the movement's effect on on-hand quantity.
func (m *StockMovement) SignedQuantity() decimal.Decimal {
	if m.Type == MovementTypeOut {
		return m.Quantity.Neg()
	}
	return m.Quantity
}
