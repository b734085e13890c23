package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OpenItemKind separates receivables from payables.
type OpenItemKind string

const (
	OpenItemReceivable OpenItemKind = "RECEIVABLE"
	OpenItemPayable    OpenItemKind = "PAYABLE"
)

// IsValid reports whether k is a known kind.
func (k OpenItemKind) IsValid() bool {
	return k == OpenItemReceivable || k == OpenItemPayable
}

// ControlAccount is the general-ledger account the sub-ledger reconciles to.
func (k OpenItemKind) ControlAccount() string {
	if k == OpenItemPayable {
		return AccountAccountsPayable
	}
	return AccountAccountsReceivable
}

func (k OpenItemKind) label() string {
	if k == OpenItemPayable {
		return "payable"
	}
	return "receivable"
}

// OpenItemStatus is derived from the balance, never set independently.
type OpenItemStatus string

const (
	OpenItemStatusOpen    OpenItemStatus = "OPEN"
	OpenItemStatusPartial OpenItemStatus = "PARTIAL"
	OpenItemStatusClosed  OpenItemStatus = "CLOSED"
)

// DeriveOpenItemStatus maps a balance to its status.
func DeriveOpenItemStatus(balance, original decimal.Decimal) OpenItemStatus {
	switch {
	case balance.IsZero():
		return OpenItemStatusClosed
	case balance.Equal(original):
		return OpenItemStatusOpen
	default:
		return OpenItemStatusPartial
	}
}

// OpenItem tracks the unsettled balance of one order (receivable) or one
// purchase order (payable). The balance never increases.
type OpenItem struct {
	ID             string
	Kind           OpenItemKind
	SourceID       string // order_id or purchase_order_id
	PartyID        string // customer_id or supplier_id
	DueDate        time.Time
	OriginalAmount decimal.Decimal
	BalanceAmount  decimal.Decimal
	Status         OpenItemStatus
	Version        int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewOpenItem creates a fully open item.
func NewOpenItem(id string, kind OpenItemKind, sourceID, partyID string, dueDate time.Time, amount decimal.Decimal, now time.Time) (*OpenItem, error) {
	if !kind.IsValid() {
		return nil, NewValidationError("kind", "must be RECEIVABLE or PAYABLE")
	}
	if err := RequireID("source_id", sourceID); err != nil {
		return nil, err
	}
	if err := RequireID("party_id", partyID); err != nil {
		return nil, err
	}
	if err := ValidateAmount("amount", amount); err != nil {
		return nil, err
	}

	return &OpenItem{
		ID:             id,
		Kind:           kind,
		SourceID:       sourceID,
		PartyID:        partyID,
		DueDate:        dueDate,
		OriginalAmount: amount,
		BalanceAmount:  amount,
		Status:         OpenItemStatusOpen,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// Cancel closes an item that has received no payment, leaving its history
// intact. It reports false, and changes nothing, once any amount is settled.
func (o *OpenItem) Cancel(now time.Time) bool {
	if o.Status != OpenItemStatusOpen || !o.BalanceAmount.Equal(o.OriginalAmount) {
		return false
	}

	o.BalanceAmount = decimal.Zero
	o.Status = OpenItemStatusClosed
	o.Version++
	o.UpdatedAt = now

	return true
}

// ApplySettlement decrements the balance. Overpayment is rejected and leaves
// the item untouched.
func (o *OpenItem) ApplySettlement(amount decimal.Decimal, now time.Time) error {
	if err := ValidateAmount("amount", amount); err != nil {
		return err
	}
	if amount.GreaterThan(o.BalanceAmount) {
		return &OverpaymentError{Kind: o.Kind, SourceID: o.SourceID, Amount: amount, Balance: o.BalanceAmount}
	}

	o.BalanceAmount = o.BalanceAmount.Sub(amount)
	o.Status = DeriveOpenItemStatus(o.BalanceAmount, o.OriginalAmount)
	o.Version++
	o.UpdatedAt = now

	return nil
}

// IsOutstanding reports whether the item still carries a balance.
func (o *OpenItem) IsOutstanding() bool {
	return o.Status != OpenItemStatusClosed
}

// IsOverdue reports whether the item is outstanding past its due date.
func (o *OpenItem) IsOverdue(now time.Time) bool {
	return o.IsOutstanding() && !o.DueDate.IsZero() && now.After(o.DueDate)
}
