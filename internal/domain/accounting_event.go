package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// EventType is the closed set of business events the posting engine books.
type EventType string

const (
	EventOrderConfirmed     EventType = "ORDER_CONFIRMED"
	EventPaymentConfirmed   EventType = "PAYMENT_CONFIRMED"
	EventPOOrdered          EventType = "PO_ORDERED"
	EventPOPaymentConfirmed EventType = "PO_PAYMENT_CONFIRMED"
	EventStockOut           EventType = "STOCK_OUT"
)

// DefaultPaymentTerms is the due period applied when an order or purchase
// order event carries no due date.
const DefaultPaymentTerms = 30 * 24 * time.Hour

// SourceType returns the document type an event of this type originates from.
func (t EventType) SourceType() SourceType {
	switch t {
	case EventOrderConfirmed:
		return SourceTypeOrder
	case EventPaymentConfirmed, EventPOPaymentConfirmed:
		return SourceTypePayment
	case EventPOOrdered:
		return SourceTypePurchaseOrder
	case EventStockOut:
		return SourceTypeStockMovement
	}
	return ""
}

// EventStatus records the outcome of posting an event.
type EventStatus string

const (
	EventStatusPosted   EventStatus = "POSTED"
	EventStatusReversed EventStatus = "REVERSED"
	EventStatusError    EventStatus = "ERROR"
)

// EventPayload is the typed body of an accounting event.
type EventPayload interface {
	EventType() EventType
	Validate() error
}

// AccountingEvent is a business event submitted for posting. One event maps to
// at most one journal entry; failed attempts are kept with status ERROR.
type AccountingEvent struct {
	ID             string
	SourceType     SourceType
	SourceID       string
	SourceNo       string
	EventType      EventType
	OccurredAt     time.Time
	Description    string
	Payload        EventPayload
	Status         EventStatus
	JournalEntryID string
	Error          string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Validate checks the envelope and the payload required by the event type.
func (e *AccountingEvent) Validate() error {
	if err := RequireID("id", e.ID); err != nil {
		return err
	}
	if e.EventType.SourceType() == "" {
		return NewValidationError("event_type", fmt.Sprintf("unknown event type %q", e.EventType))
	}
	if e.SourceType != e.EventType.SourceType() {
		return NewValidationError("source_type", fmt.Sprintf("%s events must originate from %s", e.EventType, e.EventType.SourceType()))
	}
	if err := RequireID("source_id", e.SourceID); err != nil {
		return err
	}
	if e.Payload == nil {
		return NewValidationError("payload", "is required")
	}
	if e.Payload.EventType() != e.EventType {
		return NewValidationError("payload", fmt.Sprintf("payload is for %s, event is %s", e.Payload.EventType(), e.EventType))
	}
	return e.Payload.Validate()
}

// OrderConfirmedPayload opens a receivable for the order in SourceID.
type OrderConfirmedPayload struct {
	CustomerID string          `json:"customer_id"`
	Amount     decimal.Decimal `json:"amount"`
	DueDate    *time.Time      `json:"due_date,omitempty"`
}

func (p *OrderConfirmedPayload) EventType() EventType { return EventOrderConfirmed }

func (p *OrderConfirmedPayload) Validate() error {
	if err := RequireID("payload.customer_id", p.CustomerID); err != nil {
		return err
	}
	return ValidateAmount("payload.amount", p.Amount)
}

// PaymentConfirmedPayload settles part of the receivable of OrderID.
type PaymentConfirmedPayload struct {
	OrderID    string          `json:"order_id"`
	CustomerID string          `json:"customer_id,omitempty"`
	Amount     decimal.Decimal `json:"amount"`
}

func (p *PaymentConfirmedPayload) EventType() EventType { return EventPaymentConfirmed }

func (p *PaymentConfirmedPayload) Validate() error {
	if err := RequireID("payload.order_id", p.OrderID); err != nil {
		return err
	}
	return ValidateAmount("payload.amount", p.Amount)
}

// POOrderedPayload opens a payable for the purchase order in SourceID.
type POOrderedPayload struct {
	SupplierID string          `json:"supplier_id"`
	Amount     decimal.Decimal `json:"amount"`
	DueDate    *time.Time      `json:"due_date,omitempty"`
}

func (p *POOrderedPayload) EventType() EventType { return EventPOOrdered }

func (p *POOrderedPayload) Validate() error {
	if err := RequireID("payload.supplier_id", p.SupplierID); err != nil {
		return err
	}
	return ValidateAmount("payload.amount", p.Amount)
}

// POPaymentConfirmedPayload settles part of the payable of PurchaseOrderID.
type POPaymentConfirmedPayload struct {
	PurchaseOrderID string          `json:"purchase_order_id"`
	SupplierID      string          `json:"supplier_id,omitempty"`
	Amount          decimal.Decimal `json:"amount"`
}

func (p *POPaymentConfirmedPayload) EventType() EventType { return EventPOPaymentConfirmed }

func (p *POPaymentConfirmedPayload) Validate() error {
	if err := RequireID("payload.purchase_order_id", p.PurchaseOrderID); err != nil {
		return err
	}
	return ValidateAmount("payload.amount", p.Amount)
}

// StockOutPayload moves issued material value into work in process. Amount is
// quantity times the average unit cost read before the issue.
type StockOutPayload struct {
	MaterialID string          `json:"material_id"`
	ProjectID  string          `json:"project_id"`
	Quantity   decimal.Decimal `json:"quantity"`
	UnitCost   decimal.Decimal `json:"unit_cost"`
	Amount     decimal.Decimal `json:"amount"`
}

func (p *StockOutPayload) EventType() EventType { return EventStockOut }

func (p *StockOutPayload) Validate() error {
	if err := RequireID("payload.material_id", p.MaterialID); err != nil {
		return err
	}
	if err := RequireID("payload.project_id", p.ProjectID); err != nil {
		return err
	}
	if err := ValidateQuantity("payload.quantity", p.Quantity); err != nil {
		return err
	}
	return ValidateAmount("payload.amount", p.Amount)
}

// DecodePayload unmarshals a raw JSON payload into the variant for eventType.
func DecodePayload(eventType EventType, raw []byte) (EventPayload, error) {
	var payload EventPayload

	switch eventType {
	case EventOrderConfirmed:
		payload = &OrderConfirmedPayload{}
	case EventPaymentConfirmed:
		payload = &PaymentConfirmedPayload{}
	case EventPOOrdered:
		payload = &POOrderedPayload{}
	case EventPOPaymentConfirmed:
		payload = &POPaymentConfirmedPayload{}
	case EventStockOut:
		payload = &StockOutPayload{}
	default:
		return nil, NewValidationError("event_type", fmt.Sprintf("unknown event type %q", eventType))
	}

	if len(raw) == 0 {
		return nil, NewValidationError("payload", "is required")
	}

	if err := json.Unmarshal(raw, payload); err != nil {
		return nil, NewValidationError("payload", err.Error())
	}

	return payload, nil
}
