package domain

import (
	"errors"
	"testing"
	"time"
)

func validOrderEvent() *AccountingEvent {
	return &AccountingEvent{
		ID:         "evt-1",
		SourceType: SourceTypeOrder,
		SourceID:   "order-1",
		EventType:  EventOrderConfirmed,
		OccurredAt: time.Now(),
		Payload:    &OrderConfirmedPayload{CustomerID: "cust-1", Amount: d("100")},
	}
}

func TestAccountingEvent_Validate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(e *AccountingEvent)
		wantField string
	}{
		{name: "valid", mutate: func(e *AccountingEvent) {}},
		{name: "missing id", mutate: func(e *AccountingEvent) { e.ID = "" }, wantField: "id"},
		{name: "unknown type", mutate: func(e *AccountingEvent) { e.EventType = "INVOICED" }, wantField: "event_type"},
		{name: "wrong source type", mutate: func(e *AccountingEvent) { e.SourceType = SourceTypePayment }, wantField: "source_type"},
		{name: "missing source id", mutate: func(e *AccountingEvent) { e.SourceID = " " }, wantField: "source_id"},
		{name: "missing payload", mutate: func(e *AccountingEvent) { e.Payload = nil }, wantField: "payload"},
		{
			name: "payload of another type",
			mutate: func(e *AccountingEvent) {
				e.Payload = &PaymentConfirmedPayload{OrderID: "order-1", Amount: d("1")}
			},
			wantField: "payload",
		},
		{
			name:      "missing customer",
			mutate:    func(e *AccountingEvent) { e.Payload = &OrderConfirmedPayload{Amount: d("1")} },
			wantField: "payload.customer_id",
		},
		{
			name:      "negative amount",
			mutate:    func(e *AccountingEvent) { e.Payload = &OrderConfirmedPayload{CustomerID: "c", Amount: d("-1")} },
			wantField: "payload.amount",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := validOrderEvent()
			tt.mutate(e)
			err := e.Validate()

			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}

			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if verr.Field != tt.wantField {
				t.Fatalf("expected field %s, got %s", tt.wantField, verr.Field)
			}
		})
	}
}

func TestStockOutPayload_Validate(t *testing.T) {
	p := &StockOutPayload{MaterialID: "m", Quantity: d("2"), UnitCost: d("5"), Amount: d("10")}
	if err := p.Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("stock issues require a project, got %v", err)
	}

	p.ProjectID = "prj-1"
	if err := p.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDecodePayload(t *testing.T) {
	payload, err := DecodePayload(EventPaymentConfirmed, []byte(`{"order_id":"order-1","amount":"25500000"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	p, ok := payload.(*PaymentConfirmedPayload)
	if !ok {
		t.Fatalf("expected PaymentConfirmedPayload, got %T", payload)
	}
	if p.OrderID != "order-1" || !p.Amount.Equal(d("25500000")) {
		t.Fatalf("unexpected payload: %+v", p)
	}

	if _, err := DecodePayload("UNKNOWN", []byte(`{}`)); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for unknown type, got %v", err)
	}
	if _, err := DecodePayload(EventPOOrdered, []byte(`{bad`)); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for malformed json, got %v", err)
	}
	if _, err := DecodePayload(EventPOOrdered, nil); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for empty payload, got %v", err)
	}
}

func TestEventType_SourceType(t *testing.T) {
	cases := map[EventType]SourceType{
		EventOrderConfirmed:     SourceTypeOrder,
		EventPaymentConfirmed:   SourceTypePayment,
		EventPOOrdered:          SourceTypePurchaseOrder,
		EventPOPaymentConfirmed: SourceTypePayment,
		EventStockOut:           SourceTypeStockMovement,
	}
	for et, want := range cases {
		if got := et.SourceType(); got != want {
			t.Fatalf("%s: expected %s, got %s", et, want, got)
		}
	}
}
