package dto

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/iho/erpledger/internal/domain"
	"github.com/iho/erpledger/internal/usecase"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks struct tags and reports the first failing field as a
// domain validation error.
func Validate(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return domain.NewValidationError("body", err.Error())
	}

	// Namespace is "Type.json_name"; drop the type.
	fe := fieldErrs[0]
	field := fe.Namespace()
	if i := strings.IndexByte(field, '.'); i >= 0 {
		field = field[i+1:]
	}
	return domain.NewValidationError(field, describe(fe))
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "min":
		return "must be at least " + fe.Param()
	default:
		return "failed " + fe.Tag()
	}
}

// PostEventRequest submits an accounting event for posting.
type PostEventRequest struct {
	ID          string          `json:"id,omitempty"`
	EventType   string          `json:"event_type" validate:"required,oneof=ORDER_CONFIRMED PAYMENT_CONFIRMED PO_ORDERED PO_PAYMENT_CONFIRMED"`
	SourceID    string          `json:"source_id" validate:"required,max=64"`
	SourceNo    string          `json:"source_no,omitempty" validate:"max=64"`
	OccurredAt  *time.Time      `json:"occurred_at,omitempty"`
	Description string          `json:"description,omitempty" validate:"max=500"`
	Payload     json.RawMessage `json:"payload" validate:"required"`
}

// ToDomain builds the event. OccurredAt defaults to now.
func (r *PostEventRequest) ToDomain(now time.Time) (*domain.AccountingEvent, error) {
	eventType := domain.EventType(r.EventType)

	payload, err := domain.DecodePayload(eventType, r.Payload)
	if err != nil {
		return nil, err
	}

	occurredAt := now
	if r.OccurredAt != nil {
		occurredAt = *r.OccurredAt
	}

	return &domain.AccountingEvent{
		ID:          r.ID,
		SourceType:  eventType.SourceType(),
		SourceID:    r.SourceID,
		SourceNo:    r.SourceNo,
		EventType:   eventType,
		OccurredAt:  occurredAt,
		Description: r.Description,
		Payload:     payload,
	}, nil
}

// ReverseJournalRequest reverses a posted journal entry.
type ReverseJournalRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// ReceiveStockRequest records a goods receipt.
type ReceiveStockRequest struct {
	MaterialID      string          `json:"material_id" validate:"required,max=64"`
	Quantity        decimal.Decimal `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	PurchaseOrderID string          `json:"purchase_order_id,omitempty" validate:"max=64"`
	ProjectID       string          `json:"project_id,omitempty" validate:"max=64"`
	Reason          string          `json:"reason,omitempty" validate:"max=500"`
}

// ToUseCaseInput converts to use case input.
func (r *ReceiveStockRequest) ToUseCaseInput() usecase.ReceiveInput {
	return usecase.ReceiveInput{
		MaterialID:      r.MaterialID,
		Quantity:        r.Quantity,
		UnitPrice:       r.UnitPrice,
		PurchaseOrderID: r.PurchaseOrderID,
		ProjectID:       r.ProjectID,
		Reason:          r.Reason,
	}
}

// IssueStockRequest issues material to a project.
type IssueStockRequest struct {
	MaterialID string          `json:"material_id" validate:"required,max=64"`
	ProjectID  string          `json:"project_id" validate:"required,max=64"`
	Quantity   decimal.Decimal `json:"quantity"`
	Reason     string          `json:"reason,omitempty" validate:"max=500"`
}

// ToUseCaseInput converts to use case input.
func (r *IssueStockRequest) ToUseCaseInput() usecase.IssueInput {
	return usecase.IssueInput{
		MaterialID: r.MaterialID,
		ProjectID:  r.ProjectID,
		Quantity:   r.Quantity,
		Reason:     r.Reason,
	}
}

// AdjustStockRequest applies a signed correction.
type AdjustStockRequest struct {
	MaterialID string          `json:"material_id" validate:"required,max=64"`
	Quantity   decimal.Decimal `json:"quantity"`
	Reason     string          `json:"reason" validate:"required,max=500"`
}

// ToUseCaseInput converts to use case input.
func (r *AdjustStockRequest) ToUseCaseInput() usecase.AdjustInput {
	return usecase.AdjustInput{
		MaterialID: r.MaterialID,
		Quantity:   r.Quantity,
		Reason:     r.Reason,
	}
}

// BulkAdjustRequest carries the counted quantities of a stocktake.
type BulkAdjustRequest struct {
	Items  []BulkAdjustItem `json:"items" validate:"required,min=1,max=1000,dive"`
	Reason string           `json:"reason" validate:"required,max=500"`
}

// BulkAdjustItem is one counted material.
type BulkAdjustItem struct {
	MaterialID string          `json:"material_id" validate:"required,max=64"`
	ActualQty  decimal.Decimal `json:"actual_qty"`
}

// ToUseCaseInput converts to use case input.
func (r *BulkAdjustRequest) ToUseCaseInput() usecase.BulkAdjustInput {
	items := make([]usecase.BulkAdjustItem, len(r.Items))
	for i, item := range r.Items {
		items[i] = usecase.BulkAdjustItem{
			MaterialID: item.MaterialID,
			ActualQty:  item.ActualQty,
		}
	}
	return usecase.BulkAdjustInput{Items: items, Reason: r.Reason}
}

// TokenRequest asks for a signed access token.
type TokenRequest struct {
	UserID string `json:"user_id" validate:"required,max=64"`
	Email  string `json:"email,omitempty" validate:"omitempty,email"`
	Role   string `json:"role" validate:"required,oneof=admin operator viewer"`
}

// PaginationRequest represents pagination parameters.
type PaginationRequest struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}
