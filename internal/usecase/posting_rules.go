package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/iho/erpledger/internal/domain"
)

// buildLines dispatches on the payload variant. Each rule returns the
// unresolved lines of the entry and applies its sub-ledger effect inside tx.
func (uc *PostingUseCase) buildLines(ctx context.Context, tx Transaction, event *domain.AccountingEvent) ([]domain.JournalLine, error) {
	switch p := event.Payload.(type) {
	case *domain.OrderConfirmedPayload:
		return uc.orderConfirmed(ctx, tx, event, p)
	case *domain.PaymentConfirmedPayload:
		return uc.paymentConfirmed(ctx, tx, p)
	case *domain.POOrderedPayload:
		return uc.poOrdered(ctx, tx, event, p)
	case *domain.POPaymentConfirmedPayload:
		return uc.poPaymentConfirmed(ctx, tx, p)
	case *domain.StockOutPayload:
		return stockOut(p), nil
	default:
		return nil, &domain.InvariantViolation{
			Rule:   "posting.dispatch",
			Detail: fmt.Sprintf("no posting rule for payload %T", event.Payload),
		}
	}
}

// Dr Accounts Receivable / Cr Sales Revenue, and open a receivable for the order.
func (uc *PostingUseCase) orderConfirmed(ctx context.Context, tx Transaction, event *domain.AccountingEvent, p *domain.OrderConfirmedPayload) ([]domain.JournalLine, error) {
	_, err := uc.openItems.OpenTx(ctx, tx, OpenInput{
		Kind:     domain.OpenItemReceivable,
		SourceID: event.SourceID,
		PartyID:  p.CustomerID,
		DueDate:  dueDate(event.OccurredAt, p.DueDate),
		Amount:   p.Amount,
	})
	if err != nil {
		return nil, err
	}

	dr := domain.Debit(domain.AccountAccountsReceivable, p.Amount)
	cr := domain.Credit(domain.AccountSalesRevenue, p.Amount)
	dr.CustomerID, cr.CustomerID = p.CustomerID, p.CustomerID

	return []domain.JournalLine{dr, cr}, nil
}

// Dr Cash / Cr Accounts Receivable, and settle the order's receivable.
func (uc *PostingUseCase) paymentConfirmed(ctx context.Context, tx Transaction, p *domain.PaymentConfirmedPayload) ([]domain.JournalLine, error) {
	item, err := uc.openItems.ApplyPaymentTx(ctx, tx, SettleInput{
		Kind:     domain.OpenItemReceivable,
		SourceID: p.OrderID,
		PartyID:  p.CustomerID,
		Amount:   p.Amount,
	})
	if err != nil {
		return nil, err
	}

	dr := domain.Debit(domain.AccountCash, p.Amount)
	cr := domain.Credit(domain.AccountAccountsReceivable, p.Amount)
	dr.CustomerID, cr.CustomerID = item.PartyID, item.PartyID
	cr.Memo = "order " + p.OrderID

	return []domain.JournalLine{dr, cr}, nil
}

// Dr Raw Material Inventory / Cr Accounts Payable, and open a payable for the PO.
func (uc *PostingUseCase) poOrdered(ctx context.Context, tx Transaction, event *domain.AccountingEvent, p *domain.POOrderedPayload) ([]domain.JournalLine, error) {
	_, err := uc.openItems.OpenTx(ctx, tx, OpenInput{
		Kind:     domain.OpenItemPayable,
		SourceID: event.SourceID,
		PartyID:  p.SupplierID,
		DueDate:  dueDate(event.OccurredAt, p.DueDate),
		Amount:   p.Amount,
	})
	if err != nil {
		return nil, err
	}

	dr := domain.Debit(domain.AccountRawMaterialInventory, p.Amount)
	cr := domain.Credit(domain.AccountAccountsPayable, p.Amount)
	dr.SupplierID, cr.SupplierID = p.SupplierID, p.SupplierID

	return []domain.JournalLine{dr, cr}, nil
}

// Dr Accounts Payable / Cr Cash, and settle the purchase order's payable.
func (uc *PostingUseCase) poPaymentConfirmed(ctx context.Context, tx Transaction, p *domain.POPaymentConfirmedPayload) ([]domain.JournalLine, error) {
	item, err := uc.openItems.ApplyPaymentTx(ctx, tx, SettleInput{
		Kind:     domain.OpenItemPayable,
		SourceID: p.PurchaseOrderID,
		PartyID:  p.SupplierID,
		Amount:   p.Amount,
	})
	if err != nil {
		return nil, err
	}

	dr := domain.Debit(domain.AccountAccountsPayable, p.Amount)
	cr := domain.Credit(domain.AccountCash, p.Amount)
	dr.SupplierID, cr.SupplierID = item.PartyID, item.PartyID
	dr.Memo = "purchase order " + p.PurchaseOrderID

	return []domain.JournalLine{dr, cr}, nil
}

// Dr Work in Process / Cr Raw Material Inventory at the issued value.
func stockOut(p *domain.StockOutPayload) []domain.JournalLine {
	dr := domain.Debit(domain.AccountWorkInProcess, p.Amount)
	cr := domain.Credit(domain.AccountRawMaterialInventory, p.Amount)
	dr.ProjectID, cr.ProjectID = p.ProjectID, p.ProjectID
	dr.MaterialID, cr.MaterialID = p.MaterialID, p.MaterialID

	return []domain.JournalLine{dr, cr}
}

func dueDate(occurredAt time.Time, due *time.Time) time.Time {
	if due != nil && !due.IsZero() {
		return due.UTC()
	}
	return occurredAt.Add(domain.DefaultPaymentTerms).UTC()
}

func defaultDescription(event *domain.AccountingEvent) string {
	ref := event.SourceNo
	if ref == "" {
		ref = event.SourceID
	}

	switch event.EventType {
	case domain.EventOrderConfirmed:
		return "Order confirmed " + ref
	case domain.EventPaymentConfirmed:
		return "Customer payment " + ref
	case domain.EventPOOrdered:
		return "Purchase order " + ref
	case domain.EventPOPaymentConfirmed:
		return "Supplier payment " + ref
	case domain.EventStockOut:
		return "Material issue " + ref
	}
	return string(event.EventType) + " " + ref
}

// openedItemKind names the open item an event type opens, if any.
func openedItemKind(t domain.EventType) (domain.OpenItemKind, bool) {
	switch t {
	case domain.EventOrderConfirmed:
		return domain.OpenItemReceivable, true
	case domain.EventPOOrdered:
		return domain.OpenItemPayable, true
	default:
		return "", false
	}
}
