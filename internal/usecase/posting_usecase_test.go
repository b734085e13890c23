package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/erpledger/internal/domain"
	"github.com/iho/erpledger/internal/usecase"
)

func TestPost_OrderToCash(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	entry, err := h.posting.Post(ctx, orderConfirmed("evt-1", "order-1", "cust-1", "85000000"))
	require.NoError(t, err)
	require.Len(t, entry.Lines, 2)
	assert.Equal(t, domain.AccountAccountsReceivable, entry.Lines[0].AccountCode)
	assert.True(t, entry.Lines[0].DrAmount.Equal(dec("85000000")))
	assert.Equal(t, domain.AccountSalesRevenue, entry.Lines[1].AccountCode)
	assert.True(t, entry.Lines[1].CrAmount.Equal(dec("85000000")))
	assert.Equal(t, "cust-1", entry.Lines[0].CustomerID)
	assert.Regexp(t, `^JE-\d{6}-000001$`, entry.JournalNo)

	item, err := h.openItems.Get(ctx, domain.OpenItemReceivable, "order-1")
	require.NoError(t, err)
	assert.Equal(t, domain.OpenItemStatusOpen, item.Status)

	payment, err := h.posting.Post(ctx, paymentConfirmed("evt-2", "order-1", "cust-1", "25500000"))
	require.NoError(t, err)
	assert.Equal(t, domain.AccountCash, payment.Lines[0].AccountCode)
	assert.Equal(t, domain.AccountAccountsReceivable, payment.Lines[1].AccountCode)
	assert.Regexp(t, `-000002$`, payment.JournalNo)

	item, err = h.openItems.Get(ctx, domain.OpenItemReceivable, "order-1")
	require.NoError(t, err)
	assert.True(t, item.BalanceAmount.Equal(dec("59500000")), "balance %s", item.BalanceAmount)
	assert.Equal(t, domain.OpenItemStatusPartial, item.Status)

	outstanding, err := h.openItems.OutstandingFor(ctx, domain.OpenItemReceivable, "cust-1")
	require.NoError(t, err)
	assert.True(t, outstanding.Equal(dec("59500000")))

	report, err := h.recon.Reconcile(ctx)
	require.NoError(t, err)
	assert.True(t, report.Reconciled())
	assert.True(t, report.Results[0].LedgerBalance.Equal(dec("59500000")))

	event, err := h.posting.GetEvent(ctx, "evt-2")
	require.NoError(t, err)
	assert.Equal(t, domain.EventStatusPosted, event.Status)
	assert.Equal(t, payment.ID, event.JournalEntryID)

	h.requireBalancedLedger(t)
}

func TestPost_PurchaseToPay(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	entry, err := h.posting.Post(ctx, poOrdered("evt-1", "po-1", "sup-1", "5000"))
	require.NoError(t, err)
	assert.Equal(t, domain.AccountRawMaterialInventory, entry.Lines[0].AccountCode)
	assert.Equal(t, domain.AccountAccountsPayable, entry.Lines[1].AccountCode)
	assert.Equal(t, "sup-1", entry.Lines[1].SupplierID)

	_, err = h.posting.Post(ctx, poPaymentConfirmed("evt-2", "po-1", "sup-1", "2000"))
	require.NoError(t, err)

	item, err := h.openItems.Get(ctx, domain.OpenItemPayable, "po-1")
	require.NoError(t, err)
	assert.True(t, item.BalanceAmount.Equal(dec("3000")))
	assert.Equal(t, domain.OpenItemStatusPartial, item.Status)

	ap, err := h.recon.ReconcileKind(ctx, domain.OpenItemPayable)
	require.NoError(t, err)
	assert.True(t, ap.IsReconciled)
	assert.True(t, ap.LedgerBalance.Equal(dec("3000")))

	_, err = h.posting.Post(ctx, poPaymentConfirmed("evt-3", "po-1", "sup-1", "3000"))
	require.NoError(t, err)

	item, err = h.openItems.Get(ctx, domain.OpenItemPayable, "po-1")
	require.NoError(t, err)
	assert.Equal(t, domain.OpenItemStatusClosed, item.Status)

	h.requireBalancedLedger(t)
}

func TestPost_OverpaymentRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.posting.Post(ctx, orderConfirmed("evt-1", "order-1", "cust-1", "1000"))
	require.NoError(t, err)

	_, err = h.posting.Post(ctx, paymentConfirmed("evt-2", "order-1", "cust-1", "1500"))
	require.ErrorIs(t, err, domain.ErrOverpayment)

	item, err := h.openItems.Get(ctx, domain.OpenItemReceivable, "order-1")
	require.NoError(t, err)
	assert.True(t, item.BalanceAmount.Equal(dec("1000")))
	assert.Equal(t, domain.OpenItemStatusOpen, item.Status)

	entries, err := h.posting.ListEntries(ctx, 0, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	event, err := h.posting.GetEvent(ctx, "evt-2")
	require.NoError(t, err)
	assert.Equal(t, domain.EventStatusError, event.Status)
	assert.Contains(t, event.Error, "exceeds open receivable balance")
	assert.Empty(t, event.JournalEntryID)

	h.requireBalancedLedger(t)
}

func TestPost_IdempotentReplay(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, err := h.posting.Post(ctx, orderConfirmed("evt-1", "order-1", "cust-1", "100"))
	require.NoError(t, err)

	second, err := h.posting.Post(ctx, orderConfirmed("evt-1", "order-1", "cust-1", "100"))
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.JournalNo, second.JournalNo)

	entries, err := h.posting.ListEntriesBySource(ctx, domain.SourceTypeOrder, "order-1")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestPost_ErrorEventCanBeRetried(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	payment := paymentConfirmed("evt-pay", "order-1", "cust-1", "40")
	_, err := h.posting.Post(ctx, payment)
	require.ErrorIs(t, err, domain.ErrOpenItemNotFound)

	failed, err := h.posting.ListEvents(ctx, domain.EventStatusError, 0, 0)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	firstSeen := failed[0].CreatedAt

	_, err = h.posting.Post(ctx, orderConfirmed("evt-order", "order-1", "cust-1", "100"))
	require.NoError(t, err)

	entry, err := h.posting.Post(ctx, paymentConfirmed("evt-pay", "order-1", "cust-1", "40"))
	require.NoError(t, err)

	event, err := h.posting.GetEvent(ctx, "evt-pay")
	require.NoError(t, err)
	assert.Equal(t, domain.EventStatusPosted, event.Status)
	assert.Equal(t, entry.ID, event.JournalEntryID)
	assert.Empty(t, event.Error)
	assert.Equal(t, firstSeen, event.CreatedAt)
}

func TestPost_Validation(t *testing.T) {
	tests := []struct {
		name      string
		event     *domain.AccountingEvent
		wantField string
	}{
		{
			name:      "missing customer",
			event:     orderConfirmed("evt-1", "order-1", "", "100"),
			wantField: "payload.customer_id",
		},
		{
			name:      "zero amount",
			event:     orderConfirmed("evt-1", "order-1", "cust-1", "0"),
			wantField: "payload.amount",
		},
		{
			name:      "sub-cent amount",
			event:     poOrdered("evt-1", "po-1", "sup-1", "10.005"),
			wantField: "payload.amount",
		},
		{
			name: "source type mismatch",
			event: &domain.AccountingEvent{
				ID:         "evt-1",
				SourceType: domain.SourceTypeOrder,
				SourceID:   "pay-1",
				EventType:  domain.EventPaymentConfirmed,
				Payload:    &domain.PaymentConfirmedPayload{OrderID: "o", Amount: dec("1")},
			},
			wantField: "source_type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()

			_, err := h.posting.Post(ctx, tt.event)

			var verr *domain.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.wantField, verr.Field)

			event, err := h.posting.GetEvent(ctx, "evt-1")
			require.NoError(t, err)
			assert.Equal(t, domain.EventStatusError, event.Status)

			entries, err := h.posting.ListEntries(ctx, 0, 0)
			require.NoError(t, err)
			assert.Empty(t, entries)
		})
	}
}

func TestPost_RejectsBareStockOut(t *testing.T) {
	h := newHarness(t)

	_, err := h.posting.Post(context.Background(), &domain.AccountingEvent{
		ID:         "evt-1",
		SourceType: domain.SourceTypeStockMovement,
		SourceID:   "mv-1",
		EventType:  domain.EventStockOut,
		Payload:    &domain.StockOutPayload{MaterialID: "m", ProjectID: "p", Quantity: dec("1"), Amount: dec("1")},
	})
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestPost_DuplicateOrderRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.posting.Post(ctx, orderConfirmed("evt-1", "order-1", "cust-1", "100"))
	require.NoError(t, err)

	_, err = h.posting.Post(ctx, orderConfirmed("evt-2", "order-1", "cust-1", "100"))
	require.ErrorIs(t, err, domain.ErrOpenItemExists)

	h.requireBalancedLedger(t)
}

func TestPost_PaymentFromAnotherCustomerRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.posting.Post(ctx, orderConfirmed("evt-1", "order-1", "cust-1", "100"))
	require.NoError(t, err)

	_, err = h.posting.Post(ctx, paymentConfirmed("evt-2", "order-1", "cust-2", "10"))
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestPost_UnknownAccountIsInvariantViolation(t *testing.T) {
	h := newHarness(t, withRegistry(registryWithout(t, domain.AccountSalesRevenue)))
	ctx := context.Background()

	_, err := h.posting.Post(ctx, orderConfirmed("evt-1", "order-1", "cust-1", "100"))
	require.ErrorIs(t, err, domain.ErrInvariantViolation)

	_, err = h.openItems.Get(ctx, domain.OpenItemReceivable, "order-1")
	require.ErrorIs(t, err, domain.ErrOpenItemNotFound, "open item must roll back with the entry")

	entries, err := h.posting.ListEntries(ctx, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, entries)

	event, err := h.posting.GetEvent(ctx, "evt-1")
	require.NoError(t, err)
	assert.Equal(t, domain.EventStatusError, event.Status)
}

func TestReverse(t *testing.T) {
	h := newHarness(t)
	ctx := domain.WithUser(context.Background(), &domain.User{ID: "admin-1", Role: domain.RoleAdmin})

	original, err := h.posting.Post(ctx, orderConfirmed("evt-1", "order-1", "cust-1", "1000"))
	require.NoError(t, err)
	assert.Equal(t, "admin-1", original.PostedBy)

	reversal, err := h.posting.Reverse(ctx, usecase.ReverseInput{EntryID: original.ID, Reason: "entered twice"})
	require.NoError(t, err)
	assert.Equal(t, original.ID, reversal.ReversalOf)
	assert.Equal(t, domain.SourceTypeOrder, reversal.SourceType)
	assert.Equal(t, domain.AccountAccountsReceivable, reversal.Lines[0].AccountCode)
	assert.True(t, reversal.Lines[0].CrAmount.Equal(dec("1000")))
	assert.Regexp(t, `-000002$`, reversal.JournalNo)
	assert.Contains(t, reversal.Description, original.JournalNo)

	stored, err := h.posting.GetEntry(ctx, original.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JournalStatusReversed, stored.Status)
	assert.Equal(t, reversal.ID, stored.ReversedBy)

	event, err := h.posting.GetEvent(ctx, "evt-1")
	require.NoError(t, err)
	assert.Equal(t, domain.EventStatusReversed, event.Status)

	_, err = h.posting.Reverse(ctx, usecase.ReverseInput{EntryID: original.ID})
	require.ErrorIs(t, err, domain.ErrInvalidStatus)

	_, err = h.posting.Reverse(ctx, usecase.ReverseInput{EntryID: reversal.ID})
	require.ErrorIs(t, err, domain.ErrInvalidStatus)

	_, err = h.posting.Post(ctx, orderConfirmed("evt-1", "order-1", "cust-1", "1000"))
	require.ErrorIs(t, err, domain.ErrInvalidStatus)

	_, err = h.posting.Reverse(ctx, usecase.ReverseInput{EntryID: "missing"})
	require.ErrorIs(t, err, domain.ErrJournalEntryNotFound)

	h.requireBalancedLedger(t)

	item, err := h.openItems.Get(ctx, domain.OpenItemReceivable, "order-1")
	require.NoError(t, err)
	assert.Equal(t, domain.OpenItemStatusClosed, item.Status)
	assert.True(t, item.BalanceAmount.IsZero())
	assert.True(t, item.OriginalAmount.Equal(dec("1000")))

	ar, err := h.recon.ReconcileKind(ctx, domain.OpenItemReceivable)
	require.NoError(t, err)
	assert.True(t, ar.IsReconciled, "%+v", ar)
	assert.True(t, ar.LedgerBalance.IsZero())

	// The source stays taken; a corrected order needs its own document.
	_, err = h.posting.Post(ctx, orderConfirmed("evt-2", "order-1", "cust-1", "900"))
	require.ErrorIs(t, err, domain.ErrOpenItemExists)

	cancelled, err := h.outbox.GetByAggregate(ctx, domain.AggregateTypeOpenItem, item.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, cancelled, 2)
	assert.Equal(t, domain.EventTypeOpenItemCancelled, cancelled[1].EventType)

	audits, err := h.audit.GetByResourceID(ctx, domain.AggregateTypeJournalEntry, original.ID)
	require.NoError(t, err)
	require.NotEmpty(t, audits)
	assert.Equal(t, "admin-1", audits[0].UserID)

	published, err := h.outbox.GetByAggregate(ctx, domain.AggregateTypeJournalEntry, original.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, published, 2)
	assert.Equal(t, domain.EventTypeJournalPosted, published[0].EventType)
	assert.Equal(t, domain.EventTypeJournalReversed, published[1].EventType)
}

func TestReverse_PaidItemIsKept(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	original, err := h.posting.Post(ctx, orderConfirmed("evt-1", "order-1", "cust-1", "1000"))
	require.NoError(t, err)
	_, err = h.posting.Post(ctx, paymentConfirmed("evt-2", "order-1", "cust-1", "400"))
	require.NoError(t, err)

	_, err = h.posting.Reverse(ctx, usecase.ReverseInput{EntryID: original.ID})
	require.NoError(t, err)

	item, err := h.openItems.Get(ctx, domain.OpenItemReceivable, "order-1")
	require.NoError(t, err)
	assert.Equal(t, domain.OpenItemStatusPartial, item.Status)
	assert.True(t, item.BalanceAmount.Equal(dec("600")))

	// AR is now -400 against 600 outstanding.
	ar, err := h.recon.ReconcileKind(ctx, domain.OpenItemReceivable)
	require.NoError(t, err)
	assert.False(t, ar.IsReconciled)
	assert.True(t, ar.Difference.Equal(dec("-1000")), "%+v", ar)

	h.requireBalancedLedger(t)
}

func TestReverse_PurchaseOrderCancelsPayable(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	original, err := h.posting.Post(ctx, poOrdered("evt-1", "po-1", "sup-1", "250"))
	require.NoError(t, err)

	_, err = h.posting.Reverse(ctx, usecase.ReverseInput{EntryID: original.ID})
	require.NoError(t, err)

	outstanding, err := h.openItems.OutstandingFor(ctx, domain.OpenItemPayable, "sup-1")
	require.NoError(t, err)
	assert.True(t, outstanding.IsZero())

	ap, err := h.recon.ReconcileKind(ctx, domain.OpenItemPayable)
	require.NoError(t, err)
	assert.True(t, ap.IsReconciled, "%+v", ap)
}

func TestPost_ConcurrentJournalNumbersAreGapFree(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.posting.Post(ctx, orderConfirmed("evt-seed", "order-shared", "cust-1", "100"))
	require.NoError(t, err)

	const workers = 40
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%4 == 0 {
				// Overpayments fail and must not consume a number.
				_, _ = h.posting.Post(ctx, paymentConfirmed(fmt.Sprintf("evt-pay-%d", i), "order-shared", "cust-1", "1000"))
				return
			}
			_, _ = h.posting.Post(ctx, orderConfirmed(fmt.Sprintf("evt-%d", i), fmt.Sprintf("order-%d", i), "cust-1", "10"))
		}(i)
	}
	wg.Wait()

	entries, err := h.posting.ListEntries(ctx, 1000, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1+workers-workers/4)

	numbers := make([]string, 0, len(entries))
	for i, e := range entries {
		numbers = append(numbers, e.JournalNo)
		if i > 0 {
			assert.Greater(t, e.JournalNo, entries[i-1].JournalNo, "numbers must increase in commit order")
		}
	}
	sort.Strings(numbers)
	for i, n := range numbers {
		assert.Regexp(t, fmt.Sprintf(`-%06d$`, i+1), n)
	}

	h.requireBalancedLedger(t)
}

func TestPost_ConcurrentPaymentsNeverOverdraw(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.posting.Post(ctx, orderConfirmed("evt-order", "order-1", "cust-1", "100"))
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := h.posting.Post(ctx, paymentConfirmed(fmt.Sprintf("evt-%d", i), "order-1", "cust-1", "30"))
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			if !errors.Is(err, domain.ErrOverpayment) {
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 3, succeeded)

	item, err := h.openItems.Get(ctx, domain.OpenItemReceivable, "order-1")
	require.NoError(t, err)
	assert.True(t, item.BalanceAmount.Equal(dec("10")))

	report, err := h.recon.Reconcile(ctx)
	require.NoError(t, err)
	assert.True(t, report.Reconciled())
}
