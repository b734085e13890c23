package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/erpledger/internal/domain"
)

// OpenItemUseCase maintains the AR/AP sub-ledger.
type OpenItemUseCase struct {
	txManager TransactionManager
	itemRepo  OpenItemRepository
	rec       recorder
	idGen     IDGenerator
	retrier   Retrier
	metrics   Metrics
	logger    zerolog.Logger
}

// NewOpenItemUseCase creates a new OpenItemUseCase. auditRepo, retrier and
// metrics may be nil.
func NewOpenItemUseCase(
	txManager TransactionManager,
	itemRepo OpenItemRepository,
	outboxRepo OutboxRepository,
	auditRepo AuditRepository,
	idGen IDGenerator,
	retrier Retrier,
	metrics Metrics,
	logger zerolog.Logger,
) *OpenItemUseCase {
	if retrier == nil {
		retrier = noRetry{}
	}
	if metrics == nil {
		metrics = NopMetrics
	}

	return &OpenItemUseCase{
		txManager: txManager,
		itemRepo:  itemRepo,
		rec:       recorder{outboxRepo: outboxRepo, auditRepo: auditRepo, idGen: idGen},
		idGen:     idGen,
		retrier:   retrier,
		metrics:   metrics,
		logger:    logger,
	}
}

// OpenInput represents input for opening a receivable or payable.
type OpenInput struct {
	Kind     domain.OpenItemKind
	SourceID string
	PartyID  string
	DueDate  time.Time
	Amount   decimal.Decimal
}

// SettleInput represents a payment against an open item. PartyID is checked
// against the item when set.
type SettleInput struct {
	Kind     domain.OpenItemKind
	SourceID string
	PartyID  string
	Amount   decimal.Decimal
}

// Open opens an item in its own transaction.
func (uc *OpenItemUseCase) Open(ctx context.Context, input OpenInput) (*domain.OpenItem, error) {
	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	var item *domain.OpenItem
	err := inTx(txCtx, uc.txManager, uc.retrier, func(ctx context.Context, tx Transaction) error {
		var err error
		item, err = uc.OpenTx(ctx, tx, input)
		return err
	})
	if err != nil {
		return nil, err
	}

	return item, nil
}

// OpenTx opens an item inside tx. A second item for the same source fails
// with ErrOpenItemExists.
func (uc *OpenItemUseCase) OpenTx(ctx context.Context, tx Transaction, input OpenInput) (*domain.OpenItem, error) {
	now := time.Now().UTC()

	item, err := domain.NewOpenItem(uc.idGen.Generate(), input.Kind, input.SourceID, input.PartyID, input.DueDate, input.Amount, now)
	if err != nil {
		return nil, err
	}

	_, err = uc.itemRepo.GetBySourceForUpdate(ctx, tx, input.Kind, input.SourceID)
	switch {
	case err == nil:
		return nil, domain.ErrOpenItemExists
	case !errors.Is(err, domain.ErrOpenItemNotFound):
		return nil, err
	}

	if err := uc.itemRepo.Create(ctx, tx, item); err != nil {
		return nil, err
	}

	if err := uc.rec.outbox(ctx, tx, domain.AggregateTypeOpenItem, item.ID, domain.EventTypeOpenItemOpened, changedEvent(item, item.OriginalAmount), now); err != nil {
		return nil, err
	}
	if err := uc.rec.audit(ctx, tx, domain.AuditActionOpenItemOpen, domain.AggregateTypeOpenItem, item.ID, nil, item, now); err != nil {
		return nil, err
	}

	return item, nil
}

// ApplyPayment settles part of an item in its own transaction.
func (uc *OpenItemUseCase) ApplyPayment(ctx context.Context, input SettleInput) (*domain.OpenItem, error) {
	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	var item *domain.OpenItem
	err := inTx(txCtx, uc.txManager, uc.retrier, func(ctx context.Context, tx Transaction) error {
		var err error
		item, err = uc.ApplyPaymentTx(ctx, tx, input)
		return err
	})
	if err != nil {
		return nil, err
	}

	uc.metrics.OpenItemSettled(item.Kind)

	return item, nil
}

// ApplyPaymentTx locks the item for input.SourceID and decrements its
// balance. Overpayment leaves the item unchanged.
func (uc *OpenItemUseCase) ApplyPaymentTx(ctx context.Context, tx Transaction, input SettleInput) (*domain.OpenItem, error) {
	if !input.Kind.IsValid() {
		return nil, domain.NewValidationError("kind", "must be RECEIVABLE or PAYABLE")
	}
	if err := domain.RequireID("source_id", input.SourceID); err != nil {
		return nil, err
	}

	item, err := uc.itemRepo.GetBySourceForUpdate(ctx, tx, input.Kind, input.SourceID)
	if err != nil {
		return nil, err
	}

	if input.PartyID != "" && input.PartyID != item.PartyID {
		return nil, domain.NewValidationError("party_id", "does not match the open item for "+input.SourceID)
	}

	before := *item
	now := time.Now().UTC()

	if err := item.ApplySettlement(input.Amount, now); err != nil {
		return nil, err
	}

	if err := uc.itemRepo.UpdateBalance(ctx, tx, item); err != nil {
		return nil, err
	}

	if err := uc.rec.outbox(ctx, tx, domain.AggregateTypeOpenItem, item.ID, domain.EventTypeOpenItemSettled, changedEvent(item, input.Amount), now); err != nil {
		return nil, err
	}
	if err := uc.rec.audit(ctx, tx, domain.AuditActionOpenItemSettle, domain.AggregateTypeOpenItem, item.ID, &before, item, now); err != nil {
		return nil, err
	}

	uc.logger.Debug().
		Str("kind", string(item.Kind)).
		Str("source_id", item.SourceID).
		Str("amount", input.Amount.String()).
		Str("balance", item.BalanceAmount.String()).
		Msg("open item settled")

	return item, nil
}

// CancelTx closes the item of a source document whose entry is reversed. An
// item that has received payments is returned unchanged with cancelled false;
// a source without an item returns nil.
func (uc *OpenItemUseCase) CancelTx(ctx context.Context, tx Transaction, kind domain.OpenItemKind, sourceID string) (item *domain.OpenItem, cancelled bool, err error) {
	item, err = uc.itemRepo.GetBySourceForUpdate(ctx, tx, kind, sourceID)
	switch {
	case errors.Is(err, domain.ErrOpenItemNotFound):
		return nil, false, nil
	case err != nil:
		return nil, false, err
	}

	before := *item
	now := time.Now().UTC()

	if !item.Cancel(now) {
		return item, false, nil
	}

	if err := uc.itemRepo.UpdateBalance(ctx, tx, item); err != nil {
		return nil, false, err
	}

	if err := uc.rec.outbox(ctx, tx, domain.AggregateTypeOpenItem, item.ID, domain.EventTypeOpenItemCancelled, changedEvent(item, before.BalanceAmount), now); err != nil {
		return nil, false, err
	}
	if err := uc.rec.audit(ctx, tx, domain.AuditActionOpenItemCancel, domain.AggregateTypeOpenItem, item.ID, &before, item, now); err != nil {
		return nil, false, err
	}

	return item, true, nil
}

// OutstandingFor returns the open balance owed by or to a party. An empty
// partyID totals all parties.
func (uc *OpenItemUseCase) OutstandingFor(ctx context.Context, kind domain.OpenItemKind, partyID string) (decimal.Decimal, error) {
	if !kind.IsValid() {
		return decimal.Zero, domain.NewValidationError("kind", "must be RECEIVABLE or PAYABLE")
	}
	return uc.itemRepo.SumOutstanding(ctx, kind, partyID)
}

// Get returns the item opened for a source document.
func (uc *OpenItemUseCase) Get(ctx context.Context, kind domain.OpenItemKind, sourceID string) (*domain.OpenItem, error) {
	return uc.itemRepo.GetBySource(ctx, kind, sourceID)
}

// ListByParty returns every item of a customer or supplier.
func (uc *OpenItemUseCase) ListByParty(ctx context.Context, kind domain.OpenItemKind, partyID string) ([]*domain.OpenItem, error) {
	return uc.itemRepo.ListByParty(ctx, kind, partyID)
}

// List returns a page of items of one kind.
func (uc *OpenItemUseCase) List(ctx context.Context, kind domain.OpenItemKind, limit, offset int) ([]*domain.OpenItem, error) {
	limit, offset, err := domain.ValidatePagination(limit, offset)
	if err != nil {
		return nil, err
	}
	return uc.itemRepo.List(ctx, kind, limit, offset)
}

func changedEvent(item *domain.OpenItem, amount decimal.Decimal) domain.OpenItemChangedEvent {
	return domain.OpenItemChangedEvent{
		OpenItemID: item.ID,
		Kind:       string(item.Kind),
		SourceID:   item.SourceID,
		PartyID:    item.PartyID,
		Amount:     amount.String(),
		Balance:    item.BalanceAmount.String(),
		Status:     string(item.Status),
	}
}
