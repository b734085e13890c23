package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/iho/erpledger/internal/domain"
)

// PostingDeps are the collaborators of the posting engine. AuditRepo,
// Retrier and Metrics are optional.
type PostingDeps struct {
	TxManager    TransactionManager
	JournalRepo  JournalRepository
	EventRepo    EventRepository
	SequenceRepo SequenceRepository
	OutboxRepo   OutboxRepository
	AuditRepo    AuditRepository
	OpenItems    *OpenItemUseCase
	Registry     *domain.AccountRegistry
	IDGen        IDGenerator
	Retrier      Retrier
	Metrics      Metrics
	Logger       zerolog.Logger
}

// PostingUseCase turns accounting events into balanced journal entries.
type PostingUseCase struct {
	txManager    TransactionManager
	journalRepo  JournalRepository
	eventRepo    EventRepository
	sequenceRepo SequenceRepository
	openItems    *OpenItemUseCase
	registry     *domain.AccountRegistry
	rec          recorder
	idGen        IDGenerator
	retrier      Retrier
	metrics      Metrics
	logger       zerolog.Logger
}

// NewPostingUseCase creates a new PostingUseCase.
func NewPostingUseCase(deps PostingDeps) *PostingUseCase {
	uc := &PostingUseCase{
		txManager:    deps.TxManager,
		journalRepo:  deps.JournalRepo,
		eventRepo:    deps.EventRepo,
		sequenceRepo: deps.SequenceRepo,
		openItems:    deps.OpenItems,
		registry:     deps.Registry,
		rec:          recorder{outboxRepo: deps.OutboxRepo, auditRepo: deps.AuditRepo, idGen: deps.IDGen},
		idGen:        deps.IDGen,
		retrier:      deps.Retrier,
		metrics:      deps.Metrics,
		logger:       deps.Logger,
	}

	if uc.registry == nil {
		uc.registry = domain.MustDefaultRegistry()
	}
	if uc.retrier == nil {
		uc.retrier = noRetry{}
	}
	if uc.metrics == nil {
		uc.metrics = NopMetrics
	}

	return uc
}

// Post validates event, books its journal entry and applies its AR/AP effect
// atomically. Posting an event that is already POSTED returns its entry.
// Business failures are recorded on the event with status ERROR.
//
// STOCK_OUT events are only accepted through the stock ledger.
func (uc *PostingUseCase) Post(ctx context.Context, event *domain.AccountingEvent) (*domain.JournalEntry, error) {
	if event == nil {
		return nil, domain.NewValidationError("event", "is required")
	}
	if event.EventType == domain.EventStockOut {
		return nil, domain.NewValidationError("event_type", "STOCK_OUT is posted by stock issues")
	}
	if event.ID == "" {
		event.ID = uc.idGen.Generate()
	}

	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	var (
		entry    *domain.JournalEntry
		replayed bool
	)
	err := inTx(txCtx, uc.txManager, uc.retrier, func(ctx context.Context, tx Transaction) error {
		var err error
		entry, replayed, err = uc.postTx(ctx, tx, event)
		return err
	})
	if err != nil {
		uc.fail(txCtx, event, err)
		return nil, err
	}

	if replayed {
		uc.logger.Debug().Str("event_id", event.ID).Str("journal_no", entry.JournalNo).Msg("event already posted")
		return entry, nil
	}

	uc.posted(event, entry)

	return entry, nil
}

// PostTx books event inside a transaction owned by the caller. The caller
// decides whether to record a failure.
func (uc *PostingUseCase) PostTx(ctx context.Context, tx Transaction, event *domain.AccountingEvent) (*domain.JournalEntry, error) {
	entry, _, err := uc.postTx(ctx, tx, event)
	return entry, err
}

func (uc *PostingUseCase) postTx(ctx context.Context, tx Transaction, event *domain.AccountingEvent) (*domain.JournalEntry, bool, error) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if err := event.Validate(); err != nil {
		return nil, false, err
	}

	existing, err := uc.eventRepo.GetByIDForUpdate(ctx, tx, event.ID)
	switch {
	case errors.Is(err, domain.ErrEventNotFound):
		existing = nil
	case err != nil:
		return nil, false, err
	}

	if existing != nil {
		switch existing.Status {
		case domain.EventStatusPosted:
			entry, err := uc.journalRepo.GetByID(ctx, existing.JournalEntryID)
			if err != nil {
				return nil, false, err
			}
			return entry, true, nil
		case domain.EventStatusReversed:
			return nil, false, fmt.Errorf("%w: event %s was reversed", domain.ErrInvalidStatus, event.ID)
		}
	}

	lines, err := uc.buildLines(ctx, tx, event)
	if err != nil {
		return nil, false, err
	}

	now := time.Now().UTC()
	meta := domain.RequestMetaFromContext(ctx)

	description := event.Description
	if description == "" {
		description = defaultDescription(event)
	}

	entry := &domain.JournalEntry{
		ID:          uc.idGen.Generate(),
		PostingDate: now,
		SourceType:  event.SourceType,
		SourceID:    event.SourceID,
		SourceNo:    event.SourceNo,
		EventID:     event.ID,
		Description: description,
		Status:      domain.JournalStatusPosted,
		PostedBy:    meta.UserID,
		CreatedAt:   now,
		UpdatedAt:   now,
		Lines:       lines,
	}

	if err := uc.checkEntry(entry); err != nil {
		return nil, false, err
	}

	if err := uc.assignJournalNo(ctx, tx, entry); err != nil {
		return nil, false, err
	}

	if err := uc.journalRepo.Create(ctx, tx, entry); err != nil {
		return nil, false, err
	}

	event.Status = domain.EventStatusPosted
	event.JournalEntryID = entry.ID
	event.Error = ""
	event.UpdatedAt = now
	switch {
	case existing != nil:
		event.CreatedAt = existing.CreatedAt
	case event.CreatedAt.IsZero():
		event.CreatedAt = now
	}

	if err := uc.eventRepo.Save(ctx, tx, event); err != nil {
		return nil, false, err
	}

	if err := uc.rec.outbox(ctx, tx, domain.AggregateTypeJournalEntry, entry.ID, domain.EventTypeJournalPosted, domain.JournalPostedEvent{
		JournalEntryID: entry.ID,
		JournalNo:      entry.JournalNo,
		SourceType:     string(entry.SourceType),
		SourceID:       entry.SourceID,
		EventID:        event.ID,
		Amount:         entry.TotalDebit().String(),
		PostedAt:       now.Format(time.RFC3339),
	}, now); err != nil {
		return nil, false, err
	}
	if err := uc.rec.audit(ctx, tx, domain.AuditActionJournalPost, domain.AggregateTypeJournalEntry, entry.ID, nil, entry, now); err != nil {
		return nil, false, err
	}

	return entry, false, nil
}

// checkEntry resolves every account code and verifies the structural
// invariants of the entry.
func (uc *PostingUseCase) checkEntry(entry *domain.JournalEntry) error {
	entry.NumberLines()

	for _, l := range entry.Lines {
		account, err := uc.registry.Resolve(l.AccountCode)
		if err != nil {
			return &domain.InvariantViolation{Rule: "journal.account", Detail: err.Error()}
		}
		if !account.IsActive {
			return &domain.InvariantViolation{Rule: "journal.account", Detail: "account " + account.Code + " is inactive"}
		}
	}

	return entry.CheckBalanced()
}

// assignJournalNo takes the next number of the posting period. The counter
// is locked last and held until the transaction ends.
func (uc *PostingUseCase) assignJournalNo(ctx context.Context, tx Transaction, entry *domain.JournalEntry) error {
	period := domain.JournalPeriod(entry.PostingDate)

	seq, err := uc.sequenceRepo.Next(ctx, tx, "journal:"+period)
	if err != nil {
		return err
	}

	entry.JournalNo = domain.FormatJournalNo(period, seq)
	return nil
}

func (uc *PostingUseCase) posted(event *domain.AccountingEvent, entry *domain.JournalEntry) {
	uc.metrics.JournalPosted(event.EventType)

	switch event.EventType {
	case domain.EventPaymentConfirmed:
		uc.metrics.OpenItemSettled(domain.OpenItemReceivable)
	case domain.EventPOPaymentConfirmed:
		uc.metrics.OpenItemSettled(domain.OpenItemPayable)
	}

	uc.logger.Info().
		Str("event_id", event.ID).
		Str("event_type", string(event.EventType)).
		Str("journal_no", entry.JournalNo).
		Str("amount", entry.TotalDebit().String()).
		Msg("journal entry posted")
}

// fail logs and counts a failed posting and records business failures on
// the event.
func (uc *PostingUseCase) fail(ctx context.Context, event *domain.AccountingEvent, cause error) {
	uc.metrics.PostingFailed(event.EventType, domain.ErrorClass(cause))

	switch {
	case errors.Is(cause, domain.ErrInvariantViolation):
		uc.logger.Error().Err(cause).
			Str("event_id", event.ID).
			Str("event_type", string(event.EventType)).
			Str("source_id", event.SourceID).
			Msg("posting invariant violated")
	case domain.IsBusinessError(cause):
		uc.logger.Warn().Err(cause).
			Str("event_id", event.ID).
			Str("event_type", string(event.EventType)).
			Msg("posting rejected")
	default:
		uc.logger.Error().Err(cause).Str("event_id", event.ID).Msg("posting failed")
		return
	}

	if err := uc.RecordFailure(ctx, event, cause); err != nil {
		uc.logger.Error().Err(err).Str("event_id", event.ID).Msg("failed to record posting failure")
	}
}

// RecordFailure stores event with status ERROR in its own transaction. Events
// that are already POSTED or REVERSED are left untouched.
func (uc *PostingUseCase) RecordFailure(ctx context.Context, event *domain.AccountingEvent, cause error) error {
	if domain.RequireID("id", event.ID) != nil {
		return nil
	}

	return inTx(ctx, uc.txManager, uc.retrier, func(ctx context.Context, tx Transaction) error {
		existing, err := uc.eventRepo.GetByIDForUpdate(ctx, tx, event.ID)
		switch {
		case errors.Is(err, domain.ErrEventNotFound):
			existing = nil
		case err != nil:
			return err
		}

		now := time.Now().UTC()
		failed := *event
		failed.Status = domain.EventStatusError
		failed.JournalEntryID = ""
		failed.Error = cause.Error()
		failed.UpdatedAt = now
		failed.CreatedAt = now

		if existing != nil {
			if existing.Status != domain.EventStatusError {
				return nil
			}
			failed.CreatedAt = existing.CreatedAt
		}

		if err := uc.eventRepo.Save(ctx, tx, &failed); err != nil {
			return err
		}

		return uc.rec.outbox(ctx, tx, domain.AggregateTypeEvent, failed.ID, domain.EventTypePostingFailed, domain.PostingFailedEvent{
			EventID:   failed.ID,
			EventType: string(failed.EventType),
			SourceID:  failed.SourceID,
			Error:     failed.Error,
		}, now)
	})
}

// ReverseInput represents input for reversing a journal entry.
type ReverseInput struct {
	EntryID string
	Reason  string
}

// Reverse books the mirror of a posted entry and marks the original and its
// event REVERSED. Reversing an order or purchase order also cancels its open
// item if nothing has been paid against it; a paid item is left as it is and
// shows up as a reconciliation difference.
func (uc *PostingUseCase) Reverse(ctx context.Context, input ReverseInput) (*domain.JournalEntry, error) {
	if err := domain.RequireID("entry_id", input.EntryID); err != nil {
		return nil, err
	}

	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	var (
		reversal *domain.JournalEntry
		kept     *domain.OpenItem
	)
	err := inTx(txCtx, uc.txManager, uc.retrier, func(ctx context.Context, tx Transaction) error {
		kept = nil

		original, err := uc.journalRepo.GetByIDForUpdate(ctx, tx, input.EntryID)
		if err != nil {
			return err
		}

		if err := original.CanReverse(); err != nil {
			return err
		}

		now := time.Now().UTC()
		meta := domain.RequestMetaFromContext(ctx)

		reversal = original.Reversal(uc.idGen.Generate(), meta.UserID, input.Reason, now)
		if err := uc.checkEntry(reversal); err != nil {
			return err
		}

		if original.EventID != "" {
			event, err := uc.eventRepo.GetByIDForUpdate(ctx, tx, original.EventID)
			if err != nil {
				return err
			}
			event.Status = domain.EventStatusReversed
			event.UpdatedAt = now
			if err := uc.eventRepo.Save(ctx, tx, event); err != nil {
				return err
			}

			if kind, ok := openedItemKind(event.EventType); ok && uc.openItems != nil {
				item, cancelled, err := uc.openItems.CancelTx(ctx, tx, kind, event.SourceID)
				if err != nil {
					return err
				}
				if item != nil && !cancelled {
					kept = item
				}
			}
		}

		if err := uc.assignJournalNo(ctx, tx, reversal); err != nil {
			return err
		}

		if err := uc.journalRepo.Create(ctx, tx, reversal); err != nil {
			return err
		}

		if err := uc.journalRepo.UpdateStatus(ctx, tx, original.ID, domain.JournalStatusReversed, reversal.ID, now); err != nil {
			return err
		}

		if err := uc.rec.outbox(ctx, tx, domain.AggregateTypeJournalEntry, original.ID, domain.EventTypeJournalReversed, domain.JournalReversedEvent{
			ReversalEntryID: reversal.ID,
			OriginalEntryID: original.ID,
			JournalNo:       reversal.JournalNo,
			Amount:          reversal.TotalDebit().String(),
		}, now); err != nil {
			return err
		}

		after := *original
		after.Status = domain.JournalStatusReversed
		after.ReversedBy = reversal.ID
		return uc.rec.audit(ctx, tx, domain.AuditActionJournalReverse, domain.AggregateTypeJournalEntry, original.ID, original, &after, now)
	})
	if err != nil {
		return nil, err
	}

	uc.metrics.JournalReversed()
	uc.logger.Info().
		Str("original_id", input.EntryID).
		Str("journal_no", reversal.JournalNo).
		Msg("journal entry reversed")

	if kept != nil {
		uc.logger.Warn().
			Str("kind", string(kept.Kind)).
			Str("source_id", kept.SourceID).
			Str("balance", kept.BalanceAmount.String()).
			Msg("open item of reversed entry already settled")
	}

	return reversal, nil
}

// GetEntry returns a journal entry with its lines.
func (uc *PostingUseCase) GetEntry(ctx context.Context, id string) (*domain.JournalEntry, error) {
	return uc.journalRepo.GetByID(ctx, id)
}

// ListEntries returns a page of journal entries in journal number order.
func (uc *PostingUseCase) ListEntries(ctx context.Context, limit, offset int) ([]*domain.JournalEntry, error) {
	limit, offset, err := domain.ValidatePagination(limit, offset)
	if err != nil {
		return nil, err
	}
	return uc.journalRepo.List(ctx, limit, offset)
}

// ListEntriesBySource returns the entries booked for one source document,
// including reversals.
func (uc *PostingUseCase) ListEntriesBySource(ctx context.Context, sourceType domain.SourceType, sourceID string) ([]*domain.JournalEntry, error) {
	if !sourceType.IsValid() {
		return nil, domain.NewValidationError("source_type", fmt.Sprintf("unknown source type %q", sourceType))
	}
	return uc.journalRepo.ListBySource(ctx, sourceType, sourceID)
}

// GetEvent returns a submitted accounting event.
func (uc *PostingUseCase) GetEvent(ctx context.Context, id string) (*domain.AccountingEvent, error) {
	return uc.eventRepo.GetByID(ctx, id)
}

// ListEvents returns a page of events, optionally filtered by status.
func (uc *PostingUseCase) ListEvents(ctx context.Context, status domain.EventStatus, limit, offset int) ([]*domain.AccountingEvent, error) {
	limit, offset, err := domain.ValidatePagination(limit, offset)
	if err != nil {
		return nil, err
	}
	return uc.eventRepo.List(ctx, status, limit, offset)
}
