package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/iho/erpledger/internal/domain"
)

// StockPoster books the journal entry of a stock issue.
type StockPoster interface {
	PostTx(ctx context.Context, tx Transaction, event *domain.AccountingEvent) (*domain.JournalEntry, error)
	RecordFailure(ctx context.Context, event *domain.AccountingEvent, cause error) error
}

// StockDeps are the collaborators of the stock ledger. Cache, AuditRepo,
// Retrier and Metrics are optional.
type StockDeps struct {
	TxManager    TransactionManager
	StockRepo    StockRepository
	MovementRepo MovementRepository
	OutboxRepo   OutboxRepository
	AuditRepo    AuditRepository
	Poster       StockPoster
	Cache        Cache
	IDGen        IDGenerator
	Retrier      Retrier
	Metrics      Metrics
	Logger       zerolog.Logger

	PostingMode    StockPostingMode
	CacheTTL       time.Duration
	BulkConcurrent int
}

// StockUseCase maintains on-hand quantities and weighted-average cost.
type StockUseCase struct {
	txManager    TransactionManager
	stockRepo    StockRepository
	movementRepo MovementRepository
	poster       StockPoster
	cache        Cache
	rec          recorder
	idGen        IDGenerator
	retrier      Retrier
	metrics      Metrics
	logger       zerolog.Logger

	postingMode    StockPostingMode
	cacheTTL       time.Duration
	bulkConcurrent int
}

// NewStockUseCase creates a new StockUseCase.
func NewStockUseCase(deps StockDeps) *StockUseCase {
	uc := &StockUseCase{
		txManager:      deps.TxManager,
		stockRepo:      deps.StockRepo,
		movementRepo:   deps.MovementRepo,
		poster:         deps.Poster,
		cache:          deps.Cache,
		rec:            recorder{outboxRepo: deps.OutboxRepo, auditRepo: deps.AuditRepo, idGen: deps.IDGen},
		idGen:          deps.IDGen,
		retrier:        deps.Retrier,
		metrics:        deps.Metrics,
		logger:         deps.Logger,
		postingMode:    deps.PostingMode,
		cacheTTL:       deps.CacheTTL,
		bulkConcurrent: deps.BulkConcurrent,
	}

	if uc.retrier == nil {
		uc.retrier = noRetry{}
	}
	if uc.metrics == nil {
		uc.metrics = NopMetrics
	}
	if !uc.postingMode.IsValid() {
		uc.postingMode = StockPostingStrict
	}
	if uc.cacheTTL <= 0 {
		uc.cacheTTL = DefaultStockCacheTTL
	}
	if uc.bulkConcurrent <= 0 {
		uc.bulkConcurrent = DefaultBulkAdjustConcurrency
	}

	return uc
}

// ReceiveInput represents a goods receipt.
type ReceiveInput struct {
	MaterialID      string
	Quantity        decimal.Decimal
	UnitPrice       decimal.Decimal
	PurchaseOrderID string
	ProjectID       string
	Reason          string
}

// IssueInput represents material issued to a project.
type IssueInput struct {
	MaterialID string
	ProjectID  string
	Quantity   decimal.Decimal
	Reason     string
}

// AdjustInput represents a signed count correction.
type AdjustInput struct {
	MaterialID string
	Quantity   decimal.Decimal
	Reason     string
}

// StockResult is the committed state after a movement.
type StockResult struct {
	Stock    *domain.Stock
	Movement *domain.StockMovement
	// Entry is the journal entry of an issue, nil when nothing was posted.
	Entry *domain.JournalEntry
}

// Receive adds quantity at unit price and blends it into the average.
func (uc *StockUseCase) Receive(ctx context.Context, input ReceiveInput) (*StockResult, error) {
	if err := domain.RequireID("material_id", input.MaterialID); err != nil {
		return nil, err
	}
	if err := domain.ValidateQuantity("quantity", input.Quantity); err != nil {
		return nil, err
	}
	if err := domain.ValidateUnitPrice("unit_price", input.UnitPrice); err != nil {
		return nil, err
	}

	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	var result *StockResult
	err := inTx(txCtx, uc.txManager, uc.retrier, func(ctx context.Context, tx Transaction) error {
		stock, err := uc.stockRepo.GetForUpdate(ctx, tx, input.MaterialID)
		if err != nil {
			return err
		}

		before := *stock
		now := time.Now().UTC()

		if err := stock.Receive(input.Quantity, input.UnitPrice, now); err != nil {
			return err
		}

		price := input.UnitPrice
		movement := &domain.StockMovement{
			ID:              uc.idGen.Generate(),
			MaterialID:      input.MaterialID,
			Type:            domain.MovementTypeIn,
			Quantity:        input.Quantity,
			UnitPrice:       &price,
			ProjectID:       input.ProjectID,
			PurchaseOrderID: input.PurchaseOrderID,
			Reason:          input.Reason,
			CreatedAt:       now,
		}

		if err := uc.apply(ctx, tx, &before, stock, movement, domain.AuditActionStockReceive, now); err != nil {
			return err
		}

		result = &StockResult{Stock: stock, Movement: movement}
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.committed(ctx, result)

	return result, nil
}

// IssueForProject removes quantity at the current average and posts the
// STOCK_OUT entry. In strict mode the issue and its entry commit together;
// in lenient mode a failed posting is recorded and the issue stands.
func (uc *StockUseCase) IssueForProject(ctx context.Context, input IssueInput) (*StockResult, error) {
	if err := domain.RequireID("material_id", input.MaterialID); err != nil {
		return nil, err
	}
	if err := domain.RequireID("project_id", input.ProjectID); err != nil {
		return nil, err
	}
	if err := domain.ValidateQuantity("quantity", input.Quantity); err != nil {
		return nil, err
	}

	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	var (
		result  *StockResult
		event   *domain.AccountingEvent
		postErr error
	)
	err := inTx(txCtx, uc.txManager, uc.retrier, func(ctx context.Context, tx Transaction) error {
		stock, err := uc.stockRepo.GetForUpdate(ctx, tx, input.MaterialID)
		if err != nil {
			return err
		}

		before := *stock
		now := time.Now().UTC()
		unitCost := stock.AvgUnitPrice

		value, err := stock.Issue(input.Quantity, now)
		if err != nil {
			return err
		}

		movement := &domain.StockMovement{
			ID:         uc.idGen.Generate(),
			MaterialID: input.MaterialID,
			Type:       domain.MovementTypeOut,
			Quantity:   input.Quantity,
			UnitPrice:  &unitCost,
			ProjectID:  input.ProjectID,
			Reason:     input.Reason,
			CreatedAt:  now,
		}
		result = &StockResult{Stock: stock, Movement: movement}
		event, postErr = nil, nil

		// Nothing to book when the material carries no cost.
		if value.IsPositive() {
			event = issueEvent(uc.idGen.Generate(), movement, value, now)

			if uc.postingMode == StockPostingStrict {
				entry, err := uc.poster.PostTx(ctx, tx, event)
				if err != nil {
					postErr = err
					return err
				}
				movement.JournalEntryID = entry.ID
				result.Entry = entry
				event = nil
			}
		}

		return uc.apply(ctx, tx, &before, stock, movement, domain.AuditActionStockIssue, now)
	})
	if err != nil {
		if postErr != nil {
			uc.metrics.PostingFailed(domain.EventStockOut, domain.ErrorClass(postErr))
			uc.logger.Error().Err(postErr).
				Str("material_id", input.MaterialID).
				Str("project_id", input.ProjectID).
				Msg("stock issue aborted: journal entry could not be posted")
		}
		return nil, err
	}

	uc.committed(ctx, result)

	if event != nil {
		result.Entry = uc.postLenient(ctx, event)
	}
	if result.Entry != nil {
		uc.metrics.JournalPosted(domain.EventStockOut)
	}

	return result, nil
}

// postLenient posts the entry of an already committed issue. A failure is
// recorded on the event and logged; the issue is not undone.
func (uc *StockUseCase) postLenient(ctx context.Context, event *domain.AccountingEvent) *domain.JournalEntry {
	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	var entry *domain.JournalEntry
	err := inTx(txCtx, uc.txManager, uc.retrier, func(ctx context.Context, tx Transaction) error {
		var err error
		entry, err = uc.poster.PostTx(ctx, tx, event)
		return err
	})
	if err == nil {
		return entry
	}

	uc.metrics.PostingFailed(domain.EventStockOut, domain.ErrorClass(err))
	uc.logger.Error().Err(err).
		Str("event_id", event.ID).
		Str("movement_id", event.SourceID).
		Msg("stock issue committed without journal entry")

	if recErr := uc.poster.RecordFailure(txCtx, event, err); recErr != nil {
		uc.logger.Error().Err(recErr).Str("event_id", event.ID).Msg("failed to record posting failure")
	}

	return nil
}

// Adjust applies a signed count correction. The average is unchanged.
func (uc *StockUseCase) Adjust(ctx context.Context, input AdjustInput) (*StockResult, error) {
	if err := domain.RequireID("material_id", input.MaterialID); err != nil {
		return nil, err
	}

	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	var result *StockResult
	err := inTx(txCtx, uc.txManager, uc.retrier, func(ctx context.Context, tx Transaction) error {
		var err error
		result, err = uc.adjustTx(ctx, tx, input.MaterialID, func(*domain.Stock) decimal.Decimal { return input.Quantity }, input.Reason, false)
		return err
	})
	if err != nil {
		return nil, err
	}

	uc.committed(ctx, result)

	return result, nil
}

// adjustTx locks the stock, computes the delta from the locked snapshot and
// applies it. With skipZero a zero delta writes nothing and the result has no
// movement.
func (uc *StockUseCase) adjustTx(ctx context.Context, tx Transaction, materialID string, delta func(*domain.Stock) decimal.Decimal, reason string, skipZero bool) (*StockResult, error) {
	stock, err := uc.stockRepo.GetForUpdate(ctx, tx, materialID)
	if err != nil {
		return nil, err
	}

	before := *stock
	now := time.Now().UTC()
	qty := delta(stock)

	if skipZero && qty.IsZero() {
		return &StockResult{Stock: stock}, nil
	}

	if err := stock.Adjust(qty, now); err != nil {
		return nil, err
	}

	movement := &domain.StockMovement{
		ID:         uc.idGen.Generate(),
		MaterialID: materialID,
		Type:       domain.MovementTypeAdjust,
		Quantity:   qty,
		Reason:     reason,
		CreatedAt:  now,
	}

	if err := uc.apply(ctx, tx, &before, stock, movement, domain.AuditActionStockAdjust, now); err != nil {
		return nil, err
	}

	return &StockResult{Stock: stock, Movement: movement}, nil
}

// BulkAdjustItem is one counted material of a stocktake.
type BulkAdjustItem struct {
	MaterialID string
	ActualQty  decimal.Decimal
}

// BulkAdjustInput represents a stocktake.
type BulkAdjustInput struct {
	Items  []BulkAdjustItem
	Reason string
}

// BulkAdjustOutcome reports what happened to one input item.
type BulkAdjustOutcome struct {
	MaterialID string
	Stock      *domain.Stock
	Movement   *domain.StockMovement
	Err        error
}

// BulkAdjustResult partitions the input items. Outcomes keep input order.
type BulkAdjustResult struct {
	Applied []BulkAdjustOutcome
	Skipped []BulkAdjustOutcome
	Failed  []BulkAdjustOutcome
}

// BulkAdjust sets each material to its counted quantity. Every material is
// adjusted in its own transaction, so one failure does not undo the others.
// Materials whose count matches the system quantity are skipped.
func (uc *StockUseCase) BulkAdjust(ctx context.Context, input BulkAdjustInput) (*BulkAdjustResult, error) {
	if len(input.Items) == 0 {
		return nil, domain.NewValidationError("items", "is required")
	}
	if len(input.Items) > MaxBulkAdjustItems {
		return nil, domain.NewValidationError("items", fmt.Sprintf("at most %d items per batch", MaxBulkAdjustItems))
	}

	seen := make(map[string]bool, len(input.Items))
	for i, item := range input.Items {
		field := fmt.Sprintf("items[%d]", i)
		if err := domain.RequireID(field+".material_id", item.MaterialID); err != nil {
			return nil, err
		}
		if item.ActualQty.IsNegative() {
			return nil, domain.NewValidationError(field+".actual_qty", "must not be negative")
		}
		if seen[item.MaterialID] {
			return nil, domain.NewValidationError(field+".material_id", "duplicate material "+item.MaterialID)
		}
		seen[item.MaterialID] = true
	}

	reason := input.Reason
	if reason == "" {
		reason = "stocktake"
	}

	outcomes := make([]BulkAdjustOutcome, len(input.Items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uc.bulkConcurrent)

	for i, item := range input.Items {
		g.Go(func() error {
			outcomes[i] = uc.adjustToCount(gctx, item, reason)
			return nil
		})
	}
	_ = g.Wait()

	result := &BulkAdjustResult{}
	for _, o := range outcomes {
		switch {
		case o.Err != nil:
			result.Failed = append(result.Failed, o)
		case o.Movement == nil:
			result.Skipped = append(result.Skipped, o)
		default:
			result.Applied = append(result.Applied, o)
		}
	}

	uc.logger.Info().
		Int("applied", len(result.Applied)).
		Int("skipped", len(result.Skipped)).
		Int("failed", len(result.Failed)).
		Msg("stocktake applied")

	return result, nil
}

func (uc *StockUseCase) adjustToCount(ctx context.Context, item BulkAdjustItem, reason string) BulkAdjustOutcome {
	outcome := BulkAdjustOutcome{MaterialID: item.MaterialID}

	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	var result *StockResult
	err := inTx(txCtx, uc.txManager, uc.retrier, func(ctx context.Context, tx Transaction) error {
		var err error
		result, err = uc.adjustTx(ctx, tx, item.MaterialID, func(s *domain.Stock) decimal.Decimal {
			return item.ActualQty.Sub(s.Quantity)
		}, reason, true)
		return err
	})
	if err != nil {
		outcome.Err = err
		uc.logger.Warn().Err(err).Str("material_id", item.MaterialID).Msg("stocktake adjustment failed")
		return outcome
	}

	outcome.Stock = result.Stock
	outcome.Movement = result.Movement
	if result.Movement != nil {
		uc.committed(ctx, result)
	}

	return outcome
}

// apply persists the stock and its movement with the outbox and audit rows.
func (uc *StockUseCase) apply(ctx context.Context, tx Transaction, before, stock *domain.Stock, movement *domain.StockMovement, action domain.AuditAction, now time.Time) error {
	if err := uc.stockRepo.Save(ctx, tx, stock); err != nil {
		return err
	}

	if err := uc.movementRepo.Create(ctx, tx, movement); err != nil {
		return err
	}

	if err := uc.rec.outbox(ctx, tx, domain.AggregateTypeStock, stock.MaterialID, domain.EventTypeStockMoved, domain.StockMovedEvent{
		MovementID:   movement.ID,
		MaterialID:   stock.MaterialID,
		Type:         string(movement.Type),
		Quantity:     movement.Quantity.String(),
		OnHand:       stock.Quantity.String(),
		AvgUnitPrice: stock.AvgUnitPrice.String(),
	}, now); err != nil {
		return err
	}

	return uc.rec.audit(ctx, tx, action, domain.AggregateTypeStock, stock.MaterialID, before, stock, now)
}

// committed runs the post-commit side effects of a movement.
func (uc *StockUseCase) committed(ctx context.Context, result *StockResult) {
	uc.metrics.StockMoved(result.Movement.Type)
	uc.remember(ctx, result.Stock)

	uc.logger.Debug().
		Str("material_id", result.Stock.MaterialID).
		Str("type", string(result.Movement.Type)).
		Str("quantity", result.Movement.Quantity.String()).
		Str("on_hand", result.Stock.Quantity.String()).
		Msg("stock moved")
}

func issueEvent(id string, movement *domain.StockMovement, value decimal.Decimal, now time.Time) *domain.AccountingEvent {
	return &domain.AccountingEvent{
		ID:         id,
		SourceType: domain.SourceTypeStockMovement,
		SourceID:   movement.ID,
		EventType:  domain.EventStockOut,
		OccurredAt: now,
		Payload: &domain.StockOutPayload{
			MaterialID: movement.MaterialID,
			ProjectID:  movement.ProjectID,
			Quantity:   movement.Quantity,
			UnitCost:   *movement.UnitPrice,
			Amount:     value,
		},
	}
}

// GetStock returns the on-hand position of a material, served from cache
// when possible. Snapshots are versioned, so a read that raced a movement
// cannot replace the snapshot the movement wrote.
func (uc *StockUseCase) GetStock(ctx context.Context, materialID string) (*domain.Stock, error) {
	key := stockCacheKey(materialID)

	if uc.cache != nil {
		if data, err := uc.cache.Get(ctx, key); err == nil && data != nil {
			var stock domain.Stock
			if err := json.Unmarshal(data, &stock); err == nil {
				return &stock, nil
			}
		}
	}

	stock, err := uc.stockRepo.GetByMaterialID(ctx, materialID)
	if err != nil {
		return nil, err
	}

	uc.remember(ctx, stock)

	return stock, nil
}

// remember caches stock unless a newer version is already cached. When the
// write fails the entry is dropped so readers fall back to the database.
func (uc *StockUseCase) remember(ctx context.Context, stock *domain.Stock) {
	if uc.cache == nil {
		return
	}

	key := stockCacheKey(stock.MaterialID)
	data, err := json.Marshal(stock)
	if err == nil {
		_, err = uc.cache.SetIfNewer(ctx, key, stock.Version, data, uc.cacheTTL)
	}
	if err == nil {
		return
	}

	uc.logger.Warn().Err(err).Str("material_id", stock.MaterialID).Msg("stock cache write failed")
	if err := uc.cache.Delete(ctx, key); err != nil {
		uc.logger.Warn().Err(err).Str("material_id", stock.MaterialID).Msg("stock cache invalidation failed")
	}
}

func stockCacheKey(materialID string) string {
	return "stock:" + materialID
}

// ListStocks returns a page of stock positions.
func (uc *StockUseCase) ListStocks(ctx context.Context, limit, offset int) ([]*domain.Stock, error) {
	limit, offset, err := domain.ValidatePagination(limit, offset)
	if err != nil {
		return nil, err
	}
	return uc.stockRepo.List(ctx, limit, offset)
}

// ListMovements returns a page of movements of one material.
func (uc *StockUseCase) ListMovements(ctx context.Context, materialID string, limit, offset int) ([]*domain.StockMovement, error) {
	limit, offset, err := domain.ValidatePagination(limit, offset)
	if err != nil {
		return nil, err
	}
	return uc.movementRepo.ListByMaterial(ctx, materialID, limit, offset)
}

// ListMovementsByProject returns a page of movements issued to a project.
func (uc *StockUseCase) ListMovementsByProject(ctx context.Context, projectID string, limit, offset int) ([]*domain.StockMovement, error) {
	limit, offset, err := domain.ValidatePagination(limit, offset)
	if err != nil {
		return nil, err
	}
	return uc.movementRepo.ListByProject(ctx, projectID, limit, offset)
}
