package usecase_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/iho/erpledger/internal/adapter/repository/memory"
	"github.com/iho/erpledger/internal/domain"
	"github.com/iho/erpledger/internal/usecase"
)

type counterIDs struct {
	n atomic.Int64
}

func (c *counterIDs) Generate() string {
	return fmt.Sprintf("id-%06d", c.n.Add(1))
}

type mapCache struct {
	mu       sync.Mutex
	data     map[string][]byte
	versions map[string]int64
	hits     int
}

func newMapCache() *mapCache {
	return &mapCache{data: make(map[string][]byte), versions: make(map[string]int64)}
}

func (c *mapCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.data[key]
	if !ok {
		return nil, nil
	}
	c.hits++
	return v, nil
}

func (c *mapCache) SetIfNewer(_ context.Context, key string, version int64, value []byte, _ time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.versions[key] >= version {
		return false, nil
	}
	c.data[key] = value
	c.versions[key] = version
	return true, nil
}

func (c *mapCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	delete(c.versions, key)
	return nil
}

type harness struct {
	store     *memory.Store
	journals  *memory.JournalRepository
	events    *memory.EventRepository
	items     *memory.OpenItemRepository
	movements *memory.MovementRepository
	outbox    *memory.OutboxRepository
	audit     *memory.AuditRepository
	cache     *mapCache

	posting   *usecase.PostingUseCase
	openItems *usecase.OpenItemUseCase
	stock     *usecase.StockUseCase
	ledger    *usecase.LedgerUseCase
	recon     *usecase.ReconciliationUseCase
}

type harnessOption func(*harnessConfig)

type harnessConfig struct {
	registry *domain.AccountRegistry
	mode     usecase.StockPostingMode
}

func withRegistry(r *domain.AccountRegistry) harnessOption {
	return func(c *harnessConfig) { c.registry = r }
}

func withPostingMode(m usecase.StockPostingMode) harnessOption {
	return func(c *harnessConfig) { c.mode = m }
}

// registryWithout returns the default chart minus the given account codes.
func registryWithout(t *testing.T, codes ...string) *domain.AccountRegistry {
	t.Helper()

	skip := make(map[string]bool, len(codes))
	for _, c := range codes {
		skip[c] = true
	}

	var accounts []domain.Account
	for _, a := range domain.DefaultChartOfAccounts() {
		if !skip[a.Code] {
			accounts = append(accounts, a)
		}
	}

	r, err := domain.NewAccountRegistry(accounts)
	require.NoError(t, err)
	return r
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	cfg := harnessConfig{registry: domain.MustDefaultRegistry(), mode: usecase.StockPostingStrict}
	for _, opt := range opts {
		opt(&cfg)
	}

	store := memory.New()
	ids := &counterIDs{}
	logger := zerolog.Nop()

	h := &harness{
		store:     store,
		journals:  memory.NewJournalRepository(store),
		events:    memory.NewEventRepository(store),
		items:     memory.NewOpenItemRepository(store),
		movements: memory.NewMovementRepository(store),
		outbox:    memory.NewOutboxRepository(store),
		audit:     memory.NewAuditRepository(store),
		cache:     newMapCache(),
	}

	h.openItems = usecase.NewOpenItemUseCase(store, h.items, h.outbox, h.audit, ids, nil, nil, logger)

	h.posting = usecase.NewPostingUseCase(usecase.PostingDeps{
		TxManager:    store,
		JournalRepo:  h.journals,
		EventRepo:    h.events,
		SequenceRepo: memory.NewSequenceRepository(store),
		OutboxRepo:   h.outbox,
		AuditRepo:    h.audit,
		OpenItems:    h.openItems,
		Registry:     cfg.registry,
		IDGen:        ids,
		Logger:       logger,
	})

	h.stock = usecase.NewStockUseCase(usecase.StockDeps{
		TxManager:    store,
		StockRepo:    memory.NewStockRepository(store),
		MovementRepo: h.movements,
		OutboxRepo:   h.outbox,
		AuditRepo:    h.audit,
		Poster:       h.posting,
		Cache:        h.cache,
		IDGen:        ids,
		Logger:       logger,
		PostingMode:  cfg.mode,
	})

	ledgerRepo := memory.NewLedgerRepository(store)
	h.ledger = usecase.NewLedgerUseCase(ledgerRepo, cfg.registry)
	h.recon = usecase.NewReconciliationUseCase(ledgerRepo, h.items, cfg.registry)

	return h
}

// requireBalancedLedger checks every posted entry and the ledger totals.
func (h *harness) requireBalancedLedger(t *testing.T) {
	t.Helper()

	entries, err := h.journals.List(context.Background(), 0, 0)
	require.NoError(t, err)
	for _, e := range entries {
		require.Truef(t, e.TotalDebit().Equal(e.TotalCredit()), "entry %s unbalanced", e.JournalNo)
	}

	ok, err := h.ledger.CheckConsistency(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func orderConfirmed(id, orderID, customerID, amount string) *domain.AccountingEvent {
	return &domain.AccountingEvent{
		ID:         id,
		SourceType: domain.SourceTypeOrder,
		SourceID:   orderID,
		SourceNo:   "SO-" + orderID,
		EventType:  domain.EventOrderConfirmed,
		Payload:    &domain.OrderConfirmedPayload{CustomerID: customerID, Amount: dec(amount)},
	}
}

func paymentConfirmed(id, orderID, customerID, amount string) *domain.AccountingEvent {
	return &domain.AccountingEvent{
		ID:         id,
		SourceType: domain.SourceTypePayment,
		SourceID:   "pay-" + id,
		EventType:  domain.EventPaymentConfirmed,
		Payload:    &domain.PaymentConfirmedPayload{OrderID: orderID, CustomerID: customerID, Amount: dec(amount)},
	}
}

func poOrdered(id, poID, supplierID, amount string) *domain.AccountingEvent {
	return &domain.AccountingEvent{
		ID:         id,
		SourceType: domain.SourceTypePurchaseOrder,
		SourceID:   poID,
		EventType:  domain.EventPOOrdered,
		Payload:    &domain.POOrderedPayload{SupplierID: supplierID, Amount: dec(amount)},
	}
}

func poPaymentConfirmed(id, poID, supplierID, amount string) *domain.AccountingEvent {
	return &domain.AccountingEvent{
		ID:         id,
		SourceType: domain.SourceTypePayment,
		SourceID:   "pay-" + id,
		EventType:  domain.EventPOPaymentConfirmed,
		Payload:    &domain.POPaymentConfirmedPayload{PurchaseOrderID: poID, SupplierID: supplierID, Amount: dec(amount)},
	}
}
