package usecase

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/erpledger/internal/domain"
)

// JournalRepository defines data access for journal entries and their lines.
type JournalRepository interface {
	Create(ctx context.Context, tx Transaction, entry *domain.JournalEntry) error
	GetByID(ctx context.Context, id string) (*domain.JournalEntry, error)
	GetByIDForUpdate(ctx context.Context, tx Transaction, id string) (*domain.JournalEntry, error)
	UpdateStatus(ctx context.Context, tx Transaction, id string, status domain.JournalStatus, reversedBy string, updatedAt time.Time) error
	List(ctx context.Context, limit, offset int) ([]*domain.JournalEntry, error)
	ListBySource(ctx context.Context, sourceType domain.SourceType, sourceID string) ([]*domain.JournalEntry, error)
}

// SequenceRepository allocates gap-free counters. Next locks the scope's
// counter until tx ends, so numbers are only consumed by committed work.
type SequenceRepository interface {
	Next(ctx context.Context, tx Transaction, scope string) (int64, error)
}

// StockRepository defines data access for on-hand stock.
type StockRepository interface {
	GetByMaterialID(ctx context.Context, materialID string) (*domain.Stock, error)
	// GetForUpdate locks the material's stock row, creating an empty one if
	// the material has never been received.
	GetForUpdate(ctx context.Context, tx Transaction, materialID string) (*domain.Stock, error)
	Save(ctx context.Context, tx Transaction, stock *domain.Stock) error
	List(ctx context.Context, limit, offset int) ([]*domain.Stock, error)
}

// MovementRepository defines data access for the append-only movement log.
type MovementRepository interface {
	Create(ctx context.Context, tx Transaction, movement *domain.StockMovement) error
	ListByMaterial(ctx context.Context, materialID string, limit, offset int) ([]*domain.StockMovement, error)
	ListByProject(ctx context.Context, projectID string, limit, offset int) ([]*domain.StockMovement, error)
}

// OpenItemRepository defines data access for receivables and payables.
type OpenItemRepository interface {
	Create(ctx context.Context, tx Transaction, item *domain.OpenItem) error
	GetBySource(ctx context.Context, kind domain.OpenItemKind, sourceID string) (*domain.OpenItem, error)
	GetBySourceForUpdate(ctx context.Context, tx Transaction, kind domain.OpenItemKind, sourceID string) (*domain.OpenItem, error)
	UpdateBalance(ctx context.Context, tx Transaction, item *domain.OpenItem) error
	ListByParty(ctx context.Context, kind domain.OpenItemKind, partyID string) ([]*domain.OpenItem, error)
	List(ctx context.Context, kind domain.OpenItemKind, limit, offset int) ([]*domain.OpenItem, error)
	// SumOutstanding totals the balance of non-closed items. An empty
	// partyID sums across all parties.
	SumOutstanding(ctx context.Context, kind domain.OpenItemKind, partyID string) (decimal.Decimal, error)
}

// EventRepository defines data access for accounting events.
type EventRepository interface {
	// Save inserts the event or replaces its mutable fields.
	Save(ctx context.Context, tx Transaction, event *domain.AccountingEvent) error
	GetByID(ctx context.Context, id string) (*domain.AccountingEvent, error)
	GetByIDForUpdate(ctx context.Context, tx Transaction, id string) (*domain.AccountingEvent, error)
	List(ctx context.Context, status domain.EventStatus, limit, offset int) ([]*domain.AccountingEvent, error)
}

// LedgerRepository defines data access for ledger-wide operations.
type LedgerRepository interface {
	CheckConsistency(ctx context.Context) (totalDebits, totalCredits decimal.Decimal, err error)
	SumByAccount(ctx context.Context, accountCode string) (debits, credits decimal.Decimal, err error)
}

// OutboxRepository defines data access for outbox events.
type OutboxRepository interface {
	Create(ctx context.Context, tx Transaction, event *domain.OutboxEvent) error
	GetUnpublished(ctx context.Context, limit int) ([]*domain.OutboxEvent, error)
	MarkPublished(ctx context.Context, id string, publishedAt time.Time) error
	GetByAggregate(ctx context.Context, aggregateType, aggregateID string, limit, offset int) ([]*domain.OutboxEvent, error)
	DeletePublished(ctx context.Context, before time.Time) error
}

// AuditRepository defines data access for audit logs.
type AuditRepository interface {
	CreateTx(ctx context.Context, tx Transaction, log *domain.AuditLog) error
	List(ctx context.Context, filter domain.AuditFilter) ([]*domain.AuditLog, error)
	GetByResourceID(ctx context.Context, resourceType, resourceID string) ([]*domain.AuditLog, error)
}

// Transaction represents a database transaction.
type Transaction interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// TransactionManager handles transaction lifecycle.
type TransactionManager interface {
	Begin(ctx context.Context) (Transaction, error)
}

// Retrier re-runs fn when it fails with a transient storage conflict.
type Retrier interface {
	Retry(ctx context.Context, fn func() error) error
}

// IDGenerator generates unique IDs.
type IDGenerator interface {
	Generate() string
}

// Cache defines caching operations.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	// SetIfNewer stores value only when version is above the cached one and
	// reports whether it did.
	SetIfNewer(ctx context.Context, key string, version int64, value []byte, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
}

// StoredResponse is what an Idempotency-Key resolves to. Status is zero
// while the request that claimed the key is still running.
type StoredResponse struct {
	Fingerprint string          `json:"fingerprint"`
	Status      int             `json:"status,omitempty"`
	Body        json.RawMessage `json:"body,omitempty"`
}

// Pending reports whether the owning request has not finished.
func (r *StoredResponse) Pending() bool {
	return r.Status == 0
}

// IdempotencyStore records the outcome of requests made with an
// Idempotency-Key.
type IdempotencyStore interface {
	// Claim reserves key for a request whose body hashes to fingerprint.
	// It returns nil when the key was free, or the record already held.
	Claim(ctx context.Context, key, fingerprint string, ttl time.Duration) (*StoredResponse, error)
	// Complete replaces the claim with the final response.
	Complete(ctx context.Context, key string, resp *StoredResponse, ttl time.Duration) error
	// Release drops a claim so the request can be retried.
	Release(ctx context.Context, key string) error
}

// Metrics receives business counters from the use cases.
type Metrics interface {
	JournalPosted(eventType domain.EventType)
	JournalReversed()
	PostingFailed(eventType domain.EventType, class string)
	StockMoved(movementType domain.MovementType)
	OpenItemSettled(kind domain.OpenItemKind)
}

type nopMetrics struct{}

func (nopMetrics) JournalPosted(domain.EventType)         {}
func (nopMetrics) JournalReversed()                       {}
func (nopMetrics) PostingFailed(domain.EventType, string) {}
func (nopMetrics) StockMoved(domain.MovementType)         {}
func (nopMetrics) OpenItemSettled(domain.OpenItemKind)    {}

// NopMetrics discards all observations.
var NopMetrics Metrics = nopMetrics{}

type noRetry struct{}

func (noRetry) Retry(_ context.Context, fn func() error) error { return fn() }
