// Package app wires repositories and use cases for the server and the CLI.
package app

import (
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/iho/erpledger/internal/adapter/repository/memory"
	postgresRepo "github.com/iho/erpledger/internal/adapter/repository/postgres"
	"github.com/iho/erpledger/internal/domain"
	"github.com/iho/erpledger/internal/infrastructure/idgen"
	"github.com/iho/erpledger/internal/usecase"
)

// Repositories is one storage backend.
type Repositories struct {
	TxManager usecase.TransactionManager
	Journals  usecase.JournalRepository
	Sequences usecase.SequenceRepository
	Events    usecase.EventRepository
	Stocks    usecase.StockRepository
	Movements usecase.MovementRepository
	OpenItems usecase.OpenItemRepository
	Ledger    usecase.LedgerRepository
	Outbox    usecase.OutboxRepository
	Audit     usecase.AuditRepository
	IDGen     usecase.IDGenerator
	Retrier   usecase.Retrier
}

// MemoryRepositories returns repositories backed by a fresh in-process store.
func MemoryRepositories() Repositories {
	store := memory.New()

	return Repositories{
		TxManager: store,
		Journals:  memory.NewJournalRepository(store),
		Sequences: memory.NewSequenceRepository(store),
		Events:    memory.NewEventRepository(store),
		Stocks:    memory.NewStockRepository(store),
		Movements: memory.NewMovementRepository(store),
		OpenItems: memory.NewOpenItemRepository(store),
		Ledger:    memory.NewLedgerRepository(store),
		Outbox:    memory.NewOutboxRepository(store),
		Audit:     memory.NewAuditRepository(store),
		IDGen:     idgen.NewULID(),
	}
}

// PostgresRepositories returns repositories backed by pool. retries counts
// transactions re-run after a lock conflict and may be nil.
func PostgresRepositories(pool *pgxpool.Pool, retries *prometheus.CounterVec, logger zerolog.Logger) Repositories {
	return Repositories{
		TxManager: postgresRepo.NewTxManager(pool),
		Journals:  postgresRepo.NewJournalRepository(pool),
		Sequences: postgresRepo.NewSequenceRepository(),
		Events:    postgresRepo.NewEventRepository(pool),
		Stocks:    postgresRepo.NewStockRepository(pool),
		Movements: postgresRepo.NewMovementRepository(pool),
		OpenItems: postgresRepo.NewOpenItemRepository(pool),
		Ledger:    postgresRepo.NewLedgerRepository(pool),
		Outbox:    postgresRepo.NewOutboxRepository(pool),
		Audit:     postgresRepo.NewAuditRepository(pool),
		IDGen:     idgen.NewULID(),
		Retrier:   postgresRepo.NewRetrier(retries, logger),
	}
}

// Options tune the use cases. Registry, Metrics and Cache may be nil.
type Options struct {
	Registry       *domain.AccountRegistry
	Metrics        usecase.Metrics
	Cache          usecase.Cache
	Logger         zerolog.Logger
	PostingMode    usecase.StockPostingMode
	StockCacheTTL  time.Duration
	BulkConcurrent int
}

// Services are the use cases served over HTTP and the CLI.
type Services struct {
	Repos     Repositories
	Registry  *domain.AccountRegistry
	Posting   *usecase.PostingUseCase
	OpenItems *usecase.OpenItemUseCase
	Stock     *usecase.StockUseCase
	Ledger    *usecase.LedgerUseCase
	Recon     *usecase.ReconciliationUseCase
}

// NewServices builds the use cases on top of repos.
func NewServices(repos Repositories, opts Options) *Services {
	registry := opts.Registry
	if registry == nil {
		registry = domain.MustDefaultRegistry()
	}

	openItems := usecase.NewOpenItemUseCase(
		repos.TxManager, repos.OpenItems, repos.Outbox, repos.Audit, repos.IDGen,
		repos.Retrier, opts.Metrics, opts.Logger.With().Str("component", "openitems").Logger(),
	)

	posting := usecase.NewPostingUseCase(usecase.PostingDeps{
		TxManager:    repos.TxManager,
		JournalRepo:  repos.Journals,
		EventRepo:    repos.Events,
		SequenceRepo: repos.Sequences,
		OutboxRepo:   repos.Outbox,
		AuditRepo:    repos.Audit,
		OpenItems:    openItems,
		Registry:     registry,
		IDGen:        repos.IDGen,
		Retrier:      repos.Retrier,
		Metrics:      opts.Metrics,
		Logger:       opts.Logger.With().Str("component", "posting").Logger(),
	})

	stock := usecase.NewStockUseCase(usecase.StockDeps{
		TxManager:      repos.TxManager,
		StockRepo:      repos.Stocks,
		MovementRepo:   repos.Movements,
		OutboxRepo:     repos.Outbox,
		AuditRepo:      repos.Audit,
		Poster:         posting,
		Cache:          opts.Cache,
		IDGen:          repos.IDGen,
		Retrier:        repos.Retrier,
		Metrics:        opts.Metrics,
		Logger:         opts.Logger.With().Str("component", "stock").Logger(),
		PostingMode:    opts.PostingMode,
		CacheTTL:       opts.StockCacheTTL,
		BulkConcurrent: opts.BulkConcurrent,
	})

	return &Services{
		Repos:     repos,
		Registry:  registry,
		Posting:   posting,
		OpenItems: openItems,
		Stock:     stock,
		Ledger:    usecase.NewLedgerUseCase(repos.Ledger, registry),
		Recon:     usecase.NewReconciliationUseCase(repos.Ledger, repos.OpenItems, registry),
	}
}
