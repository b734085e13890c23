package usecase

import "time"

const (
	// DefaultTransactionTimeout is the maximum duration for a database transaction
	// This prevents long-running transactions from blocking tables
	DefaultTransactionTimeout = 10 * time.Second

	// IdempotencyKeyTTL is how long idempotency keys are cached
	IdempotencyKeyTTL = 24 * time.Hour

	// DefaultStockCacheTTL bounds how long a stock snapshot may be served from cache.
	DefaultStockCacheTTL = 30 * time.Second

	// DefaultBulkAdjustConcurrency caps parallel per-material adjustments.
	DefaultBulkAdjustConcurrency = 8

	// MaxBulkAdjustItems caps the size of one stocktake batch.
	MaxBulkAdjustItems = 1000
)

// StockPostingMode decides what happens when a stock issue cannot be posted.
type StockPostingMode string

const (
	// StockPostingStrict aborts the issue when its journal entry fails.
	StockPostingStrict StockPostingMode = "strict"
	// StockPostingLenient commits the issue and records the failed posting
	// as an ERROR accounting event.
	StockPostingLenient StockPostingMode = "lenient"
)

// IsValid reports whether m is a known mode.
func (m StockPostingMode) IsValid() bool {
	return m == StockPostingStrict || m == StockPostingLenient
}
