package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/erpledger/internal/domain"
)

// ReconciliationUseCase compares the AR/AP control accounts of the general
// ledger with the open-item sub-ledger.
type ReconciliationUseCase struct {
	ledgerRepo LedgerRepository
	itemRepo   OpenItemRepository
	registry   *domain.AccountRegistry
}

// NewReconciliationUseCase creates a new reconciliation use case
func NewReconciliationUseCase(
	ledgerRepo LedgerRepository,
	itemRepo OpenItemRepository,
	registry *domain.AccountRegistry,
) *ReconciliationUseCase {
	if registry == nil {
		registry = domain.MustDefaultRegistry()
	}

	return &ReconciliationUseCase{
		ledgerRepo: ledgerRepo,
		itemRepo:   itemRepo,
		registry:   registry,
	}
}

// ReconciliationResult compares one control account with its sub-ledger.
type ReconciliationResult struct {
	Kind          domain.OpenItemKind
	AccountCode   string
	LedgerBalance decimal.Decimal
	OpenItems     decimal.Decimal
	Difference    decimal.Decimal
	IsReconciled  bool
}

// ReconciliationReport represents a full reconciliation report
type ReconciliationReport struct {
	Results          []*ReconciliationResult
	LedgerConsistent bool
	CheckedAt        time.Time
}

// Reconciled reports whether every control account matches.
func (r *ReconciliationReport) Reconciled() bool {
	for _, res := range r.Results {
		if !res.IsReconciled {
			return false
		}
	}
	return r.LedgerConsistent
}

// ReconcileKind compares the control account of kind with the sum of its
// outstanding open items. The ledger side is taken in the account's normal
// balance direction.
func (uc *ReconciliationUseCase) ReconcileKind(ctx context.Context, kind domain.OpenItemKind) (*ReconciliationResult, error) {
	if !kind.IsValid() {
		return nil, domain.NewValidationError("kind", "must be RECEIVABLE or PAYABLE")
	}

	account, err := uc.registry.Resolve(kind.ControlAccount())
	if err != nil {
		return nil, err
	}

	ledger, err := accountBalance(ctx, uc.ledgerRepo, account)
	if err != nil {
		return nil, err
	}
	balance := ledger.Balance

	outstanding, err := uc.itemRepo.SumOutstanding(ctx, kind, "")
	if err != nil {
		return nil, err
	}

	diff := balance.Sub(outstanding)

	return &ReconciliationResult{
		Kind:          kind,
		AccountCode:   account.Code,
		LedgerBalance: balance,
		OpenItems:     outstanding,
		Difference:    diff,
		IsReconciled:  diff.IsZero(),
	}, nil
}

// CheckLedgerConsistency verifies double-entry bookkeeping consistency
func (uc *ReconciliationUseCase) CheckLedgerConsistency(ctx context.Context) error {
	totalDebits, totalCredits, err := uc.ledgerRepo.CheckConsistency(ctx)
	if err != nil {
		return err
	}

	if !totalDebits.Equal(totalCredits) {
		return fmt.Errorf(
			"%w: debits=%s credits=%s difference=%s",
			ErrInconsistentLedger,
			totalDebits.String(),
			totalCredits.String(),
			totalDebits.Sub(totalCredits).String(),
		)
	}

	return nil
}

// Reconcile generates a report over receivables, payables and the ledger
// balance check.
func (uc *ReconciliationUseCase) Reconcile(ctx context.Context) (*ReconciliationReport, error) {
	report := &ReconciliationReport{
		Results:   make([]*ReconciliationResult, 0, 2),
		CheckedAt: time.Now().UTC(),
	}

	for _, kind := range []domain.OpenItemKind{domain.OpenItemReceivable, domain.OpenItemPayable} {
		result, err := uc.ReconcileKind(ctx, kind)
		if err != nil {
			return nil, fmt.Errorf("failed to reconcile %s: %w", kind, err)
		}
		report.Results = append(report.Results, result)
	}

	report.LedgerConsistent = uc.CheckLedgerConsistency(ctx) == nil

	return report, nil
}
