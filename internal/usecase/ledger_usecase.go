package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/iho/erpledger/internal/domain"
)

// ErrInconsistentLedger is returned when posted debits and credits differ.
var ErrInconsistentLedger = errors.New("ledger is inconsistent: debits do not equal credits")

// AccountBalance totals the posted lines of one account. Balance is signed
// in the account's normal direction: debits minus credits for assets and
// expenses, credits minus debits otherwise.
type AccountBalance struct {
	Account domain.Account
	Debits  decimal.Decimal
	Credits decimal.Decimal
	Balance decimal.Decimal
}

// LedgerUseCase answers questions about the general ledger as a whole.
type LedgerUseCase struct {
	ledgerRepo LedgerRepository
	registry   *domain.AccountRegistry
}

// NewLedgerUseCase creates a new LedgerUseCase. A nil registry means the
// default chart of accounts.
func NewLedgerUseCase(ledgerRepo LedgerRepository, registry *domain.AccountRegistry) *LedgerUseCase {
	if registry == nil {
		registry = domain.MustDefaultRegistry()
	}
	return &LedgerUseCase{ledgerRepo: ledgerRepo, registry: registry}
}

// CheckConsistency reports whether every debit ever posted is matched by a
// credit. A mismatch returns false with ErrInconsistentLedger carrying both
// totals.
func (uc *LedgerUseCase) CheckConsistency(ctx context.Context) (bool, error) {
	debits, credits, err := uc.ledgerRepo.CheckConsistency(ctx)
	if err != nil {
		return false, err
	}

	if debits.Equal(credits) {
		return true, nil
	}
	return false, fmt.Errorf("%w: debits=%s credits=%s", ErrInconsistentLedger, debits, credits)
}

// Balance returns the running balance of the account with the given code.
func (uc *LedgerUseCase) Balance(ctx context.Context, code string) (*AccountBalance, error) {
	account, err := uc.registry.Resolve(code)
	if err != nil {
		return nil, err
	}
	return accountBalance(ctx, uc.ledgerRepo, account)
}

func accountBalance(ctx context.Context, repo LedgerRepository, account *domain.Account) (*AccountBalance, error) {
	debits, credits, err := repo.SumByAccount(ctx, account.Code)
	if err != nil {
		return nil, fmt.Errorf("sum account %s: %w", account.Code, err)
	}

	balance := debits.Sub(credits)
	if !account.Type.DebitNormal() {
		balance = balance.Neg()
	}

	return &AccountBalance{
		Account: *account,
		Debits:  debits,
		Credits: credits,
		Balance: balance,
	}, nil
}
