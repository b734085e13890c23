package usecase_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/iho/erpledger/internal/domain"
	"github.com/iho/erpledger/internal/usecase"
	"github.com/iho/erpledger/internal/usecase/mocks"
)

func TestReconcileKind(t *testing.T) {
	tests := []struct {
		name           string
		kind           domain.OpenItemKind
		account        string
		debits         string
		credits        string
		outstanding    string
		wantBalance    string
		wantDifference string
		wantReconciled bool
	}{
		{
			name:           "receivable matches",
			kind:           domain.OpenItemReceivable,
			account:        domain.AccountAccountsReceivable,
			debits:         "85000000",
			credits:        "25500000",
			outstanding:    "59500000",
			wantBalance:    "59500000",
			wantDifference: "0",
			wantReconciled: true,
		},
		{
			name:           "payable is credit normal",
			kind:           domain.OpenItemPayable,
			account:        domain.AccountAccountsPayable,
			debits:         "2000",
			credits:        "5000",
			outstanding:    "3000",
			wantBalance:    "3000",
			wantDifference: "0",
			wantReconciled: true,
		},
		{
			name:           "receivable drift after reversal",
			kind:           domain.OpenItemReceivable,
			account:        domain.AccountAccountsReceivable,
			debits:         "1000",
			credits:        "1000",
			outstanding:    "1000",
			wantBalance:    "0",
			wantDifference: "-1000",
			wantReconciled: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			ledgerRepo := mocks.NewMockLedgerRepository(ctrl)
			itemRepo := mocks.NewMockOpenItemRepository(ctrl)

			ledgerRepo.EXPECT().SumByAccount(gomock.Any(), tt.account).
				Return(dec(tt.debits), dec(tt.credits), nil)
			itemRepo.EXPECT().SumOutstanding(gomock.Any(), tt.kind, "").
				Return(dec(tt.outstanding), nil)

			uc := usecase.NewReconciliationUseCase(ledgerRepo, itemRepo, nil)
			result, err := uc.ReconcileKind(context.Background(), tt.kind)
			require.NoError(t, err)

			assert.Equal(t, tt.account, result.AccountCode)
			assert.Truef(t, result.LedgerBalance.Equal(dec(tt.wantBalance)), "balance %s", result.LedgerBalance)
			assert.Truef(t, result.Difference.Equal(dec(tt.wantDifference)), "difference %s", result.Difference)
			assert.Equal(t, tt.wantReconciled, result.IsReconciled)
		})
	}
}

func TestReconcileKind_Errors(t *testing.T) {
	t.Run("unknown kind", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		uc := usecase.NewReconciliationUseCase(mocks.NewMockLedgerRepository(ctrl), mocks.NewMockOpenItemRepository(ctrl), nil)

		_, err := uc.ReconcileKind(context.Background(), "LOAN")
		require.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("ledger error", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		ledgerRepo := mocks.NewMockLedgerRepository(ctrl)
		ledgerRepo.EXPECT().SumByAccount(gomock.Any(), gomock.Any()).
			Return(decimal.Zero, decimal.Zero, errors.New("db down"))

		uc := usecase.NewReconciliationUseCase(ledgerRepo, mocks.NewMockOpenItemRepository(ctrl), nil)

		_, err := uc.ReconcileKind(context.Background(), domain.OpenItemReceivable)
		require.EqualError(t, err, "sum account 1100: db down")
	})

	t.Run("missing control account", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		uc := usecase.NewReconciliationUseCase(
			mocks.NewMockLedgerRepository(ctrl),
			mocks.NewMockOpenItemRepository(ctrl),
			registryWithout(t, domain.AccountAccountsPayable),
		)

		_, err := uc.ReconcileKind(context.Background(), domain.OpenItemPayable)
		require.ErrorIs(t, err, domain.ErrAccountNotFound)
	})
}

func TestReconcile_Report(t *testing.T) {
	ctrl := gomock.NewController(t)
	ledgerRepo := mocks.NewMockLedgerRepository(ctrl)
	itemRepo := mocks.NewMockOpenItemRepository(ctrl)

	ledgerRepo.EXPECT().SumByAccount(gomock.Any(), domain.AccountAccountsReceivable).
		Return(dec("500"), dec("100"), nil)
	ledgerRepo.EXPECT().SumByAccount(gomock.Any(), domain.AccountAccountsPayable).
		Return(dec("0"), dec("70"), nil)
	itemRepo.EXPECT().SumOutstanding(gomock.Any(), domain.OpenItemReceivable, "").Return(dec("400"), nil)
	itemRepo.EXPECT().SumOutstanding(gomock.Any(), domain.OpenItemPayable, "").Return(dec("60"), nil)
	ledgerRepo.EXPECT().CheckConsistency(gomock.Any()).Return(dec("570"), dec("570"), nil)

	uc := usecase.NewReconciliationUseCase(ledgerRepo, itemRepo, nil)
	report, err := uc.Reconcile(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Results, 2)
	assert.True(t, report.Results[0].IsReconciled)
	assert.False(t, report.Results[1].IsReconciled)
	assert.True(t, report.Results[1].Difference.Equal(dec("10")))
	assert.True(t, report.LedgerConsistent)
	assert.False(t, report.Reconciled())
	assert.False(t, report.CheckedAt.IsZero())
}

func TestCheckLedgerConsistency(t *testing.T) {
	ctrl := gomock.NewController(t)
	ledgerRepo := mocks.NewMockLedgerRepository(ctrl)
	ledgerRepo.EXPECT().CheckConsistency(gomock.Any()).Return(dec("100"), dec("99.99"), nil)

	uc := usecase.NewReconciliationUseCase(ledgerRepo, mocks.NewMockOpenItemRepository(ctrl), nil)

	err := uc.CheckLedgerConsistency(context.Background())
	require.ErrorIs(t, err, usecase.ErrInconsistentLedger)
	assert.Contains(t, err.Error(), "difference=0.01")
}
