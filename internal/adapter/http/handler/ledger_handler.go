package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/iho/erpledger/internal/adapter/http/dto"
	"github.com/iho/erpledger/internal/usecase"
)

type ledgerService interface {
	CheckConsistency(ctx context.Context) (bool, error)
	Balance(ctx context.Context, code string) (*usecase.AccountBalance, error)
}

type reconciler interface {
	Reconcile(ctx context.Context) (*usecase.ReconciliationReport, error)
}

// LedgerHandler handles ledger-wide operations.
type LedgerHandler struct {
	ledgerUC ledgerService
	reconUC  reconciler
}

// NewLedgerHandler creates a new LedgerHandler.
func NewLedgerHandler(ledgerUC ledgerService, reconUC reconciler) *LedgerHandler {
	return &LedgerHandler{ledgerUC: ledgerUC, reconUC: reconUC}
}

// CheckConsistency checks that total debits equal total credits.
func (h *LedgerHandler) CheckConsistency(w http.ResponseWriter, r *http.Request) {
	consistent, err := h.ledgerUC.CheckConsistency(r.Context())
	if err != nil {
		if errors.Is(err, usecase.ErrInconsistentLedger) {
			writeJSON(w, http.StatusConflict, map[string]any{
				"status":     "inconsistent",
				"consistent": false,
				"message":    err.Error(),
			})
			return
		}
		writeDomainError(w, "failed to check consistency", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "consistent",
		"consistent": consistent,
	})
}

// Reconcile compares control accounts with their open items. An
// unreconciled report is returned with 409.
func (h *LedgerHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	report, err := h.reconUC.Reconcile(r.Context())
	if err != nil {
		writeDomainError(w, "failed to reconcile", err)
		return
	}

	status := http.StatusOK
	if !report.Reconciled() {
		status = http.StatusConflict
	}
	writeJSON(w, status, dto.ReconciliationFromUseCase(report))
}

// AccountBalance returns the posted totals of one account.
func (h *LedgerHandler) AccountBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := h.ledgerUC.Balance(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeDomainError(w, "failed to get account balance", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.AccountBalanceFromUseCase(balance))
}
