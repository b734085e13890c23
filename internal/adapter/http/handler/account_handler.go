package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/iho/erpledger/internal/adapter/http/dto"
	"github.com/iho/erpledger/internal/domain"
)

// AccountHandler exposes the chart of accounts.
type AccountHandler struct {
	registry *domain.AccountRegistry
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(registry *domain.AccountRegistry) *AccountHandler {
	return &AccountHandler{registry: registry}
}

// List lists all accounts ordered by code.
func (h *AccountHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, dto.AccountsFromDomain(h.registry.List()))
}

// Get resolves one account code.
func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	account, err := h.registry.Resolve(chi.URLParam(r, "code"))
	if err != nil {
		writeDomainError(w, "failed to get account", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.AccountsFromDomain([]domain.Account{*account})[0])
}
