package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/iho/erpledger/internal/adapter/http/dto"
	"github.com/iho/erpledger/internal/domain"
)

type openItemService interface {
	Get(ctx context.Context, kind domain.OpenItemKind, sourceID string) (*domain.OpenItem, error)
	ListByParty(ctx context.Context, kind domain.OpenItemKind, partyID string) ([]*domain.OpenItem, error)
	List(ctx context.Context, kind domain.OpenItemKind, limit, offset int) ([]*domain.OpenItem, error)
	OutstandingFor(ctx context.Context, kind domain.OpenItemKind, partyID string) (decimal.Decimal, error)
}

// OpenItemHandler serves one sub-ledger: receivables or payables.
type OpenItemHandler struct {
	kind       domain.OpenItemKind
	partyParam string
	openItemUC openItemService
	now        func() time.Time
}

// NewOpenItemHandler creates a handler for kind. Receivables are filtered by
// ?customer_id=, payables by ?supplier_id=.
func NewOpenItemHandler(kind domain.OpenItemKind, openItemUC openItemService) *OpenItemHandler {
	partyParam := "customer_id"
	if kind == domain.OpenItemPayable {
		partyParam = "supplier_id"
	}

	return &OpenItemHandler{
		kind:       kind,
		partyParam: partyParam,
		openItemUC: openItemUC,
		now:        time.Now,
	}
}

// Get retrieves the item of one order or purchase order.
func (h *OpenItemHandler) Get(w http.ResponseWriter, r *http.Request) {
	item, err := h.openItemUC.Get(r.Context(), h.kind, chi.URLParam(r, "sourceID"))
	if err != nil {
		writeDomainError(w, "failed to get open item", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.OpenItemFromDomain(item, h.now()))
}

// List lists items, all of a party when the party parameter is set.
func (h *OpenItemHandler) List(w http.ResponseWriter, r *http.Request) {
	if partyID := r.URL.Query().Get(h.partyParam); partyID != "" {
		items, err := h.openItemUC.ListByParty(r.Context(), h.kind, partyID)
		if err != nil {
			writeDomainError(w, "failed to list open items", err)
			return
		}
		writeJSON(w, http.StatusOK, dto.OpenItemsFromDomain(items, h.now()))
		return
	}

	limit, offset := pagination(r)
	items, err := h.openItemUC.List(r.Context(), h.kind, limit, offset)
	if err != nil {
		writeDomainError(w, "failed to list open items", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.PaginatedResponse[*dto.OpenItemResponse]{
		Data:   dto.OpenItemsFromDomain(items, h.now()),
		Limit:  limit,
		Offset: offset,
	})
}

// Outstanding totals open balances of a party, or of everyone.
func (h *OpenItemHandler) Outstanding(w http.ResponseWriter, r *http.Request) {
	partyID := r.URL.Query().Get(h.partyParam)

	total, err := h.openItemUC.OutstandingFor(r.Context(), h.kind, partyID)
	if err != nil {
		writeDomainError(w, "failed to compute outstanding balance", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.OutstandingResponse{
		Kind:        string(h.kind),
		PartyID:     partyID,
		Outstanding: total,
	})
}
