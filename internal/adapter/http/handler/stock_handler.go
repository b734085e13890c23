package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/iho/erpledger/internal/adapter/http/dto"
	"github.com/iho/erpledger/internal/domain"
	"github.com/iho/erpledger/internal/usecase"
)

type stockService interface {
	Receive(ctx context.Context, input usecase.ReceiveInput) (*usecase.StockResult, error)
	IssueForProject(ctx context.Context, input usecase.IssueInput) (*usecase.StockResult, error)
	Adjust(ctx context.Context, input usecase.AdjustInput) (*usecase.StockResult, error)
	BulkAdjust(ctx context.Context, input usecase.BulkAdjustInput) (*usecase.BulkAdjustResult, error)
	GetStock(ctx context.Context, materialID string) (*domain.Stock, error)
	ListStocks(ctx context.Context, limit, offset int) ([]*domain.Stock, error)
	ListMovements(ctx context.Context, materialID string, limit, offset int) ([]*domain.StockMovement, error)
	ListMovementsByProject(ctx context.Context, projectID string, limit, offset int) ([]*domain.StockMovement, error)
}

// StockHandler handles stock ledger requests.
type StockHandler struct {
	stockUC stockService
}

// NewStockHandler creates a new StockHandler.
func NewStockHandler(stockUC stockService) *StockHandler {
	return &StockHandler{stockUC: stockUC}
}

// Receive books a goods receipt.
func (h *StockHandler) Receive(w http.ResponseWriter, r *http.Request) {
	var req dto.ReceiveStockRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.stockUC.Receive(r.Context(), req.ToUseCaseInput())
	if err != nil {
		writeDomainError(w, "failed to receive stock", err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.StockResultFromUseCase(result))
}

// Issue issues material to a project and posts its cost to work in process.
func (h *StockHandler) Issue(w http.ResponseWriter, r *http.Request) {
	var req dto.IssueStockRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.stockUC.IssueForProject(r.Context(), req.ToUseCaseInput())
	if err != nil {
		writeDomainError(w, "failed to issue stock", err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.StockResultFromUseCase(result))
}

// Adjust applies a signed quantity correction.
func (h *StockHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	var req dto.AdjustStockRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.stockUC.Adjust(r.Context(), req.ToUseCaseInput())
	if err != nil {
		writeDomainError(w, "failed to adjust stock", err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.StockResultFromUseCase(result))
}

// BulkAdjust applies a stocktake. Per-item failures are reported in the body;
// the response is 207 when any item failed.
func (h *StockHandler) BulkAdjust(w http.ResponseWriter, r *http.Request) {
	var req dto.BulkAdjustRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.stockUC.BulkAdjust(r.Context(), req.ToUseCaseInput())
	if err != nil {
		writeDomainError(w, "failed to adjust stock", err)
		return
	}

	status := http.StatusOK
	if len(result.Failed) > 0 {
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, dto.BulkAdjustFromUseCase(result))
}

// Get retrieves the on-hand position of a material.
func (h *StockHandler) Get(w http.ResponseWriter, r *http.Request) {
	stock, err := h.stockUC.GetStock(r.Context(), chi.URLParam(r, "materialID"))
	if err != nil {
		writeDomainError(w, "failed to get stock", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.StockFromDomain(stock))
}

// List lists stock positions.
func (h *StockHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)

	stocks, err := h.stockUC.ListStocks(r.Context(), limit, offset)
	if err != nil {
		writeDomainError(w, "failed to list stocks", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.PaginatedResponse[*dto.StockResponse]{
		Data:   dto.StocksFromDomain(stocks),
		Limit:  limit,
		Offset: offset,
	})
}

// ListMovements lists movements of one material.
func (h *StockHandler) ListMovements(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)

	movements, err := h.stockUC.ListMovements(r.Context(), chi.URLParam(r, "materialID"), limit, offset)
	if err != nil {
		writeDomainError(w, "failed to list movements", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.PaginatedResponse[*dto.MovementResponse]{
		Data:   dto.MovementsFromDomain(movements),
		Limit:  limit,
		Offset: offset,
	})
}

// ListProjectMovements lists material issued to one project.
func (h *StockHandler) ListProjectMovements(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)

	movements, err := h.stockUC.ListMovementsByProject(r.Context(), chi.URLParam(r, "projectID"), limit, offset)
	if err != nil {
		writeDomainError(w, "failed to list movements", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.PaginatedResponse[*dto.MovementResponse]{
		Data:   dto.MovementsFromDomain(movements),
		Limit:  limit,
		Offset: offset,
	})
}
