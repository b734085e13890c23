package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/iho/erpledger/internal/adapter/http/dto"
	"github.com/iho/erpledger/internal/domain"
	"github.com/iho/erpledger/internal/usecase"
)

type journalService interface {
	GetEntry(ctx context.Context, id string) (*domain.JournalEntry, error)
	ListEntries(ctx context.Context, limit, offset int) ([]*domain.JournalEntry, error)
	ListEntriesBySource(ctx context.Context, sourceType domain.SourceType, sourceID string) ([]*domain.JournalEntry, error)
	Reverse(ctx context.Context, input usecase.ReverseInput) (*domain.JournalEntry, error)
}

// JournalHandler exposes the journal.
type JournalHandler struct {
	postingUC journalService
}

// NewJournalHandler creates a new JournalHandler.
func NewJournalHandler(postingUC journalService) *JournalHandler {
	return &JournalHandler{postingUC: postingUC}
}

// Get retrieves a journal entry with its lines.
func (h *JournalHandler) Get(w http.ResponseWriter, r *http.Request) {
	entry, err := h.postingUC.GetEntry(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "failed to get journal entry", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.JournalEntryFromDomain(entry))
}

// List lists journal entries in journal number order.
func (h *JournalHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)

	entries, err := h.postingUC.ListEntries(r.Context(), limit, offset)
	if err != nil {
		writeDomainError(w, "failed to list journal entries", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.PaginatedResponse[*dto.JournalEntryResponse]{
		Data:   dto.JournalEntriesFromDomain(entries),
		Limit:  limit,
		Offset: offset,
	})
}

// ListBySource lists the entries booked for one source document.
func (h *JournalHandler) ListBySource(w http.ResponseWriter, r *http.Request) {
	sourceType := domain.SourceType(chi.URLParam(r, "sourceType"))
	if !sourceType.IsValid() {
		writeError(w, http.StatusBadRequest, "invalid source type", string(sourceType))
		return
	}

	entries, err := h.postingUC.ListEntriesBySource(r.Context(), sourceType, chi.URLParam(r, "sourceID"))
	if err != nil {
		writeDomainError(w, "failed to list journal entries", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.JournalEntriesFromDomain(entries))
}

// Reverse books the mirror entry of a posted entry.
func (h *JournalHandler) Reverse(w http.ResponseWriter, r *http.Request) {
	var req dto.ReverseJournalRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	reversal, err := h.postingUC.Reverse(r.Context(), usecase.ReverseInput{
		EntryID: chi.URLParam(r, "id"),
		Reason:  req.Reason,
	})
	if err != nil {
		writeDomainError(w, "failed to reverse journal entry", err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.JournalEntryFromDomain(reversal))
}
