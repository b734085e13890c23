package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/iho/erpledger/internal/adapter/http/dto"
	"github.com/iho/erpledger/internal/domain"
)

type eventService interface {
	Post(ctx context.Context, event *domain.AccountingEvent) (*domain.JournalEntry, error)
	GetEvent(ctx context.Context, id string) (*domain.AccountingEvent, error)
	ListEvents(ctx context.Context, status domain.EventStatus, limit, offset int) ([]*domain.AccountingEvent, error)
}

// EventHandler accepts business events for posting.
type EventHandler struct {
	postingUC eventService
	now       func() time.Time
}

// NewEventHandler creates a new EventHandler.
func NewEventHandler(postingUC eventService) *EventHandler {
	return &EventHandler{postingUC: postingUC, now: time.Now}
}

// Post books an event. Resubmitting a posted event id returns its entry.
func (h *EventHandler) Post(w http.ResponseWriter, r *http.Request) {
	var req dto.PostEventRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	event, err := req.ToDomain(h.now())
	if err != nil {
		writeDomainError(w, "invalid event", err)
		return
	}

	entry, err := h.postingUC.Post(r.Context(), event)
	if err != nil {
		writeDomainError(w, "failed to post event", err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.PostEventResponse{
		EventID: event.ID,
		Entry:   dto.JournalEntryFromDomain(entry),
	})
}

// Get retrieves an event with its outcome.
func (h *EventHandler) Get(w http.ResponseWriter, r *http.Request) {
	event, err := h.postingUC.GetEvent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "failed to get event", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.EventFromDomain(event))
}

// List lists events, optionally filtered by ?status=.
func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	status := domain.EventStatus(r.URL.Query().Get("status"))
	switch status {
	case "", domain.EventStatusPosted, domain.EventStatusReversed, domain.EventStatusError:
	default:
		writeError(w, http.StatusBadRequest, "invalid status", string(status))
		return
	}

	limit, offset := pagination(r)
	events, err := h.postingUC.ListEvents(r.Context(), status, limit, offset)
	if err != nil {
		writeDomainError(w, "failed to list events", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.PaginatedResponse[*dto.EventResponse]{
		Data:   dto.EventsFromDomain(events),
		Limit:  limit,
		Offset: offset,
	})
}
