package memory

import (
	"context"
	"sort"
	"time"

	"github.com/iho/erpledger/internal/domain"
	"github.com/iho/erpledger/internal/usecase"
)

// EventRepository implements usecase.EventRepository.
type EventRepository struct {
	s *Store
}

// NewEventRepository creates a new EventRepository.
func NewEventRepository(s *Store) *EventRepository {
	return &EventRepository{s: s}
}

func cloneEvent(e *domain.AccountingEvent) *domain.AccountingEvent {
	c := *e
	return &c
}

// Save buffers the event. The caller must hold its lock.
func (r *EventRepository) Save(ctx context.Context, tx usecase.Transaction, event *domain.AccountingEvent) error {
	t, err := r.s.tx(tx)
	if err != nil {
		return err
	}
	if err := t.lock(ctx, "event:"+event.ID); err != nil {
		return err
	}

	t.events[event.ID] = cloneEvent(event)
	return nil
}

// GetByID returns a committed event.
func (r *EventRepository) GetByID(ctx context.Context, id string) (*domain.AccountingEvent, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	e, ok := r.s.events[id]
	if !ok {
		return nil, domain.ErrEventNotFound
	}
	return cloneEvent(e), nil
}

// GetByIDForUpdate locks the event id, whether or not it exists yet.
func (r *EventRepository) GetByIDForUpdate(ctx context.Context, tx usecase.Transaction, id string) (*domain.AccountingEvent, error) {
	t, err := r.s.tx(tx)
	if err != nil {
		return nil, err
	}
	if err := t.lock(ctx, "event:"+id); err != nil {
		return nil, err
	}

	if e, ok := t.events[id]; ok {
		return cloneEvent(e), nil
	}
	return r.GetByID(ctx, id)
}

// List returns events in submission order. An empty status matches all.
func (r *EventRepository) List(ctx context.Context, status domain.EventStatus, limit, offset int) ([]*domain.AccountingEvent, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	matched := make([]*domain.AccountingEvent, 0)
	for _, id := range r.s.eventOrder {
		if e := r.s.events[id]; status == "" || e.Status == status {
			matched = append(matched, cloneEvent(e))
		}
	}
	return page(matched, limit, offset), nil
}

// OutboxRepository implements usecase.OutboxRepository.
type OutboxRepository struct {
	s *Store
}

// NewOutboxRepository creates a new OutboxRepository.
func NewOutboxRepository(s *Store) *OutboxRepository {
	return &OutboxRepository{s: s}
}

// Create buffers an outbox event.
func (r *OutboxRepository) Create(ctx context.Context, tx usecase.Transaction, event *domain.OutboxEvent) error {
	t, err := r.s.tx(tx)
	if err != nil {
		return err
	}

	c := *event
	t.outbox = append(t.outbox, &c)
	return nil
}

// GetUnpublished returns the oldest unpublished events.
func (r *OutboxRepository) GetUnpublished(ctx context.Context, limit int) ([]*domain.OutboxEvent, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]*domain.OutboxEvent, 0)
	for _, e := range r.s.outbox {
		if e.Published {
			continue
		}
		c := *e
		out = append(out, &c)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// MarkPublished flags an event as delivered.
func (r *OutboxRepository) MarkPublished(ctx context.Context, id string, publishedAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, e := range r.s.outbox {
		if e.ID == id {
			e.Published = true
			at := publishedAt
			e.PublishedAt = &at
			return nil
		}
	}
	return nil
}

// GetByAggregate returns the events of one aggregate oldest first.
func (r *OutboxRepository) GetByAggregate(ctx context.Context, aggregateType, aggregateID string, limit, offset int) ([]*domain.OutboxEvent, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	matched := make([]*domain.OutboxEvent, 0)
	for _, e := range r.s.outbox {
		if e.AggregateType == aggregateType && e.AggregateID == aggregateID {
			c := *e
			matched = append(matched, &c)
		}
	}
	return page(matched, limit, offset), nil
}

// DeletePublished drops events published before the cutoff.
func (r *OutboxRepository) DeletePublished(ctx context.Context, before time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	kept := r.s.outbox[:0]
	for _, e := range r.s.outbox {
		if e.Published && e.PublishedAt != nil && e.PublishedAt.Before(before) {
			continue
		}
		kept = append(kept, e)
	}
	r.s.outbox = kept
	return nil
}

// AuditRepository implements usecase.AuditRepository.
type AuditRepository struct {
	s *Store
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(s *Store) *AuditRepository {
	return &AuditRepository{s: s}
}

// CreateTx buffers an audit log.
func (r *AuditRepository) CreateTx(ctx context.Context, tx usecase.Transaction, log *domain.AuditLog) error {
	t, err := r.s.tx(tx)
	if err != nil {
		return err
	}

	c := *log
	t.audit = append(t.audit, &c)
	return nil
}

// List returns audit logs matching filter, newest first.
func (r *AuditRepository) List(ctx context.Context, filter domain.AuditFilter) ([]*domain.AuditLog, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	matched := make([]*domain.AuditLog, 0)
	for _, l := range r.s.audit {
		if filter.UserID != "" && l.UserID != filter.UserID {
			continue
		}
		if filter.Action != "" && l.Action != filter.Action {
			continue
		}
		if filter.ResourceType != "" && l.ResourceType != filter.ResourceType {
			continue
		}
		if filter.ResourceID != "" && l.ResourceID != filter.ResourceID {
			continue
		}
		if filter.StartDate != nil && l.CreatedAt.Before(*filter.StartDate) {
			continue
		}
		if filter.EndDate != nil && l.CreatedAt.After(*filter.EndDate) {
			continue
		}
		c := *l
		matched = append(matched, &c)
	}

	sort.SliceStable(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	limit, offset, _ := domain.ValidatePagination(filter.Limit, filter.Offset)
	return page(matched, limit, offset), nil
}

// GetByResourceID returns the audit trail of one resource, newest first.
func (r *AuditRepository) GetByResourceID(ctx context.Context, resourceType, resourceID string) ([]*domain.AuditLog, error) {
	return r.List(ctx, domain.AuditFilter{ResourceType: resourceType, ResourceID: resourceID, Limit: 1000})
}
