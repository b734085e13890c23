package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iho/erpledger/internal/domain"
	"github.com/iho/erpledger/internal/usecase"
)

const eventColumns = `id, source_type, source_id, source_no, event_type, occurred_at, description,
	payload, status, journal_entry_id, error, created_at, updated_at`

// EventRepository implements usecase.EventRepository.
type EventRepository struct {
	db querier
}

// NewEventRepository creates a new EventRepository.
func NewEventRepository(pool *pgxpool.Pool) *EventRepository {
	return newEventRepository(pool)
}

func newEventRepository(q querier) *EventRepository {
	return &EventRepository{db: q}
}

// Save inserts the event or replaces its mutable fields. created_at is kept
// from the first attempt.
func (r *EventRepository) Save(ctx context.Context, tx usecase.Transaction, event *domain.AccountingEvent) error {
	q, err := inTx(tx)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	_, err = q.Exec(ctx, `
		INSERT INTO accounting_events (`+eventColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			source_type = EXCLUDED.source_type,
			source_id = EXCLUDED.source_id,
			source_no = EXCLUDED.source_no,
			event_type = EXCLUDED.event_type,
			occurred_at = EXCLUDED.occurred_at,
			description = EXCLUDED.description,
			payload = EXCLUDED.payload,
			status = EXCLUDED.status,
			journal_entry_id = EXCLUDED.journal_entry_id,
			error = EXCLUDED.error,
			updated_at = EXCLUDED.updated_at`,
		event.ID,
		string(event.SourceType),
		event.SourceID,
		event.SourceNo,
		string(event.EventType),
		timeToPgTimestamptz(event.OccurredAt),
		event.Description,
		payload,
		string(event.Status),
		nullText(event.JournalEntryID),
		event.Error,
		timeToPgTimestamptz(event.CreatedAt),
		timeToPgTimestamptz(event.UpdatedAt),
	)
	return err
}

// GetByID retrieves a committed event.
func (r *EventRepository) GetByID(ctx context.Context, id string) (*domain.AccountingEvent, error) {
	return r.get(ctx, r.db, `SELECT `+eventColumns+` FROM accounting_events WHERE id = $1`, id)
}

// GetByIDForUpdate locks the event id, whether or not it exists yet.
func (r *EventRepository) GetByIDForUpdate(ctx context.Context, tx usecase.Transaction, id string) (*domain.AccountingEvent, error) {
	q, err := inTx(tx)
	if err != nil {
		return nil, err
	}
	if err := lockKey(ctx, q, "event:"+id); err != nil {
		return nil, err
	}

	return r.get(ctx, q, `SELECT `+eventColumns+` FROM accounting_events WHERE id = $1 FOR UPDATE`, id)
}

func (r *EventRepository) get(ctx context.Context, q querier, sql, id string) (*domain.AccountingEvent, error) {
	event, err := scanEvent(q.QueryRow(ctx, sql, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrEventNotFound
		}
		return nil, err
	}
	return event, nil
}

// List retrieves events in submission order. An empty status matches all.
func (r *EventRepository) List(ctx context.Context, status domain.EventStatus, limit, offset int) ([]*domain.AccountingEvent, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+eventColumns+` FROM accounting_events
		WHERE ($1::text = '' OR status = $1)
		ORDER BY created_at, id LIMIT $2 OFFSET $3`,
		string(status), limit, offset,
	)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.AccountingEvent, error) {
		return scanEvent(row)
	})
}

func scanEvent(row pgx.Row) (*domain.AccountingEvent, error) {
	var (
		e                                domain.AccountingEvent
		sourceType, eventType, status    string
		payload                          []byte
		journalEntryID                   pgtype.Text
		occurredAt, createdAt, updatedAt pgtype.Timestamptz
	)

	err := row.Scan(
		&e.ID,
		&sourceType,
		&e.SourceID,
		&e.SourceNo,
		&eventType,
		&occurredAt,
		&e.Description,
		&payload,
		&status,
		&journalEntryID,
		&e.Error,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.SourceType = domain.SourceType(sourceType)
	e.EventType = domain.EventType(eventType)
	e.Status = domain.EventStatus(status)
	e.JournalEntryID = journalEntryID.String
	e.OccurredAt = occurredAt.Time
	e.CreatedAt = createdAt.Time
	e.UpdatedAt = updatedAt.Time

	e.Payload, err = domain.DecodePayload(e.EventType, payload)
	if err != nil {
		return nil, fmt.Errorf("decode payload of event %s: %w", e.ID, err)
	}

	return &e, nil
}

// OutboxRepository implements usecase.OutboxRepository.
type OutboxRepository struct {
	db querier
}

// NewOutboxRepository creates a new OutboxRepository.
func NewOutboxRepository(pool *pgxpool.Pool) *OutboxRepository {
	return newOutboxRepository(pool)
}

func newOutboxRepository(q querier) *OutboxRepository {
	return &OutboxRepository{db: q}
}

const outboxColumns = `id, aggregate_id, aggregate_type, event_type, payload, created_at, published_at, published`

// Create creates a new outbox event within a transaction.
func (r *OutboxRepository) Create(ctx context.Context, tx usecase.Transaction, event *domain.OutboxEvent) error {
	q, err := inTx(tx)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return err
	}

	_, err = q.Exec(ctx, `
		INSERT INTO outbox_events (id, aggregate_id, aggregate_type, event_type, payload, created_at, published)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		event.ID,
		event.AggregateID,
		event.AggregateType,
		event.EventType,
		payload,
		timeToPgTimestamptz(event.CreatedAt),
		event.Published,
	)
	return err
}

// GetUnpublished retrieves the oldest unpublished events.
func (r *OutboxRepository) GetUnpublished(ctx context.Context, limit int) ([]*domain.OutboxEvent, error) {
	return r.list(ctx,
		`SELECT `+outboxColumns+` FROM outbox_events WHERE NOT published ORDER BY created_at, id LIMIT $1`,
		limit)
}

// MarkPublished marks an event as published.
func (r *OutboxRepository) MarkPublished(ctx context.Context, id string, publishedAt time.Time) error {
	_, err := r.db.Exec(ctx,
		`UPDATE outbox_events SET published = TRUE, published_at = $2 WHERE id = $1`,
		id, timeToPgTimestamptz(publishedAt))
	return err
}

// GetByAggregate retrieves events for a specific aggregate.
func (r *OutboxRepository) GetByAggregate(ctx context.Context, aggregateType, aggregateID string, limit, offset int) ([]*domain.OutboxEvent, error) {
	return r.list(ctx, `
		SELECT `+outboxColumns+` FROM outbox_events
		WHERE aggregate_type = $1 AND aggregate_id = $2
		ORDER BY created_at, id LIMIT $3 OFFSET $4`,
		aggregateType, aggregateID, limit, offset)
}

// DeletePublished deletes events published before the cutoff.
func (r *OutboxRepository) DeletePublished(ctx context.Context, before time.Time) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM outbox_events WHERE published AND published_at < $1`,
		timeToPgTimestamptz(before))
	return err
}

func (r *OutboxRepository) list(ctx context.Context, sql string, args ...any) ([]*domain.OutboxEvent, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.OutboxEvent, error) {
		var (
			e                      domain.OutboxEvent
			payload                []byte
			createdAt, publishedAt pgtype.Timestamptz
		)
		if err := row.Scan(&e.ID, &e.AggregateID, &e.AggregateType, &e.EventType,
			&payload, &createdAt, &publishedAt, &e.Published); err != nil {
			return nil, err
		}

		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &e.Payload); err != nil {
				return nil, err
			}
		}
		e.CreatedAt = createdAt.Time
		if publishedAt.Valid {
			at := publishedAt.Time
			e.PublishedAt = &at
		}

		return &e, nil
	})
}
