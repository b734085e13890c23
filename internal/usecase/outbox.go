package usecase

import (
	"context"
	"time"

	"github.com/iho/erpledger/internal/domain"
)

// recorder writes the outbox and audit rows that accompany every committed
// mutation. A nil audit repository disables auditing.
type recorder struct {
	outboxRepo OutboxRepository
	auditRepo  AuditRepository
	idGen      IDGenerator
}

func (r recorder) outbox(ctx context.Context, tx Transaction, aggregateType, aggregateID, eventType string, payload any, now time.Time) error {
	if r.outboxRepo == nil {
		return nil
	}

	event := &domain.OutboxEvent{
		ID:            r.idGen.Generate(),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		Payload:       domain.MarshalState(payload),
		CreatedAt:     now,
		Published:     false,
	}
	return r.outboxRepo.Create(ctx, tx, event)
}

func (r recorder) audit(ctx context.Context, tx Transaction, action domain.AuditAction, resourceType, resourceID string, before, after any, now time.Time) error {
	if r.auditRepo == nil {
		return nil
	}

	log := domain.NewAuditLog(r.idGen.Generate(), domain.RequestMetaFromContext(ctx), action, resourceType, resourceID, before, after, now)
	return r.auditRepo.CreateTx(ctx, tx, log)
}
