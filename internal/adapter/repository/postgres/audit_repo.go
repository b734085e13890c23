package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iho/erpledger/internal/domain"
	"github.com/iho/erpledger/internal/usecase"
)

const auditColumns = `id, user_id, action, resource_type, resource_id, ip_address, user_agent, request_id,
	before_state, after_state, status, error_message, created_at`

// AuditRepository stores the audit trail. Rows are only ever inserted.
type AuditRepository struct {
	db querier
}

// NewAuditRepository creates an AuditRepository on pool.
func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return newAuditRepository(pool)
}

func newAuditRepository(q querier) *AuditRepository {
	return &AuditRepository{db: q}
}

// stateJSON encodes a snapshot for a JSONB column; a nil snapshot is NULL.
func stateJSON(state domain.JSON) ([]byte, error) {
	if state == nil {
		return nil, nil
	}
	return json.Marshal(state)
}

// CreateTx appends log inside tx, next to the change it records.
func (r *AuditRepository) CreateTx(ctx context.Context, tx usecase.Transaction, log *domain.AuditLog) error {
	q, err := inTx(tx)
	if err != nil {
		return err
	}

	before, err := stateJSON(log.BeforeState)
	if err != nil {
		return fmt.Errorf("encode before state: %w", err)
	}
	after, err := stateJSON(log.AfterState)
	if err != nil {
		return fmt.Errorf("encode after state: %w", err)
	}

	_, err = q.Exec(ctx,
		`INSERT INTO audit_logs (`+auditColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		log.ID, log.UserID, log.Action, log.ResourceType, log.ResourceID,
		log.IPAddress, log.UserAgent, log.RequestID,
		before, after, log.Status, log.ErrorMessage,
		timeToPgTimestamptz(log.CreatedAt),
	)
	return err
}

// List returns matching rows, newest first.
func (r *AuditRepository) List(ctx context.Context, filter domain.AuditFilter) ([]*domain.AuditLog, error) {
	limit, offset, err := domain.ValidatePagination(filter.Limit, filter.Offset)
	if err != nil {
		return nil, err
	}

	var (
		conds []string
		args  []any
	)
	where := func(column, op string, value any) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf("%s %s $%d", column, op, len(args)))
	}

	if filter.UserID != "" {
		where("user_id", "=", filter.UserID)
	}
	if filter.Action != "" {
		where("action", "=", filter.Action)
	}
	if filter.ResourceType != "" {
		where("resource_type", "=", filter.ResourceType)
	}
	if filter.ResourceID != "" {
		where("resource_id", "=", filter.ResourceID)
	}
	if filter.StartDate != nil {
		where("created_at", ">=", *filter.StartDate)
	}
	if filter.EndDate != nil {
		where("created_at", "<=", *filter.EndDate)
	}

	var sb strings.Builder
	sb.WriteString(`SELECT ` + auditColumns + ` FROM audit_logs`)
	if len(conds) > 0 {
		sb.WriteString(" WHERE " + strings.Join(conds, " AND "))
	}
	args = append(args, limit, offset)
	fmt.Fprintf(&sb, " ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.db.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanAuditLog)
}

func scanAuditLog(row pgx.CollectableRow) (*domain.AuditLog, error) {
	var (
		log           domain.AuditLog
		before, after []byte
		createdAt     pgtype.Timestamptz
	)

	if err := row.Scan(
		&log.ID, &log.UserID, &log.Action, &log.ResourceType, &log.ResourceID,
		&log.IPAddress, &log.UserAgent, &log.RequestID,
		&before, &after, &log.Status, &log.ErrorMessage,
		&createdAt,
	); err != nil {
		return nil, err
	}

	for _, s := range []struct {
		raw  []byte
		into *domain.JSON
	}{{before, &log.BeforeState}, {after, &log.AfterState}} {
		if s.raw == nil {
			continue
		}
		if err := json.Unmarshal(s.raw, s.into); err != nil {
			return nil, fmt.Errorf("decode audit state of %s: %w", log.ID, err)
		}
	}
	log.CreatedAt = createdAt.Time

	return &log, nil
}

// GetByResourceID returns the trail of one resource.
func (r *AuditRepository) GetByResourceID(ctx context.Context, resourceType, resourceID string) ([]*domain.AuditLog, error) {
	return r.List(ctx, domain.AuditFilter{
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Limit:        domain.MaxPageSize,
	})
}
