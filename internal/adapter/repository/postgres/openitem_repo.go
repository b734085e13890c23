package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/iho/erpledger/internal/domain"
	"github.com/iho/erpledger/internal/usecase"
)

const openItemColumns = `id, kind, source_id, party_id, due_date, original_amount, balance_amount,
	status, version, created_at, updated_at`

// OpenItemRepository implements usecase.OpenItemRepository.
type OpenItemRepository struct {
	db querier
}

// NewOpenItemRepository creates a new OpenItemRepository.
func NewOpenItemRepository(pool *pgxpool.Pool) *OpenItemRepository {
	return newOpenItemRepository(pool)
}

func newOpenItemRepository(q querier) *OpenItemRepository {
	return &OpenItemRepository{db: q}
}

func openItemLockKey(kind domain.OpenItemKind, sourceID string) string {
	return "openitem:" + string(kind) + "|" + sourceID
}

// Create inserts a new item. One item per kind and source.
func (r *OpenItemRepository) Create(ctx context.Context, tx usecase.Transaction, item *domain.OpenItem) error {
	q, err := inTx(tx)
	if err != nil {
		return err
	}

	_, err = q.Exec(ctx, `
		INSERT INTO open_items (`+openItemColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		item.ID,
		string(item.Kind),
		item.SourceID,
		item.PartyID,
		timeToPgTimestamptz(item.DueDate),
		decimalToNumeric(item.OriginalAmount),
		decimalToNumeric(item.BalanceAmount),
		string(item.Status),
		item.Version,
		timeToPgTimestamptz(item.CreatedAt),
		timeToPgTimestamptz(item.UpdatedAt),
	)
	if isUniqueViolation(err, "") {
		return domain.ErrOpenItemExists
	}
	return err
}

// GetBySource retrieves a committed item.
func (r *OpenItemRepository) GetBySource(ctx context.Context, kind domain.OpenItemKind, sourceID string) (*domain.OpenItem, error) {
	return r.get(ctx, r.db,
		`SELECT `+openItemColumns+` FROM open_items WHERE kind = $1 AND source_id = $2`, kind, sourceID)
}

// GetBySourceForUpdate locks the source even when no item exists yet, so
// concurrent opens for one source serialize.
func (r *OpenItemRepository) GetBySourceForUpdate(ctx context.Context, tx usecase.Transaction, kind domain.OpenItemKind, sourceID string) (*domain.OpenItem, error) {
	q, err := inTx(tx)
	if err != nil {
		return nil, err
	}
	if err := lockKey(ctx, q, openItemLockKey(kind, sourceID)); err != nil {
		return nil, err
	}

	return r.get(ctx, q,
		`SELECT `+openItemColumns+` FROM open_items WHERE kind = $1 AND source_id = $2 FOR UPDATE`, kind, sourceID)
}

func (r *OpenItemRepository) get(ctx context.Context, q querier, sql string, kind domain.OpenItemKind, sourceID string) (*domain.OpenItem, error) {
	item, err := scanOpenItem(q.QueryRow(ctx, sql, string(kind), sourceID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrOpenItemNotFound
		}
		return nil, err
	}
	return item, nil
}

// UpdateBalance writes a settlement back.
func (r *OpenItemRepository) UpdateBalance(ctx context.Context, tx usecase.Transaction, item *domain.OpenItem) error {
	q, err := inTx(tx)
	if err != nil {
		return err
	}

	tag, err := q.Exec(ctx, `
		UPDATE open_items SET balance_amount = $3, status = $4, version = $5, updated_at = $6
		WHERE kind = $1 AND source_id = $2`,
		string(item.Kind),
		item.SourceID,
		decimalToNumeric(item.BalanceAmount),
		string(item.Status),
		item.Version,
		timeToPgTimestamptz(item.UpdatedAt),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrOpenItemNotFound
	}

	return nil
}

// ListByParty retrieves a party's items in creation order.
func (r *OpenItemRepository) ListByParty(ctx context.Context, kind domain.OpenItemKind, partyID string) ([]*domain.OpenItem, error) {
	return r.list(ctx,
		`SELECT `+openItemColumns+` FROM open_items WHERE kind = $1 AND party_id = $2 ORDER BY created_at, id`,
		string(kind), partyID)
}

// List retrieves a page of items of one kind in creation order.
func (r *OpenItemRepository) List(ctx context.Context, kind domain.OpenItemKind, limit, offset int) ([]*domain.OpenItem, error) {
	return r.list(ctx,
		`SELECT `+openItemColumns+` FROM open_items WHERE kind = $1 ORDER BY created_at, id LIMIT $2 OFFSET $3`,
		string(kind), limit, offset)
}

// SumOutstanding totals non-closed balances.
func (r *OpenItemRepository) SumOutstanding(ctx context.Context, kind domain.OpenItemKind, partyID string) (decimal.Decimal, error) {
	var total pgtype.Numeric
	err := r.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(balance_amount), 0) FROM open_items
		WHERE kind = $1 AND status <> $2 AND ($3::text = '' OR party_id = $3)`,
		string(kind), string(domain.OpenItemStatusClosed), partyID,
	).Scan(&total)
	if err != nil {
		return decimal.Zero, err
	}
	return numericToDecimal(total), nil
}

func (r *OpenItemRepository) list(ctx context.Context, sql string, args ...any) ([]*domain.OpenItem, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.OpenItem, error) {
		return scanOpenItem(row)
	})
}

func scanOpenItem(row pgx.Row) (*domain.OpenItem, error) {
	var (
		o                             domain.OpenItem
		kind, status                  string
		original, balance             pgtype.Numeric
		dueDate, createdAt, updatedAt pgtype.Timestamptz
	)

	err := row.Scan(&o.ID, &kind, &o.SourceID, &o.PartyID, &dueDate, &original, &balance,
		&status, &o.Version, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	o.Kind = domain.OpenItemKind(kind)
	o.Status = domain.OpenItemStatus(status)
	o.OriginalAmount = numericToDecimal(original)
	o.BalanceAmount = numericToDecimal(balance)
	o.DueDate = dueDate.Time
	o.CreatedAt = createdAt.Time
	o.UpdatedAt = updatedAt.Time

	return &o, nil
}
