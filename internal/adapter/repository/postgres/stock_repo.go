package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iho/erpledger/internal/domain"
	"github.com/iho/erpledger/internal/usecase"
)

const stockColumns = `material_id, quantity, avg_unit_price, version, updated_at`

// StockRepository implements usecase.StockRepository.
type StockRepository struct {
	db querier
}

// NewStockRepository creates a new StockRepository.
func NewStockRepository(pool *pgxpool.Pool) *StockRepository {
	return newStockRepository(pool)
}

func newStockRepository(q querier) *StockRepository {
	return &StockRepository{db: q}
}

// GetByMaterialID retrieves committed stock.
func (r *StockRepository) GetByMaterialID(ctx context.Context, materialID string) (*domain.Stock, error) {
	st, err := scanStock(r.db.QueryRow(ctx,
		`SELECT `+stockColumns+` FROM stocks WHERE material_id = $1`, materialID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrStockNotFound
		}
		return nil, err
	}
	return st, nil
}

// GetForUpdate creates an empty row on first touch, then locks it.
func (r *StockRepository) GetForUpdate(ctx context.Context, tx usecase.Transaction, materialID string) (*domain.Stock, error) {
	q, err := inTx(tx)
	if err != nil {
		return nil, err
	}

	_, err = q.Exec(ctx, `
		INSERT INTO stocks (material_id, quantity, avg_unit_price, version, updated_at)
		VALUES ($1, 0, 0, 0, now())
		ON CONFLICT (material_id) DO NOTHING`,
		materialID,
	)
	if err != nil {
		return nil, err
	}

	return scanStock(q.QueryRow(ctx,
		`SELECT `+stockColumns+` FROM stocks WHERE material_id = $1 FOR UPDATE`, materialID))
}

// Save writes the locked row back.
func (r *StockRepository) Save(ctx context.Context, tx usecase.Transaction, stock *domain.Stock) error {
	q, err := inTx(tx)
	if err != nil {
		return err
	}

	tag, err := q.Exec(ctx,
		`UPDATE stocks SET quantity = $2, avg_unit_price = $3, version = $4, updated_at = $5 WHERE material_id = $1`,
		stock.MaterialID,
		decimalToNumeric(stock.Quantity),
		decimalToNumeric(stock.AvgUnitPrice),
		stock.Version,
		timeToPgTimestamptz(stock.UpdatedAt),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStockNotFound
	}

	return nil
}

// List retrieves stock positions ordered by material.
func (r *StockRepository) List(ctx context.Context, limit, offset int) ([]*domain.Stock, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+stockColumns+` FROM stocks ORDER BY material_id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.Stock, error) {
		return scanStock(row)
	})
}

func scanStock(row pgx.Row) (*domain.Stock, error) {
	var (
		st         domain.Stock
		qty, price pgtype.Numeric
		updatedAt  pgtype.Timestamptz
	)

	if err := row.Scan(&st.MaterialID, &qty, &price, &st.Version, &updatedAt); err != nil {
		return nil, err
	}

	st.Quantity = numericToDecimal(qty)
	st.AvgUnitPrice = numericToDecimal(price)
	st.UpdatedAt = updatedAt.Time

	return &st, nil
}

const movementColumns = `id, material_id, type, quantity, unit_price, project_id,
	purchase_order_id, reason, journal_entry_id, created_at`

// MovementRepository implements usecase.MovementRepository.
type MovementRepository struct {
	db querier
}

// NewMovementRepository creates a new MovementRepository.
func NewMovementRepository(pool *pgxpool.Pool) *MovementRepository {
	return newMovementRepository(pool)
}

func newMovementRepository(q querier) *MovementRepository {
	return &MovementRepository{db: q}
}

// Create appends a movement.
func (r *MovementRepository) Create(ctx context.Context, tx usecase.Transaction, m *domain.StockMovement) error {
	q, err := inTx(tx)
	if err != nil {
		return err
	}

	var unitPrice pgtype.Numeric
	if m.UnitPrice != nil {
		unitPrice = decimalToNumeric(*m.UnitPrice)
	}

	_, err = q.Exec(ctx, `
		INSERT INTO stock_movements (`+movementColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		m.ID,
		m.MaterialID,
		string(m.Type),
		decimalToNumeric(m.Quantity),
		unitPrice,
		m.ProjectID,
		m.PurchaseOrderID,
		m.Reason,
		m.JournalEntryID,
		timeToPgTimestamptz(m.CreatedAt),
	)
	return err
}

// ListByMaterial retrieves a material's movements oldest first.
func (r *MovementRepository) ListByMaterial(ctx context.Context, materialID string, limit, offset int) ([]*domain.StockMovement, error) {
	return r.list(ctx,
		`SELECT `+movementColumns+` FROM stock_movements WHERE material_id = $1 ORDER BY seq LIMIT $2 OFFSET $3`,
		materialID, limit, offset)
}

// ListByProject retrieves the movements charged to a project oldest first.
func (r *MovementRepository) ListByProject(ctx context.Context, projectID string, limit, offset int) ([]*domain.StockMovement, error) {
	return r.list(ctx,
		`SELECT `+movementColumns+` FROM stock_movements WHERE project_id = $1 ORDER BY seq LIMIT $2 OFFSET $3`,
		projectID, limit, offset)
}

func (r *MovementRepository) list(ctx context.Context, sql string, args ...any) ([]*domain.StockMovement, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.StockMovement, error) {
		var (
			m          domain.StockMovement
			typ        string
			qty, price pgtype.Numeric
			createdAt  pgtype.Timestamptz
		)
		if err := row.Scan(&m.ID, &m.MaterialID, &typ, &qty, &price, &m.ProjectID,
			&m.PurchaseOrderID, &m.Reason, &m.JournalEntryID, &createdAt); err != nil {
			return nil, err
		}

		m.Type = domain.MovementType(typ)
		m.Quantity = numericToDecimal(qty)
		if price.Valid {
			p := numericToDecimal(price)
			m.UnitPrice = &p
		}
		m.CreatedAt = createdAt.Time

		return &m, nil
	})
}
