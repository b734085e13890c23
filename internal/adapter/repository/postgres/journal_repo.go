package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/iho/erpledger/internal/domain"
	"github.com/iho/erpledger/internal/usecase"
)

// ErrDuplicateJournal is returned when a journal number or event is booked
// twice.
var ErrDuplicateJournal = errors.New("journal entry already exists")

const journalColumns = `id, journal_no, posting_date, source_type, source_id, source_no, event_id,
	description, status, reversal_of, reversed_by, posted_by, created_at, updated_at`

const lineColumns = `entry_id, line_no, account_code, dr_amount, cr_amount,
	customer_id, supplier_id, project_id, material_id, memo`

// JournalRepository implements usecase.JournalRepository.
type JournalRepository struct {
	db querier
}

// NewJournalRepository creates a new JournalRepository.
func NewJournalRepository(pool *pgxpool.Pool) *JournalRepository {
	return newJournalRepository(pool)
}

func newJournalRepository(q querier) *JournalRepository {
	return &JournalRepository{db: q}
}

// Create inserts an entry and its lines.
func (r *JournalRepository) Create(ctx context.Context, tx usecase.Transaction, entry *domain.JournalEntry) error {
	q, err := inTx(tx)
	if err != nil {
		return err
	}

	_, err = q.Exec(ctx, `
		INSERT INTO journal_entries (`+journalColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		entry.ID,
		entry.JournalNo,
		timeToPgTimestamptz(entry.PostingDate),
		string(entry.SourceType),
		entry.SourceID,
		entry.SourceNo,
		nullText(entry.EventID),
		entry.Description,
		string(entry.Status),
		nullText(entry.ReversalOf),
		nullText(entry.ReversedBy),
		entry.PostedBy,
		timeToPgTimestamptz(entry.CreatedAt),
		timeToPgTimestamptz(entry.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err, "") {
			return fmt.Errorf("%w: %s", ErrDuplicateJournal, entry.JournalNo)
		}
		return err
	}

	for _, l := range entry.Lines {
		_, err := q.Exec(ctx, `
			INSERT INTO journal_lines (`+lineColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			entry.ID,
			l.LineNo,
			l.AccountCode,
			decimalToNumeric(l.DrAmount),
			decimalToNumeric(l.CrAmount),
			l.CustomerID,
			l.SupplierID,
			l.ProjectID,
			l.MaterialID,
			l.Memo,
		)
		if err != nil {
			return err
		}
	}

	return nil
}

// GetByID retrieves an entry with its lines.
func (r *JournalRepository) GetByID(ctx context.Context, id string) (*domain.JournalEntry, error) {
	return r.get(ctx, r.db, `SELECT `+journalColumns+` FROM journal_entries WHERE id = $1`, id)
}

// GetByIDForUpdate retrieves an entry and locks it for the life of tx.
func (r *JournalRepository) GetByIDForUpdate(ctx context.Context, tx usecase.Transaction, id string) (*domain.JournalEntry, error) {
	q, err := inTx(tx)
	if err != nil {
		return nil, err
	}
	return r.get(ctx, q, `SELECT `+journalColumns+` FROM journal_entries WHERE id = $1 FOR UPDATE`, id)
}

func (r *JournalRepository) get(ctx context.Context, q querier, sql, id string) (*domain.JournalEntry, error) {
	entry, err := scanEntry(q.QueryRow(ctx, sql, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrJournalEntryNotFound
		}
		return nil, err
	}

	if err := r.loadLines(ctx, q, []*domain.JournalEntry{entry}); err != nil {
		return nil, err
	}

	return entry, nil
}

// UpdateStatus marks an entry reversed.
func (r *JournalRepository) UpdateStatus(ctx context.Context, tx usecase.Transaction, id string, status domain.JournalStatus, reversedBy string, updatedAt time.Time) error {
	q, err := inTx(tx)
	if err != nil {
		return err
	}

	tag, err := q.Exec(ctx,
		`UPDATE journal_entries SET status = $2, reversed_by = $3, updated_at = $4 WHERE id = $1`,
		id, string(status), nullText(reversedBy), timeToPgTimestamptz(updatedAt),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrJournalEntryNotFound
	}

	return nil
}

// List retrieves entries in journal number order.
func (r *JournalRepository) List(ctx context.Context, limit, offset int) ([]*domain.JournalEntry, error) {
	return r.list(ctx,
		`SELECT `+journalColumns+` FROM journal_entries ORDER BY journal_no LIMIT $1 OFFSET $2`,
		limit, offset,
	)
}

// ListBySource retrieves the entries of one source document.
func (r *JournalRepository) ListBySource(ctx context.Context, sourceType domain.SourceType, sourceID string) ([]*domain.JournalEntry, error) {
	return r.list(ctx,
		`SELECT `+journalColumns+` FROM journal_entries WHERE source_type = $1 AND source_id = $2 ORDER BY journal_no`,
		string(sourceType), sourceID,
	)
}

func (r *JournalRepository) list(ctx context.Context, sql string, args ...any) ([]*domain.JournalEntry, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.JournalEntry, error) {
		return scanEntry(row)
	})
	if err != nil {
		return nil, err
	}

	if err := r.loadLines(ctx, r.db, entries); err != nil {
		return nil, err
	}

	return entries, nil
}

func (r *JournalRepository) loadLines(ctx context.Context, q querier, entries []*domain.JournalEntry) error {
	if len(entries) == 0 {
		return nil
	}

	ids := make([]string, len(entries))
	byID := make(map[string]*domain.JournalEntry, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
		byID[e.ID] = e
	}

	rows, err := q.Query(ctx,
		`SELECT `+lineColumns+` FROM journal_lines WHERE entry_id = ANY($1) ORDER BY entry_id, line_no`,
		ids,
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			entryID string
			l       domain.JournalLine
			dr, cr  pgtype.Numeric
		)
		if err := rows.Scan(&entryID, &l.LineNo, &l.AccountCode, &dr, &cr,
			&l.CustomerID, &l.SupplierID, &l.ProjectID, &l.MaterialID, &l.Memo); err != nil {
			return err
		}
		l.DrAmount = numericToDecimal(dr)
		l.CrAmount = numericToDecimal(cr)

		if e, ok := byID[entryID]; ok {
			e.Lines = append(e.Lines, l)
		}
	}

	return rows.Err()
}

func scanEntry(row pgx.Row) (*domain.JournalEntry, error) {
	var (
		e                                 domain.JournalEntry
		sourceType, status                string
		eventID, reversalOf, reversedBy   pgtype.Text
		postingDate, createdAt, updatedAt pgtype.Timestamptz
	)

	err := row.Scan(
		&e.ID,
		&e.JournalNo,
		&postingDate,
		&sourceType,
		&e.SourceID,
		&e.SourceNo,
		&eventID,
		&e.Description,
		&status,
		&reversalOf,
		&reversedBy,
		&e.PostedBy,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.PostingDate = postingDate.Time
	e.SourceType = domain.SourceType(sourceType)
	e.EventID = eventID.String
	e.Status = domain.JournalStatus(status)
	e.ReversalOf = reversalOf.String
	e.ReversedBy = reversedBy.String
	e.CreatedAt = createdAt.Time
	e.UpdatedAt = updatedAt.Time

	return &e, nil
}

// SequenceRepository implements usecase.SequenceRepository with one counter
// row per scope.
type SequenceRepository struct{}

// NewSequenceRepository creates a new SequenceRepository.
func NewSequenceRepository() *SequenceRepository {
	return &SequenceRepository{}
}

// Next increments the counter of scope. The row stays locked until tx ends,
// so a rolled back increment is never observed.
func (r *SequenceRepository) Next(ctx context.Context, tx usecase.Transaction, scope string) (int64, error) {
	q, err := inTx(tx)
	if err != nil {
		return 0, err
	}

	var value int64
	err = q.QueryRow(ctx, `
		INSERT INTO sequences (scope, value) VALUES ($1, 1)
		ON CONFLICT (scope) DO UPDATE SET value = sequences.value + 1
		RETURNING value`,
		scope,
	).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("next %s: %w", scope, err)
	}

	return value, nil
}

// LedgerRepository implements usecase.LedgerRepository over journal lines.
type LedgerRepository struct {
	db querier
}

// NewLedgerRepository creates a new LedgerRepository.
func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepository {
	return newLedgerRepository(pool)
}

func newLedgerRepository(q querier) *LedgerRepository {
	return &LedgerRepository{db: q}
}

// CheckConsistency totals every line ever posted.
func (r *LedgerRepository) CheckConsistency(ctx context.Context) (decimal.Decimal, decimal.Decimal, error) {
	return r.sums(ctx, `SELECT COALESCE(SUM(dr_amount), 0), COALESCE(SUM(cr_amount), 0) FROM journal_lines`)
}

// SumByAccount totals the lines of one account.
func (r *LedgerRepository) SumByAccount(ctx context.Context, accountCode string) (decimal.Decimal, decimal.Decimal, error) {
	return r.sums(ctx,
		`SELECT COALESCE(SUM(dr_amount), 0), COALESCE(SUM(cr_amount), 0) FROM journal_lines WHERE account_code = $1`,
		accountCode,
	)
}

func (r *LedgerRepository) sums(ctx context.Context, sql string, args ...any) (decimal.Decimal, decimal.Decimal, error) {
	var dr, cr pgtype.Numeric
	if err := r.db.QueryRow(ctx, sql, args...).Scan(&dr, &cr); err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return numericToDecimal(dr), numericToDecimal(cr), nil
}
