package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/erpledger/internal/domain"
	"github.com/iho/erpledger/internal/usecase"
)

// JournalRepository implements usecase.JournalRepository.
type JournalRepository struct {
	s *Store
}

// NewJournalRepository creates a new JournalRepository.
func NewJournalRepository(s *Store) *JournalRepository {
	return &JournalRepository{s: s}
}

func cloneEntry(e *domain.JournalEntry) *domain.JournalEntry {
	c := *e
	c.Lines = append([]domain.JournalLine(nil), e.Lines...)
	return &c
}

// Create appends a new entry. Journal numbers and event ids are unique.
func (r *JournalRepository) Create(ctx context.Context, tx usecase.Transaction, entry *domain.JournalEntry) error {
	t, err := r.s.tx(tx)
	if err != nil {
		return err
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	if _, ok := r.s.journals[entry.ID]; ok {
		return fmt.Errorf("%w: journal entry %s", errDuplicateRow, entry.ID)
	}
	for _, existing := range r.s.journals {
		if err := conflicts(existing, entry); err != nil {
			return err
		}
	}
	for _, existing := range t.journals {
		if err := conflicts(existing, entry); err != nil {
			return err
		}
	}

	t.journals[entry.ID] = cloneEntry(entry)
	t.journalOrder = append(t.journalOrder, entry.ID)
	return nil
}

func conflicts(existing, entry *domain.JournalEntry) error {
	if existing.JournalNo == entry.JournalNo {
		return fmt.Errorf("%w: journal number %s", errDuplicateRow, entry.JournalNo)
	}
	if entry.EventID != "" && existing.EventID == entry.EventID {
		return fmt.Errorf("%w: event %s already has an entry", errDuplicateRow, entry.EventID)
	}
	return nil
}

// GetByID returns a committed entry.
func (r *JournalRepository) GetByID(ctx context.Context, id string) (*domain.JournalEntry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	e, ok := r.s.journals[id]
	if !ok {
		return nil, domain.ErrJournalEntryNotFound
	}
	return cloneEntry(e), nil
}

// GetByIDForUpdate locks the entry for the life of tx.
func (r *JournalRepository) GetByIDForUpdate(ctx context.Context, tx usecase.Transaction, id string) (*domain.JournalEntry, error) {
	t, err := r.s.tx(tx)
	if err != nil {
		return nil, err
	}
	if err := t.lock(ctx, "journal:"+id); err != nil {
		return nil, err
	}

	if e, ok := t.journals[id]; ok {
		return cloneEntry(e), nil
	}
	return r.GetByID(ctx, id)
}

// UpdateStatus marks an entry reversed. The caller must hold its lock.
func (r *JournalRepository) UpdateStatus(ctx context.Context, tx usecase.Transaction, id string, status domain.JournalStatus, reversedBy string, updatedAt time.Time) error {
	e, err := r.GetByIDForUpdate(ctx, tx, id)
	if err != nil {
		return err
	}

	t, _ := r.s.tx(tx)
	e.Status = status
	e.ReversedBy = reversedBy
	e.UpdatedAt = updatedAt
	t.journals[id] = e
	return nil
}

// List returns committed entries in commit order.
func (r *JournalRepository) List(ctx context.Context, limit, offset int) ([]*domain.JournalEntry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	ids := page(r.s.journalOrder, limit, offset)
	out := make([]*domain.JournalEntry, 0, len(ids))
	for _, id := range ids {
		out = append(out, cloneEntry(r.s.journals[id]))
	}
	return out, nil
}

// ListBySource returns every entry of a source document in commit order.
func (r *JournalRepository) ListBySource(ctx context.Context, sourceType domain.SourceType, sourceID string) ([]*domain.JournalEntry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]*domain.JournalEntry, 0)
	for _, id := range r.s.journalOrder {
		e := r.s.journals[id]
		if e.SourceType == sourceType && e.SourceID == sourceID {
			out = append(out, cloneEntry(e))
		}
	}
	return out, nil
}

// SequenceRepository implements usecase.SequenceRepository.
type SequenceRepository struct {
	s *Store
}

// NewSequenceRepository creates a new SequenceRepository.
func NewSequenceRepository(s *Store) *SequenceRepository {
	return &SequenceRepository{s: s}
}

// Next locks scope and returns its next value. The increment is published
// only if tx commits, so committed numbers have no gaps.
func (r *SequenceRepository) Next(ctx context.Context, tx usecase.Transaction, scope string) (int64, error) {
	t, err := r.s.tx(tx)
	if err != nil {
		return 0, err
	}
	if err := t.lock(ctx, "seq:"+scope); err != nil {
		return 0, err
	}

	current, ok := t.sequences[scope]
	if !ok {
		r.s.mu.RLock()
		current = r.s.sequences[scope]
		r.s.mu.RUnlock()
	}

	t.sequences[scope] = current + 1
	return current + 1, nil
}

// LedgerRepository implements usecase.LedgerRepository over committed lines.
type LedgerRepository struct {
	s *Store
}

// NewLedgerRepository creates a new LedgerRepository.
func NewLedgerRepository(s *Store) *LedgerRepository {
	return &LedgerRepository{s: s}
}

// CheckConsistency sums every line of every committed entry.
func (r *LedgerRepository) CheckConsistency(ctx context.Context) (decimal.Decimal, decimal.Decimal, error) {
	return r.sum(func(domain.JournalLine) bool { return true })
}

// SumByAccount sums the lines booked to one account.
func (r *LedgerRepository) SumByAccount(ctx context.Context, accountCode string) (decimal.Decimal, decimal.Decimal, error) {
	return r.sum(func(l domain.JournalLine) bool { return l.AccountCode == accountCode })
}

func (r *LedgerRepository) sum(match func(domain.JournalLine) bool) (decimal.Decimal, decimal.Decimal, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	debits, credits := decimal.Zero, decimal.Zero
	for _, e := range r.s.journals {
		for _, l := range e.Lines {
			if match(l) {
				debits = debits.Add(l.DrAmount)
				credits = credits.Add(l.CrAmount)
			}
		}
	}
	return debits, credits, nil
}
