// Package memory is a transactional in-process store. Rows read "for update"
// are locked per key until the transaction commits or rolls back, which gives
// the same per-entity serialization as SELECT ... FOR UPDATE in PostgreSQL.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/iho/erpledger/internal/domain"
	"github.com/iho/erpledger/internal/usecase"
)

var (
	errTxDone       = errors.New("memory: transaction already finished")
	errForeignTx    = errors.New("memory: transaction does not belong to this store")
	errDuplicateRow = errors.New("memory: duplicate key")
)

// Store holds committed state.
type Store struct {
	mu    sync.RWMutex
	locks *keyLocks

	journals     map[string]*domain.JournalEntry
	journalOrder []string
	stocks       map[string]*domain.Stock
	movements    []*domain.StockMovement
	openItems    map[string]*domain.OpenItem
	openOrder    []string
	events       map[string]*domain.AccountingEvent
	eventOrder   []string
	sequences    map[string]int64
	outbox       []*domain.OutboxEvent
	audit        []*domain.AuditLog
}

// New creates an empty store.
func New() *Store {
	return &Store{
		locks:     &keyLocks{locks: make(map[string]chan struct{})},
		journals:  make(map[string]*domain.JournalEntry),
		stocks:    make(map[string]*domain.Stock),
		openItems: make(map[string]*domain.OpenItem),
		events:    make(map[string]*domain.AccountingEvent),
		sequences: make(map[string]int64),
	}
}

// Begin starts a transaction. It implements usecase.TransactionManager.
func (s *Store) Begin(ctx context.Context) (usecase.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &Tx{
		store:     s,
		held:      make(map[string]bool),
		journals:  make(map[string]*domain.JournalEntry),
		stocks:    make(map[string]*domain.Stock),
		openItems: make(map[string]*domain.OpenItem),
		events:    make(map[string]*domain.AccountingEvent),
		sequences: make(map[string]int64),
	}, nil
}

// Tx buffers writes until Commit. Reads through a Tx see its own writes.
type Tx struct {
	store *Store
	done  bool

	held      map[string]bool
	heldOrder []string

	journals     map[string]*domain.JournalEntry
	journalOrder []string
	stocks       map[string]*domain.Stock
	openItems    map[string]*domain.OpenItem
	events       map[string]*domain.AccountingEvent
	sequences    map[string]int64
	movements    []*domain.StockMovement
	outbox       []*domain.OutboxEvent
	audit        []*domain.AuditLog
}

// Commit publishes buffered writes atomically and releases all locks.
func (t *Tx) Commit(ctx context.Context) error {
	if t.done {
		return errTxDone
	}
	t.done = true
	defer t.release()

	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range t.journalOrder {
		if _, ok := s.journals[id]; !ok {
			s.journalOrder = append(s.journalOrder, id)
		}
	}
	for id, e := range t.journals {
		s.journals[id] = e
	}
	for id, st := range t.stocks {
		s.stocks[id] = st
	}
	for key, item := range t.openItems {
		if _, ok := s.openItems[key]; !ok {
			s.openOrder = append(s.openOrder, key)
		}
		s.openItems[key] = item
	}
	for id, ev := range t.events {
		if _, ok := s.events[id]; !ok {
			s.eventOrder = append(s.eventOrder, id)
		}
		s.events[id] = ev
	}
	for scope, v := range t.sequences {
		s.sequences[scope] = v
	}
	s.movements = append(s.movements, t.movements...)
	s.outbox = append(s.outbox, t.outbox...)
	s.audit = append(s.audit, t.audit...)

	return nil
}

// Rollback discards buffered writes and releases all locks. It is a no-op
// after Commit.
func (t *Tx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	t.release()
	return nil
}

func (t *Tx) lock(ctx context.Context, key string) error {
	if t.done {
		return errTxDone
	}
	if t.held[key] {
		return nil
	}

	if err := t.store.locks.lock(ctx, key); err != nil {
		return err
	}

	t.held[key] = true
	t.heldOrder = append(t.heldOrder, key)
	return nil
}

func (t *Tx) release() {
	for i := len(t.heldOrder) - 1; i >= 0; i-- {
		t.store.locks.unlock(t.heldOrder[i])
	}
	t.held = nil
	t.heldOrder = nil
}

func (s *Store) tx(tx usecase.Transaction) (*Tx, error) {
	t, ok := tx.(*Tx)
	if !ok || t.store != s {
		return nil, errForeignTx
	}
	if t.done {
		return nil, errTxDone
	}
	return t, nil
}

// keyLocks is a set of context-aware mutexes created on demand.
type keyLocks struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func (l *keyLocks) lock(ctx context.Context, key string) error {
	for {
		l.mu.Lock()
		ch, held := l.locks[key]
		if !held {
			l.locks[key] = make(chan struct{})
			l.mu.Unlock()
			return nil
		}
		l.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (l *keyLocks) unlock(key string) {
	l.mu.Lock()
	ch, ok := l.locks[key]
	delete(l.locks, key)
	l.mu.Unlock()

	if ok {
		close(ch)
	}
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}
