package memory

import (
	"context"
	"sort"

	"github.com/iho/erpledger/internal/domain"
	"github.com/iho/erpledger/internal/usecase"
)

// StockRepository implements usecase.StockRepository.
type StockRepository struct {
	s *Store
}

// NewStockRepository creates a new StockRepository.
func NewStockRepository(s *Store) *StockRepository {
	return &StockRepository{s: s}
}

func cloneStock(st *domain.Stock) *domain.Stock {
	c := *st
	return &c
}

// GetByMaterialID returns committed stock.
func (r *StockRepository) GetByMaterialID(ctx context.Context, materialID string) (*domain.Stock, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	st, ok := r.s.stocks[materialID]
	if !ok {
		return nil, domain.ErrStockNotFound
	}
	return cloneStock(st), nil
}

// GetForUpdate locks the material and returns its stock, empty if the
// material is unknown.
func (r *StockRepository) GetForUpdate(ctx context.Context, tx usecase.Transaction, materialID string) (*domain.Stock, error) {
	t, err := r.s.tx(tx)
	if err != nil {
		return nil, err
	}
	if err := t.lock(ctx, "stock:"+materialID); err != nil {
		return nil, err
	}

	if st, ok := t.stocks[materialID]; ok {
		return cloneStock(st), nil
	}

	st, err := r.GetByMaterialID(ctx, materialID)
	if err != nil {
		return domain.NewStock(materialID), nil
	}
	return st, nil
}

// Save buffers the new stock state. The caller must hold the material lock.
func (r *StockRepository) Save(ctx context.Context, tx usecase.Transaction, stock *domain.Stock) error {
	t, err := r.s.tx(tx)
	if err != nil {
		return err
	}
	if err := t.lock(ctx, "stock:"+stock.MaterialID); err != nil {
		return err
	}

	t.stocks[stock.MaterialID] = cloneStock(stock)
	return nil
}

// List returns committed stock ordered by material.
func (r *StockRepository) List(ctx context.Context, limit, offset int) ([]*domain.Stock, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	ids := make([]string, 0, len(r.s.stocks))
	for id := range r.s.stocks {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	ids = page(ids, limit, offset)
	out := make([]*domain.Stock, 0, len(ids))
	for _, id := range ids {
		out = append(out, cloneStock(r.s.stocks[id]))
	}
	return out, nil
}

// MovementRepository implements usecase.MovementRepository.
type MovementRepository struct {
	s *Store
}

// NewMovementRepository creates a new MovementRepository.
func NewMovementRepository(s *Store) *MovementRepository {
	return &MovementRepository{s: s}
}

func cloneMovement(m *domain.StockMovement) *domain.StockMovement {
	c := *m
	if m.UnitPrice != nil {
		p := *m.UnitPrice
		c.UnitPrice = &p
	}
	return &c
}

// Create appends a movement.
func (r *MovementRepository) Create(ctx context.Context, tx usecase.Transaction, movement *domain.StockMovement) error {
	t, err := r.s.tx(tx)
	if err != nil {
		return err
	}

	t.movements = append(t.movements, cloneMovement(movement))
	return nil
}

// ListByMaterial returns a material's movements oldest first.
func (r *MovementRepository) ListByMaterial(ctx context.Context, materialID string, limit, offset int) ([]*domain.StockMovement, error) {
	return r.filter(limit, offset, func(m *domain.StockMovement) bool { return m.MaterialID == materialID })
}

// ListByProject returns the movements tagged with a project oldest first.
func (r *MovementRepository) ListByProject(ctx context.Context, projectID string, limit, offset int) ([]*domain.StockMovement, error) {
	return r.filter(limit, offset, func(m *domain.StockMovement) bool { return m.ProjectID == projectID })
}

func (r *MovementRepository) filter(limit, offset int, match func(*domain.StockMovement) bool) ([]*domain.StockMovement, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	matched := make([]*domain.StockMovement, 0)
	for _, m := range r.s.movements {
		if match(m) {
			matched = append(matched, m)
		}
	}

	matched = page(matched, limit, offset)
	out := make([]*domain.StockMovement, 0, len(matched))
	for _, m := range matched {
		out = append(out, cloneMovement(m))
	}
	return out, nil
}
