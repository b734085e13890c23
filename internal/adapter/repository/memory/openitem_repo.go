package memory

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/iho/erpledger/internal/domain"
	"github.com/iho/erpledger/internal/usecase"
)

// OpenItemRepository implements usecase.OpenItemRepository.
type OpenItemRepository struct {
	s *Store
}

// NewOpenItemRepository creates a new OpenItemRepository.
func NewOpenItemRepository(s *Store) *OpenItemRepository {
	return &OpenItemRepository{s: s}
}

func openItemKey(kind domain.OpenItemKind, sourceID string) string {
	return string(kind) + "|" + sourceID
}

func cloneItem(o *domain.OpenItem) *domain.OpenItem {
	c := *o
	return &c
}

// Create stores a new item. One item per kind and source.
func (r *OpenItemRepository) Create(ctx context.Context, tx usecase.Transaction, item *domain.OpenItem) error {
	t, err := r.s.tx(tx)
	if err != nil {
		return err
	}

	key := openItemKey(item.Kind, item.SourceID)
	if err := t.lock(ctx, "openitem:"+key); err != nil {
		return err
	}

	if _, ok := t.openItems[key]; ok {
		return domain.ErrOpenItemExists
	}

	r.s.mu.RLock()
	_, exists := r.s.openItems[key]
	r.s.mu.RUnlock()
	if exists {
		return domain.ErrOpenItemExists
	}

	t.openItems[key] = cloneItem(item)
	return nil
}

// GetBySource returns a committed item.
func (r *OpenItemRepository) GetBySource(ctx context.Context, kind domain.OpenItemKind, sourceID string) (*domain.OpenItem, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	item, ok := r.s.openItems[openItemKey(kind, sourceID)]
	if !ok {
		return nil, domain.ErrOpenItemNotFound
	}
	return cloneItem(item), nil
}

// GetBySourceForUpdate locks the source's key even when no item exists yet,
// so concurrent opens for one source serialize.
func (r *OpenItemRepository) GetBySourceForUpdate(ctx context.Context, tx usecase.Transaction, kind domain.OpenItemKind, sourceID string) (*domain.OpenItem, error) {
	t, err := r.s.tx(tx)
	if err != nil {
		return nil, err
	}

	key := openItemKey(kind, sourceID)
	if err := t.lock(ctx, "openitem:"+key); err != nil {
		return nil, err
	}

	if item, ok := t.openItems[key]; ok {
		return cloneItem(item), nil
	}
	return r.GetBySource(ctx, kind, sourceID)
}

// UpdateBalance buffers the settled item.
func (r *OpenItemRepository) UpdateBalance(ctx context.Context, tx usecase.Transaction, item *domain.OpenItem) error {
	if _, err := r.GetBySourceForUpdate(ctx, tx, item.Kind, item.SourceID); err != nil {
		return err
	}

	t, _ := r.s.tx(tx)
	t.openItems[openItemKey(item.Kind, item.SourceID)] = cloneItem(item)
	return nil
}

// ListByParty returns a party's items in creation order.
func (r *OpenItemRepository) ListByParty(ctx context.Context, kind domain.OpenItemKind, partyID string) ([]*domain.OpenItem, error) {
	return r.filter(0, 0, func(o *domain.OpenItem) bool { return o.Kind == kind && o.PartyID == partyID })
}

// List returns a page of items of one kind in creation order.
func (r *OpenItemRepository) List(ctx context.Context, kind domain.OpenItemKind, limit, offset int) ([]*domain.OpenItem, error) {
	return r.filter(limit, offset, func(o *domain.OpenItem) bool { return o.Kind == kind })
}

// SumOutstanding totals non-closed balances.
func (r *OpenItemRepository) SumOutstanding(ctx context.Context, kind domain.OpenItemKind, partyID string) (decimal.Decimal, error) {
	items, err := r.filter(0, 0, func(o *domain.OpenItem) bool {
		return o.Kind == kind && o.IsOutstanding() && (partyID == "" || o.PartyID == partyID)
	})
	if err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, o := range items {
		total = total.Add(o.BalanceAmount)
	}
	return total, nil
}

func (r *OpenItemRepository) filter(limit, offset int, match func(*domain.OpenItem) bool) ([]*domain.OpenItem, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	matched := make([]*domain.OpenItem, 0)
	for _, key := range r.s.openOrder {
		if o := r.s.openItems[key]; match(o) {
			matched = append(matched, cloneItem(o))
		}
	}
	return page(matched, limit, offset), nil
}
