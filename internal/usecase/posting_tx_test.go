package usecase_test

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/iho/erpledger/internal/domain"
	"github.com/iho/erpledger/internal/usecase"
	"github.com/iho/erpledger/internal/usecase/mocks"
)

type postingMocks struct {
	txManager *mocks.MockTransactionManager
	tx        *mocks.MockTransaction
	journals  *mocks.MockJournalRepository
	events    *mocks.MockEventRepository
	sequences *mocks.MockSequenceRepository
	items     *mocks.MockOpenItemRepository
	metrics   *mocks.MockMetrics
	retrier   *mocks.MockRetrier
}

func newMockedPosting(t *testing.T) (*usecase.PostingUseCase, *postingMocks) {
	t.Helper()

	ctrl := gomock.NewController(t)
	m := &postingMocks{
		txManager: mocks.NewMockTransactionManager(ctrl),
		tx:        mocks.NewMockTransaction(ctrl),
		journals:  mocks.NewMockJournalRepository(ctrl),
		events:    mocks.NewMockEventRepository(ctrl),
		sequences: mocks.NewMockSequenceRepository(ctrl),
		items:     mocks.NewMockOpenItemRepository(ctrl),
		metrics:   mocks.NewMockMetrics(ctrl),
		retrier:   mocks.NewMockRetrier(ctrl),
	}

	m.retrier.EXPECT().Retry(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, fn func() error) error { return fn() }).
		AnyTimes()

	ids := &counterIDs{}
	openItems := usecase.NewOpenItemUseCase(m.txManager, m.items, nil, nil, ids, m.retrier, m.metrics, zerolog.Nop())

	uc := usecase.NewPostingUseCase(usecase.PostingDeps{
		TxManager:    m.txManager,
		JournalRepo:  m.journals,
		EventRepo:    m.events,
		SequenceRepo: m.sequences,
		OpenItems:    openItems,
		IDGen:        ids,
		Retrier:      m.retrier,
		Metrics:      m.metrics,
		Logger:       zerolog.Nop(),
	})

	return uc, m
}

func TestPost_SequenceFailureRollsBack(t *testing.T) {
	uc, m := newMockedPosting(t)
	dbErr := errors.New("connection reset")

	gomock.InOrder(
		m.txManager.EXPECT().Begin(gomock.Any()).Return(m.tx, nil),
		m.events.EXPECT().GetByIDForUpdate(gomock.Any(), m.tx, "evt-1").Return(nil, domain.ErrEventNotFound),
		m.items.EXPECT().GetBySourceForUpdate(gomock.Any(), m.tx, domain.OpenItemReceivable, "order-1").Return(nil, domain.ErrOpenItemNotFound),
		m.items.EXPECT().Create(gomock.Any(), m.tx, gomock.Any()).Return(nil),
		m.sequences.EXPECT().Next(gomock.Any(), m.tx, gomock.Any()).Return(int64(0), dbErr),
		m.tx.EXPECT().Rollback(gomock.Any()).Return(nil),
	)
	m.metrics.EXPECT().PostingFailed(domain.EventOrderConfirmed, gomock.Any())

	// No Commit and no failure record: an infrastructure error leaves the
	// event untouched so it can be resubmitted.
	_, err := uc.Post(context.Background(), orderConfirmed("evt-1", "order-1", "cust-1", "100"))
	require.ErrorIs(t, err, dbErr)
}

func TestPost_CommitsOnce(t *testing.T) {
	uc, m := newMockedPosting(t)

	var created *domain.JournalEntry
	gomock.InOrder(
		m.txManager.EXPECT().Begin(gomock.Any()).Return(m.tx, nil),
		m.events.EXPECT().GetByIDForUpdate(gomock.Any(), m.tx, "evt-1").Return(nil, domain.ErrEventNotFound),
		m.items.EXPECT().GetBySourceForUpdate(gomock.Any(), m.tx, domain.OpenItemPayable, "po-1").Return(nil, domain.ErrOpenItemNotFound),
		m.items.EXPECT().Create(gomock.Any(), m.tx, gomock.Any()).Return(nil),
		m.sequences.EXPECT().Next(gomock.Any(), m.tx, gomock.Any()).Return(int64(42), nil),
		m.journals.EXPECT().Create(gomock.Any(), m.tx, gomock.Any()).
			DoAndReturn(func(_ context.Context, _ usecase.Transaction, e *domain.JournalEntry) error {
				created = e
				return nil
			}),
		m.events.EXPECT().Save(gomock.Any(), m.tx, gomock.Any()).
			DoAndReturn(func(_ context.Context, _ usecase.Transaction, e *domain.AccountingEvent) error {
				assert.Equal(t, domain.EventStatusPosted, e.Status)
				return nil
			}),
		m.tx.EXPECT().Commit(gomock.Any()).Return(nil),
		m.tx.EXPECT().Rollback(gomock.Any()).Return(nil),
	)
	m.metrics.EXPECT().JournalPosted(domain.EventPOOrdered)

	entry, err := uc.Post(context.Background(), poOrdered("evt-1", "po-1", "sup-1", "250.75"))
	require.NoError(t, err)
	require.Same(t, created, entry)
	assert.Regexp(t, `^JE-\d{6}-000042$`, entry.JournalNo)
	assert.Equal(t, domain.SystemActor, entry.PostedBy)
	assert.Equal(t, "evt-1", entry.EventID)
}

func TestPost_BeginFailure(t *testing.T) {
	uc, m := newMockedPosting(t)
	dbErr := errors.New("pool exhausted")

	m.txManager.EXPECT().Begin(gomock.Any()).Return(nil, dbErr)
	m.metrics.EXPECT().PostingFailed(domain.EventOrderConfirmed, gomock.Any())

	_, err := uc.Post(context.Background(), orderConfirmed("evt-1", "order-1", "cust-1", "100"))
	require.ErrorIs(t, err, dbErr)
}
