package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	idemDomain "github.com/davicafu/hexapost/internal/idempotency/domain"
	"github.com/davicafu/hexapost/internal/interaction/domain"
)

// MockCounterStore simula el almacén de contadores.
type MockCounterStore struct {
	mock.Mock
}

var _ domain.CounterStore = (*MockCounterStore)(nil)

func (m *MockCounterStore) Increment(ctx context.Context, postID string, field domain.CounterField, eventID string) (int64, error) {
	args := m.Called(ctx, postID, field, eventID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockCounterStore) Get(ctx context.Context, postID string) (*domain.PostCounters, error) {
	args := m.Called(ctx, postID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PostCounters), args.Error(1)
}

// MockIdempotencyStore simula el ledger de dedup.
type MockIdempotencyStore struct {
	mock.Mock
}

var _ idemDomain.Store = (*MockIdempotencyStore)(nil)

func (m *MockIdempotencyStore) TryApply(ctx context.Context, eventID, group string) (idemDomain.Outcome, error) {
	args := m.Called(ctx, eventID, group)
	return args.Get(0).(idemDomain.Outcome), args.Error(1)
}

func (m *MockIdempotencyStore) MarkApplied(ctx context.Context, eventID, group string) error {
	args := m.Called(ctx, eventID, group)
	return args.Error(0)
}

// MockAnalyticsRepo simula el almacén analítico.
type MockAnalyticsRepo struct {
	mock.Mock
}

var _ domain.AnalyticsRepository = (*MockAnalyticsRepo)(nil)

func (m *MockAnalyticsRepo) LogBatch(ctx context.Context, records []domain.InteractionRecord) error {
	args := m.Called(ctx, records)
	return args.Error(0)
}

func (m *MockAnalyticsRepo) GetDailyTrend(ctx context.Context, start, end time.Time) ([]domain.DailyInteractionTrend, error) {
	args := m.Called(ctx, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.DailyInteractionTrend), args.Error(1)
}
