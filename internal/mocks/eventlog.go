package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/davicafu/hexapost/internal/eventlog/domain"
	"github.com/davicafu/hexapost/internal/shared/events"
)

// MockPublisher simula el Publisher para los adaptadores de entrada.
type MockPublisher struct {
	mock.Mock
}

var _ domain.EventPublisher = (*MockPublisher)(nil)

func (m *MockPublisher) Publish(ctx context.Context, evt events.Event) (string, error) {
	args := m.Called(ctx, evt)
	return args.String(0), args.Error(1)
}

// MockDeadLetterSink simula el destino de los eventos venenosos.
type MockDeadLetterSink struct {
	mock.Mock
}

var _ domain.DeadLetterSink = (*MockDeadLetterSink)(nil)

func (m *MockDeadLetterSink) Send(ctx context.Context, letter domain.DeadLetter) error {
	args := m.Called(ctx, letter)
	return args.Error(0)
}
