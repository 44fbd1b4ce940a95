package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/dukex/flowrun/pkg/eventbus"
)

// MockEventBus is a mock implementation of eventbus.EventBus interface.
type MockEventBus struct {
	mock.Mock
}

func (m *MockEventBus) Publish(ctx context.Context, topic, key string, body []byte) error {
	args := m.Called(ctx, topic, key, body)

	return args.Error(0)
}

func (m *MockEventBus) Subscribe(ctx context.Context, topic string, handler eventbus.Handler) error {
	args := m.Called(ctx, topic, handler)

	return args.Error(0)
}

func (m *MockEventBus) Close() error {
	args := m.Called()

	return args.Error(0)
}
