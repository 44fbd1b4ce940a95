package outbox

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/dukex/flowrun/pkg/mocks"
	"github.com/dukex/flowrun/pkg/models"
)

func newTestRelay(outbox *mocks.MockOutboxRepository, bus *mocks.MockEventBus) *Relay {
	return NewRelay(slog.New(slog.DiscardHandler), outbox, bus, Config{})
}

func entries() []*models.OutboxEntry {
	now := time.Now()

	return []*models.OutboxEntry{
		{ID: "o-1", RunID: "run-1", CreatedAt: now},
		{ID: "o-2", RunID: "run-2", CreatedAt: now.Add(time.Millisecond)},
	}
}

func TestNewRelay_Defaults(t *testing.T) {
	relay := newTestRelay(&mocks.MockOutboxRepository{}, &mocks.MockEventBus{})

	assert.Equal(t, DefaultPollInterval, relay.config.PollInterval)
	assert.Equal(t, DefaultBatchSize, relay.config.BatchSize)
	assert.Equal(t, "run-ready", relay.config.Topic)
}

func TestRelay_Tick_PublishesThenDeletes(t *testing.T) {
	ctx := context.Background()
	outbox := &mocks.MockOutboxRepository{}
	bus := &mocks.MockEventBus{}

	outbox.On("Pending", ctx, DefaultBatchSize).Return(entries(), nil).Once()
	bus.On("Publish", ctx, "run-ready", "run-1", []byte("run-1")).Return(nil).Once()
	bus.On("Publish", ctx, "run-ready", "run-2", []byte("run-2")).Return(nil).Once()
	outbox.On("DeleteByIDs", ctx, []string{"o-1", "o-2"}).Return(int64(2), nil).Once()

	deleted := newTestRelay(outbox, bus).Tick(ctx)

	assert.Equal(t, 2, deleted)
	outbox.AssertExpectations(t)
	bus.AssertExpectations(t)
}

func TestRelay_Tick_EmptyBatch(t *testing.T) {
	ctx := context.Background()
	outbox := &mocks.MockOutboxRepository{}
	bus := &mocks.MockEventBus{}

	outbox.On("Pending", ctx, DefaultBatchSize).Return([]*models.OutboxEntry{}, nil).Once()

	assert.Zero(t, newTestRelay(outbox, bus).Tick(ctx))
	bus.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	outbox.AssertNotCalled(t, "DeleteByIDs", mock.Anything, mock.Anything)
}

func TestRelay_Tick_PublishFailureKeepsBatch(t *testing.T) {
	ctx := context.Background()
	outbox := &mocks.MockOutboxRepository{}
	bus := &mocks.MockEventBus{}

	outbox.On("Pending", ctx, DefaultBatchSize).Return(entries(), nil).Twice()
	bus.On("Publish", ctx, "run-ready", "run-1", []byte("run-1")).Return(nil).Twice()
	bus.On("Publish", ctx, "run-ready", "run-2", []byte("run-2")).Return(errors.New("broker down")).Once()
	bus.On("Publish", ctx, "run-ready", "run-2", []byte("run-2")).Return(nil).Once()
	outbox.On("DeleteByIDs", ctx, []string{"o-1", "o-2"}).Return(int64(2), nil).Once()

	relay := newTestRelay(outbox, bus)

	assert.Zero(t, relay.Tick(ctx))
	outbox.AssertNotCalled(t, "DeleteByIDs", mock.Anything, mock.Anything)

	assert.Equal(t, 2, relay.Tick(ctx))
	outbox.AssertExpectations(t)
	bus.AssertExpectations(t)
}

func TestRelay_Tick_DeleteFailureRepublishes(t *testing.T) {
	ctx := context.Background()
	outbox := &mocks.MockOutboxRepository{}
	bus := &mocks.MockEventBus{}

	outbox.On("Pending", ctx, DefaultBatchSize).Return(entries()[:1], nil).Twice()
	bus.On("Publish", ctx, "run-ready", "run-1", []byte("run-1")).Return(nil).Twice()
	outbox.On("DeleteByIDs", ctx, []string{"o-1"}).Return(int64(0), errors.New("connection reset")).Once()
	outbox.On("DeleteByIDs", ctx, []string{"o-1"}).Return(int64(1), nil).Once()

	relay := newTestRelay(outbox, bus)

	assert.Zero(t, relay.Tick(ctx))
	assert.Equal(t, 1, relay.Tick(ctx))

	bus.AssertNumberOfCalls(t, "Publish", 2)
	outbox.AssertExpectations(t)
}

func TestRelay_Tick_StoreFailure(t *testing.T) {
	ctx := context.Background()
	outbox := &mocks.MockOutboxRepository{}
	bus := &mocks.MockEventBus{}

	outbox.On("Pending", ctx, DefaultBatchSize).Return(nil, errors.New("timeout")).Once()

	assert.Zero(t, newTestRelay(outbox, bus).Tick(ctx))
	bus.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRelay_Run_StopsOnCancel(t *testing.T) {
	outbox := &mocks.MockOutboxRepository{}
	bus := &mocks.MockEventBus{}

	polled := make(chan struct{}, 1)

	outbox.On("Pending", mock.Anything, 5).Return([]*models.OutboxEntry{}, nil).Run(func(mock.Arguments) {
		select {
		case polled <- struct{}{}:
		default:
		}
	})

	relay := NewRelay(slog.New(slog.DiscardHandler), outbox, bus, Config{PollInterval: 5 * time.Millisecond, BatchSize: 5})

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)

	go func() {
		done <- relay.Run(ctx)
	}()

	select {
	case <-polled:
	case <-time.After(time.Second):
		t.Fatal("relay did not poll")
	}

	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("relay did not stop")
	}
}
