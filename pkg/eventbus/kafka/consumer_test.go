package kafka

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/dukex/flowrun/pkg/eventbus"
)

type fakeReader struct {
	mu        sync.Mutex
	messages  []kafkago.Message
	committed []int64
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafkago.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.messages) == 0 {
		return kafkago.Message{}, io.EOF
	}

	msg := r.messages[0]
	r.messages = r.messages[1:]

	return msg, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafkago.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, msg := range msgs {
		r.committed = append(r.committed, msg.Offset)
	}

	return nil
}

func (r *fakeReader) Close() error { return nil }

type fakeWriter struct {
	messages []kafkago.Message
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	w.messages = append(w.messages, msgs...)

	return nil
}

func (w *fakeWriter) Close() error { return nil }

func newTestConsumer(reader messageReader, handler eventbus.Handler, maxRetries uint64) *consumer {
	return &consumer{
		logger:  slog.New(slog.DiscardHandler),
		reader:  reader,
		tracer:  noop.NewTracerProvider().Tracer("test"),
		handler: handler,
		newBackOff: func() backoff.BackOff {
			return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, maxRetries)
		},
	}
}

func TestConsumer_Decisions(t *testing.T) {
	reader := &fakeReader{messages: []kafkago.Message{
		{Topic: "run-requested", Key: []byte("wf-1"), Value: []byte("commit"), Offset: 1},
		{Topic: "run-requested", Key: []byte("wf-1"), Value: []byte("skip"), Offset: 2},
		{Topic: "run-requested", Key: []byte("wf-1"), Value: []byte("commit"), Offset: 3},
	}}

	var seen []string

	c := newTestConsumer(reader, func(_ context.Context, msg eventbus.Message) eventbus.Decision {
		seen = append(seen, msg.Key+":"+string(msg.Body))

		if string(msg.Body) == "skip" {
			return eventbus.Skip
		}

		return eventbus.Commit
	}, 0)

	c.run(context.Background())

	assert.Equal(t, []string{"wf-1:commit", "wf-1:skip", "wf-1:commit"}, seen)
	assert.Equal(t, []int64{1, 3}, reader.committed)
}

func TestConsumer_RedeliverRetriesSameMessage(t *testing.T) {
	reader := &fakeReader{messages: []kafkago.Message{
		{Topic: "run-requested", Value: []byte("run-1"), Offset: 7},
	}}

	attempts := 0

	c := newTestConsumer(reader, func(_ context.Context, msg eventbus.Message) eventbus.Decision {
		attempts++
		if attempts < 3 {
			return eventbus.Redeliver
		}

		return eventbus.Commit
	}, 5)

	c.run(context.Background())

	assert.Equal(t, 3, attempts)
	assert.Equal(t, []int64{7}, reader.committed)
}

func TestConsumer_RedeliverGivesUpWithoutCommit(t *testing.T) {
	reader := &fakeReader{messages: []kafkago.Message{
		{Topic: "run-requested", Value: []byte("run-1"), Offset: 9},
	}}

	attempts := 0

	c := newTestConsumer(reader, func(context.Context, eventbus.Message) eventbus.Decision {
		attempts++

		return eventbus.Redeliver
	}, 2)

	c.run(context.Background())

	assert.Equal(t, 3, attempts)
	assert.Empty(t, reader.committed)
}

func TestEventBus_PublishSetsKeyAndTopic(t *testing.T) {
	writer := &fakeWriter{}
	bus := &EventBus{logger: slog.New(slog.DiscardHandler), writer: writer}

	err := bus.Publish(context.Background(), "run-requested", "wf-1", []byte(`{"runId":"run-1"}`))
	require.NoError(t, err)

	require.Len(t, writer.messages, 1)
	msg := writer.messages[0]
	assert.Equal(t, "run-requested", msg.Topic)
	assert.Equal(t, "wf-1", string(msg.Key))
	assert.JSONEq(t, `{"runId":"run-1"}`, string(msg.Value))

	var key string
	for _, header := range msg.Headers {
		if header.Key == eventbus.KeyMetadata {
			key = string(header.Value)
		}
	}

	assert.Equal(t, "wf-1", key)
}

func TestNewEventBus(t *testing.T) {
	_, err := NewEventBus(slog.New(slog.DiscardHandler), Config{})
	require.ErrorIs(t, err, ErrNoBrokers)

	bus, err := NewEventBus(slog.New(slog.DiscardHandler), Config{Brokers: ParseBrokers(" localhost:9092, ,localhost:9093")})
	require.NoError(t, err)
	assert.Equal(t, []string{"localhost:9092", "localhost:9093"}, bus.config.Brokers)
	assert.Equal(t, defaultGroupID, bus.config.GroupID)
	assert.Equal(t, time.Minute, bus.config.RedeliverMaxElapsed)
	require.NoError(t, bus.Close())
}
