package eventbus

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/cenkalti/backoff/v4"
	"github.com/dukex/flowrun/pkg/otelhelper"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrBusClosed = errors.New("event bus closed")

	errRedeliver = errors.New("handler asked for redelivery")
)

// DefaultRedeliverMaxElapsed bounds how long a message answered with
// Redeliver is handed back to its handler.
const DefaultRedeliverMaxElapsed = time.Minute

// WatermillEventBus adapts a watermill publisher and subscriber pair.
// Redeliver hands the message back to the handler with an exponential
// backoff until it commits or the backoff gives up; the message is then
// acked. Skip acks it, since watermill has no way to move past a message
// without acknowledging it.
type WatermillEventBus struct {
	logger     *slog.Logger
	publisher  message.Publisher
	subscriber message.Subscriber
	tracer     trace.Tracer
	newBackOff func() backoff.BackOff

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

type WatermillOption func(*WatermillEventBus)

// WithRedeliverBackOff replaces the backoff used between redeliveries.
func WithRedeliverBackOff(newBackOff func() backoff.BackOff) WatermillOption {
	return func(eb *WatermillEventBus) {
		eb.newBackOff = newBackOff
	}
}

func NewWatermillEventBus(logger *slog.Logger, pub message.Publisher, sub message.Subscriber, opts ...WatermillOption) *WatermillEventBus {
	eb := &WatermillEventBus{
		logger:     logger.With("module", "eventbus"),
		publisher:  pub,
		subscriber: sub,
		tracer:     otel.Tracer("flowrun/eventbus"),
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxInterval = 10 * time.Second
			b.MaxElapsedTime = DefaultRedeliverMaxElapsed

			return b
		},
	}

	for _, opt := range opts {
		opt(eb)
	}

	return eb
}

func (eb *WatermillEventBus) GenerateID() string {
	return watermill.NewULID()
}

func (eb *WatermillEventBus) Publish(ctx context.Context, topic, key string, body []byte) error {
	eb.mu.Lock()
	closed := eb.closed
	eb.mu.Unlock()

	if closed {
		return ErrBusClosed
	}

	msg := message.NewMessage("msg-"+eb.GenerateID(), body)
	msg.Metadata.Set(KeyMetadata, key)

	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	for k, v := range carrier {
		msg.Metadata.Set(k, v)
	}

	return eb.publisher.Publish(topic, msg)
}

func (eb *WatermillEventBus) Subscribe(ctx context.Context, topic string, handler Handler) error {
	messages, err := eb.subscriber.Subscribe(ctx, topic)
	if err != nil {
		return err
	}

	eb.wg.Add(1)

	go func() {
		defer eb.wg.Done()

		for msg := range messages {
			eb.handle(ctx, topic, msg, handler)
		}
	}()

	return nil
}

func (eb *WatermillEventBus) handle(ctx context.Context, topic string, msg *message.Message, handler Handler) {
	carrier := propagation.MapCarrier(msg.Metadata)
	msgCtx := otel.GetTextMapPropagator().Extract(ctx, carrier)

	key := msg.Metadata.Get(KeyMetadata)

	msgCtx, span := otelhelper.StartSpan(msgCtx, eb.tracer, topic+" consume",
		attribute.String(otelhelper.MessageKeyKey, key),
		attribute.String(otelhelper.TopicKey, topic),
	)
	defer span.End()

	logger := eb.logger.With("topic", topic, "message_id", msg.UUID)

	attempts := 0

	err := backoff.Retry(func() error {
		attempts++

		decision := handler(msgCtx, Message{
			ID:    msg.UUID,
			Topic: topic,
			Key:   key,
			Body:  msg.Payload,
		})

		logger.DebugContext(msgCtx, "Message handled", "decision", decision.String(), "attempt", attempts)

		if decision == Redeliver {
			return errRedeliver
		}

		return nil
	}, backoff.WithContext(eb.newBackOff(), ctx))
	if err != nil && ctx.Err() != nil {
		msg.Nack()

		return
	}

	if err != nil {
		logger.ErrorContext(msgCtx, "Giving up on message", "attempts", attempts, "error", err)
		otelhelper.SetError(span, err)
	}

	msg.Ack()
}

// Close closes the publisher and the subscriber and waits for the running
// handlers to return.
func (eb *WatermillEventBus) Close() error {
	eb.mu.Lock()
	if eb.closed {
		eb.mu.Unlock()

		return nil
	}

	eb.closed = true
	eb.mu.Unlock()

	pubErr := eb.publisher.Close()
	subErr := eb.subscriber.Close()

	eb.wg.Wait()

	return errors.Join(pubErr, subErr)
}
