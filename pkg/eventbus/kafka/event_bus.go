// Package kafka provides an event bus on Apache Kafka with manual offset commits.
package kafka

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/dukex/flowrun/pkg/eventbus"
)

var ErrNoBrokers = errors.New("no Kafka brokers configured")

const defaultGroupID = "cg-flowrun"

type Config struct {
	Brokers []string
	GroupID string
	// RedeliverMaxElapsed bounds how long a message answered with Redeliver
	// is retried before the consumer moves on without committing it.
	RedeliverMaxElapsed time.Duration
}

// ParseBrokers splits a comma separated broker list.
func ParseBrokers(brokers string) []string {
	var out []string

	for _, broker := range strings.Split(brokers, ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			out = append(out, broker)
		}
	}

	return out
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

type EventBus struct {
	logger     *slog.Logger
	config     Config
	writer     messageWriter
	tracer     trace.Tracer
	newReader  func(topic string) messageReader
	newBackOff func() backoff.BackOff

	mu      sync.Mutex
	readers []messageReader
	wg      sync.WaitGroup
}

func NewEventBus(logger *slog.Logger, config Config) (*EventBus, error) {
	if len(config.Brokers) == 0 {
		return nil, ErrNoBrokers
	}

	if config.GroupID == "" {
		config.GroupID = defaultGroupID
	}

	if config.RedeliverMaxElapsed <= 0 {
		config.RedeliverMaxElapsed = time.Minute
	}

	writer := &kafkago.Writer{
		Addr:                   kafkago.TCP(config.Brokers...),
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}

	bus := &EventBus{
		logger: logger.With("module", "kafka_event_bus"),
		config: config,
		writer: writer,
		tracer: otel.Tracer("flowrun/eventbus/kafka"),
		newReader: func(topic string) messageReader {
			return kafkago.NewReader(kafkago.ReaderConfig{
				Brokers: config.Brokers,
				GroupID: config.GroupID,
				Topic:   topic,
			})
		},
	}

	bus.newBackOff = func() backoff.BackOff {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = 200 * time.Millisecond
		b.MaxInterval = 10 * time.Second
		b.MaxElapsedTime = bus.config.RedeliverMaxElapsed

		return b
	}

	return bus, nil
}

func (k *EventBus) Publish(ctx context.Context, topic, key string, body []byte) error {
	return publishMessage(ctx, k.logger, k.writer, topic, key, body)
}

func (k *EventBus) Subscribe(ctx context.Context, topic string, handler eventbus.Handler) error {
	k.logger.InfoContext(ctx, "Subscribing to topic", "topic", topic, "group_id", k.config.GroupID)

	reader := k.newReader(topic)

	k.mu.Lock()
	k.readers = append(k.readers, reader)
	k.mu.Unlock()

	c := &consumer{
		logger:     k.logger.With("topic", topic),
		reader:     reader,
		tracer:     k.tracer,
		handler:    handler,
		newBackOff: k.newBackOff,
	}

	k.wg.Add(1)

	go func() {
		defer k.wg.Done()

		c.run(ctx)
	}()

	return nil
}

func (k *EventBus) Close() error {
	k.logger.Info("Closing Kafka event bus")

	var errs []error

	k.mu.Lock()
	for _, reader := range k.readers {
		if err := reader.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	k.readers = nil
	k.mu.Unlock()

	k.wg.Wait()

	if err := k.writer.Close(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}
