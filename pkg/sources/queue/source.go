// Package queue provides a redis list trigger source.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	redis "github.com/redis/go-redis/v9"

	"github.com/dukex/flowrun/pkg/metrics"
	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/payload"
	"github.com/dukex/flowrun/pkg/protocol"
)

const (
	DefaultQueue      = "flowrun:triggers"
	DefaultPopTimeout = time.Second

	sourceName = "queue"
)

var ErrQueueRequired = errors.New("queue source queue name is required")

// Item is the JSON document expected on the list.
type Item struct {
	WorkflowID string        `json:"workflowId" validate:"required"`
	Payload    payload.Value `json:"payload"`
}

type Config struct {
	Addr     string
	Password string
	DB       int
}

// NewClient connects to redis and checks the connection.
func NewClient(ctx context.Context, config Config) (*redis.Client, error) {
	addr := config.Addr
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: config.Password,
		DB:       config.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}

// Source pops trigger items from a redis list with BLPOP and fires them as
// queue trigger events. An item whose publish fails is pushed back to the
// head of the list.
type Source struct {
	client     redis.UniversalClient
	queue      string
	popTimeout time.Duration
	validate   *validator.Validate
	logger     *slog.Logger

	callback protocol.TriggerCallback
	mu       sync.Mutex
	started  bool
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

var _ protocol.Source = (*Source)(nil)

func NewSource(client redis.UniversalClient, queue string, logger *slog.Logger) (*Source, error) {
	if queue == "" {
		return nil, ErrQueueRequired
	}

	return &Source{
		client:     client,
		queue:      queue,
		popTimeout: DefaultPopTimeout,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		logger: logger.With(
			"module", "queue_source",
			"queue", queue,
		),
	}, nil
}

func (s *Source) Start(ctx context.Context, callback protocol.TriggerCallback) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.callback = callback
	s.stopCh = make(chan struct{})
	s.started = true

	s.wg.Add(1)

	go s.consume(ctx)

	s.logger.InfoContext(ctx, "Queue source started")

	return nil
}

func (s *Source) consume(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		if err := s.processMessage(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}

			s.logger.ErrorContext(ctx, "Error processing message", "error", err)

			select {
			case <-s.stopCh:
				return
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
		}
	}
}

func (s *Source) processMessage(ctx context.Context) error {
	result, err := s.client.BLPop(ctx, s.popTimeout, s.queue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}

		return fmt.Errorf("failed to pop message from queue: %w", err)
	}

	if len(result) < 2 {
		return nil
	}

	message := result[1]

	var item Item
	if err := json.Unmarshal([]byte(message), &item); err != nil {
		s.logger.WarnContext(ctx, "Dropping malformed queue item", "error", err)
		metrics.SourceEventsTotal.WithLabelValues(sourceName, "malformed").Inc()

		return nil
	}

	if err := s.validate.Struct(item); err != nil {
		s.logger.WarnContext(ctx, "Dropping invalid queue item", "error", err)
		metrics.SourceEventsTotal.WithLabelValues(sourceName, "malformed").Inc()

		return nil
	}

	if err := s.callback(ctx, item.WorkflowID, models.TriggerTypeQueue, item.Payload); err != nil {
		metrics.SourceEventsTotal.WithLabelValues(sourceName, "failed").Inc()

		if pushErr := s.client.LPush(context.WithoutCancel(ctx), s.queue, message).Err(); pushErr != nil {
			return errors.Join(fmt.Errorf("publish trigger event for workflow %s: %w", item.WorkflowID, err),
				fmt.Errorf("requeue item: %w", pushErr))
		}

		return fmt.Errorf("publish trigger event for workflow %s: %w", item.WorkflowID, err)
	}

	metrics.SourceEventsTotal.WithLabelValues(sourceName, "published").Inc()
	s.logger.DebugContext(ctx, "Fired queue trigger", "workflow_id", item.WorkflowID)

	return nil
}

// Stop waits for the consumer to return. The redis client is owned by the caller.
func (s *Source) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	close(s.stopCh)
	s.wg.Wait()
	s.started = false

	s.logger.InfoContext(ctx, "Queue source stopped")

	return nil
}
