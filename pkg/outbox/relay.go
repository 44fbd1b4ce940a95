// Package outbox moves committed outbox entries onto the bus.
package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/dukex/flowrun/pkg/eventbus"
	"github.com/dukex/flowrun/pkg/events"
	"github.com/dukex/flowrun/pkg/metrics"
	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/persistence"
)

const (
	DefaultPollInterval = time.Second
	DefaultBatchSize    = 10
)

// Failure kinds reported by the relay.
const (
	FailureStore   = "store"
	FailurePublish = "publish"
)

type Config struct {
	PollInterval time.Duration
	BatchSize    int
	Topic        string
}

// Relay polls the outbox and publishes a run-ready notice per entry. A
// batch is deleted only after every entry in it was published.
type Relay struct {
	logger    *slog.Logger
	outbox    persistence.OutboxRepository
	publisher eventbus.Publisher
	config    Config
}

func NewRelay(logger *slog.Logger, outbox persistence.OutboxRepository, publisher eventbus.Publisher, config Config) *Relay {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}

	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}

	if config.Topic == "" {
		config.Topic = events.RunReadyTopic
	}

	return &Relay{
		logger:    logger.With("module", "outbox_relay"),
		outbox:    outbox,
		publisher: publisher,
		config:    config,
	}
}

// Run polls until ctx is cancelled. Failures are logged and retried on the
// next tick.
func (r *Relay) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "Starting outbox relay",
		"poll_interval", r.config.PollInterval,
		"batch_size", r.config.BatchSize,
		"topic", r.config.Topic,
	)

	ticker := time.NewTicker(r.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "Stopping outbox relay")

			return ctx.Err()
		case <-ticker.C:
			r.Tick(ctx)
		}
	}
}

// Tick runs one relay cycle and returns the number of entries deleted.
func (r *Relay) Tick(ctx context.Context) int {
	entries, err := r.outbox.Pending(ctx, r.config.BatchSize)
	if err != nil {
		r.fail(ctx, FailureStore, "Failed to load pending outbox entries", err)

		return 0
	}

	if len(entries) == 0 {
		return 0
	}

	for _, entry := range entries {
		if err := r.publish(ctx, entry); err != nil {
			r.fail(ctx, FailurePublish, "Failed to publish outbox entry", err,
				"outbox_id", entry.ID,
				"run_id", entry.RunID,
			)

			return 0
		}
	}

	ids := make([]string, len(entries))
	for i, entry := range entries {
		ids[i] = entry.ID
	}

	deleted, err := r.outbox.DeleteByIDs(ctx, ids)
	if err != nil {
		r.fail(ctx, FailureStore, "Failed to delete published outbox entries", err, "count", len(ids))

		return 0
	}

	metrics.OutboxPublishedTotal.Add(float64(deleted))
	r.logger.DebugContext(ctx, "Relayed outbox entries", "count", deleted)

	return int(deleted)
}

func (r *Relay) publish(ctx context.Context, entry *models.OutboxEntry) error {
	return r.publisher.Publish(ctx, r.config.Topic, entry.RunID, []byte(entry.RunID))
}

func (r *Relay) fail(ctx context.Context, kind, msg string, err error, args ...any) {
	metrics.OutboxFailuresTotal.WithLabelValues(kind).Inc()
	r.logger.ErrorContext(ctx, msg, append([]any{"kind", kind, "error", err}, args...)...)
}
