// Package router turns trigger events into runs and hands them to the executors.
package router

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/dukex/flowrun/pkg/eventbus"
	"github.com/dukex/flowrun/pkg/events"
	"github.com/dukex/flowrun/pkg/metrics"
	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/payload"
	"github.com/dukex/flowrun/pkg/persistence"
)

type Router struct {
	logger    *slog.Logger
	runs      persistence.RunRepository
	publisher eventbus.Publisher
	validate  *validator.Validate
	topics    events.Topics
	now       func() time.Time
}

func NewRouter(logger *slog.Logger, runs persistence.RunRepository, publisher eventbus.Publisher, topics events.Topics) *Router {
	return &Router{
		logger:    logger.With("module", "router"),
		runs:      runs,
		publisher: publisher,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		topics:    topics,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Subscribe attaches the router to the trigger-event and run-ready topics.
func (r *Router) Subscribe(ctx context.Context, subscriber eventbus.Subscriber) error {
	if err := subscriber.Subscribe(ctx, r.topics.TriggerEvent, r.HandleTriggerEvent); err != nil {
		return err
	}

	return subscriber.Subscribe(ctx, r.topics.RunReady, r.HandleRunReady)
}

// HandleTriggerEvent creates a run for the event, marks it running and asks
// for its execution. Every failure is logged and the message is committed;
// there is no retry at the message level.
func (r *Router) HandleTriggerEvent(ctx context.Context, msg eventbus.Message) eventbus.Decision {
	logger := r.logger.With("topic", msg.Topic, "message_id", msg.ID)

	event, err := events.DecodeTriggerEvent(msg.Body)
	if err != nil {
		logger.ErrorContext(ctx, "Dropping undecodable trigger event", "error", err)
		metrics.TriggerEventsTotal.WithLabelValues("", "malformed").Inc()

		return eventbus.Commit
	}

	logger = logger.With("workflow_id", event.WorkflowID, "trigger", event.Trigger)

	if err := r.validate.Struct(event); err != nil {
		logger.ErrorContext(ctx, "Dropping invalid trigger event", "error", err)
		metrics.TriggerEventsTotal.WithLabelValues(string(event.Trigger), "invalid").Inc()

		return eventbus.Commit
	}

	metaData := event.Payload
	if metaData.IsNull() {
		metaData = payload.Object()
	}

	now := r.now()
	run := &models.Run{
		ID:         models.NewID(),
		WorkflowID: event.WorkflowID,
		MetaData:   metaData,
		Status:     models.RunStatusCreated,
		CreatedAt:  now,
	}

	logger = logger.With("run_id", run.ID)

	if err := r.runs.Create(ctx, run); err != nil {
		logger.ErrorContext(ctx, "Failed to create run", "error", err)
		metrics.TriggerEventsTotal.WithLabelValues(string(event.Trigger), "store_failure").Inc()

		return eventbus.Commit
	}

	if err := r.start(ctx, run.ID, run.WorkflowID, now); err != nil {
		logger.ErrorContext(ctx, "Failed to start run", "error", err)
		metrics.TriggerEventsTotal.WithLabelValues(string(event.Trigger), "failure").Inc()

		return eventbus.Commit
	}

	logger.InfoContext(ctx, "Run requested")
	metrics.TriggerEventsTotal.WithLabelValues(string(event.Trigger), "routed").Inc()

	return eventbus.Commit
}

// HandleRunReady starts runs that were enqueued through the outbox. A run
// that is still running is requested again, since an earlier publish may have
// failed after the transition. Terminal runs are duplicates and are committed.
func (r *Router) HandleRunReady(ctx context.Context, msg eventbus.Message) eventbus.Decision {
	logger := r.logger.With("topic", msg.Topic, "message_id", msg.ID)

	runID, err := events.DecodeRunReady(msg.Body)
	if err != nil {
		logger.WarnContext(ctx, "Skipping empty run-ready notice")

		return eventbus.Skip
	}

	logger = logger.With("run_id", runID)

	run, err := r.runs.GetByID(ctx, runID)
	if err != nil {
		if persistence.IsRunNotFound(err) {
			logger.WarnContext(ctx, "Skipping run-ready notice for unknown run")

			return eventbus.Skip
		}

		logger.ErrorContext(ctx, "Failed to load run", "error", err)

		return eventbus.Redeliver
	}

	logger = logger.With("workflow_id", run.WorkflowID)

	switch {
	case run.Status.IsTerminal():
		logger.InfoContext(ctx, "Ignoring run-ready notice for finished run", "status", run.Status)

		return eventbus.Commit
	case run.Status == models.RunStatusRunning:
		err = r.request(ctx, run.ID, run.WorkflowID)
	default:
		err = r.start(ctx, run.ID, run.WorkflowID, r.now())
	}

	switch {
	case err == nil:
		logger.InfoContext(ctx, "Run requested")
	case persistence.IsInvalidRunTransition(err):
		logger.InfoContext(ctx, "Run was started concurrently")
	case persistence.IsRunNotFound(err):
		logger.WarnContext(ctx, "Run disappeared before start")

		return eventbus.Skip
	default:
		logger.ErrorContext(ctx, "Failed to request run", "error", err)

		return eventbus.Redeliver
	}

	return eventbus.Commit
}

func (r *Router) start(ctx context.Context, runID, workflowID string, startedAt time.Time) error {
	if err := r.runs.MarkRunning(ctx, runID, startedAt); err != nil {
		return err
	}

	return r.request(ctx, runID, workflowID)
}

func (r *Router) request(ctx context.Context, runID, workflowID string) error {
	return eventbus.PublishJSON(ctx, r.publisher, r.topics.RunRequested, workflowID, events.RunRequested{RunID: runID})
}
