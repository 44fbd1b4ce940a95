// Package executor runs the action chain of a run.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dukex/flowrun/pkg/eventbus"
	"github.com/dukex/flowrun/pkg/events"
	flowlog "github.com/dukex/flowrun/pkg/log"
	"github.com/dukex/flowrun/pkg/metrics"
	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/otelhelper"
	"github.com/dukex/flowrun/pkg/payload"
	"github.com/dukex/flowrun/pkg/persistence"
	"github.com/dukex/flowrun/pkg/protocol"
	"github.com/dukex/flowrun/pkg/template"
)

const DefaultActionTimeout = 30 * time.Second

// ActionLookup resolves an action type name to its handler.
type ActionLookup interface {
	LookupName(name string) (protocol.ActionHandler, error)
}

type Config struct {
	ActionTimeout time.Duration
	// WorkerID tags run spans with the worker that executed them.
	WorkerID string
}

type Executor struct {
	logger  *slog.Logger
	runs    persistence.RunRepository
	actions ActionLookup
	tracer  trace.Tracer
	config  Config
	now     func() time.Time
}

func NewExecutor(logger *slog.Logger, runs persistence.RunRepository, actions ActionLookup, config Config) *Executor {
	if config.ActionTimeout <= 0 {
		config.ActionTimeout = DefaultActionTimeout
	}

	return &Executor{
		logger:  logger.With("module", "executor"),
		runs:    runs,
		actions: actions,
		tracer:  otel.Tracer("flowrun/executor"),
		config:  config,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (e *Executor) Subscribe(ctx context.Context, subscriber eventbus.Subscriber, topic string) error {
	return subscriber.Subscribe(ctx, topic, e.HandleRunRequested)
}

// HandleRunRequested executes the run named in msg and tells the transport
// whether to commit it.
func (e *Executor) HandleRunRequested(ctx context.Context, msg eventbus.Message) eventbus.Decision {
	logger := e.logger.With("topic", msg.Topic, "offset", msg.Offset, "message_id", msg.ID)

	requested, err := events.DecodeRunRequested(msg.Body)
	if err != nil {
		metrics.ExecutorErrorsTotal.WithLabelValues(string(KindMalformedMessage)).Inc()
		logger.ErrorContext(ctx, "Skipping malformed run request", "error", err)

		return Decide(&Error{Kind: KindMalformedMessage, Err: err})
	}

	_, err = e.Execute(ctx, requested.RunID)
	if err != nil {
		metrics.ExecutorErrorsTotal.WithLabelValues(string(KindOf(err))).Inc()
		logger.ErrorContext(ctx, "Run did not complete", "run_id", requested.RunID, "error", err)
	}

	return Decide(err)
}

// Decide maps an Execute result to a transport decision.
func Decide(err error) eventbus.Decision {
	switch KindOf(err) {
	case KindMalformedMessage:
		return eventbus.Skip
	case KindRunNotFound, KindStoreFailure:
		return eventbus.Redeliver
	default:
		return eventbus.Commit
	}
}

// Execute loads the run and invokes its actions in order. After every action
// the payload becomes {"prev": <payload>, "action": <result>}. The final or
// partial payload is recorded on the run and returned.
func (e *Executor) Execute(ctx context.Context, runID string) (payload.Value, error) {
	attrs := []attribute.KeyValue{attribute.String(otelhelper.RunIDKey, runID)}
	if e.config.WorkerID != "" {
		attrs = append(attrs, attribute.String(otelhelper.WorkerIDKey, e.config.WorkerID))
	}

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "run", attrs...)
	defer span.End()

	p, err := e.execute(ctx, span, runID)
	if err != nil {
		otelhelper.SetError(span, err)
	}

	return p, err
}

func (e *Executor) execute(ctx context.Context, span trace.Span, runID string) (payload.Value, error) {
	logger := e.logger.With("run_id", runID)

	chain, err := e.runs.GetWithChain(ctx, runID)
	if err != nil {
		if persistence.IsRunNotFound(err) || persistence.IsWorkflowNotFound(err) {
			return payload.Null(), &Error{Kind: KindRunNotFound, RunID: runID, Err: err}
		}

		return payload.Null(), &Error{Kind: KindStoreFailure, RunID: runID, Err: err}
	}

	span.SetAttributes(attribute.String(otelhelper.WorkflowIDKey, chain.Run.WorkflowID))

	logger = logger.With("workflow_id", chain.Run.WorkflowID)
	ctx = flowlog.WithLogger(ctx, logger)

	logger.InfoContext(ctx, "Executing run", "actions", len(chain.Actions))

	p := chain.Run.MetaData

	for i, action := range chain.Actions {
		actionLogger := logger.With("action_id", action.ID, "action_type", action.TypeName, "action_index", i)

		handler, err := e.actions.LookupName(action.TypeName)
		if err != nil {
			actionLogger.ErrorContext(ctx, "Action type not registered", "error", err)
			metrics.ActionsTotal.WithLabelValues(action.TypeName, "not_registered").Inc()
			e.finish(ctx, logger, runID, models.RunStatusFailed, p, models.RunErrorActionNotFound)

			return p, &Error{Kind: KindActionNotRegistered, RunID: runID, Err: err}
		}

		result, err := e.invoke(flowlog.WithLogger(ctx, actionLogger), actionLogger, handler, runID, action, i, p)
		if err != nil {
			e.finish(ctx, logger, runID, models.RunStatusFailed, p, err.Error())

			return p, &Error{Kind: KindHandlerFailure, RunID: runID, Err: fmt.Errorf("action %s (%s): %w", action.ID, action.TypeName, err)}
		}

		p = payload.Nest(p, result)
	}

	e.finish(ctx, logger, runID, models.RunStatusCompleted, p, "")

	return p, nil
}

func (e *Executor) invoke(
	ctx context.Context,
	logger *slog.Logger,
	handler protocol.ActionHandler,
	runID string,
	action *models.Action,
	index int,
	p payload.Value,
) (payload.Value, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "action "+action.TypeName,
		attribute.String(otelhelper.RunIDKey, runID),
		attribute.String(otelhelper.ActionIDKey, action.ID),
		attribute.String(otelhelper.ActionTypeKey, action.TypeName),
		attribute.Int(otelhelper.ActionIndexKey, index),
	)
	defer span.End()

	config := template.ResolveConfig(action.Config, p)
	if unresolved := template.Unresolved(config); len(unresolved) > 0 {
		logger.DebugContext(ctx, "Config keeps unresolved placeholders", "placeholders", unresolved)
	}

	ctx, cancel := context.WithTimeout(ctx, e.config.ActionTimeout)
	defer cancel()

	start := time.Now()
	result, err := call(ctx, handler, config, p)
	elapsed := time.Since(start)

	metrics.ActionDuration.WithLabelValues(action.TypeName).Observe(elapsed.Seconds())

	if err != nil {
		metrics.ActionsTotal.WithLabelValues(action.TypeName, "failed").Inc()
		otelhelper.SetError(span, err)
		logger.ErrorContext(ctx, "Action failed", "error", err, "duration", elapsed)

		return payload.Null(), err
	}

	metrics.ActionsTotal.WithLabelValues(action.TypeName, "succeeded").Inc()
	logger.DebugContext(ctx, "Action completed", "duration", elapsed)

	return result, nil
}

type callResult struct {
	value payload.Value
	err   error
}

// call invokes the handler and gives up when ctx is done, even if the
// handler ignores ctx.
func call(ctx context.Context, handler protocol.ActionHandler, config map[string]any, p payload.Value) (payload.Value, error) {
	done := make(chan callResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- callResult{err: fmt.Errorf("action panicked: %v", r)}
			}
		}()

		value, err := handler.Invoke(ctx, config, p)
		done <- callResult{value: value, err: err}
	}()

	select {
	case res := <-done:
		return res.value, res.err
	case <-ctx.Done():
		return payload.Null(), ctx.Err()
	}
}

func (e *Executor) finish(ctx context.Context, logger *slog.Logger, runID string, status models.RunStatus, p payload.Value, reason string) {
	err := e.runs.Finish(ctx, runID, persistence.RunOutcome{
		Status:     status,
		Result:     p,
		Error:      reason,
		FinishedAt: e.now(),
	})

	switch {
	case err == nil:
		metrics.RunsTotal.WithLabelValues(string(status)).Inc()
		logger.InfoContext(ctx, "Run finished", "status", status)
	case persistence.IsInvalidRunTransition(err):
		logger.WarnContext(ctx, "Run was already finished", "status", status)
	default:
		logger.ErrorContext(ctx, "Failed to record run outcome", "status", status, "error", err)
	}
}
