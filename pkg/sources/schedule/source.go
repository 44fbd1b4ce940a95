// Package schedule provides a cron trigger source for workflows bound to
// schedule triggers.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dukex/flowrun/pkg/metrics"
	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/payload"
	"github.com/dukex/flowrun/pkg/persistence"
	"github.com/dukex/flowrun/pkg/protocol"
)

const (
	// CronConfigKey is the trigger config field holding the cron expression.
	CronConfigKey = "cron"

	DefaultReloadInterval = time.Minute

	sourceName = "schedule"
)

var ErrCronRequired = errors.New("schedule trigger cron expression is required")

// CronExpression returns the validated cron expression of a schedule trigger.
func CronExpression(trigger *models.Trigger) (string, error) {
	if trigger == nil {
		return "", ErrCronRequired
	}

	expr, _ := trigger.Config[CronConfigKey].(string)
	if expr == "" {
		return "", ErrCronRequired
	}

	if _, err := cron.ParseStandard(expr); err != nil {
		return "", fmt.Errorf("invalid cron expression: %w", err)
	}

	return expr, nil
}

type entry struct {
	expr string
	id   cron.EntryID
}

// Source runs one cron job per workflow with a schedule trigger. The
// workflow list is reloaded periodically so created and deleted workflows
// are picked up without a restart.
type Source struct {
	workflows      persistence.WorkflowRepository
	logger         *slog.Logger
	reloadInterval time.Duration
	now            func() time.Time

	cron     *cron.Cron
	callback protocol.TriggerCallback
	mu       sync.Mutex
	entries  map[string]entry
	started  bool
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

var _ protocol.Source = (*Source)(nil)

func NewSource(workflows persistence.WorkflowRepository, reloadInterval time.Duration, logger *slog.Logger) *Source {
	if reloadInterval <= 0 {
		reloadInterval = DefaultReloadInterval
	}

	logger = logger.With("module", "schedule_source")
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelWarn))

	return &Source{
		workflows:      workflows,
		logger:         logger,
		reloadInterval: reloadInterval,
		now:            func() time.Time { return time.Now().UTC() },
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cronLogger),
			cron.Recover(cronLogger),
		)),
		entries: make(map[string]entry),
	}
}

func (s *Source) Start(ctx context.Context, callback protocol.TriggerCallback) error {
	s.mu.Lock()

	if s.started {
		s.mu.Unlock()

		return nil
	}

	s.callback = callback
	s.mu.Unlock()

	if err := s.Reload(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopCh = make(chan struct{})
	s.started = true
	s.cron.Start()

	s.wg.Add(1)

	go s.reloadLoop(ctx)

	s.logger.InfoContext(ctx, "Schedule source started", "jobs", len(s.entries))

	return nil
}

func (s *Source) reloadLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.reloadInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Reload(ctx); err != nil {
				s.logger.ErrorContext(ctx, "Failed to reload schedules", "error", err)
			}
		}
	}
}

// Reload syncs the cron jobs with the stored schedule workflows. Jobs whose
// workflow disappeared are removed and changed expressions are replaced.
func (s *Source) Reload(ctx context.Context) error {
	workflows, err := s.workflows.ListByTriggerType(ctx, models.TriggerTypeSchedule)
	if err != nil {
		return fmt.Errorf("list schedule workflows: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{}, len(workflows))

	for _, workflow := range workflows {
		expr, err := CronExpression(workflow.Trigger)
		if err != nil {
			s.logger.WarnContext(ctx, "Skipping schedule workflow", "workflow_id", workflow.ID, "error", err)

			continue
		}

		seen[workflow.ID] = struct{}{}

		current, ok := s.entries[workflow.ID]
		if ok && current.expr == expr {
			continue
		}

		if ok {
			s.cron.Remove(current.id)
		}

		id, err := s.cron.AddFunc(expr, s.fire(ctx, workflow.ID))
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to add cron job", "workflow_id", workflow.ID, "error", err)

			continue
		}

		s.entries[workflow.ID] = entry{expr: expr, id: id}
		s.logger.InfoContext(ctx, "Scheduled workflow", "workflow_id", workflow.ID, "cron", expr)
	}

	for workflowID, current := range s.entries {
		if _, ok := seen[workflowID]; !ok {
			s.cron.Remove(current.id)
			delete(s.entries, workflowID)
			s.logger.InfoContext(ctx, "Unscheduled workflow", "workflow_id", workflowID)
		}
	}

	return nil
}

// Scheduled returns the ids of the workflows that currently have a cron job.
func (s *Source) Scheduled() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	scheduled := make(map[string]string, len(s.entries))
	for workflowID, current := range s.entries {
		scheduled[workflowID] = current.expr
	}

	return scheduled
}

func (s *Source) fire(ctx context.Context, workflowID string) func() {
	return func() {
		data := payload.Object(payload.Member{
			Key:   "scheduledAt",
			Value: payload.String(s.now().Format(time.RFC3339)),
		})

		s.mu.Lock()
		callback := s.callback
		s.mu.Unlock()

		if err := callback(ctx, workflowID, models.TriggerTypeSchedule, data); err != nil {
			metrics.SourceEventsTotal.WithLabelValues(sourceName, "failed").Inc()
			s.logger.ErrorContext(ctx, "Error firing schedule trigger", "workflow_id", workflowID, "error", err)

			return
		}

		metrics.SourceEventsTotal.WithLabelValues(sourceName, "published").Inc()
		s.logger.DebugContext(ctx, "Fired schedule trigger", "workflow_id", workflowID)
	}
}

func (s *Source) Stop(ctx context.Context) error {
	s.mu.Lock()

	if !s.started {
		s.mu.Unlock()

		return nil
	}

	close(s.stopCh)
	s.started = false
	s.mu.Unlock()

	s.wg.Wait()

	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		return ctx.Err()
	}

	s.logger.InfoContext(ctx, "Schedule source stopped")

	return nil
}
