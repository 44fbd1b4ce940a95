package services

import (
	"context"

	"github.com/go-playground/validator/v10"

	"github.com/dukex/flowrun/pkg/eventbus"
	"github.com/dukex/flowrun/pkg/events"
	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/payload"
	"github.com/dukex/flowrun/pkg/persistence"
)

// Trigger publishes trigger events for the trigger router.
type Trigger struct {
	workflows persistence.WorkflowRepository
	publisher eventbus.Publisher
	topic     string
	validate  *validator.Validate
}

func NewTrigger(workflows persistence.WorkflowRepository, publisher eventbus.Publisher, topic string) *Trigger {
	if topic == "" {
		topic = events.TriggerEventTopic
	}

	return &Trigger{
		workflows: workflows,
		publisher: publisher,
		topic:     topic,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Fire publishes a trigger event keyed by the workflow id. It matches
// protocol.TriggerCallback so sources can use it directly.
func (t *Trigger) Fire(ctx context.Context, workflowID string, trigger models.TriggerType, data payload.Value) error {
	event := events.TriggerEvent{
		Trigger:    trigger,
		WorkflowID: workflowID,
		Payload:    data,
	}

	if err := t.validate.Struct(event); err != nil {
		return NewValidationError("Fire", "INVALID_TRIGGER_EVENT", err.Error(), ErrInvalidRequest)
	}

	return eventbus.PublishJSON(ctx, t.publisher, t.topic, workflowID, event)
}

// FireWebhook fires the workflow only if its trigger is a webhook.
func (t *Trigger) FireWebhook(ctx context.Context, workflowID string, data payload.Value) error {
	workflow, err := t.workflows.GetByID(ctx, workflowID)
	if err != nil {
		return err
	}

	if workflow.Trigger == nil || workflow.Trigger.Type != models.TriggerTypeWebhook {
		return newConflictError("FireWebhook", "TRIGGER_MISMATCH", ErrTriggerMismatch)
	}

	return t.Fire(ctx, workflowID, models.TriggerTypeWebhook, data)
}
