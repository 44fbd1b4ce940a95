package protocol

import (
	"context"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/payload"
)

// TriggerCallback is called when a source observes an event for a workflow.
// Implementations publish the event to the trigger-event topic.
type TriggerCallback func(ctx context.Context, workflowID string, trigger models.TriggerType, data payload.Value) error

// Source is a long-running producer of trigger events.
type Source interface {
	// Start begins monitoring and returns once the source is running.
	Start(ctx context.Context, callback TriggerCallback) error

	// Stop gracefully shuts down the source.
	Stop(ctx context.Context) error
}
