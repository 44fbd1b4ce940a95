// Package persistence defines the store contracts used by the run pipeline.
package persistence

import (
	"context"
	"time"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/payload"
)

// Persistence is the relational store. Implementations must run the
// function given to Transaction atomically: either every write inside it is
// visible afterwards or none is.
type Persistence interface {
	Repositories

	Transaction(ctx context.Context, fn func(tx Repositories) error) error
	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// Repositories groups the repositories bound to a store or a transaction.
type Repositories interface {
	Workflows() WorkflowRepository
	Runs() RunRepository
	Outbox() OutboxRepository
}

type WorkflowRepository interface {
	// Create stores the workflow with its trigger and actions.
	Create(ctx context.Context, workflow *models.Workflow) error
	// GetByID returns the workflow with its trigger and actions ordered by sort order.
	GetByID(ctx context.Context, id string) (*models.Workflow, error)
	ListByTriggerType(ctx context.Context, triggerType models.TriggerType) ([]*models.Workflow, error)
	DeleteActions(ctx context.Context, workflowID string) (int64, error)
	DeleteTrigger(ctx context.Context, workflowID string) (int64, error)
	// Delete removes the workflow row only. It fails with ErrForeignKeyViolation
	// while the trigger, actions or runs still exist.
	Delete(ctx context.Context, id string) error
}

type RunRepository interface {
	Create(ctx context.Context, run *models.Run) error
	GetByID(ctx context.Context, id string) (*models.Run, error)
	// GetWithChain loads the run, its workflow and the ordered action chain.
	GetWithChain(ctx context.Context, id string) (*models.RunChain, error)
	// MarkRunning moves a created run to running. Any other current status
	// fails with ErrInvalidRunTransition.
	MarkRunning(ctx context.Context, id string, startedAt time.Time) error
	// Finish moves a running run to completed or failed.
	Finish(ctx context.Context, id string, outcome RunOutcome) error
	DeleteByWorkflow(ctx context.Context, workflowID string) (int64, error)
}

// RunOutcome is the terminal state recorded for a run.
type RunOutcome struct {
	Status     models.RunStatus
	Result     payload.Value
	Error      string
	FinishedAt time.Time
}

type OutboxRepository interface {
	Create(ctx context.Context, entry *models.OutboxEntry) error
	// Pending returns up to limit entries ordered by creation time and id.
	Pending(ctx context.Context, limit int) ([]*models.OutboxEntry, error)
	DeleteByIDs(ctx context.Context, ids []string) (int64, error)
	// DeleteByWorkflow removes the entries of every run of the workflow.
	DeleteByWorkflow(ctx context.Context, workflowID string) (int64, error)
}
