package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/persistence"
)

// ActionCatalog is the part of the dispatch table the services consult.
type ActionCatalog interface {
	IsRegistered(name string) bool
	ValidateConfig(name string, config map[string]any) error
}

type Workflow struct {
	persistence persistence.Persistence
	actions     ActionCatalog
	validate    *validator.Validate
	now         func() time.Time
}

// NewWorkflow creates a new workflow service.
func NewWorkflow(persistence persistence.Persistence, actions ActionCatalog) *Workflow {
	return &Workflow{
		persistence: persistence,
		actions:     actions,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// HealthCheck checks the health of the persistence layer.
func (w *Workflow) HealthCheck(ctx context.Context) (string, bool) {
	if w.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := w.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// Create assigns identifiers and timestamps, checks that every action type is
// registered and that its configuration matches the action schema, then
// stores the workflow with its trigger and actions.
func (w *Workflow) Create(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	if workflow == nil {
		return nil, NewValidationError("Create", "WORKFLOW_NIL", "", ErrWorkflowNil)
	}

	now := w.now()

	if workflow.ID == "" {
		workflow.ID = models.NewID()
	}

	workflow.CreatedAt = now
	workflow.UpdatedAt = now

	if workflow.Trigger != nil {
		if workflow.Trigger.ID == "" {
			workflow.Trigger.ID = models.NewID()
		}

		workflow.Trigger.WorkflowID = workflow.ID
		workflow.Trigger.CreatedAt = now
	}

	for _, action := range workflow.Actions {
		if action == nil {
			continue
		}

		if action.ID == "" {
			action.ID = models.NewID()
		}

		action.WorkflowID = workflow.ID
		action.CreatedAt = now
	}

	if err := w.validate.Struct(workflow); err != nil {
		return nil, NewValidationError("Create", "INVALID_WORKFLOW", err.Error(), ErrInvalidRequest)
	}

	for _, action := range workflow.Actions {
		if !w.actions.IsRegistered(action.TypeName) {
			return nil, NewValidationError("Create", "UNKNOWN_ACTION_TYPE",
				fmt.Sprintf("action type '%s' is not registered", action.TypeName), ErrUnknownActionType)
		}

		if err := w.actions.ValidateConfig(action.TypeName, action.Config); err != nil {
			return nil, NewValidationError("Create", "INVALID_ACTION_CONFIG", err.Error(), err)
		}
	}

	models.SortActions(workflow.Actions)

	if err := w.persistence.Workflows().Create(ctx, workflow); err != nil {
		if errors.Is(err, persistence.ErrWorkflowAlreadyExists) {
			return nil, newConflictError("Create", "WORKFLOW_EXISTS", err)
		}

		return nil, fmt.Errorf("failed to create workflow: %w", err)
	}

	return workflow, nil
}

func (w *Workflow) FetchByID(ctx context.Context, id string) (*models.Workflow, error) {
	return w.persistence.Workflows().GetByID(ctx, id)
}

// Executable reports whether the workflow has a trigger and at least one
// action whose type is registered.
func (w *Workflow) Executable(ctx context.Context, id string) (bool, error) {
	workflow, err := w.FetchByID(ctx, id)
	if err != nil {
		return false, err
	}

	return w.executable(workflow), nil
}

func (w *Workflow) executable(workflow *models.Workflow) bool {
	if workflow.Trigger == nil {
		return false
	}

	for _, action := range workflow.Actions {
		if w.actions.IsRegistered(action.TypeName) {
			return true
		}
	}

	return false
}

// Delete removes the workflow and everything that references it in one
// transaction: outbox entries, runs, actions, the trigger and finally the
// workflow row.
func (w *Workflow) Delete(ctx context.Context, id string) error {
	return w.persistence.Transaction(ctx, func(tx persistence.Repositories) error {
		if _, err := tx.Outbox().DeleteByWorkflow(ctx, id); err != nil {
			return fmt.Errorf("delete outbox entries: %w", err)
		}

		if _, err := tx.Runs().DeleteByWorkflow(ctx, id); err != nil {
			return fmt.Errorf("delete runs: %w", err)
		}

		if _, err := tx.Workflows().DeleteActions(ctx, id); err != nil {
			return fmt.Errorf("delete actions: %w", err)
		}

		if _, err := tx.Workflows().DeleteTrigger(ctx, id); err != nil {
			return fmt.Errorf("delete trigger: %w", err)
		}

		return tx.Workflows().Delete(ctx, id)
	})
}
