package services

import (
	"context"
	"time"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/payload"
	"github.com/dukex/flowrun/pkg/persistence"
)

type Run struct {
	persistence persistence.Persistence
	workflows   *Workflow
	now         func() time.Time
}

func NewRun(persistence persistence.Persistence, workflows *Workflow) *Run {
	return &Run{
		persistence: persistence,
		workflows:   workflows,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Enqueue writes a created run and its outbox entry in one transaction. The
// outbox relay later announces the run so a router starts it.
func (r *Run) Enqueue(ctx context.Context, workflowID string, metaData payload.Value) (*models.Run, error) {
	now := r.now()

	run := &models.Run{
		ID:         models.NewID(),
		WorkflowID: workflowID,
		MetaData:   metaData,
		Status:     models.RunStatusCreated,
		CreatedAt:  now,
	}

	err := r.persistence.Transaction(ctx, func(tx persistence.Repositories) error {
		workflow, err := tx.Workflows().GetByID(ctx, workflowID)
		if err != nil {
			return err
		}

		if !r.workflows.executable(workflow) {
			return newConflictError("Enqueue", "WORKFLOW_NOT_EXECUTABLE", ErrWorkflowNotExecutable)
		}

		if err := tx.Runs().Create(ctx, run); err != nil {
			return err
		}

		return tx.Outbox().Create(ctx, &models.OutboxEntry{
			ID:        models.NewID(),
			RunID:     run.ID,
			CreatedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}

	return run, nil
}

func (r *Run) FetchByID(ctx context.Context, id string) (*models.Run, error) {
	return r.persistence.Runs().GetByID(ctx, id)
}
