package memory

import (
	"context"
	"time"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/persistence"
)

type runRepository struct {
	repositories
}

func (r *runRepository) Create(_ context.Context, run *models.Run) error {
	return r.with(func(s *state) error {
		if _, ok := s.workflows[run.WorkflowID]; !ok {
			return persistence.NewRunError("Create", run.ID, persistence.ErrWorkflowNotFound)
		}

		stored := *run
		s.runs[run.ID] = &stored

		return nil
	})
}

func (r *runRepository) GetByID(_ context.Context, id string) (*models.Run, error) {
	var run *models.Run

	err := r.with(func(s *state) error {
		stored, ok := s.runs[id]
		if !ok {
			return persistence.NewRunError("GetByID", id, persistence.ErrRunNotFound)
		}

		copied := *stored
		run = &copied

		return nil
	})

	return run, err
}

func (r *runRepository) GetWithChain(_ context.Context, id string) (*models.RunChain, error) {
	var chain *models.RunChain

	err := r.with(func(s *state) error {
		stored, ok := s.runs[id]
		if !ok {
			return persistence.NewRunError("GetWithChain", id, persistence.ErrRunNotFound)
		}

		workflow, ok := s.workflows[stored.WorkflowID]
		if !ok {
			return persistence.NewRunError("GetWithChain", id, persistence.ErrWorkflowNotFound)
		}

		run := *stored
		assembled := assemble(s, workflow)
		chain = &models.RunChain{Run: &run, Workflow: assembled, Actions: assembled.Actions}

		return nil
	})

	return chain, err
}

func (r *runRepository) MarkRunning(_ context.Context, id string, startedAt time.Time) error {
	return r.transition("MarkRunning", id, models.RunStatusRunning, func(run *models.Run) {
		run.StartedAt = &startedAt
	})
}

func (r *runRepository) Finish(_ context.Context, id string, outcome persistence.RunOutcome) error {
	if outcome.Status != models.RunStatusCompleted && outcome.Status != models.RunStatusFailed {
		return persistence.NewRunError("Finish", id, persistence.ErrInvalidRunTransition)
	}

	return r.transition("Finish", id, outcome.Status, func(run *models.Run) {
		finishedAt := outcome.FinishedAt
		run.FinishedAt = &finishedAt
		run.Result = outcome.Result
		run.Error = outcome.Error
	})
}

func (r *runRepository) transition(op, id string, next models.RunStatus, apply func(run *models.Run)) error {
	return r.with(func(s *state) error {
		stored, ok := s.runs[id]
		if !ok {
			return persistence.NewRunError(op, id, persistence.ErrRunNotFound)
		}

		if !stored.Status.CanTransition(next) {
			return persistence.NewRunError(op, id, persistence.ErrInvalidRunTransition)
		}

		updated := *stored
		updated.Status = next
		apply(&updated)
		s.runs[id] = &updated

		return nil
	})
}

func (r *runRepository) DeleteByWorkflow(_ context.Context, workflowID string) (int64, error) {
	var deleted int64

	err := r.with(func(s *state) error {
		for _, entry := range s.outbox {
			if run, ok := s.runs[entry.RunID]; ok && run.WorkflowID == workflowID {
				return persistence.NewWorkflowError("DeleteRuns", workflowID, persistence.ErrForeignKeyViolation)
			}
		}

		for id, run := range s.runs {
			if run.WorkflowID == workflowID {
				delete(s.runs, id)
				deleted++
			}
		}

		return nil
	})

	return deleted, err
}
