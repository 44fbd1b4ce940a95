package memory

import (
	"context"
	"sort"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/persistence"
)

type workflowRepository struct {
	repositories
}

func (r *workflowRepository) Create(_ context.Context, workflow *models.Workflow) error {
	return r.with(func(s *state) error {
		if _, exists := s.workflows[workflow.ID]; exists {
			return persistence.NewWorkflowError("Create", workflow.ID, persistence.ErrWorkflowAlreadyExists)
		}

		stored := *workflow
		stored.Trigger = nil
		stored.Actions = nil
		s.workflows[workflow.ID] = &stored

		if workflow.Trigger != nil {
			trigger := *workflow.Trigger
			trigger.WorkflowID = workflow.ID
			trigger.Config = cloneConfig(trigger.Config)
			s.triggers[workflow.ID] = &trigger
		}

		for _, action := range workflow.Actions {
			copied := *action
			copied.WorkflowID = workflow.ID
			copied.Config = cloneConfig(copied.Config)
			s.actions[action.ID] = &copied
		}

		return nil
	})
}

func (r *workflowRepository) GetByID(_ context.Context, id string) (*models.Workflow, error) {
	var workflow *models.Workflow

	err := r.with(func(s *state) error {
		stored, ok := s.workflows[id]
		if !ok {
			return persistence.NewWorkflowError("GetByID", id, persistence.ErrWorkflowNotFound)
		}

		workflow = assemble(s, stored)

		return nil
	})

	return workflow, err
}

func (r *workflowRepository) ListByTriggerType(_ context.Context, triggerType models.TriggerType) ([]*models.Workflow, error) {
	var workflows []*models.Workflow

	err := r.with(func(s *state) error {
		for workflowID, trigger := range s.triggers {
			if trigger.Type != triggerType {
				continue
			}

			if stored, ok := s.workflows[workflowID]; ok {
				workflows = append(workflows, assemble(s, stored))
			}
		}

		return nil
	})

	sort.Slice(workflows, func(i, j int) bool { return workflows[i].ID < workflows[j].ID })

	return workflows, err
}

func (r *workflowRepository) DeleteActions(_ context.Context, workflowID string) (int64, error) {
	var deleted int64

	err := r.with(func(s *state) error {
		for id, action := range s.actions {
			if action.WorkflowID == workflowID {
				delete(s.actions, id)
				deleted++
			}
		}

		return nil
	})

	return deleted, err
}

func (r *workflowRepository) DeleteTrigger(_ context.Context, workflowID string) (int64, error) {
	var deleted int64

	err := r.with(func(s *state) error {
		if _, ok := s.triggers[workflowID]; ok {
			delete(s.triggers, workflowID)
			deleted = 1
		}

		return nil
	})

	return deleted, err
}

func (r *workflowRepository) Delete(_ context.Context, id string) error {
	return r.with(func(s *state) error {
		if _, ok := s.workflows[id]; !ok {
			return persistence.NewWorkflowError("Delete", id, persistence.ErrWorkflowNotFound)
		}

		if _, ok := s.triggers[id]; ok {
			return persistence.NewWorkflowError("Delete", id, persistence.ErrForeignKeyViolation)
		}

		for _, action := range s.actions {
			if action.WorkflowID == id {
				return persistence.NewWorkflowError("Delete", id, persistence.ErrForeignKeyViolation)
			}
		}

		for _, run := range s.runs {
			if run.WorkflowID == id {
				return persistence.NewWorkflowError("Delete", id, persistence.ErrForeignKeyViolation)
			}
		}

		delete(s.workflows, id)

		return nil
	})
}

func assemble(s *state, stored *models.Workflow) *models.Workflow {
	workflow := *stored

	if trigger, ok := s.triggers[stored.ID]; ok {
		copied := *trigger
		copied.Config = cloneConfig(trigger.Config)
		workflow.Trigger = &copied
	}

	workflow.Actions = actionsOf(s, stored.ID)

	return &workflow
}

func actionsOf(s *state, workflowID string) []*models.Action {
	actions := make([]*models.Action, 0)

	for _, action := range s.actions {
		if action.WorkflowID == workflowID {
			copied := *action
			copied.Config = cloneConfig(action.Config)
			actions = append(actions, &copied)
		}
	}

	models.SortActions(actions)

	return actions
}
