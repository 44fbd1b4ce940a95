// Package web provides HTTP request and response types for the workflow API.
package web

import (
	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/payload"
)

// CreateWorkflowRequest represents the request body for creating a new workflow.
type CreateWorkflowRequest struct {
	Name        string                `json:"name"        validate:"required,min=3"`
	Description string                `json:"description"`
	OwnerID     string                `json:"owner_id"    validate:"required"`
	Trigger     TriggerRequest        `json:"trigger"`
	Actions     []CreateActionRequest `json:"actions"     validate:"required,min=1,dive"`
}

type TriggerRequest struct {
	Type      models.TriggerType `json:"type"                 validate:"required"`
	Config    map[string]any     `json:"config"`
	ChannelID string             `json:"channel_id,omitempty"`
}

type CreateActionRequest struct {
	Type      string         `json:"type"       validate:"required"`
	SortOrder *int           `json:"sort_order" validate:"omitempty,min=0"`
	Config    map[string]any `json:"config"`
}

// EnqueueRunRequest carries the trigger metadata the run starts with.
type EnqueueRunRequest struct {
	MetaData payload.Value `json:"meta_data"`
}

// ToModel builds the workflow aggregate. Actions without an explicit sort
// order keep their position in the request.
func (r CreateWorkflowRequest) ToModel() *models.Workflow {
	workflow := &models.Workflow{
		Name:        r.Name,
		Description: r.Description,
		OwnerID:     r.OwnerID,
		Trigger: &models.Trigger{
			Type:      r.Trigger.Type,
			Config:    r.Trigger.Config,
			ChannelID: r.Trigger.ChannelID,
		},
		Actions: make([]*models.Action, 0, len(r.Actions)),
	}

	for i, action := range r.Actions {
		sortOrder := i
		if action.SortOrder != nil {
			sortOrder = *action.SortOrder
		}

		workflow.Actions = append(workflow.Actions, &models.Action{
			TypeName:  action.Type,
			SortOrder: sortOrder,
			Config:    action.Config,
		})
	}

	return workflow
}
