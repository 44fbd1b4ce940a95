package models

import "time"

// Action is one step of a workflow chain. TypeName selects the handler and
// Config may hold {{path}} placeholders resolved at execution time.
type Action struct {
	ID         string         `json:"id"`
	WorkflowID string         `json:"workflow_id"`
	SortOrder  int            `json:"sort_order"  validate:"min=0"`
	TypeName   string         `json:"type"        validate:"required"`
	Config     map[string]any `json:"config"`
	CreatedAt  time.Time      `json:"created_at"`
}
