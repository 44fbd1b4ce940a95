// Package models defines the core domain models for trigger-to-action workflow runs.
package models

import (
	"sort"
	"time"
)

// Workflow is one trigger followed by an ordered chain of actions.
type Workflow struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"        validate:"required,min=3"`
	Description string    `json:"description"`
	OwnerID     string    `json:"owner_id"    validate:"required"`
	Trigger     *Trigger  `json:"trigger"     validate:"required"`
	Actions     []*Action `json:"actions"     validate:"required,min=1,dive,required"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SortActions orders actions by sort order, keeping insertion order for ties
// and falling back to the action id.
func SortActions(actions []*Action) {
	sort.SliceStable(actions, func(i, j int) bool {
		if actions[i].SortOrder != actions[j].SortOrder {
			return actions[i].SortOrder < actions[j].SortOrder
		}

		return actions[i].ID < actions[j].ID
	})
}
