package models

import (
	"time"

	"github.com/dukex/flowrun/pkg/payload"
)

type RunStatus string

const (
	RunStatusCreated   RunStatus = "created"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// RunErrorActionNotFound is recorded when an action type has no handler.
const RunErrorActionNotFound = "action_not_found"

func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

func (s RunStatus) Valid() bool {
	switch s {
	case RunStatusCreated, RunStatusRunning, RunStatusCompleted, RunStatusFailed:
		return true
	default:
		return false
	}
}

// CanTransition reports whether a run may move from s to next.
// created -> running -> completed | failed; terminal states never change.
func (s RunStatus) CanTransition(next RunStatus) bool {
	switch s {
	case RunStatusCreated:
		return next == RunStatusRunning
	case RunStatusRunning:
		return next == RunStatusCompleted || next == RunStatusFailed
	default:
		return false
	}
}

// Run is one execution attempt of a workflow. Result holds the final or
// partial payload once the run is terminal.
type Run struct {
	ID         string        `json:"id"`
	WorkflowID string        `json:"workflow_id"`
	MetaData   payload.Value `json:"meta_data"`
	Status     RunStatus     `json:"status"`
	Result     payload.Value `json:"result"`
	Error      string        `json:"error,omitempty"`
	StartedAt  *time.Time    `json:"started_at,omitempty"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
}

// RunChain is a run loaded together with its workflow and ordered actions.
type RunChain struct {
	Run      *Run
	Workflow *Workflow
	Actions  []*Action
}
