// Package events defines the messages exchanged between the pipeline stages.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/payload"
)

// Default topic names.
const (
	TriggerEventTopic = "trigger-event"
	RunReadyTopic     = "run-ready"
	RunRequestedTopic = "run-requested"
)

var (
	ErrEmptyMessage = errors.New("empty message")
	ErrMissingRunID = errors.New("missing run id")
)

// Topics groups the topic names a process talks to.
type Topics struct {
	TriggerEvent string
	RunReady     string
	RunRequested string
}

func DefaultTopics() Topics {
	return Topics{
		TriggerEvent: TriggerEventTopic,
		RunReady:     RunReadyTopic,
		RunRequested: RunRequestedTopic,
	}
}

// TriggerEvent is published by trigger sources when a workflow should run.
type TriggerEvent struct {
	Trigger    models.TriggerType `json:"trigger"`
	WorkflowID string             `json:"workflowId" validate:"required"`
	Payload    payload.Value      `json:"payload"`
}

// RunRequested asks a worker to execute the chain of an already running Run.
type RunRequested struct {
	RunID string `json:"runId"`
}

func DecodeTriggerEvent(body []byte) (*TriggerEvent, error) {
	if len(body) == 0 {
		return nil, ErrEmptyMessage
	}

	var event TriggerEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("decode trigger event: %w", err)
	}

	return &event, nil
}

func DecodeRunRequested(body []byte) (*RunRequested, error) {
	if len(body) == 0 {
		return nil, ErrEmptyMessage
	}

	var event RunRequested
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("decode run requested: %w", err)
	}

	event.RunID = strings.TrimSpace(event.RunID)
	if event.RunID == "" {
		return nil, ErrMissingRunID
	}

	return &event, nil
}

// DecodeRunReady reads a run-ready body, which is the raw run identifier.
func DecodeRunReady(body []byte) (string, error) {
	runID := strings.TrimSpace(string(body))
	if runID == "" {
		return "", ErrEmptyMessage
	}

	return runID, nil
}
