// Package protocol defines the contracts implemented by pluggable components.
package protocol

import (
	"context"
	"log/slog"

	"github.com/dukex/flowrun/pkg/payload"
)

// ActionHandler executes one workflow step.
//
// Config has already had its placeholders resolved against p. Expected input
// problems, such as a missing required field, are reported inside the
// returned result. A returned error aborts the run.
type ActionHandler interface {
	Invoke(ctx context.Context, config map[string]any, p payload.Value) (payload.Value, error)
}

// ActionHandlerFunc adapts a function to ActionHandler.
type ActionHandlerFunc func(ctx context.Context, config map[string]any, p payload.Value) (payload.Value, error)

func (f ActionHandlerFunc) Invoke(ctx context.Context, config map[string]any, p payload.Value) (payload.Value, error) {
	return f(ctx, config, p)
}

// ActionFactory describes an action type and builds its handler.
type ActionFactory interface {
	// ID is the stable type name actions refer to.
	ID() string
	Name() string
	Description() string
	// Schema is a JSON Schema for the action configuration.
	Schema() map[string]any
	Create(logger *slog.Logger) (ActionHandler, error)
}
