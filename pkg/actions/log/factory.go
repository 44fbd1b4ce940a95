package log_action

import (
	"log/slog"

	"github.com/dukex/flowrun/pkg/protocol"
)

func NewLogActionFactory() *LogActionFactory {
	return &LogActionFactory{}
}

type LogActionFactory struct{}

func (*LogActionFactory) ID() string {
	return "log"
}

func (*LogActionFactory) Name() string {
	return "Log"
}

func (*LogActionFactory) Description() string {
	return "Writes a message and the current payload to the worker log."
}

func (*LogActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{
				"type":        "string",
				"description": "Message to log. Supports {{path}} placeholders.",
			},
			"level": map[string]any{
				"type":    "string",
				"enum":    []any{"debug", "info", "warn", "error"},
				"default": "info",
			},
		},
	}
}

func (*LogActionFactory) Create(logger *slog.Logger) (protocol.ActionHandler, error) {
	return NewLogAction(logger), nil
}
