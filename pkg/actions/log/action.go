package log_action

import (
	"context"
	"log/slog"

	flowlog "github.com/dukex/flowrun/pkg/log"
	"github.com/dukex/flowrun/pkg/payload"
)

type LogAction struct {
	logger *slog.Logger
}

func NewLogAction(logger *slog.Logger) *LogAction {
	return &LogAction{logger: logger}
}

// Invoke logs the configured message. The run scoped logger from ctx is
// preferred so entries carry the run and action identifiers.
func (a *LogAction) Invoke(ctx context.Context, config map[string]any, p payload.Value) (payload.Value, error) {
	logger := a.logger
	if fromCtx := flowlog.FromContext(ctx); fromCtx != slog.Default() {
		logger = fromCtx
	}

	message, _ := config["message"].(string)
	level, _ := config["level"].(string)

	logger.Log(ctx, flowlog.ParseLevel(level), message, "payload", p.String())

	return payload.Object(
		payload.Member{Key: "logged", Value: payload.Bool(true)},
		payload.Member{Key: "message", Value: payload.String(message)},
	), nil
}
