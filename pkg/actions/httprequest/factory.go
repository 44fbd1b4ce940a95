package httprequest

import (
	"log/slog"
	"net/http"

	"github.com/dukex/flowrun/pkg/protocol"
)

// ActionFactory creates HTTP request handlers.
type ActionFactory struct {
	client *http.Client
}

// NewActionFactory creates a factory. A nil client uses a client with the
// default timeout.
func NewActionFactory(client *http.Client) *ActionFactory {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}

	return &ActionFactory{client: client}
}

func (f *ActionFactory) Create(logger *slog.Logger) (protocol.ActionHandler, error) {
	return NewAction(f.client, logger), nil
}

func (f *ActionFactory) ID() string {
	return "http_request"
}

func (f *ActionFactory) Name() string {
	return "HTTP Request"
}

func (f *ActionFactory) Description() string {
	return "Performs an HTTP request to a specified URL with optional headers and body."
}

func (f *ActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"title":       "URL",
				"type":        "string",
				"description": "The URL to send the HTTP request to. Supports {{path}} placeholders.",
				"examples": []any{
					"https://api.example.com/users",
					"https://api.example.com/users/{{prev.action.id}}",
				},
			},
			"method": map[string]any{
				"type":        "string",
				"description": "HTTP method to use",
				"default":     "GET",
				"enum":        []any{"GET", "POST", "PUT", "DELETE", "PATCH", "HEAD", "OPTIONS"},
			},
			"headers": map[string]any{
				"type":                 "object",
				"description":          "HTTP headers to include in the request.",
				"additionalProperties": map[string]any{"type": "string"},
			},
			"body": map[string]any{
				"description": "Request body. Objects and arrays are sent as JSON.",
			},
			"retry": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"attempts": map[string]any{"type": "integer", "minimum": 1, "maximum": 5},
					"delay":    map[string]any{"type": "integer", "minimum": 0, "maximum": 30000},
				},
			},
		},
		"required": []any{"url"},
	}
}
