// Package email provides the e-mail sending actions.
package email

import (
	"fmt"
	"strings"

	"github.com/dukex/flowrun/pkg/payload"
	"github.com/xeipuuv/gojsonschema"
)

const sentMessage = "Email sent successfully"

var messageSchema = gojsonschema.NewGoLoader(map[string]any{
	"type": "object",
	"properties": map[string]any{
		"to":      map[string]any{"type": "string", "minLength": 1, "pattern": `^[^@\s]+@[^@\s]+$`},
		"subject": map[string]any{"type": "string", "minLength": 1},
		"body":    map[string]any{"type": "string", "minLength": 1},
		"from":    map[string]any{"type": "string"},
	},
	"required": []any{"to", "subject", "body"},
})

// Message is a validated e-mail.
type Message struct {
	From    string
	To      string
	Subject string
	Body    string
}

// Schema returns the configuration schema shared by the e-mail actions.
func Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"to":      map[string]any{"type": "string", "description": "Recipient address. Supports {{path}} placeholders."},
			"subject": map[string]any{"type": "string"},
			"body":    map[string]any{"type": "string", "description": "HTML body."},
			"from":    map[string]any{"type": "string", "description": "Sender address. Defaults to the configured sender."},
		},
		"required": []any{"to", "subject", "body"},
	}
}

// parseMessage validates a resolved configuration. Placeholders that did not
// resolve are rejected since they can never be delivered.
func parseMessage(config map[string]any, defaultFrom string) (*Message, error) {
	result, err := gojsonschema.Validate(messageSchema, gojsonschema.NewGoLoader(config))
	if err != nil {
		return nil, fmt.Errorf("validate email config: %w", err)
	}

	if !result.Valid() {
		issues := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			issues = append(issues, desc.String())
		}

		return nil, fmt.Errorf("invalid email config: %s", strings.Join(issues, "; "))
	}

	msg := &Message{
		From:    defaultFrom,
		To:      strings.TrimSpace(config["to"].(string)),
		Subject: config["subject"].(string),
		Body:    config["body"].(string),
	}

	if from, ok := config["from"].(string); ok && from != "" {
		msg.From = from
	}

	if strings.Contains(msg.To, "{{") {
		return nil, fmt.Errorf("invalid email config: unresolved recipient %q", msg.To)
	}

	return msg, nil
}

func failed(reason string) payload.Value {
	return payload.Object(
		payload.Member{Key: "ok", Value: payload.Bool(false)},
		payload.Member{Key: "error", Value: payload.String(reason)},
	)
}

func sent(emailID string, msg *Message) payload.Value {
	return payload.Object(
		payload.Member{Key: "ok", Value: payload.Bool(true)},
		payload.Member{Key: "emailId", Value: payload.String(emailID)},
		payload.Member{Key: "to", Value: payload.String(msg.To)},
		payload.Member{Key: "subject", Value: payload.String(msg.Subject)},
		payload.Member{Key: "message", Value: payload.String(sentMessage)},
	)
}
