package email

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukex/flowrun/pkg/payload"
	"github.com/dukex/flowrun/pkg/protocol"
)

const DefaultResendEndpoint = "https://api.resend.com/emails"

var ErrResendUnavailable = errors.New("resend api unavailable")

type ResendConfig struct {
	APIKey   string
	From     string
	Endpoint string
	Client   *http.Client
}

type ResendFactory struct {
	config ResendConfig
}

func NewResendFactory(config ResendConfig) *ResendFactory {
	if config.Endpoint == "" {
		config.Endpoint = DefaultResendEndpoint
	}

	if config.Client == nil {
		config.Client = &http.Client{Timeout: 15 * time.Second}
	}

	return &ResendFactory{config: config}
}

func (*ResendFactory) ID() string { return "send_email" }

func (*ResendFactory) Name() string { return "Send Email" }

func (*ResendFactory) Description() string {
	return "Sends an e-mail through the Resend API."
}

func (*ResendFactory) Schema() map[string]any { return Schema() }

func (f *ResendFactory) Create(logger *slog.Logger) (protocol.ActionHandler, error) {
	return &ResendAction{config: f.config, logger: logger}, nil
}

type ResendAction struct {
	config ResendConfig
	logger *slog.Logger
}

type resendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

type resendResponse struct {
	ID      string `json:"id"`
	Message string `json:"message"`
	Name    string `json:"name"`
}

// Invoke sends the message. Invalid input and rejections by the API are
// reported in the result; transport failures and 5xx responses are errors.
func (a *ResendAction) Invoke(ctx context.Context, config map[string]any, _ payload.Value) (payload.Value, error) {
	msg, err := parseMessage(config, a.config.From)
	if err != nil {
		return failed(err.Error()), nil
	}

	if a.config.APIKey == "" {
		return failed("resend api key is not configured"), nil
	}

	body, err := json.Marshal(resendRequest{From: msg.From, To: []string{msg.To}, Subject: msg.Subject, HTML: msg.Body})
	if err != nil {
		return payload.Null(), fmt.Errorf("encode resend request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return payload.Null(), fmt.Errorf("build resend request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+a.config.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.config.Client.Do(req)
	if err != nil {
		return payload.Null(), fmt.Errorf("%w: %w", ErrResendUnavailable, err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return payload.Null(), fmt.Errorf("read resend response: %w", err)
	}

	var decoded resendResponse
	_ = json.Unmarshal(raw, &decoded)

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return payload.Null(), fmt.Errorf("%w: status %d", ErrResendUnavailable, resp.StatusCode)
	case resp.StatusCode >= http.StatusBadRequest:
		reason := decoded.Message
		if reason == "" {
			reason = fmt.Sprintf("resend rejected the message with status %d", resp.StatusCode)
		}

		a.logger.WarnContext(ctx, "resend rejected email", "status_code", resp.StatusCode, "error", reason)

		return failed(reason), nil
	}

	a.logger.InfoContext(ctx, "email sent", "email_id", decoded.ID, "to", msg.To)

	return sent(decoded.ID, msg), nil
}
