package email

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"testing"

	"github.com/dukex/flowrun/pkg/payload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func field(t *testing.T, v payload.Value, path ...string) string {
	t.Helper()

	found, ok := v.Lookup(path...)
	require.True(t, ok, "missing %v in %s", path, v.String())

	return found.String()
}

func validConfig() map[string]any {
	return map[string]any{"to": "ana@example.com", "subject": "Welcome", "body": "<p>hi</p>"}
}

func TestParseMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		config  map[string]any
		wantErr bool
	}{
		{name: "valid", config: validConfig()},
		{name: "missing to", config: map[string]any{"subject": "s", "body": "b"}, wantErr: true},
		{name: "missing subject", config: map[string]any{"to": "a@b.c", "body": "b"}, wantErr: true},
		{name: "empty body", config: map[string]any{"to": "a@b.c", "subject": "s", "body": ""}, wantErr: true},
		{name: "unresolved recipient", config: map[string]any{"to": "{{prev.email}}", "subject": "s", "body": "b"}, wantErr: true},
		{name: "recipient not a string", config: map[string]any{"to": float64(1), "subject": "s", "body": "b"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			msg, err := parseMessage(tt.config, "noreply@example.com")
			if tt.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, "noreply@example.com", msg.From)
		})
	}
}

func TestResendAction_Invoke(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer re_test", r.Header.Get("Authorization"))

		var body resendRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []string{"ana@example.com"}, body.To)
		assert.Equal(t, "Welcome", body.Subject)
		assert.Equal(t, "team@example.com", body.From)

		_, _ = w.Write([]byte(`{"id":"email-123"}`))
	}))
	defer server.Close()

	handler, err := NewResendFactory(ResendConfig{APIKey: "re_test", From: "team@example.com", Endpoint: server.URL}).Create(discard)
	require.NoError(t, err)

	result, err := handler.Invoke(context.Background(), validConfig(), payload.Null())
	require.NoError(t, err)

	assert.Equal(t, "true", field(t, result, "ok"))
	assert.Equal(t, "email-123", field(t, result, "emailId"))
	assert.Equal(t, "ana@example.com", field(t, result, "to"))
	assert.Equal(t, "Welcome", field(t, result, "subject"))
	assert.Equal(t, sentMessage, field(t, result, "message"))
}

func TestResendAction_InvokeValidationFailure(t *testing.T) {
	t.Parallel()

	handler, err := NewResendFactory(ResendConfig{APIKey: "re_test", Endpoint: "http://127.0.0.1:1"}).Create(discard)
	require.NoError(t, err)

	result, err := handler.Invoke(context.Background(), map[string]any{"subject": "no recipient"}, payload.Null())
	require.NoError(t, err)

	assert.Equal(t, "false", field(t, result, "ok"))
	assert.Contains(t, field(t, result, "error"), "to")
}

func TestResendAction_InvokeRejected(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"name":"validation_error","message":"Invalid from field"}`))
	}))
	defer server.Close()

	handler, err := NewResendFactory(ResendConfig{APIKey: "re_test", Endpoint: server.URL}).Create(discard)
	require.NoError(t, err)

	result, err := handler.Invoke(context.Background(), validConfig(), payload.Null())
	require.NoError(t, err)
	assert.Equal(t, "false", field(t, result, "ok"))
	assert.Equal(t, "Invalid from field", field(t, result, "error"))
}

func TestResendAction_InvokeServerError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	handler, err := NewResendFactory(ResendConfig{APIKey: "re_test", Endpoint: server.URL}).Create(discard)
	require.NoError(t, err)

	_, err = handler.Invoke(context.Background(), validConfig(), payload.Null())
	require.ErrorIs(t, err, ErrResendUnavailable)
}

func TestSMTPAction_Invoke(t *testing.T) {
	t.Parallel()

	var (
		gotAddr string
		gotTo   []string
		gotMsg  string
	)

	factory := NewSMTPFactory(SMTPConfig{
		Username: "bot@gmail.com",
		Password: "app-password",
		Send: func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
			gotAddr = addr
			gotTo = to
			gotMsg = string(msg)

			assert.Equal(t, "bot@gmail.com", from)

			return nil
		},
	})

	handler, err := factory.Create(discard)
	require.NoError(t, err)

	config := validConfig()
	config["subject"] = "Welcome\r\nBcc: evil@example.com"

	result, err := handler.Invoke(context.Background(), config, payload.Null())
	require.NoError(t, err)

	assert.Equal(t, "smtp.gmail.com:587", gotAddr)
	assert.Equal(t, []string{"ana@example.com"}, gotTo)
	assert.Contains(t, gotMsg, "Subject: Welcome  Bcc: evil@example.com\r\n")
	assert.False(t, strings.Contains(gotMsg, "\r\nBcc:"))
	assert.Equal(t, "true", field(t, result, "ok"))
	assert.True(t, strings.HasPrefix(field(t, result, "emailId"), "<"))
}

func TestSMTPAction_InvokeFailures(t *testing.T) {
	t.Parallel()

	noCreds, err := NewSMTPFactory(SMTPConfig{}).Create(discard)
	require.NoError(t, err)

	result, err := noCreds.Invoke(context.Background(), validConfig(), payload.Null())
	require.NoError(t, err)
	assert.Equal(t, "false", field(t, result, "ok"))

	boom := errors.New("connection refused")
	failing, err := NewSMTPFactory(SMTPConfig{
		Username: "u", Password: "p",
		Send: func(string, smtp.Auth, string, []string, []byte) error { return boom },
	}).Create(discard)
	require.NoError(t, err)

	_, err = failing.Invoke(context.Background(), validConfig(), payload.Null())
	require.ErrorIs(t, err, ErrSMTPFailed)
	require.ErrorIs(t, err, boom)
}
