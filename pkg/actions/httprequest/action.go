// Package httprequest provides the outbound HTTP request action.
package httprequest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/dukex/flowrun/pkg/payload"
)

const defaultTimeout = 30 * time.Second

var (
	// ErrHTTPServerError is returned when every attempt ended with a 5xx status.
	ErrHTTPServerError = errors.New("server error during HTTP request")
	// ErrHTTPRequestFailed is returned when no attempt produced a response.
	ErrHTTPRequestFailed = errors.New("http request failed")
)

// RetryConfig defines retry behavior. Delay is in milliseconds.
type RetryConfig struct {
	Attempts int
	Delay    int
}

type request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
	Retry   RetryConfig
}

type Action struct {
	client *http.Client
	logger *slog.Logger
}

func NewAction(client *http.Client, logger *slog.Logger) *Action {
	return &Action{client: client, logger: logger.With("module", "http_request_action")}
}

// Invoke performs the request. Configuration problems are reported in the
// result as {ok:false,error}; transport failures after all retries are errors.
func (a *Action) Invoke(ctx context.Context, config map[string]any, _ payload.Value) (payload.Value, error) {
	req, err := parseRequest(config)
	if err != nil {
		return payload.Object(
			payload.Member{Key: "ok", Value: payload.Bool(false)},
			payload.Member{Key: "error", Value: payload.String(err.Error())},
		), nil
	}

	var (
		resp    *http.Response
		attempt int
	)

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Duration(req.Retry.Delay)*time.Millisecond), uint64(req.Retry.Attempts-1)),
		ctx,
	)

	err = backoff.RetryNotify(func() error {
		attempt++

		r, err := a.do(ctx, req)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrHTTPRequestFailed, err)
		}

		if r.StatusCode >= http.StatusInternalServerError && attempt < req.Retry.Attempts {
			_ = r.Body.Close()

			return fmt.Errorf("%w: status %d", ErrHTTPServerError, r.StatusCode)
		}

		resp = r

		return nil
	}, policy, func(err error, next time.Duration) {
		a.logger.InfoContext(ctx, "retrying http request",
			"attempt", attempt+1, "max_attempts", req.Retry.Attempts, "delay", next, "error", err)
	})
	if err != nil {
		return payload.Null(), fmt.Errorf("all retry attempts failed, last error: %w", err)
	}

	return a.processResponse(ctx, resp)
}

func (a *Action) do(ctx context.Context, req *request) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return nil, err
	}

	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}

	a.logger.DebugContext(ctx, "sending http request", "method", req.Method, "url", req.URL)

	return a.client.Do(httpReq)
}

func (a *Action) processResponse(ctx context.Context, resp *http.Response) (payload.Value, error) {
	defer func() {
		_ = resp.Body.Close()
	}()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return payload.Null(), fmt.Errorf("failed to read response body: %w", err)
	}

	body, err := payload.Parse(bodyBytes)
	if err != nil {
		body = payload.String(string(bodyBytes))
	}

	keys := make([]string, 0, len(resp.Header))
	for key := range resp.Header {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	headers := make([]payload.Member, 0, len(keys))
	for _, key := range keys {
		headers = append(headers, payload.Member{Key: key, Value: payload.String(resp.Header.Get(key))})
	}

	a.logger.InfoContext(ctx, "http request completed", "status_code", resp.StatusCode, "body_length", len(bodyBytes))

	return payload.Object(
		payload.Member{Key: "status_code", Value: payload.Int(int64(resp.StatusCode))},
		payload.Member{Key: "headers", Value: payload.Object(headers...)},
		payload.Member{Key: "body", Value: body},
	), nil
}

func parseRequest(config map[string]any) (*request, error) {
	rawURL, _ := config["url"].(string)
	if rawURL == "" {
		return nil, errors.New("url is required")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid url %q", rawURL)
	}

	method, _ := config["method"].(string)
	if method == "" {
		method = http.MethodGet
	}

	req := &request{
		Method:  strings.ToUpper(method),
		URL:     parsed.String(),
		Headers: map[string]string{},
		Retry:   parseRetryConfig(config["retry"]),
	}

	if headers, ok := config["headers"].(map[string]any); ok {
		for key, value := range headers {
			if s, ok := value.(string); ok {
				req.Headers[key] = s
			}
		}
	}

	switch body := config["body"].(type) {
	case nil:
	case string:
		req.Body = []byte(body)
	default:
		req.Body, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("invalid body: %w", err)
		}

		if _, ok := req.Headers["Content-Type"]; !ok {
			req.Headers["Content-Type"] = "application/json"
		}
	}

	return req, nil
}

func parseRetryConfig(retryConfig any) RetryConfig {
	retry := RetryConfig{Attempts: 1, Delay: 0}

	retryMap, ok := retryConfig.(map[string]any)
	if !ok {
		return retry
	}

	if attempts, ok := retryMap["attempts"].(float64); ok && attempts >= 1 {
		retry.Attempts = int(attempts)
	}

	if delay, ok := retryMap["delay"].(float64); ok && delay >= 0 {
		retry.Delay = int(delay)
	}

	return retry
}
