// Package remote executes queued calculation tasks against the remote
// calculation service over HTTP. Transport failures and server errors
// are transient; rejections of the payload itself are permanent and
// fail the task without consuming retries.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/zinses-rechner/calcsync/internal/domain"
	"github.com/zinses-rechner/calcsync/internal/task"
)

// maxResponseBytes caps how much of a response body is read, keeping a
// misbehaving server from ballooning task records.
const maxResponseBytes = 1 << 20

// Config holds client settings for the calculation service.
type Config struct {
	// BaseURL is the service root, e.g. "https://api.zinses-rechner.de".
	BaseURL string

	// Timeout bounds each request. If zero, defaults to 10 seconds.
	// The per-attempt context deadline still applies on top.
	Timeout time.Duration

	// AuthToken, if set, is sent as a bearer token.
	AuthToken string
}

// Client calls the calculation service. It implements task.Executor.
type Client struct {
	baseURL    string
	httpClient *http.Client
	authToken  string
	logger     *slog.Logger
}

// NewClient creates a Client for the service at cfg.BaseURL.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		authToken:  cfg.AuthToken,
		logger:     logger.With("component", "remote_client"),
	}
}

// apiError is the service's error envelope.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Execute implements task.Executor. The returned result is the raw
// response body of a successful calculation.
func (c *Client) Execute(ctx context.Context, t *domain.Task) (json.RawMessage, error) {
	endpoint, err := c.endpointForType(t.Type)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(t.Payload))
	if err != nil {
		return nil, task.Permanent(fmt.Errorf("building request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling calculation service: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading calculation response: %w", err)
	}

	c.logger.Debug("calculation request finished",
		"task_id", t.ID,
		"status", resp.StatusCode,
		"duration_ms", time.Since(started).Milliseconds())

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if !json.Valid(body) {
			return nil, fmt.Errorf("calculation service returned malformed JSON (status %d)", resp.StatusCode)
		}
		return body, nil

	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		// Throttling and request timeouts are worth retrying; every
		// other 4xx means the payload itself was rejected.
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusRequestTimeout {
			return nil, fmt.Errorf("calculation service unavailable: %s", describeFailure(resp.StatusCode, body))
		}
		return nil, task.Permanent(fmt.Errorf("calculation rejected: %s", describeFailure(resp.StatusCode, body)))

	default:
		return nil, fmt.Errorf("calculation service error: %s", describeFailure(resp.StatusCode, body))
	}
}

// endpointForType maps a task type to its service endpoint. Unknown
// types are permanent failures; no amount of retrying will teach the
// service a new calculation.
func (c *Client) endpointForType(taskType string) (string, error) {
	switch taskType {
	case domain.TaskTypeCompoundInterest:
		return c.baseURL + "/api/v1/calculator/compound-interest", nil
	default:
		return "", task.Permanent(fmt.Errorf("unsupported task type %q", taskType))
	}
}

// describeFailure extracts the service's error envelope, falling back
// to the HTTP status text.
func describeFailure(status int, body []byte) string {
	var envelope apiError
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Message != "" {
		return fmt.Sprintf("status %d: %s", status, envelope.Message)
	}
	return fmt.Sprintf("status %d: %s", status, http.StatusText(status))
}
