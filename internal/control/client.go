package control

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Iron-Ham/autoproducer/internal/errors"
	"github.com/Iron-Ham/autoproducer/internal/pipeline"
)

// Client talks to a running daemon's control API.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient creates a client for addr, given as host:port or a URL.
func NewClient(addr string) *Client {
	base := strings.TrimRight(addr, "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &Client{
		BaseURL: base,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// APIError represents an error response from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

// Is maps a 409 onto errors.ErrRunActive.
func (e *APIError) Is(target error) bool {
	return target == errors.ErrRunActive && e.StatusCode == http.StatusConflict
}

// Health checks GET /healthz.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil)
}

// Status fetches GET /status.
func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	var out StatusResponse
	if err := c.do(ctx, http.MethodGet, "/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// History fetches up to limit finished runs, newest first. A limit of zero
// returns all retained runs.
func (c *Client) History(ctx context.Context, limit int) ([]pipeline.Run, error) {
	path := "/history"
	if limit > 0 {
		path = fmt.Sprintf("%s?limit=%d", path, limit)
	}
	var out []pipeline.Run
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Pause sends POST /pause.
func (c *Client) Pause(ctx context.Context, reason string) error {
	return c.do(ctx, http.MethodPost, "/pause", ActionRequest{Reason: reason}, nil)
}

// Resume sends POST /resume.
func (c *Client) Resume(ctx context.Context, reason string) error {
	return c.do(ctx, http.MethodPost, "/resume", ActionRequest{Reason: reason}, nil)
}

// Restart sends POST /restart.
func (c *Client) Restart(ctx context.Context, reason string) error {
	return c.do(ctx, http.MethodPost, "/restart", ActionRequest{Reason: reason}, nil)
}

// Trigger sends POST /trigger and returns the new run's ID.
func (c *Client) Trigger(ctx context.Context, reason string) (string, error) {
	return c.TriggerChannel(ctx, "", reason)
}

// TriggerChannel is Trigger with a channel preset.
func (c *Client) TriggerChannel(ctx context.Context, channel, reason string) (string, error) {
	var out ActionResponse
	req := ActionRequest{Reason: reason, Channel: channel}
	if err := c.do(ctx, http.MethodPost, "/trigger", req, &out); err != nil {
		return "", err
	}
	return out.RunID, nil
}

// Shutdown sends POST /shutdown.
func (c *Client) Shutdown(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/shutdown", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(respBody))
		var er ErrorResponse
		if json.Unmarshal(respBody, &er) == nil && er.Error != "" {
			msg = er.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
