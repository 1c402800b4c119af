// Package ollama is a live idea and script collaborator backed by a local
// Ollama server's HTTP API.
package ollama

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
	"github.com/Iron-Ham/autoproducer/internal/production"
)

// Defaults for a local Ollama install.
const (
	DefaultBaseURL = "http://127.0.0.1:11434"
	DefaultModel   = "llama3"
)

var (
	_ production.IdeaGenerator = (*Client)(nil)
	_ production.ScriptWriter  = (*Client)(nil)
)

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ollama API error (%d): %s", e.StatusCode, e.Message)
}

// Client talks to one Ollama server with one model.
type Client struct {
	BaseURL    string
	Model      string
	HTTPClient *http.Client
}

// NewClient creates a Client. Empty arguments fall back to the defaults.
func NewClient(baseURL, model string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if model == "" {
		model = DefaultModel
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Model:   model,
		HTTPClient: &http.Client{
			Timeout: 2 * time.Minute,
		},
	}
}

type versionResponse struct {
	Version string `json:"version"`
}

// Ping checks that the server answers GET /api/version within timeout and
// returns its version.
func (c *Client) Ping(ctx context.Context, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/api/version", nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", errors.NewTimeoutError("ollama health check", timeout).WithCause(err)
		}
		return "", fmt.Errorf("ollama unreachable: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", &APIError{StatusCode: resp.StatusCode, Message: string(body)}
	}
	var v versionResponse
	if err := json.Unmarshal(body, &v); err != nil {
		return "", fmt.Errorf("failed to parse version response: %w", err)
	}
	return v.Version, nil
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
	Format string `json:"format,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Generate sends one non-streaming completion request.
func (c *Client) Generate(ctx context.Context, prompt string, asJSON bool) (string, error) {
	payload := generateRequest{Model: c.Model, Prompt: prompt}
	if asJSON {
		payload.Format = "json"
	}
	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/generate", bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}
	var out generateResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	return strings.TrimSpace(out.Response), nil
}

type ideaList struct {
	Ideas []production.Idea `json:"ideas"`
}

// GenerateIdeas asks the model for brief.Count ideas about brief.Topic.
func (c *Client) GenerateIdeas(ctx context.Context, brief production.Brief) ([]production.Idea, error) {
	count := brief.Count
	if count <= 0 {
		count = 1
	}
	prompt := fmt.Sprintf(
		"Propose %d short educational video ideas about %q. "+
			`Answer with JSON: {"ideas":[{"title":"...","summary":"...","tags":["..."]}]}`,
		count, brief.Topic)
	if brief.Channel != "" {
		prompt += fmt.Sprintf(" The ideas are for the channel %q.", brief.Channel)
	}
	if brief.Description != "" {
		prompt += " Channel description: " + brief.Description
	}

	text, err := c.Generate(ctx, prompt, true)
	if err != nil {
		return nil, err
	}
	return parseIdeas(text, count), nil
}

// parseIdeas accepts the requested JSON shape and falls back to one idea per
// non-empty line when the model ignores the format.
func parseIdeas(text string, limit int) []production.Idea {
	var list ideaList
	if err := json.Unmarshal([]byte(text), &list); err == nil && len(list.Ideas) > 0 {
		ideas := list.Ideas[:0]
		for _, idea := range list.Ideas {
			if strings.TrimSpace(idea.Title) != "" {
				ideas = append(ideas, idea)
			}
		}
		return truncate(ideas, limit)
	}

	var ideas []production.Idea
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "-*0123456789. "))
		if line != "" {
			ideas = append(ideas, production.Idea{Title: line})
		}
	}
	return truncate(ideas, limit)
}

func truncate(ideas []production.Idea, limit int) []production.Idea {
	if limit > 0 && len(ideas) > limit {
		return ideas[:limit]
	}
	return ideas
}

// WriteScripts writes one narration script per idea, stopping at the first
// failure or when ctx is done.
func (c *Client) WriteScripts(ctx context.Context, ideas []production.Idea) ([]production.Script, error) {
	scripts := make([]production.Script, 0, len(ideas))
	for _, idea := range ideas {
		prompt := fmt.Sprintf(
			"Write a narration script of about 150 words for a short video titled %q. %s "+
				"Return only the narration text.", idea.Title, idea.Summary)
		body, err := c.Generate(ctx, prompt, false)
		if err != nil {
			return nil, fmt.Errorf("script for %q: %w", idea.Title, err)
		}
		scripts = append(scripts, production.Script{Title: idea.Title, Body: body})
	}
	return scripts, nil
}
