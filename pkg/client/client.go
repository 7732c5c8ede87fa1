// Package client is a thin HTTP client for the agentmon daemon API, used by
// the CLI and embeddable by external supervisors.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Config holds client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://127.0.0.1:8420/api",
		Timeout: 10 * time.Second,
	}
}

// Client talks to a running agentmon daemon.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client; zero-value fields of cfg fall back to defaults.
func New(cfg Config) *Client {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}
	return &Client{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: cfg.Timeout},
	}
}

// APIError is a structured failure from the daemon.
type APIError struct {
	Kind    string
	Message string
	Status  int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("agentmon api: %s (%s)", e.Message, e.Kind)
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Kind    string          `json:"kind"`
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if !env.Success {
		return &APIError{Kind: env.Kind, Message: env.Error, Status: resp.StatusCode}
	}
	if out != nil && len(env.Data) > 0 {
		return json.Unmarshal(env.Data, out)
	}
	return nil
}

// Register registers an already-spawned process under sessionID.
func (c *Client) Register(ctx context.Context, pid int, agentType, storyID, sessionID string) (RegisterResult, error) {
	body := map[string]any{
		"pid":        pid,
		"agent_type": agentType,
		"story_id":   storyID,
		"session_id": sessionID,
	}
	var out RegisterResult
	err := c.do(ctx, http.MethodPost, "/agents", nil, body, &out)
	return out, err
}

// Heartbeat reports liveness for sessionID.
func (c *Client) Heartbeat(ctx context.Context, sessionID string) (HeartbeatResult, error) {
	var out HeartbeatResult
	err := c.do(ctx, http.MethodPost, "/agents/"+url.PathEscape(sessionID)+"/heartbeat", nil, nil, &out)
	return out, err
}

// List returns session summaries, newest first.
func (c *Client) List(ctx context.Context, includeDead bool) ([]AgentSummary, error) {
	q := url.Values{}
	if includeDead {
		q.Set("include_dead", "true")
	}
	var out []AgentSummary
	err := c.do(ctx, http.MethodGet, "/agents", q, nil, &out)
	return out, err
}

// Metrics returns the metrics report for sessionID over the trailing window.
func (c *Client) Metrics(ctx context.Context, sessionID string, windowMinutes int) (MetricsReport, error) {
	q := url.Values{}
	if windowMinutes > 0 {
		q.Set("minutes", strconv.Itoa(windowMinutes))
	}
	var out MetricsReport
	err := c.do(ctx, http.MethodGet, "/agents/"+url.PathEscape(sessionID)+"/metrics", q, nil, &out)
	return out, err
}

// Terminate stops sessionID's process, escalating to SIGKILL when force is
// set and the process survives the grace period.
func (c *Client) Terminate(ctx context.Context, sessionID string, force bool) (TerminateResult, error) {
	q := url.Values{}
	if force {
		q.Set("force", "true")
	}
	var out TerminateResult
	err := c.do(ctx, http.MethodPost, "/agents/"+url.PathEscape(sessionID)+"/terminate", q, nil, &out)
	return out, err
}

// Logs tails sessionID's log file.
func (c *Client) Logs(ctx context.Context, sessionID string, lines int) (LogExcerpt, error) {
	q := url.Values{}
	if lines > 0 {
		q.Set("lines", strconv.Itoa(lines))
	}
	var out LogExcerpt
	err := c.do(ctx, http.MethodGet, "/agents/"+url.PathEscape(sessionID)+"/logs", q, nil, &out)
	return out, err
}

// AppendEvent adds a caller-defined event to sessionID's audit trail.
func (c *Client) AppendEvent(ctx context.Context, sessionID, eventType, message string) error {
	body := map[string]string{"type": eventType, "message": message}
	return c.do(ctx, http.MethodPost, "/agents/"+url.PathEscape(sessionID)+"/events", nil, body, nil)
}

// Cleanup purges dead/terminated sessions older than olderThanHours.
func (c *Client) Cleanup(ctx context.Context, olderThanHours float64) (CleanupResult, error) {
	q := url.Values{}
	q.Set("older_than_hours", strconv.FormatFloat(olderThanHours, 'f', -1, 64))
	var out CleanupResult
	err := c.do(ctx, http.MethodPost, "/cleanup", q, nil, &out)
	return out, err
}
