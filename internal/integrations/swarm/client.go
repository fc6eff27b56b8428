// Package swarm notifies agents in the external swarm orchestration framework.
package swarm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const DefaultBaseURL = "http://swarm-framework"

// HTTPStatusError captures non-2xx responses from the trigger endpoint.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("swarm: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client posts payloads to /trigger/{agent}.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient returns a Client for the framework at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("swarm: parse base url: %w", err)
	}
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) triggerURL(agent string) string {
	return c.baseURL + "/trigger/" + url.PathEscape(agent)
}

// Trigger sends payload as JSON to the named agent and returns the decoded
// JSON response. There is no retry.
func (c *Client) Trigger(ctx context.Context, agent string, payload any) (map[string]any, error) {
	agent = strings.TrimSpace(agent)
	if agent == "" {
		return nil, errors.New("swarm: agent name must not be empty")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("swarm: marshal payload: %w", err)
	}

	target := c.triggerURL(agent)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("swarm: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("swarm: trigger %s: %w", agent, err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &HTTPStatusError{StatusCode: res.StatusCode, URL: target, Body: string(buf)}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("swarm: read response body: %w", err)
	}
	out := map[string]any{}
	if len(bytes.TrimSpace(buf)) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(buf, &out); err != nil {
		return nil, fmt.Errorf("swarm: decode response: %w", err)
	}
	return out, nil
}
