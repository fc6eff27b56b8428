// Package huggingface calls a hosted inference endpoint that turns a
// structured request into code.
package huggingface

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/mlespinoza1/swarm/internal/domain"
)

const (
	DefaultEndpoint    = "https://api-inference.huggingface.co/models/deepseek-ai/deepseek-model"
	DefaultResultField = "generated_code"
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = 10 * time.Second

	maxResponseBytes = 8 << 20
)

var errResponseTooLarge = errors.New("response too large")

// TokenSource supplies the bearer token.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

type inferenceRequest struct {
	Inputs string `json:"inputs"`
}

// HTTPStatusError captures non-2xx upstream responses.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("huggingface: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client posts inference requests, retrying failed attempts with a fixed delay.
type Client struct {
	endpoint    string
	httpClient  *http.Client
	tokens      TokenSource
	resultField string
	maxAttempts int
	retryDelay  time.Duration
	logger      *slog.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

type Option func(*Client)

func WithEndpoint(endpoint string) Option {
	return func(c *Client) {
		if endpoint = strings.TrimSpace(endpoint); endpoint != "" {
			c.endpoint = endpoint
		}
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithResultField sets the gjson path of the generated code in the response,
// e.g. "generated_code" or "0.generated_text".
func WithResultField(path string) Option {
	return func(c *Client) {
		if path = strings.TrimSpace(path); path != "" {
			c.resultField = path
		}
	}
}

// WithRetry sets the total attempt count and the wait between failed attempts.
func WithRetry(maxAttempts int, delay time.Duration) Option {
	return func(c *Client) {
		if maxAttempts > 0 {
			c.maxAttempts = maxAttempts
		}
		if delay >= 0 {
			c.retryDelay = delay
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient creates a Client with the default endpoint and retry policy.
func NewClient(tokens TokenSource, opts ...Option) (*Client, error) {
	if tokens == nil {
		return nil, errors.New("huggingface: token source must not be nil")
	}
	c := &Client{
		endpoint:    DefaultEndpoint,
		httpClient:  &http.Client{Timeout: 120 * time.Second},
		tokens:      tokens,
		resultField: DefaultResultField,
		maxAttempts: DefaultMaxAttempts,
		retryDelay:  DefaultRetryDelay,
		logger:      slog.Default(),
		sleep:       sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Generate sends input to the endpoint and returns the generated code.
// Transport failures, non-2xx statuses and undecodable bodies are retried;
// once every attempt has failed the error wraps domain.ErrRetriesExhausted.
// A successful response without a non-empty result field yields
// domain.ErrEmptyOutput and is not retried.
func (c *Client) Generate(ctx context.Context, input string) (string, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("huggingface: resolve api token: %w", err)
	}
	body, err := json.Marshal(inferenceRequest{Inputs: input})
	if err != nil {
		return "", fmt.Errorf("huggingface: marshal request: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			if err := c.sleep(ctx, c.retryDelay); err != nil {
				return "", fmt.Errorf("huggingface: wait before attempt %d: %w", attempt, err)
			}
		}

		raw, err := c.post(ctx, token, body)
		if err == nil {
			c.logger.Debug("inference request succeeded", "attempt", attempt)
			return c.extract(raw)
		}
		lastErr = err
		c.logger.Warn("inference attempt failed",
			"attempt", attempt,
			"max_attempts", c.maxAttempts,
			"err", err,
		)
	}
	return "", fmt.Errorf("huggingface: %w after %d attempts: %w", domain.ErrRetriesExhausted, c.maxAttempts, lastErr)
}

func (c *Client) post(ctx context.Context, token string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &HTTPStatusError{StatusCode: res.StatusCode, URL: c.endpoint, Body: string(buf)}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if len(buf) > maxResponseBytes {
		return nil, fmt.Errorf("%w: exceeds %d bytes", errResponseTooLarge, maxResponseBytes)
	}
	if !gjson.ValidBytes(buf) {
		return nil, errors.New("decode response: body is not valid JSON")
	}
	return buf, nil
}

func (c *Client) extract(raw []byte) (string, error) {
	res := gjson.GetBytes(raw, c.resultField)
	if !res.Exists() || res.Type != gjson.String || res.String() == "" {
		return "", fmt.Errorf("huggingface: field %q: %w", c.resultField, domain.ErrEmptyOutput)
	}
	return res.String(), nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
