package paramstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Parameter names, relative to the configured prefix, holding API tokens.
const (
	OpenAITokenName      = "open-ai-token"
	HuggingFaceTokenName = "hugging-face-token"
)

// tokenPayload is the expected JSON shape stored in SSM for an API token.
type tokenPayload struct {
	Token string `json:"token"`
}

// TokenSource resolves an API token stored in SSM on the first call and
// returns the cached result for the lifetime of the process.
type TokenSource struct {
	getter Getter
	name   string

	once  sync.Once
	token string
	err   error
}

// NewTokenSource returns a TokenSource reading <prefix>/<name>.
func NewTokenSource(g Getter, prefix, name string) (*TokenSource, error) {
	if g == nil {
		return nil, errors.New("paramstore: getter must not be nil")
	}
	prefix = strings.TrimRight(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return nil, errors.New("paramstore: parameter prefix must not be empty")
	}
	name = strings.Trim(strings.TrimSpace(name), "/")
	if name == "" {
		return nil, errors.New("paramstore: token name must not be empty")
	}
	return &TokenSource{getter: g, name: prefix + "/" + name}, nil
}

// Name returns the full parameter name.
func (t *TokenSource) Name() string {
	return t.name
}

func (t *TokenSource) Token(ctx context.Context) (string, error) {
	t.once.Do(func() {
		t.token, t.err = fetchToken(ctx, t.getter, t.name)
	})
	return t.token, t.err
}

func fetchToken(ctx context.Context, getter Getter, name string) (string, error) {
	raw, err := getter.GetParameter(ctx, name)
	if err != nil {
		return "", fmt.Errorf("paramstore: fetch token: %w", err)
	}
	var tp tokenPayload
	if err := json.Unmarshal([]byte(raw), &tp); err != nil {
		return "", fmt.Errorf("paramstore: unmarshal token value as JSON: %w", err)
	}
	if tp.Token == "" {
		return "", fmt.Errorf("paramstore: token %q is empty", name)
	}
	return tp.Token, nil
}

// StaticToken is a token supplied directly, typically from the environment.
type StaticToken string

func (s StaticToken) Token(_ context.Context) (string, error) {
	if strings.TrimSpace(string(s)) == "" {
		return "", errors.New("paramstore: static token is empty")
	}
	return string(s), nil
}
