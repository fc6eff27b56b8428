package openaisdk

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/require"

	"github.com/mlespinoza1/swarm/internal/domain"
	"github.com/mlespinoza1/swarm/internal/integrations/paramstore"
)

func TestNew_NilTokens(t *testing.T) {
	_, err := New(nil, "")
	require.ErrorContains(t, err, "nil")
}

func TestComplete_SendsLimitsAndReturnsContent(t *testing.T) {
	var got map[string]any
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		auth = r.Header.Get("Authorization")
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "gpt-3.5-turbo",
			"choices": [{
				"index": 0,
				"finish_reason": "stop",
				"message": {"role": "assistant", "content": "Structured: add login endpoint"}
			}]
		}`))
	}))
	defer srv.Close()

	c, err := New(paramstore.StaticToken("sk-sdk"), srv.URL, option.WithMaxRetries(0))
	require.NoError(t, err)

	out, err := c.Complete(context.Background(), domain.CompletionRequest{
		Model:       "gpt-3.5-turbo",
		Messages:    []domain.ChatMessage{{Role: "system", Content: "sys"}, {Role: "user", Content: "prompt"}},
		MaxTokens:   1500,
		Temperature: 0.5,
	})
	require.NoError(t, err)
	require.Equal(t, "Structured: add login endpoint", out)
	require.Equal(t, "Bearer sk-sdk", auth)
	require.Equal(t, "gpt-3.5-turbo", got["model"])
	require.EqualValues(t, 1500, got["max_tokens"])
	require.EqualValues(t, 0.5, got["temperature"])
	require.Len(t, got["messages"], 2)
}

func TestComplete_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"boom"}}`))
	}))
	defer srv.Close()

	c, err := New(paramstore.StaticToken("sk-sdk"), srv.URL, option.WithMaxRetries(0))
	require.NoError(t, err)
	_, err = c.Complete(context.Background(), domain.CompletionRequest{Model: "m", Messages: domain.UserPrompt("p")})
	require.ErrorContains(t, err, "openaisdk: chat completion")
}

func TestComplete_ValidatesInput(t *testing.T) {
	c, err := New(paramstore.StaticToken("sk-sdk"), "")
	require.NoError(t, err)
	_, err = c.Complete(context.Background(), domain.CompletionRequest{Messages: domain.UserPrompt("p")})
	require.ErrorContains(t, err, "model")
	_, err = c.Complete(context.Background(), domain.CompletionRequest{Model: "m"})
	require.ErrorContains(t, err, "messages")
}

func TestComplete_TokenError(t *testing.T) {
	c, err := New(paramstore.StaticToken(""), "http://127.0.0.1:1")
	require.NoError(t, err)
	_, err = c.Complete(context.Background(), domain.CompletionRequest{Model: "m", Messages: domain.UserPrompt("p")})
	require.ErrorContains(t, err, "resolve api key")
}
