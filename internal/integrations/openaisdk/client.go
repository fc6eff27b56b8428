// Package openaisdk implements text generation on top of the official
// openai-go SDK. It is the alternative to the hand-rolled openai client for
// OpenAI-compatible gateways that the SDK handles better (DeepSeek, proxies).
package openaisdk

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/mlespinoza1/swarm/internal/domain"
)

// TokenSource supplies the API key at request time.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Client implements completions using openai.Client.
type Client struct {
	sdk    openai.Client
	tokens TokenSource
}

// New builds a Client. baseURL may be empty for the public endpoint.
func New(tokens TokenSource, baseURL string, opts ...option.RequestOption) (*Client, error) {
	if tokens == nil {
		return nil, errors.New("openaisdk: token source must not be nil")
	}
	all := make([]option.RequestOption, 0, len(opts)+1)
	if baseURL = strings.TrimSpace(baseURL); baseURL != "" {
		all = append(all, option.WithBaseURL(baseURL))
	}
	all = append(all, opts...)
	return &Client{sdk: openai.NewClient(all...), tokens: tokens}, nil
}

// Complete sends one chat completion and returns the first choice's content.
func (c *Client) Complete(ctx context.Context, in domain.CompletionRequest) (string, error) {
	if in.Model == "" {
		return "", errors.New("openaisdk: model must not be empty")
	}
	if len(in.Messages) == 0 {
		return "", errors.New("openaisdk: messages must not be empty")
	}
	apiKey, err := c.tokens.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("openaisdk: resolve api key: %w", err)
	}

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(in.Model),
		Messages:    toSDKMessages(in.Messages),
		Temperature: openai.Float(in.Temperature),
	}
	if in.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(in.MaxTokens))
	}

	resp, err := c.sdk.Chat.Completions.New(ctx, params, option.WithAPIKey(apiKey))
	if err != nil {
		return "", fmt.Errorf("openaisdk: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openaisdk: no choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}

func toSDKMessages(msgs []domain.ChatMessage) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case "system":
			out = append(out, openai.SystemMessage(m.Content))
		case "assistant":
			out = append(out, openai.ChatCompletionMessageParamOfAssistant(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}
