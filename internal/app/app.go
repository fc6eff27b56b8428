// Package app builds the pipeline and its collaborators from a loaded
// Config. It is shared by the CLI and the Lambda entry point.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/openai/openai-go/option"

	"github.com/mlespinoza1/swarm/internal/config"
	"github.com/mlespinoza1/swarm/internal/integrations/huggingface"
	"github.com/mlespinoza1/swarm/internal/integrations/openai"
	"github.com/mlespinoza1/swarm/internal/integrations/openaisdk"
	"github.com/mlespinoza1/swarm/internal/integrations/paramstore"
	"github.com/mlespinoza1/swarm/internal/integrations/swarm"
	"github.com/mlespinoza1/swarm/internal/repository"
	"github.com/mlespinoza1/swarm/internal/usecase"
	"github.com/mlespinoza1/swarm/internal/workspace"
)

// tokenSource is satisfied by paramstore.TokenSource and paramstore.StaticToken.
type tokenSource interface {
	Token(ctx context.Context) (string, error)
}

// SwarmFile reads agent names from the swarm configuration file on every
// run.
type SwarmFile struct {
	Path string
}

func (s SwarmFile) AgentNames(_ context.Context) ([]string, error) {
	sc, err := config.LoadSwarm(s.Path)
	if err != nil {
		return nil, err
	}
	return sc.AgentNames(), nil
}

// awsLoader loads the AWS SDK config once, on first use.
type awsLoader struct {
	cfg    aws.Config
	loaded bool
}

func (l *awsLoader) load(ctx context.Context) (aws.Config, error) {
	if l.loaded {
		return l.cfg, nil
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return aws.Config{}, fmt.Errorf("app: load AWS config: %w", err)
	}
	l.cfg, l.loaded = cfg, true
	return cfg, nil
}

// StaticAgents is an agent list taken directly from configuration.
type StaticAgents []string

func (s StaticAgents) AgentNames(_ context.Context) ([]string, error) {
	return s, nil
}

// Components holds the long-lived collaborators of a pipeline. One set is
// built per process and shared by every run.
type Components struct {
	agents   usecase.AgentSource
	llm      usecase.LLMClient
	notifier usecase.Notifier
	codegen  usecase.CodeGenerator
	recorder usecase.RunRecorder
	settings usecase.Settings
	paths    workspace.Paths
	logger   *slog.Logger
}

// NewComponents builds the clients described by cfg. AWS is only contacted
// when secrets come from SSM or run history is enabled.
func NewComponents(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Components, error) {
	if cfg == nil {
		return nil, errors.New("app: config must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	loader := &awsLoader{}

	openaiTokens, hfTokens, err := tokenSources(ctx, cfg, loader)
	if err != nil {
		return nil, err
	}

	llm, err := newLLMClient(cfg, openaiTokens)
	if err != nil {
		return nil, err
	}

	codegen, err := huggingface.NewClient(hfTokens,
		huggingface.WithEndpoint(cfg.CodeGen.Endpoint),
		huggingface.WithResultField(cfg.CodeGen.ResultField),
		huggingface.WithRetry(cfg.CodeGen.MaxAttempts, cfg.CodeGen.RetryDelay()),
		huggingface.WithHTTPClient(&http.Client{Timeout: cfg.CodeGen.Timeout()}),
		huggingface.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("app: create code generation client: %w", err)
	}

	notifier, err := swarm.NewClient(cfg.Swarm.BaseURL,
		swarm.WithHTTPClient(&http.Client{Timeout: cfg.Swarm.Timeout()}),
	)
	if err != nil {
		return nil, fmt.Errorf("app: create swarm client: %w", err)
	}

	c := &Components{
		agents:   agentSource(cfg),
		llm:      llm,
		notifier: notifier,
		codegen:  codegen,
		settings: usecase.Settings{
			Model:                   cfg.LLM.Model,
			Temperature:             cfg.LLM.Temperature,
			RefineMaxTokens:         cfg.LLM.RefineMaxTokens,
			CrossReferenceMaxTokens: cfg.LLM.CrossReferenceMaxTokens,
		},
		paths:  cfg.Files.Paths(),
		logger: logger,
	}
	if strings.TrimSpace(cfg.History.Table) != "" {
		history, err := newHistory(ctx, cfg, loader)
		if err != nil {
			return nil, err
		}
		c.recorder = history
	}
	return c, nil
}

// Pipeline returns a pipeline running against ws.
func (c *Components) Pipeline(ws usecase.Workspace) (*usecase.Pipeline, error) {
	opts := []usecase.PipelineOption{usecase.WithLogger(c.logger)}
	if c.recorder != nil {
		opts = append(opts, usecase.WithRecorder(c.recorder))
	}
	p, err := usecase.NewPipeline(c.agents, c.llm, c.notifier, c.codegen, ws, c.settings, opts...)
	if err != nil {
		return nil, fmt.Errorf("app: create pipeline: %w", err)
	}
	return p, nil
}

// NewPipeline wires a pipeline that works on the host filesystem under
// cfg.Files.Dir.
func NewPipeline(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*usecase.Pipeline, error) {
	c, err := NewComponents(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	ws, err := workspace.NewOS(cfg.Files.Dir, c.paths)
	if err != nil {
		return nil, fmt.Errorf("app: create workspace: %w", err)
	}
	return c.Pipeline(ws)
}

func agentSource(cfg *config.Config) usecase.AgentSource {
	if len(cfg.Swarm.Agents) > 0 {
		return StaticAgents(cfg.Swarm.Agents)
	}
	return SwarmFile{Path: cfg.Swarm.ConfigPath}
}

// NewHistory returns the run history store configured by cfg.
func NewHistory(ctx context.Context, cfg *config.Config) (*repository.Client, error) {
	if cfg == nil {
		return nil, errors.New("app: config must not be nil")
	}
	if strings.TrimSpace(cfg.History.Table) == "" {
		return nil, errors.New("app: run history is disabled (history.table is empty)")
	}
	return newHistory(ctx, cfg, &awsLoader{})
}

func newHistory(ctx context.Context, cfg *config.Config, loader *awsLoader) (*repository.Client, error) {
	awsCfg, err := loader.load(ctx)
	if err != nil {
		return nil, err
	}
	history, err := repository.New(awsdynamodb.NewFromConfig(awsCfg), cfg.History.Table)
	if err != nil {
		return nil, fmt.Errorf("app: create history client: %w", err)
	}
	return history, nil
}

func tokenSources(ctx context.Context, cfg *config.Config, loader *awsLoader) (openaiTokens, hfTokens tokenSource, err error) {
	prefix := strings.TrimSpace(cfg.Secrets.ParamPrefix)
	if prefix == "" {
		if strings.TrimSpace(cfg.Secrets.OpenAIAPIKey) == "" {
			return nil, nil, errors.New("app: OPENAI_API_KEY is not set")
		}
		if strings.TrimSpace(cfg.Secrets.HuggingFaceAPIKey) == "" {
			return nil, nil, errors.New("app: HUGGINGFACE_API_KEY is not set")
		}
		return paramstore.StaticToken(cfg.Secrets.OpenAIAPIKey), paramstore.StaticToken(cfg.Secrets.HuggingFaceAPIKey), nil
	}

	awsCfg, err := loader.load(ctx)
	if err != nil {
		return nil, nil, err
	}
	params, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
	if err != nil {
		return nil, nil, fmt.Errorf("app: create SSM client: %w", err)
	}
	oa, err := paramstore.NewTokenSource(params, prefix, paramstore.OpenAITokenName)
	if err != nil {
		return nil, nil, fmt.Errorf("app: %w", err)
	}
	hf, err := paramstore.NewTokenSource(params, prefix, paramstore.HuggingFaceTokenName)
	if err != nil {
		return nil, nil, fmt.Errorf("app: %w", err)
	}
	return oa, hf, nil
}

func newLLMClient(cfg *config.Config, tokens tokenSource) (usecase.LLMClient, error) {
	httpClient := &http.Client{Timeout: cfg.LLM.Timeout()}
	switch cfg.LLM.Client {
	case config.LLMClientSDK:
		c, err := openaisdk.New(tokens, cfg.LLM.BaseURL,
			option.WithHTTPClient(httpClient),
			option.WithMaxRetries(0),
		)
		if err != nil {
			return nil, fmt.Errorf("app: create openai sdk client: %w", err)
		}
		return c, nil
	case config.LLMClientHTTP, "":
		opts := []openai.Option{openai.WithHTTPClient(httpClient)}
		if cfg.LLM.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.LLM.BaseURL))
		}
		c, err := openai.NewClient(tokens, opts...)
		if err != nil {
			return nil, fmt.Errorf("app: create openai client: %w", err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("app: unknown llm client %q", cfg.LLM.Client)
	}
}
