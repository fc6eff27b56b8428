package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mlespinoza1/swarm/internal/domain"
	"github.com/mlespinoza1/swarm/internal/report"
)

const (
	defaultModel                   = "gpt-3.5-turbo"
	defaultTemperature             = 0.5
	defaultRefineMaxTokens         = 1000
	defaultCrossReferenceMaxTokens = 1500

	// Agents are addressed by position in the swarm config.
	refinedAgentIndex    = 1
	structuredAgentIndex = 2
)

// Step names, in execution order.
const (
	StepLoadConfig        = "load_config"
	StepReadRequirements  = "read_requirements"
	StepRefine            = "refine"
	StepTriggerRefined    = "trigger_refined"
	StepReadIndex         = "read_index"
	StepCrossReference    = "cross_reference"
	StepTriggerStructured = "trigger_structured"
	StepCodeGen           = "codegen"
	StepWriteOutput       = "write_output"
	StepWriteReport       = "write_report"
)

type AgentSource interface {
	AgentNames(ctx context.Context) ([]string, error)
}

type LLMClient interface {
	Complete(ctx context.Context, in domain.CompletionRequest) (string, error)
}

type Notifier interface {
	Trigger(ctx context.Context, agent string, payload any) (map[string]any, error)
}

type CodeGenerator interface {
	Generate(ctx context.Context, input string) (string, error)
}

type Workspace interface {
	ReadRequirements() (string, error)
	ReadIndex() (string, error)
	WriteOutput(code string) (bool, error)
	OutputPath() string
	HasReport() bool
	WriteReport(data []byte) error
}

type RunRecorder interface {
	SaveRun(ctx context.Context, run domain.Run) error
}

// Settings are the model parameters shared by both text-generation calls.
// Zero model and token limits fall back to the defaults.
type Settings struct {
	Model                   string
	Temperature             float64
	RefineMaxTokens         int
	CrossReferenceMaxTokens int
}

type Pipeline struct {
	agents    AgentSource
	llm       LLMClient
	notifier  Notifier
	codegen   CodeGenerator
	workspace Workspace
	settings  Settings

	recorder RunRecorder
	logger   *slog.Logger
	now      func() time.Time
}

type PipelineOption func(*Pipeline)

// WithRecorder stores every run, successful or not.
func WithRecorder(r RunRecorder) PipelineOption {
	return func(p *Pipeline) {
		p.recorder = r
	}
}

func WithLogger(l *slog.Logger) PipelineOption {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

type RunOutput struct {
	RunID         string
	OutputPath    string
	BackupCreated bool
	ReportWritten bool
}

func NewPipeline(agents AgentSource, llm LLMClient, notifier Notifier, codegen CodeGenerator, ws Workspace, settings Settings, opts ...PipelineOption) (*Pipeline, error) {
	if agents == nil {
		return nil, errors.New("usecase: agent source must not be nil")
	}
	if llm == nil {
		return nil, errors.New("usecase: llm client must not be nil")
	}
	if notifier == nil {
		return nil, errors.New("usecase: notifier must not be nil")
	}
	if codegen == nil {
		return nil, errors.New("usecase: code generator must not be nil")
	}
	if ws == nil {
		return nil, errors.New("usecase: workspace must not be nil")
	}
	if strings.TrimSpace(settings.Model) == "" {
		settings.Model = defaultModel
	}
	if settings.RefineMaxTokens <= 0 {
		settings.RefineMaxTokens = defaultRefineMaxTokens
	}
	if settings.CrossReferenceMaxTokens <= 0 {
		settings.CrossReferenceMaxTokens = defaultCrossReferenceMaxTokens
	}
	p := &Pipeline{
		agents:    agents,
		llm:       llm,
		notifier:  notifier,
		codegen:   codegen,
		workspace: ws,
		settings:  settings,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// DefaultSettings returns the model parameters used when none are configured.
func DefaultSettings() Settings {
	return Settings{
		Model:                   defaultModel,
		Temperature:             defaultTemperature,
		RefineMaxTokens:         defaultRefineMaxTokens,
		CrossReferenceMaxTokens: defaultCrossReferenceMaxTokens,
	}
}

// run tracks one execution.
type run struct {
	record domain.Run
	logger *slog.Logger
	now    func() time.Time
}

// step runs fn, records its outcome, and returns its error unchanged.
func (r *run) step(name string, fn func() error) error {
	start := r.now()
	r.logger.Debug("step started", "step", name)

	err := fn()
	st := domain.Step{Name: name, Status: domain.RunSucceeded, Duration: r.now().Sub(start)}
	if err != nil {
		st.Status = domain.RunFailed
		st.Error = err.Error()
		r.record.FailedStep = name
		r.logger.Error("step failed", "step", name, "duration", st.Duration, "err", err)
	} else {
		r.logger.Info("step finished", "step", name, "duration", st.Duration)
	}
	r.record.Steps = append(r.record.Steps, st)
	return err
}

// Run executes one pass of the pipeline and stops at the first failing
// step. Failures are returned as *Error.
func (p *Pipeline) Run(ctx context.Context) (out RunOutput, err error) {
	id := newUUID()
	r := &run{
		record: domain.Run{ID: id, StartedAt: p.now()},
		logger: p.logger.With("run_id", id),
		now:    p.now,
	}
	out.RunID = id
	r.logger.Info("run started")
	defer func() { p.finish(ctx, r, err) }()

	var agents []string
	if err := r.step(StepLoadConfig, func() error {
		names, lerr := p.agents.AgentNames(ctx)
		if lerr != nil {
			return newError(ErrorConfig, "swarm_config_error", lerr)
		}
		if len(names) <= structuredAgentIndex {
			return newError(ErrorConfig, "swarm_agents_missing",
				fmt.Errorf("need at least %d agents, got %d", structuredAgentIndex+1, len(names)))
		}
		agents = names
		return nil
	}); err != nil {
		return out, err
	}

	var requirements string
	if err := r.step(StepReadRequirements, func() error {
		var rerr error
		requirements, rerr = p.workspace.ReadRequirements()
		return classifyRead(rerr, "requirements")
	}); err != nil {
		return out, err
	}

	var refined string
	if err := r.step(StepRefine, func() error {
		text, cerr := p.llm.Complete(ctx, domain.CompletionRequest{
			Model:       p.settings.Model,
			Messages:    domain.UserPrompt(refinementPrompt(requirements)),
			MaxTokens:   p.settings.RefineMaxTokens,
			Temperature: p.settings.Temperature,
		})
		if cerr != nil {
			return newError(ErrorUpstream, "refinement_error", cerr)
		}
		refined = strings.TrimSpace(text)
		return nil
	}); err != nil {
		return out, err
	}

	if err := r.step(StepTriggerRefined, func() error {
		return p.trigger(ctx, agents[refinedAgentIndex], refined)
	}); err != nil {
		return out, err
	}

	var index string
	if err := r.step(StepReadIndex, func() error {
		var rerr error
		index, rerr = p.workspace.ReadIndex()
		return classifyRead(rerr, "index")
	}); err != nil {
		return out, err
	}

	var structured string
	if err := r.step(StepCrossReference, func() error {
		text, cerr := p.llm.Complete(ctx, domain.CompletionRequest{
			Model:       p.settings.Model,
			Messages:    domain.UserPrompt(crossReferencePrompt(refined, index)),
			MaxTokens:   p.settings.CrossReferenceMaxTokens,
			Temperature: p.settings.Temperature,
		})
		if cerr != nil {
			return newError(ErrorUpstream, "cross_reference_error", cerr)
		}
		structured = strings.TrimSpace(text)
		return nil
	}); err != nil {
		return out, err
	}

	if err := r.step(StepTriggerStructured, func() error {
		return p.trigger(ctx, agents[structuredAgentIndex], structured)
	}); err != nil {
		return out, err
	}

	var code string
	if err := r.step(StepCodeGen, func() error {
		var gerr error
		code, gerr = p.codegen.Generate(ctx, structured)
		return classifyCodeGen(gerr)
	}); err != nil {
		return out, err
	}

	if err := r.step(StepWriteOutput, func() error {
		backedUp, werr := p.workspace.WriteOutput(code)
		if werr != nil {
			return newError(ErrorIO, "output_write_error", werr)
		}
		out.BackupCreated = backedUp
		return nil
	}); err != nil {
		return out, err
	}
	out.OutputPath = p.workspace.OutputPath()
	r.record.OutputPath = out.OutputPath
	r.record.BackupCreated = out.BackupCreated

	if !p.workspace.HasReport() {
		return out, nil
	}
	if err := r.step(StepWriteReport, func() error {
		page, rerr := report.Render(report.Report{
			RunID:     id,
			Generated: p.now(),
			Sections: []report.Section{
				{Title: "Requirements", Markdown: requirements},
				{Title: "Refined requirements", Markdown: refined},
				{Title: "Structured request", Markdown: structured},
				{Title: "Generated code", Markdown: fenced("python", code)},
			},
		})
		if rerr != nil {
			return newError(ErrorIO, "report_render_error", rerr)
		}
		if werr := p.workspace.WriteReport(page); werr != nil {
			return newError(ErrorIO, "report_write_error", werr)
		}
		out.ReportWritten = true
		return nil
	}); err != nil {
		return out, err
	}
	return out, nil
}

func (p *Pipeline) trigger(ctx context.Context, agent, payload string) error {
	if _, err := p.notifier.Trigger(ctx, agent, payload); err != nil {
		return newError(ErrorUpstream, "agent_trigger_error", fmt.Errorf("agent %q: %w", agent, err))
	}
	return nil
}

// finish completes the run record and hands it to the recorder. A failed
// save is logged; it never changes the run's result.
func (p *Pipeline) finish(ctx context.Context, r *run, err error) {
	r.record.FinishedAt = p.now()
	r.record.Status = domain.RunSucceeded
	if err != nil {
		r.record.Status = domain.RunFailed
		r.record.ErrorMessage = err.Error()
		if code, ok := CodeOf(err); ok {
			r.record.ErrorCode = string(code)
		}
	}
	r.logger.Info("run finished", "status", r.record.Status, "duration", r.record.FinishedAt.Sub(r.record.StartedAt))

	if p.recorder == nil {
		return
	}
	if serr := p.recorder.SaveRun(context.WithoutCancel(ctx), r.record); serr != nil {
		r.logger.Warn("save run history failed", "err", serr)
	}
}

func classifyRead(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrMissingInput) {
		return newError(ErrorMissingInput, what+"_missing", err)
	}
	return newError(ErrorIO, what+"_read_error", err)
}

func classifyCodeGen(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrRetriesExhausted):
		return newError(ErrorRetryExhausted, "codegen_retries_exhausted", err)
	case errors.Is(err, domain.ErrEmptyOutput):
		return newError(ErrorEmptyOutput, "codegen_empty_output", err)
	default:
		return newError(ErrorUpstream, "codegen_error", err)
	}
}

var newUUID = func() string {
	return uuid.NewString()
}
