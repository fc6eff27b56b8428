package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/mlespinoza1/swarm/internal/domain"
	"github.com/mlespinoza1/swarm/internal/workspace"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakeAgents struct {
	names []string
	err   error
}

func (f *fakeAgents) AgentNames(_ context.Context) ([]string, error) {
	return f.names, f.err
}

type fakeLLM struct {
	responses []string
	errs      []error
	requests  []domain.CompletionRequest
}

func (f *fakeLLM) Complete(_ context.Context, in domain.CompletionRequest) (string, error) {
	i := len(f.requests)
	f.requests = append(f.requests, in)
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	if err != nil {
		return "", err
	}
	if i >= len(f.responses) {
		return "", errors.New("no llm response configured")
	}
	return f.responses[i], nil
}

type triggerCall struct {
	agent   string
	payload any
}

type fakeNotifier struct {
	calls []triggerCall
	err   error
}

func (f *fakeNotifier) Trigger(_ context.Context, agent string, payload any) (map[string]any, error) {
	f.calls = append(f.calls, triggerCall{agent: agent, payload: payload})
	if f.err != nil {
		return nil, f.err
	}
	return map[string]any{"status": "queued"}, nil
}

type fakeCodeGen struct {
	code   string
	err    error
	inputs []string
}

func (f *fakeCodeGen) Generate(_ context.Context, input string) (string, error) {
	f.inputs = append(f.inputs, input)
	return f.code, f.err
}

type fakeRecorder struct {
	runs []domain.Run
	err  error
}

func (f *fakeRecorder) SaveRun(_ context.Context, run domain.Run) error {
	f.runs = append(f.runs, run)
	return f.err
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

type fixture struct {
	fs       afero.Fs
	agents   *fakeAgents
	llm      *fakeLLM
	notifier *fakeNotifier
	codegen  *fakeCodeGen
	recorder *fakeRecorder
	paths    workspace.Paths
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, workspace.DefaultRequirements, []byte("Build a login form"), 0o644))
	require.NoError(t, afero.WriteFile(fs, workspace.DefaultIndex, []byte("User model exists"), 0o644))

	orig := newUUID
	newUUID = func() string { return "run-1" }
	t.Cleanup(func() { newUUID = orig })

	return &fixture{
		fs:       fs,
		agents:   &fakeAgents{names: []string{"gatherer", "interpreter", "cross-referencer"}},
		llm:      &fakeLLM{responses: []string{"Refined: login form", "Structured: add login endpoint"}},
		notifier: &fakeNotifier{},
		codegen:  &fakeCodeGen{code: "def login(): pass"},
		recorder: &fakeRecorder{},
	}
}

func (f *fixture) pipeline(t *testing.T) *Pipeline {
	t.Helper()
	ws, err := workspace.New(f.fs, f.paths)
	require.NoError(t, err)
	p, err := NewPipeline(f.agents, f.llm, f.notifier, f.codegen, ws, DefaultSettings(),
		WithRecorder(f.recorder),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	require.NoError(t, err)
	return p
}

func requireCode(t *testing.T, err error, code ErrorCode, reason string) {
	t.Helper()
	require.Error(t, err)
	var ue *Error
	require.ErrorAs(t, err, &ue)
	require.Equal(t, code, ue.Code)
	require.Equal(t, reason, ue.Reason)
}

func readFile(t *testing.T, fs afero.Fs, path string) string {
	t.Helper()
	b, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	return string(b)
}

// ---------------------------------------------------------------------------
// NewPipeline
// ---------------------------------------------------------------------------

func TestNewPipeline_NilDependencies(t *testing.T) {
	f := newFixture(t)
	ws, err := workspace.New(f.fs, workspace.Paths{})
	require.NoError(t, err)

	cases := []struct {
		name string
		fn   func() (*Pipeline, error)
	}{
		{"agents", func() (*Pipeline, error) {
			return NewPipeline(nil, f.llm, f.notifier, f.codegen, ws, Settings{})
		}},
		{"llm", func() (*Pipeline, error) {
			return NewPipeline(f.agents, nil, f.notifier, f.codegen, ws, Settings{})
		}},
		{"notifier", func() (*Pipeline, error) {
			return NewPipeline(f.agents, f.llm, nil, f.codegen, ws, Settings{})
		}},
		{"codegen", func() (*Pipeline, error) {
			return NewPipeline(f.agents, f.llm, f.notifier, nil, ws, Settings{})
		}},
		{"workspace", func() (*Pipeline, error) {
			return NewPipeline(f.agents, f.llm, f.notifier, f.codegen, nil, Settings{})
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.fn()
			require.ErrorContains(t, err, "must not be nil")
		})
	}
}

func TestNewPipeline_SettingsDefaults(t *testing.T) {
	f := newFixture(t)
	ws, err := workspace.New(f.fs, workspace.Paths{})
	require.NoError(t, err)

	p, err := NewPipeline(f.agents, f.llm, f.notifier, f.codegen, ws, Settings{Temperature: 0.2})
	require.NoError(t, err)
	require.Equal(t, "gpt-3.5-turbo", p.settings.Model)
	require.Equal(t, 1000, p.settings.RefineMaxTokens)
	require.Equal(t, 1500, p.settings.CrossReferenceMaxTokens)
	require.Equal(t, 0.2, p.settings.Temperature, "zero temperature is a valid setting and is not defaulted")
}

// ---------------------------------------------------------------------------
// Pipeline.Run: success
// ---------------------------------------------------------------------------

func TestRun_LoginFormScenario(t *testing.T) {
	f := newFixture(t)

	out, err := f.pipeline(t).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, "run-1", out.RunID)
	require.Equal(t, workspace.DefaultOutput, out.OutputPath)
	require.False(t, out.BackupCreated)
	require.False(t, out.ReportWritten)

	require.Equal(t, "def login(): pass", readFile(t, f.fs, workspace.DefaultOutput))
	exists, err := afero.Exists(f.fs, workspace.DefaultBackup)
	require.NoError(t, err)
	require.False(t, exists, "no backup without a previous output")

	// Refinement sees the exact requirements text.
	require.Len(t, f.llm.requests, 2)
	refine := f.llm.requests[0]
	require.Equal(t, "gpt-3.5-turbo", refine.Model)
	require.Equal(t, 1000, refine.MaxTokens)
	require.Equal(t, 0.5, refine.Temperature)
	require.Len(t, refine.Messages, 1)
	require.Equal(t, "user", refine.Messages[0].Role)
	require.Equal(t, "Interpret the following requirements for a codebase: \nBuild a login form", refine.Messages[0].Content)

	// Cross-reference sees the refined text and the exact index text.
	cross := f.llm.requests[1]
	require.Equal(t, 1500, cross.MaxTokens)
	require.Contains(t, cross.Messages[0].Content, "Requirements:\nRefined: login form")
	require.Contains(t, cross.Messages[0].Content, "Project Index:\nUser model exists")

	require.Equal(t, []triggerCall{
		{agent: "interpreter", payload: "Refined: login form"},
		{agent: "cross-referencer", payload: "Structured: add login endpoint"},
	}, f.notifier.calls)
	require.Equal(t, []string{"Structured: add login endpoint"}, f.codegen.inputs)
}

func TestRun_RecordsRun(t *testing.T) {
	f := newFixture(t)

	_, err := f.pipeline(t).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, f.recorder.runs, 1)

	run := f.recorder.runs[0]
	require.Equal(t, "run-1", run.ID)
	require.Equal(t, domain.RunSucceeded, run.Status)
	require.Empty(t, run.FailedStep)
	require.Empty(t, run.ErrorCode)
	require.Equal(t, workspace.DefaultOutput, run.OutputPath)
	require.False(t, run.StartedAt.IsZero())
	require.False(t, run.FinishedAt.Before(run.StartedAt))

	var names []string
	for _, s := range run.Steps {
		require.Equal(t, domain.RunSucceeded, s.Status)
		names = append(names, s.Name)
	}
	require.Equal(t, []string{
		StepLoadConfig, StepReadRequirements, StepRefine, StepTriggerRefined,
		StepReadIndex, StepCrossReference, StepTriggerStructured, StepCodeGen, StepWriteOutput,
	}, names)
}

func TestRun_TrimsModelOutput(t *testing.T) {
	f := newFixture(t)
	f.llm.responses = []string{"  Refined: login form \n", "\n\tStructured: add login endpoint  "}

	_, err := f.pipeline(t).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Refined: login form", f.notifier.calls[0].payload)
	require.Contains(t, f.llm.requests[1].Messages[0].Content, "Requirements:\nRefined: login form\n\nProject Index:")
	require.Equal(t, []string{"Structured: add login endpoint"}, f.codegen.inputs)
}

func TestRun_BacksUpPreviousOutput(t *testing.T) {
	f := newFixture(t)
	prev := []byte("def old():\n    return 1\n")
	require.NoError(t, afero.WriteFile(f.fs, workspace.DefaultOutput, prev, 0o644))
	require.NoError(t, afero.WriteFile(f.fs, workspace.DefaultBackup, []byte("older"), 0o644))

	out, err := f.pipeline(t).Run(context.Background())
	require.NoError(t, err)
	require.True(t, out.BackupCreated)
	require.Equal(t, string(prev), readFile(t, f.fs, workspace.DefaultBackup))
	require.Equal(t, "def login(): pass", readFile(t, f.fs, workspace.DefaultOutput))
	require.True(t, f.recorder.runs[0].BackupCreated)
}

func TestRun_WritesReport(t *testing.T) {
	f := newFixture(t)
	f.paths.Report = "review.html"

	out, err := f.pipeline(t).Run(context.Background())
	require.NoError(t, err)
	require.True(t, out.ReportWritten)

	page := readFile(t, f.fs, "review.html")
	require.Contains(t, page, "<h1>Run run-1</h1>")
	require.Contains(t, page, "<h2>Structured request</h2>")
	require.Contains(t, page, "Structured: add login endpoint")
	require.Contains(t, page, `<code class="language-python">def login(): pass`)

	steps := f.recorder.runs[0].Steps
	require.Equal(t, StepWriteReport, steps[len(steps)-1].Name)
}

func TestRun_RecorderFailureDoesNotFailRun(t *testing.T) {
	f := newFixture(t)
	f.recorder.err = errors.New("dynamodb unavailable")

	_, err := f.pipeline(t).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, f.recorder.runs, 1)
}

func TestRun_WithoutRecorder(t *testing.T) {
	f := newFixture(t)
	ws, err := workspace.New(f.fs, workspace.Paths{})
	require.NoError(t, err)
	p, err := NewPipeline(f.agents, f.llm, f.notifier, f.codegen, ws, DefaultSettings())
	require.NoError(t, err)

	_, err = p.Run(context.Background())
	require.NoError(t, err)
}

// ---------------------------------------------------------------------------
// Pipeline.Run: failures
// ---------------------------------------------------------------------------

func TestRun_MissingRequirementsFailsBeforeNetwork(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.fs.Remove(workspace.DefaultRequirements))

	_, err := f.pipeline(t).Run(context.Background())
	requireCode(t, err, ErrorMissingInput, "requirements_missing")
	require.ErrorIs(t, err, domain.ErrMissingInput)

	require.Empty(t, f.llm.requests)
	require.Empty(t, f.notifier.calls)
	require.Empty(t, f.codegen.inputs)

	run := f.recorder.runs[0]
	require.Equal(t, domain.RunFailed, run.Status)
	require.Equal(t, StepReadRequirements, run.FailedStep)
	require.Equal(t, string(ErrorMissingInput), run.ErrorCode)
	require.Contains(t, run.ErrorMessage, "requirements.txt")
	require.Equal(t, domain.RunFailed, run.Steps[len(run.Steps)-1].Status)
}

func TestRun_MissingIndex(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.fs.Remove(workspace.DefaultIndex))

	_, err := f.pipeline(t).Run(context.Background())
	requireCode(t, err, ErrorMissingInput, "index_missing")
	require.Len(t, f.llm.requests, 1)
	require.Len(t, f.notifier.calls, 1)
	require.Empty(t, f.codegen.inputs)
}

func TestRun_TooFewAgents(t *testing.T) {
	f := newFixture(t)
	f.agents.names = []string{"gatherer", "interpreter"}
	require.NoError(t, f.fs.Remove(workspace.DefaultRequirements))

	_, err := f.pipeline(t).Run(context.Background())
	requireCode(t, err, ErrorConfig, "swarm_agents_missing")
	require.ErrorContains(t, err, "need at least 3 agents, got 2")
	require.Equal(t, StepLoadConfig, f.recorder.runs[0].FailedStep)
	require.Empty(t, f.llm.requests)
}

func TestRun_AgentSourceError(t *testing.T) {
	f := newFixture(t)
	f.agents.err = errors.New("read ../swarm_config.yaml: no such file")

	_, err := f.pipeline(t).Run(context.Background())
	requireCode(t, err, ErrorConfig, "swarm_config_error")
	require.Empty(t, f.llm.requests)
}

func TestRun_RefinementError(t *testing.T) {
	f := newFixture(t)
	f.llm.errs = []error{errors.New("openai: unexpected status 500")}

	_, err := f.pipeline(t).Run(context.Background())
	requireCode(t, err, ErrorUpstream, "refinement_error")
	require.ErrorContains(t, err, "unexpected status 500")
	require.Len(t, f.llm.requests, 1, "no retry")
	require.Empty(t, f.notifier.calls)
}

func TestRun_CrossReferenceError(t *testing.T) {
	f := newFixture(t)
	f.llm.errs = []error{nil, errors.New("context deadline exceeded")}

	_, err := f.pipeline(t).Run(context.Background())
	requireCode(t, err, ErrorUpstream, "cross_reference_error")
	require.Len(t, f.llm.requests, 2)
	require.Len(t, f.notifier.calls, 1)
}

func TestRun_TriggerError(t *testing.T) {
	f := newFixture(t)
	f.notifier.err = errors.New("swarm: unexpected status 503")

	_, err := f.pipeline(t).Run(context.Background())
	requireCode(t, err, ErrorUpstream, "agent_trigger_error")
	require.ErrorContains(t, err, `agent "interpreter"`)
	require.Len(t, f.notifier.calls, 1, "no retry")
	require.Len(t, f.llm.requests, 1)
	require.Equal(t, StepTriggerRefined, f.recorder.runs[0].FailedStep)
}

func TestRun_CodeGenErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		code   ErrorCode
		reason string
	}{
		{
			name:   "exhausted",
			err:    fmt.Errorf("huggingface: %w after 3 attempts: connection refused", domain.ErrRetriesExhausted),
			code:   ErrorRetryExhausted,
			reason: "codegen_retries_exhausted",
		},
		{
			name:   "empty output",
			err:    fmt.Errorf("huggingface: %w", domain.ErrEmptyOutput),
			code:   ErrorEmptyOutput,
			reason: "codegen_empty_output",
		},
		{
			name:   "other",
			err:    errors.New("huggingface: resolve token: ssm down"),
			code:   ErrorUpstream,
			reason: "codegen_error",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.codegen.err = tc.err

			_, err := f.pipeline(t).Run(context.Background())
			requireCode(t, err, tc.code, tc.reason)

			exists, serr := afero.Exists(f.fs, workspace.DefaultOutput)
			require.NoError(t, serr)
			require.False(t, exists, "nothing is written after a failed generation")
			require.Equal(t, StepCodeGen, f.recorder.runs[0].FailedStep)
			require.Equal(t, string(tc.code), f.recorder.runs[0].ErrorCode)
		})
	}
}

func TestRun_WriteError(t *testing.T) {
	f := newFixture(t)
	f.fs = afero.NewReadOnlyFs(f.fs)

	_, err := f.pipeline(t).Run(context.Background())
	requireCode(t, err, ErrorIO, "output_write_error")
	require.Len(t, f.codegen.inputs, 1)
	require.Equal(t, StepWriteOutput, f.recorder.runs[0].FailedStep)
}

func TestCodeOf(t *testing.T) {
	code, ok := CodeOf(fmt.Errorf("wrapped: %w", newError(ErrorIO, "x", nil)))
	require.True(t, ok)
	require.Equal(t, ErrorIO, code)

	_, ok = CodeOf(errors.New("plain"))
	require.False(t, ok)
}

func TestError_Message(t *testing.T) {
	require.Equal(t, "usecase: CONFIG_ERROR (swarm_agents_missing)", newError(ErrorConfig, "swarm_agents_missing", nil).Error())
	require.Equal(t, "usecase: IO_ERROR (output_write_error): disk full", newError(ErrorIO, "output_write_error", errors.New("disk full")).Error())
	var nilErr *Error
	require.Empty(t, nilErr.Error())
	require.Nil(t, nilErr.Unwrap())
}

func TestFenced(t *testing.T) {
	require.Equal(t, "```python\nx = 1\n```", fenced("python", "x = 1\n"))
	require.Equal(t, "````\na ``` b\n````", fenced("", "a ``` b"))
}
