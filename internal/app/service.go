package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/afero"

	"github.com/mlespinoza1/swarm/internal/workspace"
)

const seedPerm = 0o644

// GatherInput carries the documents for one run. Empty fields are left
// absent from the workspace.
type GatherInput struct {
	Requirements   string
	Index          string
	PreviousOutput string
}

// GatherOutput is the result of one in-memory run.
type GatherOutput struct {
	RunID         string
	Code          string
	BackupCreated bool
	Report        string
}

// Service runs the pipeline against a fresh in-memory workspace per call,
// so concurrent invocations never share files.
type Service struct {
	components *Components
}

func NewService(c *Components) (*Service, error) {
	if c == nil {
		return nil, errors.New("app: components must not be nil")
	}
	return &Service{components: c}, nil
}

// Gather runs the pipeline once. On failure the returned output still
// carries the run ID when one was assigned.
func (s *Service) Gather(ctx context.Context, in GatherInput) (GatherOutput, error) {
	fsys := afero.NewMemMapFs()
	ws, err := workspace.New(fsys, s.components.paths)
	if err != nil {
		return GatherOutput{}, fmt.Errorf("app: create workspace: %w", err)
	}
	paths := ws.Paths()
	seeds := []struct {
		path, content string
	}{
		{paths.Requirements, in.Requirements},
		{paths.Index, in.Index},
		{paths.Output, in.PreviousOutput},
	}
	for _, f := range seeds {
		if f.content == "" {
			continue
		}
		if err := afero.WriteFile(fsys, f.path, []byte(f.content), seedPerm); err != nil {
			return GatherOutput{}, fmt.Errorf("app: seed %s: %w", f.path, err)
		}
	}

	p, err := s.components.Pipeline(ws)
	if err != nil {
		return GatherOutput{}, err
	}
	out, err := p.Run(ctx)
	if err != nil {
		return GatherOutput{RunID: out.RunID}, err
	}

	code, err := afero.ReadFile(fsys, out.OutputPath)
	if err != nil {
		return GatherOutput{RunID: out.RunID}, fmt.Errorf("app: read output: %w", err)
	}
	res := GatherOutput{
		RunID:         out.RunID,
		Code:          string(code),
		BackupCreated: out.BackupCreated,
	}
	if out.ReportWritten {
		page, err := afero.ReadFile(fsys, paths.Report)
		if err != nil {
			return res, fmt.Errorf("app: read report: %w", err)
		}
		res.Report = string(page)
	}
	return res, nil
}
