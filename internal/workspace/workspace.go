// Package workspace reads the pipeline's input documents and writes its
// output with a single-slot backup.
package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/spf13/afero"

	"github.com/mlespinoza1/swarm/internal/domain"
)

const filePerm = 0o644

// Default file names, relative to the working directory.
const (
	DefaultRequirements = "requirements.txt"
	DefaultIndex        = "memgpt_index.md"
	DefaultOutput       = "transformed_code_output.py"
	DefaultBackup       = "transformed_code_output_backup.py"
)

// Paths locates the documents a run reads and writes. Report is optional.
type Paths struct {
	Requirements string
	Index        string
	Output       string
	Backup       string
	Report       string
}

// Workspace performs all file access for a run through an afero.Fs.
type Workspace struct {
	fs    afero.Fs
	paths Paths
}

// New returns a Workspace. Empty paths fall back to the defaults.
func New(fsys afero.Fs, paths Paths) (*Workspace, error) {
	if fsys == nil {
		return nil, errors.New("workspace: filesystem must not be nil")
	}
	paths.Requirements = orDefault(paths.Requirements, DefaultRequirements)
	paths.Index = orDefault(paths.Index, DefaultIndex)
	paths.Output = orDefault(paths.Output, DefaultOutput)
	paths.Backup = orDefault(paths.Backup, DefaultBackup)
	paths.Report = strings.TrimSpace(paths.Report)
	if paths.Output == paths.Backup {
		return nil, fmt.Errorf("workspace: output and backup paths must differ (%s)", paths.Output)
	}
	return &Workspace{fs: fsys, paths: paths}, nil
}

// NewOS returns a Workspace on the host filesystem rooted at dir. An empty
// dir means the process working directory.
func NewOS(dir string, paths Paths) (*Workspace, error) {
	var fsys afero.Fs = afero.NewOsFs()
	if dir = strings.TrimSpace(dir); dir != "" {
		fsys = afero.NewBasePathFs(fsys, dir)
	}
	return New(fsys, paths)
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return def
}

// Paths returns the resolved paths.
func (w *Workspace) Paths() Paths {
	return w.paths
}

// ReadRequirements returns the requirements document verbatim.
func (w *Workspace) ReadRequirements() (string, error) {
	return w.readInput(w.paths.Requirements)
}

// ReadIndex returns the project index document verbatim.
func (w *Workspace) ReadIndex() (string, error) {
	return w.readInput(w.paths.Index)
}

func (w *Workspace) readInput(path string) (string, error) {
	data, err := afero.ReadFile(w.fs, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("workspace: %s: %w", path, domain.ErrMissingInput)
		}
		return "", fmt.Errorf("workspace: read %s: %w", path, err)
	}
	return string(data), nil
}

// WriteOutput writes code to the output file. An existing output file is
// first copied byte-for-byte to the backup path, replacing any older backup.
// It reports whether a backup was made.
func (w *Workspace) WriteOutput(code string) (bool, error) {
	backedUp, err := w.backupOutput()
	if err != nil {
		return false, err
	}
	if err := afero.WriteFile(w.fs, w.paths.Output, []byte(code), filePerm); err != nil {
		return backedUp, fmt.Errorf("workspace: write %s: %w", w.paths.Output, err)
	}
	return backedUp, nil
}

func (w *Workspace) backupOutput() (bool, error) {
	exists, err := afero.Exists(w.fs, w.paths.Output)
	if err != nil {
		return false, fmt.Errorf("workspace: stat %s: %w", w.paths.Output, err)
	}
	if !exists {
		return false, nil
	}
	prev, err := afero.ReadFile(w.fs, w.paths.Output)
	if err != nil {
		return false, fmt.Errorf("workspace: read previous output: %w", err)
	}
	if err := afero.WriteFile(w.fs, w.paths.Backup, prev, filePerm); err != nil {
		return false, fmt.Errorf("workspace: write backup %s: %w", w.paths.Backup, err)
	}
	return true, nil
}

// OutputPath returns the path generated code is written to.
func (w *Workspace) OutputPath() string {
	return w.paths.Output
}

// HasReport reports whether a report path is configured.
func (w *Workspace) HasReport() bool {
	return w.paths.Report != ""
}

// WriteReport writes the rendered review report.
func (w *Workspace) WriteReport(data []byte) error {
	if !w.HasReport() {
		return errors.New("workspace: no report path configured")
	}
	if err := afero.WriteFile(w.fs, w.paths.Report, data, filePerm); err != nil {
		return fmt.Errorf("workspace: write report %s: %w", w.paths.Report, err)
	}
	return nil
}
