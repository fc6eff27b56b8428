package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/mlespinoza1/swarm/internal/app"
	"github.com/mlespinoza1/swarm/internal/config"
	"github.com/mlespinoza1/swarm/internal/usecase"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the gathering workflow once",
	Long: `Run executes the workflow from start to finish and stops at the first
failing step.

Steps:
- load the swarm agent list
- read and refine the requirements
- notify the second agent
- read the project index and prepare a structured request
- notify the third agent
- generate code (retried on transport failures)
- write the output file, backing up the previous one`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

var (
	runJSON bool // Output the result as JSON
)

type runner interface {
	Run(ctx context.Context) (usecase.RunOutput, error)
}

// buildRunner is replaced in tests.
var buildRunner = func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (runner, error) {
	return app.NewPipeline(ctx, cfg, logger)
}

func init() {
	runCmd.Flags().BoolVar(&runJSON, "json", false, "Output the run result as JSON")
	rootCmd.AddCommand(runCmd)
}

type runResult struct {
	RunID         string `json:"runId"`
	OutputPath    string `json:"outputPath"`
	BackupCreated bool   `json:"backupCreated"`
	ReportPath    string `json:"reportPath,omitempty"`
}

func runRun(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	r, err := buildRunner(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}

	out, err := r.Run(cmd.Context())
	if err != nil {
		return fmt.Errorf("run %s failed: %w", out.RunID, err)
	}

	res := runResult{
		RunID:         out.RunID,
		OutputPath:    out.OutputPath,
		BackupCreated: out.BackupCreated,
	}
	if out.ReportWritten {
		res.ReportPath = cfg.Files.Report
	}

	if runJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	printRunText(cmd.OutOrStdout(), res)
	return nil
}

func printRunText(w io.Writer, res runResult) {
	fmt.Fprintf(w, "Workflow completed successfully (run %s)\n", res.RunID)
	fmt.Fprintf(w, "Output: %s\n", res.OutputPath)
	if res.BackupCreated {
		fmt.Fprintln(w, "Backup: previous output saved")
	} else {
		fmt.Fprintln(w, "Backup: none")
	}
	if res.ReportPath != "" {
		fmt.Fprintf(w, "Report: %s\n", res.ReportPath)
	}
}
