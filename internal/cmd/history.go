package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mlespinoza1/swarm/internal/app"
	"github.com/mlespinoza1/swarm/internal/config"
	"github.com/mlespinoza1/swarm/internal/domain"
)

var historyCmd = &cobra.Command{
	Use:   "history <run-id>",
	Short: "Show a recorded run",
	Long: `History prints the stored record of a previous run, including the
outcome and duration of each step. Requires history.table to be set.`,
	Args: cobra.ExactArgs(1),
	RunE: runHistory,
}

var (
	historyJSON bool // Output as JSON
)

type historyReader interface {
	GetRun(ctx context.Context, runID string) (domain.Run, error)
}

// openHistory is replaced in tests.
var openHistory = func(ctx context.Context, cfg *config.Config) (historyReader, error) {
	return app.NewHistory(ctx, cfg)
}

func init() {
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "Output the run as JSON")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openHistory(cmd.Context(), cfg)
	if err != nil {
		return err
	}

	run, err := store.GetRun(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("load run %s: %w", args[0], err)
	}

	if historyJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	}
	printRunRecord(cmd.OutOrStdout(), run)
	return nil
}

func printRunRecord(w io.Writer, run domain.Run) {
	fmt.Fprintf(w, "Run:      %s\n", run.ID)
	fmt.Fprintf(w, "Status:   %s\n", run.Status)
	fmt.Fprintf(w, "Started:  %s\n", run.StartedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "Duration: %s\n", run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond))
	if run.Status == domain.RunFailed {
		fmt.Fprintf(w, "Failed:   %s (%s)\n", run.FailedStep, run.ErrorCode)
		fmt.Fprintf(w, "Error:    %s\n", run.ErrorMessage)
	} else {
		backup := "no"
		if run.BackupCreated {
			backup = "yes"
		}
		fmt.Fprintf(w, "Output:   %s (backup: %s)\n", run.OutputPath, backup)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "STEPS")
	fmt.Fprintln(w, strings.Repeat("─", 50))
	for _, s := range run.Steps {
		fmt.Fprintf(w, "%-20s %-10s %s\n", s.Name, s.Status, s.Duration.Round(time.Millisecond))
		if s.Error != "" {
			fmt.Fprintf(w, "  %s\n", s.Error)
		}
	}
}
