package domain

import "time"

// Run status values. Steps use the same values.
const (
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

// Run is the persisted record of one pipeline execution.
type Run struct {
	ID            string    `json:"runId"`
	StartedAt     time.Time `json:"startedAt"`
	FinishedAt    time.Time `json:"finishedAt"`
	Status        string    `json:"status"`
	FailedStep    string    `json:"failedStep,omitempty"`
	ErrorCode     string    `json:"errorCode,omitempty"`
	ErrorMessage  string    `json:"errorMessage,omitempty"`
	OutputPath    string    `json:"outputPath,omitempty"`
	BackupCreated bool      `json:"backupCreated"`
	Steps         []Step    `json:"steps"`
}

// Step is a single stage of a run, in execution order.
type Step struct {
	Name     string        `json:"name"`
	Status   string        `json:"status"`
	Duration time.Duration `json:"durationNs"`
	Error    string        `json:"error,omitempty"`
}
