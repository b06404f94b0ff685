package domain

import "time"

// RunStatus represents the overall result of a backup run
type RunStatus string

const (
	RunStatusInProgress RunStatus = "in_progress"
	RunStatusCompleted  RunStatus = "completed"
	RunStatusFailed     RunStatus = "failed"
)

// BackupRun is the top-level state of one backup invocation
type BackupRun struct {
	ID            string    `json:"id"`
	Org           string    `json:"org"`
	Repository    string    `json:"repository,omitempty"` // set in single repository mode
	Directory     string    `json:"directory"`
	Files         []string  `json:"files"`
	TotalBatches  int       `json:"total_batches"`
	FailedBatches int       `json:"failed_batches"`
	Status        RunStatus `json:"status"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
}

// BatchOutcome is the final result of one batch
type BatchOutcome struct {
	Index          int         `json:"index"`
	Repositories   []string    `json:"repositories"`
	MigrationID    int64       `json:"migration_id,omitempty"`
	State          DriverState `json:"state"`
	ArchivePath    string      `json:"archive_path,omitempty"`
	Err            error       `json:"-"`
	ErrorMessage   string      `json:"error,omitempty"`
	CleanupWarning string      `json:"cleanup_warning,omitempty"`
	StartedAt      time.Time   `json:"started_at"`
	FinishedAt     time.Time   `json:"finished_at"`
}

// Succeeded reports whether the batch produced an archive
func (o BatchOutcome) Succeeded() bool {
	return o.State == DriverStateDone && o.Err == nil && o.ErrorMessage == ""
}

// RunDetails is a recorded run together with its batch outcomes
type RunDetails struct {
	Run     *BackupRun      `json:"run"`
	Batches []*BatchOutcome `json:"batches"`
}

// BackupSummary aggregates recorded runs for an organization
type BackupSummary struct {
	Org            string     `json:"org"`
	TotalRuns      int        `json:"total_runs"`
	SuccessfulRuns int        `json:"successful_runs"`
	FailedRuns     int        `json:"failed_runs"`
	TotalArchives  int        `json:"total_archives"`
	FailedBatches  int        `json:"failed_batches"`
	LastRunAt      *time.Time `json:"last_run_at,omitempty"`
	LastStatus     RunStatus  `json:"last_status,omitempty"`
}
