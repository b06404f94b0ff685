package domain

// MigrationState is the export state reported by GitHub
type MigrationState string

const (
	MigrationStatePending   MigrationState = "pending"
	MigrationStateExporting MigrationState = "exporting"
	MigrationStateExported  MigrationState = "exported"
	MigrationStateFailed    MigrationState = "failed"
)

// MigrationJob represents one remote export job owned by a single driver run
type MigrationJob struct {
	ID           int64
	BatchIndex   int
	State        MigrationState
	Repositories []string
	DownloadURL  string // set once State is exported
}

// DriverState is the local state of a batch as it moves through the export workflow
type DriverState string

const (
	DriverStateNotStarted  DriverState = "not_started"
	DriverStateStarted     DriverState = "started"
	DriverStatePolling     DriverState = "polling"
	DriverStateExported    DriverState = "exported"
	DriverStateDownloading DriverState = "downloading"
	DriverStateCleaning    DriverState = "cleaning"
	DriverStateDone        DriverState = "done"
	DriverStateFailed      DriverState = "failed"
)

// IsTerminal reports whether no further transition can happen
func (s DriverState) IsTerminal() bool {
	return s == DriverStateDone || s == DriverStateFailed
}
