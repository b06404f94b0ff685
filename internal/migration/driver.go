// Package migration drives one repository batch through GitHub's export workflow:
// start the migration, poll until it is exported, resolve the archive URL,
// download it, then delete the remote archive.
package migration

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kurihiro0119/github-org-backup/internal/domain"
	"github.com/kurihiro0119/github-org-backup/internal/downloader"
	apperrors "github.com/kurihiro0119/github-org-backup/internal/errors"
	"github.com/kurihiro0119/github-org-backup/internal/logging"
	"github.com/kurihiro0119/github-org-backup/internal/provider"
)

const DefaultPollInterval = 30 * time.Second

// Downloader fetches an archive URL into a local file
type Downloader interface {
	Download(ctx context.Context, url, destPath string) (string, error)
}

// TransitionFunc observes driver state changes
type TransitionFunc func(batchIndex int, from, to domain.DriverState)

// Option configures a Driver
type Option func(*Driver)

// WithPollInterval sets the wait between status checks
func WithPollInterval(interval time.Duration) Option {
	return func(d *Driver) { d.pollInterval = interval }
}

// WithMaxPollAttempts bounds the number of status checks; 0 polls until the export settles
func WithMaxPollAttempts(n int) Option {
	return func(d *Driver) { d.maxPollAttempts = n }
}

// WithSleep replaces the wait between status checks
func WithSleep(sleep downloader.SleepFunc) Option {
	return func(d *Driver) { d.sleep = sleep }
}

// WithTransitionHook registers a callback invoked on every state change
func WithTransitionHook(fn TransitionFunc) Option {
	return func(d *Driver) { d.onTransition = fn }
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(d *Driver) { d.logger = logging.OrNop(logger) }
}

// Driver runs the export workflow for a batch. It keeps no per-batch state,
// so one Driver can serve every batch of a run concurrently.
type Driver struct {
	api             provider.MigrationAPI
	downloader      Downloader
	pollInterval    time.Duration
	maxPollAttempts int
	sleep           downloader.SleepFunc
	onTransition    TransitionFunc
	logger          *zap.Logger
}

// NewDriver creates a driver polling every 30 seconds without an attempt bound
func NewDriver(api provider.MigrationAPI, dl Downloader, opts ...Option) *Driver {
	d := &Driver{
		api:          api,
		downloader:   dl,
		pollInterval: DefaultPollInterval,
		sleep:        downloader.Sleep,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start requests an export of exactly the batch's repositories
func (d *Driver) Start(ctx context.Context, org string, batch domain.RepositoryBatch) (*domain.MigrationJob, error) {
	job, err := d.api.StartMigration(ctx, org, batch.Repositories)
	if err != nil {
		return nil, err
	}
	job.BatchIndex = batch.Index
	job.Repositories = batch.Repositories
	return job, nil
}

// AwaitExport checks the job's status until it is exported.
// A failed export, a status request error or an exhausted attempt budget ends the wait with an error.
func (d *Driver) AwaitExport(ctx context.Context, org string, job *domain.MigrationJob) error {
	for attempt := 1; ; attempt++ {
		state, err := d.api.MigrationStatus(ctx, org, job.ID)
		if err != nil {
			return err
		}
		job.State = state

		switch state {
		case domain.MigrationStateExported:
			return nil
		case domain.MigrationStateFailed:
			return apperrors.NewExportFailedError(job.ID)
		}

		if d.maxPollAttempts > 0 && attempt >= d.maxPollAttempts {
			return apperrors.NewPollTimeoutError(job.ID, attempt)
		}

		d.logger.Debug("migration not exported yet",
			zap.Int("batch", job.BatchIndex),
			zap.Int64("migration_id", job.ID),
			zap.String("state", string(state)),
			zap.Int("attempt", attempt),
			zap.Duration("next_check", d.pollInterval))

		if err := d.sleep(ctx, d.pollInterval); err != nil {
			return err
		}
	}
}

// ResolveDownloadURL fetches the one-time archive URL of an exported job
func (d *Driver) ResolveDownloadURL(ctx context.Context, org string, job *domain.MigrationJob) (string, error) {
	archiveURL, err := d.api.MigrationArchiveURL(ctx, org, job.ID)
	if err != nil {
		return "", err
	}
	job.DownloadURL = archiveURL
	return archiveURL, nil
}

// Download streams the job's archive to destPath
func (d *Driver) Download(ctx context.Context, job *domain.MigrationJob, destPath string) (string, error) {
	return d.downloader.Download(ctx, job.DownloadURL, destPath)
}

// Cleanup deletes the remote archive. The returned error is a CLEANUP_WARNING and never fails the batch.
func (d *Driver) Cleanup(ctx context.Context, org string, job *domain.MigrationJob) error {
	if err := d.api.DeleteMigrationArchive(ctx, org, job.ID); err != nil {
		warning := apperrors.NewCleanupWarning(job.ID, err)
		d.logger.Warn("remote archive cleanup failed",
			zap.Int("batch", job.BatchIndex),
			zap.Int64("migration_id", job.ID),
			zap.Error(err))
		return warning
	}
	return nil
}

// Run takes the batch from not_started to done, or to failed on the first fatal error
func (d *Driver) Run(ctx context.Context, org string, batch domain.RepositoryBatch, destPath string) domain.BatchOutcome {
	r := &run{
		driver: d,
		outcome: domain.BatchOutcome{
			Index:        batch.Index,
			Repositories: batch.Repositories,
			State:        domain.DriverStateNotStarted,
			StartedAt:    time.Now(),
		},
		logger: d.logger.With(zap.Int("batch", batch.Index)),
	}

	job, err := d.Start(ctx, org, batch)
	if err != nil {
		return r.fail(err)
	}
	r.outcome.MigrationID = job.ID
	r.transition(domain.DriverStateStarted)
	r.logger.Info("migration started",
		zap.Int64("migration_id", job.ID),
		zap.Int("repositories", batch.Size()))

	r.transition(domain.DriverStatePolling)
	if err := d.AwaitExport(ctx, org, job); err != nil {
		return r.fail(err)
	}
	r.transition(domain.DriverStateExported)

	r.transition(domain.DriverStateDownloading)
	if _, err := d.ResolveDownloadURL(ctx, org, job); err != nil {
		return r.fail(err)
	}
	path, err := d.Download(ctx, job, destPath)
	if err != nil {
		return r.fail(err)
	}
	r.outcome.ArchivePath = path

	r.transition(domain.DriverStateCleaning)
	if err := d.Cleanup(ctx, org, job); err != nil {
		r.outcome.CleanupWarning = err.Error()
	}

	r.transition(domain.DriverStateDone)
	r.outcome.FinishedAt = time.Now()
	r.logger.Info("batch archived", zap.String("path", path))
	return r.outcome
}

// run holds the state of one Run call
type run struct {
	driver  *Driver
	outcome domain.BatchOutcome
	logger  *zap.Logger
}

func (r *run) transition(to domain.DriverState) {
	from := r.outcome.State
	r.outcome.State = to
	r.logger.Debug("batch state changed", zap.String("from", string(from)), zap.String("to", string(to)))
	if r.driver.onTransition != nil {
		r.driver.onTransition(r.outcome.Index, from, to)
	}
}

func (r *run) fail(err error) domain.BatchOutcome {
	wrapped := fmt.Errorf("batch %d: %w", r.outcome.Index, err)
	r.transition(domain.DriverStateFailed)
	r.outcome.ArchivePath = ""
	r.outcome.Err = wrapped
	r.outcome.ErrorMessage = wrapped.Error()
	r.outcome.FinishedAt = time.Now()
	r.logger.Error("batch failed", zap.Error(err))
	return r.outcome
}
