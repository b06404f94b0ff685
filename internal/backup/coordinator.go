// Package backup runs a whole organization backup: it forms the batches,
// drives every batch concurrently and gathers the outcomes once all of them
// have settled. A failed batch never stops its siblings.
package backup

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kurihiro0119/github-org-backup/internal/domain"
	apperrors "github.com/kurihiro0119/github-org-backup/internal/errors"
	"github.com/kurihiro0119/github-org-backup/internal/logging"
	"github.com/kurihiro0119/github-org-backup/internal/provider"
)

// BatchRunner drives one batch to a final outcome
type BatchRunner interface {
	Run(ctx context.Context, org string, batch domain.RepositoryBatch, destPath string) domain.BatchOutcome
}

// Request describes one backup run
type Request struct {
	Org         string
	Repository  string // when set, only this repository is backed up and listing is skipped
	ReposPerJob int
	OutputRoot  string
}

// Result is what a finished run hands back to the caller
type Result struct {
	RunID         string
	Org           string
	Repository    string
	Directory     string
	Files         []string // archive paths ordered by batch index
	FailedBatches int
	Outcomes      []domain.BatchOutcome
	StartedAt     time.Time
	FinishedAt    time.Time
}

// Failed reports whether any batch failed
func (r *Result) Failed() bool {
	return r.FailedBatches > 0
}

// BackupRun converts the result into the record kept in the history store
func (r *Result) BackupRun() *domain.BackupRun {
	status := domain.RunStatusCompleted
	if r.Failed() {
		status = domain.RunStatusFailed
	}
	return &domain.BackupRun{
		ID:            r.RunID,
		Org:           r.Org,
		Repository:    r.Repository,
		Directory:     r.Directory,
		Files:         r.Files,
		TotalBatches:  len(r.Outcomes),
		FailedBatches: r.FailedBatches,
		Status:        status,
		StartedAt:     r.StartedAt,
		FinishedAt:    r.FinishedAt,
	}
}

// Option configures a Coordinator
type Option func(*Coordinator)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithIDGenerator replaces the run ID generator
func WithIDGenerator(newID func() string) Option {
	return func(c *Coordinator) { c.newID = newID }
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(c *Coordinator) { c.logger = logging.OrNop(logger) }
}

// Coordinator fans a run out into one BatchRunner call per batch
type Coordinator struct {
	lister provider.Lister
	runner BatchRunner
	now    func() time.Time
	newID  func() string
	logger *zap.Logger
}

// NewCoordinator creates a coordinator
func NewCoordinator(lister provider.Lister, runner BatchRunner, opts ...Option) *Coordinator {
	c := &Coordinator{
		lister: lister,
		runner: runner,
		now:    time.Now,
		newID:  func() string { return uuid.New().String() },
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run backs up every batch and waits for all of them.
// The returned error covers bootstrapping only (validation, listing, output directory);
// batch failures are reported through Result.FailedBatches.
func (c *Coordinator) Run(ctx context.Context, req Request) (*Result, error) {
	if req.Org == "" {
		return nil, apperrors.NewBadRequestError("organization is required")
	}
	if req.Repository == "" && req.ReposPerJob < 1 {
		return nil, apperrors.NewBadRequestError(fmt.Sprintf("repositories per job must be positive, got %d", req.ReposPerJob))
	}

	startedAt := c.now().UTC()
	result := &Result{
		RunID:      c.newID(),
		Org:        req.Org,
		Repository: req.Repository,
		StartedAt:  startedAt,
	}
	logger := c.logger.With(zap.String("run_id", result.RunID), zap.String("org", req.Org))

	batches, err := c.batches(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to list repositories: %w", err)
	}

	stamp := Timestamp(startedAt)
	result.Directory = DirectoryPath(req.OutputRoot, req.Org, stamp)
	if err := os.MkdirAll(result.Directory, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	logger.Info("starting backup",
		zap.Int("batches", len(batches)),
		zap.String("directory", result.Directory))

	outcomes := make([]domain.BatchOutcome, len(batches))
	var g errgroup.Group
	for i, batch := range batches {
		dest := ArchivePath(result.Directory, req.Org, batch.Index, stamp)
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					err := fmt.Errorf("batch %d: panic: %v", batch.Index, r)
					outcomes[i] = domain.BatchOutcome{
						Index:        batch.Index,
						Repositories: batch.Repositories,
						State:        domain.DriverStateFailed,
						Err:          err,
						ErrorMessage: err.Error(),
					}
				}
			}()
			outcomes[i] = c.runner.Run(ctx, req.Org, batch, dest)
			return nil
		})
	}
	_ = g.Wait()

	for _, outcome := range outcomes {
		if outcome.Succeeded() {
			result.Files = append(result.Files, outcome.ArchivePath)
			continue
		}
		result.FailedBatches++
		logger.Error("batch failed",
			zap.Int("batch", outcome.Index),
			zap.String("error", outcome.ErrorMessage))
	}
	result.Outcomes = outcomes
	result.FinishedAt = c.now().UTC()

	logger.Info("backup finished",
		zap.Int("archives", len(result.Files)),
		zap.Int("failed_batches", result.FailedBatches),
		zap.Duration("elapsed", result.FinishedAt.Sub(result.StartedAt)))

	return result, nil
}

func (c *Coordinator) batches(ctx context.Context, req Request) ([]domain.RepositoryBatch, error) {
	if req.Repository != "" {
		return []domain.RepositoryBatch{{
			Index:        0,
			Repositories: []string{FullName(req.Org, req.Repository)},
		}}, nil
	}
	return c.lister.ListRepositoryBatches(ctx, req.Org, req.ReposPerJob)
}

// FullName qualifies a bare repository name with its organization
func FullName(org, repo string) string {
	if strings.Contains(repo, "/") {
		return repo
	}
	return org + "/" + repo
}
