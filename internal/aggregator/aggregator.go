package aggregator

import (
	"context"
	"strings"

	"github.com/kurihiro0119/github-org-backup/internal/domain"
	apperrors "github.com/kurihiro0119/github-org-backup/internal/errors"
	"github.com/kurihiro0119/github-org-backup/internal/storage"
)

// SummaryWindow is how many recent runs a summary covers
const SummaryWindow = 100

// Aggregator defines the interface for reading backup history
type Aggregator interface {
	// Summarize aggregates the recent runs of an organization
	Summarize(ctx context.Context, org string) (*domain.BackupSummary, error)

	// ListRuns retrieves recent runs, newest first
	ListRuns(ctx context.Context, org string, limit int) ([]*domain.BackupRun, error)

	// GetRun retrieves a run with its batches
	GetRun(ctx context.Context, id string) (*domain.RunDetails, error)
}

// aggregator implements the Aggregator interface
type aggregator struct {
	storage storage.Storage
}

// NewAggregator creates a new aggregator
func NewAggregator(storage storage.Storage) Aggregator {
	return &aggregator{
		storage: storage,
	}
}

// Summarize aggregates the recent runs of an organization
func (a *aggregator) Summarize(ctx context.Context, org string) (*domain.BackupSummary, error) {
	org = strings.TrimSpace(org)
	if org == "" {
		return nil, apperrors.NewBadRequestError("organization is required")
	}

	runs, err := a.storage.GetRuns(ctx, org, SummaryWindow)
	if err != nil {
		return nil, err
	}

	summary := &domain.BackupSummary{Org: org}
	for _, run := range runs {
		summary.TotalRuns++
		switch run.Status {
		case domain.RunStatusCompleted:
			summary.SuccessfulRuns++
		case domain.RunStatusFailed:
			summary.FailedRuns++
		}
		summary.TotalArchives += len(run.Files)
		summary.FailedBatches += run.FailedBatches
	}

	// Runs come back newest first
	if len(runs) > 0 {
		last := runs[0].StartedAt
		summary.LastRunAt = &last
		summary.LastStatus = runs[0].Status
	}

	return summary, nil
}

// ListRuns retrieves recent runs, newest first
func (a *aggregator) ListRuns(ctx context.Context, org string, limit int) ([]*domain.BackupRun, error) {
	if strings.TrimSpace(org) == "" {
		return nil, apperrors.NewBadRequestError("organization is required")
	}
	if limit < 0 {
		return nil, apperrors.NewBadRequestError("limit must not be negative")
	}
	return a.storage.GetRuns(ctx, org, limit)
}

// GetRun retrieves a run with its batches
func (a *aggregator) GetRun(ctx context.Context, id string) (*domain.RunDetails, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperrors.NewBadRequestError("run id is required")
	}
	return a.storage.GetRun(ctx, id)
}
