package storage

import (
	"context"

	"github.com/kurihiro0119/github-org-backup/internal/domain"
	apperrors "github.com/kurihiro0119/github-org-backup/internal/errors"
)

// Storage is the abstract interface for the run history store.
// It only records finished runs; nothing reads it back to resume work.
type Storage interface {
	// Run operations
	SaveRun(ctx context.Context, run *domain.BackupRun, batches []domain.BatchOutcome) error
	GetRuns(ctx context.Context, org string, limit int) ([]*domain.BackupRun, error)
	GetRun(ctx context.Context, id string) (*domain.RunDetails, error)

	// Migration
	Migrate(ctx context.Context) error

	// Connection management
	Close() error
}

// Nop is a Storage that keeps nothing, used when STORAGE_TYPE is "none"
type Nop struct{}

func (Nop) SaveRun(context.Context, *domain.BackupRun, []domain.BatchOutcome) error { return nil }

func (Nop) GetRuns(context.Context, string, int) ([]*domain.BackupRun, error) { return nil, nil }

func (Nop) GetRun(_ context.Context, id string) (*domain.RunDetails, error) {
	return nil, apperrors.NewNotFoundError("run " + id)
}

func (Nop) Migrate(context.Context) error { return nil }

func (Nop) Close() error { return nil }
