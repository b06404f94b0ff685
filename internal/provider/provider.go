package provider

import (
	"context"

	"github.com/kurihiro0119/github-org-backup/internal/domain"
)

// Lister partitions an organization's repositories into batches
type Lister interface {
	// ListRepositoryBatches returns every repository of org, sorted by full name, in batches of at most perPage
	ListRepositoryBatches(ctx context.Context, org string, perPage int) ([]domain.RepositoryBatch, error)
}

// MigrationAPI is the subset of the GitHub migrations API the driver uses
type MigrationAPI interface {
	// StartMigration starts an export of exactly repos with repository locking disabled
	StartMigration(ctx context.Context, org string, repos []string) (*domain.MigrationJob, error)

	// MigrationStatus returns the current export state of a migration
	MigrationStatus(ctx context.Context, org string, id int64) (domain.MigrationState, error)

	// MigrationArchiveURL returns the one-time download URL of an exported archive
	MigrationArchiveURL(ctx context.Context, org string, id int64) (string, error)

	// DeleteMigrationArchive deletes the remote archive of a migration
	DeleteMigrationArchive(ctx context.Context, org string, id int64) error
}

// Provider is everything a backup run needs from GitHub
type Provider interface {
	Lister
	MigrationAPI
}
