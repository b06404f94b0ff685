package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/kurihiro0119/github-org-backup/internal/domain"
	apperrors "github.com/kurihiro0119/github-org-backup/internal/errors"
	"github.com/kurihiro0119/github-org-backup/internal/storage"
)

const defaultRunLimit = 20

// postgresStorage implements the Storage interface for PostgreSQL
type postgresStorage struct {
	db *sql.DB
}

// NewPostgresStorage creates a new PostgreSQL storage instance
func NewPostgresStorage(connStr string) (storage.Storage, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	s := &postgresStorage{db: db}
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Migrate runs database migrations
func (s *postgresStorage) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS backup_runs (
		id TEXT PRIMARY KEY,
		org TEXT NOT NULL,
		repository TEXT NOT NULL DEFAULT '',
		directory TEXT NOT NULL,
		files JSONB NOT NULL,
		total_batches INTEGER NOT NULL,
		failed_batches INTEGER NOT NULL,
		status TEXT NOT NULL,
		started_at TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_backup_runs_org_started ON backup_runs(org, started_at DESC);

	CREATE TABLE IF NOT EXISTS backup_batches (
		run_id TEXT NOT NULL REFERENCES backup_runs(id) ON DELETE CASCADE,
		batch_index INTEGER NOT NULL,
		repositories JSONB NOT NULL,
		migration_id BIGINT NOT NULL DEFAULT 0,
		state TEXT NOT NULL,
		archive_path TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		cleanup_warning TEXT NOT NULL DEFAULT '',
		started_at TIMESTAMPTZ,
		finished_at TIMESTAMPTZ,
		PRIMARY KEY (run_id, batch_index)
	);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// SaveRun stores a run and its batch outcomes, replacing any earlier record with the same ID
func (s *postgresStorage) SaveRun(ctx context.Context, run *domain.BackupRun, batches []domain.BatchOutcome) error {
	files, err := json.Marshal(run.Files)
	if err != nil {
		return fmt.Errorf("failed to encode files: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO backup_runs
			(id, org, repository, directory, files, total_batches, failed_batches, status, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			directory = EXCLUDED.directory,
			files = EXCLUDED.files,
			total_batches = EXCLUDED.total_batches,
			failed_batches = EXCLUDED.failed_batches,
			status = EXCLUDED.status,
			finished_at = EXCLUDED.finished_at
	`,
		run.ID,
		run.Org,
		run.Repository,
		run.Directory,
		string(files),
		run.TotalBatches,
		run.FailedBatches,
		string(run.Status),
		run.StartedAt,
		run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM backup_batches WHERE run_id = $1`, run.ID); err != nil {
		return fmt.Errorf("failed to replace batches: %w", err)
	}

	for _, b := range batches {
		repos, err := json.Marshal(b.Repositories)
		if err != nil {
			return fmt.Errorf("failed to encode repositories: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO backup_batches
				(run_id, batch_index, repositories, migration_id, state, archive_path, error, cleanup_warning, started_at, finished_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`,
			run.ID,
			b.Index,
			string(repos),
			b.MigrationID,
			string(b.State),
			b.ArchivePath,
			b.ErrorMessage,
			b.CleanupWarning,
			nullTime(b.StartedAt),
			nullTime(b.FinishedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to save batch %d: %w", b.Index, err)
		}
	}

	return tx.Commit()
}

// GetRuns returns the most recent runs of an organization, newest first
func (s *postgresStorage) GetRuns(ctx context.Context, org string, limit int) ([]*domain.BackupRun, error) {
	if limit <= 0 {
		limit = defaultRunLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, org, repository, directory, files, total_batches, failed_batches, status, started_at, finished_at
		FROM backup_runs
		WHERE org = $1
		ORDER BY started_at DESC
		LIMIT $2
	`, org, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*domain.BackupRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// GetRun returns a run with its batches
func (s *postgresStorage) GetRun(ctx context.Context, id string) (*domain.RunDetails, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, org, repository, directory, files, total_batches, failed_batches, status, started_at, finished_at
		FROM backup_runs
		WHERE id = $1
	`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("run " + id)
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT batch_index, repositories, migration_id, state, archive_path, error, cleanup_warning, started_at, finished_at
		FROM backup_batches
		WHERE run_id = $1
		ORDER BY batch_index
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	details := &domain.RunDetails{Run: run}
	for rows.Next() {
		var b domain.BatchOutcome
		var repos []byte
		var state string
		var startedAt, finishedAt sql.NullTime

		if err := rows.Scan(&b.Index, &repos, &b.MigrationID, &state, &b.ArchivePath, &b.ErrorMessage, &b.CleanupWarning, &startedAt, &finishedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(repos, &b.Repositories); err != nil {
			return nil, fmt.Errorf("failed to decode repositories: %w", err)
		}
		b.State = domain.DriverState(state)
		if startedAt.Valid {
			b.StartedAt = startedAt.Time
		}
		if finishedAt.Valid {
			b.FinishedAt = finishedAt.Time
		}
		details.Batches = append(details.Batches, &b)
	}

	return details, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*domain.BackupRun, error) {
	var r domain.BackupRun
	var files []byte
	var status string

	err := row.Scan(&r.ID, &r.Org, &r.Repository, &r.Directory, &files, &r.TotalBatches, &r.FailedBatches, &status, &r.StartedAt, &r.FinishedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(files, &r.Files); err != nil {
		return nil, fmt.Errorf("failed to decode files: %w", err)
	}
	r.Status = domain.RunStatus(status)
	return &r, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

// Close closes the database connection
func (s *postgresStorage) Close() error {
	return s.db.Close()
}
