package backup_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kurihiro0119/github-org-backup/internal/backup"
	"github.com/kurihiro0119/github-org-backup/internal/domain"
	"github.com/kurihiro0119/github-org-backup/internal/downloader"
	apperrors "github.com/kurihiro0119/github-org-backup/internal/errors"
	"github.com/kurihiro0119/github-org-backup/internal/migration"
	"github.com/kurihiro0119/github-org-backup/internal/provider/providertest"
)

var fixedStart = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

func fixedClock() time.Time { return fixedStart }

func noSleep(context.Context, time.Duration) error { return nil }

func archiveServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintf(w, "archive %s", r.URL.Path)
	}))
	t.Cleanup(server.Close)
	return server
}

func newCoordinator(fake *providertest.Provider) *backup.Coordinator {
	driver := migration.NewDriver(fake,
		downloader.New(downloader.WithSleep(noSleep)),
		migration.WithSleep(noSleep),
	)
	return backup.NewCoordinator(fake, driver,
		backup.WithClock(fixedClock),
		backup.WithIDGenerator(func() string { return "run-1" }),
	)
}

func threeBatches() []domain.RepositoryBatch {
	return []domain.RepositoryBatch{
		{Index: 0, Repositories: []string{"acme/a", "acme/b"}},
		{Index: 1, Repositories: []string{"acme/c", "acme/d"}},
		{Index: 2, Repositories: []string{"acme/e"}},
	}
}

func TestRunBacksUpEveryBatch(t *testing.T) {
	server := archiveServer(t)
	fake := &providertest.Provider{Batches: threeBatches(), ArchiveBaseURL: server.URL}
	root := t.TempDir()

	result, err := newCoordinator(fake).Run(context.Background(), backup.Request{
		Org:         "acme",
		ReposPerJob: 2,
		OutputRoot:  root,
	})
	require.NoError(t, err)
	require.False(t, result.Failed())
	require.Equal(t, "run-1", result.RunID)
	require.Equal(t, filepath.Join(root, "acme-backup-2024-01-02T03-04-05Z"), result.Directory)
	require.Equal(t, []string{
		filepath.Join(result.Directory, "acme-backup-0-2024-01-02T03-04-05Z.tar.gz"),
		filepath.Join(result.Directory, "acme-backup-1-2024-01-02T03-04-05Z.tar.gz"),
		filepath.Join(result.Directory, "acme-backup-2-2024-01-02T03-04-05Z.tar.gz"),
	}, result.Files)

	for _, f := range result.Files {
		content, err := os.ReadFile(f)
		require.NoError(t, err)
		require.Contains(t, string(content), "archive /")
	}
	require.Len(t, fake.Started(), 3)
	require.Len(t, fake.Deleted(), 3)
	require.Equal(t, 1, fake.ListCalls())
}

func TestRunKeepsSuccessfulBatchesWhenOneFails(t *testing.T) {
	server := archiveServer(t)
	fake := &providertest.Provider{
		Batches:        threeBatches(),
		ArchiveBaseURL: server.URL,
		Scripts: map[string]providertest.Script{
			"acme/c": {
				States:    []domain.MigrationState{domain.MigrationStateExporting},
				StatusErr: errors.New("connection refused"),
			},
		},
	}

	result, err := newCoordinator(fake).Run(context.Background(), backup.Request{
		Org:         "acme",
		ReposPerJob: 2,
		OutputRoot:  t.TempDir(),
	})
	require.NoError(t, err)
	require.True(t, result.Failed())
	require.Equal(t, 1, result.FailedBatches)
	require.Len(t, result.Files, 2)
	require.Contains(t, result.Files[0], "acme-backup-0-")
	require.Contains(t, result.Files[1], "acme-backup-2-")
	for _, f := range result.Files {
		require.FileExists(t, f)
	}

	failed := result.Outcomes[1]
	require.Equal(t, domain.DriverStateFailed, failed.State)
	require.True(t, apperrors.Is(failed.Err, apperrors.ErrCodeProvider))
	require.Contains(t, failed.ErrorMessage, "batch 1")

	run := result.BackupRun()
	require.Equal(t, domain.RunStatusFailed, run.Status)
	require.Equal(t, 3, run.TotalBatches)
	require.Equal(t, 1, run.FailedBatches)
}

func TestRunSingleRepositorySkipsListing(t *testing.T) {
	server := archiveServer(t)
	fake := &providertest.Provider{Batches: threeBatches(), ArchiveBaseURL: server.URL}

	result, err := newCoordinator(fake).Run(context.Background(), backup.Request{
		Org:        "acme",
		Repository: "solo",
		OutputRoot: t.TempDir(),
	})
	require.NoError(t, err)
	require.Equal(t, 0, fake.ListCalls())
	require.Equal(t, map[string][]string{"acme/solo": {"acme/solo"}}, fake.Started())
	require.Len(t, result.Outcomes, 1)
	require.Len(t, result.Files, 1)
	require.Equal(t, domain.RunStatusCompleted, result.BackupRun().Status)
	require.Equal(t, "solo", result.BackupRun().Repository)
}

func TestRunBootstrapFailures(t *testing.T) {
	t.Run("listing_fails", func(t *testing.T) {
		fake := &providertest.Provider{ListErr: errors.New("bad credentials")}
		root := t.TempDir()

		result, err := newCoordinator(fake).Run(context.Background(), backup.Request{Org: "acme", ReposPerJob: 2, OutputRoot: root})
		require.Nil(t, result)
		require.True(t, apperrors.Is(err, apperrors.ErrCodeProvider))
		require.Empty(t, fake.Started())

		entries, err := os.ReadDir(root)
		require.NoError(t, err)
		require.Empty(t, entries)
	})

	t.Run("missing_org", func(t *testing.T) {
		_, err := newCoordinator(&providertest.Provider{}).Run(context.Background(), backup.Request{ReposPerJob: 2})
		require.True(t, apperrors.Is(err, apperrors.ErrCodeBadRequest))
	})

	t.Run("zero_batch_size", func(t *testing.T) {
		_, err := newCoordinator(&providertest.Provider{}).Run(context.Background(), backup.Request{Org: "acme"})
		require.True(t, apperrors.Is(err, apperrors.ErrCodeBadRequest))
	})

	t.Run("output_root_is_a_file", func(t *testing.T) {
		root := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(root, nil, 0o644))

		_, err := newCoordinator(&providertest.Provider{Batches: threeBatches()}).Run(context.Background(), backup.Request{Org: "acme", ReposPerJob: 2, OutputRoot: root})
		require.ErrorContains(t, err, "output directory")
	})
}

// barrierRunner succeeds only if every batch is in flight at the same time
type barrierRunner struct {
	arrived sync.WaitGroup
	panicOn int
}

func (b *barrierRunner) Run(_ context.Context, _ string, batch domain.RepositoryBatch, destPath string) domain.BatchOutcome {
	b.arrived.Done()
	released := make(chan struct{})
	go func() {
		b.arrived.Wait()
		close(released)
	}()

	select {
	case <-released:
	case <-time.After(5 * time.Second):
		return domain.BatchOutcome{Index: batch.Index, State: domain.DriverStateFailed, ErrorMessage: "not concurrent"}
	}
	if batch.Index == b.panicOn {
		panic("driver bug")
	}
	return domain.BatchOutcome{Index: batch.Index, State: domain.DriverStateDone, ArchivePath: destPath}
}

func TestRunStartsAllBatchesConcurrently(t *testing.T) {
	batches := make([]domain.RepositoryBatch, 8)
	for i := range batches {
		batches[i] = domain.RepositoryBatch{Index: i, Repositories: []string{fmt.Sprintf("acme/r%d", i)}}
	}
	runner := &barrierRunner{panicOn: 5}
	runner.arrived.Add(len(batches))

	coordinator := backup.NewCoordinator(&providertest.Provider{Batches: batches}, runner, backup.WithClock(fixedClock))
	result, err := coordinator.Run(context.Background(), backup.Request{Org: "acme", ReposPerJob: 1, OutputRoot: t.TempDir()})
	require.NoError(t, err)
	require.Equal(t, 1, result.FailedBatches)
	require.Len(t, result.Files, 7)
	require.Contains(t, result.Outcomes[5].ErrorMessage, "panic: driver bug")
	for i, outcome := range result.Outcomes {
		require.Equal(t, i, outcome.Index)
	}
}

func TestLayout(t *testing.T) {
	stamp := backup.Timestamp(time.Date(2023, 12, 31, 23, 59, 58, 0, time.FixedZone("CET", 3600)))
	require.Equal(t, "2023-12-31T22-59-58Z", stamp)
	require.Equal(t, filepath.Join("out", "acme-backup-"+stamp), backup.DirectoryPath("out", "acme", stamp))
	require.Equal(t, filepath.Join("dir", "acme-backup-3-"+stamp+".tar.gz"), backup.ArchivePath("dir", "acme", 3, stamp))
	require.Equal(t, "acme/x", backup.FullName("acme", "x"))
	require.Equal(t, "other/x", backup.FullName("acme", "other/x"))
}
