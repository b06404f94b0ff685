package provider_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kurihiro0119/github-org-backup/internal/domain"
	apperrors "github.com/kurihiro0119/github-org-backup/internal/errors"
	"github.com/kurihiro0119/github-org-backup/internal/provider"
)

// fakeGitHub serves the repository listing and migration endpoints for org "acme"
type fakeGitHub struct {
	mu            sync.Mutex
	repos         []string
	failPage      int
	listRequests  int
	startBodies   []map[string]any
	deleteStatus  int
	migrationJSON string
}

func (f *fakeGitHub) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /orgs/acme/repos", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.listRequests++

		q := r.URL.Query()
		assert.Equal(t, "full_name", q.Get("sort"))
		assert.Equal(t, "asc", q.Get("direction"))
		assert.Equal(t, "all", q.Get("type"))

		page, _ := strconv.Atoi(q.Get("page"))
		perPage, _ := strconv.Atoi(q.Get("per_page"))
		if page == f.failPage {
			http.Error(w, `{"message":"server error"}`, http.StatusInternalServerError)
			return
		}

		sorted := append([]string(nil), f.repos...)
		sort.Strings(sorted)

		start := (page - 1) * perPage
		end := start + perPage
		if start > len(sorted) {
			start = len(sorted)
		}
		if end > len(sorted) {
			end = len(sorted)
		}

		items := make([]map[string]string, 0, end-start)
		for _, name := range sorted[start:end] {
			items = append(items, map[string]string{"full_name": "acme/" + name, "name": name})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(items)
	})

	mux.HandleFunc("POST /orgs/acme/migrations", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		f.mu.Lock()
		f.startBodies = append(f.startBodies, body)
		f.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		_, _ = fmt.Fprint(w, `{"id":42,"state":"pending"}`)
	})

	mux.HandleFunc("GET /orgs/acme/migrations/42", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, f.migrationJSON)
	})

	mux.HandleFunc("GET /orgs/acme/migrations/42/archive", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "https://archives.example.com/acme/42.tar.gz?token=abc", http.StatusFound)
	})

	mux.HandleFunc("DELETE /orgs/acme/migrations/42/archive", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(f.deleteStatus)
	})

	return mux
}

func newTestProvider(t *testing.T, fake *fakeGitHub) provider.Provider {
	t.Helper()
	server := httptest.NewServer(fake.handler(t))
	t.Cleanup(server.Close)

	p, err := provider.NewGitHubProvider("test-token",
		provider.WithBaseURL(server.URL),
		provider.WithRateLimiter(provider.NewRateLimiter(0, nil)),
	)
	require.NoError(t, err)
	return p
}

func batchNames(batches []domain.RepositoryBatch) [][]string {
	out := make([][]string, 0, len(batches))
	for _, b := range batches {
		out = append(out, b.Repositories)
	}
	return out
}

func TestListRepositoryBatchesPartitionsInSortedOrder(t *testing.T) {
	fake := &fakeGitHub{repos: []string{"e", "c", "a", "d", "b"}}
	p := newTestProvider(t, fake)

	batches, err := p.ListRepositoryBatches(context.Background(), "acme", 2)
	require.NoError(t, err)
	require.Equal(t, [][]string{
		{"acme/a", "acme/b"},
		{"acme/c", "acme/d"},
		{"acme/e"},
	}, batchNames(batches))
	for i, b := range batches {
		require.Equal(t, i, b.Index)
	}
	require.Equal(t, 3, fake.listRequests)
}

func TestListRepositoryBatchesCoversEveryRepositoryOnce(t *testing.T) {
	for _, total := range []int{0, 1, 6, 7, 10} {
		for _, perPage := range []int{1, 3, 5} {
			t.Run(fmt.Sprintf("repos_%d_per_page_%d", total, perPage), func(t *testing.T) {
				repos := make([]string, total)
				for i := range repos {
					repos[i] = fmt.Sprintf("repo-%02d", total-i)
				}
				fake := &fakeGitHub{repos: repos}
				p := newTestProvider(t, fake)

				batches, err := p.ListRepositoryBatches(context.Background(), "acme", perPage)
				require.NoError(t, err)
				require.Len(t, batches, (total+perPage-1)/perPage)

				var seen []string
				for _, b := range batches {
					require.LessOrEqual(t, b.Size(), perPage)
					require.NotZero(t, b.Size())
					seen = append(seen, b.Repositories...)
				}
				require.Len(t, seen, total)
				require.True(t, sort.StringsAreSorted(seen))
			})
		}
	}
}

func TestListRepositoryBatchesIsIdempotent(t *testing.T) {
	fake := &fakeGitHub{repos: []string{"z", "y", "x", "w"}}
	p := newTestProvider(t, fake)

	first, err := p.ListRepositoryBatches(context.Background(), "acme", 3)
	require.NoError(t, err)
	second, err := p.ListRepositoryBatches(context.Background(), "acme", 3)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestListRepositoryBatchesIsAllOrNothing(t *testing.T) {
	fake := &fakeGitHub{repos: []string{"a", "b", "c", "d", "e"}, failPage: 2}
	p := newTestProvider(t, fake)

	batches, err := p.ListRepositoryBatches(context.Background(), "acme", 2)
	require.Error(t, err)
	require.True(t, apperrors.Is(err, apperrors.ErrCodeProvider))
	require.Nil(t, batches)
}

func TestListRepositoryBatchesRejectsZeroPageSize(t *testing.T) {
	p := newTestProvider(t, &fakeGitHub{})

	_, err := p.ListRepositoryBatches(context.Background(), "acme", 0)
	require.True(t, apperrors.Is(err, apperrors.ErrCodeBadRequest))
}

func TestMigrationLifecycle(t *testing.T) {
	fake := &fakeGitHub{
		migrationJSON: `{"id":42,"state":"exported"}`,
		deleteStatus:  http.StatusNoContent,
	}
	p := newTestProvider(t, fake)
	ctx := context.Background()

	job, err := p.StartMigration(ctx, "acme", []string{"acme/a", "acme/b"})
	require.NoError(t, err)
	require.Equal(t, int64(42), job.ID)
	require.Equal(t, domain.MigrationStatePending, job.State)

	require.Len(t, fake.startBodies, 1)
	require.Equal(t, []any{"acme/a", "acme/b"}, fake.startBodies[0]["repositories"])
	require.Equal(t, false, fake.startBodies[0]["lock_repositories"])

	state, err := p.MigrationStatus(ctx, "acme", 42)
	require.NoError(t, err)
	require.Equal(t, domain.MigrationStateExported, state)

	archiveURL, err := p.MigrationArchiveURL(ctx, "acme", 42)
	require.NoError(t, err)
	require.Equal(t, "https://archives.example.com/acme/42.tar.gz?token=abc", archiveURL)

	require.NoError(t, p.DeleteMigrationArchive(ctx, "acme", 42))
}

func TestMigrationErrorsAreProviderErrors(t *testing.T) {
	fake := &fakeGitHub{deleteStatus: http.StatusInternalServerError}
	p := newTestProvider(t, fake)
	ctx := context.Background()

	_, err := p.MigrationStatus(ctx, "acme", 7)
	require.True(t, apperrors.Is(err, apperrors.ErrCodeProvider))

	_, err = p.StartMigration(ctx, "other", []string{"other/a"})
	require.True(t, apperrors.Is(err, apperrors.ErrCodeProvider))

	err = p.DeleteMigrationArchive(ctx, "acme", 42)
	require.True(t, apperrors.Is(err, apperrors.ErrCodeProvider))
}
