package client_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/kurihiro0119/github-org-backup/internal/errors"
	"github.com/kurihiro0119/github-org-backup/pkg/client"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.HandleFunc("GET /api/v1/orgs/acme/runs", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`{"data":[{"id":"run-2","org":"acme","status":"failed","failed_batches":1},{"id":"run-1","org":"acme","status":"completed"}]}`))
	})
	mux.HandleFunc("GET /api/v1/orgs/acme/summary", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"org":"acme","total_runs":2,"failed_runs":1,"last_status":"failed"}}`))
	})
	mux.HandleFunc("GET /api/v1/runs/run-1", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"run":{"id":"run-1","org":"acme"},"batches":[{"index":0,"state":"done","archive_path":"/b/a.tar.gz"}]}}`))
	})
	mux.HandleFunc("GET /api/v1/runs/missing", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":"NOT_FOUND","message":"run missing not found"}}`))
	})
	mux.HandleFunc("GET /api/v1/runs/broken", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestClient(t *testing.T) {
	server := newServer(t)
	c := client.NewClient(server.URL)
	ctx := context.Background()

	require.NoError(t, c.HealthCheck(ctx))

	runs, err := c.GetRuns(ctx, "acme", 5)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.Equal(t, "run-2", runs[0].ID)
	require.Equal(t, 1, runs[0].FailedBatches)

	summary, err := c.GetSummary(ctx, "acme")
	require.NoError(t, err)
	require.Equal(t, 2, summary.TotalRuns)
	require.Equal(t, 1, summary.FailedRuns)

	details, err := c.GetRun(ctx, "run-1")
	require.NoError(t, err)
	require.Equal(t, "acme", details.Run.Org)
	require.Len(t, details.Batches, 1)
	require.Equal(t, "/b/a.tar.gz", details.Batches[0].ArchivePath)
}

func TestClientErrors(t *testing.T) {
	server := newServer(t)
	c := client.NewClient(server.URL)

	_, err := c.GetRun(context.Background(), "missing")
	require.True(t, apperrors.IsNotFound(err))
	require.ErrorContains(t, err, "run missing not found")

	_, err = c.GetRun(context.Background(), "broken")
	require.ErrorContains(t, err, "502")
	require.ErrorContains(t, err, "upstream exploded")
}
