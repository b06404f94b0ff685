package provider_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kurihiro0119/github-org-backup/internal/provider"
)

func TestRateLimiterSpacesCalls(t *testing.T) {
	rl := provider.NewRateLimiter(20*time.Millisecond, nil)
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, rl.Wait(ctx))
	require.NoError(t, rl.Wait(ctx))
	require.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestRateLimiterWaitsForReset(t *testing.T) {
	t.Run("reset_in_the_past", func(t *testing.T) {
		rl := provider.NewRateLimiter(0, nil)
		rl.UpdateLimit(3, time.Now().Add(-time.Minute))

		require.NoError(t, rl.Wait(context.Background()))
		remaining, _, err := rl.CheckLimit()
		require.NoError(t, err)
		require.Equal(t, 5000, remaining)
	})

	t.Run("cancelled_while_waiting", func(t *testing.T) {
		core, logs := observer.New(zapcore.WarnLevel)
		rl := provider.NewRateLimiter(0, zap.New(core))
		rl.UpdateLimit(0, time.Now().Add(time.Hour))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		require.ErrorIs(t, rl.Wait(ctx), context.DeadlineExceeded)
		require.Len(t, logs.FilterMessage("rate limit low, waiting for reset").All(), 1)
	})
}

func TestProviderTracksRateLimitHeaders(t *testing.T) {
	reset := time.Now().Add(30 * time.Minute).Truncate(time.Second)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Limit", "5000")
		w.Header().Set("X-RateLimit-Remaining", "4321")
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", reset.Unix()))
		_, _ = fmt.Fprint(w, `{"id":7,"state":"exporting"}`)
	}))
	defer server.Close()

	rl := provider.NewRateLimiter(0, nil)
	p, err := provider.NewGitHubProvider("test-token",
		provider.WithBaseURL(server.URL),
		provider.WithRateLimiter(rl),
	)
	require.NoError(t, err)

	_, err = p.MigrationStatus(context.Background(), "acme", 7)
	require.NoError(t, err)

	remaining, resetTime, err := rl.CheckLimit()
	require.NoError(t, err)
	require.Equal(t, 4321, remaining)
	require.True(t, reset.Equal(resetTime))
}
