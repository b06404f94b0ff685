// Package downloader streams migration archives to disk.
//
// A download is retried only when the connection is reset or aborted while
// the archive is being transferred. Non-success HTTP statuses and local I/O
// errors fail immediately. Between attempts the downloader waits
// attempt × BackoffUnit.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"syscall"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/kurihiro0119/github-org-backup/internal/errors"
	"github.com/kurihiro0119/github-org-backup/internal/logging"
)

const (
	DefaultMaxRetries  = 3
	DefaultBackoffUnit = time.Second
)

// SleepFunc waits for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

// Option configures a Downloader
type Option func(*Downloader)

// WithHTTPClient sets the client used for archive requests
func WithHTTPClient(client *http.Client) Option {
	return func(d *Downloader) { d.client = client }
}

// WithMaxRetries sets how many additional attempts follow a transient failure
func WithMaxRetries(n int) Option {
	return func(d *Downloader) { d.maxRetries = n }
}

// WithBackoffUnit sets the linear backoff step
func WithBackoffUnit(unit time.Duration) Option {
	return func(d *Downloader) { d.backoffUnit = unit }
}

// WithSleep replaces the wait between attempts
func WithSleep(sleep SleepFunc) Option {
	return func(d *Downloader) { d.sleep = sleep }
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(d *Downloader) { d.logger = logging.OrNop(logger) }
}

// Downloader streams remote files to local paths
type Downloader struct {
	client      *http.Client
	maxRetries  int
	backoffUnit time.Duration
	sleep       SleepFunc
	logger      *zap.Logger
}

// New creates a Downloader with 3 retries and a 1s backoff unit unless overridden
func New(opts ...Option) *Downloader {
	d := &Downloader{
		client:      &http.Client{},
		maxRetries:  DefaultMaxRetries,
		backoffUnit: DefaultBackoffUnit,
		sleep:       Sleep,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.maxRetries < 0 {
		d.maxRetries = 0
	}
	return d
}

// Download streams url into destPath and returns destPath.
// A partially written file may remain when it fails.
func (d *Downloader) Download(ctx context.Context, url, destPath string) (string, error) {
	attempts := d.maxRetries + 1
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			delay := time.Duration(attempt-1) * d.backoffUnit
			d.logger.Warn("retrying archive download",
				zap.String("path", destPath),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr))
			if err := d.sleep(ctx, delay); err != nil {
				return "", err
			}
		}

		err := d.fetch(ctx, url, destPath)
		if err == nil {
			d.logger.Debug("archive downloaded", zap.String("path", destPath), zap.Int("attempts", attempt))
			return destPath, nil
		}
		if !apperrors.IsTransient(err) {
			return "", err
		}
		lastErr = err
	}

	return "", apperrors.NewDownloadExhaustedError(attempts, lastErr)
}

func (d *Downloader) fetch(ctx context.Context, url, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build archive request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return classify(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apperrors.NewHTTPStatusError(resp.StatusCode, resp.Status)
	}

	file, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", destPath, err)
	}

	_, copyErr := io.Copy(file, resp.Body)
	closeErr := file.Close()
	if copyErr != nil {
		return classify(ctx, copyErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close %s: %w", destPath, closeErr)
	}
	return nil
}

// classify marks connection resets, aborts and truncated bodies as transient
func classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return err
	}
	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return apperrors.NewTransientTransferError(err)
	}
	return err
}

// Sleep waits for d, returning early with ctx.Err() if ctx is done
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
