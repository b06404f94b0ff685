package provider

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v55/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/kurihiro0119/github-org-backup/internal/domain"
	apperrors "github.com/kurihiro0119/github-org-backup/internal/errors"
	"github.com/kurihiro0119/github-org-backup/internal/logging"
)

// Option configures the GitHub provider
type Option func(*githubProvider) error

// WithBaseURL points the client at another REST endpoint, such as GitHub Enterprise ("https://ghe.example.com/api/v3")
func WithBaseURL(baseURL string) Option {
	return func(p *githubProvider) error {
		if baseURL == "" {
			return nil
		}
		if !strings.HasSuffix(baseURL, "/") {
			baseURL += "/"
		}
		u, err := url.Parse(baseURL)
		if err != nil {
			return fmt.Errorf("invalid GitHub API URL %q: %w", baseURL, err)
		}
		p.client.BaseURL = u
		return nil
	}
}

// WithRateLimiter replaces the default rate limiter
func WithRateLimiter(rl RateLimiter) Option {
	return func(p *githubProvider) error {
		p.rateLimiter = rl
		return nil
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(p *githubProvider) error {
		p.logger = logging.OrNop(logger)
		return nil
	}
}

// githubProvider implements Provider using GitHub API
type githubProvider struct {
	client      *github.Client
	rateLimiter RateLimiter
	logger      *zap.Logger
}

// NewGitHubProvider creates a provider authenticated with token
func NewGitHubProvider(token string, opts ...Option) (Provider, error) {
	ctx := context.Background()
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	tc := oauth2.NewClient(ctx, ts)

	p := &githubProvider{
		client: github.NewClient(tc),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	if p.rateLimiter == nil {
		p.rateLimiter = NewRateLimiter(100*time.Millisecond, p.logger)
	}

	return p, nil
}

// ListRepositoryBatches pages through the organization's repositories, one page per batch.
// Either every page is fetched or nothing is returned.
func (p *githubProvider) ListRepositoryBatches(ctx context.Context, org string, perPage int) ([]domain.RepositoryBatch, error) {
	if perPage < 1 {
		return nil, apperrors.NewBadRequestError(fmt.Sprintf("page size must be positive, got %d", perPage))
	}

	var batches []domain.RepositoryBatch
	opts := &github.RepositoryListByOrgOptions{
		Type:        "all",
		Sort:        "full_name",
		Direction:   "asc",
		ListOptions: github.ListOptions{PerPage: perPage, Page: 1},
	}

	for {
		if err := p.rateLimiter.Wait(ctx); err != nil {
			return nil, err
		}

		repos, resp, err := p.client.Repositories.ListByOrg(ctx, org, opts)
		if err != nil {
			return nil, apperrors.NewProviderError(fmt.Sprintf("list repositories of %s (page %d)", org, opts.Page), err)
		}

		p.updateRateLimitFromResponse(resp)

		if len(repos) == 0 {
			break
		}

		names := make([]string, 0, len(repos))
		for _, repo := range repos {
			names = append(names, repo.GetFullName())
		}
		batches = append(batches, domain.RepositoryBatch{
			Index:        len(batches),
			Repositories: names,
		})

		p.logger.Debug("fetched repository page",
			zap.String("org", org),
			zap.Int("page", opts.Page),
			zap.Int("count", len(names)))

		if len(repos) < perPage {
			break
		}
		if resp != nil && resp.NextPage != 0 {
			opts.Page = resp.NextPage
		} else {
			opts.Page++
		}
	}

	return batches, nil
}

// StartMigration starts an organization migration for exactly repos, leaving them writable
func (p *githubProvider) StartMigration(ctx context.Context, org string, repos []string) (*domain.MigrationJob, error) {
	if err := p.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	migration, resp, err := p.client.Migrations.StartMigration(ctx, org, repos, &github.MigrationOptions{
		LockRepositories: false,
	})
	if err != nil {
		return nil, apperrors.NewProviderError(fmt.Sprintf("start migration for %s", org), err)
	}

	p.updateRateLimitFromResponse(resp)

	return &domain.MigrationJob{
		ID:           migration.GetID(),
		State:        domain.MigrationState(migration.GetState()),
		Repositories: repos,
	}, nil
}

// MigrationStatus returns the export state of a migration
func (p *githubProvider) MigrationStatus(ctx context.Context, org string, id int64) (domain.MigrationState, error) {
	if err := p.rateLimiter.Wait(ctx); err != nil {
		return "", err
	}

	migration, resp, err := p.client.Migrations.MigrationStatus(ctx, org, id)
	if err != nil {
		return "", apperrors.NewProviderError(fmt.Sprintf("get status of migration %d", id), err)
	}

	p.updateRateLimitFromResponse(resp)

	return domain.MigrationState(migration.GetState()), nil
}

// MigrationArchiveURL resolves the signed archive URL GitHub redirects to
func (p *githubProvider) MigrationArchiveURL(ctx context.Context, org string, id int64) (string, error) {
	if err := p.rateLimiter.Wait(ctx); err != nil {
		return "", err
	}

	archiveURL, err := p.client.Migrations.MigrationArchiveURL(ctx, org, id)
	if err != nil {
		return "", apperrors.NewProviderError(fmt.Sprintf("get archive URL of migration %d", id), err)
	}
	if archiveURL == "" {
		return "", apperrors.NewProviderError(fmt.Sprintf("get archive URL of migration %d", id), fmt.Errorf("empty redirect location"))
	}

	return archiveURL, nil
}

// DeleteMigrationArchive deletes the archive of a migration
func (p *githubProvider) DeleteMigrationArchive(ctx context.Context, org string, id int64) error {
	if err := p.rateLimiter.Wait(ctx); err != nil {
		return err
	}

	resp, err := p.client.Migrations.DeleteMigration(ctx, org, id)
	if err != nil {
		return apperrors.NewProviderError(fmt.Sprintf("delete archive of migration %d", id), err)
	}

	p.updateRateLimitFromResponse(resp)
	return nil
}

// updateRateLimitFromResponse updates the rate limiter from API response
func (p *githubProvider) updateRateLimitFromResponse(resp *github.Response) {
	if resp != nil && resp.Rate.Limit > 0 {
		p.rateLimiter.UpdateLimit(resp.Rate.Remaining, resp.Rate.Reset.Time)
	}
}
