// Package providertest provides an in-memory provider.Provider for tests.
package providertest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/kurihiro0119/github-org-backup/internal/domain"
	apperrors "github.com/kurihiro0119/github-org-backup/internal/errors"
)

// Script controls how the fake answers for the migration whose first repository matches the key
type Script struct {
	StartErr   error
	States     []domain.MigrationState // returned in order; the last one repeats
	StatusErr  error                   // returned by the status check after States run out
	ArchiveErr error
	DeleteErr  error
}

// Provider is a scripted, concurrency-safe fake of provider.Provider
type Provider struct {
	Batches        []domain.RepositoryBatch
	ListErr        error
	Scripts        map[string]Script
	ArchiveBaseURL string

	mu          sync.Mutex
	nextID      int64
	keys        map[int64]string
	listCalls   int
	started     map[string][]string
	statusCalls map[int64]int
	deleted     []int64
}

func (p *Provider) script(key string) Script {
	if p.Scripts == nil {
		return Script{}
	}
	return p.Scripts[key]
}

// ListRepositoryBatches returns the configured batches
func (p *Provider) ListRepositoryBatches(_ context.Context, _ string, _ int) ([]domain.RepositoryBatch, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listCalls++
	if p.ListErr != nil {
		return nil, apperrors.NewProviderError("list repositories", p.ListErr)
	}
	return p.Batches, nil
}

// StartMigration assigns the next migration ID
func (p *Provider) StartMigration(_ context.Context, _ string, repos []string) (*domain.MigrationJob, error) {
	if len(repos) == 0 {
		return nil, apperrors.NewProviderError("start migration", errors.New("no repositories"))
	}
	key := repos[0]

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.script(key).StartErr; err != nil {
		return nil, apperrors.NewProviderError("start migration", err)
	}
	if p.keys == nil {
		p.keys = make(map[int64]string)
		p.started = make(map[string][]string)
		p.statusCalls = make(map[int64]int)
	}
	p.nextID++
	p.keys[p.nextID] = key
	p.started[key] = append([]string(nil), repos...)
	return &domain.MigrationJob{ID: p.nextID, State: domain.MigrationStatePending, Repositories: repos}, nil
}

// MigrationStatus walks the script's States; with no script the migration is exported immediately
func (p *Provider) MigrationStatus(_ context.Context, _ string, id int64) (domain.MigrationState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	key, ok := p.keys[id]
	if !ok {
		return "", apperrors.NewProviderError("migration status", fmt.Errorf("unknown migration %d", id))
	}
	s := p.script(key)
	call := p.statusCalls[id]
	p.statusCalls[id] = call + 1

	if len(s.States) == 0 {
		if s.StatusErr != nil {
			return "", apperrors.NewProviderError("migration status", s.StatusErr)
		}
		return domain.MigrationStateExported, nil
	}
	if call < len(s.States) {
		return s.States[call], nil
	}
	if s.StatusErr != nil {
		return "", apperrors.NewProviderError("migration status", s.StatusErr)
	}
	return s.States[len(s.States)-1], nil
}

// MigrationArchiveURL returns ArchiveBaseURL + "/<id>.tar.gz"
func (p *Provider) MigrationArchiveURL(_ context.Context, _ string, id int64) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.script(p.keys[id]).ArchiveErr; err != nil {
		return "", apperrors.NewProviderError("archive url", err)
	}
	return fmt.Sprintf("%s/%d.tar.gz", p.ArchiveBaseURL, id), nil
}

// DeleteMigrationArchive records the deletion
func (p *Provider) DeleteMigrationArchive(_ context.Context, _ string, id int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.script(p.keys[id]).DeleteErr; err != nil {
		return apperrors.NewProviderError("delete archive", err)
	}
	p.deleted = append(p.deleted, id)
	return nil
}

// ListCalls returns how many times the repositories were listed
func (p *Provider) ListCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.listCalls
}

// Started returns the repositories each started migration was created with, keyed by first repository
func (p *Provider) Started() map[string][]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string][]string, len(p.started))
	for k, v := range p.started {
		out[k] = v
	}
	return out
}

// StatusCalls returns how many status checks were made for a migration
func (p *Provider) StatusCalls(id int64) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.statusCalls[id]
}

// Deleted returns the IDs of migrations whose archive was deleted
func (p *Provider) Deleted() []int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int64(nil), p.deleted...)
}
