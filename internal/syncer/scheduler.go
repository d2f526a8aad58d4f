// internal/syncer/scheduler.go
package syncer

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"golang.org/x/sync/errgroup"

	custom_errors "commit-tracker/internal/errors"
	"commit-tracker/internal/model"
	"commit-tracker/internal/store"
)

// RepoIdentifier holds the owner and name of a repository.
type RepoIdentifier struct {
	Owner string
	Name  string
}

// Scheduler drives periodic sync cycles over the configured
// repositories. Repositories unseen locally are imported (with fork
// detection) on first sight.
type Scheduler struct {
	engine       *Engine
	q            store.Querier
	host         Host
	logger       *slog.Logger
	reposToSync  []RepoIdentifier
	syncInterval time.Duration
	opts         Options
}

// NewScheduler creates a Scheduler for the given "owner/name" repos.
func NewScheduler(engine *Engine, q store.Querier, host Host, logger *slog.Logger, repos []string, interval time.Duration, opts Options) (*Scheduler, error) {
	parsedRepos, err := parseRepoIdentifiers(repos)
	if err != nil {
		return nil, err
	}

	return &Scheduler{
		engine:       engine,
		q:            q,
		host:         host,
		logger:       logger,
		reposToSync:  parsedRepos,
		syncInterval: interval,
		opts:         opts,
	}, nil
}

// Start begins the continuous synchronization process.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Starting syncer", "interval", s.syncInterval.String(), "concurrency", concurrency)
	ticker := time.NewTicker(s.syncInterval)
	defer ticker.Stop()

	s.RunSyncCycle(ctx) // Initial sync

	for {
		select {
		case <-ticker.C:
			s.RunSyncCycle(ctx)
		case <-ctx.Done():
			s.logger.Info("Syncer shutting down", "reason", ctx.Err())
			return
		}
	}
}

// RunSyncCycle performs a synchronization pass for all configured
// repositories concurrently. Per-repository failures are logged, never
// propagated, so one bad repository cannot starve the rest.
func (s *Scheduler) RunSyncCycle(ctx context.Context) {
	s.logger.Info("Starting new sync cycle")
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, repoID := range s.reposToSync {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			outcome, err := s.syncOne(gctx, repoID)
			switch {
			case err != nil && !errors.Is(err, context.Canceled):
				s.logger.Error("Failed to sync repository", "owner", repoID.Owner, "repo", repoID.Name, "error", err)
			case err == nil && len(outcome.Errors) > 0:
				s.logger.Warn("Repository synced with errors",
					"owner", repoID.Owner, "repo", repoID.Name, "errors", outcome.Errors)
			}
			return nil
		})
	}

	_ = g.Wait()
	s.logger.Info("Sync cycle finished")
}

// syncOne resolves the configured identifier to a local record,
// importing it from the host when first seen, then runs the engine.
func (s *Scheduler) syncOne(ctx context.Context, id RepoIdentifier) (model.SyncOutcome, error) {
	repo, err := s.ensureRepository(ctx, id)
	if err != nil {
		return model.SyncOutcome{}, err
	}
	return s.engine.Sync(ctx, repo.ID, s.opts)
}

// ensureRepository returns the local record for owner/name, creating
// it from the host descriptor on first sight, fork link included.
func (s *Scheduler) ensureRepository(ctx context.Context, id RepoIdentifier) (model.Repository, error) {
	repo, err := s.q.GetRepositoryByFullName(ctx, id.Owner, id.Name)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return model.Repository{}, err
	}

	s.logger.Info("Repository not found in DB, importing from host", "owner", id.Owner, "repo", id.Name)
	desc, err := s.host.GetRepository(ctx, id.Owner, id.Name)
	if err != nil {
		return model.Repository{}, err
	}

	params := store.CreateRepositoryParams{
		GithubRepoID:  desc.HostID,
		Owner:         desc.Owner,
		Name:          desc.Name,
		DefaultBranch: desc.DefaultBranch,
		IsFork:        desc.IsFork,
	}
	if desc.ParentFullName != "" {
		parent := desc.ParentFullName
		params.ParentFullName = &parent
	}
	repo, err = s.q.CreateRepository(ctx, params)
	if err != nil {
		return model.Repository{}, err
	}

	link, err := s.engine.DetectAndLinkFork(ctx, repo.ID, desc)
	if err != nil {
		return model.Repository{}, err
	}
	if link.ParentLinked {
		repo.ParentID = link.ParentRepositoryID
	}
	return repo, nil
}

func parseRepoIdentifiers(repos []string) ([]RepoIdentifier, error) {
	var identifiers []RepoIdentifier
	for _, r := range repos {
		parts := strings.Split(r, "/")
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, &custom_errors.ErrInvalidRepoFormat{Repo: r}
		}
		identifiers = append(identifiers, RepoIdentifier{Owner: parts[0], Name: parts[1]})
	}
	return identifiers, nil
}
