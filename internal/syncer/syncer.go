// internal/syncer/syncer.go
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"commit-tracker/internal/authors"
	apperrors "commit-tracker/internal/errors"
	"commit-tracker/internal/forks"
	"commit-tracker/internal/model"
	"commit-tracker/internal/store"
)

const (
	// Number of repositories to sync in parallel. All their host calls
	// still funnel through the one shared gateway.
	concurrency = 5

	// Host cap on commits per page.
	maxPageSize = 100
)

// botSuffixes identify bot accounts by username convention; their
// commits are counted and skipped, never stored.
var botSuffixes = []string{"[bot]", "-bot"}

// Host is the subset of the GitHub client the engine needs. Defined
// here so tests can substitute a fake.
type Host interface {
	GetRepository(ctx context.Context, owner, name string) (*model.RepoDescriptor, error)
	GetRepositoryByID(ctx context.Context, hostID int64) (*model.RepoDescriptor, error)
	ListCommits(ctx context.Context, owner, name, branch string, since time.Time, page, perPage int) ([]model.CommitRecord, error)
}

// Options controls a single sync run.
type Options struct {
	// FullSync fetches the whole history instead of resuming from the
	// watermark.
	FullSync bool
	// PageBatchSize is the page size requested from the host, capped
	// at the host maximum. Zero means the maximum.
	PageBatchSize int
}

// Engine synchronizes one repository's commit history from the host
// into the store: parent-first for forks, paginated through the
// gateway, idempotent on re-runs. Expected failures are folded into
// the returned SyncOutcome; only a missing local repository record is
// reported as an error.
type Engine struct {
	q        store.Querier
	host     Host
	resolver *authors.Resolver
	logger   *slog.Logger
	now      func() time.Time
}

// NewEngine creates an Engine.
func NewEngine(q store.Querier, host Host, logger *slog.Logger) *Engine {
	return &Engine{
		q:        q,
		host:     host,
		resolver: authors.NewResolver(q, logger),
		logger:   logger,
		now:      time.Now,
	}
}

// Sync runs the full synchronization for one repository.
func (e *Engine) Sync(ctx context.Context, repositoryID int64, opts Options) (model.SyncOutcome, error) {
	outcome := model.SyncOutcome{RepositoryID: repositoryID, StartedAt: e.now()}

	repo, err := e.q.GetRepositoryByID(ctx, repositoryID)
	if errors.Is(err, pgx.ErrNoRows) {
		return outcome, apperrors.ErrRepositoryNotFound
	}
	if err != nil {
		return outcome, err
	}

	logger := e.logger.With("owner", repo.Owner, "repo", repo.Name, "repo_id", repo.ID)
	logger.Info("Syncing repository", "full_sync", opts.FullSync)

	// Forks sync their parent first, always incrementally, so the
	// parent's hash set is current before attribution. A failing
	// parent sync never blocks the fork's own sync.
	if repo.IsFork && repo.ParentID != nil {
		if _, err := e.Sync(ctx, *repo.ParentID, Options{PageBatchSize: opts.PageBatchSize}); err != nil {
			logger.Warn("Parent sync failed, continuing with fork", "parent_id", *repo.ParentID, "error", err)
			outcome.AddError(fmt.Sprintf("parent sync: %v", err))
		}
	}

	fe := forks.NewEngine(e.q, forks.NewHashCache(), logger)

	// Probe by host id: the id survives renames, so a changed full
	// name here is a rename, and a 404 means the repository is gone.
	desc, err := e.host.GetRepositoryByID(ctx, repo.GithubRepoID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			logger.Warn("Repository gone from host, marking missing")
			if markErr := e.MarkMissing(ctx, repo.ID); markErr != nil {
				outcome.AddError(fmt.Sprintf("mark missing: %v", markErr))
			}
			return outcome, nil
		}
		outcome.AddError(fmt.Sprintf("repository probe: %v", err))
		return outcome, nil
	}
	repo, err = e.refreshFromDescriptor(ctx, logger, fe, repo, desc)
	if err != nil {
		outcome.AddError(fmt.Sprintf("refresh repository: %v", err))
		return outcome, nil
	}

	// Incremental mode resumes from the watermark; a missing watermark
	// or an explicit full sync walks the whole history.
	var since time.Time
	if !opts.FullSync && repo.LastSyncedAt.Valid {
		since = repo.LastSyncedAt.Time
	}

	// Hashes already recorded for the parent decide attribution. No
	// linked parent (or a parent imported after this fork was first
	// synced) means everything lands under the fork; already stored
	// rows are never moved retroactively.
	var parentHashes map[string]struct{}
	if repo.IsFork && repo.ParentID != nil {
		parent, err := e.q.GetRepositoryByID(ctx, *repo.ParentID)
		if err != nil {
			outcome.AddError(fmt.Sprintf("load parent: %v", err))
		} else {
			parentHashes, err = fe.ParentHashes(ctx, parent.ID, parent.DefaultBranch)
			if err != nil {
				outcome.AddError(fmt.Sprintf("load parent hashes: %v", err))
				parentHashes = nil
			}
		}
	}

	perPage := opts.PageBatchSize
	if perPage <= 0 || perPage > maxPageSize {
		perPage = maxPageSize
	}

	for page := 1; ; page++ {
		// The page boundary is the only safe cancellation point: a
		// page's commits are processed atomically with respect to the
		// outcome accumulator.
		if err := ctx.Err(); err != nil {
			outcome.AddError(fmt.Sprintf("canceled: %v", err))
			return outcome, nil
		}

		records, err := e.host.ListCommits(ctx, repo.Owner, repo.Name, repo.DefaultBranch, since, page, perPage)
		if err != nil {
			if apperrors.IsNotFound(err) {
				logger.Warn("Repository gone from host mid-sync, marking missing")
				if markErr := e.MarkMissing(ctx, repo.ID); markErr != nil {
					outcome.AddError(fmt.Sprintf("mark missing: %v", markErr))
				}
				return outcome, nil
			}
			// Retries already happened inside the gateway; record and
			// stop paging. The watermark stays put so the next run
			// re-covers this window.
			outcome.AddError(fmt.Sprintf("page %d: %v", page, err))
			return outcome, nil
		}

		for _, rec := range records {
			e.processCommit(ctx, fe, repo, rec, parentHashes, &outcome)
		}

		if len(records) < perPage {
			break
		}
	}

	if err := e.q.UpdateRepositoryWatermark(ctx, repo.ID, outcome.StartedAt); err != nil {
		outcome.AddError(fmt.Sprintf("advance watermark: %v", err))
		return outcome, nil
	}

	logger.Info("Sync finished",
		"processed", outcome.Processed, "created", outcome.Created,
		"duplicates", outcome.SkippedDuplicates, "bots", outcome.SkippedBots,
		"errors", len(outcome.Errors))
	return outcome, nil
}

// processCommit resolves, filters, attributes and persists a single
// commit. Failures are recorded on the outcome; no commit aborts the run.
func (e *Engine) processCommit(ctx context.Context, fe *forks.Engine, repo model.Repository, rec model.CommitRecord, parentHashes map[string]struct{}, outcome *model.SyncOutcome) {
	outcome.Processed++

	if rec.CommitDate.IsZero() {
		outcome.AddError(fmt.Sprintf("commit %s: missing commit date", rec.SHA))
		return
	}

	res, err := e.resolver.Resolve(ctx, rec.Author)
	if err != nil {
		outcome.AddError(fmt.Sprintf("commit %s: resolve author: %v", rec.SHA, err))
		return
	}
	if res.Created {
		outcome.AuthorsCreated++
	}

	if isBot(res.Author) {
		outcome.SkippedBots++
		return
	}

	targetID := fe.Target(repo, rec.SHA, parentHashes)
	created, err := e.q.CreateCommit(ctx, store.CreateCommitParams{
		RepositoryID: targetID,
		AuthorID:     res.Author.ID,
		SHA:          rec.SHA,
		Message:      rec.Message,
		Branch:       repo.DefaultBranch,
		CommitDate:   rec.CommitDate,
	})
	if err != nil {
		outcome.AddError(fmt.Sprintf("commit %s: store: %v", rec.SHA, err))
		return
	}
	if created {
		outcome.Created++
	} else {
		outcome.SkippedDuplicates++
	}
}

// refreshFromDescriptor applies a detected rename, restores
// availability after a successful probe, and retries the fork parent
// link if it is still unresolved.
func (e *Engine) refreshFromDescriptor(ctx context.Context, logger *slog.Logger, fe *forks.Engine, repo model.Repository, desc *model.RepoDescriptor) (model.Repository, error) {
	if desc.FullName() != repo.FullName() {
		logger.Info("Repository renamed on host", "old", repo.FullName(), "new", desc.FullName())
		if err := e.q.UpdateRepositoryName(ctx, repo.ID, desc.Owner, desc.Name); err != nil {
			return repo, err
		}
		repo.Owner = desc.Owner
		repo.Name = desc.Name
	}

	if repo.Missing {
		logger.Info("Repository reachable again, marking found")
		if err := e.MarkFound(ctx, repo.ID); err != nil {
			return repo, err
		}
		repo.Missing = false
	}

	if desc.IsFork && repo.ParentID == nil {
		link, err := fe.DetectAndLink(ctx, repo.ID, desc)
		if err != nil {
			return repo, err
		}
		if link.ParentLinked {
			repo.ParentID = link.ParentRepositoryID
		}
	}
	return repo, nil
}

// DetectAndLinkFork records fork metadata for a repository from a host
// descriptor and links the parent when it exists locally.
func (e *Engine) DetectAndLinkFork(ctx context.Context, repositoryID int64, desc *model.RepoDescriptor) (model.ForkLink, error) {
	fe := forks.NewEngine(e.q, forks.NewHashCache(), e.logger)
	return fe.DetectAndLink(ctx, repositoryID, desc)
}

// MarkMissing flags a repository as gone/inaccessible on the host.
// Only the distinguished not-found error kind triggers this; ordinary
// network or rate-limit failures leave the flag untouched.
func (e *Engine) MarkMissing(ctx context.Context, repositoryID int64) error {
	return e.q.SetRepositoryMissing(ctx, repositoryID, true)
}

// MarkFound clears the missing flag after the repository is reachable
// again.
func (e *Engine) MarkFound(ctx context.Context, repositoryID int64) error {
	return e.q.SetRepositoryMissing(ctx, repositoryID, false)
}

func isBot(author model.Author) bool {
	if author.Username == nil {
		return false
	}
	username := strings.ToLower(*author.Username)
	for _, suffix := range botSuffixes {
		if strings.HasSuffix(username, suffix) {
			return true
		}
	}
	return false
}
