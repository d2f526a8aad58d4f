// internal/forks/attribution.go
package forks

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"

	"commit-tracker/internal/model"
	"commit-tracker/internal/store"
)

// Engine decides which repository record a fork's commit belongs to.
// The host's commit listing for a fork returns the full ancestry,
// upstream commits included; storing those under the fork would count
// them once per fork. Commits already recorded for the parent are
// attributed to the parent instead.
type Engine struct {
	q      store.Querier
	cache  *HashCache
	logger *slog.Logger
}

// NewEngine creates an attribution engine backed by q and cache.
func NewEngine(q store.Querier, cache *HashCache, logger *slog.Logger) *Engine {
	return &Engine{q: q, cache: cache, logger: logger}
}

// DetectAndLink records fork metadata from the host descriptor and, if
// a parent display name is present, tries to resolve it to a local
// repository id. An unresolved parent is left unlinked to be retried
// on a later sync, once the parent has been imported; that is not an
// error.
func (e *Engine) DetectAndLink(ctx context.Context, repoID int64, desc *model.RepoDescriptor) (model.ForkLink, error) {
	link := model.ForkLink{IsFork: desc.IsFork, ParentFullName: desc.ParentFullName}
	if !desc.IsFork || desc.ParentFullName == "" {
		return link, nil
	}

	owner, name, ok := strings.Cut(desc.ParentFullName, "/")
	if !ok {
		e.logger.Warn("Unparseable parent full name", "repo_id", repoID, "parent", desc.ParentFullName)
		return link, nil
	}

	parent, err := e.q.GetRepositoryByFullName(ctx, owner, name)
	if errors.Is(err, pgx.ErrNoRows) {
		e.logger.Debug("Fork parent not imported yet, leaving unlinked",
			"repo_id", repoID, "parent", desc.ParentFullName)
		return link, nil
	}
	if err != nil {
		return link, err
	}

	if err := e.q.SetRepositoryParent(ctx, repoID, parent.ID); err != nil {
		return link, err
	}
	link.ParentRepositoryID = &parent.ID
	link.ParentLinked = true
	return link, nil
}

// Target returns the repository id a fetched commit should be stored
// under: the parent's id when the parent already holds the hash, the
// fork's otherwise.
func (e *Engine) Target(repo model.Repository, sha string, parentHashes map[string]struct{}) int64 {
	if repo.ParentID == nil || parentHashes == nil {
		return repo.ID
	}
	if _, shared := parentHashes[sha]; shared {
		return *repo.ParentID
	}
	return repo.ID
}

// ParentHashes loads the full set of commit hashes recorded for the
// parent on the given branch, memoized per parent for the lifetime of
// the cache (one sync run).
func (e *Engine) ParentHashes(ctx context.Context, parentID int64, branch string) (map[string]struct{}, error) {
	return e.cache.get(ctx, e.q, parentID, branch)
}

// HashCache memoizes parent commit-hash sets per parent repository id.
// It is created per sync run and safe for use by concurrently running
// fork syncs that share a parent.
type HashCache struct {
	mu   sync.Mutex
	sets map[int64]map[string]struct{}
}

// NewHashCache creates an empty cache.
func NewHashCache() *HashCache {
	return &HashCache{sets: make(map[int64]map[string]struct{})}
}

func (c *HashCache) get(ctx context.Context, q store.Querier, parentID int64, branch string) (map[string]struct{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if set, ok := c.sets[parentID]; ok {
		return set, nil
	}
	shas, err := q.ListCommitSHAs(ctx, parentID, branch)
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(shas))
	for _, sha := range shas {
		set[sha] = struct{}{}
	}
	c.sets[parentID] = set
	return set, nil
}

// Invalidate drops the memoized set for a parent, forcing a reload on
// the next lookup.
func (c *HashCache) Invalidate(parentID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sets, parentID)
}
