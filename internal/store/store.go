// internal/store/store.go
package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"commit-tracker/internal/model"
)

// DBTX is the subset of pgx used by Queries. Both *pgxpool.Pool and
// pgx.Tx satisfy it, so the same query code runs inside or outside a
// transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// CreateRepositoryParams holds the fields for a new repository row.
type CreateRepositoryParams struct {
	GithubRepoID   int64
	Owner          string
	Name           string
	DefaultBranch  string
	IsFork         bool
	ParentFullName *string
}

// CreateAuthorParams holds the fields for a new author row. At least
// one of GithubUserID and Email must be set; the table enforces it.
type CreateAuthorParams struct {
	GithubUserID *int64
	Email        *string
	Name         string
	Username     *string
}

// CreateCommitParams holds the fields for a new commit row.
type CreateCommitParams struct {
	RepositoryID int64
	AuthorID     int64
	SHA          string
	Message      string
	Branch       string
	CommitDate   time.Time
}

// Querier is the persistence interface consumed by the resolver, the
// fork engine and the syncer. Lookups that find nothing return
// pgx.ErrNoRows. The uniqueness constraints behind CreateCommit are
// the idempotence backstop: re-inserting an observed commit reports
// created == false instead of failing.
type Querier interface {
	CreateRepository(ctx context.Context, arg CreateRepositoryParams) (model.Repository, error)
	GetRepositoryByID(ctx context.Context, id int64) (model.Repository, error)
	GetRepositoryByHostID(ctx context.Context, githubRepoID int64) (model.Repository, error)
	GetRepositoryByFullName(ctx context.Context, owner, name string) (model.Repository, error)
	ListRepositories(ctx context.Context) ([]model.Repository, error)
	UpdateRepositoryName(ctx context.Context, id int64, owner, name string) error
	SetRepositoryParent(ctx context.Context, id, parentID int64) error
	UpdateRepositoryWatermark(ctx context.Context, id int64, syncedAt time.Time) error
	SetRepositoryMissing(ctx context.Context, id int64, missing bool) error

	CreateAuthor(ctx context.Context, arg CreateAuthorParams) (model.Author, error)
	GetAuthorByHostID(ctx context.Context, githubUserID int64) (model.Author, error)
	GetAuthorByEmail(ctx context.Context, email string) (model.Author, error)
	UpdateAuthorUsername(ctx context.Context, id int64, username string) error
	LinkAuthorAccount(ctx context.Context, id, githubUserID int64, username string) error

	CreateCommit(ctx context.Context, arg CreateCommitParams) (bool, error)
	ListCommitSHAs(ctx context.Context, repositoryID int64, branch string) ([]string, error)
	ListCommitsByRepo(ctx context.Context, repositoryID int64) ([]model.Commit, error)
}

// Queries implements Querier on top of a DBTX.
type Queries struct {
	db DBTX
}

// New creates a Queries bound to db.
func New(db DBTX) *Queries {
	return &Queries{db: db}
}
