// internal/store/postgres.go
package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"commit-tracker/internal/model"
)

const repositoryColumns = `id, github_repo_id, owner, name, default_branch, is_fork,
	parent_full_name, parent_id, last_synced_at, missing, db_created_at, db_updated_at`

func scanRepository(row pgx.Row) (model.Repository, error) {
	var r model.Repository
	err := row.Scan(
		&r.ID, &r.GithubRepoID, &r.Owner, &r.Name, &r.DefaultBranch, &r.IsFork,
		&r.ParentFullName, &r.ParentID, &r.LastSyncedAt, &r.Missing,
		&r.DBCreatedAt, &r.DBUpdatedAt,
	)
	return r, err
}

func (q *Queries) CreateRepository(ctx context.Context, arg CreateRepositoryParams) (model.Repository, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO repositories (github_repo_id, owner, name, default_branch, is_fork, parent_full_name)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+repositoryColumns,
		arg.GithubRepoID, arg.Owner, arg.Name, arg.DefaultBranch, arg.IsFork, arg.ParentFullName,
	)
	return scanRepository(row)
}

func (q *Queries) GetRepositoryByID(ctx context.Context, id int64) (model.Repository, error) {
	row := q.db.QueryRow(ctx, `SELECT `+repositoryColumns+` FROM repositories WHERE id = $1`, id)
	return scanRepository(row)
}

func (q *Queries) GetRepositoryByHostID(ctx context.Context, githubRepoID int64) (model.Repository, error) {
	row := q.db.QueryRow(ctx, `SELECT `+repositoryColumns+` FROM repositories WHERE github_repo_id = $1`, githubRepoID)
	return scanRepository(row)
}

func (q *Queries) GetRepositoryByFullName(ctx context.Context, owner, name string) (model.Repository, error) {
	row := q.db.QueryRow(ctx, `SELECT `+repositoryColumns+` FROM repositories WHERE owner = $1 AND name = $2`, owner, name)
	return scanRepository(row)
}

func (q *Queries) ListRepositories(ctx context.Context) ([]model.Repository, error) {
	rows, err := q.db.Query(ctx, `SELECT `+repositoryColumns+` FROM repositories ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var repos []model.Repository
	for rows.Next() {
		r, err := scanRepository(rows)
		if err != nil {
			return nil, err
		}
		repos = append(repos, r)
	}
	return repos, rows.Err()
}

func (q *Queries) UpdateRepositoryName(ctx context.Context, id int64, owner, name string) error {
	_, err := q.db.Exec(ctx, `
		UPDATE repositories SET owner = $2, name = $3, db_updated_at = now() WHERE id = $1`,
		id, owner, name,
	)
	return err
}

func (q *Queries) SetRepositoryParent(ctx context.Context, id, parentID int64) error {
	_, err := q.db.Exec(ctx, `
		UPDATE repositories SET parent_id = $2, db_updated_at = now() WHERE id = $1`,
		id, parentID,
	)
	return err
}

func (q *Queries) UpdateRepositoryWatermark(ctx context.Context, id int64, syncedAt time.Time) error {
	_, err := q.db.Exec(ctx, `
		UPDATE repositories SET last_synced_at = $2, db_updated_at = now() WHERE id = $1`,
		id, syncedAt,
	)
	return err
}

func (q *Queries) SetRepositoryMissing(ctx context.Context, id int64, missing bool) error {
	_, err := q.db.Exec(ctx, `
		UPDATE repositories SET missing = $2, db_updated_at = now() WHERE id = $1`,
		id, missing,
	)
	return err
}

const authorColumns = `id, github_user_id, email, name, username, db_created_at`

func scanAuthor(row pgx.Row) (model.Author, error) {
	var a model.Author
	err := row.Scan(&a.ID, &a.GithubUserID, &a.Email, &a.Name, &a.Username, &a.DBCreatedAt)
	return a, err
}

func (q *Queries) CreateAuthor(ctx context.Context, arg CreateAuthorParams) (model.Author, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO authors (github_user_id, email, name, username)
		VALUES ($1, $2, $3, $4)
		RETURNING `+authorColumns,
		arg.GithubUserID, arg.Email, arg.Name, arg.Username,
	)
	return scanAuthor(row)
}

func (q *Queries) GetAuthorByHostID(ctx context.Context, githubUserID int64) (model.Author, error) {
	row := q.db.QueryRow(ctx, `SELECT `+authorColumns+` FROM authors WHERE github_user_id = $1`, githubUserID)
	return scanAuthor(row)
}

func (q *Queries) GetAuthorByEmail(ctx context.Context, email string) (model.Author, error) {
	row := q.db.QueryRow(ctx, `SELECT `+authorColumns+` FROM authors WHERE lower(email) = lower($1)`, email)
	return scanAuthor(row)
}

func (q *Queries) UpdateAuthorUsername(ctx context.Context, id int64, username string) error {
	_, err := q.db.Exec(ctx, `UPDATE authors SET username = $2 WHERE id = $1`, id, username)
	return err
}

func (q *Queries) LinkAuthorAccount(ctx context.Context, id, githubUserID int64, username string) error {
	_, err := q.db.Exec(ctx, `
		UPDATE authors SET github_user_id = $2, username = $3 WHERE id = $1 AND github_user_id IS NULL`,
		id, githubUserID, username,
	)
	return err
}

// CreateCommit inserts a commit row, reporting whether a row was
// actually created. A (repository_id, sha) conflict is the idempotent
// re-observation case, not an error.
func (q *Queries) CreateCommit(ctx context.Context, arg CreateCommitParams) (bool, error) {
	tag, err := q.db.Exec(ctx, `
		INSERT INTO commits (repository_id, author_id, sha, message, branch, commit_date)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (repository_id, sha) DO NOTHING`,
		arg.RepositoryID, arg.AuthorID, arg.SHA, arg.Message, arg.Branch, arg.CommitDate,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (q *Queries) ListCommitSHAs(ctx context.Context, repositoryID int64, branch string) ([]string, error) {
	rows, err := q.db.Query(ctx, `
		SELECT sha FROM commits WHERE repository_id = $1 AND branch = $2`,
		repositoryID, branch,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var shas []string
	for rows.Next() {
		var sha string
		if err := rows.Scan(&sha); err != nil {
			return nil, err
		}
		shas = append(shas, sha)
	}
	return shas, rows.Err()
}

func (q *Queries) ListCommitsByRepo(ctx context.Context, repositoryID int64) ([]model.Commit, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, repository_id, author_id, sha, message, branch, commit_date, db_created_at
		FROM commits WHERE repository_id = $1 ORDER BY commit_date DESC`,
		repositoryID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var commits []model.Commit
	for rows.Next() {
		var c model.Commit
		if err := rows.Scan(&c.ID, &c.RepositoryID, &c.AuthorID, &c.SHA, &c.Message, &c.Branch, &c.CommitDate, &c.DBCreatedAt); err != nil {
			return nil, err
		}
		commits = append(commits, c)
	}
	return commits, rows.Err()
}
