// internal/authors/resolver.go
package authors

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"

	apperrors "commit-tracker/internal/errors"
	"commit-tracker/internal/model"
	"commit-tracker/internal/store"
)

// Resolver maps the raw author fields on a fetched commit to a stable
// internal author record, creating one when no identity matches.
//
// Precedence is strict: the host account id is the durable key, the
// email is the fallback. An email-only author that later shows up with
// an account id gets the id backfilled; a linked author is never
// downgraded back to email-only.
type Resolver struct {
	q      store.Querier
	logger *slog.Logger
}

// Result is a resolution outcome: the stable author plus whether a new
// row was created for it.
type Result struct {
	Author  model.Author
	Created bool
}

// NewResolver creates a Resolver backed by q.
func NewResolver(q store.Querier, logger *slog.Logger) *Resolver {
	return &Resolver{q: q, logger: logger}
}

// Resolve finds or creates the author for raw. A record with neither a
// host account id nor an email is unresolvable and yields a
// MalformedError; the caller treats that as a per-commit error.
func (r *Resolver) Resolve(ctx context.Context, raw model.RawAuthor) (Result, error) {
	if raw.HostUserID != nil {
		author, err := r.q.GetAuthorByHostID(ctx, *raw.HostUserID)
		if err == nil {
			return Result{Author: r.refreshUsername(ctx, author, raw)}, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return Result{}, err
		}
	}

	if raw.Email != "" {
		author, err := r.q.GetAuthorByEmail(ctx, raw.Email)
		if err == nil {
			return Result{Author: r.linkAccount(ctx, author, raw)}, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return Result{}, err
		}
	}

	if raw.HostUserID == nil && raw.Email == "" {
		return Result{}, &apperrors.MalformedError{Reason: "commit author has neither account id nor email"}
	}

	params := store.CreateAuthorParams{
		GithubUserID: raw.HostUserID,
		Name:         raw.Name,
		Username:     raw.Username,
	}
	if raw.Email != "" {
		email := raw.Email
		params.Email = &email
	}
	author, err := r.q.CreateAuthor(ctx, params)
	if err != nil {
		return Result{}, err
	}
	r.logger.Debug("Created author", "author_id", author.ID, "name", raw.Name)
	return Result{Author: author, Created: true}, nil
}

// refreshUsername keeps the stored username current; logins change,
// the account id does not. A failed update is logged and ignored: the
// identity itself resolved fine.
func (r *Resolver) refreshUsername(ctx context.Context, author model.Author, raw model.RawAuthor) model.Author {
	if raw.Username == nil {
		return author
	}
	if author.Username != nil && *author.Username == *raw.Username {
		return author
	}
	if err := r.q.UpdateAuthorUsername(ctx, author.ID, *raw.Username); err != nil {
		r.logger.Warn("Failed to refresh author username", "author_id", author.ID, "error", err)
		return author
	}
	author.Username = raw.Username
	return author
}

// linkAccount backfills the host account id onto an author matched by
// email. This captures a previously anonymous committer linking an
// account; the reverse direction never happens.
func (r *Resolver) linkAccount(ctx context.Context, author model.Author, raw model.RawAuthor) model.Author {
	if raw.HostUserID == nil || author.GithubUserID != nil {
		return author
	}
	username := ""
	if raw.Username != nil {
		username = *raw.Username
	}
	if err := r.q.LinkAuthorAccount(ctx, author.ID, *raw.HostUserID, username); err != nil {
		r.logger.Warn("Failed to link author account", "author_id", author.ID, "error", err)
		return author
	}
	author.GithubUserID = raw.HostUserID
	author.Username = raw.Username
	return author
}
