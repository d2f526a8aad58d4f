// internal/github/client.go
package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/go-github/v62/github"
	"golang.org/x/oauth2"

	apperrors "commit-tracker/internal/errors"
	"commit-tracker/internal/gateway"
	"commit-tracker/internal/model"
)

// Client is a wrapper around the go-github client. Every call is routed
// through the shared gateway so the process-wide rate budget holds.
type Client struct {
	gh     *github.Client
	gw     *gateway.Gateway
	logger *slog.Logger
}

// NewClient creates and configures a new Client instance.
// The provided token is used to create an authenticated http.Client.
func NewClient(token string, gw *gateway.Gateway, logger *slog.Logger) *Client {
	ctx := context.Background()
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	tc := oauth2.NewClient(ctx, ts)

	return &Client{
		gh:     github.NewClient(tc),
		gw:     gw,
		logger: logger,
	}
}

// SetBaseURL points the underlying client at a different API root,
// e.g. a GitHub Enterprise instance or a local test server.
func (c *Client) SetBaseURL(rawURL string) error {
	gh, err := c.gh.WithEnterpriseURLs(rawURL, rawURL)
	if err != nil {
		return err
	}
	c.gh = gh
	return nil
}

// GetRepository fetches a repository descriptor by owner and name.
func (c *Client) GetRepository(ctx context.Context, owner, name string) (*model.RepoDescriptor, error) {
	resource := fmt.Sprintf("repos/%s/%s", owner, name)
	var repo *github.Repository
	err := c.gw.Do(ctx, "get_repository", func(ctx context.Context) error {
		r, _, err := c.gh.Repositories.Get(ctx, owner, name)
		if err != nil {
			return classify(err, resource)
		}
		repo = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return toDescriptor(repo), nil
}

// GetRepositoryByID fetches a repository descriptor by the host's
// immutable numeric id. Used to detect renames: the id survives a
// rename while the full name changes.
func (c *Client) GetRepositoryByID(ctx context.Context, hostID int64) (*model.RepoDescriptor, error) {
	resource := fmt.Sprintf("repositories/%d", hostID)
	var repo *github.Repository
	err := c.gw.Do(ctx, "get_repository_by_id", func(ctx context.Context) error {
		r, _, err := c.gh.Repositories.GetByID(ctx, hostID)
		if err != nil {
			return classify(err, resource)
		}
		repo = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return toDescriptor(repo), nil
}

// ListCommits fetches a single page of commits for a branch. since may
// be zero to fetch from the beginning of history. The caller drives
// pagination; a page shorter than perPage is the last one.
func (c *Client) ListCommits(ctx context.Context, owner, name, branch string, since time.Time, page, perPage int) ([]model.CommitRecord, error) {
	resource := fmt.Sprintf("repos/%s/%s/commits", owner, name)
	opts := &github.CommitsListOptions{
		SHA:   branch,
		Since: since,
		ListOptions: github.ListOptions{
			Page:    page,
			PerPage: perPage,
		},
	}

	var commits []*github.RepositoryCommit
	err := c.gw.Do(ctx, "list_commits", func(ctx context.Context) error {
		c.logger.Debug("Fetching commits page", "owner", owner, "repo", name, "page", page)
		cs, _, err := c.gh.Repositories.ListCommits(ctx, owner, name, opts)
		if err != nil {
			return classify(err, resource)
		}
		commits = cs
		return nil
	})
	if err != nil {
		return nil, err
	}

	records := make([]model.CommitRecord, 0, len(commits))
	for _, commit := range commits {
		records = append(records, toCommitRecord(commit))
	}
	return records, nil
}

// GetUserByLogin fetches a user's profile by login.
func (c *Client) GetUserByLogin(ctx context.Context, login string) (*model.RawAuthor, error) {
	var user *github.User
	err := c.gw.Do(ctx, "get_user", func(ctx context.Context) error {
		u, _, err := c.gh.Users.Get(ctx, login)
		if err != nil {
			return classify(err, "users/"+login)
		}
		user = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return toRawAuthor(user), nil
}

// GetUserByID fetches a user's profile by the host's numeric id.
func (c *Client) GetUserByID(ctx context.Context, id int64) (*model.RawAuthor, error) {
	var user *github.User
	err := c.gw.Do(ctx, "get_user_by_id", func(ctx context.Context) error {
		u, _, err := c.gh.Users.GetByID(ctx, id)
		if err != nil {
			return classify(err, fmt.Sprintf("user/%d", id))
		}
		user = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return toRawAuthor(user), nil
}

// classify translates go-github errors into the internal taxonomy so
// the gateway and the syncer can branch on error kind instead of
// matching status strings.
func classify(err error, resource string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		return &apperrors.RateLimitError{
			ResetAt:   rateErr.Rate.Reset.Time,
			Remaining: rateErr.Rate.Remaining,
			Limit:     rateErr.Rate.Limit,
		}
	}

	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		rl := &apperrors.RateLimitError{}
		if abuseErr.RetryAfter != nil {
			rl.ResetAt = time.Now().Add(*abuseErr.RetryAfter)
		}
		return rl
	}

	var respErr *github.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		status := respErr.Response.StatusCode
		switch {
		case status == http.StatusNotFound:
			return &apperrors.NotFoundError{Resource: resource}
		case status == http.StatusTooManyRequests:
			return &apperrors.RateLimitError{ResetAt: resetFromHeaders(respErr.Response)}
		case status >= 500:
			return &apperrors.TransientError{StatusCode: status, Err: err}
		default:
			return err
		}
	}

	// No HTTP response at all: connection-level failure.
	return &apperrors.TransientError{Err: err}
}

// resetFromHeaders reads the rate-limit reset timestamp, if present.
func resetFromHeaders(resp *http.Response) time.Time {
	if v := resp.Header.Get("X-RateLimit-Reset"); v != "" {
		if epoch, err := strconv.ParseInt(v, 10, 64); err == nil {
			return time.Unix(epoch, 0)
		}
	}
	return time.Time{}
}

// toDescriptor translates a github.Repository to the internal descriptor.
func toDescriptor(r *github.Repository) *model.RepoDescriptor {
	d := &model.RepoDescriptor{
		HostID:        r.GetID(),
		Owner:         r.GetOwner().GetLogin(),
		Name:          r.GetName(),
		DefaultBranch: r.GetDefaultBranch(),
		IsFork:        r.GetFork(),
	}
	if d.DefaultBranch == "" {
		d.DefaultBranch = "main"
	}
	if p := r.GetParent(); p != nil {
		d.ParentFullName = p.GetFullName()
	}
	return d
}

// toCommitRecord translates a github.RepositoryCommit to the internal record.
func toCommitRecord(c *github.RepositoryCommit) model.CommitRecord {
	rec := model.CommitRecord{
		SHA:        c.GetSHA(),
		Message:    c.GetCommit().GetMessage(),
		CommitDate: c.GetCommit().GetAuthor().GetDate().Time,
		Author: model.RawAuthor{
			Name:  c.GetCommit().GetAuthor().GetName(),
			Email: c.GetCommit().GetAuthor().GetEmail(),
		},
	}
	if u := c.Author; u != nil && u.GetID() != 0 {
		id := u.GetID()
		login := u.GetLogin()
		rec.Author.HostUserID = &id
		rec.Author.Username = &login
	}
	return rec
}

func toRawAuthor(u *github.User) *model.RawAuthor {
	id := u.GetID()
	login := u.GetLogin()
	return &model.RawAuthor{
		Name:       u.GetName(),
		Email:      u.GetEmail(),
		HostUserID: &id,
		Username:   &login,
	}
}
