// internal/model/models.go
package model

import (
	"database/sql"
	"time"
)

// Repository is the locally stored record for a GitHub repository.
// GithubRepoID is the host's identifier and never changes; Owner and
// Name track the current display name and are rewritten on a detected
// rename. LastSyncedAt is the sync watermark: commits before it have
// already been ingested.
type Repository struct {
	ID             int64
	GithubRepoID   int64
	Owner          string
	Name           string
	DefaultBranch  string
	IsFork         bool
	ParentFullName *string
	ParentID       *int64
	LastSyncedAt   sql.NullTime
	Missing        bool
	DBCreatedAt    time.Time
	DBUpdatedAt    time.Time
}

// FullName returns the "owner/name" display form.
func (r Repository) FullName() string {
	return r.Owner + "/" + r.Name
}

// Author is a deduplicated commit author. GithubUserID and Email are
// both nullable but never both absent; GithubUserID wins as the
// identity key when present.
type Author struct {
	ID           int64
	GithubUserID *int64
	Email        *string
	Name         string
	Username     *string
	DBCreatedAt  time.Time
}

// Commit is a stored commit row, unique per (RepositoryID, SHA).
type Commit struct {
	ID           int64
	RepositoryID int64
	AuthorID     int64
	SHA          string
	Message      string
	Branch       string
	CommitDate   time.Time
	DBCreatedAt  time.Time
}

// RepoDescriptor is the host's view of a repository, as returned by
// the repository endpoints.
type RepoDescriptor struct {
	HostID         int64
	Owner          string
	Name           string
	DefaultBranch  string
	IsFork         bool
	ParentFullName string
}

// FullName returns the "owner/name" display form.
func (d RepoDescriptor) FullName() string {
	return d.Owner + "/" + d.Name
}

// RawAuthor carries the identity signals present on a fetched commit.
// HostUserID and Username are only set when the host has linked the
// commit to an account.
type RawAuthor struct {
	Name       string
	Email      string
	HostUserID *int64
	Username   *string
}

// CommitRecord is one commit as fetched from the host, before
// resolution and attribution.
type CommitRecord struct {
	SHA        string
	Message    string
	Author     RawAuthor
	CommitDate time.Time
}

// SyncOutcome accumulates the result of one sync run. It is returned
// to the caller and never persisted.
type SyncOutcome struct {
	RepositoryID      int64     `json:"repository_id"`
	Processed         int       `json:"commits_processed"`
	Created           int       `json:"commits_created"`
	SkippedDuplicates int       `json:"commits_skipped_duplicates"`
	SkippedBots       int       `json:"commits_skipped_bots"`
	AuthorsCreated    int       `json:"authors_created"`
	Errors            []string  `json:"errors,omitempty"`
	StartedAt         time.Time `json:"started_at"`
}

// AddError records a non-fatal per-run error.
func (o *SyncOutcome) AddError(msg string) {
	o.Errors = append(o.Errors, msg)
}

// ForkLink is the result of fork detection for a repository.
type ForkLink struct {
	IsFork             bool   `json:"is_fork"`
	ParentFullName     string `json:"parent_full_name,omitempty"`
	ParentRepositoryID *int64 `json:"parent_repository_id,omitempty"`
	ParentLinked       bool   `json:"parent_linked"`
}
