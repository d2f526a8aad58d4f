// internal/errors/errors.go
package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrRepositoryNotFound is returned when a sync is requested for a
// repository id that has no local record.
var ErrRepositoryNotFound = errors.New("repository not found in local store")

// ErrInvalidRepoFormat is returned when a repository string in the config is not in 'owner/name' format.
type ErrInvalidRepoFormat struct {
	Repo string
}

func (e *ErrInvalidRepoFormat) Error() string {
	return fmt.Sprintf("invalid repository format: %q, expected 'owner/name'", e.Repo)
}

// NotFoundError means the host reported the resource absent (404).
// It is never retried; when it concerns the repository itself the
// syncer marks the repository missing.
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("host resource not found: %s", e.Resource)
}

// RateLimitError means the host rejected the call for quota reasons.
// ResetAt, when known, is the instant the quota refills.
type RateLimitError struct {
	ResetAt   time.Time
	Remaining int
	Limit     int
}

func (e *RateLimitError) Error() string {
	if e.ResetAt.IsZero() {
		return "host rate limit exceeded"
	}
	return fmt.Sprintf("host rate limit exceeded, resets at %s", e.ResetAt.Format(time.RFC3339))
}

// TransientError covers 5xx responses and connection failures; the
// gateway retries these with exponential backoff.
type TransientError struct {
	StatusCode int
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transient host error (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transient host error: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// MalformedError marks data that cannot be processed: a commit with
// no usable author identity or an unparseable timestamp. Never retried.
type MalformedError struct {
	Reason string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed host data: %s", e.Reason)
}

// IsNotFound reports whether err is a host not-found.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsRateLimit reports whether err is a host rate-limit rejection.
func IsRateLimit(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}

// IsTransient reports whether err is retryable.
func IsTransient(err error) bool {
	var tr *TransientError
	return errors.As(err, &tr)
}

// IsMalformed reports whether err marks unprocessable data.
func IsMalformed(err error) bool {
	var mf *MalformedError
	return errors.As(err, &mf)
}
