// internal/github/client_test.go
package github

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-github/v62/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "commit-tracker/internal/errors"
	"commit-tracker/internal/gateway"
)

// setupTestClient creates a httptest server and a client pointing to it.
func setupTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gw := gateway.New(gateway.Config{
		RequestInterval: time.Millisecond,
		MaxAttempts:     3,
		InitialBackoff:  5 * time.Millisecond,
		MaxBackoff:      20 * time.Millisecond,
	}, logger)

	// We can pass an empty token because we are not authenticating to
	// the real GitHub.
	client := NewClient("", gw, logger)

	// Point the underlying go-github client at the test server.
	testClient, err := github.NewClient(server.Client()).WithEnterpriseURLs(server.URL, server.URL)
	require.NoError(t, err)
	client.gh = testClient

	return client, server
}

func TestClient_GetRepository(t *testing.T) {
	t.Run("succeeds on first try", func(t *testing.T) {
		var requestCount int32
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&requestCount, 1)
			assert.True(t, strings.HasSuffix(r.URL.Path, "/repos/test/repo"))
			w.WriteHeader(http.StatusOK)
			fmt.Fprintln(w, `{"id": 1, "name": "repo", "owner": {"login": "test"}, "default_branch": "main"}`)
		})
		client, _ := setupTestClient(t, handler)

		repo, err := client.GetRepository(context.Background(), "test", "repo")

		require.NoError(t, err)
		assert.Equal(t, int32(1), atomic.LoadInt32(&requestCount))
		assert.Equal(t, int64(1), repo.HostID)
		assert.Equal(t, "test/repo", repo.FullName())
		assert.Equal(t, "main", repo.DefaultBranch)
		assert.False(t, repo.IsFork)
	})

	t.Run("translates fork metadata", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			fmt.Fprintln(w, `{"id": 2, "name": "widgets-fork", "owner": {"login": "acme"},
				"fork": true, "parent": {"full_name": "acme/widgets"}}`)
		})
		client, _ := setupTestClient(t, handler)

		repo, err := client.GetRepository(context.Background(), "acme", "widgets-fork")

		require.NoError(t, err)
		assert.True(t, repo.IsFork)
		assert.Equal(t, "acme/widgets", repo.ParentFullName)
	})

	t.Run("retries on 503 server error and succeeds", func(t *testing.T) {
		var requestCount int32
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			count := atomic.AddInt32(&requestCount, 1)
			if count == 1 {
				w.WriteHeader(http.StatusServiceUnavailable) // Fail first time
				return
			}
			w.WriteHeader(http.StatusOK) // Succeed second time
			fmt.Fprintln(w, `{"id": 1, "name": "repo", "owner": {"login": "test"}}`)
		})
		client, _ := setupTestClient(t, handler)

		_, err := client.GetRepository(context.Background(), "test", "repo")

		require.NoError(t, err)
		assert.Equal(t, int32(2), atomic.LoadInt32(&requestCount), "should have made two requests")
	})

	t.Run("retries after rate limit response", func(t *testing.T) {
		var requestCount int32
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			count := atomic.AddInt32(&requestCount, 1)
			if count == 1 {
				w.Header().Set("X-RateLimit-Limit", "5000")
				w.Header().Set("X-RateLimit-Remaining", "0")
				w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", time.Now().Unix()))
				w.WriteHeader(http.StatusForbidden)
				fmt.Fprintln(w, `{"message": "API rate limit exceeded"}`)
				return
			}
			w.WriteHeader(http.StatusOK)
			fmt.Fprintln(w, `{"id": 1, "name": "repo", "owner": {"login": "test"}}`)
		})
		client, _ := setupTestClient(t, handler)

		_, err := client.GetRepository(context.Background(), "test", "repo")

		require.NoError(t, err)
		assert.Equal(t, int32(2), atomic.LoadInt32(&requestCount))
	})

	t.Run("propagates not-found without retrying", func(t *testing.T) {
		var requestCount int32
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&requestCount, 1)
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprintln(w, `{"message": "Not Found"}`)
		})
		client, _ := setupTestClient(t, handler)

		_, err := client.GetRepository(context.Background(), "test", "gone")

		require.Error(t, err)
		assert.True(t, apperrors.IsNotFound(err))
		assert.Equal(t, int32(1), atomic.LoadInt32(&requestCount))
	})

	t.Run("fails after max retries on persistent server error", func(t *testing.T) {
		var requestCount int32
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&requestCount, 1)
			w.WriteHeader(http.StatusInternalServerError)
		})
		client, _ := setupTestClient(t, handler)

		_, err := client.GetRepository(context.Background(), "test", "repo")

		require.Error(t, err)
		var tr *apperrors.TransientError
		require.ErrorAs(t, err, &tr)
		assert.Equal(t, http.StatusInternalServerError, tr.StatusCode)
		assert.Equal(t, int32(3), atomic.LoadInt32(&requestCount))
	})
}

func TestClient_GetRepositoryByID(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/repositories/42"))
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, `{"id": 42, "name": "renamed", "owner": {"login": "test"}}`)
	})
	client, _ := setupTestClient(t, handler)

	repo, err := client.GetRepositoryByID(context.Background(), 42)

	require.NoError(t, err)
	assert.Equal(t, int64(42), repo.HostID)
	assert.Equal(t, "test/renamed", repo.FullName())
}

func TestClient_ListCommits(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/repos/test/repo/commits"))
		q := r.URL.Query()
		assert.Equal(t, "main", q.Get("sha"))
		assert.Equal(t, "2", q.Get("page"))
		assert.Equal(t, "100", q.Get("per_page"))
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, `[
			{"sha": "abc", "commit": {"author": {"name": "tester", "email": "t@t.com", "date": "2024-01-01T12:00:00Z"}, "message": "feat: new feature"},
			 "author": {"id": 99, "login": "tester"}},
			{"sha": "def", "commit": {"author": {"name": "anon", "email": "anon@t.com", "date": "2024-01-02T12:00:00Z"}, "message": "fix: a bug"}}
		]`)
	})
	client, _ := setupTestClient(t, handler)

	records, err := client.ListCommits(context.Background(), "test", "repo", "main", time.Time{}, 2, 100)

	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "abc", records[0].SHA)
	assert.Equal(t, "tester", records[0].Author.Name)
	assert.Equal(t, "t@t.com", records[0].Author.Email)
	require.NotNil(t, records[0].Author.HostUserID)
	assert.Equal(t, int64(99), *records[0].Author.HostUserID)
	require.NotNil(t, records[0].Author.Username)
	assert.Equal(t, "tester", *records[0].Author.Username)

	assert.Equal(t, "def", records[1].SHA)
	assert.Nil(t, records[1].Author.HostUserID, "commit without linked account has no host user id")
	assert.Nil(t, records[1].Author.Username)
}
