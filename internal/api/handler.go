// internal/api/handler.go
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5"

	"commit-tracker/internal/model"
	"commit-tracker/internal/store"
	"commit-tracker/internal/syncer"
)

// Handler is the container for API dependencies.
type Handler struct {
	db     store.Querier
	engine *syncer.Engine
	logger *slog.Logger
}

// NewRouter creates and configures a new chi router with all API routes.
func NewRouter(db store.Querier, engine *syncer.Engine, logger *slog.Logger) http.Handler {
	h := &Handler{
		db:     db,
		engine: engine,
		logger: logger,
	}

	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Minute))

	// API Routes
	r.Get("/health", h.healthCheck)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/repos", h.listRepositories)
		r.Get("/repos/{owner}/{name}/commits", h.getCommits)
		r.Post("/repos/{owner}/{name}/sync", h.triggerSync)
	})

	return r
}

// healthCheck is a simple health endpoint.
func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// listRepositories returns every tracked repository.
// GET /v1/repos
func (h *Handler) listRepositories(w http.ResponseWriter, r *http.Request) {
	repos, err := h.db.ListRepositories(r.Context())
	if err != nil {
		h.logger.Error("Failed to list repositories", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	respondWithJSON(w, http.StatusOK, repos)
}

// getCommits handles the request to retrieve commits for a repository.
// GET /v1/repos/{owner}/{name}/commits
func (h *Handler) getCommits(w http.ResponseWriter, r *http.Request) {
	repo, ok := h.lookupRepo(w, r)
	if !ok {
		return
	}

	commits, err := h.db.ListCommitsByRepo(r.Context(), repo.ID)
	if err != nil {
		h.logger.Error("Failed to get commits", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondWithJSON(w, http.StatusOK, commits)
}

// triggerSync runs the sync engine for a repository on demand and
// returns the run's outcome.
// POST /v1/repos/{owner}/{name}/sync?full=true&page_size=N
func (h *Handler) triggerSync(w http.ResponseWriter, r *http.Request) {
	repo, ok := h.lookupRepo(w, r)
	if !ok {
		return
	}

	opts := syncer.Options{
		FullSync: r.URL.Query().Get("full") == "true",
	}
	if sizeStr := r.URL.Query().Get("page_size"); sizeStr != "" {
		size, err := strconv.Atoi(sizeStr)
		if err != nil || size < 1 || size > 100 {
			respondWithError(w, http.StatusBadRequest, "Invalid 'page_size' parameter. Must be an integer between 1 and 100.")
			return
		}
		opts.PageBatchSize = size
	}

	outcome, err := h.engine.Sync(r.Context(), repo.ID, opts)
	if err != nil {
		h.logger.Error("Sync failed", "owner", repo.Owner, "repo", repo.Name, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Sync failed")
		return
	}

	respondWithJSON(w, http.StatusOK, outcome)
}

// lookupRepo resolves the owner/name URL params to a stored
// repository, writing a 404 when there is none.
func (h *Handler) lookupRepo(w http.ResponseWriter, r *http.Request) (model.Repository, bool) {
	owner := chi.URLParam(r, "owner")
	name := chi.URLParam(r, "name")

	repo, err := h.db.GetRepositoryByFullName(r.Context(), owner, name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			respondWithError(w, http.StatusNotFound, "Repository not found")
			return model.Repository{}, false
		}
		h.logger.Error("Failed to get repository", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return model.Repository{}, false
	}
	return repo, true
}

func respondWithJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondWithError(w http.ResponseWriter, status int, message string) {
	respondWithJSON(w, status, map[string]string{"error": message})
}
