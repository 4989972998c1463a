// Package api serves analyses over HTTP: run an analysis, list and delete saved
// ones, and fetch their clusters, terms and graph export for plotting clients.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/hurttlocker/enrichnet/internal/cluster"
	"github.com/hurttlocker/enrichnet/internal/geneset"
	"github.com/hurttlocker/enrichnet/internal/pipeline"
	"github.com/hurttlocker/enrichnet/internal/store"
	"github.com/hurttlocker/enrichnet/internal/textmine"
)

// MaxBodyBytes bounds POST /api/analyze request bodies.
const MaxBodyBytes = 32 << 20

// Handler holds the dependencies of every route.
type Handler struct {
	Store    store.Store
	Defaults pipeline.Options
	Logger   *slog.Logger

	// mu serializes store access; SQLite supports one writer at a time.
	mu sync.Mutex
}

// NewHandler creates a Handler. A nil logger uses slog.Default.
func NewHandler(st store.Store, defaults pipeline.Options, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{Store: st, Defaults: defaults, Logger: logger}
}

// RegisterRoutes mounts the API on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.HealthCheck)
	r.Post("/api/analyze", h.Analyze)

	r.Get("/api/analyses", h.ListAnalyses)
	r.Route("/api/analyses/{id}", func(r chi.Router) {
		r.Get("/", h.GetAnalysis)
		r.Delete("/", h.DeleteAnalysis)
		r.Get("/graph", h.GetGraph)
		r.Get("/clusters", h.GetClusters)
		r.Get("/clusters/{index}/terms", h.GetClusterTerms)
		r.Get("/gene-stats", h.GetGeneStats)
	})
}

// NewRouter builds the chi router with logging, recovery and CORS for the
// given browser origins.
func NewRouter(h *Handler, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.Logger))
	r.Use(middleware.Recoverer)

	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:3000", "http://127.0.0.1:3000"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	h.RegisterRoutes(r)
	return r
}

// Serve runs the HTTP server on addr until ctx is cancelled, then shuts down
// gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("enrichnet API available", "url", "http://"+addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}

// ============================================================================
// Health
// ============================================================================

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ============================================================================
// Analyze
// ============================================================================

// Analyze runs the pipeline on the posted gene sets and optionally saves it.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req pipeline.Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	opts, err := req.Options(h.Defaults)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	in, err := req.Input(false)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	res, err := pipeline.Run(r.Context(), in, opts, h.Logger)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	summary := res.Summary()

	if req.Save {
		if h.Store == nil {
			writeError(w, http.StatusServiceUnavailable, "no store configured")
			return
		}
		h.mu.Lock()
		saved, reused, err := store.SaveOrReuse(r.Context(), h.Store, req.Label, res)
		h.mu.Unlock()
		if err != nil {
			h.Logger.Error("saving analysis", "error", err)
			writeError(w, http.StatusInternalServerError, "saving analysis failed")
			return
		}
		summary.AnalysisID, summary.Reused = saved.ID, reused
		if reused {
			writeJSON(w, http.StatusOK, summary)
			return
		}
		writeJSON(w, http.StatusCreated, summary)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// ============================================================================
// Saved analyses
// ============================================================================

func (h *Handler) ListAnalyses(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	opts := store.ListOpts{Limit: 50}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		if n > 500 {
			n = 500
		}
		opts.Limit = n
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid offset")
			return
		}
		opts.Offset = n
	}

	h.mu.Lock()
	analyses, err := h.Store.ListAnalyses(r.Context(), opts)
	h.mu.Unlock()
	if err != nil {
		h.storeFailure(w, err)
		return
	}
	if analyses == nil {
		analyses = []*store.Analysis{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"analyses": analyses,
		"count":    len(analyses),
	})
}

func (h *Handler) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	h.mu.Lock()
	a, err := h.Store.GetAnalysis(r.Context(), chi.URLParam(r, "id"))
	h.mu.Unlock()
	if err != nil {
		h.storeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) DeleteAnalysis(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	h.mu.Lock()
	err := h.Store.DeleteAnalysis(r.Context(), chi.URLParam(r, "id"))
	h.mu.Unlock()
	if err != nil {
		h.storeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GetGraph(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	id := chi.URLParam(r, "id")

	h.mu.Lock()
	g, err := h.Store.LoadGraph(r.Context(), id)
	var clusters []cluster.Cluster
	if err == nil {
		clusters, err = h.Store.ListClusters(r.Context(), id)
	}
	h.mu.Unlock()
	if err != nil {
		h.storeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g.Export(cluster.Membership(clusters)))
}

func (h *Handler) GetClusters(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	id := chi.URLParam(r, "id")

	h.mu.Lock()
	defer h.mu.Unlock()
	clusters, err := h.Store.ListClusters(r.Context(), id)
	if err != nil {
		h.storeFailure(w, err)
		return
	}
	terms := make(map[int][]textmine.TermScore, len(clusters))
	for _, c := range clusters {
		ts, err := h.Store.ListClusterTerms(r.Context(), id, c.Index)
		if err != nil {
			h.storeFailure(w, err)
			return
		}
		terms[c.Index] = ts
	}
	writeJSON(w, http.StatusOK, pipeline.Summarize(clusters, terms))
}

func (h *Handler) GetClusterTerms(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 {
		writeError(w, http.StatusBadRequest, "invalid cluster index")
		return
	}

	h.mu.Lock()
	terms, err := h.Store.ListClusterTerms(r.Context(), chi.URLParam(r, "id"), index)
	h.mu.Unlock()
	if err != nil {
		h.storeFailure(w, err)
		return
	}
	if terms == nil {
		terms = []textmine.TermScore{}
	}
	writeJSON(w, http.StatusOK, terms)
}

func (h *Handler) GetGeneStats(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	h.mu.Lock()
	stats, err := h.Store.GeneStatistics(r.Context(), chi.URLParam(r, "id"))
	h.mu.Unlock()
	if err != nil {
		h.storeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// ============================================================================
// Helpers
// ============================================================================

func (h *Handler) requireStore(w http.ResponseWriter) bool {
	if h.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "no store configured")
		return false
	}
	return true
}

func (h *Handler) storeFailure(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	h.Logger.Error("store error", "error", err)
	writeError(w, http.StatusInternalServerError, "store error")
}

// statusFor maps the pipeline error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, geneset.ErrInvalidInput),
		errors.Is(err, geneset.ErrUnknownField),
		errors.Is(err, geneset.ErrMissingMetadata):
		return http.StatusBadRequest
	case errors.Is(err, geneset.ErrEmptyGraph),
		errors.Is(err, geneset.ErrEmptyCluster):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
