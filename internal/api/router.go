// Package api serves the read-only operations surface: sources, runs,
// computed health and incidents, and Prometheus metrics.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sells-group/ingest-cli/internal/model"
	"github.com/sells-group/ingest-cli/internal/monitoring"
	"github.com/sells-group/ingest-cli/internal/store"
)

const defaultRunLimit = 20

// Handler holds the dependencies of the ops endpoints. Nothing it serves
// writes to the store.
type Handler struct {
	store     store.Store
	collector *monitoring.Collector
	th        monitoring.Thresholds
	log       *zap.Logger
}

// NewRouter builds the chi router. allowedOrigins feeds the CORS policy.
func NewRouter(st store.Store, th monitoring.Thresholds, allowedOrigins []string) http.Handler {
	h := &Handler{
		store:     st,
		collector: monitoring.NewCollector(st, th),
		th:        th,
		log:       zap.L().With(zap.String("component", "api.router")),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.requestLog)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", h.handleLiveness)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/sources", h.handleSources)
		r.Get("/sources/{key}", h.handleSource)
		r.Get("/sources/{key}/runs", h.handleSourceRuns)
		r.Get("/runs/{id}", h.handleRun)
		r.Get("/runs/{id}/candidates", h.handleRunCandidates)
		r.Get("/health", h.handleHealth)
		r.Get("/incidents", h.handleIncidents)
	})
	return r
}

func (h *Handler) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (h *Handler) handleLiveness(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleSources(w http.ResponseWriter, r *http.Request) {
	sources, err := h.store.ListSources(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sources)
}

func (h *Handler) handleSource(w http.ResponseWriter, r *http.Request) {
	src, err := h.store.GetSource(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, src)
}

func (h *Handler) handleSourceRuns(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	limit := defaultRunLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	if _, err := h.store.GetSource(r.Context(), key); err != nil {
		h.fail(w, err)
		return
	}
	runs, err := h.store.ListRunsBySource(r.Context(), key, limit)
	if err != nil {
		h.fail(w, err)
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (h *Handler) handleRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (h *Handler) handleRunCandidates(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.store.GetRun(r.Context(), id); err != nil {
		h.fail(w, err)
		return
	}
	cands, err := h.store.ListCandidatesByRun(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	if cands == nil {
		cands = []model.Candidate{}
	}
	writeJSON(w, http.StatusOK, cands)
}

// handleHealth computes health without persisting it. ?source=a,b narrows
// the set.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	histories, err := h.collector.Collect(r.Context(), sourceKeys(r))
	if err != nil {
		h.fail(w, err)
		return
	}
	out := make([]monitoring.SourceHealth, 0, len(histories))
	for _, hist := range histories {
		out = append(out, monitoring.ComputeHealth(hist, h.th))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleIncidents(w http.ResponseWriter, r *http.Request) {
	histories, err := h.collector.Collect(r.Context(), sourceKeys(r))
	if err != nil {
		h.fail(w, err)
		return
	}
	out := make([]monitoring.SourceIncidents, 0, len(histories))
	for _, hist := range histories {
		alerts := monitoring.EvaluateIncidents(hist, h.th)
		if alerts == nil {
			alerts = []model.AlertEvidence{}
		}
		out = append(out, monitoring.SourceIncidents{SourceKey: hist.Source.Key, Alerts: alerts})
	}
	writeJSON(w, http.StatusOK, out)
}

func sourceKeys(r *http.Request) []string {
	raw := r.URL.Query().Get("source")
	if raw == "" {
		return nil
	}
	var keys []string
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	h.log.Error("request failed", zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
