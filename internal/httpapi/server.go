// Package httpapi serves the saved backtest history and the best-parameter
// store as a read-mostly JSON API.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"strategylab/internal/domain"
	"strategylab/internal/store"
)

// ParamStore is the part of the best-parameter store exposed over HTTP.
type ParamStore interface {
	Snapshot() map[string]domain.Params
	Delete(strategy, symbol string) error
}

// HistoryServer serves the run history and saved parameters.
type HistoryServer struct {
	runs   store.RunStore
	params ParamStore
	log    *slog.Logger
}

// NewHistoryServer creates a HistoryServer. params may be nil, in which case
// the /api/params routes answer 404.
func NewHistoryServer(runs store.RunStore, params ParamStore) *HistoryServer {
	return &HistoryServer{
		runs:   runs,
		params: params,
		log:    slog.Default().With("component", "httpapi"),
	}
}

// RegisterRoutes registers all API routes on the given mux.
func (s *HistoryServer) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/runs", s.handleListRuns)
	mux.HandleFunc("GET /api/runs/{id}", s.handleGetRun)
	mux.HandleFunc("GET /api/params", s.handleListParams)
	mux.HandleFunc("DELETE /api/params/{strategy}/{symbol}", s.handleDeleteParams)
}

// Handler returns an http.Handler with CORS middleware.
func (s *HistoryServer) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// handleListRuns serves GET /api/runs?strategy=&symbol=&limit=.
func (s *HistoryServer) handleListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.RunFilter{
		Strategy: q.Get("strategy"),
		Symbol:   q.Get("symbol"),
		Limit:    50,
	}
	if l := q.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = n
	}

	runs, err := s.runs.ListRuns(r.Context(), filter)
	if err != nil {
		s.log.Error("listing runs", "error", err)
		writeError(w, http.StatusInternalServerError, "listing runs failed")
		return
	}
	out := make([]RunSummary, 0, len(runs))
	for _, run := range runs {
		out = append(out, summarize(run))
	}
	writeJSON(w, out)
}

// handleGetRun serves GET /api/runs/{id}.
func (s *HistoryServer) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.runs.GetRun(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		s.log.Error("getting run", "id", r.PathValue("id"), "error", err)
		writeError(w, http.StatusInternalServerError, "getting run failed")
		return
	}
	writeJSON(w, RunDetail{
		RunSummary: summarize(*run),
		Metrics:    run.Metrics,
		Trades:     run.Trades,
	})
}

// handleListParams serves GET /api/params.
func (s *HistoryServer) handleListParams(w http.ResponseWriter, _ *http.Request) {
	if s.params == nil {
		writeError(w, http.StatusNotFound, "no parameter store configured")
		return
	}
	writeJSON(w, s.params.Snapshot())
}

// handleDeleteParams serves DELETE /api/params/{strategy}/{symbol}.
func (s *HistoryServer) handleDeleteParams(w http.ResponseWriter, r *http.Request) {
	if s.params == nil {
		writeError(w, http.StatusNotFound, "no parameter store configured")
		return
	}
	if err := s.params.Delete(r.PathValue("strategy"), r.PathValue("symbol")); err != nil {
		s.log.Error("deleting params", "error", err)
		writeError(w, http.StatusInternalServerError, "deleting params failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
