// Package api serves the run index over HTTP.
// GET endpoints are public (read-only).
// POST /api/v1/runs launches a run and requires a bearer token.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/talgya/pqnwatch/internal/config"
	"github.com/talgya/pqnwatch/internal/persistence"
)

// Launcher executes one run with cfg, indexes it, and returns its row.
type Launcher func(ctx context.Context, cfg config.Config) (persistence.Run, error)

// Server serves the run index over HTTP.
type Server struct {
	DB       *persistence.DB
	Base     config.Config // launched runs start from this
	Launch   Launcher      // nil disables POST /api/v1/runs
	Addr     string
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.
	MaxSteps int    // upper bound on steps of a launched run

	started time.Time
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	launchLimiter := NewRateLimiter(30, time.Hour)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/status", s.handleStatus)
	mux.HandleFunc("GET /api/v1/runs", s.handleRuns)
	mux.HandleFunc("GET /api/v1/run/{id}", s.handleRun)
	mux.HandleFunc("GET /api/v1/run/{id}/events", s.handleRunEvents)
	mux.HandleFunc("POST /api/v1/runs", s.adminOnly(RateLimitMiddleware(launchLimiter, s.handleLaunch)))
	return mux
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.started = time.Now()
	srv := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP API starting", "addr", s.Addr, "admin_auth", s.AdminKey != "", "launch", s.Launch != nil)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	slog.Info("HTTP API stopped")
	return nil
}

// checkBearerToken returns true if the request has a valid admin bearer token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly wraps a handler to require bearer token auth.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.AdminKey == "" {
			http.Error(w, "admin endpoints disabled (no admin key set)", http.StatusForbidden)
			return
		}
		if !s.checkBearerToken(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"name":   "pqnwatch",
		"launch": s.Launch != nil,
	}
	if !s.started.IsZero() {
		status["uptime"] = time.Since(s.started).Round(time.Second).String()
	}
	if best, err := s.DB.TopRuns(1); err == nil && len(best) > 0 {
		status["best_run"] = best[0]
	}
	writeJSON(w, status)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, 50)

	var runs []persistence.Run
	var err error
	switch order := r.URL.Query().Get("order"); order {
	case "", "top":
		runs, err = s.DB.TopRuns(limit)
	case "recent":
		runs, err = s.DB.RecentRuns(limit)
	default:
		http.Error(w, fmt.Sprintf("unknown order %q", order), http.StatusBadRequest)
		return
	}
	if err != nil {
		slog.Error("list runs failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []persistence.Run{}
	}
	writeJSON(w, runs)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookup(w, r.PathValue("id"))
	if !ok {
		return
	}
	writeJSON(w, run)
}

func (s *Server) handleRunEvents(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookup(w, r.PathValue("id"))
	if !ok {
		return
	}
	events, err := s.DB.RunEvents(run.ID, queryLimit(r, 100))
	if err != nil {
		slog.Error("run events failed", "run", run.ID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	type eventView struct {
		Step  int      `json:"step"`
		T     float64  `json:"t"`
		Sym   string   `json:"sym"`
		Flags []string `json:"flags"`
	}
	out := make([]eventView, 0, len(events))
	for _, e := range events {
		out = append(out, eventView{Step: e.Step, T: e.T, Sym: e.Sym, Flags: strings.Split(e.Flags, ",")})
	}
	writeJSON(w, out)
}

// launchRequest overrides a few fields of the base config.
type launchRequest struct {
	Script string `json:"script"`
	Steps  int    `json:"steps"`
	Dwell  int    `json:"dwell"`
}

func (s *Server) handleLaunch(w http.ResponseWriter, r *http.Request) {
	if s.Launch == nil {
		http.Error(w, "launching runs is disabled", http.StatusForbidden)
		return
	}

	var req launchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}

	cfg := s.Base
	if req.Script != "" {
		cfg.Script = req.Script
	}
	if req.Steps > 0 {
		cfg.Steps = req.Steps
	}
	if req.Dwell > 0 {
		cfg.Dwell = req.Dwell
	}
	if s.MaxSteps > 0 && cfg.Steps > s.MaxSteps {
		http.Error(w, fmt.Sprintf("steps %d above limit %d", cfg.Steps, s.MaxSteps), http.StatusBadRequest)
		return
	}
	if err := cfg.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	run, err := s.Launch(r.Context(), cfg)
	if err != nil {
		slog.Error("launch failed", "script", cfg.Script, "error", err)
		http.Error(w, "run failed", http.StatusInternalServerError)
		return
	}
	slog.Info("run launched via API", "run", run.ID, "script", run.Script)
	writeJSONStatus(w, http.StatusCreated, run)
}

func (s *Server) lookup(w http.ResponseWriter, id string) (persistence.Run, bool) {
	run, err := s.DB.GetRun(id)
	if errors.Is(err, persistence.ErrNotFound) {
		http.Error(w, "run not found", http.StatusNotFound)
		return persistence.Run{}, false
	}
	if err != nil {
		slog.Error("get run failed", "run", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return persistence.Run{}, false
	}
	return run, true
}

func queryLimit(r *http.Request, def int) int {
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 500 {
			return n
		}
	}
	return def
}

func writeJSON(w http.ResponseWriter, data any) {
	writeJSONStatus(w, http.StatusOK, data)
}

func writeJSONStatus(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
