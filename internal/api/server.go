// File path: internal/api/server.go
package api

import (
	"encoding/json"
	"expvar"
	"fmt"
	"net/http"
	"time"

	chi "github.com/go-chi/chi/v5"

	"github.com/linkforge/linkforge/internal/common"
	"github.com/linkforge/linkforge/internal/data/orchestrator"
	"github.com/linkforge/linkforge/internal/generation"
	"github.com/linkforge/linkforge/internal/sqlite"
)

type Server struct {
	router  chi.Router
	store   *sqlite.Store
	manager *generation.Manager

	orchestrator *orchestrator.Orchestrator
}

func NewServer(orch *orchestrator.Orchestrator, manager *generation.Manager) (*Server, error) {
	if orch == nil {
		return nil, fmt.Errorf("orchestrator required")
	}
	store := orch.Store()
	if store == nil {
		return nil, fmt.Errorf("catalog store unavailable")
	}
	if manager == nil {
		return nil, fmt.Errorf("generation manager required")
	}
	s := &Server{
		router:       chi.NewRouter(),
		store:        store,
		manager:      manager,
		orchestrator: orch,
	}
	s.routes()
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	logger := common.Logger()
	logger.Info("api: configuring routes")
	s.router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Debug("request", "method", r.Method, "path", r.URL.Path, "dur", time.Since(start), "remote", r.RemoteAddr)
		})
	})

	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	s.router.Handle("/debug/vars", expvar.Handler())

	s.router.Post("/v1/pages/import", s.handleImport)
	s.router.Get("/v1/pages", s.handlePages)
	s.router.Post("/v1/generation/start", s.handleGenerationStart)
	s.router.Post("/v1/generation/stop", s.handleGenerationStop)
	s.router.Get("/v1/generation/status", s.handleGenerationStatus)
	s.router.Get("/v1/generation/stream", s.handleGenerationStream)
	s.router.Get("/v1/candidates", s.handleCandidates)
	s.router.Get("/v1/runs", s.handleRuns)
	s.router.Get("/v1/logs", s.handleLogs)
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"logs": common.LogEntries()})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	logger := common.Logger()
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "status", status, "error", err)
	} else {
		logger.Warn("request failed", "status", status, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
