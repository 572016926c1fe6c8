// File path: internal/api/generation_handler.go
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/linkforge/linkforge/internal/generation"
	"github.com/linkforge/linkforge/internal/sqlite"
)

func (s *Server) handleGenerationStart(w http.ResponseWriter, r *http.Request) {
	var req generation.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	runID, err := s.manager.Start(r.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, generation.ErrInvalidRequest):
			status = http.StatusBadRequest
		case errors.Is(err, sqlite.ErrNoCompletedImport):
			status = http.StatusConflict
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID})
}

func (s *Server) handleGenerationStop(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RunID string `json:"run_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	runID := strings.TrimSpace(req.RunID)
	if runID == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("run_id is required"))
		return
	}
	if err := s.manager.Stop(r.Context(), runID); err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, sqlite.ErrRunNotFound):
			status = http.StatusNotFound
		case errors.Is(err, generation.ErrRunNotRunning):
			status = http.StatusConflict
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "stopping"})
}

type runResponse struct {
	RunID        string `json:"run_id"`
	ProjectID    string `json:"project_id"`
	Status       string `json:"status"`
	Phase        string `json:"phase"`
	Percent      int    `json:"percent"`
	Generated    int    `json:"generated"`
	Rejected     int    `json:"rejected"`
	ErrorMessage string `json:"error_message,omitempty"`
	StartedAt    string `json:"started_at"`
	FinishedAt   string `json:"finished_at,omitempty"`
}

func runToResponse(run *sqlite.Run) runResponse {
	resp := runResponse{
		RunID:        run.ID,
		ProjectID:    run.ProjectID,
		Status:       run.Status,
		Phase:        run.Phase,
		Percent:      run.Percent,
		Generated:    run.Generated,
		Rejected:     run.Rejected,
		ErrorMessage: run.ErrorMessage,
		StartedAt:    run.StartedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
	if run.FinishedAt.Valid {
		resp.FinishedAt = run.FinishedAt.Time.UTC().Format("2006-01-02T15:04:05Z07:00")
	}
	return resp
}

func (s *Server) handleGenerationStatus(w http.ResponseWriter, r *http.Request) {
	runID := strings.TrimSpace(r.URL.Query().Get("run_id"))
	if runID == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("run_id is required"))
		return
	}
	run, err := s.manager.Status(r.Context(), runID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, sqlite.ErrRunNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, runToResponse(run))
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	projectID := strings.TrimSpace(r.URL.Query().Get("project_id"))
	if projectID == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("project_id is required"))
		return
	}
	runs, err := s.store.RunsForProject(r.Context(), projectID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	out := make([]runResponse, 0, len(runs))
	for i := range runs {
		out = append(out, runToResponse(&runs[i]))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"runs": out})
}
