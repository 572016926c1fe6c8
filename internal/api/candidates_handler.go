// File path: internal/api/candidates_handler.go
package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/linkforge/linkforge/internal/scenario"
	"github.com/linkforge/linkforge/internal/sqlite"
)

const (
	defaultCandidateLimit = 100
	maxCandidateLimit     = 500
)

type candidateResponse struct {
	ID              int64   `json:"id"`
	SourcePageID    int64   `json:"source_page_id"`
	TargetPageID    int64   `json:"target_page_id"`
	TargetURL       string  `json:"target_url"`
	AnchorText      string  `json:"anchor_text,omitempty"`
	Scenario        string  `json:"scenario"`
	Similarity      float64 `json:"similarity"`
	IsRejected      bool    `json:"is_rejected"`
	RejectionReason string  `json:"rejection_reason,omitempty"`
}

func (s *Server) handleCandidates(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	runID := strings.TrimSpace(query.Get("run_id"))
	if runID == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("run_id is required"))
		return
	}
	if _, err := s.store.GetRun(r.Context(), runID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, sqlite.ErrRunNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err)
		return
	}

	filter := sqlite.CandidateFilter{Limit: defaultCandidateLimit}
	if name := strings.TrimSpace(query.Get("scenario")); name != "" {
		if !scenario.Known(name) {
			writeError(w, http.StatusBadRequest, fmt.Errorf("unknown scenario %q", name))
			return
		}
		filter.Scenario = name
	}
	if raw := strings.TrimSpace(query.Get("rejected")); raw != "" {
		rejected, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("parse rejected: %w", err))
			return
		}
		filter.Rejected = &rejected
	}
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", raw))
			return
		}
		if limit > maxCandidateLimit {
			limit = maxCandidateLimit
		}
		filter.Limit = limit
	}
	if raw := strings.TrimSpace(query.Get("offset")); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid offset %q", raw))
			return
		}
		filter.Offset = offset
	}

	candidates, err := s.store.CandidatesForRun(r.Context(), runID, filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	stats, err := s.store.RejectionStats(r.Context(), runID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	out := make([]candidateResponse, 0, len(candidates))
	for _, cand := range candidates {
		out = append(out, candidateResponse{
			ID:              cand.ID,
			SourcePageID:    cand.SourcePageID,
			TargetPageID:    cand.TargetPageID,
			TargetURL:       cand.TargetURL,
			AnchorText:      cand.AnchorText,
			Scenario:        cand.Scenario,
			Similarity:      cand.Similarity,
			IsRejected:      cand.IsRejected,
			RejectionReason: cand.RejectionReason,
		})
	}
	rejections := make(map[string]int, len(stats))
	for _, stat := range stats {
		rejections[stat.Reason] = stat.Count
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"run_id":     runID,
		"candidates": out,
		"rejections": rejections,
		"limit":      filter.Limit,
		"offset":     filter.Offset,
	})
}
