// File path: internal/api/progress_handler.go
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/linkforge/linkforge/internal/progress"
	"github.com/linkforge/linkforge/internal/sqlite"
)

const streamHeartbeat = 15 * time.Second

// handleGenerationStream serves run progress over SSE. Late subscribers get
// the latest snapshot immediately; finished runs get a synthetic terminal
// event built from the persisted record, so the stream endpoint works no
// matter when a client connects.
func (s *Server) handleGenerationStream(w http.ResponseWriter, r *http.Request) {
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
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("streaming unsupported"))
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if run.Status != sqlite.RunRunning {
		writeEvent(w, eventFromRun(run))
		flusher.Flush()
		return
	}

	events, cancel := s.manager.Broker().Subscribe(runID)
	defer cancel()
	flusher.Flush()

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case event, open := <-events:
			if !open {
				// Broker closed the stream; make sure the client saw a
				// terminal event even if it raced the close.
				if run, err := s.manager.Status(r.Context(), runID); err == nil && run.Status != sqlite.RunRunning {
					writeEvent(w, eventFromRun(run))
					flusher.Flush()
				}
				return
			}
			writeEvent(w, event)
			flusher.Flush()
			if event.Done {
				return
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, event progress.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", payload)
}

func eventFromRun(run *sqlite.Run) progress.Event {
	event := progress.Event{
		RunID:     run.ID,
		Phase:     run.Phase,
		Percent:   run.Percent,
		Generated: run.Generated,
		Rejected:  run.Rejected,
	}
	if run.Status != sqlite.RunRunning {
		event.Done = true
		event.Success = run.Status == sqlite.RunPublished
		event.Message = run.ErrorMessage
	}
	return event
}
