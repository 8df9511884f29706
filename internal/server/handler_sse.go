package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/me/gotune/pkg/model"
)

// handleRunEvents streams run progress via Server-Sent Events: run
// state changes, trial transitions, and new metric reports. The store
// is polled; the stream closes once the run is terminal.
// GET /api/v1/runs/{id}/events
func (s *Server) handleRunEvents(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	run, ok := s.loadRun(w, r, reqID)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	if err := sendSSEEvent(w, flusher, "init", run); err != nil {
		s.logger.Debug("sse client disconnected", "run_id", run.ID, "error", err)
		return
	}

	lastRunState := run.State
	trialStates := make(map[string]model.TrialState)
	reportCounts := make(map[string]int)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			cur, err := s.store.GetRun(r.Context(), run.ID)
			if err != nil {
				s.logger.Error("sse fetch run", "run_id", run.ID, "error", err)
				continue
			}
			if cur == nil {
				return
			}

			sent, err := s.streamChanges(r, w, flusher, cur, trialStates, reportCounts)
			if err != nil {
				s.logger.Debug("sse client disconnected", "run_id", cur.ID)
				return
			}

			if cur.State != lastRunState {
				if err := sendSSEEvent(w, flusher, "run", cur); err != nil {
					return
				}
				lastRunState = cur.State
				sent = true
			}

			if cur.State.IsTerminal() {
				sendSSEEvent(w, flusher, "complete", cur)
				return
			}

			if !sent {
				fmt.Fprintf(w, ": heartbeat\n\n")
				flusher.Flush()
			}
		}
	}
}

// streamChanges emits trial and metric events for everything that moved
// since the previous tick.
func (s *Server) streamChanges(r *http.Request, w http.ResponseWriter, flusher http.Flusher, run *model.TuningRun, trialStates map[string]model.TrialState, reportCounts map[string]int) (bool, error) {
	trials, err := s.store.ListTrialsByRun(r.Context(), run.ID)
	if err != nil {
		s.logger.Error("sse list trials", "run_id", run.ID, "error", err)
		return false, nil
	}

	sent := false
	for _, trial := range trials {
		if prev, seen := trialStates[trial.ID]; !seen || prev != trial.State {
			if err := sendSSEEvent(w, flusher, "trial", trial); err != nil {
				return sent, err
			}
			trialStates[trial.ID] = trial.State
			sent = true
		}

		reports, err := s.store.ListMetrics(r.Context(), trial.ID)
		if err != nil {
			s.logger.Error("sse list metrics", "trial_id", trial.ID, "error", err)
			continue
		}
		for _, report := range reports[reportCounts[trial.ID]:] {
			if err := sendSSEEvent(w, flusher, "metric", report); err != nil {
				return sent, err
			}
			sent = true
		}
		reportCounts[trial.ID] = len(reports)
	}
	return sent, nil
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, jsonData)
	if err != nil {
		return err
	}

	flusher.Flush()
	return nil
}
