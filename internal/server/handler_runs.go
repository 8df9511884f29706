package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/me/gotune/internal/scheduler"
	"github.com/me/gotune/pkg/model"
)

// handleCreateRun accepts a tuning run declaration (JSON or YAML by
// Content-Type), validates it, persists the run, and hands it to the
// run manager. POST /api/v1/runs
func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		respondError(w, reqID, http.StatusBadRequest,
			model.NewValidationError("read request body: "+err.Error()))
		return
	}

	var cfg model.RunConfig
	if isYAMLRequest(r) {
		err = yaml.Unmarshal(body, &cfg)
	} else {
		err = json.Unmarshal(body, &cfg)
	}
	if err != nil {
		respondError(w, reqID, http.StatusBadRequest,
			model.NewValidationError("invalid run declaration: "+err.Error()))
		return
	}

	if err := cfg.Validate(); err != nil {
		if errors.Is(err, model.ErrConflictingConfiguration) {
			respondError(w, reqID, http.StatusConflict, &model.APIError{
				Code:    model.ErrConflict,
				Message: err.Error(),
			})
			return
		}
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			respondError(w, reqID, http.StatusBadRequest, apiErr)
			return
		}
		respondError(w, reqID, http.StatusBadRequest, model.NewValidationError(err.Error()))
		return
	}

	now := time.Now().UTC()
	run := &model.TuningRun{
		ID:        "run_" + uuid.New().String(),
		Name:      cfg.Name,
		State:     model.RunStatePending,
		Config:    cfg,
		CreatedAt: now,
	}
	if err := s.store.CreateRun(r.Context(), run); err != nil {
		respondError(w, reqID, http.StatusInternalServerError, model.NewInternalError(err.Error()))
		return
	}

	// Snapshot before handing off: the scheduler goroutine owns the run
	// once StartRun succeeds.
	created := *run

	if err := s.manager.StartRun(run); err != nil {
		// The run never started; park it in a terminal state so it does
		// not linger as PENDING.
		run.State = model.RunStateAborted
		run.CompletedAt = &now
		if updateErr := s.store.UpdateRun(r.Context(), run); updateErr != nil {
			s.logger.Error("park unstartable run", "run_id", run.ID, "error", updateErr)
		}

		status := http.StatusBadRequest
		code := model.ErrValidation
		if errors.Is(err, scheduler.ErrTooManyActiveRuns) {
			status = http.StatusConflict
			code = model.ErrConflict
		}
		respondError(w, reqID, status, &model.APIError{Code: code, Message: err.Error()})
		return
	}

	s.logger.Info("run submitted", "run_id", run.ID, "name", run.Name,
		"strategy", cfg.Sampling.Strategy)
	respondCreated(w, reqID, &created)
}

func isYAMLRequest(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	return strings.Contains(ct, "yaml") || strings.Contains(ct, "yml")
}

// handleListRuns lists runs with optional ?state= filter and pagination.
// GET /api/v1/runs
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	opts := model.DefaultListOptions()
	if state := r.URL.Query().Get("state"); state != "" {
		opts.State = state
	}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		opts.Limit, _ = strconv.Atoi(limit)
	}
	if offset := r.URL.Query().Get("offset"); offset != "" {
		opts.Offset, _ = strconv.Atoi(offset)
	}
	opts.Clamp()

	runs, total, err := s.store.ListRuns(r.Context(), opts)
	if err != nil {
		respondError(w, reqID, http.StatusInternalServerError, model.NewInternalError(err.Error()))
		return
	}

	respondList(w, reqID, runs, &model.Pagination{
		Total:   total,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
		HasMore: opts.Offset+opts.Limit < total,
	})
}

// handleGetRun returns one run. GET /api/v1/runs/{id}
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	run, ok := s.loadRun(w, r, reqID)
	if !ok {
		return
	}
	respondOK(w, reqID, run)
}

// handleAbortRun cancels an in-flight run. POST /api/v1/runs/{id}/abort
func (s *Server) handleAbortRun(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	run, ok := s.loadRun(w, r, reqID)
	if !ok {
		return
	}

	if run.State.IsTerminal() {
		respondError(w, reqID, http.StatusConflict, &model.APIError{
			Code:    model.ErrConflict,
			Message: "cannot abort run in state " + string(run.State),
		})
		return
	}

	if !s.manager.Abort(run.ID) {
		// Not active: PENDING run that never reached the manager.
		now := time.Now().UTC()
		run.State = model.RunStateAborted
		run.CompletedAt = &now
		if err := s.store.UpdateRun(r.Context(), run); err != nil {
			respondError(w, reqID, http.StatusInternalServerError, model.NewInternalError(err.Error()))
			return
		}
	}

	s.logger.Info("run abort requested", "run_id", run.ID)
	respondOK(w, reqID, map[string]any{"id": run.ID, "aborting": true})
}

// handleListTrials lists a run's trials with their latest report.
// GET /api/v1/runs/{id}/trials?state=
func (s *Server) handleListTrials(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	run, ok := s.loadRun(w, r, reqID)
	if !ok {
		return
	}

	var trials []*model.Trial
	var err error
	if state := r.URL.Query().Get("state"); state != "" {
		trials, err = s.store.ListTrialsByState(r.Context(), run.ID, model.TrialState(state))
	} else {
		trials, err = s.store.ListTrialsByRun(r.Context(), run.ID)
	}
	if err != nil {
		respondError(w, reqID, http.StatusInternalServerError, model.NewInternalError(err.Error()))
		return
	}

	summaries := make([]*model.TrialSummary, 0, len(trials))
	for _, trial := range trials {
		summary, err := s.summarize(r, trial)
		if err != nil {
			respondError(w, reqID, http.StatusInternalServerError, model.NewInternalError(err.Error()))
			return
		}
		summaries = append(summaries, summary)
	}
	respondOK(w, reqID, summaries)
}

func (s *Server) summarize(r *http.Request, trial *model.Trial) (*model.TrialSummary, error) {
	reports, err := s.store.ListMetrics(r.Context(), trial.ID)
	if err != nil {
		return nil, err
	}
	summary := &model.TrialSummary{Trial: trial, Reports: len(reports)}
	if len(reports) > 0 {
		last := reports[len(reports)-1]
		summary.LastInterval = last.Interval
		summary.LastValue = last.Value
	}
	return summary, nil
}

// handleBestTrial returns the best completed trial.
// GET /api/v1/runs/{id}/best
func (s *Server) handleBestTrial(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	run, ok := s.loadRun(w, r, reqID)
	if !ok {
		return
	}

	trials, err := s.store.ListTrialsByRun(r.Context(), run.ID)
	if err != nil {
		respondError(w, reqID, http.StatusInternalServerError, model.NewInternalError(err.Error()))
		return
	}

	best := model.BestTrial(trials, run.Config.Goal)
	if best == nil {
		respondError(w, reqID, http.StatusNotFound, &model.APIError{
			Code:    model.ErrNotFound,
			Message: "run " + run.ID + " has no completed trial",
		})
		return
	}
	respondOK(w, reqID, best)
}

// handleRanking returns completed trials best to worst.
// GET /api/v1/runs/{id}/ranking
func (s *Server) handleRanking(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	run, ok := s.loadRun(w, r, reqID)
	if !ok {
		return
	}

	trials, err := s.store.ListTrialsByRun(r.Context(), run.ID)
	if err != nil {
		respondError(w, reqID, http.StatusInternalServerError, model.NewInternalError(err.Error()))
		return
	}
	respondOK(w, reqID, model.RankTrials(trials, run.Config.Goal))
}

// handleTrialMetrics returns a trial's full metric history.
// GET /api/v1/trials/{id}/metrics
func (s *Server) handleTrialMetrics(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	trial, err := s.store.GetTrial(r.Context(), id)
	if err != nil {
		respondError(w, reqID, http.StatusInternalServerError, model.NewInternalError(err.Error()))
		return
	}
	if trial == nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("trial", id))
		return
	}

	reports, err := s.store.ListMetrics(r.Context(), trial.ID)
	if err != nil {
		respondError(w, reqID, http.StatusInternalServerError, model.NewInternalError(err.Error()))
		return
	}
	respondOK(w, reqID, reports)
}

// loadRun fetches the {id} run and writes the error response itself
// when the run cannot be served.
func (s *Server) loadRun(w http.ResponseWriter, r *http.Request, reqID string) (*model.TuningRun, bool) {
	id := chi.URLParam(r, "id")
	run, err := s.store.GetRun(r.Context(), id)
	if err != nil {
		respondError(w, reqID, http.StatusInternalServerError, model.NewInternalError(err.Error()))
		return nil, false
	}
	if run == nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("run", id))
		return nil, false
	}
	return run, true
}
