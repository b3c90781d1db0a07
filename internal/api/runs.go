package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apperrors "git.home.luguber.info/inful/pagesmith/internal/errors"
	"git.home.luguber.info/inful/pagesmith/internal/history"
	"git.home.luguber.info/inful/pagesmith/internal/logfields"
)

// TriggerRequest is the body of POST /api/trigger. An empty branch means the
// pipeline's configured branch.
type TriggerRequest struct {
	Branch string `json:"branch,omitempty"`
}

// handleListRuns serves run summaries, newest first. ?limit bounds the page.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.Success(w, http.StatusOK, []history.RunSummary{})
		return
	}

	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 0 {
			s.Error(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	summaries, err := s.store.RecentRuns(r.Context(), limit)
	if err != nil {
		slog.Error("Listing runs failed", logfields.Error(err))
		s.Error(w, apperrors.HTTPStatusFor(err), "listing runs failed")
		return
	}
	if summaries == nil {
		summaries = []history.RunSummary{}
	}
	s.Success(w, http.StatusOK, summaries)
}

// handleGetRun serves one full stored run.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.Error(w, http.StatusNotFound, "run not found")
		return
	}

	id := chi.URLParam(r, "id")
	run, err := s.store.Run(r.Context(), id)
	if errors.Is(err, history.ErrNotFound) {
		s.Error(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		slog.Error("Fetching run failed", logfields.RunID(id), logfields.Error(err))
		s.Error(w, apperrors.HTTPStatusFor(err), "fetching run failed")
		return
	}
	s.Success(w, http.StatusOK, run)
}

// handleGetRunEvents serves a run's lifecycle events in append order.
func (s *Server) handleGetRunEvents(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.Success(w, http.StatusOK, []history.RunEvent{})
		return
	}

	id := chi.URLParam(r, "id")
	events, err := s.store.Events(r.Context(), id)
	if err != nil {
		slog.Error("Fetching run events failed", logfields.RunID(id), logfields.Error(err))
		s.Error(w, apperrors.HTTPStatusFor(err), "fetching run events failed")
		return
	}
	if events == nil {
		events = []history.RunEvent{}
	}
	s.Success(w, http.StatusOK, events)
}

// handleTrigger enqueues a manual run.
func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	if s.trigger == nil {
		s.Error(w, http.StatusNotFound, "manual triggering unavailable")
		return
	}

	// An empty body is a valid "run the configured branch" request.
	var req TriggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	defer r.Body.Close()

	if err := s.trigger(req.Branch); err != nil {
		slog.Warn("Manual trigger rejected", logfields.Branch(req.Branch), logfields.Error(err))
		s.Error(w, apperrors.HTTPStatusFor(err), err.Error())
		return
	}

	slog.Info("Manual run queued", logfields.Branch(req.Branch))
	s.Success(w, http.StatusAccepted, map[string]string{"queued": "true", "branch": req.Branch})
}
