package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/JakeFAU/radio-playlist-archiver/internal/playlist"
	"github.com/JakeFAU/radio-playlist-archiver/internal/runner"
	"github.com/JakeFAU/radio-playlist-archiver/internal/status"
)

const (
	storeTimeout    = 3 * time.Second
	maxBackfillPage = 500
)

type statusResponse struct {
	Time          time.Time     `json:"time"`
	Tasks         []status.Task `json:"tasks"`
	SourceBreaker string        `json:"source_breaker,omitempty"`
}

type targetView struct {
	playlist.Target
	StoredShows int `json:"stored_shows"`
}

type backfillRequest struct {
	Pages  int    `json:"pages"`
	Target string `json:"target,omitempty"`
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.logger, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.pinger == nil {
		writeJSON(w, s.logger, http.StatusOK, map[string]string{"status": "ready"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()
	if err := s.pinger.Ping(ctx); err != nil {
		s.logger.Warn("readiness check failed", zap.Error(err))
		writeError(w, s.logger, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, s.logger, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) getStatus(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{Tasks: []status.Task{}}
	if s.clock != nil {
		resp.Time = s.clock.Now()
	}
	if s.tracker != nil {
		resp.Tasks = s.tracker.Snapshot()
	}
	if s.breaker != nil {
		resp.SourceBreaker = s.breaker.BreakerState()
	}
	writeJSON(w, s.logger, http.StatusOK, resp)
}

func (s *Server) listTargets(w http.ResponseWriter, r *http.Request) {
	if s.cycles == nil {
		writeJSON(w, s.logger, http.StatusOK, map[string]any{"targets": []targetView{}})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	targets := s.cycles.Targets()
	views := make([]targetView, 0, len(targets))
	for _, t := range targets {
		view := targetView{Target: t}
		if s.store != nil {
			count, err := s.store.CountShows(ctx, t.Name)
			if err != nil {
				s.logger.Error("count shows failed", zap.String("target", t.Name), zap.Error(err))
				writeError(w, s.logger, http.StatusInternalServerError, "failed to count shows")
				return
			}
			view.StoredShows = count
		}
		views = append(views, view)
	}
	writeJSON(w, s.logger, http.StatusOK, map[string]any{"targets": views})
}

func (s *Server) submitBackfill(w http.ResponseWriter, r *http.Request) {
	if s.cycles == nil {
		writeError(w, s.logger, http.StatusServiceUnavailable, "crawler unavailable")
		return
	}
	var req backfillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, s.logger, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Pages < 1 || req.Pages > maxBackfillPage {
		writeError(w, s.logger, http.StatusBadRequest, "pages must be between 1 and 500")
		return
	}
	err := s.cycles.Submit(runner.Request{MaxPages: req.Pages, Target: req.Target, Reason: "api backfill"})
	switch {
	case errors.Is(err, runner.ErrBusy):
		writeError(w, s.logger, http.StatusConflict, err.Error())
		return
	case errors.Is(err, runner.ErrUnknownTarget):
		writeError(w, s.logger, http.StatusNotFound, err.Error())
		return
	case err != nil:
		writeError(w, s.logger, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, s.logger, http.StatusAccepted, map[string]any{"status": "queued", "pages": req.Pages})
}

func writeJSON(w http.ResponseWriter, logger *zap.Logger, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, logger *zap.Logger, status int, msg string) {
	writeJSON(w, logger, status, map[string]string{"error": msg})
}
