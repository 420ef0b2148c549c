package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/mailpilot/internal/job"
)

// controllerFromPath resolves the {kind} URL parameter
func (s *Server) controllerFromPath(w http.ResponseWriter, r *http.Request) (*job.Controller, bool) {
	c, ok := s.jobs[job.Kind(chi.URLParam(r, "kind"))]
	if !ok {
		s.sendError(w, http.StatusNotFound, "unknown job kind")
		return nil, false
	}
	return c, true
}

// handleJobGet handles GET /api/v1/accounts/{id}/jobs/{kind}
func (s *Server) handleJobGet(w http.ResponseWriter, r *http.Request) {
	c, ok := s.controllerFromPath(w, r)
	if !ok {
		return
	}
	a, ok := s.accountFromPath(w, r)
	if !ok {
		return
	}
	s.sendJSON(w, http.StatusOK, c.Job(a.ID))
}

// handleJobUpdate handles PUT /api/v1/accounts/{id}/jobs/{kind}
func (s *Server) handleJobUpdate(w http.ResponseWriter, r *http.Request) {
	c, ok := s.controllerFromPath(w, r)
	if !ok {
		return
	}
	a, ok := s.accountFromPath(w, r)
	if !ok {
		return
	}

	var in job.Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := c.UpdateInput(a.ID, in); err != nil {
		s.sendServiceError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, c.Job(a.ID))
}

// handleJobControl handles POST /api/v1/accounts/{id}/jobs/{kind}/{action}
func (s *Server) handleJobControl(w http.ResponseWriter, r *http.Request) {
	c, ok := s.controllerFromPath(w, r)
	if !ok {
		return
	}
	a, ok := s.accountFromPath(w, r)
	if !ok {
		return
	}

	switch chi.URLParam(r, "action") {
	case "start":
		if err := c.Start(a.ID, a); err != nil {
			s.sendServiceError(w, err)
			return
		}
	case "pause":
		c.Pause(a.ID)
	case "resume":
		c.Resume(a.ID)
	case "stop":
		c.Stop(a.ID)
	default:
		s.sendError(w, http.StatusNotFound, "unknown job action")
		return
	}

	s.sendJSON(w, http.StatusOK, c.Job(a.ID))
}
