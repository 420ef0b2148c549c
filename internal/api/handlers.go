package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/foxzi/mailpilot/internal/account"
	"github.com/foxzi/mailpilot/internal/job"
	"github.com/foxzi/mailpilot/internal/provider"
)

// HealthResponse is the response for GET /health
type HealthResponse struct {
	Status     string         `json:"status"`
	Version    string         `json:"version"`
	Uptime     string         `json:"uptime"`
	Accounts   int            `json:"accounts"`
	ActiveJobs map[string]int `json:"active_jobs"`
}

// ErrorResponse is the error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:     "ok",
		Version:    s.version,
		Uptime:     time.Since(s.startTime).Round(time.Second).String(),
		ActiveJobs: s.jobs.ActiveJobs(),
	}

	n, err := s.accounts.Count(r.Context())
	if err != nil {
		s.logger.Error("failed to count accounts", "error", err)
		resp.Status = "degraded"
	}
	resp.Accounts = n

	s.sendJSON(w, http.StatusOK, resp)
}

// sendJSON sends a JSON response
func (s *Server) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// sendRaw passes a provider payload through unchanged
func (s *Server) sendRaw(w http.ResponseWriter, status int, body json.RawMessage) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

// sendError sends an error response
func (s *Server) sendError(w http.ResponseWriter, status int, message string) {
	s.sendJSON(w, status, ErrorResponse{Error: message})
}

// sendServiceError maps domain errors to HTTP statuses
func (s *Server) sendServiceError(w http.ResponseWriter, err error) {
	var apiErr *provider.APIError

	switch {
	case errors.Is(err, account.ErrNotFound):
		s.sendError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, account.ErrInvalid), errors.Is(err, job.ErrValidation):
		s.sendError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, account.ErrDuplicateName), errors.Is(err, job.ErrJobActive):
		s.sendError(w, http.StatusConflict, err.Error())
	case errors.As(err, &apiErr):
		s.sendRaw(w, http.StatusBadGateway, apiErr.Body)
	default:
		s.logger.Error("request failed", "error", err)
		s.sendError(w, http.StatusInternalServerError, "internal error")
	}
}
