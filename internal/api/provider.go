package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/mailpilot/internal/account"
	"github.com/foxzi/mailpilot/internal/provider"
)

// SendRequest is the request body for a single test send
type SendRequest struct {
	To        string `json:"to"`
	Subject   string `json:"subject"`
	HTML      string `json:"html"`
	FromEmail string `json:"from_email,omitempty"`
	FromName  string `json:"from_name,omitempty"`
}

// accountFromPath loads the account named by the {id} URL parameter,
// writing the error response when it cannot.
func (s *Server) accountFromPath(w http.ResponseWriter, r *http.Request) (*account.Account, bool) {
	a, err := s.accounts.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.sendServiceError(w, err)
		return nil, false
	}
	return a, true
}

// sendProviderError reports a failed provider call as 502
func (s *Server) sendProviderError(w http.ResponseWriter, err error) {
	if apiErr, ok := provider.IsAPIError(err); ok {
		s.sendRaw(w, http.StatusBadGateway, apiErr.Body)
		return
	}
	s.logger.Warn("provider request failed", "error", err)
	s.sendError(w, http.StatusBadGateway, err.Error())
}

// handleVerify handles POST /api/v1/accounts/{id}/verify
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	a, ok := s.accountFromPath(w, r)
	if !ok {
		return
	}

	status, err := s.clients.Client(a).CheckStatus(r.Context())
	if err != nil {
		s.sendProviderError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, status)
}

// handleSend handles POST /api/v1/accounts/{id}/send
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	a, ok := s.accountFromPath(w, r)
	if !ok {
		return
	}

	var req SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	switch {
	case strings.TrimSpace(req.To) == "":
		s.sendError(w, http.StatusBadRequest, "to is required")
		return
	case strings.TrimSpace(req.Subject) == "":
		s.sendError(w, http.StatusBadRequest, "subject is required")
		return
	case strings.TrimSpace(req.HTML) == "":
		s.sendError(w, http.StatusBadRequest, "html is required")
		return
	}

	if req.FromEmail == "" {
		req.FromEmail = a.FromEmail
	}
	if req.FromName == "" {
		req.FromName = a.FromName
	}

	out := s.clients.Client(a).SendEmail(r.Context(), &provider.SendRequest{
		To:        strings.TrimSpace(req.To),
		Subject:   req.Subject,
		HTML:      req.HTML,
		FromEmail: req.FromEmail,
		FromName:  req.FromName,
	})
	if !out.OK {
		s.sendRaw(w, http.StatusBadGateway, out.Body)
		return
	}
	s.sendRaw(w, http.StatusOK, out.Body)
}

// handleLogs handles GET /api/v1/accounts/{id}/logs
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	a, ok := s.accountFromPath(w, r)
	if !ok {
		return
	}

	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", 50)
	if limit > 100 {
		limit = 100
	}

	logs, err := s.clients.Client(a).FetchLogs(r.Context(), page, limit)
	if err != nil {
		s.sendProviderError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, logs)
}

// handleAnalytics handles GET /api/v1/accounts/{id}/analytics
func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	a, ok := s.accountFromPath(w, r)
	if !ok {
		return
	}

	pages := queryInt(r, "pages", 5)
	if pages > 20 {
		pages = 20
	}

	stats, err := s.clients.Client(a).Analytics(r.Context(), pages, 100)
	if err != nil {
		s.sendProviderError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, stats)
}

// queryInt parses a positive integer query parameter
func queryInt(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
