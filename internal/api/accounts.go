package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/mailpilot/internal/account"
)

// AccountRequest is the request body for creating or updating an account.
// On update an empty api_key keeps the stored key.
type AccountRequest struct {
	Name      string `json:"name"`
	APIKey    string `json:"api_key"`
	BaseURL   string `json:"base_url,omitempty"`
	FromEmail string `json:"from_email,omitempty"`
	FromName  string `json:"from_name,omitempty"`
}

// AccountResponse never carries the API key, only its masked form
type AccountResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	APIKey    string    `json:"api_key_masked"`
	BaseURL   string    `json:"base_url,omitempty"`
	FromEmail string    `json:"from_email,omitempty"`
	FromName  string    `json:"from_name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func newAccountResponse(a *account.Account) AccountResponse {
	return AccountResponse{
		ID:        a.ID,
		Name:      a.Name,
		APIKey:    a.MaskedKey(),
		BaseURL:   a.BaseURL,
		FromEmail: a.FromEmail,
		FromName:  a.FromName,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

// handleAccountsList handles GET /api/v1/accounts
func (s *Server) handleAccountsList(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.accounts.List(r.Context())
	if err != nil {
		s.sendServiceError(w, err)
		return
	}

	resp := make([]AccountResponse, 0, len(accounts))
	for _, a := range accounts {
		resp = append(resp, newAccountResponse(a))
	}
	s.sendJSON(w, http.StatusOK, resp)
}

// handleAccountsCreate handles POST /api/v1/accounts
func (s *Server) handleAccountsCreate(w http.ResponseWriter, r *http.Request) {
	var req AccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	a := &account.Account{
		Name:      req.Name,
		APIKey:    req.APIKey,
		BaseURL:   req.BaseURL,
		FromEmail: req.FromEmail,
		FromName:  req.FromName,
	}
	if err := s.accounts.Create(r.Context(), a); err != nil {
		s.sendServiceError(w, err)
		return
	}

	s.logger.Info("account created", "account_id", a.ID, "name", a.Name)
	s.sendJSON(w, http.StatusCreated, newAccountResponse(a))
}

// handleAccountsGet handles GET /api/v1/accounts/{id}
func (s *Server) handleAccountsGet(w http.ResponseWriter, r *http.Request) {
	a, err := s.accounts.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.sendServiceError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, newAccountResponse(a))
}

// handleAccountsUpdate handles PUT /api/v1/accounts/{id}
func (s *Server) handleAccountsUpdate(w http.ResponseWriter, r *http.Request) {
	var req AccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	a := &account.Account{
		ID:        chi.URLParam(r, "id"),
		Name:      req.Name,
		APIKey:    req.APIKey,
		BaseURL:   req.BaseURL,
		FromEmail: req.FromEmail,
		FromName:  req.FromName,
	}
	if err := s.accounts.Update(r.Context(), a); err != nil {
		s.sendServiceError(w, err)
		return
	}

	s.logger.Info("account updated", "account_id", a.ID, "name", a.Name)
	s.sendJSON(w, http.StatusOK, newAccountResponse(a))
}

// handleAccountsDelete handles DELETE /api/v1/accounts/{id}
func (s *Server) handleAccountsDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.accounts.Delete(r.Context(), id); err != nil {
		s.sendServiceError(w, err)
		return
	}
	s.jobs.Forget(id)
	s.clients.Forget(id)

	s.logger.Info("account deleted", "account_id", id)
	w.WriteHeader(http.StatusNoContent)
}
