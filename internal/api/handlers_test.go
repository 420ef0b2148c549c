package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foxzi/mailpilot/internal/account"
	"github.com/foxzi/mailpilot/internal/config"
	"github.com/foxzi/mailpilot/internal/job"
	"github.com/foxzi/mailpilot/internal/provider"
)

const testKey = "test-key"

// fakeProvider answers the provider endpoints the API touches
type fakeProvider struct {
	sends  atomic.Int32
	reject atomic.Bool
}

func (p *fakeProvider) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if p.reject.Load() {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error":"invalid recipient"}`))
		return
	}

	switch r.URL.Path {
	case "/v1/send":
		p.sends.Add(1)
		w.Write([]byte(`{"success":true,"emails":[{"id":"em_1"}]}`))
	case "/v1/track":
		w.Write([]byte(`{"success":true}`))
	case "/v1/contacts/count":
		if r.Header.Get("Authorization") != "Bearer sk_live_1234" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"count":42}`))
	case "/v1/events":
		w.Write([]byte(`{"total":2,"events":[
			{"id":"e1","name":"delivered","contact":{"email":"a@x.com"},"createdAt":"2026-01-01T00:00:00Z"},
			{"id":"e2","name":"opened","contact":{"email":"a@x.com"},"createdAt":"2026-01-01T00:01:00Z"}
		]}`))
	default:
		http.NotFound(w, r)
	}
}

type testEnv struct {
	server   *Server
	accounts *account.Store
	provider *fakeProvider
	jobs     job.Controllers
}

func setupTestServer(t *testing.T, apiKey string) *testEnv {
	t.Helper()

	fp := &fakeProvider{}
	ps := httptest.NewServer(fp)
	t.Cleanup(ps.Close)

	accounts, err := account.NewStore(filepath.Join(t.TempDir(), "accounts.db"), "secret")
	require.NoError(t, err)
	t.Cleanup(func() { accounts.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clients := provider.NewManager(ps.URL, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	opts := job.Options{TickInterval: 10 * time.Millisecond, PausePollInterval: 5 * time.Millisecond}
	jobs := job.Controllers{
		job.KindSend:  job.NewController(ctx, job.NewSendOperation(clients), job.NewStore(), opts, logger),
		job.KindTrack: job.NewController(ctx, job.NewTrackOperation(clients), job.NewStore(), opts, logger),
	}
	t.Cleanup(func() {
		jobs.Shutdown()
		cancel()
	})

	cfg := &config.ServerConfig{ListenAddr: ":0", APIKey: apiKey}
	return &testEnv{
		server:   NewServer(cfg, accounts, clients, jobs, "test", logger),
		accounts: accounts,
		provider: fp,
		jobs:     jobs,
	}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader
	if body != "" {
		r = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+testKey)
	w := httptest.NewRecorder()

	e.server.Handler().ServeHTTP(w, req)
	return w
}

func (e *testEnv) createAccount(t *testing.T) *account.Account {
	t.Helper()

	a := &account.Account{Name: "Main", APIKey: "sk_live_1234", FromEmail: "team@example.com", FromName: "Team"}
	require.NoError(t, e.accounts.Create(context.Background(), a))
	return a
}

func decodeJob(t *testing.T, w *httptest.ResponseRecorder) *job.Job {
	t.Helper()

	var j job.Job
	require.NoError(t, json.NewDecoder(w.Body).Decode(&j), "body: %s", w.Body.String())
	return &j
}

func TestHealthEndpoint(t *testing.T) {
	env := setupTestServer(t, "")
	env.createAccount(t)

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	env.server.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp HealthResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "test", resp.Version)
	assert.Equal(t, 1, resp.Accounts)
	assert.Equal(t, map[string]int{"send": 0, "track": 0}, resp.ActiveJobs)
}

func TestAuthMiddleware(t *testing.T) {
	env := setupTestServer(t, "secret-key")

	tests := []struct {
		name   string
		header string
		value  string
		want   int
	}{
		{"no auth", "", "", http.StatusUnauthorized},
		{"wrong key", "Authorization", "Bearer wrong-key", http.StatusUnauthorized},
		{"correct key", "Authorization", "Bearer secret-key", http.StatusOK},
		{"x-api-key header", "X-API-Key", "secret-key", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/v1/accounts", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			w := httptest.NewRecorder()

			env.server.Handler().ServeHTTP(w, req)

			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestAuthMiddlewareNoKeyConfigured(t *testing.T) {
	env := setupTestServer(t, "")

	req := httptest.NewRequest("GET", "/api/v1/accounts", nil)
	w := httptest.NewRecorder()

	env.server.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code, "no auth required")
}

func TestAccountsCRUD(t *testing.T) {
	env := setupTestServer(t, testKey)

	w := env.do(t, "POST", "/api/v1/accounts", `{"name":"Main","api_key":"sk_live_abcdef1234","from_email":"team@example.com"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.NotContains(t, w.Body.String(), "sk_live_abcdef1234", "key must never be echoed")

	var created AccountResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "sk_…1234", created.APIKey)

	w = env.do(t, "POST", "/api/v1/accounts", `{"name":"Main","api_key":"other"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, "POST", "/api/v1/accounts", `{"name":"","api_key":"k"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, "GET", "/api/v1/accounts", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list []AccountResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&list))
	assert.Len(t, list, 1)

	w = env.do(t, "PUT", "/api/v1/accounts/"+created.ID, `{"name":"Renamed"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	stored, err := env.accounts.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", stored.Name)
	assert.Equal(t, "sk_live_abcdef1234", stored.APIKey, "empty api_key keeps the stored key")

	w = env.do(t, "DELETE", "/api/v1/accounts/"+created.ID, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(t, "GET", "/api/v1/accounts/"+created.ID, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestVerifyEndpoint(t *testing.T) {
	env := setupTestServer(t, testKey)
	a := env.createAccount(t)

	w := env.do(t, "POST", "/api/v1/accounts/"+a.ID+"/verify", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp provider.StatusResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Valid)
	assert.Equal(t, 42, resp.Contacts)

	bad := &account.Account{Name: "Bad", APIKey: "sk_wrong"}
	require.NoError(t, env.accounts.Create(context.Background(), bad))

	w = env.do(t, "POST", "/api/v1/accounts/"+bad.ID+"/verify", "")
	require.Equal(t, http.StatusOK, w.Code)
	resp = provider.StatusResponse{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.False(t, resp.Valid)
}

func TestSendEndpoint(t *testing.T) {
	env := setupTestServer(t, testKey)
	a := env.createAccount(t)
	path := "/api/v1/accounts/" + a.ID + "/send"

	w := env.do(t, "POST", path, `{"to":"a@x.com","subject":"Hi","html":"<p>Hi</p>"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"success":true,"emails":[{"id":"em_1"}]}`, w.Body.String())

	env.provider.reject.Store(true)
	w = env.do(t, "POST", path, `{"to":"a@x.com","subject":"Hi","html":"<p>Hi</p>"}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.JSONEq(t, `{"error":"invalid recipient"}`, w.Body.String())
}

func TestSendEndpointValidation(t *testing.T) {
	env := setupTestServer(t, testKey)
	a := env.createAccount(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"missing to", `{"subject":"Hi","html":"x"}`, http.StatusBadRequest},
		{"missing subject", `{"to":"a@x.com","html":"x"}`, http.StatusBadRequest},
		{"missing html", `{"to":"a@x.com","subject":"Hi"}`, http.StatusBadRequest},
		{"invalid json", `{invalid}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, "POST", "/api/v1/accounts/"+a.ID+"/send", tt.body)
			assert.Equal(t, tt.want, w.Code)
		})
	}

	w := env.do(t, "POST", "/api/v1/accounts/missing/send", `{"to":"a@x.com","subject":"Hi","html":"x"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Zero(t, env.provider.sends.Load())
}

func TestLogsAndAnalytics(t *testing.T) {
	env := setupTestServer(t, testKey)
	a := env.createAccount(t)

	w := env.do(t, "GET", "/api/v1/accounts/"+a.ID+"/logs?page=1&limit=500", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var logs provider.LogsPage
	require.NoError(t, json.NewDecoder(w.Body).Decode(&logs))
	assert.Len(t, logs.Events, 2)
	assert.Equal(t, 100, logs.Limit, "limit is capped")
	assert.Equal(t, "delivered", logs.Events[0].Type)

	w = env.do(t, "GET", "/api/v1/accounts/"+a.ID+"/analytics", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var stats provider.Analytics
	require.NoError(t, json.NewDecoder(w.Body).Decode(&stats))
	assert.Equal(t, 2, stats.Events)
	assert.Equal(t, 1, stats.UniqueRecipients)
	assert.Equal(t, 1, stats.ByType["opened"])

	env.provider.reject.Store(true)
	w = env.do(t, "GET", "/api/v1/accounts/"+a.ID+"/logs", "")
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestJobLifecycle(t *testing.T) {
	env := setupTestServer(t, testKey)
	a := env.createAccount(t)
	base := "/api/v1/accounts/" + a.ID + "/jobs/send"

	w := env.do(t, "GET", base, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, job.StatusIdle, decodeJob(t, w).Status)

	w = env.do(t, "POST", base+"/start", "")
	assert.Equal(t, http.StatusBadRequest, w.Code, "no recipients")

	in := `{"recipients_raw":"a@x.com\n\nb@x.com\n","payload":{"subject":"Hi {{ email }}","html":"<p>{{ index }}/{{ total }}</p>"},"delay_seconds":0}`
	w = env.do(t, "PUT", base, in)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, "POST", base+"/start", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 2, decodeJob(t, w).Progress.Total)

	require.Eventually(t, func() bool {
		return env.jobs[job.KindSend].Job(a.ID).Status == job.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	w = env.do(t, "GET", base, "")
	j := decodeJob(t, w)
	assert.Equal(t, 2, j.Stats.Success)
	assert.Equal(t, 2, j.Progress.Current)
	require.Len(t, j.Results, 2)
	assert.Equal(t, "b@x.com", j.Results[0].Recipient, "newest result first")
	assert.EqualValues(t, 2, env.provider.sends.Load())
}

func TestJobControl(t *testing.T) {
	env := setupTestServer(t, testKey)
	a := env.createAccount(t)
	base := "/api/v1/accounts/" + a.ID + "/jobs/track"

	recipients := strings.Repeat("a@x.com\n", 5)
	in := `{"recipients_raw":` + mustJSON(t, recipients) + `,"payload":{"audience_id":"news"},"delay_seconds":30}`
	w := env.do(t, "PUT", base, in)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, "POST", base+"/start", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, "POST", base+"/start", "")
	assert.Equal(t, http.StatusConflict, w.Code, "second start while active")

	w = env.do(t, "PUT", base, in)
	assert.Equal(t, http.StatusConflict, w.Code, "input is frozen while active")

	require.Eventually(t, func() bool {
		return env.jobs[job.KindTrack].Job(a.ID).Status == job.StatusWaiting
	}, 2*time.Second, 5*time.Millisecond)

	w = env.do(t, "POST", base+"/pause", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, job.StatusPaused, decodeJob(t, w).Status)

	w = env.do(t, "POST", base+"/resume", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, job.StatusWaiting, decodeJob(t, w).Status)

	w = env.do(t, "POST", base+"/stop", "")
	require.Equal(t, http.StatusOK, w.Code)
	j := decodeJob(t, w)
	assert.Equal(t, job.StatusStopped, j.Status)
	assert.Zero(t, j.CountdownSeconds)

	w = env.do(t, "POST", base+"/restart", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, "GET", "/api/v1/accounts/"+a.ID+"/jobs/unknown", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteAccountForgetsJobs(t *testing.T) {
	env := setupTestServer(t, testKey)
	a := env.createAccount(t)
	base := "/api/v1/accounts/" + a.ID + "/jobs/send"

	w := env.do(t, "PUT", base, `{"recipients_raw":"a@x.com\nb@x.com","payload":{"subject":"s","html":"h"},"delay_seconds":60}`)
	require.Equal(t, http.StatusOK, w.Code)
	w = env.do(t, "POST", base+"/start", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, "DELETE", "/api/v1/accounts/"+a.ID, "")
	require.Equal(t, http.StatusNoContent, w.Code)

	assert.Equal(t, job.StatusIdle, env.jobs[job.KindSend].Job(a.ID).Status)
	assert.Zero(t, env.jobs.ActiveJobs()["send"])
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()

	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}
