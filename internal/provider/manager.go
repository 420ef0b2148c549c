package provider

import (
	"sync"
	"time"

	"github.com/foxzi/mailpilot/internal/account"
)

// Manager hands out one client per account and rebuilds it when the
// account's credentials change
type Manager struct {
	baseURL string
	timeout time.Duration

	clients map[string]*managedClient
	mu      sync.Mutex
}

type managedClient struct {
	client    *Client
	updatedAt time.Time
}

// NewManager creates a client manager. baseURL is used for accounts
// that don't carry their own.
func NewManager(baseURL string, timeout time.Duration) *Manager {
	return &Manager{
		baseURL: baseURL,
		timeout: timeout,
		clients: make(map[string]*managedClient),
	}
}

// Client returns the client for an account
func (m *Manager) Client(a *account.Account) *Client {
	m.mu.Lock()
	defer m.mu.Unlock()

	if mc, ok := m.clients[a.ID]; ok && mc.updatedAt.Equal(a.UpdatedAt) {
		return mc.client
	}

	baseURL := a.BaseURL
	if baseURL == "" {
		baseURL = m.baseURL
	}

	c := NewClient(baseURL, a.APIKey, m.timeout)
	m.clients[a.ID] = &managedClient{client: c, updatedAt: a.UpdatedAt}
	return c
}

// Forget drops the cached client of a deleted account
func (m *Manager) Forget(accountID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.clients, accountID)
}
