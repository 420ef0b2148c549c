package account

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrNotFound      = errors.New("account not found")
	ErrDuplicateName = errors.New("account name already exists")
	ErrInvalid       = errors.New("invalid account")
)

// Account holds the credentials of one provider account
type Account struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	APIKey    string    `json:"api_key"`
	BaseURL   string    `json:"base_url,omitempty"` // falls back to provider.base_url
	FromEmail string    `json:"from_email,omitempty"`
	FromName  string    `json:"from_name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the fields required to store an account
func (a *Account) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return errors.Join(ErrInvalid, errors.New("name is required"))
	}
	if strings.TrimSpace(a.APIKey) == "" {
		return errors.Join(ErrInvalid, errors.New("api_key is required"))
	}
	return nil
}

// MaskedKey returns the API key with everything but the last four characters hidden
func (a *Account) MaskedKey() string {
	key := a.APIKey
	if len(key) <= 4 {
		return strings.Repeat("*", len(key))
	}
	prefix := ""
	if i := strings.IndexByte(key, '_'); i > 0 && i < len(key)-4 {
		prefix = key[:i+1]
	}
	return prefix + "…" + key[len(key)-4:]
}
