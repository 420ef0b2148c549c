package account

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var bucketAccounts = []byte("accounts")

// Store persists accounts in a BoltDB file
type Store struct {
	db     *bolt.DB
	sealer *sealer
}

// NewStore opens (or creates) the account database at path.
// A non-empty secret enables encryption of API keys at rest.
func NewStore(path, secret string) (*Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketAccounts); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucketAccounts, err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	box, err := newSealer(secret)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, sealer: box}, nil
}

// List returns all accounts ordered by name
func (s *Store) List(ctx context.Context) ([]*Account, error) {
	var accounts []*Account

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAccounts).ForEach(func(k, v []byte) error {
			a, err := s.decode(v)
			if err != nil {
				return fmt.Errorf("account %s: %w", k, err)
			}
			accounts = append(accounts, a)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(accounts, func(i, j int) bool {
		return strings.ToLower(accounts[i].Name) < strings.ToLower(accounts[j].Name)
	})
	return accounts, nil
}

// Get retrieves an account by ID
func (s *Store) Get(ctx context.Context, id string) (*Account, error) {
	var a *Account

	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketAccounts).Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}

		var err error
		a, err = s.decode(data)
		return err
	})

	return a, err
}

// Create stores a new account, assigning its ID and timestamps
func (s *Store) Create(ctx context.Context, a *Account) error {
	if err := a.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC()
	a.ID = uuid.New().String()
	a.CreatedAt = now
	a.UpdatedAt = now

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAccounts)
		if err := checkUniqueName(b, a.ID, a.Name); err != nil {
			return err
		}
		return s.put(b, a)
	})
}

// Update replaces an existing account. An empty APIKey keeps the stored key.
func (s *Store) Update(ctx context.Context, a *Account) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAccounts)

		data := b.Get([]byte(a.ID))
		if data == nil {
			return ErrNotFound
		}
		existing, err := s.decode(data)
		if err != nil {
			return err
		}

		if a.APIKey == "" {
			a.APIKey = existing.APIKey
		}
		if err := a.Validate(); err != nil {
			return err
		}
		if err := checkUniqueName(b, a.ID, a.Name); err != nil {
			return err
		}

		a.CreatedAt = existing.CreatedAt
		a.UpdatedAt = time.Now().UTC()
		return s.put(b, a)
	})
}

// Delete removes an account
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAccounts)
		if b.Get([]byte(id)) == nil {
			return ErrNotFound
		}
		return b.Delete([]byte(id))
	})
}

// Count returns the number of stored accounts
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketAccounts).Stats().KeyN
		return nil
	})
	return n, err
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) put(b *bolt.Bucket, a *Account) error {
	sealed, err := s.sealer.seal(a.APIKey)
	if err != nil {
		return err
	}

	stored := *a
	stored.APIKey = sealed

	data, err := json.Marshal(&stored)
	if err != nil {
		return fmt.Errorf("failed to marshal account: %w", err)
	}
	if err := b.Put([]byte(a.ID), data); err != nil {
		return fmt.Errorf("failed to store account: %w", err)
	}
	return nil
}

func (s *Store) decode(data []byte) (*Account, error) {
	a := &Account{}
	if err := json.Unmarshal(data, a); err != nil {
		return nil, fmt.Errorf("failed to unmarshal account: %w", err)
	}

	key, err := s.sealer.open(a.APIKey)
	if err != nil {
		return nil, err
	}
	a.APIKey = key
	return a, nil
}

func checkUniqueName(b *bolt.Bucket, id, name string) error {
	c := b.Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		if string(k) == id {
			continue
		}
		var other struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(v, &other); err != nil {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(other.Name), strings.TrimSpace(name)) {
			return fmt.Errorf("%w: %s", ErrDuplicateName, name)
		}
	}
	return nil
}
