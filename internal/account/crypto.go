package account

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"
)

const sealedPrefix = "enc:"

// scrypt cost parameters (interactive logins, per the scrypt paper)
const (
	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1

	saltSize  = 16
	nonceSize = 24
)

var errNoSecret = errors.New("api key is encrypted but no storage secret is configured")

// sealer encrypts API keys with NaCl secretbox under a key derived from the
// storage secret with scrypt. Each sealed value carries its salt:
// enc:base64(salt | nonce | box). A nil sealer stores keys as-is.
type sealer struct {
	secret []byte
	salt   []byte

	mu   sync.Mutex
	keys map[string]*[32]byte // salt -> derived key
}

func newSealer(secret string) (*sealer, error) {
	if secret == "" {
		return nil, nil
	}

	s := &sealer{
		secret: []byte(secret),
		salt:   make([]byte, saltSize),
		keys:   make(map[string]*[32]byte),
	}
	if _, err := io.ReadFull(rand.Reader, s.salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	if _, err := s.key(s.salt); err != nil {
		return nil, err
	}
	return s, nil
}

// key derives the secretbox key for salt, caching the result
func (s *sealer) key(salt []byte) (*[32]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if k, ok := s.keys[string(salt)]; ok {
		return k, nil
	}

	derived, err := scrypt.Key(s.secret, salt, scryptN, scryptR, scryptP, 32)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	k := new([32]byte)
	copy(k[:], derived)
	s.keys[string(salt)] = k
	return k, nil
}

func (s *sealer) seal(plain string) (string, error) {
	if s == nil || plain == "" {
		return plain, nil
	}

	key, err := s.key(s.salt)
	if err != nil {
		return "", err
	}

	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	out := make([]byte, 0, saltSize+nonceSize+len(plain)+secretbox.Overhead)
	out = append(out, s.salt...)
	out = append(out, nonce[:]...)
	out = secretbox.Seal(out, []byte(plain), &nonce, key)
	return sealedPrefix + base64.StdEncoding.EncodeToString(out), nil
}

func (s *sealer) open(stored string) (string, error) {
	if !strings.HasPrefix(stored, sealedPrefix) {
		return stored, nil
	}
	if s == nil {
		return "", errNoSecret
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, sealedPrefix))
	if err != nil {
		return "", fmt.Errorf("failed to decode api key: %w", err)
	}
	if len(raw) < saltSize+nonceSize+secretbox.Overhead {
		return "", errors.New("sealed api key is too short")
	}

	key, err := s.key(raw[:saltSize])
	if err != nil {
		return "", err
	}

	var nonce [nonceSize]byte
	copy(nonce[:], raw[saltSize:saltSize+nonceSize])

	plain, ok := secretbox.Open(nil, raw[saltSize+nonceSize:], &nonce, key)
	if !ok {
		return "", errors.New("failed to decrypt api key: wrong storage secret")
	}
	return string(plain), nil
}
