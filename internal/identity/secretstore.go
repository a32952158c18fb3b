package identity

import (
	"errors"
	"fmt"
	"sync"
)

// ErrSecretNotFound is returned by SecretStore.Get for a missing slot.
var ErrSecretNotFound = errors.New("secret not found")

// SecretStore is the opaque credential store (OS keychain in production).
// Crypto and persistence never reach into it beyond these four calls.
type SecretStore interface {
	Put(key string, value []byte) error
	Get(key string) ([]byte, error)
	Delete(key string) error
	ClearAll() error
}

// Manager owns the lifecycle of the device identity inside a SecretStore.
type Manager struct {
	secrets SecretStore
}

func NewManager(secrets SecretStore) *Manager {
	return &Manager{secrets: secrets}
}

// Load rebuilds the identity from the stored seed. A missing seed surfaces
// as ErrNoIdentity so callers can route to registration.
func (m *Manager) Load() (*KeyPair, error) {
	seed, err := m.secrets.Get(secretKeyPrivate)
	if errors.Is(err, ErrSecretNotFound) {
		return nil, ErrNoIdentity
	}
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	return FromSeed(seed)
}

// Generate creates and persists a fresh identity, replacing any previous one.
func (m *Manager) Generate() (*KeyPair, error) {
	kp, err := NewKeyPair()
	if err != nil {
		return nil, err
	}
	if err := m.secrets.Put(secretKeyPrivate, kp.Seed()); err != nil {
		return nil, fmt.Errorf("store private key: %w", err)
	}
	return kp, nil
}

// LoadOrGenerate returns the stored identity, creating one on first run.
func (m *Manager) LoadOrGenerate() (*KeyPair, error) {
	kp, err := m.Load()
	if errors.Is(err, ErrNoIdentity) {
		return m.Generate()
	}
	return kp, err
}

// Wipe removes every secret, identity included. Used on logout.
func (m *Manager) Wipe() error {
	return m.secrets.ClearAll()
}

// MemoryStore is an in-process SecretStore for tests and ephemeral runs.
type MemoryStore struct {
	mu      sync.Mutex
	secrets map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{secrets: make(map[string][]byte)}
}

func (s *MemoryStore) Put(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secrets[key] = append([]byte(nil), value...)
	return nil
}

func (s *MemoryStore) Get(key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.secrets[key]
	if !ok {
		return nil, ErrSecretNotFound
	}
	return append([]byte(nil), value...), nil
}

func (s *MemoryStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.secrets, key)
	return nil
}

func (s *MemoryStore) ClearAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secrets = make(map[string][]byte)
	return nil
}
