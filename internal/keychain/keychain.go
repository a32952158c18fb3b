package keychain

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"

	"github.com/quickpic/client/internal/identity"
)

// Store keeps secrets in the platform keyring (Keychain on macOS,
// Secret Service on Linux, Credential Manager on Windows). Values are
// base64-encoded because keyring entries are strings.
type Store struct {
	service string
}

func New(service string) *Store {
	return &Store{service: service}
}

func (s *Store) Put(key string, value []byte) error {
	if err := keyring.Set(s.service, key, base64.StdEncoding.EncodeToString(value)); err != nil {
		return fmt.Errorf("keyring set %s: %w", key, err)
	}
	return nil
}

func (s *Store) Get(key string) ([]byte, error) {
	encoded, err := keyring.Get(s.service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, identity.ErrSecretNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("keyring get %s: %w", key, err)
	}
	value, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("keyring entry %s is not base64: %w", key, err)
	}
	return value, nil
}

func (s *Store) Delete(key string) error {
	err := keyring.Delete(s.service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}

func (s *Store) ClearAll() error {
	err := keyring.DeleteAll(s.service)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}

var _ identity.SecretStore = (*Store)(nil)
