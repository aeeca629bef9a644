package auth

import (
	"encoding/json"
	"fmt"

	"github.com/zalando/go-keyring"

	"github.com/fastertools/oauthkit/pkg/oauth2"
)

// CredentialStore provides secure storage for authentication credentials
type CredentialStore interface {
	// Load retrieves stored credentials
	Load() (*oauth2.Credential, error)
	// Save stores credentials securely
	Save(creds *oauth2.Credential) error
	// Delete removes stored credentials
	Delete() error
	// Exists checks if credentials are stored
	Exists() bool
}

// KeyringStore implements CredentialStore using the OS keyring
type KeyringStore struct{}

// NewKeyringStore creates a new keyring-based credential store
func NewKeyringStore() (*KeyringStore, error) {
	// The zalando keyring library handles backend selection automatically
	return &KeyringStore{}, nil
}

// Load retrieves stored credentials from the keyring
func (s *KeyringStore) Load() (*oauth2.Credential, error) {
	data, err := keyring.Get(KeyringService, KeyringUsername)
	if err != nil {
		if err == keyring.ErrNotFound {
			return nil, fmt.Errorf("not logged in")
		}
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}

	var creds oauth2.Credential
	if err := json.Unmarshal([]byte(data), &creds); err != nil {
		return nil, fmt.Errorf("failed to parse credentials: %w", err)
	}

	return &creds, nil
}

// Save stores credentials in the keyring
func (s *KeyringStore) Save(creds *oauth2.Credential) error {
	if creds == nil {
		return fmt.Errorf("cannot save nil credentials")
	}

	data, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}

	if err := keyring.Set(KeyringService, KeyringUsername, string(data)); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}

	return nil
}

// Delete removes stored credentials from the keyring
func (s *KeyringStore) Delete() error {
	err := keyring.Delete(KeyringService, KeyringUsername)
	if err != nil {
		if err == keyring.ErrNotFound {
			return fmt.Errorf("not logged in")
		}
		return fmt.Errorf("failed to delete credentials: %w", err)
	}
	return nil
}

// Exists checks if credentials are stored
func (s *KeyringStore) Exists() bool {
	_, err := keyring.Get(KeyringService, KeyringUsername)
	return err == nil
}
