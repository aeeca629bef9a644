package auth

import "github.com/fastertools/oauthkit/pkg/oauth2"

// MockStore implements CredentialStore for testing
type MockStore struct {
	creds *oauth2.Credential
	err   error
}

// NewMockStore creates a mock credential store for testing
func NewMockStore(creds *oauth2.Credential, err error) *MockStore {
	return &MockStore{creds: creds, err: err}
}

// Load returns the mock credentials
func (m *MockStore) Load() (*oauth2.Credential, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.creds, nil
}

// Save stores the mock credentials
func (m *MockStore) Save(creds *oauth2.Credential) error {
	if m.err != nil {
		return m.err
	}
	m.creds = creds
	return nil
}

// Delete clears the mock credentials
func (m *MockStore) Delete() error {
	if m.err != nil {
		return m.err
	}
	m.creds = nil
	return nil
}

// Exists checks if mock credentials exist
func (m *MockStore) Exists() bool {
	return m.creds != nil
}
