package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/zalando/go-keyring"

	"github.com/fastertools/oauthkit/pkg/oauth2"
)

func TestKeyringStoreRoundTrip(t *testing.T) {
	keyring.MockInit()

	store, err := NewKeyringStore()
	if err != nil {
		t.Fatalf("NewKeyringStore() error = %v", err)
	}

	if store.Exists() {
		t.Error("Exists() = true before any save")
	}
	if _, err := store.Load(); err == nil || !strings.Contains(err.Error(), "not logged in") {
		t.Errorf("Load() error = %v, want not logged in", err)
	}

	expiry := time.Now().Add(time.Hour).Truncate(time.Second)
	creds := &oauth2.Credential{
		AccessToken:   "access",
		TokenType:     "bearer",
		RefreshToken:  "refresh",
		Scopes:        []string{"openid", "email"},
		ExpiresAt:     &expiry,
		TokenEndpoint: "https://auth.example.com/token",
	}

	if err := store.Save(creds); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if !store.Exists() {
		t.Error("Exists() = false after save")
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.AccessToken != creds.AccessToken || loaded.RefreshToken != creds.RefreshToken {
		t.Errorf("Load() = %+v, want %+v", loaded, creds)
	}
	if loaded.TokenEndpoint != creds.TokenEndpoint {
		t.Errorf("TokenEndpoint = %q, want %q", loaded.TokenEndpoint, creds.TokenEndpoint)
	}
	if loaded.ExpiresAt == nil || !loaded.ExpiresAt.Equal(expiry) {
		t.Errorf("ExpiresAt = %v, want %v", loaded.ExpiresAt, expiry)
	}
	if len(loaded.Scopes) != 2 {
		t.Errorf("Scopes = %v, want two entries", loaded.Scopes)
	}

	if err := store.Delete(); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if store.Exists() {
		t.Error("Exists() = true after delete")
	}
	if err := store.Delete(); err == nil || !strings.Contains(err.Error(), "not logged in") {
		t.Errorf("second Delete() error = %v, want not logged in", err)
	}
}

func TestKeyringStoreSaveNil(t *testing.T) {
	keyring.MockInit()

	store, _ := NewKeyringStore()
	if err := store.Save(nil); err == nil {
		t.Error("Save(nil) succeeded, want error")
	}
}
