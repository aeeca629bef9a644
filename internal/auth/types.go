package auth

import (
	"context"
	"time"

	"github.com/fastertools/oauthkit/pkg/oauth2"
)

// DeviceFlow is the slice of the device session the manager drives.
// *oauth2.DeviceSession satisfies it; tests substitute a mock.
type DeviceFlow interface {
	RequestDeviceCode(ctx context.Context, scopes []string, useClientSecret bool) (*oauth2.DeviceAuthorization, error)
	PollForToken(ctx context.Context, useClientSecret bool) (*oauth2.Client, error)
	Close() error
}

// FlowFactory creates a fresh device flow for one login attempt.
type FlowFactory func(config *LoginConfig) (DeviceFlow, error)

// BrowserOpener defines the interface for opening URLs in a browser.
type BrowserOpener interface {
	OpenURL(url string) error
}

// LoginConfig contains configuration for the login process.
type LoginConfig struct {
	// ClientID identifies this application to the authorization server.
	ClientID string
	// ClientSecret is optional; confidential clients only.
	ClientSecret string
	// DeviceEndpoint is the device authorization endpoint.
	DeviceEndpoint string
	// TokenEndpoint is the token endpoint.
	TokenEndpoint string
	// Scopes to request during login.
	Scopes []string
	// ScopeDelimiter between scopes; defaults to a space.
	ScopeDelimiter string
	// UseBasicAuth sends client credentials in a Basic header.
	UseBasicAuth bool
	// NoBrowser disables opening the verification URI automatically.
	NoBrowser bool
	// Force re-authentication even if already logged in.
	Force bool
}

// AuthStatus represents the current authentication status.
type AuthStatus struct {
	LoggedIn     bool
	Credentials  *oauth2.Credential
	Error        error
	NeedsRefresh bool
}

const (
	// LoginTimeout caps how long we wait for the user to complete login.
	LoginTimeout = 30 * time.Minute
	// DefaultPollInterval is used when the server suggests no interval.
	DefaultPollInterval = 5 * time.Second
	// KeyringService is the keyring service name.
	KeyringService = "oauthkit"
	// KeyringUsername is the keyring account credentials are stored under.
	KeyringUsername = "default"
)
