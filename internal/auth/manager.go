package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pkg/browser"

	"github.com/fastertools/oauthkit/internal/config"
	"github.com/fastertools/oauthkit/pkg/oauth2"
)

// Manager handles authentication operations: it drives the device flow,
// persists the resulting credential, and hands out valid tokens.
type Manager struct {
	store         CredentialStore
	newFlow       FlowFactory
	browserOpener BrowserOpener
	config        *LoginConfig

	// flow is the in-progress device session between StartDeviceFlow and
	// CompleteDeviceFlow.
	flow DeviceFlow
}

// defaultBrowserOpener implements BrowserOpener using the browser package
type defaultBrowserOpener struct{}

func (d *defaultBrowserOpener) OpenURL(url string) error {
	return browser.OpenURL(url)
}

func defaultFlowFactory(config *LoginConfig) (DeviceFlow, error) {
	return oauth2.NewDeviceSession(oauth2.SessionConfig{
		ClientID:       config.ClientID,
		ClientSecret:   config.ClientSecret,
		DeviceEndpoint: config.DeviceEndpoint,
		TokenEndpoint:  config.TokenEndpoint,
		ScopeDelimiter: config.ScopeDelimiter,
		UseBasicAuth:   config.UseBasicAuth,
	})
}

// NewManager creates a new authentication manager.
func NewManager(store CredentialStore, config *LoginConfig) *Manager {
	if config == nil {
		config = &LoginConfig{}
	}
	return &Manager{
		store:         store,
		newFlow:       defaultFlowFactory,
		browserOpener: &defaultBrowserOpener{},
		config:        config,
	}
}

// NewManagerWithFlow creates a manager with every external dependency
// supplied. This is primarily for testing to prevent network and browser
// interactions.
func NewManagerWithFlow(store CredentialStore, factory FlowFactory, opener BrowserOpener, config *LoginConfig) *Manager {
	if config == nil {
		config = &LoginConfig{}
	}
	return &Manager{
		store:         store,
		newFlow:       factory,
		browserOpener: opener,
		config:        config,
	}
}

// StartDeviceFlow begins the device flow and returns the codes to show
// the user. The session is kept on the manager until CompleteDeviceFlow.
func (m *Manager) StartDeviceFlow(ctx context.Context) (*oauth2.DeviceAuthorization, error) {
	// Check if already logged in (unless force is set)
	if !m.config.Force {
		if creds, err := m.store.Load(); err == nil && creds != nil {
			if !creds.IsExpired() {
				return nil, fmt.Errorf("already logged in")
			}
			if creds.RefreshToken != "" {
				if _, err := m.Refresh(ctx, creds); err == nil {
					return nil, fmt.Errorf("already logged in (token refreshed)")
				}
			}
		}
	}

	flow, err := m.newFlow(m.config)
	if err != nil {
		return nil, fmt.Errorf("failed to create device session: %w", err)
	}

	deviceAuth, err := flow.RequestDeviceCode(ctx, m.config.Scopes, m.config.ClientSecret != "")
	if err != nil {
		_ = flow.Close()
		return nil, fmt.Errorf("failed to start device flow: %w", err)
	}
	m.flow = flow

	if !m.config.NoBrowser && m.browserOpener != nil {
		url := deviceAuth.VerificationURIComplete
		if url == "" {
			url = deviceAuth.VerificationURI
		}
		_ = m.browserOpener.OpenURL(url)
	}

	return deviceAuth, nil
}

// CompleteDeviceFlow polls until the user approves, then saves the
// credential. The poll loop honors the server-suggested interval, backs
// off on slow_down, and gives up when the device code window closes.
func (m *Manager) CompleteDeviceFlow(ctx context.Context, deviceAuth *oauth2.DeviceAuthorization) (*oauth2.Credential, error) {
	if m.flow == nil {
		return nil, fmt.Errorf("device flow not started")
	}
	defer func() {
		_ = m.flow.Close()
		m.flow = nil
	}()

	interval := time.Duration(deviceAuth.Interval) * time.Second
	if interval == 0 {
		interval = DefaultPollInterval
	}

	deadline := deviceAuth.ExpiresAt
	if max := time.Now().Add(LoginTimeout); deadline.IsZero() || deadline.After(max) {
		deadline = max
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	useSecret := m.config.ClientSecret != ""
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			if time.Now().After(deadline) {
				return nil, fmt.Errorf("device code expired before authorization completed")
			}

			client, err := m.flow.PollForToken(ctx, useSecret)
			if err != nil {
				var protoErr *oauth2.ProtocolError
				if errors.As(err, &protoErr) {
					if protoErr.IsAuthorizationPending() {
						continue
					}
					if protoErr.IsSlowDown() {
						interval *= 2
						ticker.Reset(interval)
						continue
					}
					if protoErr.IsExpiredToken() {
						return nil, fmt.Errorf("device code expired, please try again")
					}
				}
				return nil, err
			}

			creds := client.Credential()
			if err := m.store.Save(creds); err != nil {
				return nil, fmt.Errorf("failed to save credentials: %w", err)
			}

			// User info display is best effort; a token we cannot decode
			// is not a login failure.
			if err := m.saveUserInfo(creds); err != nil {
				fmt.Printf("Warning: failed to save user info: %v\n", err)
			}

			return creds, nil
		}
	}
}

// Login performs the complete OAuth device flow login.
func (m *Manager) Login(ctx context.Context) (*oauth2.Credential, error) {
	deviceAuth, err := m.StartDeviceFlow(ctx)
	if err != nil {
		return nil, err
	}
	return m.CompleteDeviceFlow(ctx, deviceAuth)
}

// Logout removes stored credentials.
func (m *Manager) Logout() error {
	return m.store.Delete()
}

// Status returns the current authentication status.
func (m *Manager) Status() *AuthStatus {
	creds, err := m.store.Load()
	if err != nil || creds == nil {
		return &AuthStatus{
			LoggedIn: false,
			Error:    err,
		}
	}

	status := &AuthStatus{
		LoggedIn:    true,
		Credentials: creds,
	}
	if creds.IsExpired() {
		status.NeedsRefresh = true
	}
	return status
}

// GetToken returns the current access token, refreshing if necessary.
func (m *Manager) GetToken(ctx context.Context) (string, error) {
	creds, err := m.store.Load()
	if err != nil || creds == nil {
		return "", fmt.Errorf("not logged in")
	}

	if creds.IsExpired() {
		if creds.RefreshToken == "" {
			return "", fmt.Errorf("token expired and no refresh token available")
		}
		refreshed, err := m.Refresh(ctx, creds)
		if err != nil {
			return "", fmt.Errorf("failed to refresh token: %w", err)
		}
		creds = refreshed
	}

	return creds.AccessToken, nil
}

// Refresh exchanges the refresh token for new credentials and saves them.
func (m *Manager) Refresh(ctx context.Context, creds *oauth2.Credential) (*oauth2.Credential, error) {
	if creds.RefreshToken == "" {
		return nil, fmt.Errorf("no refresh token available")
	}

	client := oauth2.NewClient(creds, oauth2.ClientConfig{
		ClientID:       m.config.ClientID,
		ClientSecret:   m.config.ClientSecret,
		ScopeDelimiter: m.config.ScopeDelimiter,
	})

	refreshed, err := client.Refresh(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}

	if err := m.store.Save(refreshed); err != nil {
		return nil, fmt.Errorf("failed to save refreshed credentials: %w", err)
	}
	return refreshed, nil
}

// saveUserInfo extracts user claims from the access token and records
// them in the CLI config for status display.
func (m *Manager) saveUserInfo(creds *oauth2.Credential) error {
	claims, err := ExtractClaims(creds.AccessToken)
	if err != nil {
		return fmt.Errorf("failed to extract user info: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	return cfg.SetCurrentUser(&config.UserInfo{
		Username:  claims.DisplayName(),
		Email:     claims.Email,
		UserID:    claims.Subject,
		UpdatedAt: time.Now().Format(time.RFC3339),
	})
}
