package auth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/fastertools/oauthkit/pkg/oauth2"
)

// Environment variables for machine (client credentials) authentication,
// intended for CI/CD pipelines.
const (
	EnvClientID      = "OAUTHKIT_CLIENT_ID"
	EnvClientSecret  = "OAUTHKIT_CLIENT_SECRET"
	EnvTokenEndpoint = "OAUTHKIT_TOKEN_ENDPOINT"
)

// MachineConfig holds configuration for machine-to-machine authentication.
type MachineConfig struct {
	ClientID      string
	ClientSecret  string
	TokenEndpoint string
}

// LoadMachineConfig loads machine credentials from the environment,
// falling back to the login configuration for the endpoint.
func (m *Manager) LoadMachineConfig() (*MachineConfig, error) {
	cfg := &MachineConfig{
		ClientID:      os.Getenv(EnvClientID),
		ClientSecret:  os.Getenv(EnvClientSecret),
		TokenEndpoint: os.Getenv(EnvTokenEndpoint),
	}
	if cfg.TokenEndpoint == "" {
		cfg.TokenEndpoint = m.config.TokenEndpoint
	}

	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("no machine credentials found. Set %s and %s environment variables", EnvClientID, EnvClientSecret)
	}
	if cfg.TokenEndpoint == "" {
		return nil, fmt.Errorf("no token endpoint configured")
	}
	return cfg, nil
}

// LoginMachine performs the client credentials grant and stores the
// resulting credential. The token exchange goes through the same response
// validation as the device flow; only the request differs.
func (m *Manager) LoginMachine(ctx context.Context) (*oauth2.Credential, error) {
	cfg, err := m.LoadMachineConfig()
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", cfg.ClientID)
	form.Set("client_secret", cfg.ClientSecret)
	if len(m.config.Scopes) > 0 {
		delimiter := m.config.ScopeDelimiter
		if delimiter == "" {
			delimiter = " "
		}
		form.Set("scope", strings.Join(m.config.Scopes, delimiter))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.TokenEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	httpClient := &http.Client{Timeout: 30 * time.Second}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	creds, err := oauth2.ParseTokenResponse(resp.StatusCode, resp.Header, body, oauth2.ParseOptions{
		Endpoint:        cfg.TokenEndpoint,
		RequestedScopes: m.config.Scopes,
		ScopeDelimiter:  m.config.ScopeDelimiter,
		RequestTime:     start,
	})
	if err != nil {
		return nil, fmt.Errorf("machine login failed: %w", err)
	}

	if err := m.store.Save(creds); err != nil {
		return nil, fmt.Errorf("failed to save credentials: %w", err)
	}
	return creds, nil
}
