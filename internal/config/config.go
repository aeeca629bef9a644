// Package config manages user-level configuration for the oauthkit CLI
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
)

// Config represents the user's oauthkit CLI configuration
type Config struct {
	// Provider holds the authorization server this CLI talks to
	Provider ProviderInfo `json:"provider,omitempty"`

	// CurrentUser stores info about the logged-in user
	CurrentUser *UserInfo `json:"current_user,omitempty"`

	// Preferences stores user preferences
	Preferences Preferences `json:"preferences,omitempty"`

	// Version of the config schema
	Version string `json:"version"`
}

// ProviderInfo describes an authorization server and the client
// registration used against it
type ProviderInfo struct {
	ClientID       string   `json:"client_id,omitempty"`
	DeviceEndpoint string   `json:"device_endpoint,omitempty"`
	TokenEndpoint  string   `json:"token_endpoint,omitempty"`
	Scopes         []string `json:"scopes,omitempty"`
	ScopeDelimiter string   `json:"scope_delimiter,omitempty"`
	UseBasicAuth   bool     `json:"use_basic_auth,omitempty"`
}

// UserInfo stores information about the authenticated user
type UserInfo struct {
	Username  string `json:"username,omitempty"`
	Email     string `json:"email,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// Preferences stores user preferences
type Preferences struct {
	// ColorOutput controls whether to use colored output
	ColorOutput bool `json:"color_output"`

	// Verbose controls verbose output
	Verbose bool `json:"verbose"`
}

var (
	instance *Config
	loadErr  error
	once     sync.Once
	mu       sync.RWMutex
)

// configPath returns the path to the config file
func configPath() (string, error) {
	var configDir string

	// Check XDG_CONFIG_HOME first for testing and Linux compatibility
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		configDir = xdgConfig
	} else {
		var err error
		configDir, err = os.UserConfigDir()
		if err != nil {
			return "", errors.Wrap(err, "failed to get config directory")
		}
	}

	return filepath.Join(configDir, "oauthkit", "config.json"), nil
}

// Load loads the configuration from disk or creates a new one. A failed
// load is cached along with the instance, so every caller sees the error
// rather than a nil config.
func Load() (*Config, error) {
	once.Do(func() {
		instance, loadErr = load()
	})

	if loadErr != nil {
		return nil, loadErr
	}
	return instance, nil
}

// load reads the config from disk or creates default
func load() (*Config, error) {
	path, err := configPath()
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, errors.Wrap(err, "failed to create config directory")
	}

	data, err := os.ReadFile(path) // #nosec G304 - path is controlled via configPath()
	if err != nil {
		if os.IsNotExist(err) {
			return defaultConfig(), nil
		}
		return nil, errors.Wrap(err, "failed to read config")
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config")
	}

	return &cfg, nil
}

// defaultConfig returns a default configuration
func defaultConfig() *Config {
	return &Config{
		Version: "1.0",
		Preferences: Preferences{
			ColorOutput: true,
		},
	}
}

// Save saves the configuration to disk
func (c *Config) Save() error {
	mu.Lock()
	defer mu.Unlock()

	return c.save()
}

func (c *Config) save() error {
	path, err := configPath()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return errors.Wrap(err, "failed to create config directory")
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}

	// Write atomically by writing to temp file then renaming
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return errors.Wrap(err, "failed to write config")
	}
	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return errors.Wrap(err, "failed to save config")
	}

	return nil
}

// GetProvider returns the configured authorization server
func (c *Config) GetProvider() ProviderInfo {
	mu.RLock()
	defer mu.RUnlock()
	return c.Provider
}

// SetProvider records the authorization server configuration
func (c *Config) SetProvider(provider ProviderInfo) error {
	mu.Lock()
	c.Provider = provider
	err := c.save()
	mu.Unlock()
	return err
}

// GetCurrentUser returns info about the logged-in user, if any
func (c *Config) GetCurrentUser() *UserInfo {
	mu.RLock()
	defer mu.RUnlock()
	return c.CurrentUser
}

// SetCurrentUser records info about the logged-in user
func (c *Config) SetCurrentUser(user *UserInfo) error {
	mu.Lock()
	c.CurrentUser = user
	err := c.save()
	mu.Unlock()
	return err
}

// ClearCurrentUser removes the logged-in user info
func (c *Config) ClearCurrentUser() error {
	mu.Lock()
	c.CurrentUser = nil
	err := c.save()
	mu.Unlock()
	return err
}

// reset clears the singleton so tests can reload under a fresh
// XDG_CONFIG_HOME.
func reset() {
	mu.Lock()
	defer mu.Unlock()
	instance = nil
	loadErr = nil
	once = sync.Once{}
}
