package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastertools/oauthkit/internal/config"
)

func TestAuthCommandStructure(t *testing.T) {
	cmd := newAuthCmd()
	assert.Equal(t, "auth", cmd.Use)

	subcommands := make(map[string]bool)
	for _, sub := range cmd.Commands() {
		subcommands[sub.Name()] = true
	}
	for _, name := range []string{"login", "logout", "status"} {
		assert.True(t, subcommands[name], "missing subcommand %s", name)
	}
}

func TestAuthLoginFlags(t *testing.T) {
	cmd := newAuthLoginCmd()
	for _, name := range []string{
		"no-browser", "force", "machine", "basic-auth",
		"client-id", "client-secret", "device-endpoint", "token-endpoint", "scope",
	} {
		assert.NotNil(t, cmd.Flags().Lookup(name), "missing flag %s", name)
	}
}

func TestAuthLogoutFlags(t *testing.T) {
	cmd := newAuthLogoutCmd()
	require.NotNil(t, cmd.Flags().Lookup("yes"))
	assert.Equal(t, "y", cmd.Flags().Lookup("yes").Shorthand)
}

func TestAuthStatusFlags(t *testing.T) {
	cmd := newAuthStatusCmd()
	assert.NotNil(t, cmd.Flags().Lookup("show-token"))
}

func TestLoginConfigFromFlags(t *testing.T) {
	provider := config.ProviderInfo{
		ClientID:       "stored-id",
		DeviceEndpoint: "https://stored/device",
		TokenEndpoint:  "https://stored/token",
		Scopes:         []string{"openid"},
		ScopeDelimiter: ",",
		UseBasicAuth:   true,
	}

	t.Run("stored provider used when no flags", func(t *testing.T) {
		cfg := loginConfigFromFlags(provider, "", "", "", "", nil, false)
		assert.Equal(t, "stored-id", cfg.ClientID)
		assert.Equal(t, "https://stored/device", cfg.DeviceEndpoint)
		assert.Equal(t, "https://stored/token", cfg.TokenEndpoint)
		assert.Equal(t, []string{"openid"}, cfg.Scopes)
		assert.Equal(t, ",", cfg.ScopeDelimiter)
		assert.True(t, cfg.UseBasicAuth)
	})

	t.Run("flags override stored provider", func(t *testing.T) {
		cfg := loginConfigFromFlags(provider,
			"flag-id", "flag-secret", "https://flag/device", "https://flag/token",
			[]string{"email", "profile"}, false)
		assert.Equal(t, "flag-id", cfg.ClientID)
		assert.Equal(t, "flag-secret", cfg.ClientSecret)
		assert.Equal(t, "https://flag/device", cfg.DeviceEndpoint)
		assert.Equal(t, "https://flag/token", cfg.TokenEndpoint)
		assert.Equal(t, []string{"email", "profile"}, cfg.Scopes)
		// basic-auth flag unset keeps the stored setting
		assert.True(t, cfg.UseBasicAuth)
	})

	t.Run("basic auth flag enables header placement", func(t *testing.T) {
		cfg := loginConfigFromFlags(config.ProviderInfo{}, "id", "", "d", "t", nil, true)
		assert.True(t, cfg.UseBasicAuth)
	})

	t.Run("empty provider and no flags", func(t *testing.T) {
		cfg := loginConfigFromFlags(config.ProviderInfo{}, "", "", "", "", nil, false)
		assert.Empty(t, cfg.ClientID)
		assert.Empty(t, cfg.DeviceEndpoint)
		assert.Empty(t, cfg.TokenEndpoint)
	})
}
