package oauth2

import (
	"fmt"
	"time"
)

// ExpiryGracePeriod is subtracted from the server-declared token lifetime
// so a credential is treated as expired slightly before the server does.
const ExpiryGracePeriod = 10 * time.Second

// Credential is a granted access token together with everything needed to
// use and later refresh it. Values are only ever constructed from a
// validated server response, so AccessToken and TokenType are never empty.
type Credential struct {
	// AccessToken is the opaque bearer token.
	AccessToken string `json:"access_token"`
	// TokenType is the server-declared token type; only "bearer" (in any
	// case) is supported.
	TokenType string `json:"token_type"`
	// RefreshToken is present only if the server returned one.
	RefreshToken string `json:"refresh_token,omitempty"`
	// Scopes are the scopes granted by the server, or the originally
	// requested scopes when the server omitted the scope field.
	Scopes []string `json:"scopes,omitempty"`
	// ExpiresAt is the wall-clock expiry with ExpiryGracePeriod already
	// subtracted; nil when the server supplied no expires_in.
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	// TokenEndpoint is the endpoint this credential was obtained from,
	// carried so a refresh can reuse it.
	TokenEndpoint string `json:"token_endpoint,omitempty"`
}

// IsExpired checks if the access token has expired.
func (c *Credential) IsExpired() bool {
	if c.ExpiresAt == nil {
		return false
	}
	return time.Now().After(*c.ExpiresAt)
}

// TimeUntilExpiry returns the duration until token expiry, or zero when
// the token does not expire.
func (c *Credential) TimeUntilExpiry() time.Duration {
	if c.ExpiresAt == nil {
		return 0
	}
	return time.Until(*c.ExpiresAt)
}

// AuthorizationHeader returns the value to send in an Authorization
// header when presenting this credential.
func (c *Credential) AuthorizationHeader() string {
	return fmt.Sprintf("Bearer %s", c.AccessToken)
}
