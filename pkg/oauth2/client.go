package oauth2

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// RefreshGrantType is the grant_type value for refreshing a credential.
const RefreshGrantType = "refresh_token"

// ClientConfig configures an authenticated Client.
type ClientConfig struct {
	// HTTPClient is the transport for both resource requests and token
	// refreshes. Nil means a default client with a 30 second timeout.
	HTTPClient HTTPClient
	// ClientID and ClientSecret are sent along with refresh requests.
	ClientID     string
	ClientSecret string
	// ScopeDelimiter splits the scope field of refresh responses;
	// defaults to a space.
	ScopeDelimiter string
	// Extract overrides default response body parsing on refresh.
	Extract ExtractorFunc
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Client wraps a transport so outbound requests carry the credential's
// bearer token. An expired credential is refreshed before the request, and
// a 401 triggers one refresh-and-retry when the request body is
// replayable. The credential is updated in place across refreshes, so a
// Client stays valid for the life of the refresh token.
type Client struct {
	mu   sync.Mutex
	cred *Credential

	httpClient     HTTPClient
	clientID       string
	clientSecret   string
	scopeDelimiter string
	extract        ExtractorFunc
	now            func() time.Time
}

// NewClient creates an authenticated client bound to cred.
func NewClient(cred *Credential, cfg ClientConfig) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	delimiter := cfg.ScopeDelimiter
	if delimiter == "" {
		delimiter = " "
	}
	return &Client{
		cred:           cred,
		httpClient:     httpClient,
		clientID:       cfg.ClientID,
		clientSecret:   cfg.ClientSecret,
		scopeDelimiter: delimiter,
		extract:        cfg.Extract,
		now:            now,
	}
}

// Credential returns the credential the client is currently bound to.
func (c *Client) Credential() *Credential {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cred
}

// Do sends an authenticated request.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	cred := c.Credential()
	if cred.IsExpired() && cred.RefreshToken != "" {
		refreshed, err := c.Refresh(req.Context())
		if err != nil {
			return nil, fmt.Errorf("failed to refresh expired token: %w", err)
		}
		cred = refreshed
	}

	req.Header.Set("Authorization", cred.AuthorizationHeader())
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusUnauthorized || cred.RefreshToken == "" {
		return resp, nil
	}
	retry, ok := replayableRequest(req)
	if !ok {
		return resp, nil
	}

	// The server rejected a token we thought was valid; refresh once and
	// replay the request.
	resp.Body.Close()
	refreshed, err := c.Refresh(req.Context())
	if err != nil {
		return nil, fmt.Errorf("request unauthorized and refresh failed: %w", err)
	}
	retry.Header.Set("Authorization", refreshed.AuthorizationHeader())
	return c.httpClient.Do(retry)
}

// Refresh exchanges the refresh token for a new credential and rebinds the
// client to it. The refresh token is kept when the server does not rotate
// it.
func (c *Client) Refresh(ctx context.Context) (*Credential, error) {
	cred := c.Credential()
	if cred.RefreshToken == "" {
		return nil, fmt.Errorf("no refresh token available")
	}
	if cred.TokenEndpoint == "" {
		return nil, fmt.Errorf("credential has no token endpoint")
	}

	form := url.Values{}
	form.Set("grant_type", RefreshGrantType)
	form.Set("refresh_token", cred.RefreshToken)
	if c.clientID != "" {
		form.Set("client_id", c.clientID)
	}
	if c.clientSecret != "" {
		form.Set("client_secret", c.clientSecret)
	}

	start := c.now()
	status, header, body, err := postForm(ctx, c.httpClient, cred.TokenEndpoint, form, "", "")
	if err != nil {
		return nil, err
	}

	refreshed, err := ParseTokenResponse(status, header, body, ParseOptions{
		Endpoint:        cred.TokenEndpoint,
		RequestedScopes: cred.Scopes,
		ScopeDelimiter:  c.scopeDelimiter,
		RequestTime:     start,
		Extract:         c.extract,
	})
	if err != nil {
		return nil, err
	}
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = cred.RefreshToken
	}

	c.mu.Lock()
	c.cred = refreshed
	c.mu.Unlock()
	return refreshed, nil
}

// replayableRequest clones a request for a retry. Requests with a
// non-rewindable body cannot be replayed.
func replayableRequest(req *http.Request) (*http.Request, bool) {
	if req.Body == nil {
		return req.Clone(req.Context()), true
	}
	if req.GetBody == nil {
		return nil, false
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, false
	}
	retry := req.Clone(req.Context())
	retry.Body = body
	return retry, true
}
