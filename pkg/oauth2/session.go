package oauth2

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// DeviceCodeGrantType is the grant_type value for the device flow token
// exchange, per RFC 8628 section 3.4.
const DeviceCodeGrantType = "urn:ietf:params:oauth:grant-type:device_code"

var log = logrus.WithField("module", "oauth2")

// Phase is the lifecycle state of a DeviceSession.
type Phase int

const (
	// PhaseInitial is a freshly created session with no device code yet.
	PhaseInitial Phase = iota
	// PhaseAwaitingAuthorization means a device code has been obtained and
	// the session is waiting for the user to approve it.
	PhaseAwaitingAuthorization
	// PhaseCompleted means one poll succeeded and the session is spent.
	PhaseCompleted
)

// String implements fmt.Stringer.
func (p Phase) String() string {
	switch p {
	case PhaseInitial:
		return "initial"
	case PhaseAwaitingAuthorization:
		return "awaiting-authorization"
	case PhaseCompleted:
		return "completed"
	default:
		return fmt.Sprintf("unknown(%d)", int(p))
	}
}

// SessionConfig configures a DeviceSession.
type SessionConfig struct {
	// ClientID identifies this client to the authorization server.
	ClientID string
	// ClientSecret is optional; whether it is sent on a given call is
	// controlled per call.
	ClientSecret string
	// DeviceEndpoint is the device authorization endpoint.
	DeviceEndpoint string
	// TokenEndpoint is the token endpoint polled in phase two.
	TokenEndpoint string
	// ScopeDelimiter joins requested scopes and splits granted ones;
	// defaults to a space.
	ScopeDelimiter string
	// UseBasicAuth sends the client credentials in an HTTP Basic header
	// instead of the request body when a secret is supplied.
	UseBasicAuth bool
	// HTTPClient is the transport to use. Nil means the session owns its
	// own client and Close releases it.
	HTTPClient HTTPClient
	// Extract overrides default response body parsing.
	Extract ExtractorFunc
	// Now overrides the clock, for tests. Nil means time.Now.
	Now func() time.Time
}

// DeviceSession drives one device authorization grant: request a device
// code, then poll the token endpoint until the user approves. A session is
// single-use; after a successful poll it cannot be reused. The phase
// check-and-set is mutex-guarded, so a session is safe to share between
// goroutines, but each call still suspends for a full HTTP round trip.
type DeviceSession struct {
	mu sync.Mutex

	clientID       string
	clientSecret   string
	deviceEndpoint string
	tokenEndpoint  string
	scopeDelimiter string
	useBasicAuth   bool

	httpClient HTTPClient
	ownsClient bool
	extract    ExtractorFunc
	now        func() time.Time
	log        *logrus.Entry

	phase      Phase
	deviceCode string
	scopes     []string
	closed     bool
}

// NewDeviceSession creates a session in the initial phase.
func NewDeviceSession(cfg SessionConfig) (*DeviceSession, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("client ID is required")
	}
	if cfg.DeviceEndpoint == "" || cfg.TokenEndpoint == "" {
		return nil, fmt.Errorf("device and token endpoints are required")
	}

	delimiter := cfg.ScopeDelimiter
	if delimiter == "" {
		delimiter = " "
	}

	httpClient := cfg.HTTPClient
	ownsClient := false
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
		ownsClient = true
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &DeviceSession{
		clientID:       cfg.ClientID,
		clientSecret:   cfg.ClientSecret,
		deviceEndpoint: cfg.DeviceEndpoint,
		tokenEndpoint:  cfg.TokenEndpoint,
		scopeDelimiter: delimiter,
		useBasicAuth:   cfg.UseBasicAuth,
		httpClient:     httpClient,
		ownsClient:     ownsClient,
		extract:        cfg.Extract,
		now:            now,
		log:            log.WithField("session", uuid.NewString()),
		phase:          PhaseInitial,
	}, nil
}

// Phase returns the current lifecycle phase.
func (s *DeviceSession) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// RequestDeviceCode performs phase one of the device flow. It is permitted
// only in the initial phase; a repeated call is rejected rather than
// silently ignored. On any failure the session stays in the initial phase
// and the caller may retry.
func (s *DeviceSession) RequestDeviceCode(ctx context.Context, scopes []string, useClientSecret bool) (*DeviceAuthorization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fmt.Errorf("session is closed")
	}
	if s.phase != PhaseInitial {
		return nil, &InvalidStateError{Op: "request device code", Phase: s.phase}
	}

	form := url.Values{}
	basicUser, basicPass := s.applyClientCredentials(form, useClientSecret)
	if len(scopes) > 0 {
		form.Set("scope", strings.Join(scopes, s.scopeDelimiter))
	}

	start := s.now()
	status, header, body, err := postForm(ctx, s.httpClient, s.deviceEndpoint, form, basicUser, basicPass)
	if err != nil {
		return nil, err
	}

	auth, err := ParseDeviceResponse(status, header, body, ParseOptions{
		Endpoint:    s.deviceEndpoint,
		RequestTime: start,
		Extract:     s.extract,
	})
	if err != nil {
		s.log.WithError(err).Debug("device code request failed")
		return nil, err
	}

	s.deviceCode = auth.DeviceCode
	s.scopes = scopes
	s.phase = PhaseAwaitingAuthorization
	s.log.WithField("user_code", auth.UserCode).Debug("device code obtained")
	return auth, nil
}

// PollForToken performs one attempt at phase two. It is permitted only
// while awaiting authorization. The expected transient failures
// (authorization_pending, slow_down) surface as *ProtocolError and leave
// the phase unchanged; the retry loop with backoff is the caller's job.
// On success the session completes and the returned Client is bound to
// the resulting Credential.
func (s *DeviceSession) PollForToken(ctx context.Context, useClientSecret bool) (*Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fmt.Errorf("session is closed")
	}
	if s.phase != PhaseAwaitingAuthorization {
		return nil, &InvalidStateError{Op: "poll for token", Phase: s.phase}
	}

	form := url.Values{}
	basicUser, basicPass := s.applyClientCredentials(form, useClientSecret)
	form.Set("device_code", s.deviceCode)
	form.Set("grant_type", DeviceCodeGrantType)

	start := s.now()
	status, header, body, err := postForm(ctx, s.httpClient, s.tokenEndpoint, form, basicUser, basicPass)
	if err != nil {
		return nil, err
	}

	cred, err := ParseTokenResponse(status, header, body, ParseOptions{
		Endpoint:        s.tokenEndpoint,
		RequestedScopes: s.scopes,
		ScopeDelimiter:  s.scopeDelimiter,
		RequestTime:     start,
		Extract:         s.extract,
	})
	if err != nil {
		s.log.WithError(err).Debug("token poll did not complete")
		return nil, err
	}

	s.phase = PhaseCompleted
	s.deviceCode = ""
	s.log.Debug("device flow completed")

	return NewClient(cred, ClientConfig{
		HTTPClient:     s.httpClient,
		ClientID:       s.clientID,
		ClientSecret:   s.clientSecret,
		ScopeDelimiter: s.scopeDelimiter,
		Extract:        s.extract,
		Now:            s.now,
	}), nil
}

// Close releases the transport when the session owns it. The transport is
// shared with any Client produced by PollForToken, so closing invalidates
// both. Close is not a phase transition, but the session must not be used
// for further network calls afterwards.
func (s *DeviceSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.ownsClient {
		if hc, ok := s.httpClient.(*http.Client); ok {
			hc.CloseIdleConnections()
		}
	}
	return nil
}

// applyClientCredentials places the client identifier and secret per the
// configured mode. With basic auth enabled and a secret in play, both go
// in the Authorization header; otherwise the identifier always goes in
// the body (the server needs to identify the client regardless of
// authentication mode) and the secret joins it only when requested.
func (s *DeviceSession) applyClientCredentials(form url.Values, useClientSecret bool) (basicUser, basicPass string) {
	if s.useBasicAuth && s.clientSecret != "" && useClientSecret {
		return s.clientID, s.clientSecret
	}
	form.Set("client_id", s.clientID)
	if useClientSecret && s.clientSecret != "" {
		form.Set("client_secret", s.clientSecret)
	}
	return "", ""
}
