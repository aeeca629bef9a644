package oauth2

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// deviceFlowServer is a minimal authorization server for session tests.
// The poll endpoint answers authorization_pending until approve is called.
type deviceFlowServer struct {
	*httptest.Server
	approved    atomic.Bool
	deviceForms []map[string]string
	tokenForms  []map[string]string
	authHeaders []string
}

func newDeviceFlowServer(t *testing.T) *deviceFlowServer {
	t.Helper()
	s := &deviceFlowServer{}

	mux := http.NewServeMux()
	mux.HandleFunc("/device", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		s.deviceForms = append(s.deviceForms, flattenForm(r))
		s.authHeaders = append(s.authHeaders, r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"device_code":      "D",
			"user_code":        "U",
			"verification_uri": "http://x/verify",
			"expires_in":       1800,
			"interval":         5,
		})
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		s.tokenForms = append(s.tokenForms, flattenForm(r))

		w.Header().Set("Content-Type", "application/json")
		if !s.approved.Load() {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]any{"error": "authorization_pending"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "T",
			"token_type":   "bearer",
			"expires_in":   3600,
		})
	})

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func flattenForm(r *http.Request) map[string]string {
	form := make(map[string]string)
	for k := range r.PostForm {
		form[k] = r.PostForm.Get(k)
	}
	return form
}

func (s *deviceFlowServer) sessionConfig() SessionConfig {
	return SessionConfig{
		ClientID:       "cid",
		DeviceEndpoint: s.URL + "/device",
		TokenEndpoint:  s.URL + "/token",
	}
}

func TestDeviceSessionFullFlow(t *testing.T) {
	server := newDeviceFlowServer(t)
	cfg := server.sessionConfig()
	cfg.UseBasicAuth = true // no secret configured, so the identifier still goes in the body

	session, err := NewDeviceSession(cfg)
	require.NoError(t, err)
	defer func() { _ = session.Close() }()

	assert.Equal(t, PhaseInitial, session.Phase())

	ctx := context.Background()
	auth, err := session.RequestDeviceCode(ctx, []string{"read", "write"}, false)
	require.NoError(t, err)

	assert.Equal(t, "D", auth.DeviceCode)
	assert.Equal(t, "U", auth.UserCode)
	assert.Equal(t, "http://x/verify", auth.VerificationURI)
	assert.Equal(t, 1800, auth.ExpiresIn)
	assert.Equal(t, 5, auth.Interval)
	assert.Equal(t, PhaseAwaitingAuthorization, session.Phase())

	require.Len(t, server.deviceForms, 1)
	assert.Equal(t, "cid", server.deviceForms[0]["client_id"])
	assert.Equal(t, "read write", server.deviceForms[0]["scope"])
	assert.Empty(t, server.authHeaders[0])

	// User has not approved yet: poll fails with a protocol error and the
	// session stays pollable.
	_, err = session.PollForToken(ctx, false)
	var protoErr *ProtocolError
	require.ErrorAs(t, err, &protoErr)
	assert.True(t, protoErr.IsAuthorizationPending())
	assert.Equal(t, PhaseAwaitingAuthorization, session.Phase())

	server.approved.Store(true)

	client, err := session.PollForToken(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, PhaseCompleted, session.Phase())

	cred := client.Credential()
	assert.Equal(t, "T", cred.AccessToken)
	assert.Equal(t, "bearer", cred.TokenType)
	assert.Equal(t, []string{"read", "write"}, cred.Scopes)
	assert.Equal(t, server.URL+"/token", cred.TokenEndpoint)

	require.Len(t, server.tokenForms, 2)
	assert.Equal(t, "D", server.tokenForms[0]["device_code"])
	assert.Equal(t, DeviceCodeGrantType, server.tokenForms[0]["grant_type"])
	assert.Equal(t, "cid", server.tokenForms[0]["client_id"])
}

func TestDeviceSessionInvalidStateTransitions(t *testing.T) {
	server := newDeviceFlowServer(t)
	server.approved.Store(true)

	session, err := NewDeviceSession(server.sessionConfig())
	require.NoError(t, err)
	defer func() { _ = session.Close() }()

	ctx := context.Background()

	// Polling before phase one has run.
	_, err = session.PollForToken(ctx, false)
	var stateErr *InvalidStateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, PhaseInitial, stateErr.Phase)

	_, err = session.RequestDeviceCode(ctx, nil, false)
	require.NoError(t, err)

	// Double-requesting the device code is rejected, not ignored.
	_, err = session.RequestDeviceCode(ctx, nil, false)
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, PhaseAwaitingAuthorization, stateErr.Phase)

	_, err = session.PollForToken(ctx, false)
	require.NoError(t, err)

	// The session is single-use: nothing more is permitted.
	_, err = session.PollForToken(ctx, false)
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, PhaseCompleted, stateErr.Phase)

	_, err = session.RequestDeviceCode(ctx, nil, false)
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, PhaseCompleted, stateErr.Phase)
}

func TestDeviceSessionBasicAuth(t *testing.T) {
	server := newDeviceFlowServer(t)

	cfg := server.sessionConfig()
	cfg.ClientSecret = "shhh"
	cfg.UseBasicAuth = true

	session, err := NewDeviceSession(cfg)
	require.NoError(t, err)
	defer func() { _ = session.Close() }()

	_, err = session.RequestDeviceCode(context.Background(), nil, true)
	require.NoError(t, err)

	// Credentials went in the Authorization header, not the body.
	require.Len(t, server.deviceForms, 1)
	assert.NotContains(t, server.deviceForms[0], "client_id")
	assert.NotContains(t, server.deviceForms[0], "client_secret")
	assert.Contains(t, server.authHeaders[0], "Basic ")
}

func TestDeviceSessionSecretInBody(t *testing.T) {
	server := newDeviceFlowServer(t)

	cfg := server.sessionConfig()
	cfg.ClientSecret = "shhh"
	cfg.UseBasicAuth = false

	session, err := NewDeviceSession(cfg)
	require.NoError(t, err)
	defer func() { _ = session.Close() }()

	_, err = session.RequestDeviceCode(context.Background(), nil, true)
	require.NoError(t, err)

	require.Len(t, server.deviceForms, 1)
	assert.Equal(t, "cid", server.deviceForms[0]["client_id"])
	assert.Equal(t, "shhh", server.deviceForms[0]["client_secret"])
	assert.Empty(t, server.authHeaders[0])
}

func TestDeviceSessionRequestFailureStaysInitial(t *testing.T) {
	var failing atomic.Bool
	failing.Store(true)

	mux := http.NewServeMux()
	mux.HandleFunc("/device", func(w http.ResponseWriter, r *http.Request) {
		if failing.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"device_code":      "D",
			"user_code":        "U",
			"verification_uri": "http://x/verify",
			"expires_in":       600,
		})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	session, err := NewDeviceSession(SessionConfig{
		ClientID:       "cid",
		DeviceEndpoint: server.URL + "/device",
		TokenEndpoint:  server.URL + "/token",
	})
	require.NoError(t, err)
	defer func() { _ = session.Close() }()

	ctx := context.Background()
	_, err = session.RequestDeviceCode(ctx, nil, false)
	var malformed *MalformedResponseError
	require.ErrorAs(t, err, &malformed)

	// No partial transition: the session is still usable from the start.
	assert.Equal(t, PhaseInitial, session.Phase())

	failing.Store(false)
	_, err = session.RequestDeviceCode(ctx, nil, false)
	require.NoError(t, err)
	assert.Equal(t, PhaseAwaitingAuthorization, session.Phase())
}

func TestDeviceSessionClosed(t *testing.T) {
	server := newDeviceFlowServer(t)

	session, err := NewDeviceSession(server.sessionConfig())
	require.NoError(t, err)

	require.NoError(t, session.Close())
	require.NoError(t, session.Close()) // idempotent

	_, err = session.RequestDeviceCode(context.Background(), nil, false)
	assert.Error(t, err)

	_, err = session.PollForToken(context.Background(), false)
	assert.Error(t, err)
}

func TestNewDeviceSessionValidation(t *testing.T) {
	_, err := NewDeviceSession(SessionConfig{DeviceEndpoint: "http://x", TokenEndpoint: "http://y"})
	assert.Error(t, err, "client ID is required")

	_, err = NewDeviceSession(SessionConfig{ClientID: "cid"})
	assert.Error(t, err, "endpoints are required")
}

func TestDeviceSessionScopeDelimiter(t *testing.T) {
	server := newDeviceFlowServer(t)

	cfg := server.sessionConfig()
	cfg.ScopeDelimiter = ","

	session, err := NewDeviceSession(cfg)
	require.NoError(t, err)
	defer func() { _ = session.Close() }()

	_, err = session.RequestDeviceCode(context.Background(), []string{"a", "b"}, false)
	require.NoError(t, err)

	require.Len(t, server.deviceForms, 1)
	assert.Equal(t, "a,b", server.deviceForms[0]["scope"])
}
