package oauth2

import "fmt"

// Error codes the authorization server may return during the device flow,
// per RFC 8628 section 3.5 and RFC 6749 section 5.2.
const (
	AccessDeniedErrorCode         = "access_denied"
	AuthorizationPendingErrorCode = "authorization_pending"
	ExpiredTokenErrorCode         = "expired_token"
	InvalidGrantErrorCode         = "invalid_grant"
	InvalidRequestErrorCode       = "invalid_request"
	SlowDownErrorCode             = "slow_down"
)

// ProtocolError is a spec-shaped error response from the authorization
// server: a 400/401 status with a body carrying an "error" field. During
// polling this is the expected outcome for authorization_pending and
// friends, so callers must distinguish it from MalformedResponseError to
// decide whether to keep polling.
type ProtocolError struct {
	// Code is the server's "error" value.
	Code string
	// Description is the optional "error_description" value.
	Description string
	// URI is the optional "error_uri" value, kept as the raw string even
	// when it does not parse as a URI; it is descriptive only.
	URI string
	// Endpoint is the URL the failing request was sent to.
	Endpoint string
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Description)
	}
	return e.Code
}

// IsAuthorizationPending checks if the error indicates the user has not
// yet completed authorization.
func (e *ProtocolError) IsAuthorizationPending() bool {
	return e.Code == AuthorizationPendingErrorCode
}

// IsSlowDown checks if the server is asking the client to poll less often.
func (e *ProtocolError) IsSlowDown() bool {
	return e.Code == SlowDownErrorCode
}

// IsAccessDenied checks if the user declined the authorization request.
func (e *ProtocolError) IsAccessDenied() bool {
	return e.Code == AccessDeniedErrorCode
}

// IsExpiredToken checks if the device code has expired.
func (e *ProtocolError) IsExpiredToken() bool {
	return e.Code == ExpiredTokenErrorCode
}

// MalformedResponseError indicates the server's response violates the
// expected shape: a status outside {200, 400, 401}, a missing or mistyped
// required field, an unparsable or disallowed content type, or an invalid
// body. It carries the endpoint and raw body so failures are diagnosable
// from the error alone.
type MalformedResponseError struct {
	Endpoint string
	Reason   string
	Body     string
}

// Error implements the error interface.
func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed response from %s: %s", e.Endpoint, e.Reason)
}

func malformedErr(endpoint string, body []byte, format string, args ...any) *MalformedResponseError {
	return &MalformedResponseError{
		Endpoint: endpoint,
		Reason:   fmt.Sprintf(format, args...),
		Body:     string(body),
	}
}

// InvalidStateError indicates a DeviceSession call was made in a phase
// that does not permit it. It is always a programming error in the caller
// and is never retried internally.
type InvalidStateError struct {
	// Op is the operation that was attempted.
	Op string
	// Phase is the session phase at the time of the call.
	Phase Phase
}

// Error implements the error interface.
func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s: session is in phase %s", e.Op, e.Phase)
}
