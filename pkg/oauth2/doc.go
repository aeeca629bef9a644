// Package oauth2 implements the client side of the OAuth 2.0 token
// exchange: it validates authorization server responses into Credentials
// and drives the Device Authorization Grant (RFC 8628) handshake.
//
// The package is organized around two layers:
//
//   - Response validation. ParseTokenResponse and ParseDeviceResponse turn
//     a raw HTTP response from the authorization server into either a
//     validated value or a typed protocol error. Both accept an optional
//     ExtractorFunc so callers can interoperate with servers that return
//     non-conformant bodies.
//
//   - The device flow. DeviceSession is a single-use state machine for the
//     two-phase device handshake: RequestDeviceCode obtains a device/user
//     code pair, PollForToken exchanges the device code for a Credential
//     and returns a Client that authenticates outbound requests.
//
// Failures are reported as one of three error kinds: ProtocolError for a
// spec-shaped error response from the server, MalformedResponseError for a
// response that violates the expected shape, and InvalidStateError for a
// session call made in the wrong phase. Callers discriminate with
// errors.As; nothing in this package retries on its own.
package oauth2
