package oauth2

import (
	"net/http"
	"time"
)

// DeviceAuthorization is the result of the first phase of the device flow:
// the codes the user needs plus the window the client has to poll in.
type DeviceAuthorization struct {
	// DeviceCode is the opaque code the client presents when polling. It
	// is owned by the session that obtained it.
	DeviceCode string
	// UserCode is the short code shown to the end user.
	UserCode string
	// VerificationURI is where the user goes to enter the code.
	VerificationURI string
	// VerificationURIComplete is an optional pre-filled variant.
	VerificationURIComplete string
	// ExpiresIn is the lifetime of the code pair in seconds.
	ExpiresIn int
	// ExpiresAt is the request time plus ExpiresIn. Unlike access token
	// expiry, no grace period is subtracted from the code window.
	ExpiresAt time.Time
	// Interval is the server-suggested minimum seconds between polls,
	// zero when the server omitted it.
	Interval int
}

// ParseDeviceResponse validates a device authorization endpoint response.
// The error path is shared with ParseTokenResponse; the success path
// requires the device flow's own field set.
func ParseDeviceResponse(status int, header http.Header, body []byte, opts ParseOptions) (*DeviceAuthorization, error) {
	if status != http.StatusOK {
		return nil, parseErrorResponse(status, header, body, &opts)
	}

	params, err := extractResponseParams(header, body, &opts, successContentTypes)
	if err != nil {
		return nil, err
	}

	deviceCode, err := requireStringField(params, "device_code", body, &opts)
	if err != nil {
		return nil, err
	}
	userCode, err := requireStringField(params, "user_code", body, &opts)
	if err != nil {
		return nil, err
	}

	// Some servers historically used verification_url; it wins over
	// verification_uri when both are present, matching the order clients
	// have relied on. Compatibility shim, not a preference.
	verificationURI, ok, err := optionalStringField(params, "verification_url", body, &opts)
	if err != nil {
		return nil, err
	}
	if !ok {
		verificationURI, err = requireStringField(params, "verification_uri", body, &opts)
		if err != nil {
			return nil, err
		}
	}

	expiresIn, err := requireIntField(params, "expires_in", body, &opts)
	if err != nil {
		return nil, err
	}
	verificationURIComplete, _, err := optionalStringField(params, "verification_uri_complete", body, &opts)
	if err != nil {
		return nil, err
	}
	interval, _, err := optionalIntField(params, "interval", body, &opts)
	if err != nil {
		return nil, err
	}

	return &DeviceAuthorization{
		DeviceCode:              deviceCode,
		UserCode:                userCode,
		VerificationURI:         verificationURI,
		VerificationURIComplete: verificationURIComplete,
		ExpiresIn:               expiresIn,
		ExpiresAt:               opts.requestTime().Add(time.Duration(expiresIn) * time.Second),
		Interval:                interval,
	}, nil
}
