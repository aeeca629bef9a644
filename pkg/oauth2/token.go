package oauth2

import (
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ParseOptions configures validation of an authorization server response.
type ParseOptions struct {
	// Endpoint is the URL the request was sent to; it is embedded in every
	// error so failures are diagnosable.
	Endpoint string
	// RequestedScopes are the scopes the caller asked for. They are echoed
	// into the Credential when the server omits the scope field.
	RequestedScopes []string
	// ScopeDelimiter splits a returned scope field; defaults to a space.
	ScopeDelimiter string
	// RequestTime is when the request was started; expiry is computed
	// relative to it. Zero means time.Now at parse time.
	RequestTime time.Time
	// Extract overrides the default response body parsing.
	Extract ExtractorFunc
}

func (o *ParseOptions) extractor() ExtractorFunc {
	if o.Extract != nil {
		return o.Extract
	}
	return ExtractParams
}

func (o *ParseOptions) delimiter() string {
	if o.ScopeDelimiter == "" {
		return " "
	}
	return o.ScopeDelimiter
}

func (o *ParseOptions) requestTime() time.Time {
	if o.RequestTime.IsZero() {
		return time.Now()
	}
	return o.RequestTime
}

// Content types accepted on the success path. The error path is narrower:
// RFC 6749 error bodies are never served as text/javascript.
var (
	successContentTypes = map[string]bool{
		"application/json":                  true,
		"text/javascript":                   true,
		"application/x-www-form-urlencoded": true,
		"text/plain":                        true,
	}
	errorContentTypes = map[string]bool{
		"application/json":                  true,
		"application/x-www-form-urlencoded": true,
		"text/plain":                        true,
	}
)

// ParseTokenResponse validates a token endpoint response and constructs a
// Credential from it. Non-200 statuses are routed through the shared error
// path: a well-formed 400/401 error body yields a *ProtocolError, anything
// else a *MalformedResponseError.
func ParseTokenResponse(status int, header http.Header, body []byte, opts ParseOptions) (*Credential, error) {
	if status != http.StatusOK {
		return nil, parseErrorResponse(status, header, body, &opts)
	}

	params, err := extractResponseParams(header, body, &opts, successContentTypes)
	if err != nil {
		return nil, err
	}

	accessToken, err := requireStringField(params, "access_token", body, &opts)
	if err != nil {
		return nil, err
	}
	if accessToken == "" {
		return nil, malformedErr(opts.Endpoint, body, "empty field %q", "access_token")
	}
	tokenType, err := requireStringField(params, "token_type", body, &opts)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(tokenType, "bearer") {
		return nil, malformedErr(opts.Endpoint, body, "unsupported token type %q", tokenType)
	}

	expiresIn, hasExpiry, err := optionalIntField(params, "expires_in", body, &opts)
	if err != nil {
		return nil, err
	}
	refreshToken, _, err := optionalStringField(params, "refresh_token", body, &opts)
	if err != nil {
		return nil, err
	}
	scope, hasScope, err := optionalStringField(params, "scope", body, &opts)
	if err != nil {
		return nil, err
	}

	scopes := opts.RequestedScopes
	if hasScope {
		scopes = strings.Split(scope, opts.delimiter())
	}

	var expiresAt *time.Time
	if hasExpiry {
		t := opts.requestTime().Add(time.Duration(expiresIn)*time.Second - ExpiryGracePeriod)
		expiresAt = &t
	}

	return &Credential{
		AccessToken:   accessToken,
		TokenType:     tokenType,
		RefreshToken:  refreshToken,
		Scopes:        scopes,
		ExpiresAt:     expiresAt,
		TokenEndpoint: opts.Endpoint,
	}, nil
}

// parseErrorResponse handles every non-200 response, shared by the token
// and device code validators. Statuses other than 400/401 mean an off-spec
// server and are malformed, not protocol errors.
func parseErrorResponse(status int, header http.Header, body []byte, opts *ParseOptions) error {
	if status != http.StatusBadRequest && status != http.StatusUnauthorized {
		return malformedErr(opts.Endpoint, body, "unexpected status %d", status)
	}

	params, err := extractResponseParams(header, body, opts, errorContentTypes)
	if err != nil {
		return err
	}

	code, err := requireStringField(params, "error", body, opts)
	if err != nil {
		return err
	}
	description, _, err := optionalStringField(params, "error_description", body, opts)
	if err != nil {
		return err
	}
	// error_uri is descriptive only, so it is kept verbatim rather than
	// rejected when it does not parse as a URI.
	uri, _, err := optionalStringField(params, "error_uri", body, opts)
	if err != nil {
		return err
	}

	return &ProtocolError{
		Code:        code,
		Description: description,
		URI:         uri,
		Endpoint:    opts.Endpoint,
	}
}

// extractResponseParams checks the content type against the allowed set
// for the current path and runs the extractor over the body.
func extractResponseParams(header http.Header, body []byte, opts *ParseOptions, allowed map[string]bool) (map[string]any, error) {
	raw := header.Get("Content-Type")
	if raw == "" {
		return nil, malformedErr(opts.Endpoint, body, "missing Content-Type header")
	}
	mediaType, _, err := mime.ParseMediaType(raw)
	if err != nil {
		return nil, malformedErr(opts.Endpoint, body, "unparsable Content-Type %q", raw)
	}
	if !allowed[mediaType] {
		return nil, malformedErr(opts.Endpoint, body, "unexpected Content-Type %q", mediaType)
	}

	params, err := opts.extractor()(mediaType, string(body))
	if err != nil {
		return nil, malformedErr(opts.Endpoint, body, "%v", err)
	}
	return params, nil
}

func requireStringField(params map[string]any, name string, body []byte, opts *ParseOptions) (string, error) {
	value, ok, err := optionalStringField(params, name, body, opts)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", malformedErr(opts.Endpoint, body, "missing required field %q", name)
	}
	return value, nil
}

func optionalStringField(params map[string]any, name string, body []byte, opts *ParseOptions) (string, bool, error) {
	raw, ok := params[name]
	if !ok {
		return "", false, nil
	}
	value, ok := raw.(string)
	if !ok {
		return "", false, malformedErr(opts.Endpoint, body, "field %q must be a string, got %v", name, raw)
	}
	return value, true, nil
}

func requireIntField(params map[string]any, name string, body []byte, opts *ParseOptions) (int, error) {
	value, ok, err := optionalIntField(params, name, body, opts)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, malformedErr(opts.Endpoint, body, "missing required field %q", name)
	}
	return value, nil
}

// optionalIntField reads an integer parameter. JSON numbers arrive as
// float64 and must be integral; form-encoded bodies carry every value as a
// string, so numeric strings are parsed here instead of failing.
func optionalIntField(params map[string]any, name string, body []byte, opts *ParseOptions) (int, bool, error) {
	raw, ok := params[name]
	if !ok {
		return 0, false, nil
	}
	switch v := raw.(type) {
	case float64:
		if v != float64(int(v)) {
			return 0, false, malformedErr(opts.Endpoint, body, "field %q must be an integer, got %v", name, raw)
		}
		return int(v), true, nil
	case int:
		return v, true, nil
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, false, malformedErr(opts.Endpoint, body, "field %q must be an integer, got %q", name, v)
		}
		return n, true, nil
	default:
		return 0, false, malformedErr(opts.Endpoint, body, "field %q must be an integer, got %v", name, raw)
	}
}
