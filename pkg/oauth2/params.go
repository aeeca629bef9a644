package oauth2

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// ExtractorFunc turns a response body into a parameter map. The default is
// ExtractParams; callers may supply their own to interoperate with servers
// that return non-conformant bodies (GitHub's token endpoint is the
// classic example). The contentType argument is the bare MIME type with
// any parameters already stripped.
type ExtractorFunc func(contentType, body string) (map[string]any, error)

// ExtractParams is the default ExtractorFunc. JSON bodies decode into a
// string-keyed map, so every value keeps its JSON type; form-encoded and
// text/plain bodies produce string values only.
func ExtractParams(contentType, body string) (map[string]any, error) {
	switch contentType {
	case "text/plain", "application/x-www-form-urlencoded":
		return extractFormParams(body), nil
	case "application/json", "text/javascript":
		var params map[string]any
		if err := json.Unmarshal([]byte(body), &params); err != nil {
			return nil, fmt.Errorf("invalid JSON body: %w", err)
		}
		// A literal null unmarshals into a nil map without error.
		if params == nil {
			return nil, fmt.Errorf("JSON body is not an object")
		}
		return params, nil
	default:
		return nil, fmt.Errorf("unsupported content type %q", contentType)
	}
}

// extractFormParams splits a form-encoded body on "&". Each unit splits at
// its last "=", which must not be the first or last character; units
// without a usable "=" are dropped rather than failing the whole body.
// Only the value half is percent-decoded.
func extractFormParams(body string) map[string]any {
	params := make(map[string]any)
	for _, unit := range strings.Split(body, "&") {
		eq := strings.LastIndex(unit, "=")
		if eq <= 0 || eq == len(unit)-1 {
			continue
		}
		value, err := url.QueryUnescape(unit[eq+1:])
		if err != nil {
			continue
		}
		params[unit[:eq]] = value
	}
	return params
}
