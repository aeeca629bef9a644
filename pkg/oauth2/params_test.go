package oauth2

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractParamsForm(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		want        map[string]any
	}{
		{
			name:        "simple form body",
			contentType: "application/x-www-form-urlencoded",
			body:        "access_token=abc&token_type=bearer",
			want:        map[string]any{"access_token": "abc", "token_type": "bearer"},
		},
		{
			name:        "text plain body",
			contentType: "text/plain",
			body:        "error=access_denied",
			want:        map[string]any{"error": "access_denied"},
		},
		{
			name:        "percent decoded value",
			contentType: "application/x-www-form-urlencoded",
			body:        "scope=read%20write",
			want:        map[string]any{"scope": "read write"},
		},
		{
			name:        "splits at the last equals sign",
			contentType: "application/x-www-form-urlencoded",
			body:        "a=b=c",
			want:        map[string]any{"a=b": "c"},
		},
		{
			name:        "malformed units are dropped",
			contentType: "application/x-www-form-urlencoded",
			body:        "access_token=abc&noequals&=leading&trailing=",
			want:        map[string]any{"access_token": "abc"},
		},
		{
			name:        "undecodable value is dropped",
			contentType: "application/x-www-form-urlencoded",
			body:        "good=1&bad=%zz",
			want:        map[string]any{"good": "1"},
		},
		{
			name:        "empty body",
			contentType: "application/x-www-form-urlencoded",
			body:        "",
			want:        map[string]any{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractParams(tt.contentType, tt.body)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractParamsJSON(t *testing.T) {
	got, err := ExtractParams("application/json", `{"access_token":"abc","expires_in":3600}`)
	require.NoError(t, err)
	assert.Equal(t, "abc", got["access_token"])
	assert.Equal(t, float64(3600), got["expires_in"])

	got, err = ExtractParams("text/javascript", `{"error":"invalid_grant"}`)
	require.NoError(t, err)
	assert.Equal(t, "invalid_grant", got["error"])
}

func TestExtractParamsJSONErrors(t *testing.T) {
	_, err := ExtractParams("application/json", `{not json`)
	assert.Error(t, err)

	// A top-level value that is not an object fails the decode; the
	// validators convert this into a MalformedResponseError.
	_, err = ExtractParams("application/json", `[1,2,3]`)
	assert.Error(t, err)

	_, err = ExtractParams("application/json", `"just a string"`)
	assert.Error(t, err)

	// null decodes into a nil map without a decode error, so it needs its
	// own rejection to report the real cause.
	_, err = ExtractParams("application/json", `null`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not an object")
}

func TestExtractParamsUnsupportedContentType(t *testing.T) {
	_, err := ExtractParams("text/html", "<html></html>")
	assert.Error(t, err)
}
