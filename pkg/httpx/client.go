// Package httpx holds small client-side HTTP helpers shared by the backend
// API client: JSON encoding, bearer authorization and bounded error-body
// reads.
package httpx

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
)

// maxErrorBody bounds how much of an error response is read when extracting
// a message. Anything larger is not a message worth relaying to a user.
const maxErrorBody = 4 << 10

// EncodeJSON marshals v into a reader suitable as a request body.
func EncodeJSON(v any) (io.Reader, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return &buf, nil
}

// DecodeJSON decodes a JSON response body into v.
func DecodeJSON(r io.Reader, v any) error {
	return json.NewDecoder(r).Decode(v)
}

// SetJSONHeaders sets the content negotiation headers for a JSON API call.
func SetJSONHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
}

// SetBearer attaches a bearer token authorization header when token is
// non-empty.
func SetBearer(req *http.Request, token string) {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// ErrorMessage extracts a human-readable message from an error response
// body. It prefers the conventional {"error": "..."} or {"message": "..."}
// JSON shapes and falls back to the raw (bounded, trimmed) body text.
func ErrorMessage(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, maxErrorBody))
	if err != nil || len(raw) == 0 {
		return ""
	}

	var shaped struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &shaped); err == nil {
		if shaped.Error != "" {
			return shaped.Error
		}
		if shaped.Message != "" {
			return shaped.Message
		}
	}

	return strings.TrimSpace(string(raw))
}
