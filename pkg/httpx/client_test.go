package httpx_test

import (
	"net/http"
	"strings"
	"testing"

	"github.com/aussiebroadwan/keyfob/pkg/httpx"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeJSON(t *testing.T) {
	t.Parallel()

	type payload struct {
		Email string `json:"email"`
	}

	r, err := httpx.EncodeJSON(payload{Email: "alice@example.com"})
	require.NoError(t, err)

	var decoded payload
	require.NoError(t, httpx.DecodeJSON(r, &decoded))
	require.Equal(t, "alice@example.com", decoded.Email)
}

func TestSetBearer(t *testing.T) {
	t.Parallel()

	req, err := http.NewRequest(http.MethodGet, "http://localhost/api", nil)
	require.NoError(t, err)

	httpx.SetBearer(req, "")
	require.Empty(t, req.Header.Get("Authorization"))

	httpx.SetBearer(req, "token-123")
	require.Equal(t, "Bearer token-123", req.Header.Get("Authorization"))
}

func TestErrorMessage(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		body string
		want string
	}{
		{"error field", `{"error":"challenge not found"}`, "challenge not found"},
		{"message field", `{"message":"device was revoked"}`, "device was revoked"},
		{"raw text fallback", "plain failure\n", "plain failure"},
		{"empty body", "", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, httpx.ErrorMessage(strings.NewReader(tc.body)))
		})
	}
}
