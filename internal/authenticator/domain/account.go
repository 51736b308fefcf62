package domain

import (
	"errors"
	"strings"
	"time"
)

// minSecretLen is the minimum base32 text length for an account secret
// after whitespace stripping (decodes to at least 10 raw bytes).
const minSecretLen = 16

var ErrInvalidSecret = errors.New("domain: account secret too short")

// Account is an enrolled TOTP account. The secret is stored base32-encoded
// exactly as enrolled and is owned exclusively by the local vault; it is
// never serialized toward the backend.
type Account struct {
	ID        string
	Issuer    string
	Label     string
	Secret    string
	CreatedAt time.Time
}

// Validate enforces the enrollment invariant on the secret.
func (a Account) Validate() error {
	stripped := strings.Join(strings.Fields(a.Secret), "")
	if len(stripped) < minSecretLen {
		return ErrInvalidSecret
	}
	return nil
}
