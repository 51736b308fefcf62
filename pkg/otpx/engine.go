package otpx

import (
	"errors"
	"strings"
	"time"
)

const (
	// Period is the TOTP time-step in seconds (RFC 6238 default).
	Period = 30

	// Placeholder is rendered in place of a code when an account's secret
	// cannot be decoded. One corrupt account must never take down a refresh
	// cycle for the rest.
	Placeholder = "------"

	// minSecretLen is the minimum accepted base32 text length after
	// whitespace stripping (decodes to at least 10 raw bytes).
	minSecretLen = 16
)

var (
	// ErrSelfTest is returned by New when the HMAC-SHA1 implementation does
	// not reproduce the RFC 6238 published test vector. An engine is never
	// handed out in that state.
	ErrSelfTest = errors.New("otpx: HMAC-SHA1 self-test failed")

	// ErrShortSecret reports a secret below the minimum base32 length.
	ErrShortSecret = errors.New("otpx: secret too short")
)

// Codes holds the codes for the previous, current and next 30-second
// windows. The adjacent windows are displayed to tolerate clock skew on the
// verifying service; only what is shown is widened, not what anything
// accepts.
type Codes struct {
	Previous string
	Current  string
	Next     string
}

// Engine produces TOTP codes. Construct it with New, which refuses to hand
// out an engine whose primitives fail the RFC 6238 self-test.
type Engine struct {
	// Now returns the wall-clock time. Overridable for tests; defaults to
	// time.Now.
	Now func() time.Time
}

// New runs the RFC 6238 self-test and returns a ready engine. A failed
// self-test is fatal: the caller must not serve codes.
func New() (*Engine, error) {
	if !selfTest() {
		return nil, ErrSelfTest
	}
	return &Engine{Now: time.Now}, nil
}

// selfTest checks the published RFC 6238 HMAC-SHA1 vector: the ASCII secret
// "12345678901234567890" at counter 1 must produce "287082".
func selfTest() bool {
	return HOTP([]byte("12345678901234567890"), 1) == "287082"
}

func (e *Engine) counter() uint64 {
	return uint64(e.Now().Unix()) / Period
}

// Code returns the current 6-digit code for a base32 secret.
func (e *Engine) Code(secret string) (string, error) {
	raw, err := decodeSecret(secret)
	if err != nil {
		return "", err
	}
	return HOTP(raw, e.counter()), nil
}

// AdjacentCodes returns the codes for the previous, current and next
// windows.
func (e *Engine) AdjacentCodes(secret string) (Codes, error) {
	raw, err := decodeSecret(secret)
	if err != nil {
		return Codes{}, err
	}

	c := e.counter()
	prev := c
	if c > 0 {
		prev = c - 1
	}

	return Codes{
		Previous: HOTP(raw, prev),
		Current:  HOTP(raw, c),
		Next:     HOTP(raw, c+1),
	}, nil
}

// DisplayCodes is AdjacentCodes with the failure policy applied: a secret
// that cannot be decoded yields placeholder codes instead of an error, so a
// single malformed account degrades only its own display.
func (e *Engine) DisplayCodes(secret string) Codes {
	codes, err := e.AdjacentCodes(secret)
	if err != nil {
		return Codes{Previous: Placeholder, Current: Placeholder, Next: Placeholder}
	}
	return codes
}

// SecondsRemaining reports how long the current window is still valid,
// 30 - (unix time mod 30).
func (e *Engine) SecondsRemaining() int {
	return Period - int(e.Now().Unix()%Period)
}

// decodeSecret strips whitespace, enforces the minimum length and decodes.
func decodeSecret(secret string) ([]byte, error) {
	stripped := stripSpace(secret)
	if len(stripped) < minSecretLen {
		return nil, ErrShortSecret
	}
	return Base32Decode(stripped)
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\r', '\n':
			return -1
		}
		return r
	}, s)
}
