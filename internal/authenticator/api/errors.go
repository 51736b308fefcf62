package api

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnauthorized reports a 401 on an authorized call. The caller must
	// clear its local session.
	ErrUnauthorized = errors.New("api: unauthorized")

	// ErrDeviceRevoked is the 401 variant whose body names a revocation:
	// this device was signed out remotely and the user should be told so.
	ErrDeviceRevoked = errors.New("api: device revoked")
)

// TransportError wraps connectivity failures (no network, timeout). Session
// state must be left unchanged when one occurs; the next scheduled poll or a
// user retry is the recovery path.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("api: %s: %v", e.Op, e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError is a non-401 error status from the backend.
type ProtocolError struct {
	StatusCode int
	Message    string
}

func (e *ProtocolError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: backend returned %d", e.StatusCode)
	}
	return fmt.Sprintf("api: backend returned %d: %s", e.StatusCode, e.Message)
}

// TerminatesChallenge reports whether an error from a status poll means the
// challenge itself is gone and polling it forever would be pointless:
// not-found, forbidden and rate-limited responses all end the attempt.
func TerminatesChallenge(err error) bool {
	var protocolErr *ProtocolError
	if !errors.As(err, &protocolErr) {
		return false
	}
	switch protocolErr.StatusCode {
	case http.StatusNotFound, http.StatusForbidden, http.StatusTooManyRequests:
		return true
	}
	return false
}
