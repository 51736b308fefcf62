package domain

import "time"

// User is the authenticated account holder as reported by the backend.
type User struct {
	ID          string
	Email       string
	DisplayName string
}

// Session is the local view of the backend auth session. A non-empty token
// implies the session was established by a completed login, registration,
// OTP-fallback or approval flow.
type Session struct {
	Token        string
	User         User
	LastActivity time.Time
}

// Authenticated reports whether a bearer token is held.
func (s Session) Authenticated() bool { return s.Token != "" }

// Expired reports whether the session idled past the timeout window.
// A zero timeout disables expiry entirely. A session with no recorded
// activity time has no expiry horizon, so with expiry enabled it counts as
// expired rather than living forever.
func (s Session) Expired(now time.Time, timeout time.Duration) bool {
	if timeout <= 0 {
		return false
	}
	if s.LastActivity.IsZero() {
		return true
	}
	return now.Sub(s.LastActivity) > timeout
}
