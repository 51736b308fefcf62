package api

import "github.com/aussiebroadwan/keyfob/internal/authenticator/domain"

// AuthResult is a completed authentication: a bearer token plus the user it
// belongs to.
type AuthResult struct {
	Token string
	User  domain.User
}

// LoginOutcome is the result of a password login: either an established
// session (Auth non-nil) or a pending approval challenge (ChallengeID
// non-empty). Exactly one of the two is set.
type LoginOutcome struct {
	Auth        *AuthResult
	ChallengeID string
}

// StatusResult is one poll of a challenge's state. Auth is non-nil only
// when Status is approved.
type StatusResult struct {
	Status domain.ChallengeStatus
	Auth   *AuthResult
}

// DeviceRegistration is the payload for POST /api/devices/register. Public
// keys travel hex-encoded; private key material never appears here.
type DeviceRegistration struct {
	DeviceID       string `json:"deviceId"`
	PQCPublicKey   string `json:"pqcPublicKey"`
	PQCAlgorithm   string `json:"pqcAlgorithm"`
	KyberPublicKey string `json:"kyberPublicKey,omitempty"`
	KyberAlgorithm string `json:"kyberAlgorithm,omitempty"`
	Platform       string `json:"platform"`
	PushToken      string `json:"pushToken,omitempty"`
	RememberDevice bool   `json:"rememberDevice"`
}

// Resolution is the payload for POST /api/mfa/resolve: a signed decision on
// a challenge shown to this responder device.
type Resolution struct {
	ChallengeID string `json:"challengeId"`
	Decision    string `json:"decision"`
	Signature   string `json:"signature"`
	DeviceID    string `json:"deviceId"`
}

// HistoryEntry is one row of the read-only login or MFA audit trails.
type HistoryEntry struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	IP        string `json:"ip,omitempty"`
	DeviceID  string `json:"deviceId,omitempty"`
}

// Wire shapes. The backend replies with flat dynamic objects; these pin the
// fields this client reads.

type authPayload struct {
	Token       string `json:"token"`
	UID         string `json:"uid"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
}

func (p authPayload) result() *AuthResult {
	return &AuthResult{
		Token: p.Token,
		User: domain.User{
			ID:          p.UID,
			Email:       p.Email,
			DisplayName: p.DisplayName,
		},
	}
}

type loginResponse struct {
	RequiresMFA bool   `json:"requiresMfa"`
	ChallengeID string `json:"challengeId"`
	authPayload
}

type statusResponse struct {
	Status string `json:"status"`
	authPayload
}

type pendingResponse struct {
	Challenge *struct {
		ChallengeID string            `json:"challengeId"`
		Context     map[string]string `json:"context"`
	} `json:"challenge"`
}
