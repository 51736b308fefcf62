package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/aussiebroadwan/keyfob/internal/authenticator/api"
	"github.com/aussiebroadwan/keyfob/internal/authenticator/domain"
	"github.com/aussiebroadwan/keyfob/internal/authenticator/store"
	"github.com/aussiebroadwan/keyfob/pkg/cryptox"
)

var (
	ErrInvalidEmail       = errors.New("service: invalid email address")
	ErrInvalidPassword    = errors.New("service: password required")
	ErrInvalidDisplayName = errors.New("service: display name required")
	ErrInvalidOTPCode     = errors.New("service: code must be 6 digits")
	ErrNoPendingChallenge = errors.New("service: no login awaiting approval")
)

// Local format-only checks. Server-side policy (password strength, email
// deliverability) is not second-guessed here.
var (
	emailRe   = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	otpCodeRe = regexp.MustCompile(`^[0-9]{6}$`)
)

// LoginResult is the outcome of a password login: exactly one of Session
// (direct success) or Challenge (second factor required) is set.
type LoginResult struct {
	Session   *domain.Session
	Challenge *domain.Challenge
}

// SessionService owns the auth session lifecycle:
// anonymous -> awaiting-approval -> authenticated -> anonymous.
// It implements api.TokenSource so the backend client reads the current
// token from here instead of from any global.
type SessionService struct {
	Store    store.Store
	API      *api.Client
	Identity *IdentityService
	Logger   *slog.Logger

	// Timeout is the idle window after which a persisted session is
	// discarded on cold start instead of restored. Zero disables expiry.
	Timeout time.Duration

	Platform  string
	PushToken string

	// Now is overridable for tests; defaults to time.Now.
	Now func() time.Time

	// OnSignedOut is invoked when the session is cleared by anything other
	// than an explicit logout: idle expiry, a 401, or a remote revocation.
	OnSignedOut func(reason string)

	mu      sync.Mutex
	session domain.Session
	pending *domain.Challenge
}

func (s *SessionService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Token implements api.TokenSource.
func (s *SessionService) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.Token
}

// Session returns a copy of the current session state.
func (s *SessionService) Session() domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// Pending returns the challenge awaiting approval, or nil.
func (s *SessionService) Pending() *domain.Challenge {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return nil
	}
	challenge := *s.pending
	return &challenge
}

// Restore loads a persisted session on cold start. A session idle past the
// configured timeout is discarded before it is ever presented as active.
// It reports whether an active session was restored.
func (s *SessionService) Restore(ctx context.Context) (bool, error) {
	token, err := s.Store.Settings().GetSetting(ctx, store.SettingToken)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to restore session: %w", err)
	}

	var lastActivity time.Time
	if raw, err := s.Store.Settings().GetSetting(ctx, store.SettingLastActivity); err == nil {
		lastActivity, _ = time.Parse(time.RFC3339, raw)
	}

	candidate := domain.Session{Token: token, LastActivity: lastActivity}
	if candidate.Expired(s.now(), s.Timeout) {
		s.Logger.Info("persisted session idle past timeout, discarding",
			"last_activity", lastActivity)
		s.discardPersisted(ctx)
		return false, nil
	}

	s.mu.Lock()
	s.session = candidate
	s.mu.Unlock()
	return true, nil
}

// Login validates inputs locally, then attempts a password login. The
// result either carries an established session or the challenge the
// requester role must now poll.
func (s *SessionService) Login(ctx context.Context, email, password string, rememberDevice bool) (LoginResult, error) {
	if !emailRe.MatchString(email) {
		return LoginResult{}, ErrInvalidEmail
	}
	if password == "" {
		return LoginResult{}, ErrInvalidPassword
	}

	identity, err := s.Identity.Ensure(ctx)
	if err != nil {
		return LoginResult{}, err
	}

	outcome, err := s.API.Login(ctx, email, password, identity.DeviceID)
	if err != nil {
		return LoginResult{}, err
	}

	if outcome.Auth != nil {
		session := s.establish(ctx, *outcome.Auth, rememberDevice)
		return LoginResult{Session: &session}, nil
	}

	challenge := &domain.Challenge{
		ID:             outcome.ChallengeID,
		DeviceID:       identity.DeviceID,
		RememberDevice: rememberDevice,
	}
	s.mu.Lock()
	s.pending = challenge
	s.mu.Unlock()

	copied := *challenge
	return LoginResult{Challenge: &copied}, nil
}

// Register creates a new account. Registration has no MFA step.
func (s *SessionService) Register(ctx context.Context, email, password, displayName string) (domain.Session, error) {
	if !emailRe.MatchString(email) {
		return domain.Session{}, ErrInvalidEmail
	}
	if password == "" {
		return domain.Session{}, ErrInvalidPassword
	}
	if displayName == "" {
		return domain.Session{}, ErrInvalidDisplayName
	}

	auth, err := s.API.Register(ctx, email, password, displayName)
	if err != nil {
		return domain.Session{}, err
	}
	return s.establish(ctx, *auth, false), nil
}

// LoginWithOTP resolves the awaiting-approval login with a 6-digit backup
// code instead of waiting for a responder device, which may be offline.
// The pending challenge id is kept until resolution succeeds.
func (s *SessionService) LoginWithOTP(ctx context.Context, code string) (domain.Session, error) {
	challenge := s.Pending()
	if challenge == nil {
		return domain.Session{}, ErrNoPendingChallenge
	}
	if !otpCodeRe.MatchString(code) {
		return domain.Session{}, ErrInvalidOTPCode
	}

	auth, err := s.API.LoginWithOTP(ctx, challenge.ID, challenge.DeviceID, code)
	if err != nil {
		return domain.Session{}, err
	}

	s.ClearPending()
	return s.establish(ctx, *auth, challenge.RememberDevice), nil
}

// CompleteChallenge is called by the requester poller when the backend
// reports approval: the poll response already carries the session.
func (s *SessionService) CompleteChallenge(ctx context.Context, auth api.AuthResult) domain.Session {
	s.mu.Lock()
	rememberDevice := s.pending != nil && s.pending.RememberDevice
	s.pending = nil
	s.mu.Unlock()

	return s.establish(ctx, auth, rememberDevice)
}

// ClearPending discards the challenge awaiting approval (deny, expiry,
// cancel). No backend call is made; abandoning a challenge has no remote
// side effects.
func (s *SessionService) ClearPending() {
	s.mu.Lock()
	s.pending = nil
	s.mu.Unlock()
}

// Logout clears the session and all persisted traces of it.
func (s *SessionService) Logout(ctx context.Context) {
	s.mu.Lock()
	s.session = domain.Session{}
	s.pending = nil
	s.mu.Unlock()

	s.discardPersisted(ctx)
	s.Logger.Info("logged out")
}

// Touch records user activity for the idle-expiry policy.
func (s *SessionService) Touch(ctx context.Context) {
	now := s.now()

	s.mu.Lock()
	if !s.session.Authenticated() {
		s.mu.Unlock()
		return
	}
	s.session.LastActivity = now
	s.mu.Unlock()

	if err := s.Store.Settings().PutSetting(ctx, store.SettingLastActivity, now.UTC().Format(time.RFC3339)); err != nil {
		s.Logger.Error("failed to persist last activity", "error", err)
	}
}

// Validate re-checks the session against the backend so a remote
// revocation is noticed without user interaction. Transport errors leave
// the session untouched.
func (s *SessionService) Validate(ctx context.Context) error {
	if !s.Session().Authenticated() {
		return nil
	}

	_, err := s.API.LoginHistory(ctx)
	if err != nil {
		s.ObserveAuthError(err)
	}
	return err
}

// ObserveAuthError reacts to an error from any authorized call: a 401
// clears the local session, and the revoked variant is surfaced with its
// own reason. It reports whether the session was cleared.
func (s *SessionService) ObserveAuthError(err error) bool {
	switch {
	case errors.Is(err, api.ErrDeviceRevoked):
		s.invalidate("your device was revoked")
		return true
	case errors.Is(err, api.ErrUnauthorized):
		s.invalidate("session is no longer valid")
		return true
	}
	return false
}

func (s *SessionService) invalidate(reason string) {
	s.mu.Lock()
	wasAuthenticated := s.session.Authenticated()
	s.session = domain.Session{}
	s.pending = nil
	s.mu.Unlock()

	if !wasAuthenticated {
		return
	}

	s.discardPersisted(context.Background())
	s.Logger.Warn("session invalidated", "reason", reason)
	if s.OnSignedOut != nil {
		s.OnSignedOut(reason)
	}
}

// establish installs and persists an authenticated session, then registers
// this device with the backend. Device registration failure is non-fatal to
// the login itself.
func (s *SessionService) establish(ctx context.Context, auth api.AuthResult, rememberDevice bool) domain.Session {
	session := domain.Session{
		Token:        auth.Token,
		User:         auth.User,
		LastActivity: s.now(),
	}

	s.mu.Lock()
	s.session = session
	s.mu.Unlock()

	// Both keys go through one transaction so a crash can never leave a
	// token behind without its activity timestamp.
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Settings().PutSetting(ctx, store.SettingToken, session.Token); err != nil {
			return err
		}
		return tx.Settings().PutSetting(ctx, store.SettingLastActivity,
			session.LastActivity.UTC().Format(time.RFC3339))
	})
	if err != nil {
		s.Logger.Error("failed to persist session", "error", err)
	}

	s.registerDevice(ctx, rememberDevice)

	s.Logger.Info("session established", "user", auth.User.Email)
	return session
}

func (s *SessionService) registerDevice(ctx context.Context, rememberDevice bool) {
	identity, err := s.Identity.Ensure(ctx)
	if err != nil {
		s.Logger.Warn("device registration skipped: no identity", "error", err)
		return
	}

	registration := api.DeviceRegistration{
		DeviceID:       identity.DeviceID,
		PQCPublicKey:   identity.PublicKey,
		PQCAlgorithm:   identity.Algorithm,
		KyberPublicKey: identity.KEMPublicKey,
		Platform:       s.Platform,
		PushToken:      s.PushToken,
		RememberDevice: rememberDevice,
	}
	if identity.KEMPublicKey != "" {
		registration.KyberAlgorithm = cryptox.KEMAlgorithm
	}

	if err := s.API.RegisterDevice(ctx, registration); err != nil {
		s.Logger.Warn("device registration failed", "error", err)
	}
}

func (s *SessionService) discardPersisted(ctx context.Context) {
	if err := s.Store.Settings().DeleteSetting(ctx, store.SettingToken); err != nil {
		s.Logger.Error("failed to clear persisted token", "error", err)
	}
	if err := s.Store.Settings().DeleteSetting(ctx, store.SettingLastActivity); err != nil {
		s.Logger.Error("failed to clear last activity", "error", err)
	}
}
