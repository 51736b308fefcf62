package service_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/keyfob/internal/authenticator/api"
	"github.com/aussiebroadwan/keyfob/internal/authenticator/domain"
	"github.com/aussiebroadwan/keyfob/internal/authenticator/service"
	"github.com/aussiebroadwan/keyfob/internal/authenticator/store"
	"github.com/aussiebroadwan/keyfob/internal/authenticator/store/drivers/sqlite"
	"github.com/stretchr/testify/require"
)

// fixture wires a session service against an httptest backend and an
// in-memory vault.
type fixture struct {
	vault    *sqlite.Store
	identity *service.IdentityService
	sessions *service.SessionService
}

func newFixture(t *testing.T, handler http.Handler) *fixture {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	vault := newVault(t)
	identity := &service.IdentityService{Store: vault, Logger: slog.Default()}
	sessions := &service.SessionService{
		Store:    vault,
		Identity: identity,
		Logger:   slog.Default(),
		Platform: "linux",
	}
	sessions.API = api.NewClient(server.URL, sessions, slog.Default())

	return &fixture{vault: vault, identity: identity, sessions: sessions}
}

// scripted serves each response once, repeating the last one forever.
func scripted(responses ...string) http.HandlerFunc {
	var mu sync.Mutex
	next := 0
	return func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		response := responses[next]
		if next < len(responses)-1 {
			next++
		}
		mu.Unlock()
		w.Write([]byte(response))
	}
}

func TestLoginDirectSuccess(t *testing.T) {
	var registrations atomic.Int32
	var registered api.DeviceRegistration

	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"token":"tok-1","uid":"u-1","email":"alice@example.com","displayName":"Alice"}`))
	})
	mux.HandleFunc("/api/devices/register", func(w http.ResponseWriter, r *http.Request) {
		registrations.Add(1)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&registered))
		w.WriteHeader(http.StatusOK)
	})

	f := newFixture(t, mux)
	ctx := context.Background()

	result, err := f.sessions.Login(ctx, "alice@example.com", "hunter2", true)
	require.NoError(t, err)
	require.NotNil(t, result.Session)
	require.Nil(t, result.Challenge)
	require.True(t, f.sessions.Session().Authenticated())
	require.Equal(t, "Alice", f.sessions.Session().User.DisplayName)

	// The token is persisted for the next cold start.
	token, err := f.vault.Settings().GetSetting(ctx, store.SettingToken)
	require.NoError(t, err)
	require.Equal(t, "tok-1", token)

	// The device was registered with its public keys, never the private one.
	require.Equal(t, int32(1), registrations.Load())
	identity, err := f.identity.Ensure(ctx)
	require.NoError(t, err)
	require.Equal(t, identity.DeviceID, registered.DeviceID)
	require.Equal(t, identity.PublicKey, registered.PQCPublicKey)
	require.Equal(t, domain.AlgorithmPQSigV1, registered.PQCAlgorithm)
	require.NotEmpty(t, registered.KyberPublicKey)
	require.True(t, registered.RememberDevice)
}

func TestLoginRequiresMFA(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/login", scripted(`{"requiresMfa":true,"challengeId":"ch-1"}`))

	f := newFixture(t, mux)

	result, err := f.sessions.Login(context.Background(), "alice@example.com", "hunter2", false)
	require.NoError(t, err)
	require.Nil(t, result.Session)
	require.NotNil(t, result.Challenge)
	require.Equal(t, "ch-1", result.Challenge.ID)

	// awaiting-approval: not authenticated, challenge pending.
	require.False(t, f.sessions.Session().Authenticated())
	pending := f.sessions.Pending()
	require.NotNil(t, pending)
	require.Equal(t, "ch-1", pending.ID)
}

func TestLoginValidatesInputsLocally(t *testing.T) {
	var hits atomic.Int32
	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	ctx := context.Background()

	_, err := f.sessions.Login(ctx, "not-an-email", "pw", false)
	require.ErrorIs(t, err, service.ErrInvalidEmail)

	_, err = f.sessions.Login(ctx, "alice@example.com", "", false)
	require.ErrorIs(t, err, service.ErrInvalidPassword)

	_, err = f.sessions.Register(ctx, "alice@example.com", "pw", "")
	require.ErrorIs(t, err, service.ErrInvalidDisplayName)

	require.Equal(t, int32(0), hits.Load(), "invalid input must never reach the network")
}

func TestLoginWithOTPFallback(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/login", scripted(`{"requiresMfa":true,"challengeId":"ch-2"}`))
	mux.HandleFunc("/api/devices/register", func(w http.ResponseWriter, r *http.Request) {})
	mux.HandleFunc("/api/auth/login-with-otp", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			ChallengeID string `json:"challengeId"`
			Code        string `json:"code"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "ch-2", body.ChallengeID)
		require.Equal(t, "123456", body.Code)
		w.Write([]byte(`{"token":"tok-otp","uid":"u-1","email":"a@b.c","displayName":"A"}`))
	})

	f := newFixture(t, mux)
	ctx := context.Background()

	_, err := f.sessions.Login(ctx, "alice@example.com", "pw", false)
	require.NoError(t, err)

	// Bad code shape is rejected locally, challenge kept.
	_, err = f.sessions.LoginWithOTP(ctx, "12345")
	require.ErrorIs(t, err, service.ErrInvalidOTPCode)
	require.NotNil(t, f.sessions.Pending())

	session, err := f.sessions.LoginWithOTP(ctx, "123456")
	require.NoError(t, err)
	require.Equal(t, "tok-otp", session.Token)
	require.Nil(t, f.sessions.Pending())
	require.True(t, f.sessions.Session().Authenticated())
}

func TestLoginWithOTPRequiresPendingChallenge(t *testing.T) {
	f := newFixture(t, http.NewServeMux())

	_, err := f.sessions.LoginWithOTP(context.Background(), "123456")
	require.ErrorIs(t, err, service.ErrNoPendingChallenge)
}

func TestLogoutClearsEverything(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/login", scripted(`{"token":"tok-1","uid":"u-1","email":"a@b.c","displayName":"A"}`))
	mux.HandleFunc("/api/devices/register", func(w http.ResponseWriter, r *http.Request) {})

	f := newFixture(t, mux)
	ctx := context.Background()

	_, err := f.sessions.Login(ctx, "alice@example.com", "pw", false)
	require.NoError(t, err)

	f.sessions.Logout(ctx)
	require.False(t, f.sessions.Session().Authenticated())

	_, err = f.vault.Settings().GetSetting(ctx, store.SettingToken)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestRestoreHonorsIdleTimeout(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

	seed := func(t *testing.T, f *fixture, idle time.Duration) {
		t.Helper()
		require.NoError(t, f.vault.Settings().PutSetting(ctx, store.SettingToken, "tok-old"))
		require.NoError(t, f.vault.Settings().PutSetting(ctx, store.SettingLastActivity,
			now.Add(-idle).Format(time.RFC3339)))
	}

	t.Run("idle past the timeout is discarded", func(t *testing.T) {
		f := newFixture(t, http.NewServeMux())
		f.sessions.Timeout = 7 * 24 * time.Hour
		f.sessions.Now = func() time.Time { return now }
		seed(t, f, 8*24*time.Hour)

		restored, err := f.sessions.Restore(ctx)
		require.NoError(t, err)
		require.False(t, restored)
		require.False(t, f.sessions.Session().Authenticated())

		// Discarded before it was ever presented as active.
		_, err = f.vault.Settings().GetSetting(ctx, store.SettingToken)
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("within the timeout is restored", func(t *testing.T) {
		f := newFixture(t, http.NewServeMux())
		f.sessions.Timeout = 7 * 24 * time.Hour
		f.sessions.Now = func() time.Time { return now }
		seed(t, f, 6*24*time.Hour)

		restored, err := f.sessions.Restore(ctx)
		require.NoError(t, err)
		require.True(t, restored)
		require.Equal(t, "tok-old", f.sessions.Token())
	})

	t.Run("token without recorded activity is discarded", func(t *testing.T) {
		f := newFixture(t, http.NewServeMux())
		f.sessions.Timeout = 7 * 24 * time.Hour
		f.sessions.Now = func() time.Time { return now }
		// Only the token survived, e.g. a crash before the activity write.
		require.NoError(t, f.vault.Settings().PutSetting(ctx, store.SettingToken, "tok-orphan"))

		restored, err := f.sessions.Restore(ctx)
		require.NoError(t, err)
		require.False(t, restored, "a token with no expiry horizon must not outlive the timeout policy")

		_, err = f.vault.Settings().GetSetting(ctx, store.SettingToken)
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("token without recorded activity survives with expiry disabled", func(t *testing.T) {
		f := newFixture(t, http.NewServeMux())
		f.sessions.Timeout = 0
		f.sessions.Now = func() time.Time { return now }
		require.NoError(t, f.vault.Settings().PutSetting(ctx, store.SettingToken, "tok-orphan"))

		restored, err := f.sessions.Restore(ctx)
		require.NoError(t, err)
		require.True(t, restored)
	})

	t.Run("zero timeout always restores", func(t *testing.T) {
		f := newFixture(t, http.NewServeMux())
		f.sessions.Timeout = 0
		f.sessions.Now = func() time.Time { return now }
		seed(t, f, 365*24*time.Hour)

		restored, err := f.sessions.Restore(ctx)
		require.NoError(t, err)
		require.True(t, restored)
	})
}

func TestDeviceRegistrationFailureIsNonFatal(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/login", scripted(`{"token":"tok-1","uid":"u-1","email":"a@b.c","displayName":"A"}`))
	mux.HandleFunc("/api/devices/register", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"nope"}`, http.StatusInternalServerError)
	})

	f := newFixture(t, mux)

	result, err := f.sessions.Login(context.Background(), "alice@example.com", "pw", false)
	require.NoError(t, err)
	require.NotNil(t, result.Session)
	require.True(t, f.sessions.Session().Authenticated())
}

func TestValidateDetectsRevocation(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/login", scripted(`{"token":"tok-1","uid":"u-1","email":"a@b.c","displayName":"A"}`))
	mux.HandleFunc("/api/devices/register", func(w http.ResponseWriter, r *http.Request) {})
	mux.HandleFunc("/api/auth/login-history", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"device was revoked"}`, http.StatusUnauthorized)
	})

	f := newFixture(t, mux)
	ctx := context.Background()

	var mu sync.Mutex
	var reason string
	f.sessions.OnSignedOut = func(r string) {
		mu.Lock()
		reason = r
		mu.Unlock()
	}

	_, err := f.sessions.Login(ctx, "alice@example.com", "pw", false)
	require.NoError(t, err)

	err = f.sessions.Validate(ctx)
	require.ErrorIs(t, err, api.ErrDeviceRevoked)
	require.False(t, f.sessions.Session().Authenticated())

	mu.Lock()
	defer mu.Unlock()
	require.Contains(t, reason, "revoked")
}
