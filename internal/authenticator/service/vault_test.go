package service_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/aussiebroadwan/keyfob/internal/authenticator/domain"
	"github.com/aussiebroadwan/keyfob/internal/authenticator/service"
	"github.com/aussiebroadwan/keyfob/internal/authenticator/store"
	"github.com/aussiebroadwan/keyfob/pkg/otpx"
	"github.com/stretchr/testify/require"
)

const testSecret = "JBSWY3DPEHPK3PXPJBSWY3DP"

func newVaultService(t *testing.T) *service.VaultService {
	t.Helper()

	engine, err := otpx.New()
	require.NoError(t, err)
	engine.Now = func() time.Time { return time.Unix(1111111109, 0) }

	return &service.VaultService{
		Store:  newVault(t),
		Engine: engine,
		Logger: slog.Default(),
	}
}

func TestEnrollFromURI(t *testing.T) {
	vault := newVaultService(t)
	ctx := context.Background()

	account, err := vault.Enroll(ctx,
		"otpauth://totp/Example:alice@example.com?secret="+testSecret+"&issuer=Example")
	require.NoError(t, err)
	require.Equal(t, "Example", account.Issuer)
	require.Equal(t, "Example:alice@example.com", account.Label)
	require.Equal(t, testSecret, account.Secret)

	accounts, err := vault.List(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	require.Equal(t, account.ID, accounts[0].ID)
}

func TestEnrollRejectsBadInput(t *testing.T) {
	vault := newVaultService(t)
	ctx := context.Background()

	_, err := vault.Enroll(ctx, "https://example.com/not-otpauth")
	require.Error(t, err)

	_, err = vault.EnrollManual(ctx, "Example", "alice", "TOOSHORT")
	require.ErrorIs(t, err, domain.ErrInvalidSecret)

	accounts, err := vault.List(ctx)
	require.NoError(t, err)
	require.Empty(t, accounts, "nothing is stored on a failed enrollment")
}

func TestEnrollManualDefaultsIssuer(t *testing.T) {
	vault := newVaultService(t)

	account, err := vault.EnrollManual(context.Background(), "", "alice", testSecret)
	require.NoError(t, err)
	require.Equal(t, "Unknown", account.Issuer)
}

func TestRemoveAccount(t *testing.T) {
	vault := newVaultService(t)
	ctx := context.Background()

	account, err := vault.EnrollManual(ctx, "Example", "alice", testSecret)
	require.NoError(t, err)

	require.NoError(t, vault.Remove(ctx, account.ID))

	accounts, err := vault.List(ctx)
	require.NoError(t, err)
	require.Empty(t, accounts)

	require.ErrorIs(t, vault.Remove(ctx, account.ID), store.ErrNotFound)
}

func TestCodesIsolateCorruptSecret(t *testing.T) {
	vault := newVaultService(t)
	ctx := context.Background()

	good, err := vault.EnrollManual(ctx, "Example", "alice", testSecret)
	require.NoError(t, err)

	// A corrupt row written behind the service's back (validation is only at
	// enrollment time).
	require.NoError(t, vault.Store.Accounts().CreateAccount(ctx, domain.Account{
		ID:        good.ID + "x",
		Issuer:    "Broken",
		Label:     "bob",
		Secret:    "not base32 at all",
		CreatedAt: time.Now(),
	}))

	entries, remaining, err := vault.Codes(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, 1, remaining) // 30 - (1111111109 mod 30)

	byIssuer := map[string]service.CodeEntry{}
	for _, entry := range entries {
		byIssuer[entry.Issuer] = entry
	}

	expected, err := vault.Engine.Code(testSecret)
	require.NoError(t, err)
	require.Equal(t, expected, byIssuer["Example"].Codes.Current)
	require.Regexp(t, `^[0-9]{6}$`, byIssuer["Example"].Codes.Next)

	require.Equal(t, otpx.Placeholder, byIssuer["Broken"].Codes.Previous)
	require.Equal(t, otpx.Placeholder, byIssuer["Broken"].Codes.Current)
	require.Equal(t, otpx.Placeholder, byIssuer["Broken"].Codes.Next)
}

func TestExportQR(t *testing.T) {
	vault := newVaultService(t)
	ctx := context.Background()

	account, err := vault.EnrollManual(ctx, "Example", "alice", testSecret)
	require.NoError(t, err)

	png, err := vault.ExportQR(ctx, account.ID, 256)
	require.NoError(t, err)
	require.Greater(t, len(png), 8)
	require.Equal(t, []byte{0x89, 'P', 'N', 'G'}, png[:4])

	_, err = vault.ExportQR(ctx, "missing", 256)
	require.ErrorIs(t, err, store.ErrNotFound)
}
