package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/keyfob/internal/authenticator/domain"
	"github.com/aussiebroadwan/keyfob/internal/authenticator/store"
	"github.com/aussiebroadwan/keyfob/pkg/idx"
	"github.com/aussiebroadwan/keyfob/pkg/otpauth"
	"github.com/aussiebroadwan/keyfob/pkg/otpx"
)

// CodeEntry is one account's codes in a refresh snapshot.
type CodeEntry struct {
	AccountID string
	Issuer    string
	Label     string
	Codes     otpx.Codes
}

// VaultService manages enrolled accounts and computes their codes. Secrets
// live only in the local vault and never travel to the backend.
type VaultService struct {
	Store  store.Store
	Engine *otpx.Engine
	Logger *slog.Logger
}

// Enroll parses an otpauth:// URI (from a QR scan or deep link) and stores
// the account.
func (s *VaultService) Enroll(ctx context.Context, uri string) (domain.Account, error) {
	enrollment, err := otpauth.Parse(uri)
	if err != nil {
		return domain.Account{}, fmt.Errorf("invalid enrollment URI: %w", err)
	}
	return s.create(ctx, enrollment.Issuer, enrollment.Label, enrollment.Secret)
}

// EnrollManual stores an account from manually entered details.
func (s *VaultService) EnrollManual(ctx context.Context, issuer, label, secret string) (domain.Account, error) {
	if issuer == "" {
		issuer = otpauth.DefaultIssuer
	}
	return s.create(ctx, issuer, label, secret)
}

func (s *VaultService) create(ctx context.Context, issuer, label, secret string) (domain.Account, error) {
	account := domain.Account{
		ID:        idx.New().String(),
		Issuer:    issuer,
		Label:     label,
		Secret:    secret,
		CreatedAt: time.Now().UTC(),
	}
	if err := account.Validate(); err != nil {
		return domain.Account{}, err
	}

	if err := s.Store.Accounts().CreateAccount(ctx, account); err != nil {
		return domain.Account{}, fmt.Errorf("failed to store account: %w", err)
	}

	s.Logger.Info("account enrolled", "account_id", account.ID, "issuer", account.Issuer)
	return account, nil
}

// Remove deletes an account permanently.
func (s *VaultService) Remove(ctx context.Context, id string) error {
	if err := s.Store.Accounts().DeleteAccount(ctx, id); err != nil {
		return fmt.Errorf("failed to remove account: %w", err)
	}
	s.Logger.Info("account removed", "account_id", id)
	return nil
}

// List returns all enrolled accounts in enrollment order.
func (s *VaultService) List(ctx context.Context) ([]domain.Account, error) {
	return s.Store.Accounts().ListAccounts(ctx)
}

// ExportQR renders an account's enrollment URI as a QR PNG so it can be
// enrolled on another authenticator.
func (s *VaultService) ExportQR(ctx context.Context, id string, size int) ([]byte, error) {
	account, err := s.Store.Accounts().GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	return otpauth.QRCode(account.Issuer, account.Label, account.Secret, size)
}

// Codes computes the current snapshot: every account's previous/current/
// next codes plus the shared countdown. An account whose secret cannot be
// decoded gets placeholder codes; the rest are unaffected.
func (s *VaultService) Codes(ctx context.Context) ([]CodeEntry, int, error) {
	accounts, err := s.Store.Accounts().ListAccounts(ctx)
	if err != nil {
		return nil, 0, err
	}

	entries := make([]CodeEntry, 0, len(accounts))
	for _, account := range accounts {
		entries = append(entries, CodeEntry{
			AccountID: account.ID,
			Issuer:    account.Issuer,
			Label:     account.Label,
			Codes:     s.Engine.DisplayCodes(account.Secret),
		})
	}

	return entries, s.Engine.SecondsRemaining(), nil
}
