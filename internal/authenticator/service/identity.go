package service

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aussiebroadwan/keyfob/internal/authenticator/domain"
	"github.com/aussiebroadwan/keyfob/internal/authenticator/store"
	"github.com/aussiebroadwan/keyfob/pkg/cryptox"
	"github.com/google/uuid"
)

// IdentityService owns the device's persistent signing keypair and opaque
// device id. Exactly one identity exists per installation; the private key
// never leaves the local vault.
type IdentityService struct {
	Store  store.Store
	Logger *slog.Logger

	// MachineID is a stable platform identifier used as the device id when
	// available. When empty a random id is generated once and persisted.
	MachineID string

	mu     sync.Mutex
	cached *domain.DeviceIdentity
}

// Ensure loads the persisted identity, creating or migrating it as needed.
// A persisted keypair tagged with a known-insecure placeholder algorithm is
// discarded and regenerated; this happens at most once per installation and
// repeated calls afterwards are no-ops.
func (s *IdentityService) Ensure(ctx context.Context) (domain.DeviceIdentity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != nil {
		return *s.cached, nil
	}

	identity, err := s.load(ctx)
	if err != nil {
		return domain.DeviceIdentity{}, err
	}

	if identity.DeviceID == "" {
		identity.DeviceID = s.MachineID
		if identity.DeviceID == "" {
			identity.DeviceID = uuid.NewString()
		}
	}

	if identity.NeedsMigration() {
		if identity.PrivateKey != "" {
			s.Logger.Info("migrating device identity off placeholder algorithm",
				"old_algorithm", identity.Algorithm)
		}

		migrated, err := generateIdentity(identity.DeviceID)
		if err != nil {
			return domain.DeviceIdentity{}, err
		}
		identity = migrated

		if err := s.persist(ctx, identity); err != nil {
			return domain.DeviceIdentity{}, err
		}
	}

	s.cached = &identity
	return identity, nil
}

// Sign signs message with the device's private key. It returns Unsigned
// rather than an error when no usable key material exists, so callers can
// degrade to "cannot approve" instead of crashing.
func (s *IdentityService) Sign(ctx context.Context, message string) domain.Signature {
	identity, err := s.Ensure(ctx)
	if err != nil {
		s.Logger.Error("signing unavailable: no device identity", "error", err)
		return domain.Unsigned
	}
	if !identity.Usable() {
		return domain.Unsigned
	}

	priv, err := hex.DecodeString(identity.PrivateKey)
	if err != nil {
		s.Logger.Error("signing unavailable: corrupt private key", "error", err)
		return domain.Unsigned
	}

	sig, err := cryptox.Sign(priv, []byte(message))
	if err != nil {
		s.Logger.Error("signing failed", "error", err)
		return domain.Unsigned
	}
	return domain.Signed(hex.EncodeToString(sig))
}

// load reads whatever identity fields are persisted. Absent keys simply
// leave fields empty.
func (s *IdentityService) load(ctx context.Context) (domain.DeviceIdentity, error) {
	var identity domain.DeviceIdentity

	fields := []struct {
		key string
		dst *string
	}{
		{store.SettingDeviceID, &identity.DeviceID},
		{store.SettingAlgorithm, &identity.Algorithm},
		{store.SettingPublicKey, &identity.PublicKey},
		{store.SettingPrivateKey, &identity.PrivateKey},
		{store.SettingKEMPublicKey, &identity.KEMPublicKey},
	}

	for _, field := range fields {
		value, err := s.Store.Settings().GetSetting(ctx, field.key)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return domain.DeviceIdentity{}, fmt.Errorf("failed to load identity: %w", err)
		}
		*field.dst = value
	}

	return identity, nil
}

// persist writes the whole identity atomically so a crash can never leave a
// device id without its keypair or vice versa.
func (s *IdentityService) persist(ctx context.Context, identity domain.DeviceIdentity) error {
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		writes := map[string]string{
			store.SettingDeviceID:     identity.DeviceID,
			store.SettingAlgorithm:    identity.Algorithm,
			store.SettingPublicKey:    identity.PublicKey,
			store.SettingPrivateKey:   identity.PrivateKey,
			store.SettingKEMPublicKey: identity.KEMPublicKey,
		}
		for key, value := range writes {
			if err := tx.Settings().PutSetting(ctx, key, value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to persist device identity: %w", err)
	}
	return nil
}

// generateIdentity derives a fresh keypair from a random master seed.
func generateIdentity(deviceID string) (domain.DeviceIdentity, error) {
	master, err := cryptox.RandomSeed()
	if err != nil {
		return domain.DeviceIdentity{}, err
	}

	signingSeed, err := cryptox.DeriveSigningSeed(master)
	if err != nil {
		return domain.DeviceIdentity{}, err
	}
	pub, priv, err := cryptox.SigningKeypairFromSeed(signingSeed)
	if err != nil {
		return domain.DeviceIdentity{}, err
	}

	kemSeed, err := cryptox.DeriveKEMSeed(master)
	if err != nil {
		return domain.DeviceIdentity{}, err
	}
	kemPub, err := cryptox.KEMPublicKeyFromSeed(kemSeed)
	if err != nil {
		return domain.DeviceIdentity{}, err
	}

	return domain.DeviceIdentity{
		DeviceID:     deviceID,
		Algorithm:    domain.AlgorithmPQSigV1,
		PublicKey:    hex.EncodeToString(pub),
		PrivateKey:   hex.EncodeToString(priv),
		KEMPublicKey: hex.EncodeToString(kemPub),
	}, nil
}
