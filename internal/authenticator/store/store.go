package store

import (
	"context"
	"errors"

	"github.com/aussiebroadwan/keyfob/internal/authenticator/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Setting keys for the vault's key/value state. Everything the app persists
// besides accounts lives here.
const (
	SettingDeviceID     = "device_id"
	SettingAlgorithm    = "pqc_algorithm"
	SettingPublicKey    = "pqc_public_key"
	SettingPrivateKey   = "pqc_private_key"
	SettingKEMPublicKey = "kyber_public_key"
	SettingToken        = "auth_token"
	SettingLastActivity = "last_activity"
)

// Store is the local vault's data access interface. Concrete drivers
// (sqlite) implement it. Sub-repositories keep concerns tidy and testable.
type Store interface {
	Accounts() Accounts
	Settings() Settings

	ApplyMigrations() error

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back, otherwise it is committed. Multi-key
	// writes (persisting a whole device identity) must go through this so a
	// crash can never leave half an identity behind.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error
}

// Tx is a transaction-scoped Store.
type Tx interface {
	Accounts() Accounts
	Settings() Settings
}

type Accounts interface {
	// ListAccounts returns all enrolled accounts ordered by id (ULIDs, so
	// enrollment order).
	ListAccounts(ctx context.Context) ([]domain.Account, error)

	// GetAccount returns one account by id.
	GetAccount(ctx context.Context, id string) (domain.Account, error)

	// CreateAccount inserts a new account (id is provided by the app via ULID).
	CreateAccount(ctx context.Context, a domain.Account) error

	// DeleteAccount removes an account permanently, or ErrNotFound.
	DeleteAccount(ctx context.Context, id string) error
}

type Settings interface {
	// GetSetting returns a value or ErrNotFound.
	GetSetting(ctx context.Context, key string) (string, error)

	// PutSetting inserts or replaces a value.
	PutSetting(ctx context.Context, key, value string) error

	// DeleteSetting removes a key. Deleting an absent key is not an error.
	DeleteSetting(ctx context.Context, key string) error
}
