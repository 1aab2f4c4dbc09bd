package store

import (
	"context"
	"errors"
	"time"

	"github.com/coinpulse/coinpulse/internal/api/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")

	// ErrConflict is returned by compare-and-swap writes whose expected
	// value no longer matches what is stored.
	ErrConflict = errors.New("store: conflict")
)

// Store is the identity store. Concrete drivers (sqlite, mongodb) implement
// it. There is no transaction API; multi-step invariants are expressed as
// single conditional writes.
type Store interface {
	Users() Users

	ApplyMigrations() error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

type Users interface {
	// GetUserByID returns a user by id.
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByIdentifier matches either the username or the email. Both
	// columns are stored lowercased.
	GetUserByIdentifier(ctx context.Context, username, email string) (domain.User, error)

	// GetUserByProvider looks up a federated identity.
	GetUserByProvider(ctx context.Context, provider, subject string) (domain.User, error)

	// CreateUser inserts a new user (id is provided by app via ULID).
	// Returns ErrAlreadyExists on a username, email or provider clash.
	CreateUser(ctx context.Context, u domain.User) error

	// LinkProvider attaches a federated identity to a user that has none.
	// Returns ErrConflict when the user is already linked, and
	// ErrAlreadyExists when another user holds the identity.
	LinkProvider(ctx context.Context, userID, provider, subject string) error

	// SetRefreshToken overwrites the refresh slot unconditionally. An empty
	// hash clears it (logout).
	SetRefreshToken(ctx context.Context, userID, hash string) error

	// SwapRefreshToken replaces the slot only if it still holds expected.
	// Returns ErrConflict when it does not, which callers treat as reuse.
	SwapRefreshToken(ctx context.Context, userID, expected, next string) error
}

// Ephemeral is a TTL key/value store for single-use values (OAuth state and
// nonce) and short-lived caches. Implementations must make Take atomic: two
// concurrent Takes of the same key never both succeed.
type Ephemeral interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Get returns ErrNotFound for absent or expired keys.
	Get(ctx context.Context, key string) (string, error)

	Delete(ctx context.Context, key string) error

	// Take reads and deletes key in one step. Returns ErrNotFound when the
	// key is absent, expired or already taken.
	Take(ctx context.Context, key string) (string, error)

	Ping(ctx context.Context) error
	Close() error
}

// Purger is implemented by ephemeral stores that do not expire keys on
// their own and need a periodic sweep.
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}
