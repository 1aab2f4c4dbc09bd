package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/coinpulse/coinpulse/internal/api/store"
)

// Ephemeral is the ephemeral_tokens table. Expired rows are invisible to Get
// and Take and are removed by PurgeExpired.
type Ephemeral struct {
	db  *sql.DB
	q   *queries
	now func() time.Time
}

func (e *Ephemeral) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.New("sqlite: ephemeral ttl must be positive")
	}
	return e.q.PutEphemeral(ctx, key, value, toMillis(e.now().Add(ttl)))
}

func (e *Ephemeral) Get(ctx context.Context, key string) (string, error) {
	v, err := e.q.GetEphemeral(ctx, key, toMillis(e.now()))
	if err != nil {
		return "", mapNotFound(err)
	}
	return v, nil
}

func (e *Ephemeral) Delete(ctx context.Context, key string) error {
	return e.q.DeleteEphemeral(ctx, key)
}

func (e *Ephemeral) Take(ctx context.Context, key string) (string, error) {
	v, exp, err := e.q.TakeEphemeral(ctx, key)
	if err != nil {
		return "", mapNotFound(err)
	}
	// The row is gone either way; an expired one just doesn't count.
	if exp <= toMillis(e.now()) {
		return "", store.ErrNotFound
	}
	return v, nil
}

// PurgeExpired deletes rows whose TTL has elapsed.
func (e *Ephemeral) PurgeExpired(ctx context.Context) (int64, error) {
	return e.q.DeleteExpiredEphemeral(ctx, toMillis(e.now()))
}

func (e *Ephemeral) Ping(ctx context.Context) error { return e.db.PingContext(ctx) }

// Close is a no-op; the owning Store closes the database.
func (e *Ephemeral) Close() error { return nil }
