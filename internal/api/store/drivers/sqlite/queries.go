package sqlite

import (
	"context"
	"database/sql"
)

// dbtx is satisfied by *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type queries struct {
	db dbtx
}

type userRow struct {
	ID               string
	FullName         string
	Email            string
	Username         string
	PasswordHash     string
	Provider         sql.NullString
	ProviderSubject  sql.NullString
	RefreshTokenHash string
	CreatedAt        int64
	UpdatedAt        int64
}

const userColumns = `id, full_name, email, username, password_hash, provider, provider_subject,
	refresh_token_hash, created_at, updated_at`

func scanUser(row *sql.Row) (userRow, error) {
	var u userRow
	err := row.Scan(
		&u.ID,
		&u.FullName,
		&u.Email,
		&u.Username,
		&u.PasswordHash,
		&u.Provider,
		&u.ProviderSubject,
		&u.RefreshTokenHash,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	return u, err
}

const getUserByID = `SELECT ` + userColumns + ` FROM users WHERE id = ?`

func (q *queries) GetUserByID(ctx context.Context, id string) (userRow, error) {
	return scanUser(q.db.QueryRowContext(ctx, getUserByID, id))
}

const getUserByIdentifier = `SELECT ` + userColumns + ` FROM users
WHERE (?1 != '' AND username = ?1) OR (?2 != '' AND email = ?2)
ORDER BY created_at
LIMIT 1`

func (q *queries) GetUserByIdentifier(ctx context.Context, username, email string) (userRow, error) {
	return scanUser(q.db.QueryRowContext(ctx, getUserByIdentifier, username, email))
}

const getUserByProvider = `SELECT ` + userColumns + ` FROM users
WHERE provider = ? AND provider_subject = ?`

func (q *queries) GetUserByProvider(ctx context.Context, provider, subject string) (userRow, error) {
	return scanUser(q.db.QueryRowContext(ctx, getUserByProvider, provider, subject))
}

const createUser = `INSERT INTO users (` + userColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (q *queries) CreateUser(ctx context.Context, u userRow) error {
	_, err := q.db.ExecContext(ctx, createUser,
		u.ID,
		u.FullName,
		u.Email,
		u.Username,
		u.PasswordHash,
		u.Provider,
		u.ProviderSubject,
		u.RefreshTokenHash,
		u.CreatedAt,
		u.UpdatedAt,
	)
	return err
}

const linkProvider = `UPDATE users SET provider = ?, provider_subject = ?, updated_at = ?
WHERE id = ? AND (provider IS NULL OR provider = '')`

func (q *queries) LinkProvider(ctx context.Context, id, provider, subject string, now int64) (int64, error) {
	return affected(q.db.ExecContext(ctx, linkProvider, provider, subject, now, id))
}

const setRefreshTokenHash = `UPDATE users SET refresh_token_hash = ?, updated_at = ? WHERE id = ?`

func (q *queries) SetRefreshTokenHash(ctx context.Context, id, hash string, now int64) (int64, error) {
	return affected(q.db.ExecContext(ctx, setRefreshTokenHash, hash, now, id))
}

const swapRefreshTokenHash = `UPDATE users SET refresh_token_hash = ?, updated_at = ?
WHERE id = ? AND refresh_token_hash = ? AND refresh_token_hash != ''`

func (q *queries) SwapRefreshTokenHash(ctx context.Context, id, expected, next string, now int64) (int64, error) {
	return affected(q.db.ExecContext(ctx, swapRefreshTokenHash, next, now, id, expected))
}

const userExists = `SELECT EXISTS (SELECT 1 FROM users WHERE id = ?)`

func (q *queries) UserExists(ctx context.Context, id string) (bool, error) {
	var ok bool
	err := q.db.QueryRowContext(ctx, userExists, id).Scan(&ok)
	return ok, err
}

const putEphemeral = `INSERT INTO ephemeral_tokens (key, value, expires_at) VALUES (?, ?, ?)
ON CONFLICT (key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`

func (q *queries) PutEphemeral(ctx context.Context, key, value string, expiresAt int64) error {
	_, err := q.db.ExecContext(ctx, putEphemeral, key, value, expiresAt)
	return err
}

const getEphemeral = `SELECT value FROM ephemeral_tokens WHERE key = ? AND expires_at > ?`

func (q *queries) GetEphemeral(ctx context.Context, key string, now int64) (string, error) {
	var v string
	err := q.db.QueryRowContext(ctx, getEphemeral, key, now).Scan(&v)
	return v, err
}

const deleteEphemeral = `DELETE FROM ephemeral_tokens WHERE key = ?`

func (q *queries) DeleteEphemeral(ctx context.Context, key string) error {
	_, err := q.db.ExecContext(ctx, deleteEphemeral, key)
	return err
}

// A single DELETE ... RETURNING statement is what makes Take atomic: SQLite
// runs it under one write lock, so only one caller gets the row back.
const takeEphemeral = `DELETE FROM ephemeral_tokens WHERE key = ? RETURNING value, expires_at`

func (q *queries) TakeEphemeral(ctx context.Context, key string) (string, int64, error) {
	var (
		v   string
		exp int64
	)
	err := q.db.QueryRowContext(ctx, takeEphemeral, key).Scan(&v, &exp)
	return v, exp, err
}

const deleteExpiredEphemeral = `DELETE FROM ephemeral_tokens WHERE expires_at <= ?`

func (q *queries) DeleteExpiredEphemeral(ctx context.Context, now int64) (int64, error) {
	return affected(q.db.ExecContext(ctx, deleteExpiredEphemeral, now))
}

func affected(res sql.Result, err error) (int64, error) {
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
