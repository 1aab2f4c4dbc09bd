package sqlite

import (
	"context"
	"time"

	"github.com/coinpulse/coinpulse/internal/api/domain"
	"github.com/coinpulse/coinpulse/internal/api/store"
)

type usersRepo struct {
	q *queries
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	row, err := r.q.GetUserByID(ctx, id)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return mapUser(row), nil
}

func (r *usersRepo) GetUserByIdentifier(ctx context.Context, username, email string) (domain.User, error) {
	if username == "" && email == "" {
		return domain.User{}, store.ErrNotFound
	}
	row, err := r.q.GetUserByIdentifier(ctx, username, email)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return mapUser(row), nil
}

func (r *usersRepo) GetUserByProvider(ctx context.Context, provider, subject string) (domain.User, error) {
	row, err := r.q.GetUserByProvider(ctx, provider, subject)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return mapUser(row), nil
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	now := time.Now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = u.CreatedAt
	}

	err := r.q.CreateUser(ctx, userRow{
		ID:               u.ID,
		FullName:         u.FullName,
		Email:            u.Email,
		Username:         u.Username,
		PasswordHash:     u.PasswordHash,
		Provider:         mapStringNull(u.Provider),
		ProviderSubject:  mapStringNull(u.ProviderSubject),
		RefreshTokenHash: u.RefreshTokenHash,
		CreatedAt:        toMillis(u.CreatedAt),
		UpdatedAt:        toMillis(u.UpdatedAt),
	})
	return mapConstraint(err)
}

func (r *usersRepo) LinkProvider(ctx context.Context, userID, provider, subject string) error {
	n, err := r.q.LinkProvider(ctx, userID, provider, subject, toMillis(time.Now()))
	if err != nil {
		return mapConstraint(err)
	}
	if n > 0 {
		return nil
	}
	ok, err := r.q.UserExists(ctx, userID)
	switch {
	case err != nil:
		return err
	case ok:
		return store.ErrConflict
	default:
		return store.ErrNotFound
	}
}

func (r *usersRepo) SetRefreshToken(ctx context.Context, userID, hash string) error {
	n, err := r.q.SetRefreshTokenHash(ctx, userID, hash, toMillis(time.Now()))
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *usersRepo) SwapRefreshToken(ctx context.Context, userID, expected, next string) error {
	n, err := r.q.SwapRefreshTokenHash(ctx, userID, expected, next, toMillis(time.Now()))
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	exists, err := r.q.UserExists(ctx, userID)
	if err != nil {
		return err
	}
	if !exists {
		return store.ErrNotFound
	}
	return store.ErrConflict
}

func mapUser(row userRow) domain.User {
	return domain.User{
		ID:               row.ID,
		FullName:         row.FullName,
		Email:            row.Email,
		Username:         row.Username,
		PasswordHash:     row.PasswordHash,
		Provider:         mapNullString(row.Provider),
		ProviderSubject:  mapNullString(row.ProviderSubject),
		RefreshTokenHash: row.RefreshTokenHash,
		CreatedAt:        fromMillis(row.CreatedAt),
		UpdatedAt:        fromMillis(row.UpdatedAt),
	}
}
