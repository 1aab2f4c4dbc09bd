package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/coinpulse/coinpulse/internal/api/domain"
	"github.com/coinpulse/coinpulse/internal/api/store"
	"github.com/coinpulse/coinpulse/pkg/cryptox"
	"github.com/coinpulse/coinpulse/pkg/jwtx"
	"github.com/coinpulse/coinpulse/pkg/slogx"
)

// SessionService issues, validates, rotates and revokes session tokens.
// The only state it touches is the user's refresh slot in the identity store;
// the slot holds a fingerprint of the refresh token, never the token itself.
type SessionService struct {
	Users store.Users

	AccessSigner    jwtx.Signer
	RefreshSigner   jwtx.Signer
	AccessVerifier  jwtx.Verifier
	RefreshVerifier jwtx.Verifier

	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// StoreTimeout bounds every identity store call.
	StoreTimeout time.Duration

	// Now defaults to time.Now.
	Now func() time.Time
}

func (s *SessionService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Issue mints a token pair for an already authenticated user and makes the
// new refresh token the only valid one. Any previously issued refresh token
// stops matching the slot.
func (s *SessionService) Issue(ctx context.Context, user domain.User) (domain.TokenPair, error) {
	l := slogx.FromContext(ctx)

	pair, err := s.mint(user)
	if err != nil {
		l.Error("failed to sign session tokens", slog.String("user_id", user.ID), slog.Any("error", err))
		return domain.TokenPair{}, internalError(err)
	}

	sctx, cancel := withTimeout(ctx, s.StoreTimeout)
	defer cancel()

	if err := s.Users.SetRefreshToken(sctx, user.ID, cryptox.FingerprintToken(pair.RefreshToken)); err != nil {
		l.Error("failed to persist refresh token", slog.String("user_id", user.ID), slog.Any("error", err))
		return domain.TokenPair{}, internalError(err)
	}

	return pair, nil
}

// Authenticate verifies an access token and resolves its subject. The
// returned user is safe to expose (no password hash, no refresh slot).
func (s *SessionService) Authenticate(ctx context.Context, rawAccess string) (domain.User, error) {
	if rawAccess == "" {
		return domain.User{}, unauthenticated("unauthorized request")
	}

	claims, err := s.AccessVerifier.Verify(rawAccess)
	if err != nil {
		if errors.Is(err, jwtx.ErrExpired) {
			return domain.User{}, invalidToken("access token expired", err)
		}
		return domain.User{}, invalidToken("invalid access token", err)
	}

	sctx, cancel := withTimeout(ctx, s.StoreTimeout)
	defer cancel()

	user, err := s.Users.GetUserByID(sctx, claims.Subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, invalidToken("invalid access token", err)
		}
		return domain.User{}, internalError(err)
	}

	user.PasswordHash = ""
	user.RefreshTokenHash = ""
	return user, nil
}

// Refresh exchanges the current refresh token for a new pair. A token that
// verifies but is not the one in the slot (already rotated, or logged out)
// fails with ErrTokenReuse.
func (s *SessionService) Refresh(ctx context.Context, rawRefresh string) (domain.Session, error) {
	l := slogx.FromContext(ctx)

	if rawRefresh == "" {
		return domain.Session{}, unauthenticated("refresh token is required")
	}

	claims, err := s.RefreshVerifier.Verify(rawRefresh)
	if err != nil {
		return domain.Session{}, invalidToken("invalid refresh token", err)
	}

	sctx, cancel := withTimeout(ctx, s.StoreTimeout)
	defer cancel()

	user, err := s.Users.GetUserByID(sctx, claims.Subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Session{}, invalidToken("invalid refresh token", err)
		}
		l.Error("refresh: user lookup failed", slog.String("user_id", claims.Subject), slog.Any("error", err))
		return domain.Session{}, unauthorized("unable to refresh session", err)
	}

	presented := cryptox.FingerprintToken(rawRefresh)
	if user.RefreshTokenHash == "" || !cryptox.Equal(presented, user.RefreshTokenHash) {
		l.Warn("refresh token reuse detected", slog.String("user_id", user.ID))
		return domain.Session{}, reuseError()
	}

	pair, err := s.mint(user)
	if err != nil {
		l.Error("refresh: failed to sign session tokens", slog.String("user_id", user.ID), slog.Any("error", err))
		return domain.Session{}, unauthorized("unable to refresh session", err)
	}

	// Compare-and-swap on the slot: of two concurrent refreshes with the
	// same token only one can move the slot forward.
	err = s.Users.SwapRefreshToken(sctx, user.ID, presented, cryptox.FingerprintToken(pair.RefreshToken))
	switch {
	case err == nil:
	case errors.Is(err, store.ErrConflict):
		l.Warn("refresh token reuse detected during rotation", slog.String("user_id", user.ID))
		return domain.Session{}, reuseError()
	case errors.Is(err, store.ErrNotFound):
		return domain.Session{}, invalidToken("invalid refresh token", err)
	default:
		l.Error("refresh: failed to rotate refresh token", slog.String("user_id", user.ID), slog.Any("error", err))
		return domain.Session{}, unauthorized("unable to refresh session", err)
	}

	user.PasswordHash = ""
	user.RefreshTokenHash = ""
	return domain.Session{User: user, Tokens: pair}, nil
}

// Logout empties the refresh slot. Every refresh token issued so far for
// the user is dead afterwards.
func (s *SessionService) Logout(ctx context.Context, userID string) error {
	sctx, cancel := withTimeout(ctx, s.StoreTimeout)
	defer cancel()

	if err := s.Users.SetRefreshToken(sctx, userID, ""); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return invalidToken("invalid access token", err)
		}
		slogx.FromContext(ctx).Error("logout: failed to clear refresh token", slog.String("user_id", userID), slog.Any("error", err))
		return internalError(err)
	}
	return nil
}

func (s *SessionService) mint(user domain.User) (domain.TokenPair, error) {
	now := s.now()

	access := jwtx.NewAccessClaims(user.ID, user.Username, user.Email, user.FullName, s.Issuer, s.AccessTTL, now)
	accessToken, err := s.AccessSigner.Sign(access)
	if err != nil {
		return domain.TokenPair{}, err
	}

	refresh := jwtx.NewRefreshClaims(user.ID, s.Issuer, s.RefreshTTL, now)
	refreshToken, err := s.RefreshSigner.Sign(refresh)
	if err != nil {
		return domain.TokenPair{}, err
	}

	return domain.TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		AccessExpiresAt:  access.ExpiresAt.Time,
		RefreshExpiresAt: refresh.ExpiresAt.Time,
	}, nil
}

func reuseError() *Error {
	return &Error{
		Kind:    KindInvalidToken,
		Reason:  ReasonTokenReuse,
		Message: "refresh token is expired or used",
	}
}
