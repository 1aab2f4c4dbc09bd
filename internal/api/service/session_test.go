package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/coinpulse/coinpulse/internal/api/domain"
	"github.com/coinpulse/coinpulse/internal/api/service"
	"github.com/coinpulse/coinpulse/pkg/idx"
	"github.com/coinpulse/coinpulse/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

func seedUser(t *testing.T, s interface {
	CreateUser(context.Context, domain.User) error
}, username string) domain.User {
	t.Helper()
	u := domain.User{
		ID:           idx.New().String(),
		FullName:     "Test " + username,
		Email:        username + "@example.com",
		Username:     username,
		PasswordHash: "unused",
	}
	require.NoError(t, s.CreateUser(context.Background(), u))
	return u
}

func TestSession_IssueThenAuthenticate(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	sessions := newSessionService(t, st.Users())
	user := seedUser(t, st.Users(), "alice")

	pair, err := sessions.Issue(ctx, user)
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	require.True(t, pair.RefreshExpiresAt.After(pair.AccessExpiresAt))

	got, err := sessions.Authenticate(ctx, pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, user.ID, got.ID)
	require.Equal(t, "alice", got.Username)
	require.Empty(t, got.PasswordHash)
	require.Empty(t, got.RefreshTokenHash)
}

func TestSession_AuthenticateRejects(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	sessions := newSessionService(t, st.Users())
	user := seedUser(t, st.Users(), "alice")

	t.Run("empty token", func(t *testing.T) {
		_, err := sessions.Authenticate(ctx, "")
		require.ErrorIs(t, err, service.ErrUnauthenticated)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := sessions.Authenticate(ctx, "not-a-jwt")
		require.ErrorIs(t, err, service.ErrInvalidToken)
	})

	t.Run("refresh token used as access", func(t *testing.T) {
		pair, err := sessions.Issue(ctx, user)
		require.NoError(t, err)
		_, err = sessions.Authenticate(ctx, pair.RefreshToken)
		require.ErrorIs(t, err, service.ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		past := newSessionService(t, st.Users())
		past.Now = func() time.Time { return time.Now().Add(-time.Hour) }

		pair, err := past.Issue(ctx, user)
		require.NoError(t, err)

		_, err = sessions.Authenticate(ctx, pair.AccessToken)
		require.ErrorIs(t, err, service.ErrInvalidToken)
		require.Equal(t, "access token expired", service.AsError(err).Message)
	})

	t.Run("unknown subject", func(t *testing.T) {
		claims := jwtx.NewAccessClaims(idx.New().String(), "ghost", "ghost@example.com", "", testIssuer, time.Minute, time.Now())
		raw, err := sessions.AccessSigner.Sign(claims)
		require.NoError(t, err)

		_, err = sessions.Authenticate(ctx, raw)
		require.ErrorIs(t, err, service.ErrInvalidToken)
	})
}

func TestSession_RefreshRotates(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	sessions := newSessionService(t, st.Users())
	user := seedUser(t, st.Users(), "alice")

	first, err := sessions.Issue(ctx, user)
	require.NoError(t, err)

	next, err := sessions.Refresh(ctx, first.RefreshToken)
	require.NoError(t, err)
	require.Equal(t, user.ID, next.User.ID)
	require.NotEqual(t, first.RefreshToken, next.Tokens.RefreshToken)

	// The rotated-out token is dead.
	_, err = sessions.Refresh(ctx, first.RefreshToken)
	require.ErrorIs(t, err, service.ErrTokenReuse)
	require.ErrorIs(t, err, service.ErrInvalidToken)

	// The new one still works.
	_, err = sessions.Refresh(ctx, next.Tokens.RefreshToken)
	require.NoError(t, err)
}

func TestSession_NewLoginInvalidatesOlderRefreshToken(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	sessions := newSessionService(t, st.Users())
	user := seedUser(t, st.Users(), "alice")

	old, err := sessions.Issue(ctx, user)
	require.NoError(t, err)
	_, err = sessions.Issue(ctx, user)
	require.NoError(t, err)

	_, err = sessions.Refresh(ctx, old.RefreshToken)
	require.ErrorIs(t, err, service.ErrTokenReuse)
}

func TestSession_ConcurrentRefreshHasOneWinner(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	sessions := newSessionService(t, st.Users())
	user := seedUser(t, st.Users(), "alice")

	pair, err := sessions.Issue(ctx, user)
	require.NoError(t, err)

	const n = 8
	errs := make(chan error, n)
	for range n {
		go func() {
			_, err := sessions.Refresh(ctx, pair.RefreshToken)
			errs <- err
		}()
	}

	var ok, reused int
	for range n {
		err := <-errs
		switch {
		case err == nil:
			ok++
		case errors.Is(err, service.ErrTokenReuse):
			reused++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, ok)
	require.Equal(t, n-1, reused)
}

func TestSession_LogoutKillsRefreshToken(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	sessions := newSessionService(t, st.Users())
	user := seedUser(t, st.Users(), "alice")

	pair, err := sessions.Issue(ctx, user)
	require.NoError(t, err)

	require.NoError(t, sessions.Logout(ctx, user.ID))

	_, err = sessions.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, service.ErrInvalidToken)
}

func TestSession_RefreshRejects(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	sessions := newSessionService(t, st.Users())
	user := seedUser(t, st.Users(), "alice")

	t.Run("empty token", func(t *testing.T) {
		_, err := sessions.Refresh(ctx, "")
		require.ErrorIs(t, err, service.ErrUnauthenticated)
	})

	t.Run("access token", func(t *testing.T) {
		pair, err := sessions.Issue(ctx, user)
		require.NoError(t, err)

		_, err = sessions.Refresh(ctx, pair.AccessToken)
		require.ErrorIs(t, err, service.ErrInvalidToken)
		require.NotErrorIs(t, err, service.ErrTokenReuse)
	})

	t.Run("expired", func(t *testing.T) {
		past := newSessionService(t, st.Users())
		past.Now = func() time.Time { return time.Now().Add(-past.RefreshTTL - time.Hour) }

		// The slot holds this token, so only expiry can reject it.
		pair, err := past.Issue(ctx, user)
		require.NoError(t, err)

		_, err = sessions.Refresh(ctx, pair.RefreshToken)
		require.ErrorIs(t, err, service.ErrInvalidToken)
		require.NotErrorIs(t, err, service.ErrTokenReuse)
		require.ErrorIs(t, err, jwtx.ErrExpired)
	})

	t.Run("unknown subject", func(t *testing.T) {
		claims := jwtx.NewRefreshClaims(idx.New().String(), testIssuer, time.Hour, time.Now())
		raw, err := sessions.RefreshSigner.Sign(claims)
		require.NoError(t, err)

		_, err = sessions.Refresh(ctx, raw)
		require.ErrorIs(t, err, service.ErrInvalidToken)
		require.NotErrorIs(t, err, service.ErrTokenReuse)
	})
}

func TestSession_SlotWriteFailures(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	user := seedUser(t, st.Users(), "alice")
	diskFull := errors.New("disk full")

	t.Run("issue is internal", func(t *testing.T) {
		sessions := newSessionService(t, &failingUsers{Users: st.Users(), setErr: diskFull})

		pair, err := sessions.Issue(ctx, user)
		require.ErrorIs(t, err, service.ErrInternal)
		require.ErrorIs(t, err, diskFull)
		require.Empty(t, pair.AccessToken)
		require.Empty(t, pair.RefreshToken)
	})

	t.Run("logout is internal", func(t *testing.T) {
		sessions := newSessionService(t, &failingUsers{Users: st.Users(), setErr: diskFull})

		err := sessions.Logout(ctx, user.ID)
		require.ErrorIs(t, err, service.ErrInternal)
		require.ErrorIs(t, err, diskFull)
	})

	t.Run("refresh is unauthorized and keeps the slot", func(t *testing.T) {
		pair, err := newSessionService(t, st.Users()).Issue(ctx, user)
		require.NoError(t, err)

		broken := newSessionService(t, &failingUsers{Users: st.Users(), swapErr: diskFull})
		_, err = broken.Refresh(ctx, pair.RefreshToken)
		require.ErrorIs(t, err, service.ErrUnauthorized)

		_, err = newSessionService(t, st.Users()).Refresh(ctx, pair.RefreshToken)
		require.NoError(t, err)
	})
}
