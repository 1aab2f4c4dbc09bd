package service_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coinpulse/coinpulse/internal/api/service"
	"github.com/coinpulse/coinpulse/internal/api/store"
	"github.com/coinpulse/coinpulse/internal/api/store/drivers/sqlite"
	"github.com/coinpulse/coinpulse/pkg/jwtx"
	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/stretchr/testify/require"
)

const testIssuer = "coinpulse-test"

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.NewStore(sqlite.DSN(filepath.Join(t.TempDir(), "coinpulse.db")))
	require.NoError(t, err)
	require.NoError(t, s.ApplyMigrations())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newSessionService(t *testing.T, users store.Users) *service.SessionService {
	t.Helper()

	access, err := jwtx.NewSignerHS256("access", []byte(strings.Repeat("a", jwtx.MinHMACSecretSize)))
	require.NoError(t, err)
	refresh, err := jwtx.NewSignerHS256("refresh", []byte(strings.Repeat("r", jwtx.MinHMACSecretSize)))
	require.NoError(t, err)

	accessVerifier, err := jwtx.NewVerifier(testIssuer, jwtx.UseAccess, []jwtx.Signer{access})
	require.NoError(t, err)
	refreshVerifier, err := jwtx.NewVerifier(testIssuer, jwtx.UseRefresh, []jwtx.Signer{refresh})
	require.NoError(t, err)

	return &service.SessionService{
		Users:           users,
		AccessSigner:    access,
		RefreshSigner:   refresh,
		AccessVerifier:  accessVerifier,
		RefreshVerifier: refreshVerifier,
		Issuer:          testIssuer,
		AccessTTL:       jwtx.DefaultAccessTokenTTL,
		RefreshTTL:      jwtx.DefaultRefreshTokenTTL,
		StoreTimeout:    5 * time.Second,
	}
}

// failingUsers wraps a real user store and fails the refresh slot writes
// it is told to.
type failingUsers struct {
	store.Users
	setErr  error
	swapErr error
}

func (f *failingUsers) SetRefreshToken(ctx context.Context, userID, hash string) error {
	if f.setErr != nil {
		return f.setErr
	}
	return f.Users.SetRefreshToken(ctx, userID, hash)
}

func (f *failingUsers) SwapRefreshToken(ctx context.Context, userID, expected, next string) error {
	if f.swapErr != nil {
		return f.swapErr
	}
	return f.Users.SwapRefreshToken(ctx, userID, expected, next)
}

// countingEphemeral records how many calls reach the wrapped store.
type countingEphemeral struct {
	store.Ephemeral
	calls atomic.Int64
}

func (c *countingEphemeral) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	c.calls.Add(1)
	return c.Ephemeral.Set(ctx, key, value, ttl)
}

func (c *countingEphemeral) Get(ctx context.Context, key string) (string, error) {
	c.calls.Add(1)
	return c.Ephemeral.Get(ctx, key)
}

func (c *countingEphemeral) Delete(ctx context.Context, key string) error {
	c.calls.Add(1)
	return c.Ephemeral.Delete(ctx, key)
}

func (c *countingEphemeral) Take(ctx context.Context, key string) (string, error) {
	c.calls.Add(1)
	return c.Ephemeral.Take(ctx, key)
}

// fakeIdP is a minimal OpenID provider: a JWKS endpoint and a token
// endpoint that answers with ID tokens registered per authorization code.
type fakeIdP struct {
	t        *testing.T
	server   *httptest.Server
	key      *rsa.PrivateKey
	clientID string

	mu     sync.Mutex
	grants map[string]idTokenGrant
	delay  time.Duration
}

type idTokenGrant struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
	Nonce         string
	Audience      string
}

func newFakeIdP(t *testing.T) *fakeIdP {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	idp := &fakeIdP{
		t:        t,
		key:      key,
		clientID: "client-1",
		grants:   make(map[string]idTokenGrant),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /jwks", idp.handleJWKS)
	mux.HandleFunc("POST /token", idp.handleToken)
	idp.server = httptest.NewServer(mux)
	t.Cleanup(idp.server.Close)

	return idp
}

func (f *fakeIdP) issuer() string { return f.server.URL }

func (f *fakeIdP) provider(t *testing.T) *service.OIDCProvider {
	t.Helper()
	p, err := service.NewOIDCProvider(service.OIDCConfig{
		Name:         "google",
		ClientID:     f.clientID,
		ClientSecret: "secret-1",
		RedirectURL:  "http://localhost/v1/auth/google/callback",
		AuthURL:      f.server.URL + "/authorize",
		TokenURL:     f.server.URL + "/token",
		JWKSURL:      f.server.URL + "/jwks",
		Issuer:       f.issuer(),
		HTTPClient:   f.server.Client(),
	})
	require.NoError(t, err)
	return p
}

// slowDown makes the token endpoint wait d before answering.
func (f *fakeIdP) slowDown(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delay = d
}

// grant makes code redeemable for an ID token with the given claims.
func (f *fakeIdP) grant(code string, g idTokenGrant) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.grants[code] = g
}

func (f *fakeIdP) handleJWKS(w http.ResponseWriter, _ *http.Request) {
	set := jose.JSONWebKeySet{Keys: []jose.JSONWebKey{{
		Key:       &f.key.PublicKey,
		KeyID:     "k1",
		Algorithm: string(jose.RS256),
		Use:       "sig",
	}}}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(set)
}

func (f *fakeIdP) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if r.PostForm.Get("client_id") != f.clientID || r.PostForm.Get("client_secret") != "secret-1" {
		http.Error(w, `{"error":"invalid_client"}`, http.StatusUnauthorized)
		return
	}

	f.mu.Lock()
	g, ok := f.grants[r.PostForm.Get("code")]
	delay := f.delay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	if !ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
		return
	}

	idToken := f.sign(g)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"access_token": "provider-access-token",
		"token_type":   "Bearer",
		"expires_in":   3600,
		"id_token":     idToken,
	})
}

func (f *fakeIdP) sign(g idTokenGrant) string {
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.RS256, Key: jose.JSONWebKey{Key: f.key, KeyID: "k1"}},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	require.NoError(f.t, err)

	aud := g.Audience
	if aud == "" {
		aud = f.clientID
	}
	now := time.Now()
	std := jwt.Claims{
		Issuer:   f.issuer(),
		Subject:  g.Subject,
		Audience: jwt.Audience{aud},
		IssuedAt: jwt.NewNumericDate(now),
		Expiry:   jwt.NewNumericDate(now.Add(time.Hour)),
	}
	extra := map[string]any{
		"nonce":          g.Nonce,
		"email":          g.Email,
		"email_verified": g.EmailVerified,
		"name":           g.Name,
	}

	raw, err := jwt.Signed(signer).Claims(std).Claims(extra).Serialize()
	require.NoError(f.t, err)
	return raw
}
