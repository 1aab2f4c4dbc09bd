package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coinpulse/coinpulse/internal/api/domain"
	httpapi "github.com/coinpulse/coinpulse/internal/api/http"
	"github.com/coinpulse/coinpulse/internal/api/service"
	"github.com/coinpulse/coinpulse/internal/api/store/drivers/sqlite"
	"github.com/coinpulse/coinpulse/pkg/httpx"
	"github.com/coinpulse/coinpulse/pkg/jwtx"
	"github.com/coinpulse/coinpulse/pkg/slogx"
	"github.com/stretchr/testify/require"
)

const testOrigin = "https://app.example.com"

var generousLimit = httpx.RateLimitConfig{RequestsPerWindow: 1000, Window: time.Minute, Burst: 1000}

// stubProvider stands in for an OpenID provider: the authorization code is
// looked up in a table of identities.
type stubProvider struct {
	mu         sync.Mutex
	identities map[string]stubIdentity
}

type stubIdentity struct {
	identity domain.ExternalIdentity
	nonce    string
}

func (p *stubProvider) Name() string { return "google" }

func (p *stubProvider) AuthCodeURL(state, nonce string, offline bool) string {
	q := url.Values{}
	q.Set("client_id", "client-1")
	q.Set("response_type", "code")
	q.Set("state", state)
	q.Set("nonce", nonce)
	if offline {
		q.Set("access_type", "offline")
		q.Set("prompt", "consent")
	}
	return "https://idp.example.com/authorize?" + q.Encode()
}

func (p *stubProvider) Exchange(_ context.Context, code string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.identities[code]; !ok {
		return "", errors.New("invalid_grant")
	}
	return code, nil
}

func (p *stubProvider) VerifyIDToken(_ context.Context, raw string) (domain.ExternalIdentity, string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.identities[raw]
	return id.identity, id.nonce, nil
}

func (p *stubProvider) grant(code string, id domain.ExternalIdentity, nonce string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.identities[code] = stubIdentity{identity: id, nonce: nonce}
}

type testEnv struct {
	router   *httpapi.Router
	provider *stubProvider
	upstream *httptest.Server
}

func newTestEnv(t *testing.T, tune ...func(r *httpapi.Router)) *testEnv {
	t.Helper()

	st, err := sqlite.NewStore(sqlite.DSN(filepath.Join(t.TempDir(), "coinpulse.db")))
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())
	t.Cleanup(func() { _ = st.Close() })

	access, err := jwtx.NewSignerHS256("access", []byte(strings.Repeat("a", 32)))
	require.NoError(t, err)
	refresh, err := jwtx.NewSignerHS256("refresh", []byte(strings.Repeat("r", 32)))
	require.NoError(t, err)
	accessVerifier, err := jwtx.NewVerifier("coinpulse", jwtx.UseAccess, []jwtx.Signer{access})
	require.NoError(t, err)
	refreshVerifier, err := jwtx.NewVerifier("coinpulse", jwtx.UseRefresh, []jwtx.Signer{refresh})
	require.NoError(t, err)

	sessions := &service.SessionService{
		Users:           st.Users(),
		AccessSigner:    access,
		RefreshSigner:   refresh,
		AccessVerifier:  accessVerifier,
		RefreshVerifier: refreshVerifier,
		Issuer:          "coinpulse",
		AccessTTL:       jwtx.DefaultAccessTokenTTL,
		RefreshTTL:      jwtx.DefaultRefreshTokenTTL,
	}

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]domain.CoinMarket{{ID: "bitcoin", Symbol: "btc", Name: "Bitcoin", CurrentPrice: 65000}})
	}))
	t.Cleanup(upstream.Close)

	provider := &stubProvider{identities: make(map[string]stubIdentity)}
	eph := st.Ephemeral()

	r := httpapi.NewRouter("test", slogx.Discard(), httpx.CORSConfig{
		AllowedOrigins:   []string{testOrigin},
		AllowCredentials: true,
	})
	r.Limits = httpapi.RouteLimits{Strict: generousLimit, Moderate: generousLimit, Lenient: generousLimit, Public: generousLimit}
	r.Store = st
	r.Ephemeral = eph
	r.Sessions = sessions
	r.Users = &service.UserService{Users: st.Users(), Sessions: sessions}
	r.Federated = &service.FederatedService{
		Providers: map[string]service.IdentityProvider{"google": provider},
		Ephemeral: eph,
		Users:     st.Users(),
		Sessions:  sessions,
	}
	r.Prices = &service.PriceService{
		Cache:      eph,
		HTTPClient: upstream.Client(),
		BaseURL:    upstream.URL,
	}
	for _, fn := range tune {
		fn(r)
	}
	r.ApplyRoutes()

	return &testEnv{router: r, provider: provider, upstream: upstream}
}

type request struct {
	method  string
	path    string
	body    any
	cookies []*http.Cookie
	bearer  string
	headers map[string]string
}

func (e *testEnv) do(t *testing.T, req request) *http.Response {
	t.Helper()

	var body bytes.Buffer
	if req.body != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(req.body))
	}

	r := httptest.NewRequest(req.method, req.path, &body)
	if req.body != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	for _, c := range req.cookies {
		r.AddCookie(c)
	}
	if req.bearer != "" {
		r.Header.Set("Authorization", "Bearer "+req.bearer)
	}
	for k, v := range req.headers {
		r.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, r)
	return rec.Result()
}

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Details json.RawMessage `json:"details"`
}

func decode(t *testing.T, resp *http.Response) envelope {
	t.Helper()
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	require.Equal(t, resp.StatusCode, env.Status)
	return env
}

func cookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func (e *testEnv) register(t *testing.T, username string) {
	t.Helper()
	resp := e.do(t, request{method: http.MethodPost, path: "/v1/users/register", body: httpapi.RegisterRequest{
		FullName: "Test " + username,
		Email:    username + "@example.com",
		Username: username,
		Password: "password-" + username,
	}})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()
}

func (e *testEnv) login(t *testing.T, username string) (*http.Response, httpapi.SessionResponse) {
	t.Helper()
	resp := e.do(t, request{method: http.MethodPost, path: "/v1/users/login", body: httpapi.LoginRequest{
		Username: username,
		Password: "password-" + username,
	}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	env := decode(t, resp)
	var sess httpapi.SessionResponse
	require.NoError(t, json.Unmarshal(env.Data, &sess))
	return resp, sess
}
