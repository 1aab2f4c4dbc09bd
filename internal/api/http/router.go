package http

import (
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	"github.com/coinpulse/coinpulse/internal/api/service"
	"github.com/coinpulse/coinpulse/internal/api/store"
	"github.com/coinpulse/coinpulse/pkg/httpx"
	"github.com/coinpulse/coinpulse/pkg/slogx"

	_ "github.com/coinpulse/coinpulse/api" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// RouteLimits groups the rate limit profiles applied per route class.
type RouteLimits struct {
	Strict   httpx.RateLimitConfig
	Moderate httpx.RateLimitConfig
	Lenient  httpx.RateLimitConfig
	Public   httpx.RateLimitConfig

	// TrustedProxies are the peers whose forwarding headers are believed
	// when keying limits by client address. Empty means none.
	TrustedProxies []netip.Prefix
}

// DefaultRouteLimits reads the package-level profiles (which honour the
// RATELIMIT_* environment overrides).
func DefaultRouteLimits() RouteLimits {
	return RouteLimits{
		Strict:   httpx.StrictLimit,
		Moderate: httpx.ModerateLimit,
		Lenient:  httpx.LenientLimit,
		Public:   httpx.PublicLimit,
	}
}

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	Cookies CookieConfig
	Limits  RouteLimits

	Store     store.Store
	Ephemeral store.Ephemeral

	Sessions  *service.SessionService
	Users     *service.UserService
	Federated *service.FederatedService // nil disables the /v1/auth routes
	Prices    *service.PriceService

	// PostLoginRedirect, when set, is where the federated callback sends the
	// browser after setting the session cookies.
	PostLoginRedirect string
}

func NewRouter(buildVersion string, logger *slog.Logger, cors httpx.CORSConfig) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		buildVersion: buildVersion,
		startTime:    time.Now(),
		logger:       logger,
		Cookies:      CookieConfig{Secure: true},
		Limits:       DefaultRouteLimits(),
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
		httpx.Recover(),
		httpx.CORS(cors),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerUsers()
	r.registerData()
	r.registerFederated()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			Coinpulse API
//	@version		0.1.0
//	@description	Crypto price tracking backend: password and federated sign-in, rotating refresh tokens and cached market data.
//	@description
//	@description				Session tokens are returned both in the response body and as HttpOnly cookies (accessToken, refreshToken).
//
//	@host						localhost:8000
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT access token. Format: "Bearer {token}". The accessToken cookie takes precedence.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) authn() httpx.Middleware {
	return AuthnMiddleware(r.Sessions)
}

func (r *Router) registerUsers() {
	h := &UserHandler{
		Users:    r.Users,
		Sessions: r.Sessions,
		Cookies:  r.Cookies,
	}

	// Credential endpoints - strict rate limit by IP
	r.Mux.Handle("POST /v1/users/register",
		httpx.Chain(http.HandlerFunc(h.Register),
			httpx.RateLimitByIP(r.Limits.Strict, r.Limits.TrustedProxies...),
		),
	)
	r.Mux.Handle("POST /v1/users/login",
		httpx.Chain(http.HandlerFunc(h.Login),
			httpx.RateLimitByIP(r.Limits.Strict, r.Limits.TrustedProxies...),
		),
	)

	r.Mux.Handle("POST /v1/users/refresh-token",
		httpx.Chain(http.HandlerFunc(h.Refresh),
			httpx.RateLimitByIP(r.Limits.Moderate, r.Limits.TrustedProxies...),
		),
	)

	// Authenticated endpoints - lenient rate limit by user
	r.Mux.Handle("POST /v1/users/logout",
		httpx.Chain(http.HandlerFunc(h.Logout),
			r.authn(),
			httpx.RateLimitByUser(r.Limits.Lenient, r.Limits.TrustedProxies...),
		),
	)
	r.Mux.Handle("GET /v1/users/me",
		httpx.Chain(http.HandlerFunc(h.Me),
			r.authn(),
			httpx.RateLimitByUser(r.Limits.Lenient, r.Limits.TrustedProxies...),
		),
	)
}

func (r *Router) registerData() {
	if r.Prices == nil {
		return
	}
	h := &StatsHandler{Prices: r.Prices}

	r.Mux.Handle("POST /v1/data/stats",
		httpx.Chain(h,
			r.authn(),
			httpx.RateLimitByUser(r.Limits.Moderate, r.Limits.TrustedProxies...),
		),
	)
}

func (r *Router) registerFederated() {
	if r.Federated == nil {
		return
	}
	h := &FederatedHandler{
		Federated:         r.Federated,
		Cookies:           r.Cookies,
		PostLoginRedirect: r.PostLoginRedirect,
	}

	r.Mux.Handle("GET /v1/auth/{provider}",
		httpx.Chain(http.HandlerFunc(h.Begin),
			httpx.RateLimitByIP(r.Limits.Moderate, r.Limits.TrustedProxies...),
		),
	)
	r.Mux.Handle("GET /v1/auth/{provider}/callback",
		httpx.Chain(http.HandlerFunc(h.Callback),
			httpx.RateLimitByIP(r.Limits.Strict, r.Limits.TrustedProxies...),
		),
	)
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(r.Limits.Public, r.Limits.TrustedProxies...),
		),
	)

	checks := map[string]Pinger{}
	if r.Store != nil {
		checks["database"] = r.Store
	}
	if r.Ephemeral != nil {
		checks["ephemeral"] = r.Ephemeral
	}
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, checks),
			httpx.RateLimitByIP(r.Limits.Public, r.Limits.TrustedProxies...),
		),
	)
}
