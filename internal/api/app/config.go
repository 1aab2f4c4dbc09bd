package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/coinpulse/coinpulse/pkg/httpx"
	"github.com/coinpulse/coinpulse/pkg/jwtx"
)

type Config struct {
	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8000)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Purge interval for the SQLite ephemeral store (default: 10m)

	Issuer          string        // Issuer claim for session tokens (default: coinpulse)
	Algorithm       string        // HS256 or EdDSA (default: HS256)
	AccessSecret    string        // HS256 secret for access tokens, at least 32 bytes
	RefreshSecret   string        // HS256 secret for refresh tokens, at least 32 bytes
	AccessKeyFile   string        // EdDSA PEM key for access tokens (default: keys/access.pem)
	RefreshKeyFile  string        // EdDSA PEM key for refresh tokens (default: keys/refresh.pem)
	AccessTokenTTL  time.Duration // default: 15m
	RefreshTokenTTL time.Duration // default: 10 days
	PepperFile      string        // Password pepper file (default: ./pepper)

	StoreDriver   string // sqlite or mongo (default: sqlite)
	DatabaseFile  string // SQLite file (default: ./coinpulse.db)
	MongoURI      string
	MongoDatabase string // default: coinpulse

	RedisAddr     string // Empty keeps the ephemeral store in SQLite
	RedisUsername string
	RedisPassword string
	RedisDB       int

	StoreTimeout    time.Duration // Bound on every store call (default: 5s)
	ProviderTimeout time.Duration // Bound on identity and market data calls (default: 10s)

	OAuthProvider     string // default: google
	OAuthClientID     string // Empty disables federated login
	OAuthClientSecret string
	OAuthRedirectURL  string
	OAuthAuthURL      string
	OAuthTokenURL     string
	OAuthJWKSURL      string
	OAuthIssuer       string
	OAuthScopes       []string
	OAuthStateTTL     time.Duration // default: 120s
	PostLoginRedirect string        // Optional frontend URL for the federated callback

	CoinGeckoURL    string
	CoinGeckoAPIKey string
	PriceCacheTTL   time.Duration // default: 60s
	WorkerInterval  time.Duration // Price refresh trigger interval for the worker (default: 1m)

	CORSOrigins  []string
	CookieSecure bool // default: true

	// TrustedProxies lists addresses or CIDRs whose X-Forwarded-For and
	// X-Real-IP headers are believed by the rate limiter.
	TrustedProxies []string
}

func LoadConfig() Config {
	cfg := Config{
		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8000),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 10*time.Minute),

		Issuer:          getEnvOrDefault("AUTH_ISSUER", "coinpulse"),
		Algorithm:       getEnvOrDefault("AUTH_ALGORITHM", jwtx.AlgorithmHS256),
		AccessSecret:    os.Getenv("ACCESS_TOKEN_SECRET"),
		RefreshSecret:   os.Getenv("REFRESH_TOKEN_SECRET"),
		AccessKeyFile:   getEnvOrDefault("AUTH_ACCESS_KEY_FILE", "keys/access.pem"),
		RefreshKeyFile:  getEnvOrDefault("AUTH_REFRESH_KEY_FILE", "keys/refresh.pem"),
		AccessTokenTTL:  getEnvDurationOrDefault("ACCESS_TOKEN_TTL", jwtx.DefaultAccessTokenTTL),
		RefreshTokenTTL: getEnvDurationOrDefault("REFRESH_TOKEN_TTL", jwtx.DefaultRefreshTokenTTL),
		PepperFile:      getEnvOrDefault("AUTH_PEPPER_FILE", "pepper"),

		StoreDriver:   strings.ToLower(getEnvOrDefault("STORE_DRIVER", "sqlite")),
		DatabaseFile:  getEnvOrDefault("DATABASE_FILE", "coinpulse.db"),
		MongoURI:      os.Getenv("MONGO_URI"),
		MongoDatabase: getEnvOrDefault("MONGO_DATABASE", "coinpulse"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisUsername: os.Getenv("REDIS_USERNAME"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvIntOrDefault("REDIS_DB", 0),

		StoreTimeout:    getEnvDurationOrDefault("STORE_TIMEOUT", 5*time.Second),
		ProviderTimeout: getEnvDurationOrDefault("PROVIDER_TIMEOUT", 10*time.Second),

		OAuthProvider:     strings.ToLower(getEnvOrDefault("OAUTH_PROVIDER", "google")),
		OAuthClientID:     os.Getenv("OAUTH_CLIENT_ID"),
		OAuthClientSecret: os.Getenv("OAUTH_CLIENT_SECRET"),
		OAuthRedirectURL:  os.Getenv("OAUTH_REDIRECT_URL"),
		OAuthAuthURL:      os.Getenv("OAUTH_AUTH_URL"),
		OAuthTokenURL:     os.Getenv("OAUTH_TOKEN_URL"),
		OAuthJWKSURL:      os.Getenv("OAUTH_JWKS_URL"),
		OAuthIssuer:       os.Getenv("OAUTH_ISSUER"),
		OAuthScopes:       getEnvListOrDefault("OAUTH_SCOPES", nil),
		OAuthStateTTL:     getEnvDurationOrDefault("OAUTH_STATE_TTL", 120*time.Second),
		PostLoginRedirect: os.Getenv("POST_LOGIN_REDIRECT_URL"),

		CoinGeckoURL:    os.Getenv("COINGECKO_URL"),
		CoinGeckoAPIKey: os.Getenv("COINGECKO_API_KEY"),
		PriceCacheTTL:   getEnvDurationOrDefault("PRICE_CACHE_TTL", 60*time.Second),
		WorkerInterval:  getEnvDurationOrDefault("WORKER_INTERVAL", time.Minute),

		CORSOrigins:  getEnvListOrDefault("CORS_ORIGIN", nil),
		CookieSecure: getEnvBoolOrDefault("COOKIE_SECURE", true),

		TrustedProxies: getEnvListOrDefault("RATELIMIT_TRUSTED_PROXIES", nil),
	}

	return cfg
}

// Validate reports settings that cannot work together.
func (c Config) Validate() error {
	var errs []error

	switch c.StoreDriver {
	case "sqlite":
	case "mongo":
		if c.MongoURI == "" {
			errs = append(errs, errors.New("MONGO_URI is required when STORE_DRIVER=mongo"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver))
	}

	switch c.Algorithm {
	case jwtx.AlgorithmHS256:
		if c.Env == "prod" && (c.AccessSecret == "" || c.RefreshSecret == "") {
			errs = append(errs, errors.New("ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET are required in prod"))
		}
		if c.AccessSecret != "" && c.AccessSecret == c.RefreshSecret {
			errs = append(errs, errors.New("ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET must differ"))
		}
	case jwtx.AlgorithmEdDSA:
		if filepath.Clean(c.AccessKeyFile) == filepath.Clean(c.RefreshKeyFile) {
			errs = append(errs, errors.New("AUTH_ACCESS_KEY_FILE and AUTH_REFRESH_KEY_FILE must differ"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported AUTH_ALGORITHM %q", c.Algorithm))
	}

	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= c.AccessTokenTTL {
		errs = append(errs, errors.New("REFRESH_TOKEN_TTL must be longer than ACCESS_TOKEN_TTL"))
	}
	if c.OAuthClientID != "" && (c.OAuthClientSecret == "" || c.OAuthRedirectURL == "") {
		errs = append(errs, errors.New("OAUTH_CLIENT_SECRET and OAUTH_REDIRECT_URL are required with OAUTH_CLIENT_ID"))
	}
	if _, err := httpx.ParseTrustedProxies(c.TrustedProxies); err != nil {
		errs = append(errs, fmt.Errorf("RATELIMIT_TRUSTED_PROXIES: %w", err))
	}

	return errors.Join(errs...)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Try parsing as integer seconds
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}

	return defaultValue
}

// getEnvListOrDefault splits a comma separated value, dropping blanks.
func getEnvListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
