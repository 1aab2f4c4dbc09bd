package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "github.com/coinpulse/coinpulse/internal/api/http"
	"github.com/coinpulse/coinpulse/internal/api/service"
	"github.com/coinpulse/coinpulse/internal/api/store"
	"github.com/coinpulse/coinpulse/internal/api/store/drivers/sqlite"
	"github.com/coinpulse/coinpulse/pkg/cryptox"
	"github.com/coinpulse/coinpulse/pkg/httpx"
	"github.com/coinpulse/coinpulse/pkg/slogx"
)

// BuildVersion is overridden at build time via -ldflags.
var BuildVersion = "v0.1.0"

// Application wires the coinpulse API together.
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db        store.Store
	ephemeral store.Ephemeral
	closers   []func() error // extra resources opened for the ephemeral store
	events    service.Subscriber

	// Services
	sessionService      *service.SessionService
	userService         *service.UserService
	federatedService    *service.FederatedService
	priceService        *service.PriceService
	housekeepingService *service.HousekeepingService // nil when Redis expires keys

	// HTTP server
	server *http.Server
	router *httpapi.Router

	stopEvents context.CancelFunc
	eventsDone chan struct{}
}

// New creates a new Application instance with all dependencies initialized
func New(cfg Config) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	app := &Application{
		cfg:    cfg,
		logger: NewLogger(cfg),
	}

	if err := cryptox.LoadPepper(cfg.PepperFile); err != nil {
		return nil, fmt.Errorf("failed to load pepper: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.initDatabase(ctx); err != nil {
		return nil, err
	}
	if err := app.initEphemeral(ctx); err != nil {
		app.closeStores()
		return nil, err
	}

	keys, err := InitSessionKeys(cfg, app.logger)
	if err != nil {
		app.closeStores()
		return nil, fmt.Errorf("failed to initialize session keys: %w", err)
	}

	if err := app.initServices(keys); err != nil {
		app.closeStores()
		return nil, err
	}
	app.initHTTP()

	return app, nil
}

// NewLogger builds the process logger from cfg.
func NewLogger(cfg Config) *slog.Logger {
	return slogx.New(slogx.Config{
		Service: "coinpulse-api",
		Version: BuildVersion,
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
	})
}

// Handler exposes the router, mainly for tests.
func (app *Application) Handler() http.Handler { return app.router }

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	if app.housekeepingService != nil {
		app.housekeepingService.Start()
	}
	app.startEvents()

	app.logger.Info("coinpulse api starting", "port", app.cfg.Port, "version", BuildVersion)

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	// Setup signal handling for graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Block until we receive a shutdown signal or server error
	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down coinpulse api...")

	// Give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	if app.stopEvents != nil {
		app.stopEvents()
		<-app.eventsDone
	}
	if app.housekeepingService != nil {
		app.housekeepingService.Stop()
	}

	if err := app.closeStores(); err != nil {
		return err
	}

	app.logger.Info("coinpulse api stopped")
	return nil
}

func (app *Application) closeStores() error {
	var errs []error
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i](); err != nil {
			app.logger.Error("error closing store", "error", err)
			errs = append(errs, err)
		}
	}
	app.closers = nil
	return errors.Join(errs...)
}

// initDatabase opens the identity store and applies migrations
func (app *Application) initDatabase(ctx context.Context) error {
	db, err := OpenStore(ctx, app.cfg)
	if err != nil {
		return err
	}
	app.db = db
	app.closers = append(app.closers, db.Close)

	if err := db.ApplyMigrations(); err != nil {
		app.closeStores()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully", "driver", app.cfg.StoreDriver)
	return nil
}

// initEphemeral picks Redis when configured, else the SQLite table. With a
// Mongo identity store and no Redis a SQLite file is still opened for it.
func (app *Application) initEphemeral(ctx context.Context) error {
	if app.cfg.RedisAddr != "" {
		r, err := OpenRedis(ctx, app.cfg)
		if err != nil {
			return err
		}
		app.ephemeral = r
		app.events = r
		app.closers = append(app.closers, r.Close)
		app.logger.Info("ephemeral store: redis", "addr", app.cfg.RedisAddr)
		return nil
	}

	lite, ok := app.db.(*sqlite.Store)
	if !ok {
		var err error
		lite, err = sqlite.NewStore(sqlite.DSN(app.cfg.DatabaseFile))
		if err != nil {
			return fmt.Errorf("failed to open sqlite ephemeral store: %w", err)
		}
		app.closers = append(app.closers, lite.Close)
		if err := lite.ApplyMigrations(); err != nil {
			return fmt.Errorf("failed to apply sqlite migrations: %w", err)
		}
	}

	eph := lite.Ephemeral()
	app.ephemeral = eph
	app.housekeepingService = service.NewHousekeepingService(eph, app.logger, app.cfg.HousekeepingInterval)
	app.logger.Info("ephemeral store: sqlite", "file", app.cfg.DatabaseFile)
	return nil
}

// initServices initializes all business logic services
func (app *Application) initServices(keys SessionKeys) error {
	cfg := app.cfg

	app.sessionService = &service.SessionService{
		Users:           app.db.Users(),
		AccessSigner:    keys.AccessSigner,
		RefreshSigner:   keys.RefreshSigner,
		AccessVerifier:  keys.AccessVerifier,
		RefreshVerifier: keys.RefreshVerifier,
		Issuer:          cfg.Issuer,
		AccessTTL:       cfg.AccessTokenTTL,
		RefreshTTL:      cfg.RefreshTokenTTL,
		StoreTimeout:    cfg.StoreTimeout,
	}

	app.userService = &service.UserService{
		Users:        app.db.Users(),
		Sessions:     app.sessionService,
		StoreTimeout: cfg.StoreTimeout,
	}

	app.priceService = &service.PriceService{
		Cache:           app.ephemeral,
		HTTPClient:      &http.Client{Timeout: cfg.ProviderTimeout},
		BaseURL:         cfg.CoinGeckoURL,
		APIKey:          cfg.CoinGeckoAPIKey,
		CacheTTL:        cfg.PriceCacheTTL,
		StoreTimeout:    cfg.StoreTimeout,
		ProviderTimeout: cfg.ProviderTimeout,
	}

	if cfg.OAuthClientID == "" {
		app.logger.Info("federated login disabled (OAUTH_CLIENT_ID not set)")
		return nil
	}

	provider, err := service.NewOIDCProvider(service.OIDCConfig{
		Name:         cfg.OAuthProvider,
		ClientID:     cfg.OAuthClientID,
		ClientSecret: cfg.OAuthClientSecret,
		RedirectURL:  cfg.OAuthRedirectURL,
		AuthURL:      cfg.OAuthAuthURL,
		TokenURL:     cfg.OAuthTokenURL,
		JWKSURL:      cfg.OAuthJWKSURL,
		Issuer:       cfg.OAuthIssuer,
		Scopes:       cfg.OAuthScopes,
		HTTPClient:   &http.Client{Timeout: cfg.ProviderTimeout},
	})
	if err != nil {
		return fmt.Errorf("failed to configure identity provider: %w", err)
	}

	app.federatedService = &service.FederatedService{
		Providers:       map[string]service.IdentityProvider{provider.Name(): provider},
		Ephemeral:       app.ephemeral,
		Users:           app.db.Users(),
		Sessions:        app.sessionService,
		StateTTL:        cfg.OAuthStateTTL,
		StoreTimeout:    cfg.StoreTimeout,
		ProviderTimeout: cfg.ProviderTimeout,
	}
	app.logger.Info("federated login enabled", "provider", provider.Name())
	return nil
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(BuildVersion, app.logger, httpx.CORSConfig{
		AllowedOrigins:   app.cfg.CORSOrigins,
		AllowCredentials: true,
		MaxAgeSeconds:    600,
	})

	router.Cookies = httpapi.CookieConfig{Secure: app.cfg.CookieSecure}
	router.Store = app.db
	router.Ephemeral = app.ephemeral
	router.Sessions = app.sessionService
	router.Users = app.userService
	router.Federated = app.federatedService
	router.Prices = app.priceService
	router.PostLoginRedirect = app.cfg.PostLoginRedirect
	// Validate has already rejected malformed entries.
	router.Limits.TrustedProxies, _ = httpx.ParseTrustedProxies(app.cfg.TrustedProxies)
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}

// startEvents subscribes to price refresh triggers when a broker exists.
func (app *Application) startEvents() {
	if app.events == nil {
		return
	}

	logger := app.logger.With("component", "price-events")
	ctx, cancel := context.WithCancel(slogx.WithContext(context.Background(), logger))
	app.stopEvents = cancel
	app.eventsDone = make(chan struct{})

	go func() {
		defer close(app.eventsDone)
		err := app.events.Subscribe(ctx, service.PriceEventsChannel, app.priceService.HandleEvent)
		if err != nil && !errors.Is(err, context.Canceled) {
			app.logger.Error("price event subscription ended", "error", err)
		}
	}()
	app.logger.Info("subscribed to price events", "channel", service.PriceEventsChannel)
}
