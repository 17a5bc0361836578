package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/crewpay/warden/internal/authority/domain"
	httpapi "github.com/crewpay/warden/internal/authority/http"
	"github.com/crewpay/warden/internal/authority/identity"
	"github.com/crewpay/warden/internal/authority/keycache"
	"github.com/crewpay/warden/internal/authority/service"
	"github.com/crewpay/warden/internal/authority/store"
	memorydrv "github.com/crewpay/warden/internal/authority/store/drivers/memory"
	redisdrv "github.com/crewpay/warden/internal/authority/store/drivers/redis"
	"github.com/crewpay/warden/pkg/cryptox"
	"github.com/crewpay/warden/pkg/jwtx"
	"github.com/crewpay/warden/pkg/slogx"
)

// BuildVersion should be set at build time via ldflags.
const BuildVersion = "v0.1.0"

// Application encapsulates the authority service with all its dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	kv    store.KV
	codec *jwtx.Codec

	sessionService      *service.SessionService
	oneTimeService      *service.OneTimeService
	authorityService    *service.AuthorityService
	housekeepingService *service.HousekeepingService

	// PeerKeys verifies tokens minted by sibling issuers. Nil unless a peer
	// key base URL is configured.
	PeerKeys *keycache.Cache

	server *http.Server
	router *httpapi.Router
}

// New creates an Application with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "warden",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	cryptox.SetPepperPath(cfg.PepperFile)

	if err := app.initStore(); err != nil {
		return nil, err
	}

	key, err := loadSigningKey(cfg, app.logger)
	if err != nil {
		return nil, err
	}
	codec, err := jwtx.NewCodec(cfg.Issuer, key)
	if err != nil {
		return nil, fmt.Errorf("construct token codec: %w", err)
	}
	app.codec = codec

	if cfg.PeerKeyBaseURL != "" {
		app.PeerKeys = keycache.New(cfg.PeerKeyBaseURL, nil, cfg.PeerKeyTTL)
		app.logger.Info("peer key cache enabled", "base_url", cfg.PeerKeyBaseURL)
	}

	app.initServices()
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("authority starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
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

// Shutdown gracefully shuts down the application.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down authority...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	if err := app.kv.Close(); err != nil {
		app.logger.Error("error closing session store", "error", err)
		return err
	}

	app.logger.Info("authority stopped")
	return nil
}

func (app *Application) initStore() error {
	switch app.cfg.StoreBackend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     app.cfg.RedisAddr,
			Password: app.cfg.RedisPassword,
			DB:       app.cfg.RedisDB,
		})

		ctx, cancel := context.WithTimeout(context.Background(), app.cfg.StoreTimeout)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return fmt.Errorf("connect to redis at %s: %w", app.cfg.RedisAddr, err)
		}

		app.kv = redisdrv.NewStore(client)
		app.logger.Info("session store ready", "backend", "redis", "addr", app.cfg.RedisAddr)
	case "memory":
		app.kv = memorydrv.NewStore()
		app.logger.Warn("session store running in memory; sessions will not survive restart")
	default:
		return fmt.Errorf("unknown store backend %q (expected redis or memory)", app.cfg.StoreBackend)
	}
	return nil
}

func (app *Application) initServices() {
	sessionKind := domain.AudSession
	if app.cfg.SessionTTL > 0 {
		sessionKind = sessionKind.WithLifetime(app.cfg.SessionTTL)
	}
	accessKind := domain.AudAccess
	if app.cfg.AccessTTL > 0 {
		accessKind = accessKind.WithLifetime(app.cfg.AccessTTL)
	}
	lostKind := domain.AudLostPassword
	if app.cfg.LostTTL > 0 {
		lostKind = lostKind.WithLifetime(app.cfg.LostTTL)
	}
	changeKind := domain.AudChangePassword
	if app.cfg.ChangeTTL > 0 {
		changeKind = changeKind.WithLifetime(app.cfg.ChangeTTL)
	}

	app.sessionService = &service.SessionService{
		Codec:        app.codec,
		KV:           app.kv,
		Kind:         sessionKind,
		StoreTimeout: app.cfg.StoreTimeout,
	}
	app.oneTimeService = &service.OneTimeService{
		Codec:        app.codec,
		KV:           app.kv,
		StoreTimeout: app.cfg.StoreTimeout,
	}

	// TODO: back the directory with the platform's people service once its
	// internal API is stable; the in-memory directory only serves dev mode.
	app.authorityService = &service.AuthorityService{
		Codec:      app.codec,
		Sessions:   app.sessionService,
		OneTime:    app.oneTimeService,
		Directory:  identity.NewMemoryDirectory(),
		Mailer:     &identity.LogMailer{Logger: app.logger},
		AccessKind: accessKind,
		LostKind:   lostKind,
		ChangeKind: changeKind,
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.kv,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
}

func (app *Application) initHTTP() {
	router := httpapi.NewRouter(app.codec, BuildVersion, app.kv, app.logger)
	router.Authority = app.authorityService
	if app.PeerKeys != nil {
		router.PeerKeys = app.PeerKeys.Fetch
	}
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
