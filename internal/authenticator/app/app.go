package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/aussiebroadwan/keyfob/internal/authenticator/api"
	"github.com/aussiebroadwan/keyfob/internal/authenticator/domain"
	"github.com/aussiebroadwan/keyfob/internal/authenticator/service"
	"github.com/aussiebroadwan/keyfob/internal/authenticator/store"
	"github.com/aussiebroadwan/keyfob/internal/authenticator/store/drivers/sqlite"
	"github.com/aussiebroadwan/keyfob/pkg/otpx"
	"github.com/aussiebroadwan/keyfob/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"
)

// Application wires the authenticator together: local vault, device
// identity, backend client, session lifecycle and the background pollers.
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db     store.Store
	engine *otpx.Engine
	client *api.Client

	// Services
	identityService *service.IdentityService
	sessionService  *service.SessionService
	vaultService    *service.VaultService

	// Background workers
	refresher *service.Refresher
	responder *service.ResponderPoller
	liveness  *service.LivenessWorker
}

// New creates an Application instance with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "keyfob",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	engine, err := otpx.New()
	if err != nil {
		_ = app.db.Close()
		return nil, fmt.Errorf("failed to initialize code engine: %w", err)
	}
	app.engine = engine

	app.initServices()

	return app, nil
}

// Run restores any persisted session, starts the background workers and
// blocks until shutdown is requested.
func (app *Application) Run() error {
	ctx := context.Background()

	if _, err := app.identityService.Ensure(ctx); err != nil {
		return fmt.Errorf("failed to establish device identity: %w", err)
	}

	restored, err := app.sessionService.Restore(ctx)
	if err != nil {
		app.logger.Warn("session restore failed, starting anonymous", "error", err)
	} else if restored {
		app.logger.Info("session restored")
	}

	app.refresher.Start()
	app.responder.Start()
	app.liveness.Start()

	app.logger.Info("authenticator started", "backend", app.cfg.BackendURL, "version", BuildVersion)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	sig := <-shutdown
	app.logger.Info("shutdown signal received", "signal", sig)

	return app.Shutdown()
}

// Shutdown stops the background workers and closes the vault.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down authenticator...")

	app.liveness.Stop()
	app.responder.Stop()
	app.refresher.Stop()

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing vault", "error", err)
		return err
	}

	app.logger.Info("authenticator stopped")
	return nil
}

// Vault exposes account management.
func (app *Application) Vault() *service.VaultService { return app.vaultService }

// Sessions exposes the auth session lifecycle.
func (app *Application) Sessions() *service.SessionService { return app.sessionService }

// Responder exposes the challenge approval role.
func (app *Application) Responder() *service.ResponderPoller { return app.responder }

// Refresher exposes the code refresh loop so a frontend can subscribe to
// snapshots before Run starts it.
func (app *Application) Refresher() *service.Refresher { return app.refresher }

// NewRequester prepares a poller for a login challenge returned by
// Sessions().Login. One poller per challenge; Start it to begin polling.
func (app *Application) NewRequester(challenge domain.Challenge) *service.RequesterPoller {
	return service.NewRequesterPoller(app.client, app.sessionService, app.logger,
		challenge, app.cfg.RequesterInterval)
}

// initDatabase opens the vault and applies migrations.
func (app *Application) initDatabase() error {
	host := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(host)
	if err != nil {
		return fmt.Errorf("failed to initialize vault: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply vault migrations: %w", err)
	}

	app.logger.Info("vault migrations applied successfully")
	return nil
}

// initServices initializes the services and background workers.
func (app *Application) initServices() {
	app.identityService = &service.IdentityService{
		Store:     app.db,
		Logger:    app.logger,
		MachineID: app.cfg.MachineID,
	}

	app.sessionService = &service.SessionService{
		Store:     app.db,
		Identity:  app.identityService,
		Logger:    app.logger,
		Timeout:   app.cfg.SessionTimeout(),
		Platform:  app.cfg.Platform,
		PushToken: app.cfg.PushToken,
	}

	// The session service is the token source: the client always reads the
	// current bearer token from it, never from a global.
	app.client = api.NewClient(app.cfg.BackendURL, app.sessionService, app.logger)
	app.sessionService.API = app.client

	app.vaultService = &service.VaultService{
		Store:  app.db,
		Engine: app.engine,
		Logger: app.logger,
	}

	app.refresher = service.NewRefresher(app.vaultService, app.logger, app.cfg.RefreshInterval)
	app.responder = service.NewResponderPoller(app.client, app.identityService,
		app.sessionService, app.logger, app.cfg.ResponderInterval)
	app.liveness = service.NewLivenessWorker(app.sessionService, app.logger, app.cfg.LivenessInterval)
}
