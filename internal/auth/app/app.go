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

	"github.com/factstofaith/gigglefits-sub006/internal/auth/domain"
	httpapi "github.com/factstofaith/gigglefits-sub006/internal/auth/http"
	"github.com/factstofaith/gigglefits-sub006/internal/auth/notify"
	"github.com/factstofaith/gigglefits-sub006/internal/auth/service"
	"github.com/factstofaith/gigglefits-sub006/internal/auth/store"
	"github.com/factstofaith/gigglefits-sub006/internal/auth/store/drivers/sqlite"
	"github.com/factstofaith/gigglefits-sub006/pkg/clockx"
	"github.com/factstofaith/gigglefits-sub006/pkg/cryptox"
	"github.com/factstofaith/gigglefits-sub006/pkg/jwtx"
	"github.com/factstofaith/gigglefits-sub006/pkg/slogx"
)

// BuildVersion is overridden at build time via -ldflags.
var BuildVersion = "v0.1.0"

const oauthHTTPTimeout = 10 * time.Second

// Application wires the platform identity service.
type Application struct {
	cfg    Config
	logger *slog.Logger
	clock  clockx.Clock

	db         store.Store
	keyManager *jwtx.KeyManager

	tokenService        *service.TokenService
	userService         *service.UserService
	mfaService          *service.MFAService
	invitationService   *service.InvitationService
	oauthService        *service.OAuthService
	bootstrapService    *service.BootstrapService
	housekeepingService *service.HousekeepingService
	notifications       *notify.Dispatcher

	server *http.Server
	router *httpapi.Router
}

// New creates the application and prepares its database.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg:   cfg,
		clock: clockx.System{},
		logger: slogx.New(slogx.Config{
			Service: "platform-identity",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	cryptox.SetPepperPath(app.cfg.PepperFile)

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	keyManager, err := InitAuthKeys(app.cfg, app.logger)
	if err != nil {
		_ = app.db.Close()
		return nil, fmt.Errorf("failed to initialize JWT keys: %w", err)
	}
	app.keyManager = keyManager

	app.initServices()
	app.initHTTP()

	return app, nil
}

// Handler exposes the router, mainly for tests.
func (app *Application) Handler() http.Handler { return app.router }

// Bootstrap creates the configured first admin on an empty database.
func (app *Application) Bootstrap(ctx context.Context) error {
	if app.cfg.BootstrapAdminEmail == "" {
		return nil
	}
	created, err := app.bootstrapService.Run(ctx)
	if err != nil {
		return err
	}
	if created {
		app.logger.Info("bootstrap admin created", "email", app.cfg.BootstrapAdminEmail)
	}
	return nil
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	ctx := slogx.WithContext(context.Background(), app.logger)
	if err := app.Bootstrap(ctx); err != nil {
		return fmt.Errorf("bootstrap failed: %w", err)
	}

	app.housekeepingService.Start()

	app.logger.Info("platform identity service starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

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

// Shutdown drains requests and pending notifications, then closes the
// database.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down platform identity service...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()
	app.notifications.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("platform identity service stopped")
	return nil
}

func (app *Application) initDatabase() error {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(dsn)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

func (app *Application) initServices() {
	app.tokenService = &service.TokenService{
		KeyManager: app.keyManager,
		Clock:      app.clock,
		Issuer:     app.cfg.Issuer,
		Audience:   app.cfg.Audience,
		AccessTTL:  app.cfg.AccessTokenTTL,
	}

	app.userService = &service.UserService{
		Store:        app.db,
		Clock:        app.clock,
		Tokens:       app.tokenService,
		ChallengeTTL: app.cfg.LoginChallengeTTL,
	}
	app.mfaService = &service.MFAService{
		Store:  app.db,
		Clock:  app.clock,
		Users:  app.userService,
		Issuer: app.cfg.MFAIssuer,
	}
	app.userService.MFA = app.mfaService

	app.notifications = &notify.Dispatcher{Notifier: notify.LogNotifier{Logger: app.logger}}
	app.invitationService = &service.InvitationService{
		Store:     app.db,
		Clock:     app.clock,
		Users:     app.userService,
		Notifier:  app.notifications,
		AcceptURL: app.cfg.AcceptURL,
	}

	providers := app.cfg.Providers()
	for name := range providers {
		app.logger.Info("oauth provider configured", "provider", name)
	}
	app.oauthService = &service.OAuthService{
		Store:     app.db,
		Clock:     app.clock,
		Users:     app.userService,
		Tokens:    app.tokenService,
		Providers: providers,
		Exchanger: &service.HTTPExchanger{Client: &http.Client{Timeout: oauthHTTPTimeout}},
	}

	app.bootstrapService = &service.BootstrapService{
		Store: app.db,
		Users: app.userService,
		Admin: domain.BootstrapAdmin{
			Email:    app.cfg.BootstrapAdminEmail,
			Name:     app.cfg.BootstrapAdminName,
			Password: app.cfg.BootstrapAdminPassword,
		},
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.clock,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
}

func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		app.keyManager.KeySet,
		app.keyManager.Verifier,
		BuildVersion,
		app.db,
		app.clock,
		app.logger,
	)

	router.UserService = app.userService
	router.InvitationService = app.invitationService
	router.MFAService = app.mfaService
	router.OAuthService = app.oauthService
	router.InvitationTTLHours = app.cfg.InvitationTTLHours
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
