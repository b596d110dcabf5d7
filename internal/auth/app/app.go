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

	httpapi "github.com/cairnhealth/cairn/internal/auth/http"
	"github.com/cairnhealth/cairn/internal/auth/notify"
	"github.com/cairnhealth/cairn/internal/auth/service"
	"github.com/cairnhealth/cairn/internal/auth/store"
	"github.com/cairnhealth/cairn/internal/auth/store/drivers/sqlite"
	"github.com/cairnhealth/cairn/pkg/cryptox"
	"github.com/cairnhealth/cairn/pkg/jwtx"
	"github.com/cairnhealth/cairn/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"
)

// Application encapsulates the auth service with all its dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db     store.Store
	signer *jwtx.HS256

	captchaService      *service.CaptchaService
	lockoutService      *service.LockoutService
	otpService          *service.OTPService
	sessionService      *service.SessionService
	authService         *service.AuthService
	userService         *service.UserService
	resetService        *service.ResetService
	setupService        *service.SetupService
	housekeepingService *service.HousekeepingService
	dispatcher          *notify.Dispatcher

	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "auth-service",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	// Set pepper path for password hashing
	cryptox.SetPepperPath(app.cfg.PepperFile)

	signer, err := jwtx.NewHS256([]byte(cfg.JWTSecret), cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token signer: %w", err)
	}
	app.signer = signer

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	app.initNotify()
	app.initServices()
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.dispatcher.Start()
	app.housekeepingService.Start()

	app.logger.Info("auth service starting", "port", app.cfg.Port, "version", BuildVersion)

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
	app.logger.Info("shutting down auth service...")

	// Give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()
	app.dispatcher.Stop()

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("auth service stopped")
	return nil
}

// initDatabase initializes the database and applies migrations.
func (app *Application) initDatabase() error {
	host := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(host)
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

// initNotify wires the outbound mail path. Without an SMTP host configured,
// deliveries are logged and dropped so the rest of the flow stays exercisable
// in dev.
func (app *Application) initNotify() {
	var sender notify.Sender
	if app.cfg.SMTPHost != "" {
		sender = &notify.SMTPSender{
			Host:     app.cfg.SMTPHost,
			Port:     app.cfg.SMTPPort,
			Username: app.cfg.SMTPUsername,
			Password: app.cfg.SMTPPassword,
			From:     app.cfg.SMTPFrom,
		}
	} else {
		app.logger.Warn("SMTP_HOST not set, outbound mail will be logged and dropped")
		sender = notify.SenderFunc(func(ctx context.Context, msg notify.Message) error {
			app.logger.Info("mail delivery skipped", "to", msg.To, "subject", msg.Subject)
			app.logger.Debug("undelivered mail body", "body", msg.Body)
			return nil
		})
	}

	app.dispatcher = notify.NewDispatcher(sender, app.logger, app.cfg.NotifyQueue)
}

// initServices initializes all business logic services.
func (app *Application) initServices() {
	app.captchaService = &service.CaptchaService{
		Store: app.db,
		TTL:   app.cfg.CaptchaTTL,
	}

	app.lockoutService = &service.LockoutService{}

	app.otpService = &service.OTPService{
		Store:    app.db,
		TTL:      app.cfg.OTPTTL,
		Cooldown: app.cfg.OTPCooldown,
	}

	app.sessionService = &service.SessionService{
		Store:       app.db,
		Signer:      app.signer,
		Issuer:      app.cfg.Issuer,
		AccessTTL:   app.cfg.AccessTTL,
		RefreshTTL:  app.cfg.RefreshTTL,
		RememberTTL: app.cfg.RememberTTL,
	}

	app.authService = &service.AuthService{
		Store:      app.db,
		Sessions:   app.sessionService,
		Captcha:    app.captchaService,
		Lockout:    app.lockoutService,
		OTP:        app.otpService,
		Notify:     app.dispatcher,
		PreAuthTTL: app.cfg.PreAuthTTL,
	}

	app.userService = &service.UserService{Store: app.db}

	app.resetService = &service.ResetService{
		Store:    app.db,
		OTP:      app.otpService,
		Sessions: app.sessionService,
		Notify:   app.dispatcher,
	}

	app.setupService = &service.SetupService{
		Store:  app.db,
		OTP:    app.otpService,
		Notify: app.dispatcher,
		Issuer: app.cfg.Issuer,
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
}

// initHTTP initializes the HTTP router and server.
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		app.signer,
		BuildVersion,
		app.db,
		app.logger,
	)

	router.AuthService = app.authService
	router.CaptchaService = app.captchaService
	router.SessionService = app.sessionService
	router.UserService = app.userService
	router.ResetService = app.resetService
	router.SetupService = app.setupService
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
