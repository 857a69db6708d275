package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/uptrace/bun"

	auth "github.com/Small-Group-Org/prd-proto-hub"
	"github.com/Small-Group-Org/prd-proto-hub/federation"
	"github.com/Small-Group-Org/prd-proto-hub/repository"
	"github.com/Small-Group-Org/prd-proto-hub/telemetry"
)

const serviceName = "prd-proto-hub"

type App struct {
	config  auth.EnvConfig
	logger  auth.Logger
	bunDB   *bun.DB
	repo    auth.RepositoryManager
	tokens  *auth.TokenServiceImpl
	auther  *auth.Auther
	metrics *telemetry.Metrics
	sink    auth.ActivitySink
	srv     router.Server[*fiber.App]
}

func main() {
	ctx := context.Background()

	cfg, err := auth.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	app := &App{
		config: cfg,
		logger: auth.DefaultLogger(),
	}

	if cfg.Debug {
		redacted := cfg
		redacted.SigningKey = "<redacted>"
		redacted.SAML.PrivateKey = "<redacted>"
		app.logger.Debug("config: %s", print.MaybePrettyJSON(redacted))
	}

	shutdownTracing, err := telemetry.SetupTracing(ctx, serviceName, cfg.OTelEndpoint)
	if err != nil {
		app.logger.Warn("tracing disabled: %v", err)
	}

	if err := WithPersistence(ctx, app); err != nil {
		app.logger.Error("persistence: %v", err)
		os.Exit(1)
	}

	if err := WithHTTPServer(ctx, app); err != nil {
		app.logger.Error("http server: %v", err)
		os.Exit(1)
	}

	if err := WithAuthRoutes(ctx, app); err != nil {
		app.logger.Error("auth routes: %v", err)
		os.Exit(1)
	}

	WithSAMLRoutes(ctx, app)

	go func() {
		if err := app.srv.Serve(cfg.HTTPAddr); err != nil {
			app.logger.Error("listen: %v", err)
		}
	}()

	sig := WaitExitSignal()
	app.logger.Info("received %s, shutting down", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.srv.Shutdown(shutdownCtx); err != nil {
		app.logger.Error("shutdown: %v", err)
	}

	flushCtx, cancelFlush := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelFlush()
	if shutdownTracing != nil {
		_ = shutdownTracing(flushCtx)
	}

	_ = app.bunDB.Close()
}

func WithPersistence(ctx context.Context, app *App) error {
	db, err := auth.OpenDB(app.config.DBDriver, app.config.DBDSN)
	if err != nil {
		return err
	}

	if err := auth.Migrate(ctx, db, app.logger); err != nil {
		_ = db.Close()
		return err
	}

	repo := auth.NewRepositoryManager(db)
	if err := repo.Validate(); err != nil {
		return err
	}

	app.bunDB = db
	app.repo = repo
	app.metrics = telemetry.NewMetrics()
	app.sink = app.metrics.Sink(repository.NewAuditSink(repository.NewAuditLogs(db)))
	app.tokens = auth.NewTokenServiceFromConfig(app.config, app.logger)

	return nil
}

func WithHTTPServer(ctx context.Context, app *App) error {
	srv := router.NewFiberAdapter(func(a *fiber.App) *fiber.App {
		return router.DefaultFiberOptions(fiber.New(fiber.Config{
			AppName:      serviceName,
			ErrorHandler: auth.FiberErrorHandler(app.logger),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		}))
	})

	// fiber native middleware, ahead of every router group
	srv.WrappedRouter().Use(recover.New())
	srv.WrappedRouter().Use(app.metrics.Middleware())
	srv.WrappedRouter().Get("/metrics", app.metrics.Handler()).Name("metrics")

	srv.Router().Get("/healthz", func(c router.Context) error {
		if err := app.bunDB.PingContext(c.Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]any{"status": "unavailable"})
		}
		return c.JSON(http.StatusOK, map[string]any{"status": "ok"})
	}).SetName("healthz")

	app.srv = srv
	return nil
}

func WithAuthRoutes(ctx context.Context, app *App) error {
	accounts := app.repo.Accounts()

	provider := auth.NewAccountProvider(accounts).
		WithLogger(app.logger).
		WithLoginTracker(auth.NewLoginTracker(accounts))

	auther := auth.NewAuthenticator(provider, app.tokens).
		WithLogger(app.logger).
		WithActivitySink(app.sink)

	app.auther = auther

	gate := auth.NewHTTPAuthenticator(app.tokens, provider).
		WithLogger(app.logger)

	notifier, err := auth.NewLogNotifier(app.logger)
	if err != nil {
		return err
	}

	invitations := auth.NewInvitationManager(app.repo, app.config).
		WithLogger(app.logger).
		WithActivitySink(app.sink).
		WithNotifier(notifier)

	profiles := auth.NewUpdateProfileHandler(app.repo).
		WithLogger(app.logger).
		WithActivitySink(app.sink)

	stateMachine := auth.NewAccountStateMachine(accounts,
		auth.WithStateMachineLogger(app.logger),
		auth.WithStateMachineActivitySink(app.sink),
	)

	auth.RegisterAuthRoutes(app.srv.Router().Group("/api/auth"),
		auth.WithAuther(auther),
		auth.WithGate(gate),
		auth.WithInvitationManager(invitations),
		auth.WithProfileHandler(profiles),
		auth.WithStateMachine(stateMachine),
		auth.WithControllerLogger(app.logger),
		auth.WithControllerDebug(app.config.Debug),
	)

	return nil
}

// WithSAMLRoutes mounts SSO only when an IdP certificate is configured.
func WithSAMLRoutes(ctx context.Context, app *App) {
	settings := app.config.SAML
	if !settings.Enabled || settings.IDPCert == "" {
		app.logger.Warn("SAML SSO disabled: SAML_IDP_CERT is not set")
		return
	}

	sp, err := federation.NewServiceProvider(federation.ConfigFromSettings(settings, app.config.AppBaseURL))
	if err != nil {
		app.logger.Error("SAML SSO disabled: %v", err)
		return
	}

	provisioner := federation.NewProvisioner(app.repo.Accounts()).
		WithLogger(app.logger).
		WithActivitySink(app.sink)

	sso := federation.NewSSOAuthenticator(sp, provisioner, app.auther).
		WithLogger(app.logger).
		WithActivitySink(app.sink)

	controller := federation.NewHTTPController(sp, sso).
		WithLogger(app.logger)
	federation.RegisterSAMLRoutes(app.srv.Router().Group("/api/auth/saml"), controller)

	app.logger.Info("SAML SSO enabled, entry point %s", sp.Config().EntryPoint)
}

func WaitExitSignal() os.Signal {
	ch := make(chan os.Signal, 3)
	signal.Notify(ch,
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGTERM,
	)
	return <-ch
}
