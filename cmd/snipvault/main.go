package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/snipvault/snipvault/internal/accounts"
	"github.com/snipvault/snipvault/internal/app"
	"github.com/snipvault/snipvault/internal/audit"
	"github.com/snipvault/snipvault/internal/auth"
	"github.com/snipvault/snipvault/internal/gateway"
	"github.com/snipvault/snipvault/internal/observability"
	"github.com/snipvault/snipvault/internal/platform/db"
	"github.com/snipvault/snipvault/internal/ratelimit"
	"github.com/snipvault/snipvault/internal/rbac"
	"github.com/snipvault/snipvault/internal/settings"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	settingsRepo := settings.NewRepository(pool)
	settingsStore := settings.NewStoreWithTTL(settingsRepo, logger, cfg.SettingsCacheTTL)
	if err := settingsStore.Seed(ctx); err != nil {
		logger.Error("seed settings", slog.Any("error", err))
		os.Exit(1)
	}

	recorder := audit.NewRecorder(pool, logger)
	auditReader := audit.NewReader(pool)

	accountsRepo := accounts.NewRepository(pool)
	accountsService := accounts.NewService(accountsRepo, settingsStore, recorder, logger)

	tokens := auth.NewTokenManager(cfg.TokenSecret, cfg.TokenTTL)
	authenticator := &auth.Authenticator{
		Tokens:  tokens,
		Users:   accountsRepo,
		Readers: accountsService,
		Policy:  settingsStore,
		Logger:  logger,
	}

	limiter := ratelimit.NewLimiter(settingsStore, logger)
	go limiter.Run(ctx)

	hostGate := gateway.NewHostGate(cfg.AllowedHosts)
	maintenanceGate := &gateway.MaintenanceGate{Policy: settingsStore, Resolver: authenticator}

	metrics := observability.NewMetrics()

	accountsHandler := accounts.NewHandler(logger, accountsService, tokens, settingsStore)
	settingsHandler := settings.NewHandler(logger, settingsStore, recorder)
	auditHandler := audit.NewHandler(logger, auditReader)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		HostGate:        hostGate,
		MaintenanceGate: maintenanceGate,
		Authenticator:   authenticator,
		Limiter:         limiter,
		PermissionGate:  rbac.Gate{Logger: logger},
		AccountsHandler: accountsHandler,
		SettingsHandler: settingsHandler,
		AuditHandler:    auditHandler,
		Metrics:         metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
