package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/lattice-ai/authcore/internal/app"
	"github.com/lattice-ai/authcore/internal/audit"
	audithttp "github.com/lattice-ai/authcore/internal/audit/http"
	"github.com/lattice-ai/authcore/internal/authz"
	"github.com/lattice-ai/authcore/internal/decision"
	"github.com/lattice-ai/authcore/internal/observability"
	"github.com/lattice-ai/authcore/internal/ownership"
	"github.com/lattice-ai/authcore/internal/platform/cache"
	"github.com/lattice-ai/authcore/internal/platform/db"
	"github.com/lattice-ai/authcore/internal/registry"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

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

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	// A broken registry is fatal: the process must not serve decisions
	// without a valid definition.
	var loader registry.Loader
	if cfg.RegistrySource == "postgres" {
		loader = registry.PGLoader{Pool: pool}
	} else {
		loader = registry.FileLoader{Path: cfg.RegistryPath}
	}
	store, err := registry.NewStore(ctx, loader, logger)
	if err != nil {
		logger.Error("load registry", slog.Any("error", err))
		os.Exit(1)
	}

	resolvers := ownership.NewRegistry()
	endpoints, err := cfg.ParseOwnershipEndpoints()
	if err != nil {
		logger.Error("parse ownership endpoints", slog.Any("error", err))
		os.Exit(1)
	}
	for resourceType, endpoint := range endpoints {
		resolvers.Register(resourceType, ownership.NewHTTPResolver(endpoint, cfg.OwnershipTimeout))
	}
	tables, err := cfg.ParseOwnershipTables()
	if err != nil {
		logger.Error("parse ownership tables", slog.Any("error", err))
		os.Exit(1)
	}
	for resourceType, table := range tables {
		resolvers.Register(resourceType, ownership.NewPGResolver(pool, table, cfg.OwnershipTimeout))
	}
	// Singleton platform resources guard the admin surface.
	resolvers.Register(app.ResourceTypeRegistry, ownership.StaticResolver{
		Records: map[string]ownership.Record{
			app.PlatformResourceID: {TenantID: cfg.PlatformTenant, OwnerID: cfg.PlatformTenant},
		},
	})
	resolvers.Register(app.ResourceTypeAudit, ownership.StaticResolver{
		Records: map[string]ownership.Record{
			app.PlatformResourceID: {TenantID: cfg.PlatformTenant, OwnerID: cfg.PlatformTenant},
		},
	})

	metrics := observability.NewMetrics()
	cache := decision.NewCache(redisClient, cfg.DecisionCacheTTL)

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := asynqClient.Close(); err != nil {
			logger.Warn("asynq close", slog.Any("error", err))
		}
	}()
	emitter := audit.NewAsynqEmitter(asynqClient)

	service := authz.NewService(store, resolvers, cache, emitter, metrics, logger)

	auditService := audit.NewService(audit.NewPGTimelineRepo(pool))

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		AuthzHandler:    authz.NewHandler(service, logger),
		RegistryHandler: registry.NewHandler(store, logger),
		AuditHandler:    audithttp.NewHandler(auditService, logger),
		AdminGuard:      authz.Middleware{Service: service, Logger: logger},
		Metrics:         metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", slog.Any("error", err))
		}
	}()

	logger.Info("authcore listening", slog.String("addr", cfg.AppAddr), slog.Int64("registry_version", store.Snapshot().Version()))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server run", slog.Any("error", err))
		os.Exit(1)
	}
}
