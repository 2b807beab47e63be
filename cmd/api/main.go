package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront-session/api/controllers"
	"github.com/angelmondragon/storefront-session/api/middleware"
	"github.com/angelmondragon/storefront-session/api/routes"
	"github.com/angelmondragon/storefront-session/internal/gueststore"
	"github.com/angelmondragon/storefront-session/internal/merge"
	"github.com/angelmondragon/storefront-session/internal/normalize"
	"github.com/angelmondragon/storefront-session/internal/session"
	"github.com/angelmondragon/storefront-session/pkg/config"
	"github.com/angelmondragon/storefront-session/pkg/db"
	"github.com/angelmondragon/storefront-session/pkg/logger"
	"github.com/angelmondragon/storefront-session/pkg/metrics"
	"github.com/angelmondragon/storefront-session/pkg/migrate"
	"github.com/angelmondragon/storefront-session/pkg/redis"
	"github.com/angelmondragon/storefront-session/pkg/storefront"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ready := map[string]controllers.Pinger{}
	var closers []func() error

	var dbClient *db.Client
	if cfg.DB.Enabled() {
		dbClient, err = db.New(ctx, cfg.DB, logg)
		if err != nil {
			logg.Error(ctx, "failed to bootstrap database", err)
			os.Exit(1)
		}
		closers = append(closers, dbClient.Close)
		ready["database"] = dbClient

		if err := migrate.MaybeRun(ctx, cfg, logg, dbClient); err != nil {
			logg.Error(ctx, "failed to run migrations", err)
			os.Exit(1)
		}
	}

	var redisClient *redis.Client
	var limiter middleware.RateLimiterStore
	if cfg.Redis.Enabled() {
		redisClient, err = redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			logg.Error(ctx, "failed to bootstrap redis", err)
			os.Exit(1)
		}
		closers = append(closers, redisClient.Close)
		ready["redis"] = redisClient
		limiter = redisClient
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	sessionMetrics := metrics.NewSessionMetrics(registry)
	httpMetrics := metrics.NewHTTPMetrics(registry)

	guest := gueststore.NewStore(gueststore.BuildBackends(cfg.GuestStore, dbClient, redisClient), logg, sessionMetrics)

	upstream, err := storefront.NewClient(cfg.Upstream.BaseURL, storefront.WithTimeout(cfg.Upstream.Timeout))
	if err != nil {
		logg.Error(ctx, "failed to create storefront client", err)
		os.Exit(1)
	}

	normalizer := normalize.New(normalize.NewImageResolver(cfg.Upstream.ImageOrigin()))
	sessions, err := session.NewRegistry(session.RegistryParams{
		Guest:      guest,
		Normalizer: normalizer,
		Merger:     merge.NewCoordinator(normalizer, logg, sessionMetrics),
		Backends: func(token string) (session.Backend, error) {
			return upstream.ForToken(token)
		},
		Logger:             logg,
		Metrics:            sessionMetrics,
		IdleTTL:            cfg.Session.IdleTTL,
		NotificationBuffer: cfg.Session.Notifications,
	})
	if err != nil {
		logg.Error(ctx, "failed to create session registry", err)
		os.Exit(1)
	}
	go sessions.Run(ctx, cfg.Session.SweepEvery)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"addr":        addr,
		"guest_store": guest.Active(ctx).Name(),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:   cfg,
			Logger:   logg,
			Sessions: sessions,
			Limiter:  limiter,
			Gatherer: registry,
			HTTP:     httpMetrics,
			Ready:    ready,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	exitCode := 0
	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			exitCode = 1
		}
	case <-ctx.Done():
		logg.Info(ctx, "shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	errs := server.Shutdown(shutdownCtx)
	for _, closeFn := range closers {
		errs = multierr.Append(errs, closeFn())
	}
	if errs != nil {
		logg.Error(shutdownCtx, "error during shutdown", errs)
		exitCode = 1
	}
	logg.Info(shutdownCtx, "api server stopped")
	os.Exit(exitCode)
}
