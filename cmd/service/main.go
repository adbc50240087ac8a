package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/tropicnights/internal/auth"
	"github.com/kjstillabower/tropicnights/internal/cache"
	"github.com/kjstillabower/tropicnights/internal/config"
	"github.com/kjstillabower/tropicnights/internal/lifecycle"
	"github.com/kjstillabower/tropicnights/internal/meteo"
	"github.com/kjstillabower/tropicnights/internal/observability"
	"github.com/kjstillabower/tropicnights/internal/registry"
	"github.com/kjstillabower/tropicnights/internal/service"
	"github.com/kjstillabower/tropicnights/internal/session"
	"github.com/kjstillabower/tropicnights/internal/web"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	db, err := registry.Open(cfg.DBConnectionString)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer func() { _ = db.Close() }()

	migrations, err := registry.NewMigrationsRunner(db, logger)
	if err != nil {
		logger.Fatal("migrations", zap.Error(err))
	}
	if err := migrations.Run(); err != nil {
		logger.Fatal("migrations", zap.Error(err))
	}

	cities := registry.New(db, logger)

	var gateway auth.Gateway
	switch cfg.AuthBackend {
	case "local":
		gateway = auth.NewLocalGateway(db, logger)
		logger.Info("auth backend: local")
	default:
		gateway = auth.NewRemoteGateway(cfg.AuthURL, cfg.AuthKey, cfg.AuthTimeout)
		logger.Info("auth backend: remote", zap.String("url", cfg.AuthURL))
	}

	sessions := session.NewManager(cfg.SessionKey, cfg.SecureCookies)

	var plotCache cache.Cache
	var memcacheCloser *cache.MemcachedCache
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			logger.Fatal("memcached cache", zap.Error(err))
		}
		memcacheCloser = mc
		plotCache = mc
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	default:
		inMem := cache.NewInMemoryCache()
		inMem.StartJanitor(context.Background(), cfg.CacheJanitorInterval)
		plotCache = inMem
		logger.Info("cache backend: in_memory")
	}

	source := meteo.NewClientWithRetry(
		cfg.WeatherAPIURL,
		cfg.WeatherAPITimeout,
		cfg.RetryAttempts,
		cfg.RetryBaseDelay,
		cfg.RetryMaxDelay,
	)
	plots := service.NewPlotService(source, plotCache, cfg.CacheTTL, cfg.CoalesceTimeout)

	if len(cfg.WarmCities) > 0 {
		warmer := cache.NewWarmer(plots, logger)
		warmCtx, warmCancel := context.WithTimeout(context.Background(), cfg.PlotTimeout)
		if err := warmer.Warm(warmCtx, cfg.WarmCities); err != nil {
			logger.Warn("cache warming failed", zap.Error(err))
		}
		warmCancel()
		if cfg.WarmInterval > 0 {
			go func() {
				if err := warmer.WarmPeriodic(context.Background(), cfg.WarmCities, cfg.WarmInterval); err != nil && err != context.Canceled {
					logger.Error("periodic cache warming stopped", zap.Error(err))
				}
			}()
		}
	}

	var cachePing web.Pinger
	if memcacheCloser != nil {
		cachePing = memcacheCloser
	}
	handler, err := web.NewHandler(logger, plots, cities, gateway, sessions, db, cachePing,
		cfg.DegradedWindow, float64(cfg.DegradedErrorPct))
	if err != nil {
		logger.Fatal("handler", zap.Error(err))
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	router := web.NewRouter(logger, handler, sessions, web.RouterOptions{
		PlotTimeout: cfg.PlotTimeout,
		RateLimiter: limiter,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.PlotTimeout + 10*time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	inFlight := web.InFlightCount()
	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownInFlightTimeout)
	defer waitCancel()
	if err := web.WaitForInFlight(waitCtx, cfg.ShutdownInFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", web.InFlightCount()))
	}

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}

	if memcacheCloser != nil {
		if err := memcacheCloser.Close(); err != nil {
			logger.Error("memcached close", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
}
