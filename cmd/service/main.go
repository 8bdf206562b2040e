package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kmorand/air-quality-service/internal/cache"
	"github.com/kmorand/air-quality-service/internal/client"
	"github.com/kmorand/air-quality-service/internal/config"
	httpapi "github.com/kmorand/air-quality-service/internal/http"
	"github.com/kmorand/air-quality-service/internal/lifecycle"
	"github.com/kmorand/air-quality-service/internal/observability"
	"github.com/kmorand/air-quality-service/internal/service"
)

func main() {
	_ = godotenv.Load()

	logger, err := observability.NewLogger()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	apiClient := client.NewOpenMeteoClient(cfg.OriginURL, cfg.OriginTimeout)

	var store cache.Store
	var cachePing func() error
	var cacheClose func()
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.CacheTTLSeconds, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			logger.Fatal("failed to create memcached cache", zap.Error(err))
		}
		store = mc
		cachePing = mc.Ping
		cacheClose = func() {
			if err := mc.Close(); err != nil {
				logger.Warn("memcached close failed", zap.Error(err))
			}
		}
		logger.Info("cache backend: memcached",
			zap.String("addrs", cfg.MemcachedAddrs),
			zap.Int("ttl_seconds", cfg.CacheTTLSeconds))
	default:
		store = cache.NewInMemoryCache(cfg.CacheTTLSeconds)
		logger.Info("cache backend: in_memory", zap.Int("ttl_seconds", cfg.CacheTTLSeconds))
	}

	svc := service.NewAirQualityService(apiClient, store, cfg.CoalesceEnabled, cfg.CoalesceTimeout)

	observability.RegisterRateLimitGauges(cfg.OverloadWindow)
	observability.SetTrackedKeys(cfg.TrackedKeys)

	healthConfig := &httpapi.HealthConfig{
		OverloadWindow:       cfg.OverloadWindow,
		OverloadThresholdPct: cfg.OverloadThresholdPct,
		RateLimitRPS:         cfg.RateLimitRPS,
		DegradedWindow:       cfg.DegradedWindow,
		DegradedErrorPct:     cfg.DegradedErrorPct,
		CachePing:            cachePing,
	}
	handler := httpapi.NewHandler(svc, healthConfig, logger)

	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)

	router := mux.NewRouter()
	router.Use(httpapi.CorrelationIDMiddleware(logger))
	router.Use(httpapi.MetricsMiddleware)

	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)
	router.HandleFunc("/health", handler.GetHealth).Methods(http.MethodGet)

	aq := router.PathPrefix("/air-quality").Subrouter()
	aq.Use(httpapi.RateLimitMiddleware(limiter))
	aq.Use(httpapi.TimeoutMiddleware(cfg.RequestTimeout))
	aq.HandleFunc("", handler.GetAirQuality).Methods(http.MethodGet)

	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()

	if cfg.WarmCache && len(cfg.WarmCoordinates) > 0 {
		coords := make([]cache.Coordinate, len(cfg.WarmCoordinates))
		for i, c := range cfg.WarmCoordinates {
			coords[i] = cache.Coordinate{Latitude: c.Latitude, Longitude: c.Longitude}
		}
		warmer := cache.NewWarmer(svc, logger)
		if cfg.WarmInterval > 0 {
			go func() { _ = warmer.WarmPeriodic(appCtx, coords, cfg.WarmInterval) }()
		} else {
			go func() {
				if err := warmer.Warm(appCtx, coords); err != nil {
					logger.Warn("cache warm failed", zap.Error(err))
				}
			}()
		}
	}

	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	go func() {
		logger.Info("starting server", zap.String("port", cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutdown signal received", zap.String("signal", sig.String()))

	lifecycle.SetShuttingDown(true)
	appCancel()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}

	inFlightCtx, inFlightCancel := context.WithTimeout(context.Background(), cfg.ShutdownInFlightTimeout)
	defer inFlightCancel()
	if err := httpapi.WaitForInFlight(inFlightCtx, cfg.ShutdownInFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests did not drain",
			zap.Int64("remaining", httpapi.InFlightCount()),
			zap.Error(err))
	}

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Warn("telemetry flush failed", zap.Error(err))
	}
	if cacheClose != nil {
		cacheClose()
	}
	logger.Info("shutdown complete")
}
