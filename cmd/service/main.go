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

	"github.com/kjstillabower/nurse-directory/internal/auth"
	"github.com/kjstillabower/nurse-directory/internal/cache"
	"github.com/kjstillabower/nurse-directory/internal/circuitbreaker"
	"github.com/kjstillabower/nurse-directory/internal/client"
	"github.com/kjstillabower/nurse-directory/internal/config"
	"github.com/kjstillabower/nurse-directory/internal/dataset"
	httphandler "github.com/kjstillabower/nurse-directory/internal/http"
	"github.com/kjstillabower/nurse-directory/internal/lifecycle"
	"github.com/kjstillabower/nurse-directory/internal/observability"
	"github.com/kjstillabower/nurse-directory/internal/service"
	"github.com/kjstillabower/nurse-directory/internal/traffic"
)

const cityAPIComponent = "city_api"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	state := lifecycle.New()
	store := dataset.NewStore(cfg.DataPath, cfg.DatasetCache)
	if err := store.Check(); err != nil {
		// Lookups answer DATA_UNAVAILABLE until the file appears.
		logger.Warn("dataset not readable at startup", zap.String("path", cfg.DataPath), zap.Error(err))
	}

	sortBy, err := service.ParseSortKey(cfg.SortBy)
	if err != nil {
		logger.Fatal("sort key", zap.Error(err))
	}

	var (
		enricher    *service.Enricher
		cityClient  *client.HTTPCityClient
		cacheSvc    cache.Cache
		cacheCloser func() error
	)
	if cfg.CityAPIEnabled {
		cityClient, err = client.NewHTTPCityClient(cfg.CityAPIURL, cfg.CityAPIKey, cfg.CityAPITimeout)
		if err != nil {
			logger.Fatal("city client", zap.Error(err))
		}
		cb := circuitbreaker.New(circuitbreaker.Config{
			FailureThreshold: cfg.CircuitBreakerFailureThreshold,
			SuccessThreshold: cfg.CircuitBreakerSuccessThreshold,
			Timeout:          cfg.CircuitBreakerTimeout,
			Component:        cityAPIComponent,
			OnStateChange: func(from, to circuitbreaker.State) {
				observability.RecordCircuitBreakerTransition(cityAPIComponent, from.String(), to.String())
				observability.SetCircuitBreakerState(cityAPIComponent, int(to))
				logger.Warn("circuit breaker transition", zap.String("from", from.String()), zap.String("to", to.String()))
			},
		})
		cityClient.SetCircuitBreaker(cb)
		observability.SetCircuitBreakerState(cityAPIComponent, int(circuitbreaker.StateClosed))

		cacheSvc, cacheCloser, err = newCache(cfg)
		if err != nil {
			logger.Fatal("city cache", zap.Error(err))
		}
		logger.Info("city enrichment enabled",
			zap.String("url", cfg.CityAPIURL),
			zap.String("cache_backend", cacheSvc.Backend()),
			zap.Int("failure_threshold", cfg.CircuitBreakerFailureThreshold))
		enricher = service.NewEnricher(cityClient, cacheSvc, cfg.CityAPICacheTTL)
	}

	nurseService := service.NewNurseService(store, sortBy, enricher)

	checks := httphandler.HealthChecks{Dataset: store.Check}
	if p, ok := cacheSvc.(cache.Pinger); ok {
		checks.Cache = p.Ping
	}
	if cityClient != nil {
		checks.CityAPI = func() string { return cityClient.Breaker().State().String() }
	}

	tracker := traffic.New(0)
	handler := httphandler.NewHandler(nurseService, httphandler.Options{
		MinCityLength:        cfg.CityMinLength,
		MaxCityLength:        cfg.CityMaxLength,
		RequiredScript:       cfg.CityRequiredScript,
		ExposeInternalErrors: cfg.ExposeInternalErrors,
		HealthWindow:         cfg.HealthWindow,
		DegradedErrorPct:     cfg.DegradedErrorPct,
		OverloadDeniedPct:    cfg.OverloadDeniedPct,
	}, checks, state, tracker, logger)

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	if len(cfg.TrackedCities) > 0 {
		observability.SetTrackedCities(cfg.TrackedCities)
	}

	router := httphandler.NewRouter(handler, logger, httphandler.RouterConfig{
		Gate:           auth.NewGate(cfg.APIKey),
		Limiter:        limiter,
		Tracker:        tracker,
		RequestTimeout: cfg.RequestTimeout,
		AllowedOrigins: cfg.AllowedOrigins,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("server starting",
			zap.String("addr", ":"+cfg.ServerPort),
			zap.String("data_path", cfg.DataPath),
			zap.Bool("dataset_cache", cfg.DatasetCache),
			zap.String("sort_by", string(sortBy)))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	state.BeginShutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	logger.Info("waiting for in-flight requests", zap.Int64("count", httphandler.InFlightCount()))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.DrainTimeout)
	defer waitCancel()
	if err := httphandler.WaitForInFlight(waitCtx, 50*time.Millisecond); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	logger.Info("shutdown complete")
	if err := observability.FlushTelemetry(context.Background(), logger, cacheCloser); err != nil {
		fmt.Fprintf(os.Stderr, "telemetry flush: %v\n", err)
	}
}

// newCache builds the city info cache for cfg.CacheBackend. The returned
// closer is nil for the in-memory backend.
func newCache(cfg *config.Config) (cache.Cache, func() error, error) {
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			return nil, nil, err
		}
		return mc, mc.Close, nil
	case "redis":
		rc := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisTimeout)
		return rc, rc.Close, nil
	default:
		return cache.NewInMemoryCache(), nil, nil
	}
}
