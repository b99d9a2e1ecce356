package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vizor/internal/analytics"
	"vizor/internal/cache"
	"vizor/internal/collab"
	"vizor/internal/http/handlers"
	"vizor/internal/http/httpapi"
	"vizor/internal/infra"
	"vizor/internal/infra/geoip"
	"vizor/internal/metrics"
	"vizor/internal/middleware"
	"vizor/internal/pipeline"
	"vizor/internal/provider"
	"vizor/internal/storage"
)

func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)
	ctx := context.Background()

	// Cache backing store.
	var store storage.ObjectStore
	switch cfg.StorageBackend {
	case "redis":
		redisStore, err := storage.NewRedisStore(ctx, storage.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect redis")
		}
		defer redisStore.Close()
		store = redisStore
	default:
		fileStore, err := storage.NewFileStore(cfg.StoragePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize file store")
		}
		store = fileStore
	}
	artifactCache := cache.New(store, logger)

	// Analytics is optional; without a database everything is discarded.
	var recorder analytics.Recorder = analytics.NopRecorder{}
	if cfg.DatabaseURL != "" {
		pool, err := infra.NewDBPool(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect database")
		}
		defer pool.Close()
		recorder = analytics.NewPGRecorder(pool, logger)
	}

	// Generation backends, in default fallback order.
	registry := provider.NewRegistry()
	registry.Register(provider.NewFlux(provider.FluxOptions{
		APIKey:     cfg.FluxAPIKey,
		BaseURL:    cfg.FluxBaseURL,
		Model:      cfg.FluxModel,
		HTTPClient: &http.Client{Timeout: cfg.GenerateTimeout},
		Logger:     &logger,
	}))
	registry.Register(provider.NewInk(&logger))

	pipelineMetrics := metrics.NewPipeline()
	orchestrator := pipeline.New(pipeline.Deps{
		Cache:    artifactCache,
		Registry: registry,
		Validator: collab.NewKeywordValidator(
			[]string{"malware", "phishing", "exploit"},
			[]string{"gambling", "crypto"},
		),
		Fetcher: collab.NewHTTPFetcher(&http.Client{Timeout: cfg.FetchTimeout}, cfg.FetchMaxBytes),
		Describer: collab.NewGenAIDescriber(collab.DescriberOptions{
			APIKey:  cfg.DescriberAPIKey,
			BaseURL: cfg.DescriberBaseURL,
			Model:   cfg.DescriberModel,
			Logger:  &logger,
		}),
		Recorder: recorder,
		Metrics:  pipelineMetrics,
		Logger:   logger,
	})

	var lookup middleware.CountryLookup
	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip unavailable, locale falls back to headers")
	} else if resolver != nil {
		lookup = resolver.CountryCode
	}

	app := handlers.NewApp(orchestrator, registry, pipelineMetrics, logger)
	router := httpapi.NewRouter(app, httpapi.RouterOptions{
		Logger:        logger,
		DefaultLocale: cfg.DefaultLocale,
		CountryLookup: lookup,
	})
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	if err := recorder.Close(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to drain analytics recorder")
	}
	logger.Info().Msg("server stopped")
}
