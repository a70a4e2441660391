package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"dropship-rest-api/internal/analysis"
	"dropship-rest-api/internal/cache"
	"dropship-rest-api/internal/config"
	"dropship-rest-api/internal/handler"
	"dropship-rest-api/internal/marketplace"
	"dropship-rest-api/internal/marketplace/mock"
	"dropship-rest-api/internal/middleware"
	"dropship-rest-api/internal/repository"
	"dropship-rest-api/internal/resilience"
	"dropship-rest-api/internal/router"
	"dropship-rest-api/internal/service"
	"dropship-rest-api/pkg/logger"
)

func main() {
	// Load configuration
	cfg := config.MustLoad()

	logger.Init(cfg.App.Name, cfg.App.IsDevelopment())
	logger.SetLevel(cfg.App.LogLevel)
	log.Info().
		Str("environment", cfg.App.Environment).
		Str("version", cfg.App.Version).
		Msg("starting dropship API")

	// Initialize store based on config
	var store repository.Store
	switch cfg.Database.Type {
	case "postgres", "postgresql":
		pg, err := repository.NewPostgresStore(cfg.Database.PostgresDSN())
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize PostgreSQL")
		}
		store = pg
	default: // sqlite
		lite, err := repository.NewSQLiteStore(cfg.Database.Path)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.Database.Path).Msg("failed to initialize SQLite")
		}
		store = lite
	}
	defer store.Close()
	log.Info().Str("type", store.Kind()).Msg("store initialized")

	// Response cache: Redis when configured and reachable, memory otherwise
	var responseCache cache.Cache
	if cfg.Cache.Type == "redis" {
		rc, err := cache.NewRedisCache(cache.RedisConfig{
			Addr:      cfg.Cache.RedisAddress(),
			Password:  cfg.Cache.RedisPassword,
			DB:        cfg.Cache.RedisDB,
			KeyPrefix: cfg.Cache.RedisPrefix,
		})
		if err != nil {
			log.Warn().Err(err).Str("addr", cfg.Cache.RedisAddress()).Msg("redis unavailable, falling back to memory cache")
		} else {
			responseCache = rc
		}
	}
	if responseCache == nil {
		responseCache = cache.NewMemoryCache(time.Minute)
	}
	defer responseCache.Close()
	log.Info().Str("type", responseCache.Kind()).Msg("cache initialized")

	// Marketplace adapters
	var adapters []marketplace.Adapter
	releaseAdapters := func() {}
	if cfg.Marketplace.Mode == "mock" {
		adapters = mock.NewAll()
		log.Warn().Msg("marketplace mode is mock: serving fixture products")
	} else {
		adapters, releaseAdapters = marketplace.NewLive(&cfg.Marketplace)
	}
	defer releaseAdapters()

	breakers := resilience.NewBreakerSet(cfg.Marketplace.BreakerMaxFailures, cfg.Marketplace.BreakerCooldown)

	// Initialize services
	usageService := service.NewUsageService(store)
	searchService := service.NewSearchService(adapters, breakers, responseCache, store, usageService, service.SearchConfig{
		Concurrency: cfg.Search.Concurrency,
		Timeout:     cfg.Search.Timeout,
		CacheTTL:    cfg.Cache.TTL,
		ProductTTL:  cfg.Database.ProductTTL,
	})

	var analyzer analysis.Analyzer = analysis.HeuristicAnalyzer{Markup: cfg.AI.Markup}
	if cfg.AI.APIKey != "" {
		llm := analysis.NewLLMAnalyzer(analysis.LLMConfig{
			APIKey:  cfg.AI.APIKey,
			BaseURL: cfg.AI.BaseURL,
			Model:   cfg.AI.Model,
			Timeout: cfg.AI.Timeout,
			Retries: cfg.Marketplace.Retries,
		}, nil)
		analyzer = analysis.WithFallback(llm, analyzer)
		log.Info().Str("model", cfg.AI.Model).Msg("LLM analyzer enabled")
	}
	analysisService := service.NewAnalysisService(store, usageService, analyzer, cfg.AI.AnalysisTTL)
	importService := service.NewImportService(store, store, usageService, cfg.AI.Markup)

	cleanup := service.NewCleanupScheduler(store, service.CleanupConfig{
		CleanupInterval: cfg.Database.CleanupInterval,
	})
	cleanup.Start()

	// Initialize handlers
	authMiddleware := middleware.NewAuthMiddleware(middleware.AuthConfig{
		JWTSecret: cfg.Auth.JWTSecret,
		Issuer:    cfg.Auth.Issuer,
	})
	if cfg.Auth.JWTSecret == "" {
		log.Warn().Msg("AUTH_JWT_SECRET is not set: authenticated routes will return 503")
	}

	r := router.New(router.Config{
		Handler:        handler.New(cfg.App.Name, cfg.App.Version, store),
		ProductHandler: handler.NewProductHandler(searchService, analysisService, importService),
		ImportHandler:  handler.NewImportHandler(importService),
		UsageHandler:   handler.NewUsageHandler(usageService),
		AdminHandler:   handler.NewAdminHandler(store, responseCache, breakers, cfg.App.LoginKey),
		AuthMiddleware: authMiddleware,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}
	cleanup.Stop()

	log.Info().Msg("server stopped")
}
