package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"imagegate/internal/blobstore"
	"imagegate/internal/blobstore/local"
	"imagegate/internal/blobstore/supabase"
	"imagegate/internal/config"
	"imagegate/internal/decision"
	"imagegate/internal/eventsink"
	"imagegate/internal/httpapi"
	"imagegate/internal/metrics"
	"imagegate/internal/pipeline"
	"imagegate/internal/providers/registry"
	"imagegate/internal/ratelimit"
	"imagegate/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setupLogger(cfg.Log.Level)
	log.Info().
		Str("storage_backend", cfg.Storage.Backend).
		Str("default_provider", cfg.Defaults.ProviderID).
		Bool("demo_mode", cfg.Auth.DemoMode).
		Bool("auth", cfg.Auth.JWTSecret != "").
		Msg("starting imagegate")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := storage.Open(ctx, cfg.DB.Driver, cfg.DB.DSN, cfg.DB.AutoMigrate)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize storage")
	}
	defer store.Close()

	providerRegistry, err := registry.New(providerDefinitions(cfg))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build provider registry")
	}
	log.Info().Strs("providers", providerRegistry.IDs()).Msg("providers registered")

	blobs := blobstore.NewRegistry()
	var filesDir string
	switch cfg.Storage.Backend {
	case config.StorageSupabase:
		backend, err := supabase.New(supabase.Config{
			URL:        cfg.Storage.SupabaseURL,
			ServiceKey: cfg.Storage.SupabaseKey,
			Bucket:     cfg.Storage.Bucket,
			Timeout:    cfg.Storage.Timeout,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize supabase storage")
		}
		blobs.Register(config.StorageSupabase, backend)
	default:
		backend, err := local.New(local.Config{
			Dir:           cfg.Storage.LocalDir,
			PublicBaseURL: cfg.HTTP.PublicBaseURL + "/files",
			MaxBytes:      cfg.Storage.LocalMaxBytes,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize local storage")
		}
		blobs.Register(config.StorageLocal, backend)
		filesDir = cfg.Storage.LocalDir
	}

	var limiter httpapi.RateLimiter
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Msg("failed to connect redis")
		}
		defer rdb.Close()
		limiter = ratelimit.New(rdb, cfg.Rate.PerHour, map[ratelimit.Scope]int64{
			ratelimit.ScopeGenerate:   cfg.Rate.GeneratePerHour,
			ratelimit.ScopeRegenerate: cfg.Rate.RegeneratePerHour,
		})
		log.Info().
			Int64("per_hour", cfg.Rate.PerHour).
			Int64("generate_per_hour", cfg.Rate.GeneratePerHour).
			Int64("regenerate_per_hour", cfg.Rate.RegeneratePerHour).
			Msg("rate limit enabled")
	}

	sinks := eventSinks(cfg)
	defer func() {
		if err := sinks.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close event sinks")
		}
	}()

	var sink eventsink.Sink
	if len(sinks) > 0 {
		sink = sinks
	}

	m := metrics.Global()
	engine := pipeline.New(pipeline.Config{
		Store:       store,
		Providers:   providerRegistry,
		Blobs:       blobs,
		StorageName: cfg.Storage.Backend,
		Sink:        sink,
		Defaults: decision.Defaults{
			ProviderID: cfg.Defaults.ProviderID,
			ModelTier:  cfg.Defaults.ModelTier,
		},
		NormalizeImages: cfg.Pipeline.NormalizeImages,
		RecorderTimeout: cfg.Pipeline.RecorderTimeout,
		Logger:          log.Logger,
		Metrics:         m,
	})

	gin.SetMode(gin.ReleaseMode)
	api := httpapi.New(httpapi.Config{
		Engine:      engine,
		RateLimiter: limiter,
		JWTSecret:   cfg.Auth.JWTSecret,
		DemoMode:    cfg.Auth.DemoMode,
		FilesDir:    filesDir,
		Logger:      log.Logger,
		Metrics:     m,
	})

	errCh := make(chan error, 1)
	httpServer := &http.Server{
		Addr:              cfg.HTTP.ListenAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.HTTP.ListenAddr).Msg("http server started")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("runtime error")
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to stop http server")
	}

	log.Info().Msg("stopped")
}

func providerDefinitions(cfg *config.Config) []registry.Definition {
	defs := make([]registry.Definition, 0, len(cfg.Providers))
	for _, p := range cfg.Providers {
		options := make(map[string]any, len(p.Options))
		for k, v := range p.Options {
			options[k] = v
		}
		defs = append(defs, registry.Definition{
			ID:      p.ID,
			Kind:    p.Kind,
			BaseURL: p.BaseURL,
			APIKey:  p.APIKey,
			Headers: p.Headers,
			Models:  p.Models,
			Config:  options,
			Timeout: p.TimeoutOr(cfg.Pipeline.ProviderTimeout),
		})
	}
	return defs
}

// eventSinks connects the configured brokers. A broker that cannot be reached
// at startup is skipped; events still land in the database.
func eventSinks(cfg *config.Config) eventsink.Multi {
	var sinks eventsink.Multi
	if len(cfg.Events.KafkaBrokers) > 0 {
		sinks = append(sinks, eventsink.NewKafka(cfg.Events.KafkaBrokers, cfg.Events.KafkaTopic))
		log.Info().Strs("brokers", cfg.Events.KafkaBrokers).Str("topic", cfg.Events.KafkaTopic).Msg("kafka event sink enabled")
	}
	if cfg.Events.NATSURL != "" {
		n, err := eventsink.NewNATS(cfg.Events.NATSURL, cfg.Events.NATSSubject)
		if err != nil {
			log.Error().Err(err).Msg("nats event sink disabled")
		} else {
			sinks = append(sinks, n)
			log.Info().Str("subject", cfg.Events.NATSSubject).Msg("nats event sink enabled")
		}
	}
	return sinks
}

func setupLogger(level string) {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(parseLogLevel(level))
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func parseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
