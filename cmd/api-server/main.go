package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/maumercado/labtasker-go/internal/api"
	"github.com/maumercado/labtasker-go/internal/config"
	"github.com/maumercado/labtasker-go/internal/events"
	"github.com/maumercado/labtasker-go/internal/logger"
	"github.com/maumercado/labtasker-go/internal/security"
	"github.com/maumercado/labtasker-go/internal/service"
	"github.com/maumercado/labtasker-go/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.LogLevel, os.Getenv("ENV") != "production")

	log := logger.Get()
	log.Info().Msg("Starting API server...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mongoStore, err := store.NewMongoStore(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to MongoDB")
	}
	if err := mongoStore.EnsureIndexes(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure indexes")
	}
	defer func() {
		if err := mongoStore.Close(context.Background()); err != nil {
			log.Error().Err(err).Msg("Failed to close MongoDB connection")
		}
	}()

	redisClient := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	defer func() {
		if err := redisClient.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close Redis client")
		}
	}()

	publisher := events.NewRedisPubSub(redisClient)
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close event publisher")
		}
	}()

	var tokens *security.TokenIssuer
	if cfg.Auth.JWTSecret != "" {
		tokens = security.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.SessionTTL)
	}

	svc := service.New(mongoStore, nil, tokens, publisher)
	defer func() {
		if err := svc.Close(context.Background()); err != nil {
			log.Error().Err(err).Msg("Failed to close service")
		}
	}()

	sweeper := service.NewSweeper(svc, cfg.Sweeper.Interval)
	sweeper.Start(ctx)

	server := api.NewServer(cfg, svc, publisher)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	server.Start(ctx)

	go func() {
		log.Info().
			Str("addr", httpServer.Addr).
			Msg("HTTP server listening")

		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	sweeper.Stop()
	server.Stop()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	log.Info().Msg("Server stopped")
}
