package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"kulakan/internal/cache"
	"kulakan/internal/config"
	"kulakan/internal/httpapi"
	"kulakan/internal/logger"
	"kulakan/internal/notify"
	"kulakan/internal/service"
	"kulakan/internal/store"
	"kulakan/internal/store/memory"
	pgstore "kulakan/internal/store/postgres"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	defer func() { _ = log.Sync() }()

	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatal("invalid security configuration", zap.Error(err))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL, log)
		if err != nil {
			log.Fatal("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback", zap.Error(err))
		}
		if err := runMigrations(pg, cfg.MigrationsPath, log); err != nil {
			log.Fatal("apply migrations", zap.Error(err))
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Info("repository ready", zap.String("backend", "postgres"))
	} else {
		repo = memory.NewSeeded(log)
		log.Info("repository ready", zap.String("backend", "memory"))
	}

	productCache := cache.ProductCache(cache.NoopProductCache{})
	notifiers := notify.Multi{notify.NewLogNotifier(log)}
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		redisCache := cache.NewRedisProductCache(client, time.Duration(cfg.ProductCacheTTLSeconds)*time.Second)
		if err := redisCache.Ping(ctx); err != nil {
			log.Warn("redis unavailable, using noop cache", zap.Error(err))
			_ = client.Close()
		} else {
			productCache = redisCache
			notifiers = append(notifiers, notify.NewRedisNotifier(client, cfg.NotifyChannel, log))
			closers = append(closers, redisCache.Close)
			log.Info("cache ready", zap.String("backend", "redis"), zap.String("notify_channel", cfg.NotifyChannel))
		}
	} else {
		log.Info("cache ready", zap.String("backend", "noop"))
	}

	svc := service.New(repo, cfg.StoreID, service.Options{
		Cache:          productCache,
		Notifier:       notifiers,
		Logger:         log,
		RequireProduct: cfg.ReceivingRequireProduct,
	})
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo, log)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin, log)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("kulakan backend listening", zap.String("addr", cfg.Address()), zap.String("env", cfg.AppEnv))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", zap.Error(err))
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Error("close error", zap.Error(err))
		}
	}

	log.Info("server stopped")
}

// runMigrations is skipped when MIGRATIONS_PATH is set to "-".
func runMigrations(pg *pgstore.Store, path string, log *zap.Logger) error {
	if path == "" || path == "-" {
		return nil
	}
	m, err := pgstore.NewMigrator(pg.DB(), path, log)
	if err != nil {
		return err
	}
	defer func() { _ = m.Close() }()
	return m.Up()
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	return nil
}
