package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shepherd/internal/cache"
	"github.com/shepherd/internal/config"
	"github.com/shepherd/internal/db"
	"github.com/shepherd/internal/handler"
	"github.com/shepherd/internal/logging"
	"github.com/shepherd/internal/notify"
	"github.com/shepherd/internal/router"
	"github.com/shepherd/internal/service"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := logging.Init(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 初始化数据库
	if err := db.Init(cfg.DatabaseURL, db.NewGormLogger(logging.StdLog(), cfg.LogLevel)); err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}

	created, err := db.EnsureUser(db.DB, cfg.SuperRootUserName, cfg.SuperRootPassword)
	if err != nil {
		logger.Fatal("failed to ensure super root user", zap.Error(err))
	}
	if created {
		logger.Info("super root user created", zap.String("username", cfg.SuperRootUserName))
	}

	store := newCacheStore(ctx, cfg)

	dispatcher, err := notify.NewDispatcherFromConfig(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to init notifications", zap.Error(err))
	}
	var jobDispatcher service.Dispatcher
	if dispatcher != nil {
		jobDispatcher = dispatcher
	}

	api := handler.NewAPI(db.DB, handler.Options{
		Cache:          store,
		Location:       cfg.Location(),
		JWTSecret:      cfg.BaaSJWTSecret,
		LeadScoringAI:  cfg.LeadScoringAI,
		AIProvider:     cfg.AIProvider,
		OpenAIAPIKey:   cfg.OpenAIAPIKey,
		DeepSeekAPIKey: cfg.DeepSeekAPIKey,
		OpenAIModel:    cfg.OpenAIModel,
		DeepSeekModel:  cfg.DeepSeekModel,
		Dispatcher:     jobDispatcher,
	})

	// 设置并运行 Gin 服务器
	r := router.SetupRouter(api, router.Options{
		SessionSecret:      cfg.SessionSecret,
		AllowedOrigins:     cfg.AllowedOrigins,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("failed to run server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	stop()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}

	if closer, ok := store.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			logger.Warn("close cache failed", zap.Error(err))
		}
	}
	if sqlDB, err := db.DB.DB(); err == nil {
		sqlDB.Close()
	}
}

// newCacheStore 优先使用 Redis，连接失败时回退到进程内存缓存。
func newCacheStore(ctx context.Context, cfg config.AppConfig) cache.Store {
	if !cfg.RedisEnabled() {
		return cache.NewMemoryStore()
	}

	redisStore := cache.NewRedisStore(cache.RedisOptions{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := redisStore.Ping(pingCtx); err != nil {
		logging.Logger.Warn("redis unavailable, falling back to memory cache", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		redisStore.Close()
		return cache.NewMemoryStore()
	}
	logging.Logger.Info("redis cache connected", zap.String("addr", cfg.RedisAddr))
	return redisStore
}
