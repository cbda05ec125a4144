// Package main runs the enrollment dashboard: it rebuilds the aggregates from
// the record store, follows the change and presence feeds, and serves the
// dashboard over HTTP and WebSocket with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/identmakers/roots-dashboard/config"
	"github.com/identmakers/roots-dashboard/internal/aggregation"
	"github.com/identmakers/roots-dashboard/internal/dashboard"
	"github.com/identmakers/roots-dashboard/internal/feed"
	"github.com/identmakers/roots-dashboard/internal/middleware"
	"github.com/identmakers/roots-dashboard/internal/realtime"
	"github.com/identmakers/roots-dashboard/internal/records"
	"github.com/identmakers/roots-dashboard/internal/subscription"
	"github.com/identmakers/roots-dashboard/pkg/database"
	"github.com/identmakers/roots-dashboard/pkg/queue"
	"github.com/identmakers/roots-dashboard/pkg/redis"
	"github.com/identmakers/roots-dashboard/pkg/response"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := newLogger(cfg.Server.LogLevel)
	defer logger.Sync()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), database.PoolOptions{
		MaxConns: int32(cfg.Database.MaxConns),
	}, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool, logger); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	}, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	hub := realtime.NewHub(logger)
	store := aggregation.New(logger.Named("aggregation"))
	svc := dashboard.NewService(store, hub, dashboard.Options{
		Debounce:   cfg.Dashboard.Debounce(),
		RecentDays: cfg.Dashboard.RecentDays,
	}, logger.Named("dashboard"))
	defer svc.Close()

	// enrollment_records is the source of truth: replay reads it and the
	// consumer writes it before counting a change.
	recordsRepo := records.NewRepository(pool)
	if cfg.Feed.ReplayOnStart {
		if _, err := feed.Replay(ctx, recordsRepo, svc, logger); err != nil {
			logger.Fatal("replay records", zap.Error(err))
		}
	}

	// Enrollment change feed
	changeQueue := queue.NewQueue(rdb.Client, cfg.Feed.EnrollmentQueue, cfg.Feed.DeadLetterQueue, logger)
	consumer := feed.NewConsumer(changeQueue, svc, recordsRepo, logger.Named("consumer"))
	go consumer.Run(ctx)

	// Presence: initial load, pub/sub updates, and periodic expiry
	presenceFeed := feed.NewPresenceFeed(rdb.Client, cfg.Feed.PresenceKey, cfg.Feed.PresenceChannel, logger)
	if err := presenceFeed.Sync(ctx, svc); err != nil {
		logger.Warn("initial presence load failed", zap.Error(err))
	}
	cancelPresence, err := presenceFeed.Subscribe(ctx, svc)
	if err != nil {
		logger.Fatal("presence subscribe", zap.Error(err))
	}
	defer cancelPresence()
	go svc.RunPresenceTicker(ctx, cfg.Dashboard.PresenceRefresh())

	// Vendor subscription card
	vendorPoller := feed.NewVendorPoller(subscription.NewRepository(rdb.Client, cfg.Feed.VendorKey), svc, cfg.Feed.VendorPoll(), logger)
	go vendorPoller.Run(ctx)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.AllowedOrigins()))
	router.Use(middleware.Logger(logger, "/health", "/metrics"))

	router.GET("/health", func(c *gin.Context) {
		pending, err := changeQueue.Len(c.Request.Context())
		if err != nil {
			response.ServiceUnavailable(c, "change feed unavailable")
			return
		}
		response.OK(c, gin.H{
			"status":         "ok",
			"organizations":  store.Len(),
			"viewers":        hub.ViewerCount(),
			"pending_events": pending,
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	dashboardHandler := dashboard.NewHandler(svc, changeQueue, logger)
	dashboardHandler.RegisterRoutes(router.Group("/dashboard"))

	router.GET("/ws", realtime.ServeWs(hub, svc, logger))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger(level string) *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if lvl, err := zapcore.ParseLevel(level); err == nil {
		config.Level = zap.NewAtomicLevelAt(lvl)
	}
	logger, _ := config.Build()
	return logger
}
