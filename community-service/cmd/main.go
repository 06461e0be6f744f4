package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chys-app/chys-live/community-service/internal/agora"
	"github.com/chys-app/chys-live/community-service/internal/cache"
	"github.com/chys-app/chys-live/community-service/internal/config"
	"github.com/chys-app/chys-live/community-service/internal/domain"
	"github.com/chys-app/chys-live/community-service/internal/handler"
	"github.com/chys-app/chys-live/community-service/internal/kafka"
	"github.com/chys-app/chys-live/community-service/internal/metrics"
	"github.com/chys-app/chys-live/community-service/internal/notification"
	"github.com/chys-app/chys-live/community-service/internal/presence"
	"github.com/chys-app/chys-live/community-service/internal/recording"
	"github.com/chys-app/chys-live/community-service/internal/repository"
	"github.com/chys-app/chys-live/community-service/internal/service"
	"github.com/chys-app/chys-live/pkg/database"
	"github.com/chys-app/chys-live/pkg/jwt"
	pkglog "github.com/chys-app/chys-live/pkg/log"
	"github.com/chys-app/chys-live/pkg/middleware"
	"github.com/chys-app/chys-live/pkg/storage"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load config")
	}

	// Initialize structured logger
	logger := pkglog.Init(pkglog.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		ServiceName: "community-service",
		Environment: cfg.Log.Environment,
	})

	metrics.RegisterMetrics()

	// Connect to database using GORM
	db, err := database.New(&cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close(db)

	if err := database.AutoMigrate(db, domain.Models()...); err != nil {
		logger.Fatal().Err(err).Msg("failed to auto-migrate")
	}
	logger.Info().Msg("database migration completed")

	// Initialize repositories
	broadcastRepo := repository.NewGormBroadcastRepository(db)
	userRepo := repository.NewGormUserRepository(db)
	notificationRepo := repository.NewGormNotificationRepository(db)
	messageRepo := repository.NewGormMessageRepository(db)

	// Recording handle cache
	var recordingCache cache.RecordingCache
	if cfg.Redis.Enabled {
		rc, err := cache.NewRedisRecordingCache(cfg.Redis)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		recordingCache = rc
		logger.Info().Str("address", cfg.Redis.Address).Msg("redis cache connected")
	} else {
		recordingCache = cache.NewMemoryRecordingCache()
		logger.Info().Msg("using in-memory recording cache")
	}
	defer recordingCache.Close()

	// Bucket the recorder uploads into
	ctx := context.Background()
	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		logger.Warn().Err(err).Str("driver", cfg.Storage.Driver).Msg("recording storage unavailable, urls fall back to object keys")
		store = nil
	}

	// Vendor clients
	agoraClient := agora.NewClient(agora.Config{
		AppID:          cfg.Agora.AppID,
		CustomerID:     cfg.Agora.CustomerID,
		CustomerSecret: cfg.Agora.CustomerSecret,
		BaseURL:        cfg.Agora.BaseURL,
		Timeout:        cfg.Agora.Timeout,
		MaxFailures:    cfg.Agora.Breaker.MaxFailures,
		OpenTimeout:    cfg.Agora.Breaker.OpenTimeout,
		Storage: agora.StorageConfig{
			Vendor:    cfg.Recording.StorageVendor,
			Region:    cfg.Recording.StorageRegion,
			Bucket:    cfg.Recording.Bucket,
			AccessKey: cfg.Recording.AccessKey,
			SecretKey: cfg.Recording.SecretKey,
		},
	})
	tokenIssuer, err := agora.NewTokenIssuer(cfg.Agora.AppID, cfg.Agora.AppCertificate, cfg.Agora.TokenTTL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create join token issuer")
	}

	coordinator := recording.NewCoordinator(broadcastRepo, recordingCache, agoraClient, store, recording.Config{
		VerifyDelay:    cfg.Recording.VerifyDelay,
		VerifyAttempts: cfg.Recording.VerifyAttempts,
		KeyPrefix:      cfg.Recording.KeyPrefix,
		CacheTTL:       cfg.Redis.TTL,
		URLExpiry:      cfg.Recording.URLExpiry,
	})

	// Push sender
	var pushSender notification.PushSender
	switch cfg.Push.Driver {
	case "fcm":
		fcm, err := notification.NewFCMSender(ctx, cfg.Push.CredentialsFile)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize firebase messaging")
		}
		pushSender = fcm
	default:
		pushSender = notification.NewLogSender()
	}
	fanout := notification.NewService(userRepo, notificationRepo, pushSender, cfg.Push.Concurrency)

	// Lifecycle events
	var events kafka.EventProducer = kafka.NoopProducer{}
	if cfg.Kafka.Enabled {
		producer, err := kafka.NewConfluentProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.Partitions)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create kafka producer")
		}
		events = producer
		logger.Info().Str("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("kafka producer ready")
	}
	defer events.Close()

	// Initialize services
	registry := presence.NewRegistry()
	broadcastService := service.NewBroadcastService(broadcastRepo, userRepo, coordinator, tokenIssuer, fanout, events, cfg.Agora.RecorderUID)
	chatService := service.NewChatService(messageRepo, userRepo, registry, fanout, events)
	userService := service.NewUserService(userRepo)
	notificationService := service.NewNotificationService(notificationRepo)

	// Initialize auth middleware
	jwtManager, err := jwt.NewManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, 0)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create jwt manager")
	}
	authMiddleware := middleware.NewAuthMiddleware(jwtManager)

	// Setup Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(pkglog.GinMiddleware(logger, "/health", "/metrics"))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handler.NewHandler(broadcastService, userService, notificationService, chatService, authMiddleware).RegisterRoutes(r)
	handler.NewWSHandler(registry, chatService, userService, authMiddleware, cfg.WebSocket).RegisterRoutes(r)

	server := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().Str("addr", server.Addr).Str("driver", cfg.Database.Driver).Str("push", cfg.Push.Driver).Msg("community-service starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down community-service")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}
	coordinator.Shutdown()

	logger.Info().Msg("community-service stopped")
}
