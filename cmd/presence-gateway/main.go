package main

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"pulsechat-core/internal/call"
	"pulsechat-core/internal/config"
	"pulsechat-core/internal/docstore"
	"pulsechat-core/internal/docstore/firestorestore"
	"pulsechat-core/internal/docstore/memory"
	"pulsechat-core/internal/docstore/redisstore"
	presenceHandler "pulsechat-core/internal/handler/http/presence"
	wsHandler "pulsechat-core/internal/handler/ws"
	"pulsechat-core/internal/middleware"
	"pulsechat-core/internal/presence"
	"pulsechat-core/pkg/logger"
)

func main() {
	ctx := context.Background()

	// 1. Configuration and logging
	cfg := config.Load()
	if err := logger.Init(&logger.Config{Level: cfg.LogLevel, Format: "json"}); err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer logger.Sync()
	log := logger.Log

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 2. Document store backend
	store, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to open document store", zap.String("backend", cfg.StoreBackend), zap.Error(err))
	}
	defer store.Close()
	log.Info("document store ready", zap.String("backend", cfg.StoreBackend))

	// 3. Presence services
	watcher := presence.NewWatcher(store, log)
	tracker := presence.NewTracker(store, log)
	if err := tracker.Start(ctx); err != nil {
		log.Fatal("failed to start presence tracker", zap.Error(err))
	}
	defer tracker.Stop()

	if cfg.BeaconEnabled && cfg.Identity != "" {
		beacon := presence.NewBeacon(store, cfg.Identity, log)
		beacon.SetInterval(cfg.HeartbeatInterval)
		beacon.Start(ctx)
		defer beacon.Stop()
		log.Info("presence beacon running",
			zap.String("identity", cfg.Identity),
			zap.Duration("interval", cfg.HeartbeatInterval))
	}

	// 4. Call watching for the event feed
	incoming := call.NewIncomingCallWatcher(store, log)

	// 5. Handlers
	presenceHdlr := presenceHandler.NewHandler(watcher, tracker, log)
	eventsHdlr := wsHandler.NewEventHandler(incoming, watcher, cfg.AllowedOrigins, log)

	// 6. Router
	router := gin.New()
	router.Use(middleware.Recovery(log))
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.Prometheus())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "healthy",
			"service": "presence-gateway",
			"time":    time.Now().UTC(),
		})
	})
	router.GET("/metrics", middleware.MetricsHandler())
	router.GET("/ws/events", eventsHdlr.ServeEvents)
	presenceHdlr.RegisterRoutes(router)

	// 7. Serve
	addr := fmt.Sprintf(":%d", cfg.Port)
	log.Info("presence gateway starting", zap.String("addr", addr))
	if err := router.Run(addr); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}

func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (docstore.Store, error) {
	switch cfg.StoreBackend {
	case config.BackendMemory:
		return memory.New(), nil

	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.RedisAddr, err)
		}
		return redisstore.New(client, cfg.RedisDocTTL, log), nil

	case config.BackendFirestore:
		return firestorestore.New(ctx, firestorestore.Config{
			ProjectID:       cfg.FirestoreProjectID,
			CredentialsPath: cfg.FirestoreCredentialsFile,
		}, log)

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}
