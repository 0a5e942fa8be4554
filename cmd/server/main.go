// Package main runs the telehealth session HTTP server with WebSocket push
// and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/vitalink-health/telehealth/config"
	"github.com/vitalink-health/telehealth/internal/auth"
	"github.com/vitalink-health/telehealth/internal/chat"
	"github.com/vitalink-health/telehealth/internal/events"
	"github.com/vitalink-health/telehealth/internal/meetings"
	"github.com/vitalink-health/telehealth/internal/middleware"
	"github.com/vitalink-health/telehealth/internal/models"
	"github.com/vitalink-health/telehealth/internal/participants"
	"github.com/vitalink-health/telehealth/internal/presence"
	"github.com/vitalink-health/telehealth/internal/realtime"
	"github.com/vitalink-health/telehealth/internal/session"
	"github.com/vitalink-health/telehealth/internal/video"
	"github.com/vitalink-health/telehealth/pkg/database"
	"github.com/vitalink-health/telehealth/pkg/queue"
	"github.com/vitalink-health/telehealth/pkg/redis"
	"github.com/vitalink-health/telehealth/pkg/response"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	jobQueue := queue.NewQueue(rdb.Client, logger)
	sink := events.NewRedisSink(rdb.Client, jobQueue, logger)

	// Stores
	meetingRepo := meetings.NewRepository(pool)
	participantRepo := participants.NewRepository(pool)
	chatRepo := chat.NewRepository(pool)
	authRepo := auth.NewRepository(pool)

	// Staff auth
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	authHandler := auth.NewHandler(authRepo, jwtService, logger)

	// Meeting lifecycle
	coordinator := session.NewCoordinator(
		meetingRepo, participantRepo, sink,
		session.AuthorizerFunc(authRepo.IsAdmin),
		cfg.Server.PublicBaseURL,
		cfg.Meetings.TokenTTL(), cfg.Presence.StaleWindow(),
		nil, logger)
	sessionHandler := session.NewHandler(coordinator, logger)

	// Presence and signaling brokerage
	monitor := presence.NewMonitor(participantRepo, meetingRepo, sink, cfg.Presence.StaleWindow(), nil, logger)
	presenceHandler := presence.NewHandler(monitor, logger)

	// Chat
	chatService := chat.NewService(chatRepo, participantRepo, meetingRepo, sink, cfg.Presence.StaleWindow(), nil, logger)
	chatHandler := chat.NewHandler(chatService, logger)

	// ICE configuration
	videoHandler := video.NewHandler(cfg.WebRTC, logger)

	// Realtime push
	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(redisPubSub, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Staff auth (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
	}

	// Meeting management (staff JWT required)
	api := router.Group("/meetings")
	api.Use(middleware.JWT(jwtService))
	api.Use(middleware.RequireRole(models.RoleAdmin, models.RoleClinician, models.RoleStaff))
	{
		api.POST("", sessionHandler.CreateMeeting)
		api.GET("/:id", sessionHandler.GetMeeting)
		api.POST("/:id/end", sessionHandler.EndMeeting)
	}

	// Patient-facing surface: the meeting token is the only credential.
	videoGroup := router.Group("/video")
	{
		videoGroup.GET("/validate", sessionHandler.Validate)
		videoGroup.POST("/join", sessionHandler.Join)
		videoGroup.POST("/leave", sessionHandler.Leave)
		videoGroup.POST("/heartbeat", presenceHandler.Heartbeat)
		videoGroup.GET("/peers", presenceHandler.Peers)
		videoGroup.POST("/peer", presenceHandler.RegisterPeer)
		videoGroup.POST("/peer/disconnect", presenceHandler.DisconnectPeer)
		videoGroup.POST("/chat", chatHandler.Send)
		videoGroup.GET("/chat", chatHandler.History)
		videoGroup.GET("/config", videoHandler.GetConfig)
	}

	// WebSocket (meeting token in query; no Authorization header)
	router.GET("/ws", realtime.ServeWs(hub, coordinator, monitor, logger))

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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
