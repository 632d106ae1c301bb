package main

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	chatHandler "telecare-backend/internal/handler/http/chat"
	conversationHandler "telecare-backend/internal/handler/http/conversation"
	wsHandler "telecare-backend/internal/handler/ws"
	"telecare-backend/internal/middleware"
	"telecare-backend/internal/provider"
	"telecare-backend/internal/repository/cassandra"
	"telecare-backend/internal/repository/postgres"
	"telecare-backend/internal/service/chat"
	"telecare-backend/internal/service/conversation"
	"telecare-backend/pkg/config"
	"telecare-backend/pkg/database"
	"telecare-backend/pkg/jwt"
	"telecare-backend/pkg/logger"
	"telecare-backend/pkg/metrics"
)

const serviceName = "chat-service"

func main() {
	logger.InitDefault(serviceName)
	defer logger.Sync()

	cfg := config.Load(serviceName)
	ctx := context.Background()

	if cfg.JWT.Secret == "" {
		logger.Fatal("JWT_SECRET environment variable is required")
	}
	if len(cfg.JWT.Secret) < 32 {
		logger.Fatal("JWT_SECRET must be at least 32 characters")
	}
	jwtManager := jwt.NewManager(cfg.JWT.Secret, cfg.JWT.AccessDuration, cfg.JWT.RefreshDuration)

	db := connectPostgres(ctx, cfg)
	defer db.Close()

	redisDB, err := database.NewRedisDB(&cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisDB.Close()
	logger.Info("Connected to Redis", zap.String("addr", cfg.Redis.Addr()))

	// Cassandra holds the durable message archive. Live messaging keeps
	// working without it, so a failed connection degrades rather than aborts.
	var archive chat.MessageArchive
	var activity chat.ActivityRecorder
	cassandraDB, err := database.NewCassandraDB(&cfg.Cassandra)
	if err != nil {
		logger.Warn("Failed to connect to Cassandra, message history disabled", zap.Error(err))
	} else {
		defer cassandraDB.Close()
		archive = cassandra.NewMessageRepository(cassandraDB.Session)
		logger.Info("Connected to Cassandra", zap.Strings("hosts", cfg.Cassandra.Hosts))
	}

	appMetrics := metrics.NewMetrics(serviceName)

	channels := provider.NewHTTPChannelProvider(cfg.Provider.MessagingBaseURL, cfg.Provider.RequestTimeout)
	conversationRepo := postgres.NewConversationRepository(db.Pool)
	activity = conversationRepo

	registry := conversation.NewRegistry(conversationRepo, channels, appMetrics)
	chatService := chat.NewService(channels, registry, archive, activity, appMetrics, cfg.Chat.PollInterval)

	conversationHdlr := conversationHandler.NewHandler(registry)
	chatHdlr := chatHandler.NewHandler(chatService)
	chatStreamHub := wsHandler.NewChatStreamHub(chatService, appMetrics)

	router := newRouter(cfg, appMetrics)

	revocationChecker := middleware.NewRedisRevocationChecker(redisDB.Client)
	rateLimiter := middleware.NewRateLimiter(redisDB.Client, 240, time.Minute)

	v1 := router.Group("/v1")
	v1.Use(middleware.AuthMiddleware(jwtManager, revocationChecker))
	v1.Use(rateLimiter.Middleware())
	{
		v1.POST("/conversations/direct", conversationHdlr.CreateDirect)
		v1.GET("/conversations", conversationHdlr.List)
		v1.GET("/conversations/:id", conversationHdlr.Get)

		v1.POST("/conversations/:id/messages", chatHdlr.SendMessage)
		v1.GET("/conversations/:id/messages", chatHdlr.GetMessages)
		v1.GET("/conversations/:id/history", chatHdlr.GetHistory)
	}

	ws := router.Group("/ws")
	ws.Use(middleware.AuthMiddleware(jwtManager, revocationChecker))
	{
		ws.GET("/conversations", chatStreamHub.ServeWS)
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	logger.Info("Chat service starting", zap.String("addr", addr))
	if err := router.Run(addr); err != nil {
		logger.Fatal("Failed to start server", zap.Error(err))
	}
}

// connectPostgres retries with exponential backoff before giving up
func connectPostgres(ctx context.Context, cfg *config.Config) *database.PostgresDB {
	const maxRetries = 5
	baseDelay := time.Second
	maxDelay := 30 * time.Second

	var db *database.PostgresDB
	var err error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		db, err = database.NewPostgresDB(ctx, &cfg.Database)
		if err == nil {
			logger.Info("Connected to Postgres", zap.Int("attempt", attempt))
			return db
		}
		delay := time.Duration(float64(baseDelay) * math.Pow(2, float64(attempt-1)))
		if delay > maxDelay {
			delay = maxDelay
		}
		logger.Warn("Postgres connection failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", delay),
			zap.Error(err))
		time.Sleep(delay)
	}
	logger.Fatal("Failed to connect to Postgres", zap.Error(err))
	return nil
}

func newRouter(cfg *config.Config, m *metrics.Metrics) *gin.Engine {
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.SetTrustedProxies(nil)

	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.NewPrometheusMiddleware(m).Handler())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "healthy",
			"service": cfg.Server.ServiceName,
			"time":    time.Now().UTC(),
		})
	})
	router.GET("/metrics", middleware.MetricsHandler())

	return router
}
