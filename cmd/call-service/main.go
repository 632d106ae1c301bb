package main

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	callHandler "telecare-backend/internal/handler/http/call"
	deviceHandler "telecare-backend/internal/handler/http/device"
	wsHandler "telecare-backend/internal/handler/ws"
	"telecare-backend/internal/middleware"
	"telecare-backend/internal/provider"
	"telecare-backend/internal/repository/postgres"
	redisRepo "telecare-backend/internal/repository/redis"
	callService "telecare-backend/internal/service/call"
	"telecare-backend/internal/service/notification"
	"telecare-backend/internal/service/session"
	"telecare-backend/pkg/config"
	"telecare-backend/pkg/database"
	"telecare-backend/pkg/jwt"
	"telecare-backend/pkg/logger"
	"telecare-backend/pkg/metrics"
	"telecare-backend/pkg/push"
)

const serviceName = "call-service"

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

	// Appointments live in Postgres; the service cannot authorize calls
	// without it.
	db := connectPostgres(ctx, cfg)
	defer db.Close()

	// Redis holds session descriptors, device tokens and the token blacklist.
	redisDB, err := database.NewRedisDB(&cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisDB.Close()
	logger.Info("Connected to Redis", zap.String("addr", cfg.Redis.Addr()))

	appointmentRepo := postgres.NewAppointmentRepository(db.Pool)
	descriptorRepo := redisRepo.NewDescriptorRepository(redisDB.Client)
	pushTokenRepo := redisRepo.NewPushTokenRepository(redisDB.Client)

	appMetrics := metrics.NewMetrics(serviceName)

	meetings := provider.NewHTTPMeetingProvider(cfg.Provider.MeetingBaseURL, cfg.Provider.RequestTimeout)

	pushProvider, err := push.NewProviderFromEnv()
	if err != nil {
		if cfg.Server.Environment == "production" {
			logger.Fatal("Push provider initialization failed", zap.Error(err))
		}
		logger.Warn("Push provider initialization failed, falling back to mock", zap.Error(err))
		pushProvider = push.NewMockProvider()
	}

	negotiator := session.NewNegotiator(appointmentRepo, descriptorRepo, meetings, cfg.Provider.MediaRegion, appMetrics)
	ringService := notification.NewRingService(pushProvider, pushTokenRepo, appMetrics)
	callManager := callService.NewManager(negotiator, meetings, appointmentRepo, ringService, appMetrics)

	callHdlr := callHandler.NewHandler(callManager)
	deviceHdlr := deviceHandler.NewHandler(ringService)
	callEventHub := wsHandler.NewCallEventHub(callManager, appMetrics)

	router := newRouter(cfg, appMetrics)

	revocationChecker := middleware.NewRedisRevocationChecker(redisDB.Client)
	rateLimiter := middleware.NewRateLimiter(redisDB.Client, 120, time.Minute)

	v1 := router.Group("/v1")
	v1.Use(middleware.AuthMiddleware(jwtManager, revocationChecker))
	v1.Use(rateLimiter.Middleware())
	{
		v1.POST("/calls", callHdlr.StartCall)
		v1.GET("/calls/:id", callHdlr.GetCall)
		v1.POST("/calls/:id/end", callHdlr.EndCall)
		v1.POST("/calls/:id/mute", callHdlr.ToggleMute)
		v1.POST("/calls/:id/video", callHdlr.ToggleVideo)

		v1.POST("/devices", deviceHdlr.Register)
		v1.DELETE("/devices/:token", deviceHdlr.Unregister)
	}

	ws := router.Group("/ws")
	ws.Use(middleware.AuthMiddleware(jwtManager, revocationChecker))
	{
		ws.GET("/calls", callEventHub.ServeWS)
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	logger.Info("Call service starting", zap.String("addr", addr))
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
