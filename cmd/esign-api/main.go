package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"esign-portal/esign-backend/internal/app"
	"esign-portal/esign-backend/internal/auth"
	"esign-portal/esign-backend/internal/config"
	"esign-portal/esign-backend/internal/documents"
	"esign-portal/esign-backend/internal/ratelimit"
	"esign-portal/esign-backend/internal/reports"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the JSON config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		panic(err)
	}

	logger, err := cfg.Logging.NewLogger(cfg.Server.Mode == gin.DebugMode)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stack, err := app.New(ctx, cfg, logger, true)
	if err != nil {
		logger.Fatal("Failed to initialize services", zap.Error(err))
	}
	defer func() {
		if err := stack.Close(); err != nil {
			logger.Error("Failed to release resources", zap.Error(err))
		}
	}()

	authService, err := auth.NewService(cfg.Security.JWTSecret, "esign-api")
	if err != nil {
		logger.Fatal("Failed to initialize auth", zap.Error(err))
	}

	limiter, closeLimiter := newLimiter(cfg.RateLimit, logger)
	defer closeLimiter()

	// Setup Router
	gin.SetMode(cfg.Server.Mode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger), cors())
	router.MaxMultipartMemory = cfg.Server.MaxUploadMB << 20

	api := router.Group("/api/v1")
	api.Use(authService.OptionalAuth())
	{
		window := cfg.RateLimit.RateWindow()
		documents.NewHandler(stack.Documents, logger).RegisterRoutes(api, documents.Middleware{
			Authenticated: authService.RequireAuth(),
			SignLimit:     ratelimit.Middleware(limiter, "sign", cfg.RateLimit.Requests, window, logger),
			RejectLimit:   ratelimit.Middleware(limiter, "reject", cfg.RateLimit.Requests, window, logger),
		})
		reports.NewHandler(reports.NewService(stack.Documents, stack.Audit, logger), logger).
			RegisterRoutes(api, authService.RequireAuth())
		api.GET("/documents/:id/events", stack.Events.ServeDocumentEvents)
		auth.RegisterRoutes(api, auth.NewHandler(authService))
	}

	// Health Check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
		})
	})

	srv := &http.Server{
		Addr:         cfg.Server.GetServerAddr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()
	logger.Info("Server started", zap.String("addr", srv.Addr))

	// Graceful Shutdown
	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	logger.Info("Server exiting")
}

// newLimiter shares counters through redis when configured and keeps them
// in process otherwise.
func newLimiter(cfg config.RateLimitConfig, logger *zap.Logger) (ratelimit.Limiter, func()) {
	if cfg.RedisAddr == "" {
		return ratelimit.NewMemoryLimiter(ratelimit.MemoryLimiterConfig{}), func() {}
	}
	limiter, err := ratelimit.NewRedisLimiter(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Fatal("Failed to initialize rate limiter", zap.Error(err))
	}
	logger.Info("Rate limiting through redis", zap.String("addr", cfg.RedisAddr))
	return limiter, func() {
		if err := limiter.Close(); err != nil {
			logger.Warn("Failed to close redis client", zap.Error(err))
		}
	}
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("Request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}

// CORS Middleware
func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
