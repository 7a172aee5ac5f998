package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tabledrop/backend/internal/auth"
	"github.com/tabledrop/backend/internal/cache"
	"github.com/tabledrop/backend/internal/config"
	"github.com/tabledrop/backend/internal/database"
	"github.com/tabledrop/backend/internal/handlers"
	"github.com/tabledrop/backend/internal/logger"
	"github.com/tabledrop/backend/internal/metrics"
	"github.com/tabledrop/backend/internal/middleware"
	"github.com/tabledrop/backend/internal/realtime"
	"github.com/tabledrop/backend/internal/storage"
	"github.com/tabledrop/backend/internal/telemetry"
	"github.com/tabledrop/backend/internal/websocket"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using system environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := logger.Initialize(cfg.LogLevel, cfg.LogFile); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Close()

	log.Println("=== TableDrop server starting ===")

	// Initialize OpenTelemetry tracing (optional)
	if os.Getenv("OTEL_ENABLED") == "true" {
		tp, err := telemetry.InitTracer(telemetry.Config{
			ServiceName:  "tabledrop-backend",
			Environment:  cfg.Environment,
			OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
			Enabled:      true,
			SamplingRate: 1.0,
		})
		if err != nil {
			log.Printf("Warning: tracing disabled: %v", err)
		} else if tp != nil {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = tp.Shutdown(ctx)
			}()
		}
	}

	// Prometheus metrics registry
	metrics.Initialize()

	// Initialize database
	if err := database.Initialize(); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.Close()

	if err := database.Migrate(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Initialize auth service
	authService := auth.NewService([]byte(cfg.JWTSecret), cfg.TokenTTL)

	// Redis backs the viewport cache and the realtime change feed. The
	// server runs without it, degraded to direct WebSocket delivery.
	redisClient, err := cache.NewRedisClient(cfg.RedisHost, cfg.RedisPort, cfg.RedisPassword)
	if err != nil {
		log.Printf("Warning: Redis unavailable: %v", err)
		log.Println("Continuing without Redis - viewport cache and change feed disabled")
		redisClient = nil
	}

	// Initialize S3 photo storage
	var uploader storage.PhotoUploader
	s3Uploader, err := storage.NewS3Uploader(cfg.S3Region, cfg.S3Bucket, os.Getenv("CDN_BASE_URL"))
	if err != nil {
		log.Printf("Warning: S3 uploader unavailable: %v", err)
		log.Println("Continuing without S3 - photo uploads will fail")
	} else {
		if err := s3Uploader.CheckBucketAccess(context.Background()); err != nil {
			log.Printf("Warning: S3 bucket access failed: %v", err)
		}
		uploader = s3Uploader
	}

	// Initialize WebSocket hub and handler
	wsHub := websocket.NewHub()
	go wsHub.Run()

	wsHandler := websocket.NewHandler(wsHub, []byte(cfg.JWTSecret))
	wsHandler.RegisterDefaultHandlers()

	presenceManager := websocket.NewPresenceManager(wsHub, websocket.DefaultPresenceConfig())
	wsHandler.SetPresenceManager(presenceManager)
	presenceManager.Start()
	defer presenceManager.Stop()

	// Wire the realtime change feed when Redis is available: HTTP writes
	// publish change events, the bridge fans them out to connected clients
	var (
		publisher *realtime.Publisher
		bridge    *websocket.Bridge
	)
	if redisClient != nil {
		publisher = realtime.NewPublisher(redisClient.Redis())
		bridge = websocket.NewBridge(wsHub, realtime.NewRedisBroker(redisClient.Redis()))
		bridge.Start()
		defer bridge.Stop()
	}

	// Initialize HTTP handlers
	h := handlers.NewHandlers(authService)
	h.SetWebSocketHandler(wsHandler)
	h.SetUploader(uploader)
	h.SetPublisher(publisher)
	h.SetBridge(bridge)
	h.SetCache(redisClient)

	if cfg.IsDevelopment() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.GinLoggerMiddleware())
	r.Use(middleware.MetricsMiddleware())
	r.Use(middleware.TracingMiddleware("tabledrop-backend"))
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"*"} // Configure properly for production
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	r.Use(cors.New(corsConfig))

	// Health and metrics
	r.GET("/health", func(c *gin.Context) {
		status := "ok"
		if err := database.Health(); err != nil {
			status = "degraded"
		}
		c.JSON(http.StatusOK, gin.H{
			"status":    status,
			"timestamp": time.Now().UTC(),
			"service":   "tabledrop-backend",
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	{
		// Authentication routes (public, tighter rate limit)
		authGroup := api.Group("/auth")
		authGroup.Use(middleware.RateLimitSmartAuth())
		{
			authGroup.POST("/register", h.Register)
			authGroup.POST("/login", h.Login)
		}

		authed := api.Group("")
		authed.Use(auth.Middleware(authService))
		authed.Use(middleware.RateLimitSmartDefault())
		{
			// Profile routes
			users := authed.Group("/users")
			{
				users.GET("/me", h.GetMe)
				users.PUT("/me", h.UpdateProfile)
				users.POST("/me/avatar", middleware.RateLimitSmartUpload(), h.UploadAvatar)
				users.GET("/me/listings", h.GetMyListings)
				users.GET("/:id", h.GetUserProfile)
			}

			// Listing lifecycle
			listings := authed.Group("/listings")
			{
				listings.POST("", h.CreateListing)
				listings.GET("/:id", h.GetListing)
				listings.PUT("/:id", h.UpdateListing)
				listings.DELETE("/:id", h.DeleteListing)
				listings.POST("/:id/photos", middleware.RateLimitSmartUpload(), h.UploadListingPhoto)
				listings.POST("/:id/reserve", h.ReserveListing)
				listings.POST("/:id/cancel", h.CancelReservation)
				listings.POST("/:id/complete", h.CompleteListing)
				listings.POST("/:id/conversations", h.StartConversation)
			}

			// Map discovery
			authed.GET("/discovery/nearby", middleware.RateLimitSmartDiscovery(), h.GetNearbyListings)

			// Chat
			conversations := authed.Group("/conversations")
			{
				conversations.GET("", h.GetConversations)
				conversations.GET("/:id/messages", h.GetMessages)
				conversations.POST("/:id/messages", h.SendMessage)
				conversations.PUT("/:id/read", h.MarkConversationRead)
			}

			// Community forum
			forum := authed.Group("/forum")
			{
				forum.POST("/threads", h.CreateThread)
				forum.GET("/threads", h.GetThreads)
				forum.GET("/threads/:id", h.GetThread)
				forum.GET("/threads/:id/replies", h.GetReplies)
				forum.POST("/threads/:id/replies", h.CreateReply)
			}

			// Moderation reports
			authed.POST("/reports", h.CreateReport)

			// Admin routes
			admin := authed.Group("/admin")
			admin.Use(auth.RequireAdmin())
			{
				admin.GET("/reports", h.ListReports)
				admin.PUT("/reports/:id", h.ResolveReport)
				admin.PUT("/listings/:id/hide", h.HideListing)
				admin.PUT("/forum/threads/:id/hide", h.HideThread)
				admin.PUT("/forum/threads/:id/lock", h.LockThread)
				admin.PUT("/forum/replies/:id/hide", h.HideReply)
				admin.PUT("/users/:id/ban", h.BanUser)
				admin.PUT("/users/:id/unban", h.UnbanUser)
				admin.GET("/feed/status", h.GetFeedStatus)
				admin.POST("/feed/reconnect", h.ReconnectFeed)
			}
		}

		// WebSocket routes - auth via query param ?token=... or header
		ws := api.Group("/ws")
		{
			ws.GET("", wsHandler.HandleWebSocket)
			ws.GET("/connect", wsHandler.HandleWebSocket)
			ws.GET("/stats", auth.Middleware(authService), wsHandler.HandleStats)
			ws.POST("/online", auth.Middleware(authService), wsHandler.HandleOnlineStatus)
			ws.POST("/presence", auth.Middleware(authService), wsHandler.HandlePresenceStatus)
		}
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		log.Printf("🥘 TableDrop backend starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Give outstanding requests 30 seconds to complete
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := wsHandler.Shutdown(ctx); err != nil {
		log.Printf("WebSocket shutdown warning: %v", err)
	}

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exited")
}
