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
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tonemesh/backend/internal/cache"
	"github.com/tonemesh/backend/internal/config"
	"github.com/tonemesh/backend/internal/database"
	"github.com/tonemesh/backend/internal/feed"
	"github.com/tonemesh/backend/internal/handlers"
	"github.com/tonemesh/backend/internal/logger"
	"github.com/tonemesh/backend/internal/middleware"
	"github.com/tonemesh/backend/internal/pagination"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using system environment variables")
	}

	cfg := config.Load()

	if err := logger.Initialize(cfg.LogLevel, cfg.LogFile); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Close()

	log.Println("=== tonemesh feed server starting ===")

	// Initialize database
	if err := database.Initialize(); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	if err := database.Migrate(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Pagination options from config overrides
	opts := pagination.DefaultOptions()
	if cfg.PostsPerPage > 0 {
		opts.PostsPerPage = cfg.PostsPerPage
	}
	if cfg.MinResultsForFilter > 0 {
		opts.MinResultsForFilter = cfg.MinResultsForFilter
	}
	if cfg.MaxAutoFetchPosts > 0 {
		opts.MaxAutoFetchPosts = cfg.MaxAutoFetchPosts
	}
	if cfg.FetchTimeout > 0 {
		opts.FetchTimeout = cfg.FetchTimeout
	}
	if cfg.MaxMemoryPosts > 0 {
		opts.MaxMemoryPosts = cfg.MaxMemoryPosts
	}
	if cfg.CacheSize > 0 {
		opts.CacheSize = cfg.CacheSize
	}

	optimizer := pagination.NewOptimizer(opts)

	// Redis is optional; the request cache works in-memory without it and
	// the rate limiter is disabled
	var redisClient *cache.RedisClient
	if cfg.RedisHost != "" {
		var err error
		if redisClient, err = cache.NewRedisClient(cfg.RedisHost, cfg.RedisPort, cfg.RedisPassword); err != nil {
			log.Printf("Warning: Redis unavailable, request cache is in-memory only: %v", err)
			redisClient = nil
		} else {
			optimizer.WithRedis(redisClient)
			defer redisClient.Close()
		}
	}

	repo := feed.NewRepository(database.DB)
	h := handlers.NewHandlers(repo, optimizer)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.GinLoggerMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", h.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.Use(middleware.RedisRateLimitMiddleware(redisClient, 300, time.Minute))
	{
		v1.GET("/feed", h.GetFeed)
		v1.GET("/feed/stats", h.GetFeedStats)
		v1.GET("/posts/:id", h.GetPost)
		v1.POST("/posts", h.CreatePost)
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("Listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Forced shutdown: %v", err)
	}
	log.Println("Server stopped")
}
