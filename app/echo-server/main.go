package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cartlift/app/echo-server/router"
	"cartlift/business/attribution"
	"cartlift/business/performance"
	"cartlift/business/pipeline"
	"cartlift/business/profile"
	"cartlift/business/similarity"
	"cartlift/internal/middleware"
	psqlRepo "cartlift/internal/repository/postgres"
	redisRepo "cartlift/internal/repository/redis"
	"cartlift/internal/rest"
	"cartlift/pkg/config"
	"cartlift/pkg/database"
	redisdb "cartlift/pkg/database/redis"
	"cartlift/pkg/logger"
	"cartlift/pkg/metrics"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.Init(cfg.App.Environment)
	logger.Info("Starting Cartlift pipeline", "version", cfg.App.Version)

	db, err := database.InitPostgres(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to database", "error", err)
	}

	logger.Info("Database connected successfully")

	redisClient, err := redisdb.InitRedis(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to redis", "error", err)
	}

	metrics.Init()

	// Init repo
	eventRepo := psqlRepo.NewEventRepository(db)
	simRepo := psqlRepo.NewSimilarityRepository(db)
	perfRepo := psqlRepo.NewPerformanceRepository(db)
	profileRepo := psqlRepo.NewProfileRepository(db)
	attrRepo := psqlRepo.NewAttributionRepository(db)
	statusRepo := redisRepo.NewStatusRepository(redisClient)

	// Init service
	simService := similarity.NewService(eventRepo, simRepo, cfg.Pipeline.SimilarityWindowDays)
	perfService := performance.NewService(eventRepo, attrRepo, perfRepo, cfg.Pipeline.PerformanceWindowDays)
	profService := profile.NewService(eventRepo, profileRepo, cfg.Pipeline.ProfileWindowDays, cfg.Pipeline.PseudonymKey)
	attrService := attribution.NewService(
		eventRepo,
		attrRepo,
		simRepo,
		profileRepo,
		cfg.Pipeline.AttributionWindowDays,
		cfg.Pipeline.ServedEventCap,
	)
	runner := pipeline.NewRunner(eventRepo, statusRepo, simService, perfService, profService, cfg.Pipeline.PrivacyLevel)

	// Init handler
	pipelineHandler := rest.NewPipelineHandler(runner, statusRepo)
	webhookHandler := rest.NewWebhookHandler(attrService)

	// Init echo
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// HTTP error handler
	e.HTTPErrorHandler = middleware.ErrorHandler

	// Global middleware
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: []string{"http://localhost:3000", "http://localhost:8080"},
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Setup routes
	authRequired := middleware.AuthMiddleware(cfg.JWT.SecretKey)
	api := e.Group("/api/v1")
	router.SetJobRoutes(api, pipelineHandler, authRequired)
	router.SetWebhookRoutes(api, webhookHandler)

	// Goroutine server
	go func() {
		addr := fmt.Sprintf(":%s", cfg.Server.Port)
		logger.Info("Server starting", "address", addr)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", "error", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Shutdown server
	if err := e.Shutdown(ctx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	logger.Info("Server stopped")
}
