package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/satriahrh/aidoctor/internal/api"
	"github.com/satriahrh/aidoctor/internal/app"
	"github.com/satriahrh/aidoctor/internal/auth"
	"github.com/satriahrh/aidoctor/internal/config"
	"github.com/satriahrh/aidoctor/internal/metrics"
	"github.com/satriahrh/aidoctor/internal/websocket"
)

func main() {
	configFile := flag.String("config", "", "path to a config file (default ./aidoctor.yaml if present)")
	flag.Parse()

	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	ctx := context.Background()

	// The hub publishes pipeline progress, so it exists before the service
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	hub := websocket.NewHub(cfg.HTTP.AllowedOrigins, m, logger)
	go hub.Run()

	application, err := app.New(ctx, cfg, hub, logger, app.WithMetrics(registry, m))
	if err != nil {
		logger.Fatal("Failed to initialize consultation service", zap.Error(err))
	}
	hub.SetSessionSource(application.Service)

	issuer, err := auth.NewTokenIssuer(cfg.JWT.Secret, cfg.JWT.TTL)
	if err != nil {
		logger.Fatal("Failed to initialize token issuer", zap.Error(err))
	}

	cleanup := websocket.NewSessionCleanupService(application.Service, cfg.Session.CleanupInterval, logger)
	cleanup.Start()

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.HTTP.AllowedOrigins,
	}))
	e.Use(middleware.BodyLimit(strconv.FormatInt(cfg.HTTP.MaxUploadBytes*2, 10) + "B"))

	// Initialize API routes
	handler := api.NewHandler(application.Service, issuer, hub, application.Registry, cfg.HTTP.MaxUploadBytes, logger)
	api.InitRoutes(e, handler)

	port := strconv.Itoa(cfg.HTTP.Port)

	// Graceful shutdown
	go func() {
		if err := e.Start(":" + port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("AI doctor server started", zap.String("port", port))

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Server is shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	cleanup.Stop()
	hub.Stop()
	if err := application.Close(shutdownCtx); err != nil {
		logger.Error("Failed to close external connections", zap.Error(err))
	}

	logger.Info("Server exited")
}
