package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trustguard-client/internal/backend"
	"trustguard-client/internal/config"
	"trustguard-client/internal/database"
	"trustguard-client/internal/events"
	"trustguard-client/internal/handlers"
	"trustguard-client/internal/logger"
	"trustguard-client/internal/middleware"
	"trustguard-client/internal/prefs"
	"trustguard-client/internal/registry"
	"trustguard-client/internal/session"
	"trustguard-client/internal/stats"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg := config.Load()
	log := logger.SetupLogger(cfg.LogLevel)

	// Consent store (client-local, sqlite)
	db, err := database.SetupDatabase(cfg.ConsentDBPath)
	if err != nil {
		log.WithError(err).Fatal("Failed to open consent database")
	}
	store := prefs.NewStore(db, log)

	// External backend
	backendClient := backend.NewClient(cfg.BackendURL, log)

	// Feedback event pipe
	kafkaWriter := events.NewKafkaWriter(cfg.KafkaBroker, cfg.KafkaTopic)
	defer func() {
		if err := kafkaWriter.Close(); err != nil {
			log.WithError(err).Error("Failed to close Kafka writer")
		}
	}()
	feedbackQueue := events.NewFeedbackQueue(kafkaWriter, log, 10000)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go feedbackQueue.StartProcessor(ctx)

	// Core
	orchestrator := session.NewOrchestrator(backendClient, store, feedbackQueue, log, cfg.RotationDelay)
	blockRegistry := registry.New(backendClient, log)
	statsService := stats.NewService(backendClient, blockRegistry, log)

	server := handlers.NewServer(orchestrator, statsService, blockRegistry, backendClient, log)

	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.LoggingMiddleware(log))
	r.Use(middleware.CORSMiddleware())

	// API routes
	api := r.Group("/api/v1")
	{
		api.GET("/session", server.GetSession)
		api.POST("/session/user", server.SwitchUser)
		api.POST("/session/consent", server.Consent)
		api.PUT("/session/preferences", server.UpdatePreferences)
		api.POST("/session/vote", server.Vote)
		api.POST("/session/next", server.Next)

		api.GET("/admin/dashboard", server.AdminDashboard)
		api.GET("/admin/users/:userId/analytics", server.UserAnalytics)
		api.POST("/admin/block", server.BlockAd)
	}

	r.GET("/health", server.Health)
	r.GET("/metrics", handlers.PrometheusHandler())

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	log.WithField("port", cfg.Port).Info("Server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	cancel()

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(ctxShutdown); err != nil {
		log.WithError(err).Fatal("Server forced to shutdown")
	}

	log.Info("Server exited")
}
