package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"github.com/mathgemini/tutor-backend/internal/ai/gemini"
	"github.com/mathgemini/tutor-backend/internal/api"
	"github.com/mathgemini/tutor-backend/internal/attachment"
	"github.com/mathgemini/tutor-backend/internal/cache/redis"
	"github.com/mathgemini/tutor-backend/internal/config"
	"github.com/mathgemini/tutor-backend/internal/service"
	"github.com/mathgemini/tutor-backend/internal/service/tutor"
	"github.com/mathgemini/tutor-backend/internal/storage/postgres"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	// Load .env if present, then configuration from the environment
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("failed to load configuration")
	}

	// Configure log format
	if cfg.LogFormat == "text" {
		logger.SetFormatter(&logrus.TextFormatter{})
	}

	logger.Info("starting tutor-backend server")

	// Connect to database
	ctx := context.Background()
	db, err := postgres.New(ctx, cfg.Database.DSN)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to database")
	}
	defer db.Close()

	// Initialize Redis client
	redisClient, err := redis.New(cfg.Redis.URI)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to redis")
	}
	defer redisClient.Close()

	// Initialize Gemini client. The API key is validated here so a missing
	// credential fails loudly at startup instead of on the first turn.
	geminiClient, err := gemini.NewClient(cfg.Gemini.APIKey, cfg.Gemini.Model, cfg.Gemini.Temperature, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize gemini client")
	}

	// Initialize services
	authService := service.NewAuthService(cfg.Server.JWTSecret)
	attachmentStore := attachment.NewStore(redisClient, logger)

	// Initialize repositories
	convRepo := postgres.NewConversationRepository(db.Pool())
	msgRepo := postgres.NewMessageRepository(db.Pool())

	// Initialize tutor service
	tutorService := tutor.NewService(geminiClient, msgRepo, convRepo, attachmentStore, logger)

	// Initialize API server
	server := api.NewServer(authService, convRepo, tutorService, attachmentStore, logger)

	// Create Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Add middleware
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.WithFields(logrus.Fields{
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"request_id": c.Response().Header().Get(echo.HeaderXRequestID),
			}).Info("request")
			return nil
		},
	}))

	// Health check endpoint (public)
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status": "ok",
		})
	})

	// Attachment previews are fetched by <img> tags and carry no bearer
	// token; ids are unguessable and staged records expire quickly.
	e.GET("/chat/attachments/:id", server.GetAttachment)

	// Chat routes (authenticated)
	chat := e.Group("/chat", server.AuthMiddleware)
	chat.POST("/conversations", server.CreateConversation)
	chat.POST("/conversations/list", server.ListConversations)
	chat.POST("/conversations/:id", server.GetConversation)
	chat.DELETE("/conversations/:id", server.DeleteConversation)
	chat.POST("/conversations/:id/messages", server.SendMessage)
	chat.POST("/attachments", server.UploadAttachment)

	// Start server
	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	go func() {
		logger.WithField("addr", addr).Info("server listening")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("server error")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("server shutdown error")
	}

	logger.Info("server stopped")
}
