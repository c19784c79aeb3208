package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/llteacher/llteacher-api/internal/config"
	"github.com/llteacher/llteacher-api/internal/database"
	"github.com/llteacher/llteacher-api/internal/handler"
	"github.com/llteacher/llteacher-api/internal/middleware"
	"github.com/llteacher/llteacher-api/internal/repository"
	"github.com/llteacher/llteacher-api/internal/router"
	"github.com/llteacher/llteacher-api/internal/service"
	"github.com/llteacher/llteacher-api/pkg/ai"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := database.Migrate(db); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	validate := validator.New(validator.WithRequiredStructEnabled())

	aiClient := ai.NewOpenAIClient(ai.OpenAIConfig{
		BaseURL: cfg.OpenAIBaseURL,
		Logger:  logger,
	})

	userRepo := repository.NewUserRepository(db)
	homeworkRepo := repository.NewHomeworkRepository(db)
	conversationRepo := repository.NewConversationRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	tutorConfigRepo := repository.NewTutorConfigRepository(db)

	authService := service.NewAuthService(userRepo, validate, cfg.JWTSecret, cfg.JWTTokenTTL, cfg.AllowedEmailDomains, logger)
	progressService := service.NewProgressService(conversationRepo, submissionRepo, logger)
	tutorConfigService := service.NewTutorConfigService(tutorConfigRepo, aiClient, redisClient, cfg.TutorCacheTTL, validate, logger)
	homeworkService := service.NewHomeworkService(homeworkRepo, userRepo, conversationRepo, submissionRepo, progressService, validate, logger)
	conversationService := service.NewConversationService(conversationRepo, submissionRepo, homeworkRepo, userRepo, tutorConfigService, aiClient, validate, logger)
	streamService := service.NewStreamService(conversationRepo, homeworkRepo, tutorConfigService, aiClient, validate, logger)

	authHandler := handler.NewAuthHandler(authService, logger)
	homeworkHandler := handler.NewHomeworkHandler(homeworkService, logger)
	conversationHandler := handler.NewConversationHandler(conversationService, streamService, logger)
	tutorConfigHandler := handler.NewTutorConfigHandler(tutorConfigService, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		AuthHandler:         authHandler,
		HomeworkHandler:     homeworkHandler,
		ConversationHandler: conversationHandler,
		TutorConfigHandler:  tutorConfigHandler,
		JWTMiddleware:       middleware.JWTProtected(cfg.JWTSecret),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
