package main

import (
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentryfiber "github.com/getsentry/sentry-go/fiber"

	"github.com/gituhb/backend/internal/cache"
	"github.com/gituhb/backend/internal/campus"
	"github.com/gituhb/backend/internal/config"
	"github.com/gituhb/backend/internal/database"
	"github.com/gituhb/backend/internal/dto"
	"github.com/gituhb/backend/internal/github"
	"github.com/gituhb/backend/internal/handlers"
	"github.com/gituhb/backend/internal/logging"
	"github.com/gituhb/backend/internal/mail"
	"github.com/gituhb/backend/internal/metrics"
	"github.com/gituhb/backend/internal/middleware"
	"github.com/gituhb/backend/internal/routes"
	"github.com/gituhb/backend/internal/services"
	"github.com/gituhb/backend/internal/store"
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
)

const activityCacheTTL = 10 * time.Minute

func main() {
	cfg := config.Load()

	// Structured logging (JSON to stdout)
	level := logging.Setup(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// Campus catalogue
	registry, err := campus.LoadFromFile(cfg.CampusConfigPath)
	if err != nil {
		slog.Error("failed to load campus catalogue", "path", cfg.CampusConfigPath, "error", err)
		os.Exit(1)
	}
	cat := registry.Get()
	slog.Info("campus catalogue loaded", "campus", cat.Name, "domains", len(cat.EmailDomains), "tech", len(cat.TechStack))

	// Database
	if err := database.Connect(cfg); err != nil {
		slog.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	if err := database.Migrate(); err != nil {
		slog.Error("migration failed", "error", err)
		os.Exit(1)
	}

	// PostgreSQL log handler (ERROR+ async batch)
	pgLogHandler := logging.NewPGHandler(database.DB)
	slog.SetDefault(slog.New(logging.NewMultiHandler(
		slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}),
		pgLogHandler,
	)))

	st := store.NewGormStore(database.DB)

	// Retention jobs
	janitor := logging.NewJanitor(database.DB, st)
	if err := janitor.Start(); err != nil {
		slog.Error("failed to schedule cleanup jobs", "error", err)
		os.Exit(1)
	}

	// Shared rate limiter storage
	var limiterStorage fiber.Storage
	if cfg.RedisURL != "" {
		rs, err := cache.NewRedisStorage(cfg.RedisURL)
		if err != nil {
			slog.Error("redis unavailable, rate limits are per instance", "error", err)
		} else {
			limiterStorage = rs
			defer rs.Close()
		}
	}

	// GitHub + mail
	ghClient := github.NewClient(cfg.GitHubAPIURL)
	syncer := github.NewSyncer(ghClient, st, cfg.GitHubSyncTimeout)
	mailer := mail.New(cfg.ResendAPIKey, cfg.MailFrom, cfg.VerificationCodeTTL)

	// Services
	authService := services.NewAuthService(st, cfg, ghClient)
	projectService := services.NewProjectService(st, syncer)
	listingService := services.NewListingService(st)
	applicationService := services.NewApplicationService(st)
	profileService := services.NewProfileService(st)
	verificationService := services.NewVerificationService(st, registry, mailer, cfg.VerificationCodeTTL)
	githubService := services.NewGitHubService(st, ghClient, activityCacheTTL)

	// Handlers
	h := routes.Handlers{
		Auth:         handlers.NewAuthHandler(authService),
		Health:       handlers.NewHealthHandler(database.Ping, registry),
		Catalogue:    handlers.NewCatalogueHandler(registry),
		Profiles:     handlers.NewProfileHandler(profileService, verificationService),
		Projects:     handlers.NewProjectHandler(projectService, listingService, githubService),
		Applications: handlers.NewApplicationHandler(applicationService, listingService),
		GitHub:       handlers.NewGitHubHandler(githubService),
	}

	// Sentry error tracking
	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			EnableTracing:    true,
			TracesSampleRate: 0.2,
			Environment:      cfg.AppEnv,
		}); err != nil {
			slog.Error("sentry init failed", "error", err)
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	// Fiber app
	app := fiber.New(fiber.Config{
		BodyLimit:    1 * 1024 * 1024,
		ErrorHandler: customErrorHandler,
	})

	app.Use(sentryfiber.New(sentryfiber.Options{
		Repanic:         true,
		WaitForDelivery: false,
	}))

	// Global middleware
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${time} | ${status} | ${latency} | ${ip} | ${method} | ${path} | ${locals:requestid}\n",
	}))
	app.Use(metrics.Middleware())
	app.Use(middleware.CORS(cfg))
	app.Use(middleware.SecurityHeaders())

	routes.Setup(app, cfg, h, limiterStorage)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "port", cfg.Port, "env", cfg.AppEnv)
		if err := app.Listen(":" + cfg.Port); err != nil {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-quit
	slog.Info("shutting down server...")

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	syncer.Wait()
	janitor.Stop()
	pgLogHandler.Stop()
	sentry.Flush(2 * time.Second)

	// Close database connections
	if sqlDB, err := database.DB.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			slog.Error("database close error", "error", err)
		}
	}

	slog.Info("server stopped")
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal server error"
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		message = fe.Message
	}

	// Only expose error details for client errors (4xx), not server errors (5xx)
	if code >= 500 {
		slog.Error("unhandled server error", "method", c.Method(), "path", c.Path(), "error", err.Error())
		message = "Internal server error"
	}

	return c.Status(code).JSON(dto.ErrorResponse{
		Error:   true,
		Code:    codeName(code),
		Message: message,
	})
}

func codeName(status int) string {
	switch status {
	case fiber.StatusNotFound:
		return "not_found"
	case fiber.StatusMethodNotAllowed:
		return "method_not_allowed"
	case fiber.StatusRequestEntityTooLarge:
		return "payload_too_large"
	case fiber.StatusTooManyRequests:
		return "rate_limited"
	}
	if status >= 500 {
		return "internal"
	}
	return "bad_request"
}
