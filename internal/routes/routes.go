package routes

import (
	"time"

	"github.com/gituhb/backend/internal/config"
	"github.com/gituhb/backend/internal/handlers"
	"github.com/gituhb/backend/internal/metrics"
	"github.com/gituhb/backend/internal/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

type Handlers struct {
	Auth         *handlers.AuthHandler
	Health       *handlers.HealthHandler
	Catalogue    *handlers.CatalogueHandler
	Profiles     *handlers.ProfileHandler
	Projects     *handlers.ProjectHandler
	Applications *handlers.ApplicationHandler
	GitHub       *handlers.GitHubHandler
}

// Setup registers every route. limiterStorage may be nil, in which case the
// rate limiters keep their counters in process memory.
func Setup(app *fiber.App, cfg *config.Config, h Handlers, limiterStorage fiber.Storage) {
	app.Get("/metrics", middleware.OpsTokenRequired(cfg.OpsToken), adaptor.HTTPHandler(metrics.Handler()))

	api := app.Group("/api")

	// General API rate limiter: 60 req/min per IP
	api.Use(limiter.New(limiter.Config{
		Max:               60,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return "api:" + c.IP() },
		Storage:           limiterStorage,
	}))

	protected := middleware.JWTProtected(cfg)
	optional := middleware.JWTOptional(cfg)

	api.Get("/health", h.Health.Check)
	api.Get("/catalogue", h.Catalogue.Get)

	// Auth-specific rate limit: 10 req/min per IP (stricter)
	auth := api.Group("/auth")
	auth.Use(limiter.New(limiter.Config{
		Max:               10,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return "auth:" + c.IP() },
		Storage:           limiterStorage,
	}))
	auth.Post("/github", h.Auth.GitHubSignIn)
	auth.Post("/refresh", h.Auth.Refresh)
	auth.Post("/logout", protected, h.Auth.Logout)
	auth.Delete("/account", protected, h.Auth.DeleteAccount)

	// Current user
	me := api.Group("/me", protected)
	me.Get("/", h.Profiles.Me)
	me.Put("/username", h.Profiles.UpdateUsername)
	me.Put("/profile", h.Profiles.UpdateProfile)
	me.Get("/applications", h.Applications.Mine)
	me.Get("/projects", h.Projects.Mine)

	api.Post("/verify-email/send", protected, h.Profiles.SendVerification)
	api.Post("/verify-email/confirm", protected, h.Profiles.ConfirmVerification)

	api.Get("/profiles/:username", h.Profiles.Get)
	api.Get("/github/repos", protected, h.GitHub.Repos)
	api.Post("/github/disconnect", protected, h.Auth.DisconnectGitHub)

	// Projects; "featured" must be registered ahead of the slug route.
	projects := api.Group("/projects")
	projects.Get("/", h.Projects.Search)
	projects.Get("/featured", h.Projects.Featured)
	projects.Get("/:slug", optional, h.Projects.Get)
	projects.Post("/", protected, h.Projects.Create)
	projects.Put("/:id", protected, h.Projects.Update)
	projects.Delete("/:id", protected, h.Projects.Delete)
	projects.Post("/:id/github/refresh", protected, h.Projects.RefreshGitHub)
	projects.Get("/:id/github/activity", h.Projects.Activity)
	projects.Post("/:id/applications", protected, h.Applications.Submit)
	projects.Put("/:id/applications/:appId", protected, h.Applications.SetStatus)

	api.Post("/applications/:id/withdraw", protected, h.Applications.Withdraw)
}
