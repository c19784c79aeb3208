package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/llteacher/llteacher-api/internal/config"
	"github.com/llteacher/llteacher-api/internal/handler"
	"github.com/llteacher/llteacher-api/internal/middleware"
	"github.com/llteacher/llteacher-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	AuthHandler         *handler.AuthHandler
	HomeworkHandler     *handler.HomeworkHandler
	ConversationHandler *handler.ConversationHandler
	TutorConfigHandler  *handler.TutorConfigHandler
	JWTMiddleware       fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	// Common v1 group for health & headers
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))
	app.Get("/metrics", observability.MetricsHandler())

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	if deps.AuthHandler != nil {
		auth := api.Group("/auth")
		deps.AuthHandler.Register(auth)

		protected := auth.Group("", jwtMiddleware)
		deps.AuthHandler.RegisterProtected(protected)
	}

	if deps.HomeworkHandler != nil {
		homeworks := api.Group("/homeworks", jwtMiddleware)
		deps.HomeworkHandler.Register(homeworks)

		authoring := homeworks.Group("", middleware.RequireRole("teacher"))
		deps.HomeworkHandler.RegisterTeacher(authoring)
	}

	if deps.ConversationHandler != nil {
		conversations := api.Group("/conversations", jwtMiddleware)
		deps.ConversationHandler.Register(conversations)

		chat := conversations.Group("", middleware.RateLimit("chat", cfg.ChatRateLimit, cfg.ChatRateWindow))
		deps.ConversationHandler.RegisterChat(chat)
	}

	if deps.TutorConfigHandler != nil {
		configs := api.Group("/tutor-configs", jwtMiddleware, middleware.RequireRole("teacher"))
		deps.TutorConfigHandler.Register(configs)
	}
}
