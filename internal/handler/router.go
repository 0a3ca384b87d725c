package handler

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog/log"

	"telegram-clicker/internal/config"
	"telegram-clicker/internal/service"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies holds everything the HTTP API needs.
type Dependencies struct {
	Config         *config.Config
	Store          Pinger
	AccountService *service.AccountService
	TaskService    *service.TaskService
	ClaimService   *service.ClaimService
	AdminService   *service.AdminService
}

// NewApp creates the fiber application with middleware and routes registered.
func NewApp(deps *Dependencies) *fiber.App {
	cfg := deps.Config

	app := fiber.New(fiber.Config{
		AppName:               "telegram-clicker",
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		DisableStartupMessage: true,
		ErrorHandler:          ErrorHandler,
	})

	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c *fiber.Ctx, e interface{}) {
			log.Error().
				Interface("panic", e).
				Str("path", c.Path()).
				Msg("Recovered from panic in handler")
		},
	}))
	app.Use(LoggingMiddleware())
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.Server.AllowedOrigins, ","),
		AllowMethods: "GET,POST,PUT,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))

	app.Get("/healthz", healthHandler(deps.Store))

	api := app.Group("/api")
	if cfg.RateLimit.Max > 0 {
		api.Use(limiter.New(limiter.Config{
			Max:        cfg.RateLimit.Max,
			Expiration: cfg.RateLimit.Window,
			LimitReached: func(c *fiber.Ctx) error {
				log.Warn().
					Str("ip", c.IP()).
					Str("path", c.Path()).
					Msg("Rate limit exceeded")
				return sendError(c, fiber.StatusTooManyRequests, CodeRateLimited, "Too many requests. Please try again later.")
			},
		}))
	}

	userHandler := NewUserHandler(deps.AccountService, deps.TaskService)
	claimHandler := NewClaimHandler(deps.ClaimService)
	adminHandler := NewAdminHandler(deps.AdminService)

	api.Post("/user", userHandler.HandleUser)
	api.Post("/user/transactions", userHandler.HandleTransactions)
	api.Post("/tasks", userHandler.HandleTasks)
	api.Post("/tasks/start", userHandler.HandleStartTask)
	api.Post("/tasks/check/visit", claimHandler.HandleCheckVisit)

	admin := api.Group("/admin", AdminMiddleware(cfg.Admin.Enabled))
	admin.Get("/tasks", adminHandler.HandleListTasks)
	admin.Post("/tasks", adminHandler.HandleCreateTask)
	admin.Put("/tasks/:id", adminHandler.HandleUpdateTask)
	admin.Post("/export", adminHandler.HandleExport)

	return app
}

func healthHandler(store Pinger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := store.Ping(c.UserContext()); err != nil {
			log.Error().Err(err).Msg("Health check failed")
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "unhealthy",
			})
		}
		return c.JSON(fiber.Map{"status": "healthy"})
	}
}
