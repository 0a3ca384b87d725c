package handler

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LoggingMiddleware logs every request, at a level chosen by the response status.
func LoggingMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()
		if err != nil {
			// Render the error now so the logged status is the one the client sees.
			if handlerErr := c.App().ErrorHandler(c, err); handlerErr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		status := c.Response().StatusCode()
		level := zerolog.DebugLevel
		switch {
		case status >= fiber.StatusInternalServerError:
			level = zerolog.ErrorLevel
		case status >= fiber.StatusBadRequest:
			level = zerolog.WarnLevel
		case c.Method() != fiber.MethodGet:
			level = zerolog.InfoLevel
		}

		event := log.WithLevel(level).
			Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Str("ip", c.IP())
		if err != nil {
			event = event.Err(err)
		}
		event.Msg("HTTP request")

		return nil
	}
}

// AdminMiddleware allows admin routes only when admin access is enabled and the
// request was addressed to localhost.
func AdminMiddleware(enabled bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !enabled || !strings.Contains(c.Hostname(), "localhost") {
			log.Warn().
				Str("host", c.Hostname()).
				Str("path", c.Path()).
				Bool("admin_enabled", enabled).
				Msg("Admin access denied")
			return sendError(c, fiber.StatusForbidden, CodeUnauthorized, "Unauthorized")
		}
		return c.Next()
	}
}
