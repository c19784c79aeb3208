package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/llteacher/llteacher-api/internal/middleware"
	"github.com/llteacher/llteacher-api/internal/models"
)

func parseUUIDParam(c *fiber.Ctx, name string) (uuid.UUID, error) {
	parsed, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, errors.New("invalid identifier")
	}
	return parsed, nil
}

func userIDFromContext(c *fiber.Ctx) uuid.UUID {
	if v := c.Locals("user_id"); v != nil {
		if id, ok := v.(uuid.UUID); ok {
			return id
		}
		if raw, ok := v.(string); ok {
			if id, err := uuid.Parse(raw); err == nil {
				return id
			}
		}
	}
	return uuid.Nil
}

func userRoleFromContext(c *fiber.Ctx) models.Role {
	if v := c.Locals("user_role"); v != nil {
		if role, ok := v.(string); ok {
			return models.Role(role)
		}
	}
	return ""
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		if correlation := middleware.GetCorrelationID(c); correlation != "" {
			logger = base.With().Str("correlation_id", correlation).Logger()
		}
	}
	return &logger
}
