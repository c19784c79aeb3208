package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/llteacher/llteacher-api/internal/dto"
	"github.com/llteacher/llteacher-api/internal/service"
	"github.com/llteacher/llteacher-api/internal/utils"
)

// TutorConfigHandler wires tutor configuration management routes.
type TutorConfigHandler struct {
	service service.TutorConfigService
	logger  zerolog.Logger
}

// NewTutorConfigHandler constructs the handler.
func NewTutorConfigHandler(service service.TutorConfigService, logger zerolog.Logger) *TutorConfigHandler {
	return &TutorConfigHandler{
		service: service,
		logger:  logger.With().Str("component", "tutor_config_handler").Logger(),
	}
}

// Register attaches configuration endpoints to the router group.
func (h *TutorConfigHandler) Register(router fiber.Router) {
	router.Get("", h.list)
	router.Get("/:id", h.get)
	router.Post("", h.create)
	router.Patch("/:id", h.update)
	router.Delete("/:id", h.delete)
	router.Post("/:id/test", h.test)
	router.Post("/generate", h.generate)
}

func (h *TutorConfigHandler) list(c *fiber.Ctx) error {
	configs, err := h.service.List(c.Context())
	if err != nil {
		return h.internalError(c, err)
	}

	return utils.SendSuccess(c, "configurations retrieved", configs)
}

func (h *TutorConfigHandler) get(c *fiber.Ctx) error {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	config, err := h.service.Get(c.Context(), id)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "configuration retrieved", config)
}

func (h *TutorConfigHandler) create(c *fiber.Ctx) error {
	var payload dto.TutorConfigCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	config, err := h.service.Create(c.Context(), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "configuration created", config)
}

func (h *TutorConfigHandler) update(c *fiber.Ctx) error {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.TutorConfigUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	config, err := h.service.Update(c.Context(), id, payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "configuration updated", config)
}

func (h *TutorConfigHandler) delete(c *fiber.Ctx) error {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.service.Delete(c.Context(), id); err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "configuration deleted", fiber.Map{"id": id})
}

func (h *TutorConfigHandler) test(c *fiber.Ctx) error {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.TutorConfigTestRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	result, err := h.service.Test(c.Context(), id, payload)
	if err != nil {
		if errors.Is(err, service.ErrTutorUnavailable) {
			return utils.SendError(c, fiber.StatusBadGateway, "tutor provider request failed")
		}
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "configuration tested", result)
}

func (h *TutorConfigHandler) generate(c *fiber.Ctx) error {
	var payload dto.GenerateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	result, err := h.service.Generate(c.Context(), payload)
	if err != nil {
		if errors.Is(err, service.ErrTutorUnavailable) {
			return utils.SendError(c, fiber.StatusBadGateway, "tutor provider request failed")
		}
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "completion generated", result)
}

func (h *TutorConfigHandler) handleError(c *fiber.Ctx, err error) error {
	var validationErrors validator.ValidationErrors
	switch {
	case errors.Is(err, service.ErrTutorConfigNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "configuration not found")
	case errors.Is(err, service.ErrNoTutorConfig):
		return utils.SendError(c, fiber.StatusConflict, "no active tutor configuration available")
	case errors.Is(err, service.ErrDefaultConfigLocked):
		return utils.SendError(c, fiber.StatusConflict, "default configuration cannot be deleted")
	case errors.Is(err, service.ErrTutorConfigNameTaken):
		return utils.SendError(c, fiber.StatusConflict, "configuration name already in use")
	case errors.As(err, &validationErrors):
		return utils.SendError(c, fiber.StatusBadRequest, validationErrors.Error())
	default:
		return h.internalError(c, err)
	}
}

func (h *TutorConfigHandler) internalError(c *fiber.Ctx, err error) error {
	requestLogger(h.logger, c).Error().Err(err).Msg("internal server error")
	return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
}
