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

// HomeworkHandler wires homework and section HTTP routes.
type HomeworkHandler struct {
	service service.HomeworkService
	logger  zerolog.Logger
}

// NewHomeworkHandler constructs the handler.
func NewHomeworkHandler(service service.HomeworkService, logger zerolog.Logger) *HomeworkHandler {
	return &HomeworkHandler{
		service: service,
		logger:  logger.With().Str("component", "homework_handler").Logger(),
	}
}

// Register attaches homework endpoints to the router group.
func (h *HomeworkHandler) Register(router fiber.Router) {
	router.Get("", h.list)
	router.Get("/:id", h.get)
	router.Get("/sections/:id", h.section)
}

// RegisterTeacher attaches authoring endpoints restricted to teachers.
func (h *HomeworkHandler) RegisterTeacher(router fiber.Router) {
	router.Post("", h.create)
	router.Patch("/:id", h.update)
	router.Delete("/:id", h.delete)
}

func (h *HomeworkHandler) list(c *fiber.Ctx) error {
	items, err := h.service.List(c.Context(), userIDFromContext(c), userRoleFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "homeworks retrieved", items)
}

func (h *HomeworkHandler) get(c *fiber.Ctx) error {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	detail, err := h.service.Get(c.Context(), userIDFromContext(c), userRoleFromContext(c), id)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "homework retrieved", detail)
}

func (h *HomeworkHandler) section(c *fiber.Ctx) error {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	detail, err := h.service.GetSection(c.Context(), userIDFromContext(c), userRoleFromContext(c), id)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "section retrieved", detail)
}

func (h *HomeworkHandler) create(c *fiber.Ctx) error {
	var payload dto.HomeworkCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	result, err := h.service.Create(c.Context(), userIDFromContext(c), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "homework created", result)
}

func (h *HomeworkHandler) update(c *fiber.Ctx) error {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.HomeworkUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	result, err := h.service.Update(c.Context(), userIDFromContext(c), id, payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "homework updated", result)
}

func (h *HomeworkHandler) delete(c *fiber.Ctx) error {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.service.Delete(c.Context(), userIDFromContext(c), id); err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "homework deleted", fiber.Map{"id": id})
}

func (h *HomeworkHandler) handleError(c *fiber.Ctx, err error) error {
	var validationErrors validator.ValidationErrors
	switch {
	case errors.Is(err, service.ErrHomeworkNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "homework not found")
	case errors.Is(err, service.ErrSectionNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "section not found")
	case errors.Is(err, service.ErrNotHomeworkOwner):
		return utils.SendError(c, fiber.StatusForbidden, "homework belongs to another teacher")
	case errors.Is(err, service.ErrTeacherProfileMissing):
		return utils.SendError(c, fiber.StatusForbidden, "teacher profile required")
	case errors.Is(err, service.ErrDuplicateSectionOrder):
		return utils.SendError(c, fiber.StatusBadRequest, "section orders must be unique")
	case errors.As(err, &validationErrors):
		return utils.SendError(c, fiber.StatusBadRequest, validationErrors.Error())
	default:
		return h.internalError(c, err)
	}
}

func (h *HomeworkHandler) internalError(c *fiber.Ctx, err error) error {
	requestLogger(h.logger, c).Error().Err(err).Msg("internal server error")
	return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
}
