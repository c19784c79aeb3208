package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	"github.com/llteacher/llteacher-api/internal/dto"
	"github.com/llteacher/llteacher-api/internal/observability"
	"github.com/llteacher/llteacher-api/internal/service"
	"github.com/llteacher/llteacher-api/internal/utils"
)

// ConversationHandler wires chat thread routes including the SSE relay.
type ConversationHandler struct {
	service service.ConversationService
	stream  service.StreamService
	logger  zerolog.Logger
}

// NewConversationHandler constructs the handler.
func NewConversationHandler(service service.ConversationService, stream service.StreamService, logger zerolog.Logger) *ConversationHandler {
	return &ConversationHandler{
		service: service,
		stream:  stream,
		logger:  logger.With().Str("component", "conversation_handler").Logger(),
	}
}

// Register attaches conversation endpoints to the router group. The static
// paths are registered before the parameterized ones.
func (h *ConversationHandler) Register(router fiber.Router) {
	router.Get("", h.list)
	router.Get("/submissions", h.listSubmissions)
	router.Post("/sections/:id/start", h.start)
	router.Get("/:id", h.get)
	router.Get("/:id/messages", h.messages)
	router.Post("/:id/submit", h.submit)
	router.Post("/:id/restart", h.restart)
}

// RegisterChat attaches the message endpoints that carry their own rate limit.
func (h *ConversationHandler) RegisterChat(router fiber.Router) {
	router.Post("/:id/messages", h.send)
	router.Post("/:id/stream", h.streamMessages)
}

func (h *ConversationHandler) start(c *fiber.Ctx) error {
	sectionID, err := parseUUIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	result, err := h.service.Start(c.Context(), userIDFromContext(c), sectionID)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "conversation started", result)
}

func (h *ConversationHandler) list(c *fiber.Ctx) error {
	items, err := h.service.ListMine(c.Context(), userIDFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "conversations retrieved", items)
}

func (h *ConversationHandler) listSubmissions(c *fiber.Ctx) error {
	items, err := h.service.ListSubmissions(c.Context(), userIDFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "submissions retrieved", items)
}

func (h *ConversationHandler) get(c *fiber.Ctx) error {
	conversationID, err := parseUUIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	conversation, err := h.service.Get(c.Context(), userIDFromContext(c), conversationID)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "conversation retrieved", conversation)
}

func (h *ConversationHandler) messages(c *fiber.Ctx) error {
	conversationID, err := parseUUIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	messages, err := h.service.ListMessages(c.Context(), userIDFromContext(c), conversationID)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "messages retrieved", messages)
}

func (h *ConversationHandler) send(c *fiber.Ctx) error {
	conversationID, err := parseUUIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.MessageSendRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	result, err := h.service.SendMessage(c.Context(), userIDFromContext(c), conversationID, payload)
	if err != nil {
		if errors.Is(err, service.ErrTutorUnavailable) {
			return utils.SendError(c, fiber.StatusBadGateway, "tutor provider request failed")
		}
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "message sent", result)
}

func (h *ConversationHandler) submit(c *fiber.Ctx) error {
	conversationID, err := parseUUIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	result, err := h.service.Submit(c.Context(), userIDFromContext(c), conversationID)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "conversation submitted", result)
}

func (h *ConversationHandler) restart(c *fiber.Ctx) error {
	conversationID, err := parseUUIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	result, err := h.service.DeleteAndRestart(c.Context(), userIDFromContext(c), conversationID)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "conversation restarted", result)
}

// streamMessages relays one exchange as server-sent events. The response is
// always 200 text/event-stream; domain failures arrive as error events on the
// stream itself.
func (h *ConversationHandler) streamMessages(c *fiber.Ctx) error {
	conversationID, parseErr := parseUUIDParam(c, "id")

	var payload dto.MessageSendRequest
	if err := c.BodyParser(&payload); err != nil {
		payload = dto.MessageSendRequest{}
	}

	userID := userIDFromContext(c)
	logger := *requestLogger(h.logger, c)

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		// The fiber context is gone by the time this runs. Cancelling on exit
		// stops the provider stream once the relay stops consuming it.
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		outcome := "completed"

		emit := func(event service.StreamEvent) error {
			if event.Type == service.EventError {
				outcome = "error"
			}
			encoded, err := json.Marshal(event)
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", encoded); err != nil {
				return err
			}
			return w.Flush()
		}

		if parseErr != nil {
			outcome = "error"
			_ = emit(service.StreamEvent{Type: service.EventError, Error: "invalid identifier"})
		} else if err := h.stream.Relay(ctx, userID, conversationID, payload, emit); err != nil {
			outcome = "disconnected"
			logger.Warn().Err(err).Str("conversation_id", conversationID.String()).Msg("stream client gone")
		}

		observability.StreamRelays().WithLabelValues(outcome).Inc()
	}))

	return nil
}

func (h *ConversationHandler) handleError(c *fiber.Ctx, err error) error {
	var validationErrors validator.ValidationErrors
	switch {
	case errors.Is(err, service.ErrConversationNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "conversation not found")
	case errors.Is(err, service.ErrSectionNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "section not found")
	case errors.Is(err, service.ErrConversationDeleted):
		return utils.SendError(c, fiber.StatusGone, "conversation has been deleted")
	case errors.Is(err, service.ErrNotConversationOwner),
		errors.Is(err, service.ErrConversationForbidden):
		return utils.SendError(c, fiber.StatusForbidden, "not allowed to access this conversation")
	case errors.Is(err, service.ErrTeacherTestSubmission):
		return utils.SendError(c, fiber.StatusBadRequest, "teacher test conversations cannot be submitted")
	case errors.Is(err, service.ErrEmptyMessage):
		return utils.SendError(c, fiber.StatusBadRequest, "message content is empty")
	case errors.As(err, &validationErrors):
		return utils.SendError(c, fiber.StatusBadRequest, validationErrors.Error())
	default:
		return h.internalError(c, err)
	}
}

func (h *ConversationHandler) internalError(c *fiber.Ctx, err error) error {
	requestLogger(h.logger, c).Error().Err(err).Msg("internal server error")
	return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
}
