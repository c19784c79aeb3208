package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/llteacher/llteacher-api/internal/dto"
	"github.com/llteacher/llteacher-api/internal/models"
	"github.com/llteacher/llteacher-api/internal/repository"
	"github.com/llteacher/llteacher-api/pkg/ai"
)

// SSE event type tags.
const (
	EventUserMessage       = "user_message"
	EventAIMessageStart    = "ai_message_start"
	EventAIToken           = "ai_token"
	EventAIMessageComplete = "ai_message_complete"
	EventError             = "error"
)

// StreamEvent is one server-sent event payload, serialized as a single JSON
// object per data line.
type StreamEvent struct {
	Type      string     `json:"type"`
	MessageID *uuid.UUID `json:"message_id,omitempty"`
	Token     string     `json:"token,omitempty"`
	Content   string     `json:"content,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// EmitFunc delivers one event to the client. A non-nil error means the client
// is gone and the relay should stop emitting.
type EmitFunc func(event StreamEvent) error

// Relay lifecycle states.
type relayState int

const (
	stateValidating relayState = iota
	stateAuthorizing
	stateAwaitingToken
	stateDone
	stateErrored
)

func (s relayState) String() string {
	switch s {
	case stateValidating:
		return "validating"
	case stateAuthorizing:
		return "authorizing"
	case stateAwaitingToken:
		return "awaiting_token"
	case stateDone:
		return "done"
	case stateErrored:
		return "errored"
	}
	return "unknown"
}

// StreamService relays one message exchange as a token stream. Every provider
// token is persisted as accumulated content before it is emitted, so a client
// disconnect or provider failure mid-stream leaves a usable partial message.
type StreamService interface {
	// Relay validates and authorizes the request, persists both sides of the
	// exchange and pushes events through emit in order. All domain failures
	// surface as a terminal error event; the returned error only reports a
	// broken client connection.
	Relay(ctx context.Context, userID, conversationID uuid.UUID, payload dto.MessageSendRequest, emit EmitFunc) error
}

type streamService struct {
	conversations repository.ConversationRepository
	homeworks     repository.HomeworkRepository
	tutorConfigs  TutorConfigService
	client        ai.Client
	sanitizer     *bluemonday.Policy
	validator     *validator.Validate
	logger        zerolog.Logger
}

// NewStreamService constructs a StreamService instance.
func NewStreamService(conversations repository.ConversationRepository, homeworks repository.HomeworkRepository, tutorConfigs TutorConfigService, client ai.Client, validate *validator.Validate, logger zerolog.Logger) StreamService {
	return &streamService{
		conversations: conversations,
		homeworks:     homeworks,
		tutorConfigs:  tutorConfigs,
		client:        client,
		sanitizer:     bluemonday.StrictPolicy(),
		validator:     validate,
		logger:        logger.With().Str("component", "stream_service").Logger(),
	}
}

// Relay is the single writer: it runs on the response goroutine and is the
// only code emitting events, consuming provider chunks from the channel the
// client exposes. No retries anywhere; the first failure is terminal.
func (s *streamService) Relay(ctx context.Context, userID, conversationID uuid.UUID, payload dto.MessageSendRequest, emit EmitFunc) error {
	state := stateValidating
	started := time.Now()

	fail := func(message string) error {
		state = stateErrored
		s.logger.Warn().
			Str("conversation_id", conversationID.String()).
			Str("state", state.String()).
			Str("reason", message).
			Msg("stream relay failed")
		return emit(StreamEvent{Type: EventError, Error: message})
	}

	if err := s.validator.Struct(payload); err != nil {
		return fail("message content is required")
	}
	content := strings.TrimSpace(s.sanitizer.Sanitize(payload.Content))
	if content == "" {
		return fail("message content is empty")
	}
	messageType := payload.MessageType
	if messageType == "" {
		messageType = models.MessageTypeStudent
	}

	state = stateAuthorizing
	conversation, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fail("conversation not found")
		}
		return fail("could not load conversation")
	}
	if conversation.UserID != userID {
		return fail("not allowed to message in this conversation")
	}
	if conversation.IsDeleted {
		return fail("conversation has been deleted")
	}

	history, err := s.conversations.ListMessages(ctx, conversation.ID)
	if err != nil {
		return fail("could not load conversation history")
	}

	userMessage := models.Message{
		ConversationID: conversation.ID,
		Content:        content,
		MessageType:    messageType,
	}
	if err := s.conversations.CreateMessage(ctx, &userMessage); err != nil {
		return fail("could not persist message")
	}
	if err := emit(StreamEvent{Type: EventUserMessage, MessageID: &userMessage.ID, Content: content}); err != nil {
		return err
	}

	homework, err := s.homeworks.GetByID(ctx, conversation.Section.HomeworkID)
	if err != nil {
		return fail("tutor is unavailable")
	}
	config, err := s.tutorConfigs.ResolveForHomework(ctx, homework)
	if errors.Is(err, ErrNoTutorConfig) {
		return s.emitCannedReply(ctx, conversation.ID, emit, &state)
	}
	if err != nil {
		return fail("tutor is unavailable")
	}

	state = stateAwaitingToken
	aiMessage := models.Message{
		ConversationID: conversation.ID,
		Content:        "",
		MessageType:    models.MessageTypeAI,
	}
	if err := s.conversations.CreateMessage(ctx, &aiMessage); err != nil {
		return fail("could not persist message")
	}
	if err := emit(StreamEvent{Type: EventAIMessageStart, MessageID: &aiMessage.ID}); err != nil {
		return err
	}

	chunks, err := s.client.Stream(ctx, ai.ChatRequest{
		APIKey:      config.APIKey,
		Model:       config.ModelName,
		Temperature: config.Temperature,
		MaxTokens:   config.MaxTokens,
		Messages: []ai.ChatMessage{
			{Role: ai.RoleSystem, Content: config.BasePrompt},
			{Role: ai.RoleUser, Content: buildTutorPrompt(conversation.Section, history, content, messageType)},
		},
	})
	if err != nil {
		return fail("tutor is unavailable")
	}
	// Relay can return before the channel closes. The drain keeps consuming so
	// the producer is never left blocked on a send.
	defer func() {
		go func() {
			for range chunks {
			}
		}()
	}()

	var accumulated strings.Builder
	for chunk := range chunks {
		if chunk.Err != nil {
			// Partial content persisted so far stays in place.
			return fail("tutor stream was interrupted")
		}
		if chunk.Done {
			break
		}

		accumulated.WriteString(chunk.Token)
		if err := s.conversations.UpdateMessageContent(ctx, aiMessage.ID, accumulated.String()); err != nil {
			return fail("could not persist message")
		}
		if err := emit(StreamEvent{Type: EventAIToken, Token: chunk.Token, Content: accumulated.String()}); err != nil {
			return err
		}
	}

	state = stateDone
	s.logger.Info().
		Str("conversation_id", conversation.ID.String()).
		Dur("duration", time.Since(started)).
		Int("chars", accumulated.Len()).
		Msg("stream relay complete")

	return emit(StreamEvent{Type: EventAIMessageComplete, Content: accumulated.String()})
}

// emitCannedReply persists the no-configuration reply as a normal tutor
// message and emits start and complete events so clients finish cleanly.
func (s *streamService) emitCannedReply(ctx context.Context, conversationID uuid.UUID, emit EmitFunc, state *relayState) error {
	aiMessage := models.Message{
		ConversationID: conversationID,
		Content:        noConfigReply,
		MessageType:    models.MessageTypeAI,
	}
	if err := s.conversations.CreateMessage(ctx, &aiMessage); err != nil {
		*state = stateErrored
		return emit(StreamEvent{Type: EventError, Error: "could not persist message"})
	}

	if err := emit(StreamEvent{Type: EventAIMessageStart, MessageID: &aiMessage.ID}); err != nil {
		return err
	}

	*state = stateDone
	return emit(StreamEvent{Type: EventAIMessageComplete, Content: noConfigReply})
}
