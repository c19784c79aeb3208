package service

import (
	"context"
	"errors"
	"fmt"
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

// Conversation error sentinels.
var (
	ErrConversationNotFound  = errors.New("conversation not found")
	ErrConversationDeleted   = errors.New("conversation has been deleted")
	ErrNotConversationOwner  = errors.New("conversation belongs to another user")
	ErrConversationForbidden = errors.New("not allowed to view this conversation")
	ErrTeacherTestSubmission = errors.New("teacher test conversations cannot be submitted")
	ErrEmptyMessage          = errors.New("message content is empty")
	ErrTutorUnavailable      = errors.New("tutor provider request failed")
)

// noConfigReply is sent as the tutor's answer when no usable provider
// configuration exists. The student gets a message, not an error.
const noConfigReply = "I'm sorry, but there's no valid LLM configuration available right now."

// ConversationService manages tutor chat threads and answer submission.
type ConversationService interface {
	// Start opens a thread on a section and seeds it with the tutor greeting.
	Start(ctx context.Context, userID, sectionID uuid.UUID) (dto.ConversationStartResult, error)
	// Get returns the thread with ordered messages. Readable by the owner and
	// by the teacher who owns the homework.
	Get(ctx context.Context, userID uuid.UUID, conversationID uuid.UUID) (dto.ConversationResponse, error)
	// ListMine returns the caller's live threads newest first, each flagged
	// with whether it is the designated answer for its section.
	ListMine(ctx context.Context, userID uuid.UUID) ([]dto.ConversationListItem, error)
	// ListSubmissions returns the caller's designated answers across sections.
	ListSubmissions(ctx context.Context, userID uuid.UUID) ([]dto.SubmissionSummary, error)
	ListMessages(ctx context.Context, userID uuid.UUID, conversationID uuid.UUID) ([]dto.MessageResponse, error)
	// SendMessage persists the caller's message, asks the provider for a reply
	// and persists that too. Owner-only, live threads only.
	SendMessage(ctx context.Context, userID, conversationID uuid.UUID, payload dto.MessageSendRequest) (dto.MessageSendResult, error)
	// Submit designates the conversation as the caller's answer for its
	// section. Resubmitting a section repoints the earlier submission.
	Submit(ctx context.Context, userID, conversationID uuid.UUID) (dto.SubmissionResult, error)
	// DeleteAndRestart soft-deletes the thread and opens a fresh one on the
	// same section.
	DeleteAndRestart(ctx context.Context, userID, conversationID uuid.UUID) (dto.ConversationStartResult, error)
}

type conversationService struct {
	conversations repository.ConversationRepository
	submissions   repository.SubmissionRepository
	homeworks     repository.HomeworkRepository
	users         repository.UserRepository
	tutorConfigs  TutorConfigService
	client        ai.Client
	sanitizer     *bluemonday.Policy
	validator     *validator.Validate
	logger        zerolog.Logger
	now           func() time.Time
}

// NewConversationService constructs a ConversationService instance.
func NewConversationService(conversations repository.ConversationRepository, submissions repository.SubmissionRepository, homeworks repository.HomeworkRepository, users repository.UserRepository, tutorConfigs TutorConfigService, client ai.Client, validate *validator.Validate, logger zerolog.Logger) ConversationService {
	return &conversationService{
		conversations: conversations,
		submissions:   submissions,
		homeworks:     homeworks,
		users:         users,
		tutorConfigs:  tutorConfigs,
		client:        client,
		sanitizer:     bluemonday.StrictPolicy(),
		validator:     validate,
		logger:        logger.With().Str("component", "conversation_service").Logger(),
		now:           time.Now,
	}
}

func (s *conversationService) Start(ctx context.Context, userID, sectionID uuid.UUID) (dto.ConversationStartResult, error) {
	section, err := s.homeworks.GetSection(ctx, sectionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ConversationStartResult{}, ErrSectionNotFound
		}
		return dto.ConversationStartResult{}, err
	}

	conversation := models.Conversation{UserID: userID, SectionID: section.ID}
	if err := s.conversations.Create(ctx, &conversation); err != nil {
		return dto.ConversationStartResult{}, err
	}

	greeting := models.Message{
		ConversationID: conversation.ID,
		Content:        fmt.Sprintf("Hello! I'm here to help you with Section %d: %s. What would you like to work on?", section.Order, section.Title),
		MessageType:    models.MessageTypeAI,
	}
	if err := s.conversations.CreateMessage(ctx, &greeting); err != nil {
		return dto.ConversationStartResult{}, err
	}

	s.logger.Info().
		Str("conversation_id", conversation.ID.String()).
		Str("section_id", section.ID.String()).
		Msg("conversation started")

	return dto.ConversationStartResult{
		ConversationID:   conversation.ID,
		InitialMessageID: greeting.ID,
		SectionID:        section.ID,
	}, nil
}

func (s *conversationService) Get(ctx context.Context, userID uuid.UUID, conversationID uuid.UUID) (dto.ConversationResponse, error) {
	conversation, err := s.readableConversation(ctx, userID, conversationID)
	if err != nil {
		return dto.ConversationResponse{}, err
	}

	messages, err := s.conversations.ListMessages(ctx, conversation.ID)
	if err != nil {
		return dto.ConversationResponse{}, err
	}

	canSubmit := conversation.UserID == userID &&
		!conversation.IsDeleted &&
		!conversation.IsTeacherTest()

	isSubmitted := false
	if _, err := s.submissions.GetByConversation(ctx, conversation.ID); err == nil {
		isSubmitted = true
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return dto.ConversationResponse{}, err
	}

	return dto.ConversationResponse{
		ID:            conversation.ID,
		UserID:        conversation.UserID,
		SectionID:     conversation.SectionID,
		SectionTitle:  conversation.Section.Title,
		HomeworkID:    conversation.Section.HomeworkID,
		IsTeacherTest: conversation.IsTeacherTest(),
		CanSubmit:     canSubmit,
		IsSubmitted:   isSubmitted,
		CreatedAt:     conversation.CreatedAt,
		UpdatedAt:     conversation.UpdatedAt,
		Messages:      dto.NewMessageResponseSlice(messages),
	}, nil
}

func (s *conversationService) ListMine(ctx context.Context, userID uuid.UUID) ([]dto.ConversationListItem, error) {
	conversations, err := s.conversations.ListLiveByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	submissions, err := s.submissions.ListLiveByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	submitted := make(map[uuid.UUID]struct{}, len(submissions))
	for _, submission := range submissions {
		submitted[submission.ConversationID] = struct{}{}
	}

	items := make([]dto.ConversationListItem, 0, len(conversations))
	for _, conversation := range conversations {
		_, isSubmitted := submitted[conversation.ID]
		items = append(items, dto.ConversationListItem{
			ID:            conversation.ID,
			SectionID:     conversation.SectionID,
			SectionTitle:  conversation.Section.Title,
			HomeworkID:    conversation.Section.HomeworkID,
			IsTeacherTest: conversation.IsTeacherTest(),
			IsSubmitted:   isSubmitted,
			CreatedAt:     conversation.CreatedAt,
			UpdatedAt:     conversation.UpdatedAt,
		})
	}
	return items, nil
}

func (s *conversationService) ListSubmissions(ctx context.Context, userID uuid.UUID) ([]dto.SubmissionSummary, error) {
	submissions, err := s.submissions.ListLiveByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return dto.NewSubmissionSummarySlice(submissions), nil
}

func (s *conversationService) ListMessages(ctx context.Context, userID uuid.UUID, conversationID uuid.UUID) ([]dto.MessageResponse, error) {
	conversation, err := s.readableConversation(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}

	messages, err := s.conversations.ListMessages(ctx, conversation.ID)
	if err != nil {
		return nil, err
	}
	return dto.NewMessageResponseSlice(messages), nil
}

func (s *conversationService) SendMessage(ctx context.Context, userID, conversationID uuid.UUID, payload dto.MessageSendRequest) (dto.MessageSendResult, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.MessageSendResult{}, err
	}

	conversation, err := s.ownedLiveConversation(ctx, userID, conversationID)
	if err != nil {
		return dto.MessageSendResult{}, err
	}

	content := strings.TrimSpace(s.sanitizer.Sanitize(payload.Content))
	if content == "" {
		return dto.MessageSendResult{}, ErrEmptyMessage
	}
	messageType := payload.MessageType
	if messageType == "" {
		messageType = models.MessageTypeStudent
	}

	// Transcript is captured before the new message is written so the prompt
	// separates history from the current message.
	history, err := s.conversations.ListMessages(ctx, conversation.ID)
	if err != nil {
		return dto.MessageSendResult{}, err
	}

	userMessage := models.Message{
		ConversationID: conversation.ID,
		Content:        content,
		MessageType:    messageType,
	}
	if err := s.conversations.CreateMessage(ctx, &userMessage); err != nil {
		return dto.MessageSendResult{}, err
	}

	reply, err := s.tutorReply(ctx, conversation, history, content, messageType)
	if err != nil {
		return dto.MessageSendResult{UserMessageID: userMessage.ID}, err
	}

	aiMessage := models.Message{
		ConversationID: conversation.ID,
		Content:        reply,
		MessageType:    models.MessageTypeAI,
	}
	if err := s.conversations.CreateMessage(ctx, &aiMessage); err != nil {
		return dto.MessageSendResult{UserMessageID: userMessage.ID}, err
	}

	return dto.MessageSendResult{
		UserMessageID: userMessage.ID,
		AIMessageID:   aiMessage.ID,
		AIResponse:    reply,
	}, nil
}

func (s *conversationService) Submit(ctx context.Context, userID, conversationID uuid.UUID) (dto.SubmissionResult, error) {
	conversation, err := s.ownedLiveConversation(ctx, userID, conversationID)
	if err != nil {
		return dto.SubmissionResult{}, err
	}

	if conversation.IsTeacherTest() {
		return dto.SubmissionResult{}, ErrTeacherTestSubmission
	}

	submission, isNew, err := s.submissions.Upsert(ctx, userID, conversation.SectionID, conversation.ID)
	if err != nil {
		return dto.SubmissionResult{}, err
	}

	s.logger.Info().
		Str("submission_id", submission.ID.String()).
		Str("conversation_id", conversation.ID.String()).
		Bool("is_new", isNew).
		Msg("conversation submitted")

	return dto.SubmissionResult{
		SubmissionID:   submission.ID,
		ConversationID: conversation.ID,
		SectionID:      conversation.SectionID,
		IsNew:          isNew,
	}, nil
}

func (s *conversationService) DeleteAndRestart(ctx context.Context, userID, conversationID uuid.UUID) (dto.ConversationStartResult, error) {
	conversation, err := s.ownedLiveConversation(ctx, userID, conversationID)
	if err != nil {
		return dto.ConversationStartResult{}, err
	}

	if err := s.conversations.SoftDelete(ctx, conversation.ID, s.now()); err != nil {
		return dto.ConversationStartResult{}, err
	}

	return s.Start(ctx, userID, conversation.SectionID)
}

// ownedLiveConversation loads the thread and rejects deleted threads and
// callers other than the owner. Write operations all go through here.
func (s *conversationService) ownedLiveConversation(ctx context.Context, userID, conversationID uuid.UUID) (models.Conversation, error) {
	conversation, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Conversation{}, ErrConversationNotFound
		}
		return models.Conversation{}, err
	}

	if conversation.UserID != userID {
		return models.Conversation{}, ErrNotConversationOwner
	}
	if conversation.IsDeleted {
		return models.Conversation{}, ErrConversationDeleted
	}

	return conversation, nil
}

// readableConversation additionally admits the teacher who owns the homework
// the section belongs to.
func (s *conversationService) readableConversation(ctx context.Context, userID uuid.UUID, conversationID uuid.UUID) (models.Conversation, error) {
	conversation, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Conversation{}, ErrConversationNotFound
		}
		return models.Conversation{}, err
	}

	if conversation.UserID == userID {
		return conversation, nil
	}

	homework, err := s.homeworks.GetByID(ctx, conversation.Section.HomeworkID)
	if err != nil {
		return models.Conversation{}, ErrConversationForbidden
	}
	teacher, err := s.users.GetTeacherByUserID(ctx, userID)
	if err != nil || homework.TeacherID != teacher.ID {
		return models.Conversation{}, ErrConversationForbidden
	}

	return conversation, nil
}

// tutorReply resolves the provider configuration for the conversation's
// homework and requests a completion. A missing configuration yields a polite
// canned reply instead of an error.
func (s *conversationService) tutorReply(ctx context.Context, conversation models.Conversation, history []models.Message, content, messageType string) (string, error) {
	homework, err := s.homeworks.GetByID(ctx, conversation.Section.HomeworkID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTutorUnavailable, err)
	}

	config, err := s.tutorConfigs.ResolveForHomework(ctx, homework)
	if err != nil {
		if errors.Is(err, ErrNoTutorConfig) {
			return noConfigReply, nil
		}
		return "", fmt.Errorf("%w: %v", ErrTutorUnavailable, err)
	}

	prompt := buildTutorPrompt(conversation.Section, history, content, messageType)

	result, err := s.client.Complete(ctx, ai.ChatRequest{
		APIKey:      config.APIKey,
		Model:       config.ModelName,
		Temperature: config.Temperature,
		MaxTokens:   config.MaxTokens,
		Messages: []ai.ChatMessage{
			{Role: ai.RoleSystem, Content: config.BasePrompt},
			{Role: ai.RoleUser, Content: prompt},
		},
	})
	if err != nil {
		s.logger.Error().Err(err).Str("conversation_id", conversation.ID.String()).Msg("provider completion failed")
		return "", fmt.Errorf("%w: %v", ErrTutorUnavailable, err)
	}

	return result.Content, nil
}

// buildTutorPrompt assembles the section context, the labelled transcript and
// the current message into one prompt block.
func buildTutorPrompt(section models.Section, history []models.Message, content, messageType string) string {
	parts := []string{
		fmt.Sprintf("Section Title: %s", section.Title),
		fmt.Sprintf("Section Content: %s", section.Content),
		"\nPrevious Messages:\n",
	}

	for _, message := range history {
		switch {
		case message.IsFromStudent():
			parts = append(parts, fmt.Sprintf("Student: %s", message.Content))
		case message.IsFromAI():
			parts = append(parts, fmt.Sprintf("AI Tutor: %s", message.Content))
		case message.IsSystem():
			parts = append(parts, fmt.Sprintf("System: %s", message.Content))
		}
	}

	switch messageType {
	case models.MessageTypeCode:
		parts = append(parts, fmt.Sprintf("\nCurrent Message - Student Code Submission:\n```\n%s\n```", content))
	default:
		parts = append(parts, fmt.Sprintf("\nCurrent Message - Student: %s", content))
	}

	parts = append(parts, "\nPlease respond as an AI tutor helping the student with this section.")

	return strings.Join(parts, "\n\n")
}
