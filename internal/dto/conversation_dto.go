package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/llteacher/llteacher-api/internal/models"
)

// MessageSendRequest is the payload for both the synchronous message exchange
// and the streaming relay.
type MessageSendRequest struct {
	Content     string `json:"content" validate:"required,min=1"`
	MessageType string `json:"message_type" validate:"omitempty,oneof=student code file_upload system"`
}

// MessageResponse is a single conversation entry.
type MessageResponse struct {
	ID            uuid.UUID `json:"id"`
	Content       string    `json:"content"`
	MessageType   string    `json:"message_type"`
	Timestamp     time.Time `json:"timestamp"`
	IsFromStudent bool      `json:"is_from_student"`
	IsFromAI      bool      `json:"is_from_ai"`
	IsSystem      bool      `json:"is_system"`
}

// ConversationResponse is the detail view of a chat thread.
type ConversationResponse struct {
	ID            uuid.UUID         `json:"id"`
	UserID        uuid.UUID         `json:"user_id"`
	SectionID     uuid.UUID         `json:"section_id"`
	SectionTitle  string            `json:"section_title"`
	HomeworkID    uuid.UUID         `json:"homework_id"`
	IsTeacherTest bool              `json:"is_teacher_test"`
	CanSubmit     bool              `json:"can_submit"`
	IsSubmitted   bool              `json:"is_submitted"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
	Messages      []MessageResponse `json:"messages,omitempty"`
}

// ConversationListItem is the compact view in a user's own thread listing.
type ConversationListItem struct {
	ID            uuid.UUID `json:"id"`
	SectionID     uuid.UUID `json:"section_id"`
	SectionTitle  string    `json:"section_title"`
	HomeworkID    uuid.UUID `json:"homework_id"`
	IsTeacherTest bool      `json:"is_teacher_test"`
	IsSubmitted   bool      `json:"is_submitted"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ConversationSummary is a compact thread reference used in section detail.
type ConversationSummary struct {
	ID            uuid.UUID `json:"id"`
	UserID        uuid.UUID `json:"user_id"`
	Username      string    `json:"username"`
	IsTeacherTest bool      `json:"is_teacher_test"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NewConversationSummary converts a Conversation model into a summary.
func NewConversationSummary(model models.Conversation) ConversationSummary {
	return ConversationSummary{
		ID:            model.ID,
		UserID:        model.UserID,
		Username:      model.User.Username,
		IsTeacherTest: model.IsTeacherTest(),
		CreatedAt:     model.CreatedAt,
		UpdatedAt:     model.UpdatedAt,
	}
}

// NewConversationSummarySlice converts a slice of conversations.
func NewConversationSummarySlice(conversations []models.Conversation) []ConversationSummary {
	summaries := make([]ConversationSummary, 0, len(conversations))
	for _, conversation := range conversations {
		summaries = append(summaries, NewConversationSummary(conversation))
	}
	return summaries
}

// ConversationStartResult reports the newly created thread and its greeting.
type ConversationStartResult struct {
	ConversationID   uuid.UUID `json:"conversation_id"`
	InitialMessageID uuid.UUID `json:"initial_message_id"`
	SectionID        uuid.UUID `json:"section_id"`
}

// MessageSendResult pairs the persisted user message with the tutor reply.
type MessageSendResult struct {
	UserMessageID uuid.UUID `json:"user_message_id"`
	AIMessageID   uuid.UUID `json:"ai_message_id"`
	AIResponse    string    `json:"ai_response"`
}

// SubmissionSummary is one designated answer in submission listings. Username
// is populated when the backing conversation carries its user.
type SubmissionSummary struct {
	ID             uuid.UUID `json:"id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	SectionID      uuid.UUID `json:"section_id"`
	UserID         uuid.UUID `json:"user_id"`
	Username       string    `json:"username,omitempty"`
	SubmittedAt    time.Time `json:"submitted_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NewSubmissionSummary converts a Submission model into a summary.
func NewSubmissionSummary(model models.Submission) SubmissionSummary {
	return SubmissionSummary{
		ID:             model.ID,
		ConversationID: model.ConversationID,
		SectionID:      model.SectionID,
		UserID:         model.UserID,
		Username:       model.Conversation.User.Username,
		SubmittedAt:    model.SubmittedAt,
		UpdatedAt:      model.UpdatedAt,
	}
}

// NewSubmissionSummarySlice converts a slice of submissions.
func NewSubmissionSummarySlice(submissions []models.Submission) []SubmissionSummary {
	summaries := make([]SubmissionSummary, 0, len(submissions))
	for _, submission := range submissions {
		summaries = append(summaries, NewSubmissionSummary(submission))
	}
	return summaries
}

// SubmissionResult reports a submit operation. IsNew is false when an earlier
// submission was repointed to the given conversation.
type SubmissionResult struct {
	SubmissionID   uuid.UUID `json:"submission_id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	SectionID      uuid.UUID `json:"section_id"`
	IsNew          bool      `json:"is_new"`
}

// NewMessageResponse converts a Message model into a DTO.
func NewMessageResponse(model models.Message) MessageResponse {
	return MessageResponse{
		ID:            model.ID,
		Content:       model.Content,
		MessageType:   model.MessageType,
		Timestamp:     model.Timestamp,
		IsFromStudent: model.IsFromStudent(),
		IsFromAI:      model.IsFromAI(),
		IsSystem:      model.IsSystem(),
	}
}

// NewMessageResponseSlice converts messages preserving their order.
func NewMessageResponseSlice(messages []models.Message) []MessageResponse {
	responses := make([]MessageResponse, 0, len(messages))
	for _, message := range messages {
		responses = append(responses, NewMessageResponse(message))
	}
	return responses
}
