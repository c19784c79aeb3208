package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/llteacher/llteacher-api/internal/models"
)

// ConversationRepository defines data operations for chat threads and their
// messages. Soft-deleted threads are excluded by the Live* methods only;
// GetByID returns them so callers can reject with a meaningful error.
type ConversationRepository interface {
	Create(ctx context.Context, conversation *models.Conversation) error
	GetByID(ctx context.Context, id uuid.UUID) (models.Conversation, error)
	LatestLiveByUserSection(ctx context.Context, userID, sectionID uuid.UUID) (models.Conversation, error)
	ListLiveBySection(ctx context.Context, sectionID uuid.UUID) ([]models.Conversation, error)
	ListLiveByUser(ctx context.Context, userID uuid.UUID) ([]models.Conversation, error)
	SoftDelete(ctx context.Context, id uuid.UUID, at time.Time) error

	CreateMessage(ctx context.Context, message *models.Message) error
	UpdateMessageContent(ctx context.Context, id uuid.UUID, content string) error
	ListMessages(ctx context.Context, conversationID uuid.UUID) ([]models.Message, error)
}

type conversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository instantiates the repository.
func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &conversationRepository{db: db}
}

func (r *conversationRepository) Create(ctx context.Context, conversation *models.Conversation) error {
	return r.db.WithContext(ctx).Create(conversation).Error
}

func (r *conversationRepository) GetByID(ctx context.Context, id uuid.UUID) (models.Conversation, error) {
	var conversation models.Conversation
	if err := r.db.WithContext(ctx).
		Preload("User").
		Preload("Section").
		First(&conversation, "id = ?", id).Error; err != nil {
		return models.Conversation{}, err
	}
	return conversation, nil
}

func (r *conversationRepository) LatestLiveByUserSection(ctx context.Context, userID, sectionID uuid.UUID) (models.Conversation, error) {
	var conversation models.Conversation
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND section_id = ? AND is_deleted = ?", userID, sectionID, false).
		Order("created_at DESC").
		First(&conversation).Error; err != nil {
		return models.Conversation{}, err
	}
	return conversation, nil
}

func (r *conversationRepository) ListLiveBySection(ctx context.Context, sectionID uuid.UUID) ([]models.Conversation, error) {
	var conversations []models.Conversation
	if err := r.db.WithContext(ctx).
		Preload("User").
		Where("section_id = ? AND is_deleted = ?", sectionID, false).
		Order("created_at DESC").
		Find(&conversations).Error; err != nil {
		return nil, err
	}
	return conversations, nil
}

func (r *conversationRepository) ListLiveByUser(ctx context.Context, userID uuid.UUID) ([]models.Conversation, error) {
	var conversations []models.Conversation
	if err := r.db.WithContext(ctx).
		Preload("User").
		Preload("Section").
		Where("user_id = ? AND is_deleted = ?", userID, false).
		Order("created_at DESC").
		Find(&conversations).Error; err != nil {
		return nil, err
	}
	return conversations, nil
}

func (r *conversationRepository) SoftDelete(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Conversation{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"is_deleted": true, "deleted_at": at}).Error
}

func (r *conversationRepository) CreateMessage(ctx context.Context, message *models.Message) error {
	return r.db.WithContext(ctx).Create(message).Error
}

func (r *conversationRepository) UpdateMessageContent(ctx context.Context, id uuid.UUID, content string) error {
	return r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("id = ?", id).
		Update("content", content).Error
}

func (r *conversationRepository) ListMessages(ctx context.Context, conversationID uuid.UUID) ([]models.Message, error) {
	var messages []models.Message
	if err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("timestamp ASC").
		Find(&messages).Error; err != nil {
		return nil, err
	}
	return messages, nil
}
