package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/llteacher/llteacher-api/internal/models"
)

// SubmissionRepository defines data operations for section submissions.
type SubmissionRepository interface {
	// Upsert designates the conversation as the user's answer for the
	// section. A pre-existing submission for the same (user, section) pair is
	// repointed instead of duplicated; the bool result is true when a new row
	// was created. Runs inside one transaction and retries once on a unique
	// conflict raised by a concurrent submit.
	Upsert(ctx context.Context, userID, sectionID, conversationID uuid.UUID) (models.Submission, bool, error)
	// GetLiveByUserSection returns the submission for the pair only when its
	// conversation has not been soft-deleted.
	GetLiveByUserSection(ctx context.Context, userID, sectionID uuid.UUID) (models.Submission, error)
	GetByConversation(ctx context.Context, conversationID uuid.UUID) (models.Submission, error)
	ListLiveByUser(ctx context.Context, userID uuid.UUID) ([]models.Submission, error)
	ListLiveBySection(ctx context.Context, sectionID uuid.UUID) ([]models.Submission, error)
}

type submissionRepository struct {
	db *gorm.DB
}

// NewSubmissionRepository instantiates the repository.
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

func (r *submissionRepository) Upsert(ctx context.Context, userID, sectionID, conversationID uuid.UUID) (models.Submission, bool, error) {
	submission, isNew, err := r.upsertOnce(ctx, userID, sectionID, conversationID)
	if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
		// A concurrent submit won the insert; repoint its row instead.
		submission, isNew, err = r.upsertOnce(ctx, userID, sectionID, conversationID)
	}
	return submission, isNew, err
}

func (r *submissionRepository) upsertOnce(ctx context.Context, userID, sectionID, conversationID uuid.UUID) (models.Submission, bool, error) {
	var submission models.Submission
	isNew := false

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("user_id = ? AND section_id = ?", userID, sectionID).
			First(&submission).Error
		switch {
		case err == nil:
			submission.ConversationID = conversationID
			return tx.Save(&submission).Error
		case errors.Is(err, gorm.ErrRecordNotFound):
			isNew = true
			submission = models.Submission{
				ConversationID: conversationID,
				UserID:         userID,
				SectionID:      sectionID,
			}
			return tx.Create(&submission).Error
		default:
			return err
		}
	})
	if err != nil {
		return models.Submission{}, false, err
	}

	return submission, isNew, nil
}

func (r *submissionRepository) liveQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Submission{}).
		Joins("JOIN conversations ON conversations.id = submissions.conversation_id").
		Where("conversations.is_deleted = ?", false)
}

func (r *submissionRepository) GetLiveByUserSection(ctx context.Context, userID, sectionID uuid.UUID) (models.Submission, error) {
	var submission models.Submission
	if err := r.liveQuery(ctx).
		Where("submissions.user_id = ? AND submissions.section_id = ?", userID, sectionID).
		First(&submission).Error; err != nil {
		return models.Submission{}, err
	}
	return submission, nil
}

func (r *submissionRepository) GetByConversation(ctx context.Context, conversationID uuid.UUID) (models.Submission, error) {
	var submission models.Submission
	if err := r.db.WithContext(ctx).
		First(&submission, "conversation_id = ?", conversationID).Error; err != nil {
		return models.Submission{}, err
	}
	return submission, nil
}

func (r *submissionRepository) ListLiveByUser(ctx context.Context, userID uuid.UUID) ([]models.Submission, error) {
	var submissions []models.Submission
	if err := r.liveQuery(ctx).
		Preload("Conversation").
		Where("submissions.user_id = ?", userID).
		Order("submissions.submitted_at DESC").
		Find(&submissions).Error; err != nil {
		return nil, err
	}
	return submissions, nil
}

func (r *submissionRepository) ListLiveBySection(ctx context.Context, sectionID uuid.UUID) ([]models.Submission, error) {
	var submissions []models.Submission
	if err := r.liveQuery(ctx).
		Preload("Conversation").
		Preload("Conversation.User").
		Where("submissions.section_id = ?", sectionID).
		Order("submissions.submitted_at DESC").
		Find(&submissions).Error; err != nil {
		return nil, err
	}
	return submissions, nil
}
