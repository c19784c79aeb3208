package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Submission designates one conversation as a student's final answer for a
// section. UserID and SectionID are denormalized from the conversation so the
// one-submission-per-student-per-section rule can live in a unique index
// instead of a check-then-write.
type Submission struct {
	ID             uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	ConversationID uuid.UUID    `gorm:"type:uuid;uniqueIndex;not null" json:"conversation_id"`
	Conversation   Conversation `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"conversation"`
	UserID         uuid.UUID    `gorm:"type:uuid;not null;uniqueIndex:idx_submission_user_section" json:"user_id"`
	SectionID      uuid.UUID    `gorm:"type:uuid;not null;uniqueIndex:idx_submission_user_section" json:"section_id"`
	SubmittedAt    time.Time    `gorm:"autoCreateTime" json:"submitted_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// BeforeCreate assigns a random identifier when none was provided.
func (s *Submission) BeforeCreate(_ *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
