package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Section order bounds enforced on create and update.
const (
	SectionOrderMin = 1
	SectionOrderMax = 20
)

// Homework is a teacher-authored assignment made of ordered sections.
type Homework struct {
	ID            uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Title         string     `gorm:"size:255;not null" json:"title"`
	Description   string     `gorm:"type:text" json:"description"`
	DueDate       time.Time  `gorm:"not null" json:"due_date"`
	TeacherID     uuid.UUID  `gorm:"type:uuid;not null;index" json:"teacher_id"`
	Teacher       Teacher    `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"teacher"`
	TutorConfigID *uuid.UUID `gorm:"type:uuid" json:"tutor_config_id"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	Sections      []Section  `gorm:"constraint:OnDelete:CASCADE" json:"sections"`
}

// BeforeCreate assigns a random identifier when none was provided.
func (h *Homework) BeforeCreate(_ *gorm.DB) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	return nil
}

// IsOverdue reports whether the deadline has passed at the reference time.
func (h Homework) IsOverdue(reference time.Time) bool {
	return reference.After(h.DueDate)
}

// Section is one ordered unit of homework content a student works through in
// a conversation.
type Section struct {
	ID         uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	HomeworkID uuid.UUID        `gorm:"type:uuid;not null;uniqueIndex:idx_section_homework_order" json:"homework_id"`
	Title      string           `gorm:"size:255;not null" json:"title"`
	Content    string           `gorm:"type:text" json:"content"`
	Order      int              `gorm:"column:section_order;not null;uniqueIndex:idx_section_homework_order" json:"order"`
	Solution   *SectionSolution `gorm:"constraint:OnDelete:CASCADE" json:"solution,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// BeforeCreate assigns a random identifier when none was provided.
func (s *Section) BeforeCreate(_ *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// HasSolution reports whether a reference solution is attached.
func (s Section) HasSolution() bool {
	return s.Solution != nil
}

// SectionSolution is the teacher's reference answer for a section. Students
// never see it.
type SectionSolution struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	SectionID uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"section_id"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate assigns a random identifier when none was provided.
func (s *SectionSolution) BeforeCreate(_ *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
