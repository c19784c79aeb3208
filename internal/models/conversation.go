package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Conversation is a chat thread between one user and the AI tutor, scoped to
// one section. Deletion is always soft so submission history stays auditable.
type Conversation struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID  `gorm:"type:uuid;not null;index:idx_conversation_user_section" json:"user_id"`
	User      User       `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"user"`
	SectionID uuid.UUID  `gorm:"type:uuid;not null;index:idx_conversation_user_section" json:"section_id"`
	Section   Section    `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"section"`
	IsDeleted bool       `gorm:"not null;default:false" json:"is_deleted"`
	DeletedAt *time.Time `json:"deleted_at"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	Messages  []Message  `gorm:"constraint:OnDelete:CASCADE" json:"messages,omitempty"`
}

// BeforeCreate assigns a random identifier when none was provided.
func (c *Conversation) BeforeCreate(_ *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// SoftDelete marks the conversation deleted at the given time.
func (c *Conversation) SoftDelete(at time.Time) {
	c.IsDeleted = true
	c.DeletedAt = &at
}

// IsTeacherTest reports whether the thread was started by a teacher previewing
// the tutor. Teacher test conversations are never submittable.
func (c Conversation) IsTeacherTest() bool {
	return c.User.Role == RoleTeacher
}

// Message type tags. The column is free-form but these cover every value the
// application writes.
const (
	MessageTypeStudent       = "student"
	MessageTypeAI            = "ai"
	MessageTypeCode          = "code"
	MessageTypeFileUpload    = "file_upload"
	MessageTypeCodeExecution = "code_execution"
	MessageTypeSystem        = "system"
)

// Message is a single entry in a conversation, ordered by timestamp.
type Message struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ConversationID uuid.UUID      `gorm:"type:uuid;not null;index" json:"conversation_id"`
	Content        string         `gorm:"type:text;not null" json:"content"`
	MessageType    string         `gorm:"size:50;not null" json:"message_type"`
	Metadata       datatypes.JSON `json:"metadata,omitempty"`
	Timestamp      time.Time      `gorm:"autoCreateTime;index" json:"timestamp"`
}

// BeforeCreate assigns a random identifier when none was provided.
func (m *Message) BeforeCreate(_ *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// IsFromStudent reports whether the message was authored by the student side
// of the conversation, including code and file payloads.
func (m Message) IsFromStudent() bool {
	switch m.MessageType {
	case MessageTypeStudent, MessageTypeCode, MessageTypeFileUpload, MessageTypeCodeExecution:
		return true
	}
	return false
}

// IsFromAI reports whether the message is a tutor reply.
func (m Message) IsFromAI() bool {
	return m.MessageType == MessageTypeAI
}

// IsSystem reports whether the message is a system notice.
func (m Message) IsSystem() bool {
	return m.MessageType == MessageTypeSystem
}
