package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TutorConfig parameterizes calls to the chat-completion provider. At most one
// config is the default; promotion clears the previous default in the same
// transaction.
type TutorConfig struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string    `gorm:"size:100;uniqueIndex;not null" json:"name"`
	ModelName   string    `gorm:"size:100;not null" json:"model_name"`
	APIKey      string    `gorm:"size:255;not null" json:"-"`
	BasePrompt  string    `gorm:"type:text;not null" json:"base_prompt"`
	Temperature float32   `gorm:"not null;default:0.7" json:"temperature"`
	MaxTokens   int       `gorm:"not null;default:1000" json:"max_tokens"`
	IsDefault   bool      `gorm:"not null;default:false" json:"is_default"`
	IsActive    bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// BeforeCreate assigns a random identifier when none was provided.
func (c *TutorConfig) BeforeCreate(_ *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
