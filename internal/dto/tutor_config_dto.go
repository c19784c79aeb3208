package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/llteacher/llteacher-api/internal/models"
)

// TutorConfigCreateRequest is the payload for creating a tutor configuration.
type TutorConfigCreateRequest struct {
	Name        string  `json:"name" validate:"required,max=100"`
	ModelName   string  `json:"model_name" validate:"required,max=100"`
	APIKey      string  `json:"api_key" validate:"required"`
	BasePrompt  string  `json:"base_prompt" validate:"required"`
	Temperature float32 `json:"temperature" validate:"gte=0,lte=2"`
	MaxTokens   int     `json:"max_tokens" validate:"gte=0"`
	IsDefault   bool    `json:"is_default"`
	IsActive    *bool   `json:"is_active"`
}

// TutorConfigUpdateRequest mutates an existing configuration.
type TutorConfigUpdateRequest struct {
	Name        *string  `json:"name" validate:"omitempty,max=100"`
	ModelName   *string  `json:"model_name" validate:"omitempty,max=100"`
	APIKey      *string  `json:"api_key"`
	BasePrompt  *string  `json:"base_prompt"`
	Temperature *float32 `json:"temperature" validate:"omitempty,gte=0,lte=2"`
	MaxTokens   *int     `json:"max_tokens" validate:"omitempty,gte=0"`
	IsDefault   *bool    `json:"is_default"`
	IsActive    *bool    `json:"is_active"`
}

// TutorConfigTestRequest carries the probe message for the test endpoint.
type TutorConfigTestRequest struct {
	Message string `json:"message" validate:"required,min=1"`
}

// GenerateRequest is the generic completion API payload.
type GenerateRequest struct {
	Prompt   string     `json:"prompt" validate:"required,min=1"`
	ConfigID *uuid.UUID `json:"config_id"`
}

// TutorResponseResult is returned by the test and generate endpoints.
type TutorResponseResult struct {
	Response   string `json:"response"`
	TokensUsed int    `json:"tokens_used"`
}

// TutorConfigResponse is the API view of a configuration. The API key is
// never echoed back.
type TutorConfigResponse struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	ModelName   string    `json:"model_name"`
	BasePrompt  string    `json:"base_prompt"`
	Temperature float32   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
	IsDefault   bool      `json:"is_default"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewTutorConfigResponse converts a TutorConfig model into a DTO.
func NewTutorConfigResponse(model models.TutorConfig) TutorConfigResponse {
	return TutorConfigResponse{
		ID:          model.ID,
		Name:        model.Name,
		ModelName:   model.ModelName,
		BasePrompt:  model.BasePrompt,
		Temperature: model.Temperature,
		MaxTokens:   model.MaxTokens,
		IsDefault:   model.IsDefault,
		IsActive:    model.IsActive,
		CreatedAt:   model.CreatedAt,
		UpdatedAt:   model.UpdatedAt,
	}
}

// NewTutorConfigResponseSlice converts a slice of configurations.
func NewTutorConfigResponseSlice(configs []models.TutorConfig) []TutorConfigResponse {
	responses := make([]TutorConfigResponse, 0, len(configs))
	for _, config := range configs {
		responses = append(responses, NewTutorConfigResponse(config))
	}
	return responses
}
