package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/llteacher/llteacher-api/internal/dto"
	"github.com/llteacher/llteacher-api/internal/models"
	"github.com/llteacher/llteacher-api/internal/repository"
	"github.com/llteacher/llteacher-api/pkg/ai"
)

const defaultConfigCacheKey = "llteacher:tutor_config:default"

// Tutor configuration error sentinels.
var (
	ErrTutorConfigNotFound  = errors.New("tutor configuration not found")
	ErrNoTutorConfig        = errors.New("no active tutor configuration available")
	ErrDefaultConfigLocked  = errors.New("default configuration cannot be deleted")
	ErrTutorConfigNameTaken = errors.New("configuration name already in use")
)

// TutorConfigService manages provider configurations and generic completions.
type TutorConfigService interface {
	List(ctx context.Context) ([]dto.TutorConfigResponse, error)
	Get(ctx context.Context, id uuid.UUID) (dto.TutorConfigResponse, error)
	Create(ctx context.Context, payload dto.TutorConfigCreateRequest) (dto.TutorConfigResponse, error)
	Update(ctx context.Context, id uuid.UUID, payload dto.TutorConfigUpdateRequest) (dto.TutorConfigResponse, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Test(ctx context.Context, id uuid.UUID, payload dto.TutorConfigTestRequest) (dto.TutorResponseResult, error)
	Generate(ctx context.Context, payload dto.GenerateRequest) (dto.TutorResponseResult, error)
	// ResolveForHomework picks the homework's own configuration when set and
	// active, falling back to the cached default.
	ResolveForHomework(ctx context.Context, homework models.Homework) (models.TutorConfig, error)
}

type tutorConfigService struct {
	configs   repository.TutorConfigRepository
	client    ai.Client
	cache     *redis.Client
	cacheTTL  time.Duration
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewTutorConfigService constructs a TutorConfigService instance.
func NewTutorConfigService(configs repository.TutorConfigRepository, client ai.Client, cache *redis.Client, cacheTTL time.Duration, validate *validator.Validate, logger zerolog.Logger) TutorConfigService {
	return &tutorConfigService{
		configs:   configs,
		client:    client,
		cache:     cache,
		cacheTTL:  cacheTTL,
		validator: validate,
		logger:    logger.With().Str("component", "tutor_config_service").Logger(),
	}
}

func (s *tutorConfigService) List(ctx context.Context) ([]dto.TutorConfigResponse, error) {
	configs, err := s.configs.List(ctx)
	if err != nil {
		return nil, err
	}
	return dto.NewTutorConfigResponseSlice(configs), nil
}

func (s *tutorConfigService) Get(ctx context.Context, id uuid.UUID) (dto.TutorConfigResponse, error) {
	config, err := s.configs.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.TutorConfigResponse{}, ErrTutorConfigNotFound
		}
		return dto.TutorConfigResponse{}, err
	}
	return dto.NewTutorConfigResponse(config), nil
}

func (s *tutorConfigService) Create(ctx context.Context, payload dto.TutorConfigCreateRequest) (dto.TutorConfigResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.TutorConfigResponse{}, err
	}

	config := models.TutorConfig{
		Name:        payload.Name,
		ModelName:   payload.ModelName,
		APIKey:      payload.APIKey,
		BasePrompt:  payload.BasePrompt,
		Temperature: payload.Temperature,
		MaxTokens:   payload.MaxTokens,
		IsDefault:   payload.IsDefault,
		IsActive:    true,
	}
	if payload.Temperature == 0 {
		config.Temperature = 0.7
	}
	if payload.MaxTokens == 0 {
		config.MaxTokens = 1000
	}
	if payload.IsActive != nil {
		config.IsActive = *payload.IsActive
	}

	if err := s.configs.Create(ctx, &config); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return dto.TutorConfigResponse{}, ErrTutorConfigNameTaken
		}
		return dto.TutorConfigResponse{}, err
	}

	s.refreshDefaultCache(ctx)
	s.logger.Info().Str("config_id", config.ID.String()).Bool("is_default", config.IsDefault).Msg("tutor configuration created")

	return dto.NewTutorConfigResponse(config), nil
}

func (s *tutorConfigService) Update(ctx context.Context, id uuid.UUID, payload dto.TutorConfigUpdateRequest) (dto.TutorConfigResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.TutorConfigResponse{}, err
	}

	config, err := s.configs.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.TutorConfigResponse{}, ErrTutorConfigNotFound
		}
		return dto.TutorConfigResponse{}, err
	}

	if payload.Name != nil {
		config.Name = *payload.Name
	}
	if payload.ModelName != nil {
		config.ModelName = *payload.ModelName
	}
	if payload.APIKey != nil {
		config.APIKey = *payload.APIKey
	}
	if payload.BasePrompt != nil {
		config.BasePrompt = *payload.BasePrompt
	}
	if payload.Temperature != nil {
		config.Temperature = *payload.Temperature
	}
	if payload.MaxTokens != nil {
		config.MaxTokens = *payload.MaxTokens
	}
	if payload.IsDefault != nil {
		config.IsDefault = *payload.IsDefault
	}
	if payload.IsActive != nil {
		config.IsActive = *payload.IsActive
	}

	if err := s.configs.Update(ctx, &config); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return dto.TutorConfigResponse{}, ErrTutorConfigNameTaken
		}
		return dto.TutorConfigResponse{}, err
	}

	s.refreshDefaultCache(ctx)

	return dto.NewTutorConfigResponse(config), nil
}

func (s *tutorConfigService) Delete(ctx context.Context, id uuid.UUID) error {
	config, err := s.configs.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrTutorConfigNotFound
		}
		return err
	}

	if config.IsDefault {
		return ErrDefaultConfigLocked
	}

	if err := s.configs.Delete(ctx, id); err != nil {
		return err
	}

	s.refreshDefaultCache(ctx)
	return nil
}

func (s *tutorConfigService) Test(ctx context.Context, id uuid.UUID, payload dto.TutorConfigTestRequest) (dto.TutorResponseResult, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.TutorResponseResult{}, err
	}

	config, err := s.configs.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.TutorResponseResult{}, ErrTutorConfigNotFound
		}
		return dto.TutorResponseResult{}, err
	}

	return s.complete(ctx, config, payload.Message)
}

func (s *tutorConfigService) Generate(ctx context.Context, payload dto.GenerateRequest) (dto.TutorResponseResult, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.TutorResponseResult{}, err
	}

	var config models.TutorConfig
	var err error
	if payload.ConfigID != nil {
		config, err = s.configs.GetByID(ctx, *payload.ConfigID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.TutorResponseResult{}, ErrTutorConfigNotFound
		}
	} else {
		config, err = s.defaultConfig(ctx)
	}
	if err != nil {
		return dto.TutorResponseResult{}, err
	}

	return s.complete(ctx, config, payload.Prompt)
}

func (s *tutorConfigService) ResolveForHomework(ctx context.Context, homework models.Homework) (models.TutorConfig, error) {
	if homework.TutorConfigID != nil {
		config, err := s.configs.GetByID(ctx, *homework.TutorConfigID)
		if err == nil && config.IsActive {
			return config, nil
		}
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return models.TutorConfig{}, err
		}
	}

	return s.defaultConfig(ctx)
}

func (s *tutorConfigService) complete(ctx context.Context, config models.TutorConfig, prompt string) (dto.TutorResponseResult, error) {
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
		return dto.TutorResponseResult{}, err
	}

	return dto.TutorResponseResult{Response: result.Content, TokensUsed: result.TokensUsed}, nil
}

// cachedTutorConfig is the redis mirror's own serialization. The model's JSON
// view hides the API key from API responses, but the mirror has to carry it or
// every cache hit would hand the provider an empty credential.
type cachedTutorConfig struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	ModelName   string    `json:"model_name"`
	APIKey      string    `json:"api_key"`
	BasePrompt  string    `json:"base_prompt"`
	Temperature float32   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
	IsDefault   bool      `json:"is_default"`
	IsActive    bool      `json:"is_active"`
}

func (c cachedTutorConfig) model() models.TutorConfig {
	return models.TutorConfig{
		ID:          c.ID,
		Name:        c.Name,
		ModelName:   c.ModelName,
		APIKey:      c.APIKey,
		BasePrompt:  c.BasePrompt,
		Temperature: c.Temperature,
		MaxTokens:   c.MaxTokens,
		IsDefault:   c.IsDefault,
		IsActive:    c.IsActive,
	}
}

func newCachedTutorConfig(config models.TutorConfig) cachedTutorConfig {
	return cachedTutorConfig{
		ID:          config.ID,
		Name:        config.Name,
		ModelName:   config.ModelName,
		APIKey:      config.APIKey,
		BasePrompt:  config.BasePrompt,
		Temperature: config.Temperature,
		MaxTokens:   config.MaxTokens,
		IsDefault:   config.IsDefault,
		IsActive:    config.IsActive,
	}
}

// defaultConfig reads the active default, preferring the redis mirror and
// falling back to the database.
func (s *tutorConfigService) defaultConfig(ctx context.Context) (models.TutorConfig, error) {
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, defaultConfigCacheKey).Result(); err == nil {
			var config cachedTutorConfig
			if unmarshalErr := json.Unmarshal([]byte(cached), &config); unmarshalErr == nil {
				return config.model(), nil
			}
		} else if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Msg("failed to read default config cache")
		}
	}

	config, err := s.configs.GetDefault(ctx)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.TutorConfig{}, ErrNoTutorConfig
		}
		return models.TutorConfig{}, err
	}

	s.storeDefaultCache(ctx, config)
	return config, nil
}

// refreshDefaultCache rewrites the mirror after any config write so reads
// never observe a stale default.
func (s *tutorConfigService) refreshDefaultCache(ctx context.Context) {
	if s.cache == nil {
		return
	}

	config, err := s.configs.GetDefault(ctx)
	if err != nil {
		if err := s.cache.Del(ctx, defaultConfigCacheKey).Err(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to drop default config cache")
		}
		return
	}

	s.storeDefaultCache(ctx, config)
}

func (s *tutorConfigService) storeDefaultCache(ctx context.Context, config models.TutorConfig) {
	if s.cache == nil {
		return
	}

	payload, err := json.Marshal(newCachedTutorConfig(config))
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, defaultConfigCacheKey, payload, s.cacheTTL).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to store default config cache")
	}
}
