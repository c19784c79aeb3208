package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/llteacher/llteacher-api/internal/models"
)

// TutorConfigRepository defines data operations for tutor configurations.
// Saving a config with IsDefault set clears every other default in the same
// transaction, so at most one default ever exists.
type TutorConfigRepository interface {
	List(ctx context.Context) ([]models.TutorConfig, error)
	GetByID(ctx context.Context, id uuid.UUID) (models.TutorConfig, error)
	GetDefault(ctx context.Context) (models.TutorConfig, error)
	Create(ctx context.Context, config *models.TutorConfig) error
	Update(ctx context.Context, config *models.TutorConfig) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type tutorConfigRepository struct {
	db *gorm.DB
}

// NewTutorConfigRepository instantiates the repository.
func NewTutorConfigRepository(db *gorm.DB) TutorConfigRepository {
	return &tutorConfigRepository{db: db}
}

func (r *tutorConfigRepository) List(ctx context.Context) ([]models.TutorConfig, error) {
	var configs []models.TutorConfig
	if err := r.db.WithContext(ctx).Order("created_at ASC").Find(&configs).Error; err != nil {
		return nil, err
	}
	return configs, nil
}

func (r *tutorConfigRepository) GetByID(ctx context.Context, id uuid.UUID) (models.TutorConfig, error) {
	var config models.TutorConfig
	if err := r.db.WithContext(ctx).First(&config, "id = ?", id).Error; err != nil {
		return models.TutorConfig{}, err
	}
	return config, nil
}

func (r *tutorConfigRepository) GetDefault(ctx context.Context) (models.TutorConfig, error) {
	var config models.TutorConfig
	if err := r.db.WithContext(ctx).
		Where("is_default = ? AND is_active = ?", true, true).
		First(&config).Error; err != nil {
		return models.TutorConfig{}, err
	}
	return config, nil
}

func (r *tutorConfigRepository) Create(ctx context.Context, config *models.TutorConfig) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if config.IsDefault {
			if err := demoteDefaults(tx, uuid.Nil); err != nil {
				return err
			}
		}
		return tx.Create(config).Error
	})
}

func (r *tutorConfigRepository) Update(ctx context.Context, config *models.TutorConfig) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if config.IsDefault {
			if err := demoteDefaults(tx, config.ID); err != nil {
				return err
			}
		}
		return tx.Save(config).Error
	})
}

func (r *tutorConfigRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.TutorConfig{}, "id = ?", id).Error
}

func demoteDefaults(tx *gorm.DB, keep uuid.UUID) error {
	query := tx.Model(&models.TutorConfig{}).Where("is_default = ?", true)
	if keep != uuid.Nil {
		query = query.Where("id <> ?", keep)
	}
	return query.Update("is_default", false).Error
}
