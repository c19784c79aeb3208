package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/llteacher/llteacher-api/internal/models"
)

// UserRepository defines data operations for accounts and their role profiles.
type UserRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (models.User, error)
	GetByUsername(ctx context.Context, username string) (models.User, error)
	GetByEmail(ctx context.Context, email string) (models.User, error)
	// CreateWithProfile persists the user and its role profile atomically.
	CreateWithProfile(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	GetTeacherByUserID(ctx context.Context, userID uuid.UUID) (models.Teacher, error)
	GetStudentByUserID(ctx context.Context, userID uuid.UUID) (models.Student, error)
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository instantiates the repository.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) GetByID(ctx context.Context, id uuid.UUID) (models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return models.User{}, err
	}
	return user, nil
}

func (r *userRepository) GetByUsername(ctx context.Context, username string) (models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "username = ?", username).Error; err != nil {
		return models.User{}, err
	}
	return user, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "email = ?", email).Error; err != nil {
		return models.User{}, err
	}
	return user, nil
}

func (r *userRepository) CreateWithProfile(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(user).Error; err != nil {
			return err
		}

		switch user.Role {
		case models.RoleTeacher:
			return tx.Create(&models.Teacher{UserID: user.ID}).Error
		default:
			return tx.Create(&models.Student{UserID: user.ID}).Error
		}
	})
}

func (r *userRepository) Update(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Save(user).Error
}

func (r *userRepository) GetTeacherByUserID(ctx context.Context, userID uuid.UUID) (models.Teacher, error) {
	var teacher models.Teacher
	if err := r.db.WithContext(ctx).First(&teacher, "user_id = ?", userID).Error; err != nil {
		return models.Teacher{}, err
	}
	return teacher, nil
}

func (r *userRepository) GetStudentByUserID(ctx context.Context, userID uuid.UUID) (models.Student, error) {
	var student models.Student
	if err := r.db.WithContext(ctx).First(&student, "user_id = ?", userID).Error; err != nil {
		return models.Student{}, err
	}
	return student, nil
}
