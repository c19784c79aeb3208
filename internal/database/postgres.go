package database

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/llteacher/llteacher-api/internal/models"
)

// ConnectPostgres establishes a connection to the PostgreSQL database using the provided DSN.
func ConnectPostgres(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn must not be empty")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	return db, nil
}

// Migrate creates or updates the schema for every application model. Order
// matters: profile and homework tables must exist before conversations and
// submissions reference them.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Teacher{},
		&models.Student{},
		&models.TutorConfig{},
		&models.Homework{},
		&models.Section{},
		&models.SectionSolution{},
		&models.Conversation{},
		&models.Message{},
		&models.Submission{},
	)
}
