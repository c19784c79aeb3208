package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/llteacher/llteacher-api/internal/models"
)

// SectionUpdate mutates one existing section. Nil fields are untouched; a
// non-nil Solution replaces the solution, and a non-nil empty Solution
// removes it.
type SectionUpdate struct {
	ID       uuid.UUID
	Title    *string
	Content  *string
	Order    *int
	Solution *string
}

// SectionChanges reports which section rows an update touched.
type SectionChanges struct {
	Updated []uuid.UUID
	Created []uuid.UUID
	Deleted []uuid.UUID
}

// HomeworkRepository defines data operations for homeworks, sections and
// solutions. Multi-row writes run inside transactions so partially created
// homeworks are never observable.
type HomeworkRepository interface {
	List(ctx context.Context) ([]models.Homework, error)
	ListByTeacher(ctx context.Context, teacherID uuid.UUID) ([]models.Homework, error)
	GetByID(ctx context.Context, id uuid.UUID) (models.Homework, error)
	// CreateWithSections persists the homework and every attached section
	// (and solution) in one transaction.
	CreateWithSections(ctx context.Context, homework *models.Homework) error
	// UpdateWithSections applies field changes plus section create/update/
	// delete lists in one transaction. Unknown section ids in update/delete
	// lists are skipped.
	UpdateWithSections(ctx context.Context, homework *models.Homework, create []models.Section, update []SectionUpdate, deleteIDs []uuid.UUID) (SectionChanges, error)
	Delete(ctx context.Context, id uuid.UUID) error
	GetSection(ctx context.Context, id uuid.UUID) (models.Section, error)
}

type homeworkRepository struct {
	db *gorm.DB
}

// NewHomeworkRepository instantiates the repository.
func NewHomeworkRepository(db *gorm.DB) HomeworkRepository {
	return &homeworkRepository{db: db}
}

func (r *homeworkRepository) baseQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Homework{}).
		Preload("Sections", func(db *gorm.DB) *gorm.DB {
			return db.Order("section_order ASC")
		}).
		Preload("Sections.Solution")
}

func (r *homeworkRepository) List(ctx context.Context) ([]models.Homework, error) {
	var homeworks []models.Homework
	if err := r.baseQuery(ctx).Order("due_date ASC").Find(&homeworks).Error; err != nil {
		return nil, err
	}
	return homeworks, nil
}

func (r *homeworkRepository) ListByTeacher(ctx context.Context, teacherID uuid.UUID) ([]models.Homework, error) {
	var homeworks []models.Homework
	if err := r.baseQuery(ctx).
		Where("teacher_id = ?", teacherID).
		Order("due_date ASC").
		Find(&homeworks).Error; err != nil {
		return nil, err
	}
	return homeworks, nil
}

func (r *homeworkRepository) GetByID(ctx context.Context, id uuid.UUID) (models.Homework, error) {
	var homework models.Homework
	if err := r.baseQuery(ctx).First(&homework, "homeworks.id = ?", id).Error; err != nil {
		return models.Homework{}, err
	}
	return homework, nil
}

func (r *homeworkRepository) CreateWithSections(ctx context.Context, homework *models.Homework) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sections := homework.Sections
		homework.Sections = nil
		if err := tx.Create(homework).Error; err != nil {
			return err
		}

		for i := range sections {
			sections[i].HomeworkID = homework.ID
			solution := sections[i].Solution
			sections[i].Solution = nil
			if err := tx.Create(&sections[i]).Error; err != nil {
				return err
			}
			if solution != nil {
				solution.SectionID = sections[i].ID
				if err := tx.Create(solution).Error; err != nil {
					return err
				}
				sections[i].Solution = solution
			}
		}

		homework.Sections = sections
		return nil
	})
}

func (r *homeworkRepository) UpdateWithSections(ctx context.Context, homework *models.Homework, create []models.Section, update []SectionUpdate, deleteIDs []uuid.UUID) (SectionChanges, error) {
	changes := SectionChanges{}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sections := homework.Sections
		homework.Sections = nil
		if err := tx.Save(homework).Error; err != nil {
			return err
		}
		homework.Sections = sections

		for _, id := range deleteIDs {
			var section models.Section
			err := tx.First(&section, "id = ? AND homework_id = ?", id, homework.ID).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if err := tx.Where("section_id = ?", section.ID).Delete(&models.SectionSolution{}).Error; err != nil {
				return err
			}
			if err := tx.Delete(&section).Error; err != nil {
				return err
			}
			changes.Deleted = append(changes.Deleted, id)
		}

		for i := range create {
			create[i].HomeworkID = homework.ID
			solution := create[i].Solution
			create[i].Solution = nil
			if err := tx.Create(&create[i]).Error; err != nil {
				return err
			}
			if solution != nil {
				solution.SectionID = create[i].ID
				if err := tx.Create(solution).Error; err != nil {
					return err
				}
			}
			changes.Created = append(changes.Created, create[i].ID)
		}

		for _, item := range update {
			var section models.Section
			err := tx.Preload("Solution").First(&section, "id = ? AND homework_id = ?", item.ID, homework.ID).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			if err != nil {
				return err
			}

			if item.Title != nil {
				section.Title = *item.Title
			}
			if item.Content != nil {
				section.Content = *item.Content
			}
			if item.Order != nil {
				section.Order = *item.Order
			}

			if item.Solution != nil {
				switch {
				case *item.Solution == "" && section.Solution != nil:
					if err := tx.Delete(section.Solution).Error; err != nil {
						return err
					}
					section.Solution = nil
				case *item.Solution != "" && section.Solution != nil:
					section.Solution.Content = *item.Solution
					if err := tx.Save(section.Solution).Error; err != nil {
						return err
					}
				case *item.Solution != "":
					solution := models.SectionSolution{SectionID: section.ID, Content: *item.Solution}
					if err := tx.Create(&solution).Error; err != nil {
						return err
					}
					section.Solution = &solution
				}
			}

			solution := section.Solution
			section.Solution = nil
			if err := tx.Save(&section).Error; err != nil {
				return err
			}
			section.Solution = solution
			changes.Updated = append(changes.Updated, section.ID)
		}

		return nil
	})
	if err != nil {
		return SectionChanges{}, err
	}

	return changes, nil
}

func (r *homeworkRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sectionIDs []uuid.UUID
		if err := tx.Model(&models.Section{}).
			Where("homework_id = ?", id).
			Pluck("id", &sectionIDs).Error; err != nil {
			return err
		}

		if len(sectionIDs) > 0 {
			var conversationIDs []uuid.UUID
			if err := tx.Model(&models.Conversation{}).
				Where("section_id IN ?", sectionIDs).
				Pluck("id", &conversationIDs).Error; err != nil {
				return err
			}

			if len(conversationIDs) > 0 {
				if err := tx.Where("conversation_id IN ?", conversationIDs).Delete(&models.Submission{}).Error; err != nil {
					return err
				}
				if err := tx.Where("conversation_id IN ?", conversationIDs).Delete(&models.Message{}).Error; err != nil {
					return err
				}
				if err := tx.Where("id IN ?", conversationIDs).Delete(&models.Conversation{}).Error; err != nil {
					return err
				}
			}

			if err := tx.Where("section_id IN ?", sectionIDs).Delete(&models.SectionSolution{}).Error; err != nil {
				return err
			}
			if err := tx.Where("homework_id = ?", id).Delete(&models.Section{}).Error; err != nil {
				return err
			}
		}

		return tx.Delete(&models.Homework{}, "id = ?", id).Error
	})
}

func (r *homeworkRepository) GetSection(ctx context.Context, id uuid.UUID) (models.Section, error) {
	var section models.Section
	if err := r.db.WithContext(ctx).
		Preload("Solution").
		First(&section, "id = ?", id).Error; err != nil {
		return models.Section{}, err
	}
	return section, nil
}
