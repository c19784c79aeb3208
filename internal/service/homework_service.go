package service

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/llteacher/llteacher-api/internal/dto"
	"github.com/llteacher/llteacher-api/internal/models"
	"github.com/llteacher/llteacher-api/internal/repository"
)

// Homework error sentinels.
var (
	ErrHomeworkNotFound      = errors.New("homework not found")
	ErrSectionNotFound       = errors.New("section not found")
	ErrNotHomeworkOwner      = errors.New("homework belongs to another teacher")
	ErrTeacherProfileMissing = errors.New("teacher profile not found")
	ErrDuplicateSectionOrder = errors.New("section orders must be unique")
)

// HomeworkService manages homework authoring and role-aware read views.
type HomeworkService interface {
	Create(ctx context.Context, teacherUserID uuid.UUID, payload dto.HomeworkCreateRequest) (dto.HomeworkCreateResult, error)
	Update(ctx context.Context, teacherUserID, homeworkID uuid.UUID, payload dto.HomeworkUpdateRequest) (dto.HomeworkUpdateResult, error)
	Delete(ctx context.Context, teacherUserID, homeworkID uuid.UUID) error
	// List returns the caller's own homeworks for teachers and every homework
	// with derived per-section progress for students.
	List(ctx context.Context, userID uuid.UUID, role models.Role) ([]dto.HomeworkListItem, error)
	Get(ctx context.Context, userID uuid.UUID, role models.Role, homeworkID uuid.UUID) (dto.HomeworkDetail, error)
	GetSection(ctx context.Context, userID uuid.UUID, role models.Role, sectionID uuid.UUID) (dto.SectionDetail, error)
}

type homeworkService struct {
	homeworks     repository.HomeworkRepository
	users         repository.UserRepository
	conversations repository.ConversationRepository
	submissions   repository.SubmissionRepository
	progress      ProgressService
	validator     *validator.Validate
	logger        zerolog.Logger
	now           func() time.Time
}

// NewHomeworkService constructs a HomeworkService instance.
func NewHomeworkService(homeworks repository.HomeworkRepository, users repository.UserRepository, conversations repository.ConversationRepository, submissions repository.SubmissionRepository, progress ProgressService, validate *validator.Validate, logger zerolog.Logger) HomeworkService {
	return &homeworkService{
		homeworks:     homeworks,
		users:         users,
		conversations: conversations,
		submissions:   submissions,
		progress:      progress,
		validator:     validate,
		logger:        logger.With().Str("component", "homework_service").Logger(),
		now:           time.Now,
	}
}

func (s *homeworkService) Create(ctx context.Context, teacherUserID uuid.UUID, payload dto.HomeworkCreateRequest) (dto.HomeworkCreateResult, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.HomeworkCreateResult{}, err
	}

	orders := make(map[int]struct{}, len(payload.Sections))
	for _, section := range payload.Sections {
		if _, seen := orders[section.Order]; seen {
			return dto.HomeworkCreateResult{}, ErrDuplicateSectionOrder
		}
		orders[section.Order] = struct{}{}
	}

	teacher, err := s.users.GetTeacherByUserID(ctx, teacherUserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.HomeworkCreateResult{}, ErrTeacherProfileMissing
		}
		return dto.HomeworkCreateResult{}, err
	}

	homework := models.Homework{
		Title:         payload.Title,
		Description:   payload.Description,
		DueDate:       payload.DueDate,
		TeacherID:     teacher.ID,
		TutorConfigID: payload.TutorConfigID,
		Sections:      make([]models.Section, 0, len(payload.Sections)),
	}
	for _, section := range payload.Sections {
		model := models.Section{
			Title:   section.Title,
			Content: section.Content,
			Order:   section.Order,
		}
		if section.Solution != nil && *section.Solution != "" {
			model.Solution = &models.SectionSolution{Content: *section.Solution}
		}
		homework.Sections = append(homework.Sections, model)
	}

	if err := s.homeworks.CreateWithSections(ctx, &homework); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return dto.HomeworkCreateResult{}, ErrDuplicateSectionOrder
		}
		return dto.HomeworkCreateResult{}, err
	}

	result := dto.HomeworkCreateResult{
		HomeworkID: homework.ID,
		SectionIDs: make([]uuid.UUID, 0, len(homework.Sections)),
	}
	for _, section := range homework.Sections {
		result.SectionIDs = append(result.SectionIDs, section.ID)
	}

	s.logger.Info().
		Str("homework_id", homework.ID.String()).
		Int("sections", len(homework.Sections)).
		Msg("homework created")

	return result, nil
}

func (s *homeworkService) Update(ctx context.Context, teacherUserID, homeworkID uuid.UUID, payload dto.HomeworkUpdateRequest) (dto.HomeworkUpdateResult, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.HomeworkUpdateResult{}, err
	}

	homework, err := s.ownedHomework(ctx, teacherUserID, homeworkID)
	if err != nil {
		return dto.HomeworkUpdateResult{}, err
	}

	if payload.Title != nil {
		homework.Title = *payload.Title
	}
	if payload.Description != nil {
		homework.Description = *payload.Description
	}
	if payload.DueDate != nil {
		homework.DueDate = *payload.DueDate
	}
	if payload.TutorConfigID != nil {
		homework.TutorConfigID = payload.TutorConfigID
	}

	create := make([]models.Section, 0, len(payload.SectionsToCreate))
	for _, section := range payload.SectionsToCreate {
		model := models.Section{
			HomeworkID: homework.ID,
			Title:      section.Title,
			Content:    section.Content,
			Order:      section.Order,
		}
		if section.Solution != nil && *section.Solution != "" {
			model.Solution = &models.SectionSolution{Content: *section.Solution}
		}
		create = append(create, model)
	}

	update := make([]repository.SectionUpdate, 0, len(payload.SectionsToUpdate))
	for _, section := range payload.SectionsToUpdate {
		update = append(update, repository.SectionUpdate{
			ID:       section.ID,
			Title:    section.Title,
			Content:  section.Content,
			Order:    section.Order,
			Solution: section.Solution,
		})
	}

	changes, err := s.homeworks.UpdateWithSections(ctx, &homework, create, update, payload.SectionsToDelete)
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return dto.HomeworkUpdateResult{}, ErrDuplicateSectionOrder
		}
		return dto.HomeworkUpdateResult{}, err
	}

	return dto.HomeworkUpdateResult{
		HomeworkID:        homework.ID,
		UpdatedSectionIDs: changes.Updated,
		CreatedSectionIDs: changes.Created,
		DeletedSectionIDs: changes.Deleted,
	}, nil
}

func (s *homeworkService) Delete(ctx context.Context, teacherUserID, homeworkID uuid.UUID) error {
	homework, err := s.ownedHomework(ctx, teacherUserID, homeworkID)
	if err != nil {
		return err
	}

	if err := s.homeworks.Delete(ctx, homework.ID); err != nil {
		return err
	}

	s.logger.Info().Str("homework_id", homework.ID.String()).Msg("homework deleted")
	return nil
}

func (s *homeworkService) List(ctx context.Context, userID uuid.UUID, role models.Role) ([]dto.HomeworkListItem, error) {
	if role == models.RoleTeacher {
		teacher, err := s.users.GetTeacherByUserID(ctx, userID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrTeacherProfileMissing
			}
			return nil, err
		}

		homeworks, err := s.homeworks.ListByTeacher(ctx, teacher.ID)
		if err != nil {
			return nil, err
		}

		items := make([]dto.HomeworkListItem, 0, len(homeworks))
		for _, homework := range homeworks {
			items = append(items, dto.HomeworkListItem{
				HomeworkResponse: dto.NewHomeworkResponse(homework, s.now(), false),
			})
		}
		return items, nil
	}

	homeworks, err := s.homeworks.List(ctx)
	if err != nil {
		return nil, err
	}

	items := make([]dto.HomeworkListItem, 0, len(homeworks))
	for _, homework := range homeworks {
		progress, err := s.progress.HomeworkProgress(ctx, userID, homework)
		if err != nil {
			return nil, err
		}
		items = append(items, dto.HomeworkListItem{
			HomeworkResponse: dto.NewHomeworkResponse(homework, s.now(), false),
			Progress:         &progress,
		})
	}
	return items, nil
}

func (s *homeworkService) Get(ctx context.Context, userID uuid.UUID, role models.Role, homeworkID uuid.UUID) (dto.HomeworkDetail, error) {
	homework, err := s.homeworks.GetByID(ctx, homeworkID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.HomeworkDetail{}, ErrHomeworkNotFound
		}
		return dto.HomeworkDetail{}, err
	}

	includeSolutions := role == models.RoleTeacher && s.ownsHomework(ctx, userID, homework)

	detail := dto.HomeworkDetail{
		Homework: dto.NewHomeworkResponse(homework, s.now(), includeSolutions),
	}

	if role == models.RoleStudent {
		progress, err := s.progress.HomeworkProgress(ctx, userID, homework)
		if err != nil {
			return dto.HomeworkDetail{}, err
		}
		detail.Progress = &progress
	}

	return detail, nil
}

func (s *homeworkService) GetSection(ctx context.Context, userID uuid.UUID, role models.Role, sectionID uuid.UUID) (dto.SectionDetail, error) {
	section, err := s.homeworks.GetSection(ctx, sectionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SectionDetail{}, ErrSectionNotFound
		}
		return dto.SectionDetail{}, err
	}

	homework, err := s.homeworks.GetByID(ctx, section.HomeworkID)
	if err != nil {
		return dto.SectionDetail{}, err
	}

	if role == models.RoleTeacher {
		if !s.ownsHomework(ctx, userID, homework) {
			return dto.SectionDetail{}, ErrNotHomeworkOwner
		}

		conversations, err := s.conversations.ListLiveBySection(ctx, sectionID)
		if err != nil {
			return dto.SectionDetail{}, err
		}
		submissions, err := s.submissions.ListLiveBySection(ctx, sectionID)
		if err != nil {
			return dto.SectionDetail{}, err
		}

		return dto.SectionDetail{
			Section:       dto.NewSectionResponse(section, true),
			HomeworkID:    homework.ID,
			Conversations: dto.NewConversationSummarySlice(conversations),
			Submissions:   dto.NewSubmissionSummarySlice(submissions),
		}, nil
	}

	own, err := s.ownConversations(ctx, userID, sectionID)
	if err != nil {
		return dto.SectionDetail{}, err
	}

	progress := s.progress.SectionProgress(ctx, userID, section, homework)

	return dto.SectionDetail{
		Section:       dto.NewSectionResponse(section, false),
		HomeworkID:    homework.ID,
		Conversations: own,
		Progress:      &progress,
	}, nil
}

// ownedHomework loads the homework and verifies the caller's teacher profile
// owns it.
func (s *homeworkService) ownedHomework(ctx context.Context, teacherUserID, homeworkID uuid.UUID) (models.Homework, error) {
	homework, err := s.homeworks.GetByID(ctx, homeworkID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Homework{}, ErrHomeworkNotFound
		}
		return models.Homework{}, err
	}

	teacher, err := s.users.GetTeacherByUserID(ctx, teacherUserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Homework{}, ErrTeacherProfileMissing
		}
		return models.Homework{}, err
	}

	if homework.TeacherID != teacher.ID {
		return models.Homework{}, ErrNotHomeworkOwner
	}

	return homework, nil
}

func (s *homeworkService) ownsHomework(ctx context.Context, userID uuid.UUID, homework models.Homework) bool {
	teacher, err := s.users.GetTeacherByUserID(ctx, userID)
	if err != nil {
		return false
	}
	return homework.TeacherID == teacher.ID
}

func (s *homeworkService) ownConversations(ctx context.Context, userID, sectionID uuid.UUID) ([]dto.ConversationSummary, error) {
	conversations, err := s.conversations.ListLiveBySection(ctx, sectionID)
	if err != nil {
		return nil, err
	}

	own := make([]dto.ConversationSummary, 0)
	for _, conversation := range conversations {
		if conversation.UserID == userID {
			own = append(own, dto.NewConversationSummary(conversation))
		}
	}
	return own, nil
}
