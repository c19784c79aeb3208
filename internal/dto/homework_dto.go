package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/llteacher/llteacher-api/internal/models"
)

// SectionCreateRequest describes one section inside a homework create payload.
type SectionCreateRequest struct {
	Title    string  `json:"title" validate:"required,max=255"`
	Content  string  `json:"content"`
	Order    int     `json:"order" validate:"required,gte=1,lte=20"`
	Solution *string `json:"solution"`
}

// HomeworkCreateRequest is the payload for creating a homework with sections.
type HomeworkCreateRequest struct {
	Title         string                 `json:"title" validate:"required,max=255"`
	Description   string                 `json:"description"`
	DueDate       time.Time              `json:"due_date" validate:"required"`
	TutorConfigID *uuid.UUID             `json:"tutor_config_id"`
	Sections      []SectionCreateRequest `json:"sections" validate:"required,min=1,max=20,dive"`
}

// SectionUpdateRequest mutates an existing section. Nil fields are untouched;
// a non-nil empty Solution removes the solution.
type SectionUpdateRequest struct {
	ID       uuid.UUID `json:"id" validate:"required"`
	Title    *string   `json:"title" validate:"omitempty,max=255"`
	Content  *string   `json:"content"`
	Order    *int      `json:"order" validate:"omitempty,gte=1,lte=20"`
	Solution *string   `json:"solution"`
}

// HomeworkUpdateRequest is the payload for editing a homework and its sections.
type HomeworkUpdateRequest struct {
	Title            *string                `json:"title" validate:"omitempty,max=255"`
	Description      *string                `json:"description"`
	DueDate          *time.Time             `json:"due_date"`
	TutorConfigID    *uuid.UUID             `json:"tutor_config_id"`
	SectionsToCreate []SectionCreateRequest `json:"sections_to_create" validate:"omitempty,dive"`
	SectionsToUpdate []SectionUpdateRequest `json:"sections_to_update" validate:"omitempty,dive"`
	SectionsToDelete []uuid.UUID            `json:"sections_to_delete"`
}

// HomeworkCreateResult reports the ids assigned during creation.
type HomeworkCreateResult struct {
	HomeworkID uuid.UUID   `json:"homework_id"`
	SectionIDs []uuid.UUID `json:"section_ids"`
}

// HomeworkUpdateResult tracks which sections changed during an update.
type HomeworkUpdateResult struct {
	HomeworkID        uuid.UUID   `json:"homework_id"`
	UpdatedSectionIDs []uuid.UUID `json:"updated_section_ids"`
	CreatedSectionIDs []uuid.UUID `json:"created_section_ids"`
	DeletedSectionIDs []uuid.UUID `json:"deleted_section_ids"`
}

// SectionResponse is the section view inside homework detail. Solution content
// is only populated for the owning teacher.
type SectionResponse struct {
	ID              uuid.UUID `json:"id"`
	Title           string    `json:"title"`
	Content         string    `json:"content"`
	Order           int       `json:"order"`
	HasSolution     bool      `json:"has_solution"`
	SolutionContent *string   `json:"solution_content,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// HomeworkResponse is returned for list and detail views.
type HomeworkResponse struct {
	ID            uuid.UUID         `json:"id"`
	Title         string            `json:"title"`
	Description   string            `json:"description"`
	DueDate       time.Time         `json:"due_date"`
	TeacherID     uuid.UUID         `json:"teacher_id"`
	TutorConfigID *uuid.UUID        `json:"tutor_config_id"`
	IsOverdue     bool              `json:"is_overdue"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
	Sections      []SectionResponse `json:"sections,omitempty"`
}

// HomeworkListItem pairs a homework with the requesting student's progress.
// Progress is nil for teacher listings.
type HomeworkListItem struct {
	HomeworkResponse
	Progress *HomeworkProgress `json:"progress,omitempty"`
}

// HomeworkDetail is the full homework view. Progress is populated for
// students only.
type HomeworkDetail struct {
	Homework HomeworkResponse  `json:"homework"`
	Progress *HomeworkProgress `json:"progress,omitempty"`
}

// SectionDetail is the section view. Teachers get every student conversation
// and submission for the section; students get their own threads and derived
// progress.
type SectionDetail struct {
	Section       SectionResponse       `json:"section"`
	HomeworkID    uuid.UUID             `json:"homework_id"`
	Conversations []ConversationSummary `json:"conversations"`
	Submissions   []SubmissionSummary   `json:"submissions,omitempty"`
	Progress      *SectionProgress      `json:"progress,omitempty"`
}

// NewSectionResponse converts a Section model, optionally exposing the solution.
func NewSectionResponse(model models.Section, includeSolution bool) SectionResponse {
	response := SectionResponse{
		ID:          model.ID,
		Title:       model.Title,
		Content:     model.Content,
		Order:       model.Order,
		HasSolution: model.HasSolution(),
		CreatedAt:   model.CreatedAt,
		UpdatedAt:   model.UpdatedAt,
	}

	if includeSolution && model.Solution != nil {
		content := model.Solution.Content
		response.SolutionContent = &content
	}

	return response
}

// NewHomeworkResponse converts a Homework model with its sections.
func NewHomeworkResponse(model models.Homework, now time.Time, includeSolutions bool) HomeworkResponse {
	sections := make([]SectionResponse, 0, len(model.Sections))
	for _, section := range model.Sections {
		sections = append(sections, NewSectionResponse(section, includeSolutions))
	}

	return HomeworkResponse{
		ID:            model.ID,
		Title:         model.Title,
		Description:   model.Description,
		DueDate:       model.DueDate,
		TeacherID:     model.TeacherID,
		TutorConfigID: model.TutorConfigID,
		IsOverdue:     model.IsOverdue(now),
		CreatedAt:     model.CreatedAt,
		UpdatedAt:     model.UpdatedAt,
		Sections:      sections,
	}
}

// NewHomeworkResponseSlice converts a slice of homeworks without sections.
func NewHomeworkResponseSlice(homeworks []models.Homework, now time.Time) []HomeworkResponse {
	responses := make([]HomeworkResponse, 0, len(homeworks))
	for _, homework := range homeworks {
		responses = append(responses, NewHomeworkResponse(homework, now, false))
	}
	return responses
}
