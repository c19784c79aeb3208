package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/llteacher/llteacher-api/internal/models"
)

func stringPtr(s string) *string { return &s }

func TestHomeworkRepositoryCreateWithSections(t *testing.T) {
	db := setupTestDB(t)
	repo := NewHomeworkRepository(db)
	ctx := context.Background()

	teacherUser := seedUser(t, db, "teacher1", models.RoleTeacher)
	teacher := models.Teacher{UserID: teacherUser.ID}
	require.NoError(t, db.Create(&teacher).Error)

	homework := models.Homework{
		Title:     "Quadratics",
		DueDate:   time.Now().Add(14 * 24 * time.Hour),
		TeacherID: teacher.ID,
		Sections: []models.Section{
			{Title: "Roots", Content: "Solve x^2 - 4 = 0", Order: 1, Solution: &models.SectionSolution{Content: "x = 2 or x = -2"}},
			{Title: "Vertex", Content: "Find the vertex", Order: 2},
		},
	}
	require.NoError(t, repo.CreateWithSections(ctx, &homework))

	stored, err := repo.GetByID(ctx, homework.ID)
	require.NoError(t, err)
	require.Len(t, stored.Sections, 2)
	require.Equal(t, "Roots", stored.Sections[0].Title)
	require.True(t, stored.Sections[0].HasSolution())
	require.Equal(t, "x = 2 or x = -2", stored.Sections[0].Solution.Content)
	require.False(t, stored.Sections[1].HasSolution())
}

func TestHomeworkRepositoryUpdateWithSections(t *testing.T) {
	db := setupTestDB(t)
	repo := NewHomeworkRepository(db)
	ctx := context.Background()

	teacherUser := seedUser(t, db, "teacher1", models.RoleTeacher)
	teacher := models.Teacher{UserID: teacherUser.ID}
	require.NoError(t, db.Create(&teacher).Error)

	homework := models.Homework{
		Title:     "Quadratics",
		DueDate:   time.Now().Add(14 * 24 * time.Hour),
		TeacherID: teacher.ID,
		Sections: []models.Section{
			{Title: "Roots", Content: "Solve x^2 - 4 = 0", Order: 1, Solution: &models.SectionSolution{Content: "x = 2"}},
			{Title: "Vertex", Content: "Find the vertex", Order: 2},
		},
	}
	require.NoError(t, repo.CreateWithSections(ctx, &homework))
	roots := homework.Sections[0]
	vertex := homework.Sections[1]

	homework.Title = "Quadratics II"
	changes, err := repo.UpdateWithSections(ctx, &homework,
		[]models.Section{{Title: "Discriminant", Order: 3}},
		[]SectionUpdate{
			{ID: roots.ID, Title: stringPtr("Real Roots"), Solution: stringPtr("")},
			{ID: uuid.New(), Title: stringPtr("ghost")},
		},
		[]uuid.UUID{vertex.ID},
	)
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{roots.ID}, changes.Updated)
	require.Len(t, changes.Created, 1)
	require.Equal(t, []uuid.UUID{vertex.ID}, changes.Deleted)

	stored, err := repo.GetByID(ctx, homework.ID)
	require.NoError(t, err)
	require.Equal(t, "Quadratics II", stored.Title)
	require.Len(t, stored.Sections, 2)
	require.Equal(t, "Real Roots", stored.Sections[0].Title)
	require.False(t, stored.Sections[0].HasSolution(), "empty solution removes the row")
	require.Equal(t, "Discriminant", stored.Sections[1].Title)

	var solutionCount int64
	require.NoError(t, db.Model(&models.SectionSolution{}).Count(&solutionCount).Error)
	require.Equal(t, int64(0), solutionCount)
}

func TestHomeworkRepositoryDeleteCascades(t *testing.T) {
	db := setupTestDB(t)
	repo := NewHomeworkRepository(db)
	conversations := NewConversationRepository(db)
	submissions := NewSubmissionRepository(db)
	ctx := context.Background()

	teacherUser := seedUser(t, db, "teacher1", models.RoleTeacher)
	student := seedUser(t, db, "student1", models.RoleStudent)
	teacher := models.Teacher{UserID: teacherUser.ID}
	require.NoError(t, db.Create(&teacher).Error)

	homework := models.Homework{
		Title:     "Quadratics",
		DueDate:   time.Now().Add(14 * 24 * time.Hour),
		TeacherID: teacher.ID,
		Sections: []models.Section{
			{Title: "Roots", Order: 1, Solution: &models.SectionSolution{Content: "x = 2"}},
		},
	}
	require.NoError(t, repo.CreateWithSections(ctx, &homework))
	section := homework.Sections[0]

	conversation := models.Conversation{UserID: student.ID, SectionID: section.ID}
	require.NoError(t, conversations.Create(ctx, &conversation))
	require.NoError(t, conversations.CreateMessage(ctx, &models.Message{
		ConversationID: conversation.ID,
		Content:        "hi",
		MessageType:    models.MessageTypeStudent,
	}))
	_, _, err := submissions.Upsert(ctx, student.ID, section.ID, conversation.ID)
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, homework.ID))

	_, err = repo.GetByID(ctx, homework.ID)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	for _, model := range []interface{}{
		&models.Section{}, &models.SectionSolution{}, &models.Conversation{}, &models.Message{}, &models.Submission{},
	} {
		var count int64
		require.NoError(t, db.Model(model).Count(&count).Error)
		require.Equal(t, int64(0), count)
	}
}

func TestHomeworkRepositoryGetSection(t *testing.T) {
	db := setupTestDB(t)
	repo := NewHomeworkRepository(db)
	ctx := context.Background()

	teacherUser := seedUser(t, db, "teacher1", models.RoleTeacher)
	teacher := models.Teacher{UserID: teacherUser.ID}
	require.NoError(t, db.Create(&teacher).Error)

	homework := models.Homework{
		Title:     "Quadratics",
		DueDate:   time.Now().Add(14 * 24 * time.Hour),
		TeacherID: teacher.ID,
		Sections: []models.Section{
			{Title: "Roots", Order: 1, Solution: &models.SectionSolution{Content: "x = 2"}},
		},
	}
	require.NoError(t, repo.CreateWithSections(ctx, &homework))

	section, err := repo.GetSection(ctx, homework.Sections[0].ID)
	require.NoError(t, err)
	require.Equal(t, "Roots", section.Title)
	require.True(t, section.HasSolution())

	_, err = repo.GetSection(ctx, uuid.New())
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
