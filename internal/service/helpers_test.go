package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/llteacher/llteacher-api/internal/models"
	"github.com/llteacher/llteacher-api/internal/repository"
	"github.com/llteacher/llteacher-api/pkg/ai"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func testValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

// memoryUserRepo is an in-memory UserRepository.
type memoryUserRepo struct {
	users    map[uuid.UUID]models.User
	teachers map[uuid.UUID]models.Teacher
	students map[uuid.UUID]models.Student
}

func newMemoryUserRepo() *memoryUserRepo {
	return &memoryUserRepo{
		users:    make(map[uuid.UUID]models.User),
		teachers: make(map[uuid.UUID]models.Teacher),
		students: make(map[uuid.UUID]models.Student),
	}
}

func (r *memoryUserRepo) GetByID(_ context.Context, id uuid.UUID) (models.User, error) {
	user, ok := r.users[id]
	if !ok {
		return models.User{}, gorm.ErrRecordNotFound
	}
	return user, nil
}

func (r *memoryUserRepo) GetByUsername(_ context.Context, username string) (models.User, error) {
	for _, user := range r.users {
		if user.Username == username {
			return user, nil
		}
	}
	return models.User{}, gorm.ErrRecordNotFound
}

func (r *memoryUserRepo) GetByEmail(_ context.Context, email string) (models.User, error) {
	for _, user := range r.users {
		if strings.EqualFold(user.Email, email) {
			return user, nil
		}
	}
	return models.User{}, gorm.ErrRecordNotFound
}

func (r *memoryUserRepo) CreateWithProfile(_ context.Context, user *models.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	r.users[user.ID] = *user

	switch user.Role {
	case models.RoleTeacher:
		r.teachers[user.ID] = models.Teacher{ID: uuid.New(), UserID: user.ID}
	case models.RoleStudent:
		r.students[user.ID] = models.Student{ID: uuid.New(), UserID: user.ID}
	}
	return nil
}

func (r *memoryUserRepo) Update(_ context.Context, user *models.User) error {
	r.users[user.ID] = *user
	return nil
}

func (r *memoryUserRepo) GetTeacherByUserID(_ context.Context, userID uuid.UUID) (models.Teacher, error) {
	teacher, ok := r.teachers[userID]
	if !ok {
		return models.Teacher{}, gorm.ErrRecordNotFound
	}
	return teacher, nil
}

func (r *memoryUserRepo) GetStudentByUserID(_ context.Context, userID uuid.UUID) (models.Student, error) {
	student, ok := r.students[userID]
	if !ok {
		return models.Student{}, gorm.ErrRecordNotFound
	}
	return student, nil
}

// addUser seeds a user together with its role profile and returns the id.
func (r *memoryUserRepo) addUser(username string, role models.Role) uuid.UUID {
	user := models.User{
		ID:       uuid.New(),
		Username: username,
		Email:    username + "@example.com",
		Role:     role,
	}
	_ = r.CreateWithProfile(context.Background(), &user)
	return user.ID
}

// memoryConversationRepo is an in-memory ConversationRepository. Creation
// times are strictly increasing so recency ordering is deterministic.
type memoryConversationRepo struct {
	mu            sync.Mutex
	conversations map[uuid.UUID]*models.Conversation
	messages      []*models.Message
	users         *memoryUserRepo
	sections      map[uuid.UUID]models.Section
	clock         time.Time
}

func newMemoryConversationRepo(users *memoryUserRepo) *memoryConversationRepo {
	return &memoryConversationRepo{
		conversations: make(map[uuid.UUID]*models.Conversation),
		users:         users,
		sections:      make(map[uuid.UUID]models.Section),
		clock:         time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (r *memoryConversationRepo) tick() time.Time {
	r.clock = r.clock.Add(time.Second)
	return r.clock
}

func (r *memoryConversationRepo) Create(_ context.Context, conversation *models.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if conversation.ID == uuid.Nil {
		conversation.ID = uuid.New()
	}
	conversation.CreatedAt = r.tick()
	stored := *conversation
	r.conversations[conversation.ID] = &stored
	return nil
}

func (r *memoryConversationRepo) GetByID(_ context.Context, id uuid.UUID) (models.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.conversations[id]
	if !ok {
		return models.Conversation{}, gorm.ErrRecordNotFound
	}
	conversation := *stored
	if r.users != nil {
		if user, ok := r.users.users[conversation.UserID]; ok {
			conversation.User = user
		}
	}
	if section, ok := r.sections[conversation.SectionID]; ok {
		conversation.Section = section
	}
	return conversation, nil
}

func (r *memoryConversationRepo) LatestLiveByUserSection(_ context.Context, userID, sectionID uuid.UUID) (models.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *models.Conversation
	for _, conversation := range r.conversations {
		if conversation.UserID != userID || conversation.SectionID != sectionID || conversation.IsDeleted {
			continue
		}
		if latest == nil || conversation.CreatedAt.After(latest.CreatedAt) {
			latest = conversation
		}
	}
	if latest == nil {
		return models.Conversation{}, gorm.ErrRecordNotFound
	}
	return *latest, nil
}

func (r *memoryConversationRepo) ListLiveBySection(_ context.Context, sectionID uuid.UUID) ([]models.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []models.Conversation
	for _, conversation := range r.conversations {
		if conversation.SectionID != sectionID || conversation.IsDeleted {
			continue
		}
		copied := *conversation
		if r.users != nil {
			if user, ok := r.users.users[copied.UserID]; ok {
				copied.User = user
			}
		}
		result = append(result, copied)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (r *memoryConversationRepo) ListLiveByUser(_ context.Context, userID uuid.UUID) ([]models.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []models.Conversation
	for _, conversation := range r.conversations {
		if conversation.UserID != userID || conversation.IsDeleted {
			continue
		}
		copied := *conversation
		if r.users != nil {
			if user, ok := r.users.users[copied.UserID]; ok {
				copied.User = user
			}
		}
		if section, ok := r.sections[copied.SectionID]; ok {
			copied.Section = section
		}
		result = append(result, copied)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (r *memoryConversationRepo) SoftDelete(_ context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conversation, ok := r.conversations[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	conversation.SoftDelete(at)
	return nil
}

func (r *memoryConversationRepo) CreateMessage(_ context.Context, message *models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if message.ID == uuid.Nil {
		message.ID = uuid.New()
	}
	message.Timestamp = r.tick()
	stored := *message
	r.messages = append(r.messages, &stored)
	return nil
}

func (r *memoryConversationRepo) UpdateMessageContent(_ context.Context, id uuid.UUID, content string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, message := range r.messages {
		if message.ID == id {
			message.Content = content
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (r *memoryConversationRepo) ListMessages(_ context.Context, conversationID uuid.UUID) ([]models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []models.Message
	for _, message := range r.messages {
		if message.ConversationID == conversationID {
			result = append(result, *message)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})
	return result, nil
}

// memorySubmissionRepo is an in-memory SubmissionRepository backed by the
// conversation fake for liveness checks.
type memorySubmissionRepo struct {
	submissions   map[uuid.UUID]*models.Submission
	conversations *memoryConversationRepo
}

func newMemorySubmissionRepo(conversations *memoryConversationRepo) *memorySubmissionRepo {
	return &memorySubmissionRepo{
		submissions:   make(map[uuid.UUID]*models.Submission),
		conversations: conversations,
	}
}

func (r *memorySubmissionRepo) conversationLive(conversationID uuid.UUID) bool {
	conversation, ok := r.conversations.conversations[conversationID]
	return ok && !conversation.IsDeleted
}

func (r *memorySubmissionRepo) Upsert(_ context.Context, userID, sectionID, conversationID uuid.UUID) (models.Submission, bool, error) {
	for _, submission := range r.submissions {
		if submission.UserID == userID && submission.SectionID == sectionID {
			submission.ConversationID = conversationID
			return *submission, false, nil
		}
	}
	submission := &models.Submission{
		ID:             uuid.New(),
		ConversationID: conversationID,
		UserID:         userID,
		SectionID:      sectionID,
		SubmittedAt:    time.Now(),
	}
	r.submissions[submission.ID] = submission
	return *submission, true, nil
}

func (r *memorySubmissionRepo) GetLiveByUserSection(_ context.Context, userID, sectionID uuid.UUID) (models.Submission, error) {
	for _, submission := range r.submissions {
		if submission.UserID == userID && submission.SectionID == sectionID && r.conversationLive(submission.ConversationID) {
			return *submission, nil
		}
	}
	return models.Submission{}, gorm.ErrRecordNotFound
}

func (r *memorySubmissionRepo) GetByConversation(_ context.Context, conversationID uuid.UUID) (models.Submission, error) {
	for _, submission := range r.submissions {
		if submission.ConversationID == conversationID {
			return *submission, nil
		}
	}
	return models.Submission{}, gorm.ErrRecordNotFound
}

func (r *memorySubmissionRepo) ListLiveByUser(_ context.Context, userID uuid.UUID) ([]models.Submission, error) {
	var result []models.Submission
	for _, submission := range r.submissions {
		if submission.UserID == userID && r.conversationLive(submission.ConversationID) {
			result = append(result, *submission)
		}
	}
	return result, nil
}

func (r *memorySubmissionRepo) ListLiveBySection(_ context.Context, sectionID uuid.UUID) ([]models.Submission, error) {
	var result []models.Submission
	for _, submission := range r.submissions {
		if submission.SectionID == sectionID && r.conversationLive(submission.ConversationID) {
			result = append(result, *submission)
		}
	}
	return result, nil
}

// memoryHomeworkRepo is an in-memory HomeworkRepository.
type memoryHomeworkRepo struct {
	homeworks map[uuid.UUID]models.Homework
}

func newMemoryHomeworkRepo() *memoryHomeworkRepo {
	return &memoryHomeworkRepo{homeworks: make(map[uuid.UUID]models.Homework)}
}

func (r *memoryHomeworkRepo) List(_ context.Context) ([]models.Homework, error) {
	result := make([]models.Homework, 0, len(r.homeworks))
	for _, homework := range r.homeworks {
		result = append(result, homework)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].DueDate.Before(result[j].DueDate)
	})
	return result, nil
}

func (r *memoryHomeworkRepo) ListByTeacher(_ context.Context, teacherID uuid.UUID) ([]models.Homework, error) {
	var result []models.Homework
	for _, homework := range r.homeworks {
		if homework.TeacherID == teacherID {
			result = append(result, homework)
		}
	}
	return result, nil
}

func (r *memoryHomeworkRepo) GetByID(_ context.Context, id uuid.UUID) (models.Homework, error) {
	homework, ok := r.homeworks[id]
	if !ok {
		return models.Homework{}, gorm.ErrRecordNotFound
	}
	return homework, nil
}

func (r *memoryHomeworkRepo) CreateWithSections(_ context.Context, homework *models.Homework) error {
	if homework.ID == uuid.Nil {
		homework.ID = uuid.New()
	}
	for i := range homework.Sections {
		if homework.Sections[i].ID == uuid.Nil {
			homework.Sections[i].ID = uuid.New()
		}
		homework.Sections[i].HomeworkID = homework.ID
		if homework.Sections[i].Solution != nil && homework.Sections[i].Solution.ID == uuid.Nil {
			homework.Sections[i].Solution.ID = uuid.New()
			homework.Sections[i].Solution.SectionID = homework.Sections[i].ID
		}
	}
	r.homeworks[homework.ID] = *homework
	return nil
}

func (r *memoryHomeworkRepo) UpdateWithSections(_ context.Context, homework *models.Homework, create []models.Section, update []repository.SectionUpdate, deleteIDs []uuid.UUID) (repository.SectionChanges, error) {
	changes := repository.SectionChanges{}

	stored, ok := r.homeworks[homework.ID]
	if !ok {
		return changes, gorm.ErrRecordNotFound
	}
	stored.Title = homework.Title
	stored.Description = homework.Description
	stored.DueDate = homework.DueDate
	stored.TutorConfigID = homework.TutorConfigID

	deleted := make(map[uuid.UUID]bool, len(deleteIDs))
	for _, id := range deleteIDs {
		deleted[id] = true
	}
	kept := stored.Sections[:0]
	for _, section := range stored.Sections {
		if deleted[section.ID] {
			changes.Deleted = append(changes.Deleted, section.ID)
			continue
		}
		kept = append(kept, section)
	}
	stored.Sections = kept

	for _, change := range update {
		for i := range stored.Sections {
			if stored.Sections[i].ID != change.ID {
				continue
			}
			if change.Title != nil {
				stored.Sections[i].Title = *change.Title
			}
			if change.Content != nil {
				stored.Sections[i].Content = *change.Content
			}
			if change.Order != nil {
				stored.Sections[i].Order = *change.Order
			}
			if change.Solution != nil {
				if *change.Solution == "" {
					stored.Sections[i].Solution = nil
				} else {
					stored.Sections[i].Solution = &models.SectionSolution{
						ID:        uuid.New(),
						SectionID: change.ID,
						Content:   *change.Solution,
					}
				}
			}
			changes.Updated = append(changes.Updated, change.ID)
		}
	}

	for _, section := range create {
		section.ID = uuid.New()
		section.HomeworkID = stored.ID
		if section.Solution != nil {
			section.Solution.ID = uuid.New()
			section.Solution.SectionID = section.ID
		}
		stored.Sections = append(stored.Sections, section)
		changes.Created = append(changes.Created, section.ID)
	}

	r.homeworks[homework.ID] = stored
	return changes, nil
}

func (r *memoryHomeworkRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := r.homeworks[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(r.homeworks, id)
	return nil
}

func (r *memoryHomeworkRepo) GetSection(_ context.Context, id uuid.UUID) (models.Section, error) {
	for _, homework := range r.homeworks {
		for _, section := range homework.Sections {
			if section.ID == id {
				return section, nil
			}
		}
	}
	return models.Section{}, gorm.ErrRecordNotFound
}

// memoryTutorConfigRepo is an in-memory TutorConfigRepository with the same
// demote-on-default-write behavior as the real one.
type memoryTutorConfigRepo struct {
	configs map[uuid.UUID]*models.TutorConfig
}

func newMemoryTutorConfigRepo() *memoryTutorConfigRepo {
	return &memoryTutorConfigRepo{configs: make(map[uuid.UUID]*models.TutorConfig)}
}

func (r *memoryTutorConfigRepo) demoteOthers(keep uuid.UUID) {
	for _, config := range r.configs {
		if config.ID != keep {
			config.IsDefault = false
		}
	}
}

func (r *memoryTutorConfigRepo) List(_ context.Context) ([]models.TutorConfig, error) {
	result := make([]models.TutorConfig, 0, len(r.configs))
	for _, config := range r.configs {
		result = append(result, *config)
	}
	return result, nil
}

func (r *memoryTutorConfigRepo) GetByID(_ context.Context, id uuid.UUID) (models.TutorConfig, error) {
	config, ok := r.configs[id]
	if !ok {
		return models.TutorConfig{}, gorm.ErrRecordNotFound
	}
	return *config, nil
}

func (r *memoryTutorConfigRepo) GetDefault(_ context.Context) (models.TutorConfig, error) {
	for _, config := range r.configs {
		if config.IsDefault && config.IsActive {
			return *config, nil
		}
	}
	return models.TutorConfig{}, gorm.ErrRecordNotFound
}

func (r *memoryTutorConfigRepo) Create(_ context.Context, config *models.TutorConfig) error {
	if config.ID == uuid.Nil {
		config.ID = uuid.New()
	}
	stored := *config
	r.configs[config.ID] = &stored
	if config.IsDefault {
		r.demoteOthers(config.ID)
	}
	return nil
}

func (r *memoryTutorConfigRepo) Update(_ context.Context, config *models.TutorConfig) error {
	if _, ok := r.configs[config.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	stored := *config
	r.configs[config.ID] = &stored
	if config.IsDefault {
		r.demoteOthers(config.ID)
	}
	return nil
}

func (r *memoryTutorConfigRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := r.configs[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(r.configs, id)
	return nil
}

var errUpstreamTest = errors.New("upstream request failed")

// fakeAIClient scripts provider behavior for tests.
type fakeAIClient struct {
	mu          sync.Mutex
	reply       string
	tokens      []string
	completeErr error
	streamErr   error
	failAfter   int
	requests    []ai.ChatRequest

	// streamDone, when set, is closed once the producer goroutine finishes.
	streamDone chan struct{}
}

func (c *fakeAIClient) lastRequest() (ai.ChatRequest, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.requests) == 0 {
		return ai.ChatRequest{}, false
	}
	return c.requests[len(c.requests)-1], true
}

func (c *fakeAIClient) Complete(_ context.Context, req ai.ChatRequest) (ai.ChatResult, error) {
	c.mu.Lock()
	c.requests = append(c.requests, req)
	c.mu.Unlock()
	if c.completeErr != nil {
		return ai.ChatResult{}, c.completeErr
	}
	return ai.ChatResult{Content: c.reply, TokensUsed: 42}, nil
}

func (c *fakeAIClient) Stream(_ context.Context, req ai.ChatRequest) (<-chan ai.StreamChunk, error) {
	c.mu.Lock()
	c.requests = append(c.requests, req)
	c.mu.Unlock()
	if c.streamErr != nil {
		return nil, c.streamErr
	}

	chunks := make(chan ai.StreamChunk)
	go func() {
		defer close(chunks)
		if c.streamDone != nil {
			defer close(c.streamDone)
		}
		for i, token := range c.tokens {
			if c.failAfter > 0 && i == c.failAfter {
				chunks <- ai.StreamChunk{Err: errUpstreamTest}
				return
			}
			chunks <- ai.StreamChunk{Token: token}
		}
		chunks <- ai.StreamChunk{Done: true}
	}()
	return chunks, nil
}
