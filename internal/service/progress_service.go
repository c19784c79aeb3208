package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/llteacher/llteacher-api/internal/dto"
	"github.com/llteacher/llteacher-api/internal/models"
	"github.com/llteacher/llteacher-api/internal/repository"
)

// ProgressService derives a student's standing on homework sections from
// live conversations and submissions. Statuses are mutually exclusive and
// evaluated in fixed priority order: submission, then conversation, then
// nothing, with an overdue split on the latter two. Overdue is checked
// against the clock at call time, never cached.
type ProgressService interface {
	HomeworkProgress(ctx context.Context, userID uuid.UUID, homework models.Homework) (dto.HomeworkProgress, error)
	SectionProgress(ctx context.Context, userID uuid.UUID, section models.Section, homework models.Homework) dto.SectionProgress
}

type progressService struct {
	conversations repository.ConversationRepository
	submissions   repository.SubmissionRepository
	logger        zerolog.Logger
	now           func() time.Time
}

// NewProgressService constructs a ProgressService instance.
func NewProgressService(conversations repository.ConversationRepository, submissions repository.SubmissionRepository, logger zerolog.Logger) ProgressService {
	return &progressService{
		conversations: conversations,
		submissions:   submissions,
		logger:        logger.With().Str("component", "progress_service").Logger(),
		now:           time.Now,
	}
}

func (s *progressService) HomeworkProgress(ctx context.Context, userID uuid.UUID, homework models.Homework) (dto.HomeworkProgress, error) {
	progress := dto.HomeworkProgress{
		HomeworkID: homework.ID,
		Sections:   make([]dto.SectionProgress, 0, len(homework.Sections)),
	}

	for _, section := range homework.Sections {
		progress.Sections = append(progress.Sections, s.SectionProgress(ctx, userID, section, homework))
	}

	return progress, nil
}

func (s *progressService) SectionProgress(ctx context.Context, userID uuid.UUID, section models.Section, homework models.Homework) dto.SectionProgress {
	overdue := homework.IsOverdue(s.now())

	status, conversationID := s.derive(ctx, userID, section.ID, overdue)

	return dto.SectionProgress{
		SectionID:      section.ID,
		Title:          section.Title,
		Order:          section.Order,
		Status:         status,
		ConversationID: conversationID,
	}
}

// derive walks the priority ladder. A submission whose conversation was
// soft-deleted does not count: the student falls through to whatever live
// conversation exists, so delete-and-restart never shows a stale SUBMITTED.
func (s *progressService) derive(ctx context.Context, userID, sectionID uuid.UUID, overdue bool) (dto.SectionStatus, *uuid.UUID) {
	submission, err := s.submissions.GetLiveByUserSection(ctx, userID, sectionID)
	switch {
	case err == nil:
		id := submission.ConversationID
		return dto.StatusSubmitted, &id
	case !errors.Is(err, gorm.ErrRecordNotFound):
		s.logger.Warn().Err(err).Str("section_id", sectionID.String()).Msg("submission lookup failed, treating as not started")
		return dto.StatusNotStarted, nil
	}

	conversation, err := s.conversations.LatestLiveByUserSection(ctx, userID, sectionID)
	switch {
	case err == nil:
		id := conversation.ID
		if overdue {
			return dto.StatusInProgressOverdue, &id
		}
		return dto.StatusInProgress, &id
	case !errors.Is(err, gorm.ErrRecordNotFound):
		s.logger.Warn().Err(err).Str("section_id", sectionID.String()).Msg("conversation lookup failed, treating as not started")
		return dto.StatusNotStarted, nil
	}

	if overdue {
		return dto.StatusOverdue, nil
	}
	return dto.StatusNotStarted, nil
}
