package dto

import (
	"github.com/google/uuid"
)

// SectionStatus labels a student's standing on one section.
type SectionStatus string

const (
	StatusNotStarted        SectionStatus = "not_started"
	StatusInProgress        SectionStatus = "in_progress"
	StatusInProgressOverdue SectionStatus = "in_progress_overdue"
	StatusSubmitted         SectionStatus = "submitted"
	StatusOverdue           SectionStatus = "overdue"
)

// SectionProgress is the derived status of one section for one student.
type SectionProgress struct {
	SectionID      uuid.UUID     `json:"section_id"`
	Title          string        `json:"title"`
	Order          int           `json:"order"`
	Status         SectionStatus `json:"status"`
	ConversationID *uuid.UUID    `json:"conversation_id"`
}

// HomeworkProgress aggregates per-section progress for one homework.
type HomeworkProgress struct {
	HomeworkID uuid.UUID         `json:"homework_id"`
	Sections   []SectionProgress `json:"sections"`
}
