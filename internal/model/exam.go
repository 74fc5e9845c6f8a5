package model

import (
	"time"

	"github.com/google/uuid"
)

// Exam represents an exam definition.
//
// StartTime and EndTime bound when attempts may be issued; either side may be
// nil (unbounded). Once any attempt has been submitted against the exam its
// structure (questions, duration, time window) is frozen.
type Exam struct {
	ID              uuid.UUID  `json:"id"`
	Title           string     `json:"title"`
	Description     string     `json:"description,omitempty"`
	TeacherID       int        `json:"teacher_id"`
	DurationMinutes int        `json:"duration_minutes"`
	StartTime       *time.Time `json:"start_time,omitempty"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	Proctored       bool       `json:"proctored"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// CreateExamRequest is the payload for creating a new exam.
type CreateExamRequest struct {
	Title           string     `json:"title" binding:"required,min=3,max=255"`
	Description     string     `json:"description" binding:"omitempty,max=2000"`
	DurationMinutes int        `json:"duration_minutes" binding:"required,min=1,max=480"`
	StartTime       *time.Time `json:"start_time" binding:"omitempty"`
	EndTime         *time.Time `json:"end_time" binding:"omitempty,gtfield=StartTime"`
	Proctored       *bool      `json:"proctored" binding:"omitempty"`
}

// UpdateExamRequest is the payload for updating an existing exam.
// Structural fields are rejected by the service once the exam has
// submitted attempts.
type UpdateExamRequest struct {
	Title           string     `json:"title" binding:"omitempty,min=3,max=255"`
	Description     *string    `json:"description" binding:"omitempty,max=2000"`
	DurationMinutes *int       `json:"duration_minutes" binding:"omitempty,min=1,max=480"`
	StartTime       *time.Time `json:"start_time" binding:"omitempty"`
	EndTime         *time.Time `json:"end_time" binding:"omitempty"`
	Proctored       *bool      `json:"proctored" binding:"omitempty"`
}

// AssignStudentsRequest is the payload for assigning students to an exam.
type AssignStudentsRequest struct {
	StudentIDs []int `json:"student_ids" binding:"required,min=1,dive,gt=0"`
}
