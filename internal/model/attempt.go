package model

import (
	"time"

	"github.com/google/uuid"
)

// ExamAttempt represents a single student's run at an exam.
//
// Token is issued once at creation and never reissued; submission requires an
// exact match. SubmittedAt is the terminal marker: nil means in progress, and
// once set the record is read-only. Score and Passed are derived from the
// answers and the exam's question set at submission time and never change.
type ExamAttempt struct {
	ID          uuid.UUID  `json:"id"`
	ExamID      uuid.UUID  `json:"exam_id"`
	StudentID   int        `json:"student_id"`
	Token       string     `json:"-"`
	Answers     map[string]string `json:"answers,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
	Score       int        `json:"score"`
	Passed      bool       `json:"passed"`

	Evidence      AttemptEvidence   `json:"evidence"`
	ClientSummary *ClientProctoring `json:"client_summary,omitempty"`
}

// Terminal reports whether the attempt has reached its permanent state.
func (a *ExamAttempt) Terminal() bool {
	return a.SubmittedAt != nil
}

// AttemptEvidence holds the server-accumulated proctoring counters for an
// attempt, fed by the periodic report channel. Counters only ever grow.
type AttemptEvidence struct {
	CameraOffSeconds   int            `json:"camera_off_seconds"`
	FaceMissingSeconds int            `json:"face_missing_seconds"`
	EmotionSeconds     map[string]int `json:"emotion_seconds,omitempty"`
	TabSwitchCount     int            `json:"tab_switch_count"`
	FramesAnalyzed     int            `json:"frames_analyzed"`
	SuspiciousActions  int            `json:"suspicious_actions"`
}

// ClientProctoring is the end-of-attempt evidence summary reported by the
// client at submission. It is untrusted input: the server-side incremental
// counters take precedence over it when both exist.
type ClientProctoring struct {
	FaceMissingSeconds int                `json:"face_missing_seconds" binding:"omitempty,min=0"`
	EmotionPercents    map[string]float64 `json:"emotion_percents" binding:"omitempty"`
	TabSwitchCount     int                `json:"tab_switch_count" binding:"omitempty,min=0"`
	TotalFrames        int                `json:"total_frames" binding:"omitempty,min=0"`
}

// AttemptFinalization carries everything written in the single atomic update
// that transitions an attempt to its terminal state.
type AttemptFinalization struct {
	Answers           map[string]string
	Score             int
	Passed            bool
	SuspiciousActions int
	ClientSummary     *ClientProctoring
	SubmittedAt       time.Time
}

// AnswerSubmission is one answered question in a submit request.
type AnswerSubmission struct {
	QuestionID     uuid.UUID `json:"question_id" binding:"required"`
	SelectedOption string    `json:"selected_option" binding:"required,max=500"`
}

// SubmitAttemptRequest is the payload for submitting an attempt.
type SubmitAttemptRequest struct {
	Token      string             `json:"token" binding:"required,len=64,hexadecimal"`
	Answers    []AnswerSubmission `json:"answers" binding:"omitempty,dive"`
	Proctoring *ClientProctoring  `json:"proctoring" binding:"omitempty"`
}

// ProctoringReportRequest is one interval of telemetry pushed while an
// attempt is in progress.
type ProctoringReportRequest struct {
	IntervalSeconds int    `json:"interval_seconds" binding:"required,min=1,max=300"`
	CameraOn        bool   `json:"camera_on"`
	FaceDetected    bool   `json:"face_detected"`
	Emotion         string `json:"emotion" binding:"omitempty,max=32"`
	TabSwitched     bool   `json:"tab_switched"`
}
