package websocket

import "time"

// Event identifies server-to-client monitor messages.
type Event string

const (
	EventSnapshot Event = "snapshot"
	EventReport   Event = "report"
	EventError    Event = "error"
	EventPing     Event = "ping"
)

// SnapshotMessage is the first message on a monitor connection: the current
// state of every attempt in the exam.
type SnapshotMessage struct {
	Event    Event             `json:"event"`
	ExamID   string            `json:"exam_id"`
	Attempts []AttemptSnapshot `json:"attempts"`
	SentAt   time.Time         `json:"sent_at"`
}

// AttemptSnapshot is one attempt's state in the initial snapshot.
type AttemptSnapshot struct {
	AttemptID          string     `json:"attempt_id"`
	StudentID          int        `json:"student_id"`
	StudentName        string     `json:"student_name"`
	Status             string     `json:"status"`
	Score              int        `json:"score"`
	StartedAt          time.Time  `json:"started_at"`
	SubmittedAt        *time.Time `json:"submitted_at,omitempty"`
	FaceMissingSeconds int        `json:"face_missing_seconds"`
	TabSwitchCount     int        `json:"tab_switch_count"`
	FramesAnalyzed     int        `json:"frames_analyzed"`
}

// ReportMessage relays one live interval report to the monitor. Payload is
// the raw queue item forwarded from pub/sub without re-decoding.
type ReportMessage struct {
	Event   Event  `json:"event"`
	Payload string `json:"payload"`
}

// ErrorMessage carries a terminal error before the server closes the
// connection.
type ErrorMessage struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

// PingMessage keeps intermediaries from reaping an idle monitor connection.
type PingMessage struct {
	Event Event `json:"event"`
}
