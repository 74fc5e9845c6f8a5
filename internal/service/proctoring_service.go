package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/vigilearn/examguard-backend/internal/config"
	"github.com/vigilearn/examguard-backend/internal/model"
)

// ProctoringLogItem is the queue wire format for one interval report. The
// handler path publishes it and the persistence worker consumes it.
type ProctoringLogItem struct {
	AttemptID       string `json:"attempt_id"`
	ExamID          string `json:"exam_id"`
	StudentID       int    `json:"student_id"`
	IntervalSeconds int    `json:"interval_seconds"`
	CameraOn        bool   `json:"camera_on"`
	FaceDetected    bool   `json:"face_detected"`
	Emotion         string `json:"emotion,omitempty"`
	TabSwitched     bool   `json:"tab_switched"`
	Timestamp       int64  `json:"timestamp"`
}

// ProctoringService accepts interval telemetry for in-progress attempts and
// fans it out: onto the persistence queue for the batch worker, and onto the
// exam's pub/sub channel for live monitors.
type ProctoringService struct {
	attempts AttemptStore
	rdb      *redis.Client
	log      zerolog.Logger
	now      func() time.Time
}

// NewProctoringService creates a new ProctoringService.
func NewProctoringService(attempts AttemptStore, rdb *redis.Client, log zerolog.Logger) *ProctoringService {
	return &ProctoringService{
		attempts: attempts,
		rdb:      rdb,
		log:      log.With().Str("component", "proctoring_service").Logger(),
		now:      time.Now,
	}
}

// Record validates one interval report against its attempt and enqueues it.
// Reports against finished or foreign attempts are rejected; accepted reports
// are acknowledged before any database write happens.
func (s *ProctoringService) Record(ctx context.Context, attemptID uuid.UUID, studentID int, req model.ProctoringReportRequest) error {
	attempt, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrAttemptNotFound
		}
		return fmt.Errorf("get attempt: %w", err)
	}
	if attempt.StudentID != studentID {
		return ErrNotAttemptOwner
	}
	if attempt.Terminal() {
		return ErrAlreadySubmitted
	}

	item := ProctoringLogItem{
		AttemptID:       attemptID.String(),
		ExamID:          attempt.ExamID.String(),
		StudentID:       studentID,
		IntervalSeconds: req.IntervalSeconds,
		CameraOn:        req.CameraOn,
		FaceDetected:    req.FaceDetected,
		Emotion:         req.Emotion,
		TabSwitched:     req.TabSwitched,
		Timestamp:       s.now().Unix(),
	}
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistProctoringQueue, data).Err(); err != nil {
		return fmt.Errorf("enqueue report: %w", err)
	}

	// Live monitors are best effort; a publish failure never rejects the
	// report.
	channel := config.CacheKey.ExamMonitorChannel(attempt.ExamID.String())
	if err := s.rdb.Publish(ctx, channel, data).Err(); err != nil {
		s.log.Warn().Err(err).Str("channel", channel).Msg("monitor publish failed")
	}

	return nil
}
