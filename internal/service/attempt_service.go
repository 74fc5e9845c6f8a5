package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/vigilearn/examguard-backend/internal/config"
	"github.com/vigilearn/examguard-backend/internal/grading"
	"github.com/vigilearn/examguard-backend/internal/model"
	"github.com/vigilearn/examguard-backend/internal/proctoring"
	"github.com/vigilearn/examguard-backend/internal/repository"
)

// Common attempt errors.
var (
	ErrExamNotFound        = errors.New("exam not found")
	ErrExamNotAssigned     = errors.New("exam not assigned to student")
	ErrExamNotOpen         = errors.New("exam has not opened yet")
	ErrExamClosed          = errors.New("exam window has closed")
	ErrAttemptNotFound     = errors.New("attempt not found")
	ErrInvalidAttemptToken = errors.New("invalid attempt token")
	ErrNotAttemptOwner     = errors.New("attempt belongs to another student")
	ErrAlreadySubmitted    = errors.New("attempt already submitted")
)

// ActiveAttemptError signals that the student already holds an in-progress
// attempt for the exam. The existing attempt's id is carried so the client
// can resume it; the token is never reissued.
type ActiveAttemptError struct {
	AttemptID uuid.UUID
}

func (e *ActiveAttemptError) Error() string {
	return fmt.Sprintf("attempt %s is already in progress", e.AttemptID)
}

// TimeLimitError signals a submission past the exam's duration plus grace.
type TimeLimitError struct {
	ElapsedMinutes int
	LimitMinutes   int
}

func (e *TimeLimitError) Error() string {
	return fmt.Sprintf("time limit exceeded: %dm elapsed, limit %dm", e.ElapsedMinutes, e.LimitMinutes)
}

// AttemptStore is the attempt persistence surface the service depends on.
type AttemptStore interface {
	Create(ctx context.Context, a *model.ExamAttempt) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.ExamAttempt, error)
	GetActive(ctx context.Context, examID uuid.UUID, studentID int) (*model.ExamAttempt, error)
	Finalize(ctx context.Context, id uuid.UUID, fin model.AttemptFinalization) (bool, error)
	ListResultsByExam(ctx context.Context, examID uuid.UUID) ([]repository.AttemptResult, error)
}

// ExamReader is the exam lookup surface the attempt service depends on.
type ExamReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error)
	IsAssigned(ctx context.Context, examID uuid.UUID, studentID int) (bool, error)
}

// QuestionReader lists an exam's questions.
type QuestionReader interface {
	ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Question, error)
}

// AttemptService handles the exam attempt lifecycle: start, submit, review.
type AttemptService struct {
	attempts  AttemptStore
	exams     ExamReader
	questions QuestionReader
	cfg       *config.Config
	log       zerolog.Logger
	now       func() time.Time
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(attempts AttemptStore, exams ExamReader, questions QuestionReader, cfg *config.Config, log zerolog.Logger) *AttemptService {
	return &AttemptService{
		attempts:  attempts,
		exams:     exams,
		questions: questions,
		cfg:       cfg,
		log:       log.With().Str("component", "attempt_service").Logger(),
		now:       time.Now,
	}
}

// StartedAttempt is the response to a successful start: the attempt plus its
// one-time token and the question set with answer keys stripped.
type StartedAttempt struct {
	AttemptID uuid.UUID                  `json:"attempt_id"`
	Token     string                     `json:"token"`
	StartedAt time.Time                  `json:"started_at"`
	EndsAt    time.Time                  `json:"ends_at"`
	Questions []model.QuestionForStudent `json:"questions"`
}

// Start opens a new attempt for the student. The exam must be assigned to
// them and inside its open window, and they must not already hold an
// in-progress attempt.
func (s *AttemptService) Start(ctx context.Context, examID uuid.UUID, studentID int) (*StartedAttempt, error) {
	exam, err := s.exams.GetByID(ctx, examID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("get exam: %w", err)
	}

	assigned, err := s.exams.IsAssigned(ctx, examID, studentID)
	if err != nil {
		return nil, fmt.Errorf("check assignment: %w", err)
	}
	if !assigned {
		return nil, ErrExamNotAssigned
	}

	now := s.now()
	if exam.StartTime != nil && now.Before(*exam.StartTime) {
		return nil, ErrExamNotOpen
	}
	if exam.EndTime != nil && now.After(*exam.EndTime) {
		return nil, ErrExamClosed
	}

	token, err := newAttemptToken()
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}

	attempt := &model.ExamAttempt{
		ID:        uuid.New(),
		ExamID:    examID,
		StudentID: studentID,
		Token:     token,
		Answers:   map[string]string{},
		StartedAt: now,
	}

	if err := s.attempts.Create(ctx, attempt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Lost the race (or a prior attempt is still open). Surface the
			// existing attempt so the client can resume.
			existing, gerr := s.attempts.GetActive(ctx, examID, studentID)
			if gerr != nil {
				return nil, fmt.Errorf("resolve active attempt: %w", gerr)
			}
			return nil, &ActiveAttemptError{AttemptID: existing.ID}
		}
		return nil, fmt.Errorf("create attempt: %w", err)
	}

	questions, err := s.questions.ListByExam(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	forStudent := make([]model.QuestionForStudent, len(questions))
	for i, q := range questions {
		forStudent[i] = q.ForStudent()
	}

	return &StartedAttempt{
		AttemptID: attempt.ID,
		Token:     token,
		StartedAt: attempt.StartedAt,
		EndsAt:    attempt.StartedAt.Add(time.Duration(exam.DurationMinutes) * time.Minute),
		Questions: forStudent,
	}, nil
}

// SubmitResult is the response to a successful submission.
type SubmitResult struct {
	AttemptID         uuid.UUID `json:"attempt_id"`
	Score             int       `json:"score"`
	Passed            bool      `json:"passed"`
	CorrectCount      int       `json:"correct_count"`
	TotalQuestions    int       `json:"total_questions"`
	SuspiciousActions int       `json:"suspicious_actions"`
	Warnings          []string  `json:"warnings,omitempty"`
	SubmittedAt       time.Time `json:"submitted_at"`
}

// Submit grades and finalizes an attempt. Validation runs in a fixed order:
// attempt exists, token matches, caller owns it, not yet submitted, inside
// the time limit. Finalization is a compare-and-set on the terminal marker,
// so concurrent submissions produce exactly one graded result.
func (s *AttemptService) Submit(ctx context.Context, attemptID uuid.UUID, studentID int, req model.SubmitAttemptRequest) (*SubmitResult, error) {
	attempt, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("get attempt: %w", err)
	}

	if subtle.ConstantTimeCompare([]byte(attempt.Token), []byte(req.Token)) != 1 {
		s.log.Warn().
			Str("attempt_id", attemptID.String()).
			Int("student_id", studentID).
			Msg("submission with mismatched attempt token")
		return nil, ErrInvalidAttemptToken
	}
	if attempt.StudentID != studentID {
		return nil, ErrNotAttemptOwner
	}
	if attempt.Terminal() {
		return nil, ErrAlreadySubmitted
	}

	exam, err := s.exams.GetByID(ctx, attempt.ExamID)
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}

	now := s.now()
	elapsed := now.Sub(attempt.StartedAt)
	limit := time.Duration(exam.DurationMinutes)*time.Minute + s.cfg.SubmitGrace
	if elapsed > limit {
		return nil, &TimeLimitError{
			ElapsedMinutes: int(elapsed.Minutes()),
			LimitMinutes:   exam.DurationMinutes,
		}
	}

	questions, err := s.questions.ListByExam(ctx, attempt.ExamID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}

	answers := grading.AnswersFromSubmissions(req.Answers)
	result := grading.Score(answers, questions)

	warnings, suspicious := proctoring.EvaluateSuspicion(
		proctoring.EvidenceFromAttempt(
			attempt.Evidence.FramesAnalyzed,
			attempt.Evidence.FaceMissingSeconds,
			attempt.Evidence.EmotionSeconds,
			attempt.Evidence.TabSwitchCount,
			clientSummaryInput(req.Proctoring),
		),
		exam.Proctored,
	)

	answerMap := make(map[string]string, len(req.Answers))
	for _, a := range req.Answers {
		answerMap[a.QuestionID.String()] = a.SelectedOption
	}

	won, err := s.attempts.Finalize(ctx, attemptID, model.AttemptFinalization{
		Answers:           answerMap,
		Score:             result.Score,
		Passed:            result.Passed,
		SuspiciousActions: suspicious,
		ClientSummary:     req.Proctoring,
		SubmittedAt:       now,
	})
	if err != nil {
		return nil, fmt.Errorf("finalize attempt: %w", err)
	}
	if !won {
		return nil, ErrAlreadySubmitted
	}

	s.log.Info().
		Str("attempt_id", attemptID.String()).
		Str("exam_id", attempt.ExamID.String()).
		Int("student_id", studentID).
		Int("score", result.Score).
		Bool("passed", result.Passed).
		Int("suspicious_actions", suspicious).
		Msg("attempt submitted")

	return &SubmitResult{
		AttemptID:         attemptID,
		Score:             result.Score,
		Passed:            result.Passed,
		CorrectCount:      result.CorrectCount,
		TotalQuestions:    result.TotalQuestions,
		SuspiciousActions: suspicious,
		Warnings:          warnings,
		SubmittedAt:       now,
	}, nil
}

// Get retrieves an attempt for a caller: its owner, or a role allowed to
// review attempts.
func (s *AttemptService) Get(ctx context.Context, attemptID uuid.UUID, callerID int, role model.Role) (*model.ExamAttempt, error) {
	attempt, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("get attempt: %w", err)
	}

	if attempt.StudentID != callerID && !role.CanReviewAttempts() {
		return nil, ErrNotAttemptOwner
	}
	return attempt, nil
}

// ExamResults aggregates all attempts for a teacher's results view.
type ExamResults struct {
	ExamID       uuid.UUID                  `json:"exam_id"`
	Attempts     []repository.AttemptResult `json:"attempts"`
	Submitted    int                        `json:"submitted"`
	InProgress   int                        `json:"in_progress"`
	PassedCount  int                        `json:"passed_count"`
	AverageScore float64                    `json:"average_score"`
}

// Results returns all attempts for an exam with summary statistics. The
// caller must own the exam or hold a reviewing role.
func (s *AttemptService) Results(ctx context.Context, examID uuid.UUID, callerID int, role model.Role) (*ExamResults, error) {
	exam, err := s.exams.GetByID(ctx, examID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("get exam: %w", err)
	}
	if exam.TeacherID != callerID && role != model.RoleAdmin {
		return nil, ErrNotExamOwner
	}

	attempts, err := s.attempts.ListResultsByExam(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}

	results := &ExamResults{ExamID: examID, Attempts: attempts}
	scoreSum := 0
	for _, a := range attempts {
		if a.SubmittedAt == nil {
			results.InProgress++
			continue
		}
		results.Submitted++
		scoreSum += a.Score
		if a.Passed {
			results.PassedCount++
		}
	}
	if results.Submitted > 0 {
		results.AverageScore = float64(scoreSum) / float64(results.Submitted)
	}
	return results, nil
}

func clientSummaryInput(c *model.ClientProctoring) *proctoring.EvidenceSummaryInput {
	if c == nil {
		return nil
	}
	return &proctoring.EvidenceSummaryInput{
		FaceMissingSeconds: c.FaceMissingSeconds,
		EmotionPercents:    c.EmotionPercents,
		TabSwitchCount:     c.TabSwitchCount,
	}
}

// newAttemptToken returns 32 random bytes hex-encoded, the attempt's
// single-issue submission credential.
func newAttemptToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
