package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/vigilearn/examguard-backend/internal/model"
)

// Common exam management errors.
var (
	ErrNotExamOwner     = errors.New("exam belongs to another teacher")
	ErrInvalidTimeRange = errors.New("end time must be after start time")
	ErrExamLocked       = errors.New("exam has submitted attempts and is locked")
	ErrAttemptsExist    = errors.New("exam has attempts and cannot be deleted")
	ErrUnknownStudents  = errors.New("one or more student ids are not students")
)

// AttemptGate answers the structural-freeze questions the exam service asks
// before mutating an exam.
type AttemptGate interface {
	HasSubmitted(ctx context.Context, examID uuid.UUID) (bool, error)
	CountByExam(ctx context.Context, examID uuid.UUID) (int, error)
}

// Notifier enqueues notifications without blocking the caller.
type Notifier interface {
	EnqueueExamAssigned(ctx context.Context, exam *model.Exam, studentIDs []int)
}

// ExamStore is the exam persistence surface the exam service depends on.
type ExamStore interface {
	ExamReader
	Create(ctx context.Context, e *model.Exam) error
	Update(ctx context.Context, e *model.Exam) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByTeacherPaginated(ctx context.Context, teacherID, limit, offset int) ([]model.Exam, int, error)
	ListAssigned(ctx context.Context, studentID int) ([]model.Exam, error)
	AssignStudents(ctx context.Context, examID uuid.UUID, studentIDs []int) ([]int, error)
}

// QuestionStore is the question persistence surface the exam service depends on.
type QuestionStore interface {
	QuestionReader
	ReplaceForExam(ctx context.Context, examID uuid.UUID, questions []model.Question) error
}

// StudentCounter validates assignment targets.
type StudentCounter interface {
	CountStudents(ctx context.Context, ids []int) (int, error)
}

// ExamService handles exam and question management.
type ExamService struct {
	examRepo     ExamStore
	questionRepo QuestionStore
	userRepo     StudentCounter
	attempts     AttemptGate
	notifier     Notifier
	log          zerolog.Logger
}

// NewExamService creates a new ExamService.
func NewExamService(
	examRepo ExamStore,
	questionRepo QuestionStore,
	userRepo StudentCounter,
	attempts AttemptGate,
	notifier Notifier,
	log zerolog.Logger,
) *ExamService {
	return &ExamService{
		examRepo:     examRepo,
		questionRepo: questionRepo,
		userRepo:     userRepo,
		attempts:     attempts,
		notifier:     notifier,
		log:          log.With().Str("component", "exam_service").Logger(),
	}
}

// Create creates a new exam owned by the calling teacher.
func (s *ExamService) Create(ctx context.Context, teacherID int, req model.CreateExamRequest) (*model.Exam, error) {
	if req.StartTime != nil && req.EndTime != nil && !req.EndTime.After(*req.StartTime) {
		return nil, ErrInvalidTimeRange
	}

	exam := &model.Exam{
		ID:              uuid.New(),
		Title:           req.Title,
		Description:     req.Description,
		TeacherID:       teacherID,
		DurationMinutes: req.DurationMinutes,
		StartTime:       req.StartTime,
		EndTime:         req.EndTime,
	}
	if req.Proctored != nil {
		exam.Proctored = *req.Proctored
	}

	if err := s.examRepo.Create(ctx, exam); err != nil {
		return nil, fmt.Errorf("create exam: %w", err)
	}
	s.log.Info().Str("exam_id", exam.ID.String()).Int("teacher_id", teacherID).Msg("exam created")
	return exam, nil
}

// Get retrieves an exam, enforcing ownership for non-admin callers.
func (s *ExamService) Get(ctx context.Context, examID uuid.UUID, callerID int, role model.Role) (*model.Exam, error) {
	exam, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("get exam: %w", err)
	}
	if role != model.RoleAdmin && exam.TeacherID != callerID {
		return nil, ErrNotExamOwner
	}
	return exam, nil
}

// Update applies a partial update. Structural fields (duration, time window)
// are frozen once any attempt has been submitted; title and description stay
// editable.
func (s *ExamService) Update(ctx context.Context, examID uuid.UUID, callerID int, role model.Role, req model.UpdateExamRequest) (*model.Exam, error) {
	exam, err := s.Get(ctx, examID, callerID, role)
	if err != nil {
		return nil, err
	}

	structural := req.DurationMinutes != nil || req.StartTime != nil || req.EndTime != nil || req.Proctored != nil
	if structural {
		locked, err := s.attempts.HasSubmitted(ctx, examID)
		if err != nil {
			return nil, fmt.Errorf("check submissions: %w", err)
		}
		if locked {
			return nil, ErrExamLocked
		}
	}

	if req.Title != "" {
		exam.Title = req.Title
	}
	if req.Description != nil {
		exam.Description = *req.Description
	}
	if req.DurationMinutes != nil {
		exam.DurationMinutes = *req.DurationMinutes
	}
	if req.StartTime != nil {
		exam.StartTime = req.StartTime
	}
	if req.EndTime != nil {
		exam.EndTime = req.EndTime
	}
	if exam.StartTime != nil && exam.EndTime != nil && !exam.EndTime.After(*exam.StartTime) {
		return nil, ErrInvalidTimeRange
	}
	if req.Proctored != nil {
		exam.Proctored = *req.Proctored
	}

	if err := s.examRepo.Update(ctx, exam); err != nil {
		return nil, fmt.Errorf("update exam: %w", err)
	}
	return exam, nil
}

// Delete removes an exam that has never been attempted.
func (s *ExamService) Delete(ctx context.Context, examID uuid.UUID, callerID int, role model.Role) error {
	if _, err := s.Get(ctx, examID, callerID, role); err != nil {
		return err
	}

	count, err := s.attempts.CountByExam(ctx, examID)
	if err != nil {
		return fmt.Errorf("count attempts: %w", err)
	}
	if count > 0 {
		return ErrAttemptsExist
	}

	if err := s.examRepo.Delete(ctx, examID); err != nil {
		return fmt.Errorf("delete exam: %w", err)
	}
	s.log.Info().Str("exam_id", examID.String()).Msg("exam deleted")
	return nil
}

// ListForTeacher returns the teacher's exams, paginated. Admins see all.
func (s *ExamService) ListForTeacher(ctx context.Context, callerID int, role model.Role, limit, offset int) ([]model.Exam, int, error) {
	teacherID := callerID
	if role == model.RoleAdmin {
		teacherID = 0
	}
	return s.examRepo.ListByTeacherPaginated(ctx, teacherID, limit, offset)
}

// ListAssigned returns the exams assigned to a student.
func (s *ExamService) ListAssigned(ctx context.Context, studentID int) ([]model.Exam, error) {
	return s.examRepo.ListAssigned(ctx, studentID)
}

// Questions returns an exam's questions with answer keys, for its owner.
func (s *ExamService) Questions(ctx context.Context, examID uuid.UUID, callerID int, role model.Role) ([]model.Question, error) {
	if _, err := s.Get(ctx, examID, callerID, role); err != nil {
		return nil, err
	}
	return s.questionRepo.ListByExam(ctx, examID)
}

// ReplaceQuestions swaps the exam's full question set. Refused once any
// attempt has been submitted, so every graded attempt was graded against the
// same questions.
func (s *ExamService) ReplaceQuestions(ctx context.Context, examID uuid.UUID, callerID int, role model.Role, req model.ReplaceQuestionsRequest) ([]model.Question, error) {
	if _, err := s.Get(ctx, examID, callerID, role); err != nil {
		return nil, err
	}

	locked, err := s.attempts.HasSubmitted(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("check submissions: %w", err)
	}
	if locked {
		return nil, ErrExamLocked
	}

	questions := make([]model.Question, len(req.Questions))
	for i, q := range req.Questions {
		questions[i] = model.Question{
			ExamID:           examID,
			Prompt:           q.Prompt,
			CorrectOption:    q.CorrectOption,
			IncorrectOptions: q.IncorrectOptions,
		}
	}
	if err := s.questionRepo.ReplaceForExam(ctx, examID, questions); err != nil {
		return nil, fmt.Errorf("replace questions: %w", err)
	}
	return s.questionRepo.ListByExam(ctx, examID)
}

// AssignStudents assigns students to an exam. Every id must belong to a
// student account; duplicates and already-assigned students are ignored.
// Newly assigned students get a notification, enqueued fire-and-forget.
func (s *ExamService) AssignStudents(ctx context.Context, examID uuid.UUID, callerID int, role model.Role, req model.AssignStudentsRequest) ([]int, error) {
	exam, err := s.Get(ctx, examID, callerID, role)
	if err != nil {
		return nil, err
	}

	seen := make(map[int]bool, len(req.StudentIDs))
	ids := make([]int, 0, len(req.StudentIDs))
	for _, id := range req.StudentIDs {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	count, err := s.userRepo.CountStudents(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("count students: %w", err)
	}
	if count != len(ids) {
		return nil, ErrUnknownStudents
	}

	assigned, err := s.examRepo.AssignStudents(ctx, examID, ids)
	if err != nil {
		return nil, fmt.Errorf("assign students: %w", err)
	}

	if len(assigned) > 0 && s.notifier != nil {
		s.notifier.EnqueueExamAssigned(ctx, exam, assigned)
	}

	s.log.Info().
		Str("exam_id", examID.String()).
		Int("requested", len(ids)).
		Int("assigned", len(assigned)).
		Msg("students assigned to exam")
	return assigned, nil
}
