package service

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/vigilearn/examguard-backend/internal/config"
	"github.com/vigilearn/examguard-backend/internal/model"
	"github.com/vigilearn/examguard-backend/internal/repository"
)

// fakeAttemptStore is an in-memory AttemptStore with the same conflict and
// compare-and-set behavior as the real one.
type fakeAttemptStore struct {
	mu       sync.Mutex
	attempts map[uuid.UUID]*model.ExamAttempt
}

func newFakeAttemptStore() *fakeAttemptStore {
	return &fakeAttemptStore{attempts: make(map[uuid.UUID]*model.ExamAttempt)}
}

func (f *fakeAttemptStore) Create(_ context.Context, a *model.ExamAttempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.attempts {
		if existing.ExamID == a.ExamID && existing.StudentID == a.StudentID && !existing.Terminal() {
			return pgx.ErrNoRows
		}
	}
	cp := *a
	f.attempts[a.ID] = &cp
	return nil
}

func (f *fakeAttemptStore) GetByID(_ context.Context, id uuid.UUID) (*model.ExamAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.attempts[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *a
	return &cp, nil
}

func (f *fakeAttemptStore) GetActive(_ context.Context, examID uuid.UUID, studentID int) (*model.ExamAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.attempts {
		if a.ExamID == examID && a.StudentID == studentID && !a.Terminal() {
			cp := *a
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeAttemptStore) Finalize(_ context.Context, id uuid.UUID, fin model.AttemptFinalization) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.attempts[id]
	if !ok || a.Terminal() {
		return false, nil
	}
	a.Answers = fin.Answers
	a.Score = fin.Score
	a.Passed = fin.Passed
	a.Evidence.SuspiciousActions = fin.SuspiciousActions
	a.ClientSummary = fin.ClientSummary
	submittedAt := fin.SubmittedAt
	a.SubmittedAt = &submittedAt
	return true, nil
}

func (f *fakeAttemptStore) ListResultsByExam(_ context.Context, examID uuid.UUID) ([]repository.AttemptResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var results []repository.AttemptResult
	for _, a := range f.attempts {
		if a.ExamID != examID {
			continue
		}
		results = append(results, repository.AttemptResult{
			AttemptID:   a.ID,
			StudentID:   a.StudentID,
			Score:       a.Score,
			Passed:      a.Passed,
			StartedAt:   a.StartedAt,
			SubmittedAt: a.SubmittedAt,
			Evidence:    a.Evidence,
		})
	}
	return results, nil
}

// setEvidence overwrites an attempt's server-side counters, standing in for
// the background worker.
func (f *fakeAttemptStore) setEvidence(id uuid.UUID, ev model.AttemptEvidence) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts[id].Evidence = ev
}

type fakeExamReader struct {
	exams    map[uuid.UUID]*model.Exam
	assigned map[uuid.UUID]map[int]bool
}

func newFakeExamReader() *fakeExamReader {
	return &fakeExamReader{
		exams:    make(map[uuid.UUID]*model.Exam),
		assigned: make(map[uuid.UUID]map[int]bool),
	}
}

func (f *fakeExamReader) GetByID(_ context.Context, id uuid.UUID) (*model.Exam, error) {
	e, ok := f.exams[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *e
	return &cp, nil
}

func (f *fakeExamReader) IsAssigned(_ context.Context, examID uuid.UUID, studentID int) (bool, error) {
	return f.assigned[examID][studentID], nil
}

func (f *fakeExamReader) add(e *model.Exam, studentIDs ...int) {
	f.exams[e.ID] = e
	set := make(map[int]bool, len(studentIDs))
	for _, id := range studentIDs {
		set[id] = true
	}
	f.assigned[e.ID] = set
}

type fakeQuestionReader struct {
	byExam map[uuid.UUID][]model.Question
}

func (f *fakeQuestionReader) ListByExam(_ context.Context, examID uuid.UUID) ([]model.Question, error) {
	return f.byExam[examID], nil
}

const testStudentID = 11

type attemptFixture struct {
	svc   *AttemptService
	store *fakeAttemptStore
	exams *fakeExamReader
	exam  *model.Exam
}

func newAttemptFixture(t *testing.T) *attemptFixture {
	t.Helper()

	examID := uuid.New()
	exam := &model.Exam{
		ID:              examID,
		Title:           "Midterm",
		TeacherID:       1,
		DurationMinutes: 60,
		Proctored:       true,
	}

	questions := []model.Question{
		{ID: uuid.New(), ExamID: examID, Prompt: "2+2?", CorrectOption: "4", IncorrectOptions: []string{"3", "5"}, Position: 0},
		{ID: uuid.New(), ExamID: examID, Prompt: "3+3?", CorrectOption: "6", IncorrectOptions: []string{"5", "7"}, Position: 1},
	}

	store := newFakeAttemptStore()
	exams := newFakeExamReader()
	exams.add(exam, testStudentID)

	cfg := &config.Config{SubmitGrace: 30 * time.Second}
	svc := NewAttemptService(store, exams, &fakeQuestionReader{byExam: map[uuid.UUID][]model.Question{examID: questions}}, cfg, zerolog.Nop())

	return &attemptFixture{svc: svc, store: store, exams: exams, exam: exam}
}

func (fx *attemptFixture) correctAnswers() []model.AnswerSubmission {
	questions := fx.svc.questions.(*fakeQuestionReader).byExam[fx.exam.ID]
	answers := make([]model.AnswerSubmission, len(questions))
	for i, q := range questions {
		answers[i] = model.AnswerSubmission{QuestionID: q.ID, SelectedOption: q.CorrectOption}
	}
	return answers
}

func TestStartIssuesTokenAndStripsAnswerKeys(t *testing.T) {
	fx := newAttemptFixture(t)
	ctx := context.Background()

	started, err := fx.svc.Start(ctx, fx.exam.ID, testStudentID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	if !regexp.MustCompile(`^[0-9a-f]{64}$`).MatchString(started.Token) {
		t.Errorf("token = %q, want 64 hex chars", started.Token)
	}
	if got, want := started.EndsAt.Sub(started.StartedAt), 60*time.Minute; got != want {
		t.Errorf("window = %v, want %v", got, want)
	}
	if len(started.Questions) != 2 {
		t.Fatalf("got %d questions, want 2", len(started.Questions))
	}
	for _, q := range started.Questions {
		if len(q.Options) != 3 {
			t.Errorf("question %s has %d options, want 3", q.ID, len(q.Options))
		}
	}
}

func TestStartRejectsUnassignedStudent(t *testing.T) {
	fx := newAttemptFixture(t)

	_, err := fx.svc.Start(context.Background(), fx.exam.ID, 99)
	if !errors.Is(err, ErrExamNotAssigned) {
		t.Fatalf("err = %v, want ErrExamNotAssigned", err)
	}
}

func TestStartEnforcesExamWindow(t *testing.T) {
	fx := newAttemptFixture(t)
	ctx := context.Background()

	future := time.Now().Add(time.Hour)
	fx.exam.StartTime = &future
	fx.exams.exams[fx.exam.ID] = fx.exam
	if _, err := fx.svc.Start(ctx, fx.exam.ID, testStudentID); !errors.Is(err, ErrExamNotOpen) {
		t.Fatalf("before window: err = %v, want ErrExamNotOpen", err)
	}

	past := time.Now().Add(-time.Hour)
	fx.exam.StartTime = nil
	fx.exam.EndTime = &past
	fx.exams.exams[fx.exam.ID] = fx.exam
	if _, err := fx.svc.Start(ctx, fx.exam.ID, testStudentID); !errors.Is(err, ErrExamClosed) {
		t.Fatalf("after window: err = %v, want ErrExamClosed", err)
	}
}

func TestStartSecondTimeSurfacesActiveAttempt(t *testing.T) {
	fx := newAttemptFixture(t)
	ctx := context.Background()

	first, err := fx.svc.Start(ctx, fx.exam.ID, testStudentID)
	if err != nil {
		t.Fatalf("first Start: %v", err)
	}

	_, err = fx.svc.Start(ctx, fx.exam.ID, testStudentID)
	var active *ActiveAttemptError
	if !errors.As(err, &active) {
		t.Fatalf("second Start err = %v, want ActiveAttemptError", err)
	}
	if active.AttemptID != first.AttemptID {
		t.Errorf("active attempt id = %s, want %s", active.AttemptID, first.AttemptID)
	}
}

func TestSubmitGradesAndFinalizes(t *testing.T) {
	fx := newAttemptFixture(t)
	ctx := context.Background()

	started, err := fx.svc.Start(ctx, fx.exam.ID, testStudentID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	answers := fx.correctAnswers()
	answers[1].SelectedOption = "wrong"

	result, err := fx.svc.Submit(ctx, started.AttemptID, testStudentID, model.SubmitAttemptRequest{
		Token:   started.Token,
		Answers: answers,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if result.Score != 50 {
		t.Errorf("score = %d, want 50", result.Score)
	}
	if !result.Passed {
		t.Error("score 50 should pass")
	}
	if result.CorrectCount != 1 || result.TotalQuestions != 2 {
		t.Errorf("correct/total = %d/%d, want 1/2", result.CorrectCount, result.TotalQuestions)
	}

	stored, err := fx.store.GetByID(ctx, started.AttemptID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if !stored.Terminal() {
		t.Error("attempt not terminal after submit")
	}
}

func TestSubmitValidationOrder(t *testing.T) {
	fx := newAttemptFixture(t)
	ctx := context.Background()

	started, err := fx.svc.Start(ctx, fx.exam.ID, testStudentID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	badToken := regexp.MustCompile("[0-9a-f]").ReplaceAllString(started.Token, "0")

	// Unknown attempt wins over everything else.
	if _, err := fx.svc.Submit(ctx, uuid.New(), testStudentID, model.SubmitAttemptRequest{Token: badToken}); !errors.Is(err, ErrAttemptNotFound) {
		t.Errorf("unknown attempt: err = %v, want ErrAttemptNotFound", err)
	}

	// Bad token wins over wrong owner.
	if _, err := fx.svc.Submit(ctx, started.AttemptID, 99, model.SubmitAttemptRequest{Token: badToken}); !errors.Is(err, ErrInvalidAttemptToken) {
		t.Errorf("bad token + wrong owner: err = %v, want ErrInvalidAttemptToken", err)
	}

	// Valid token, wrong owner.
	if _, err := fx.svc.Submit(ctx, started.AttemptID, 99, model.SubmitAttemptRequest{Token: started.Token}); !errors.Is(err, ErrNotAttemptOwner) {
		t.Errorf("wrong owner: err = %v, want ErrNotAttemptOwner", err)
	}
}

func TestSubmitAfterTimeLimit(t *testing.T) {
	fx := newAttemptFixture(t)
	ctx := context.Background()

	started, err := fx.svc.Start(ctx, fx.exam.ID, testStudentID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	fx.svc.now = func() time.Time { return started.StartedAt.Add(61 * time.Minute) }

	_, err = fx.svc.Submit(ctx, started.AttemptID, testStudentID, model.SubmitAttemptRequest{Token: started.Token})
	var tle *TimeLimitError
	if !errors.As(err, &tle) {
		t.Fatalf("err = %v, want TimeLimitError", err)
	}
	if tle.LimitMinutes != 60 {
		t.Errorf("limit = %d, want 60", tle.LimitMinutes)
	}
}

func TestSubmitWithinGraceSucceeds(t *testing.T) {
	fx := newAttemptFixture(t)
	ctx := context.Background()

	started, err := fx.svc.Start(ctx, fx.exam.ID, testStudentID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	// 15s past the nominal limit but inside the 30s grace.
	fx.svc.now = func() time.Time { return started.StartedAt.Add(60*time.Minute + 15*time.Second) }

	if _, err := fx.svc.Submit(ctx, started.AttemptID, testStudentID, model.SubmitAttemptRequest{Token: started.Token}); err != nil {
		t.Fatalf("Submit inside grace: %v", err)
	}
}

func TestSubmitTwiceReturnsAlreadySubmitted(t *testing.T) {
	fx := newAttemptFixture(t)
	ctx := context.Background()

	started, err := fx.svc.Start(ctx, fx.exam.ID, testStudentID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	req := model.SubmitAttemptRequest{Token: started.Token, Answers: fx.correctAnswers()}
	if _, err := fx.svc.Submit(ctx, started.AttemptID, testStudentID, req); err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	if _, err := fx.svc.Submit(ctx, started.AttemptID, testStudentID, req); !errors.Is(err, ErrAlreadySubmitted) {
		t.Fatalf("second Submit err = %v, want ErrAlreadySubmitted", err)
	}
}

func TestConcurrentSubmitsProduceOneResult(t *testing.T) {
	fx := newAttemptFixture(t)
	ctx := context.Background()

	started, err := fx.svc.Start(ctx, fx.exam.ID, testStudentID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	req := model.SubmitAttemptRequest{Token: started.Token, Answers: fx.correctAnswers()}

	const racers = 8
	errs := make([]error, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = fx.svc.Submit(ctx, started.AttemptID, testStudentID, req)
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, ErrAlreadySubmitted):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if winners != 1 {
		t.Fatalf("got %d winners, want exactly 1", winners)
	}
}

func TestSubmitEvaluatesServerEvidence(t *testing.T) {
	fx := newAttemptFixture(t)
	ctx := context.Background()

	started, err := fx.svc.Start(ctx, fx.exam.ID, testStudentID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	fx.store.setEvidence(started.AttemptID, model.AttemptEvidence{
		FaceMissingSeconds: 400,
		EmotionSeconds:     map[string]int{"fear": 12, "neutral": 300},
		TabSwitchCount:     5,
		FramesAnalyzed:     312,
	})

	result, err := fx.svc.Submit(ctx, started.AttemptID, testStudentID, model.SubmitAttemptRequest{
		Token:   started.Token,
		Answers: fx.correctAnswers(),
		// A clean client summary must not mask the server counters.
		Proctoring: &model.ClientProctoring{TotalFrames: 312},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	// face missing (2) + fear (1) + tab switches (1)
	if result.SuspiciousActions != 4 {
		t.Errorf("suspicious actions = %d, want 4", result.SuspiciousActions)
	}
	if len(result.Warnings) != 3 {
		t.Errorf("warnings = %v, want 3 entries", result.Warnings)
	}
}

func TestSubmitUnproctoredExamSkipsSuspicion(t *testing.T) {
	fx := newAttemptFixture(t)
	ctx := context.Background()

	fx.exam.Proctored = false
	fx.exams.exams[fx.exam.ID] = fx.exam

	started, err := fx.svc.Start(ctx, fx.exam.ID, testStudentID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	fx.store.setEvidence(started.AttemptID, model.AttemptEvidence{
		FaceMissingSeconds: 999,
		TabSwitchCount:     99,
		FramesAnalyzed:     100,
	})

	result, err := fx.svc.Submit(ctx, started.AttemptID, testStudentID, model.SubmitAttemptRequest{
		Token:   started.Token,
		Answers: fx.correctAnswers(),
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if result.SuspiciousActions != 0 || len(result.Warnings) != 0 {
		t.Errorf("unproctored exam flagged: actions=%d warnings=%v", result.SuspiciousActions, result.Warnings)
	}
}

func TestGetEnforcesOwnership(t *testing.T) {
	fx := newAttemptFixture(t)
	ctx := context.Background()

	started, err := fx.svc.Start(ctx, fx.exam.ID, testStudentID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	if _, err := fx.svc.Get(ctx, started.AttemptID, testStudentID, model.RoleStudent); err != nil {
		t.Errorf("owner read: %v", err)
	}
	if _, err := fx.svc.Get(ctx, started.AttemptID, 99, model.RoleStudent); !errors.Is(err, ErrNotAttemptOwner) {
		t.Errorf("foreign student read err = %v, want ErrNotAttemptOwner", err)
	}
	if _, err := fx.svc.Get(ctx, started.AttemptID, 99, model.RoleTeacher); err != nil {
		t.Errorf("teacher review read: %v", err)
	}
}

func TestResultsAggregatesSubmittedAttempts(t *testing.T) {
	fx := newAttemptFixture(t)
	ctx := context.Background()

	started, err := fx.svc.Start(ctx, fx.exam.ID, testStudentID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := fx.svc.Submit(ctx, started.AttemptID, testStudentID, model.SubmitAttemptRequest{
		Token:   started.Token,
		Answers: fx.correctAnswers(),
	}); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	results, err := fx.svc.Results(ctx, fx.exam.ID, fx.exam.TeacherID, model.RoleTeacher)
	if err != nil {
		t.Fatalf("Results: %v", err)
	}
	if results.Submitted != 1 || results.InProgress != 0 {
		t.Errorf("submitted/in-progress = %d/%d, want 1/0", results.Submitted, results.InProgress)
	}
	if results.AverageScore != 100 {
		t.Errorf("average = %v, want 100", results.AverageScore)
	}
	if results.PassedCount != 1 {
		t.Errorf("passed = %d, want 1", results.PassedCount)
	}

	if _, err := fx.svc.Results(ctx, fx.exam.ID, 42, model.RoleTeacher); !errors.Is(err, ErrNotExamOwner) {
		t.Errorf("foreign teacher err = %v, want ErrNotExamOwner", err)
	}
}
