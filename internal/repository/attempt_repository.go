package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vigilearn/examguard-backend/internal/model"
)

// AttemptRepository handles exam attempt data access.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

// attemptColumns folds the per-emotion seconds table into one jsonb column so
// every read returns complete evidence in a single round trip.
const attemptColumns = `a.id, a.exam_id, a.student_id, a.token, a.answers,
	a.started_at, a.submitted_at, a.score, a.passed,
	a.camera_off_seconds, a.face_missing_seconds, a.tab_switch_count,
	a.frames_analyzed, a.suspicious_actions, a.client_summary,
	COALESCE((SELECT jsonb_object_agg(aes.emotion, aes.seconds)
	          FROM attempt_emotion_seconds aes
	          WHERE aes.attempt_id = a.id), '{}'::jsonb)`

func scanAttempt(row pgx.Row) (*model.ExamAttempt, error) {
	a := &model.ExamAttempt{}
	err := row.Scan(&a.ID, &a.ExamID, &a.StudentID, &a.Token, &a.Answers,
		&a.StartedAt, &a.SubmittedAt, &a.Score, &a.Passed,
		&a.Evidence.CameraOffSeconds, &a.Evidence.FaceMissingSeconds, &a.Evidence.TabSwitchCount,
		&a.Evidence.FramesAnalyzed, &a.Evidence.SuspiciousActions, &a.ClientSummary,
		&a.Evidence.EmotionSeconds)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// GetByID retrieves an attempt with its accumulated evidence.
func (r *AttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ExamAttempt, error) {
	return scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM exam_attempts a WHERE a.id = $1`, id))
}

// GetActive retrieves the student's non-terminal attempt for an exam, if any.
func (r *AttemptRepository) GetActive(ctx context.Context, examID uuid.UUID, studentID int) (*model.ExamAttempt, error) {
	return scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM exam_attempts a
		 WHERE a.exam_id = $1 AND a.student_id = $2 AND a.submitted_at IS NULL`,
		examID, studentID))
}

// Create inserts a new attempt. A partial unique index on
// (exam_id, student_id) WHERE submitted_at IS NULL enforces the one-active-
// attempt invariant; on conflict no row is inserted and pgx.ErrNoRows is
// returned, which the service resolves to the existing attempt.
func (r *AttemptRepository) Create(ctx context.Context, a *model.ExamAttempt) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO exam_attempts (id, exam_id, student_id, token, answers, started_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (exam_id, student_id) WHERE submitted_at IS NULL DO NOTHING
		 RETURNING started_at`,
		a.ID, a.ExamID, a.StudentID, a.Token, a.Answers, a.StartedAt,
	).Scan(&a.StartedAt)
}

// Finalize transitions an attempt to its terminal state. The WHERE clause is
// the compare-and-set: only the caller that observes submitted_at IS NULL
// writes; everyone else sees zero rows affected. Nothing about a finalized
// attempt is ever updated again.
func (r *AttemptRepository) Finalize(ctx context.Context, id uuid.UUID, fin model.AttemptFinalization) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE exam_attempts
		 SET answers = $2, score = $3, passed = $4, suspicious_actions = $5,
		     client_summary = $6, submitted_at = $7
		 WHERE id = $1 AND submitted_at IS NULL`,
		id, fin.Answers, fin.Score, fin.Passed, fin.SuspiciousActions,
		fin.ClientSummary, fin.SubmittedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// HasSubmitted reports whether any attempt against the exam has reached its
// terminal state. Gates structural exam edits.
func (r *AttemptRepository) HasSubmitted(ctx context.Context, examID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM exam_attempts WHERE exam_id = $1 AND submitted_at IS NOT NULL)`,
		examID,
	).Scan(&exists)
	return exists, err
}

// CountByExam returns the number of attempts (any state) against an exam.
func (r *AttemptRepository) CountByExam(ctx context.Context, examID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM exam_attempts WHERE exam_id = $1`, examID,
	).Scan(&n)
	return n, err
}

// EvidenceDelta is a pre-aggregated set of counter increments for one
// attempt. The worker folds a drained batch of interval reports down to at
// most one delta per attempt before touching the database.
type EvidenceDelta struct {
	AttemptID          uuid.UUID
	CameraOffSeconds   int
	FaceMissingSeconds int
	EmotionSeconds     map[string]int
	TabSwitches        int
	FramesAnalyzed     int
}

// ApplyEvidenceDeltas increments the evidence counters for a batch of
// attempts in two statements. Callers must pass at most one delta per
// attempt; a second delta for the same id would race the first inside the
// UPDATE ... FROM join.
func (r *AttemptRepository) ApplyEvidenceDeltas(ctx context.Context, deltas []EvidenceDelta) error {
	if len(deltas) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, len(deltas))
	cameraOff := make([]int, len(deltas))
	faceMissing := make([]int, len(deltas))
	tabSwitches := make([]int, len(deltas))
	frames := make([]int, len(deltas))
	var emotionIDs []uuid.UUID
	var emotions []string
	var emotionSecs []int
	for i, d := range deltas {
		ids[i] = d.AttemptID
		cameraOff[i] = d.CameraOffSeconds
		faceMissing[i] = d.FaceMissingSeconds
		tabSwitches[i] = d.TabSwitches
		frames[i] = d.FramesAnalyzed
		for emotion, secs := range d.EmotionSeconds {
			emotionIDs = append(emotionIDs, d.AttemptID)
			emotions = append(emotions, emotion)
			emotionSecs = append(emotionSecs, secs)
		}
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin evidence tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`UPDATE exam_attempts a
		 SET camera_off_seconds = a.camera_off_seconds + d.camera_off,
		     face_missing_seconds = a.face_missing_seconds + d.face_missing,
		     tab_switch_count = a.tab_switch_count + d.tab_switches,
		     frames_analyzed = a.frames_analyzed + d.frames
		 FROM (SELECT * FROM unnest($1::uuid[], $2::int[], $3::int[], $4::int[], $5::int[]))
		      AS d(id, camera_off, face_missing, tab_switches, frames)
		 WHERE a.id = d.id`,
		ids, cameraOff, faceMissing, tabSwitches, frames)
	if err != nil {
		return fmt.Errorf("bulk update attempt counters: %w", err)
	}

	if len(emotionIDs) > 0 {
		_, err = tx.Exec(ctx,
			`INSERT INTO attempt_emotion_seconds (attempt_id, emotion, seconds)
			 SELECT * FROM unnest($1::uuid[], $2::text[], $3::int[])
			 ON CONFLICT (attempt_id, emotion)
			 DO UPDATE SET seconds = attempt_emotion_seconds.seconds + EXCLUDED.seconds`,
			emotionIDs, emotions, emotionSecs)
		if err != nil {
			return fmt.Errorf("bulk upsert emotion seconds: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// ApplyEvidenceDelta is the row-by-row fallback used when a bulk apply fails.
func (r *AttemptRepository) ApplyEvidenceDelta(ctx context.Context, d EvidenceDelta) error {
	return r.ApplyEvidenceDeltas(ctx, []EvidenceDelta{d})
}

// AttemptResult is one row of a teacher's results view.
type AttemptResult struct {
	AttemptID       uuid.UUID             `json:"attempt_id"`
	StudentID       int                   `json:"student_id"`
	StudentName     string                `json:"student_name"`
	StudentEmail    string                `json:"student_email"`
	Score           int                   `json:"score"`
	Passed          bool                  `json:"passed"`
	StartedAt       time.Time             `json:"started_at"`
	SubmittedAt     *time.Time            `json:"submitted_at,omitempty"`
	DurationMinutes int                   `json:"duration_minutes"`
	Evidence        model.AttemptEvidence `json:"evidence"`
}

// ListResultsByExam retrieves all attempts for an exam joined with student
// identity, newest submissions first.
func (r *AttemptRepository) ListResultsByExam(ctx context.Context, examID uuid.UUID) ([]AttemptResult, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT a.id, u.id, u.name, u.email, a.score, a.passed, a.started_at, a.submitted_at,
		        a.camera_off_seconds, a.face_missing_seconds, a.tab_switch_count,
		        a.frames_analyzed, a.suspicious_actions,
		        COALESCE((SELECT jsonb_object_agg(aes.emotion, aes.seconds)
		                  FROM attempt_emotion_seconds aes
		                  WHERE aes.attempt_id = a.id), '{}'::jsonb)
		 FROM exam_attempts a
		 JOIN users u ON u.id = a.student_id
		 WHERE a.exam_id = $1
		 ORDER BY a.submitted_at DESC NULLS LAST, a.started_at DESC`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []AttemptResult
	for rows.Next() {
		var res AttemptResult
		if err := rows.Scan(&res.AttemptID, &res.StudentID, &res.StudentName, &res.StudentEmail,
			&res.Score, &res.Passed, &res.StartedAt, &res.SubmittedAt,
			&res.Evidence.CameraOffSeconds, &res.Evidence.FaceMissingSeconds,
			&res.Evidence.TabSwitchCount, &res.Evidence.FramesAnalyzed,
			&res.Evidence.SuspiciousActions, &res.Evidence.EmotionSeconds); err != nil {
			return nil, err
		}
		if res.SubmittedAt != nil {
			res.DurationMinutes = int(res.SubmittedAt.Sub(res.StartedAt).Minutes())
		}
		results = append(results, res)
	}
	return results, rows.Err()
}
