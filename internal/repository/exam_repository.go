package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vigilearn/examguard-backend/internal/model"
)

// ExamRepository handles exam data access.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

const examColumns = `id, title, description, teacher_id, duration_minutes,
	start_time, end_time, proctored, created_at, updated_at`

func scanExam(row pgx.Row) (*model.Exam, error) {
	e := &model.Exam{}
	err := row.Scan(&e.ID, &e.Title, &e.Description, &e.TeacherID, &e.DurationMinutes,
		&e.StartTime, &e.EndTime, &e.Proctored, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// GetByID retrieves an exam by its UUID.
func (r *ExamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	return scanExam(r.pool.QueryRow(ctx,
		`SELECT `+examColumns+` FROM exams WHERE id = $1`, id))
}

// Create inserts a new exam.
func (r *ExamRepository) Create(ctx context.Context, e *model.Exam) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO exams (id, title, description, teacher_id, duration_minutes, start_time, end_time, proctored)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING created_at, updated_at`,
		e.ID, e.Title, e.Description, e.TeacherID, e.DurationMinutes, e.StartTime, e.EndTime, e.Proctored,
	).Scan(&e.CreatedAt, &e.UpdatedAt)
}

// Update rewrites an exam's mutable fields.
func (r *ExamRepository) Update(ctx context.Context, e *model.Exam) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE exams
		 SET title = $1, description = $2, duration_minutes = $3,
		     start_time = $4, end_time = $5, proctored = $6, updated_at = NOW()
		 WHERE id = $7`,
		e.Title, e.Description, e.DurationMinutes, e.StartTime, e.EndTime, e.Proctored, e.ID)
	return err
}

// Delete removes an exam. Attempt existence is checked by the service first.
func (r *ExamRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM exams WHERE id = $1`, id)
	return err
}

// ListByTeacherPaginated retrieves a teacher's exams. teacherID 0 lists all
// exams (admin view).
func (r *ExamRepository) ListByTeacherPaginated(ctx context.Context, teacherID, limit, offset int) ([]model.Exam, int, error) {
	var total int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM exams WHERE ($1 = 0 OR teacher_id = $1)`, teacherID,
	).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+examColumns+` FROM exams
		 WHERE ($1 = 0 OR teacher_id = $1)
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`, teacherID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var exams []model.Exam
	for rows.Next() {
		e, err := scanExam(rows)
		if err != nil {
			return nil, 0, err
		}
		exams = append(exams, *e)
	}
	return exams, total, rows.Err()
}

// ListAssigned retrieves the exams assigned to a student.
func (r *ExamRepository) ListAssigned(ctx context.Context, studentID int) ([]model.Exam, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT e.id, e.title, e.description, e.teacher_id, e.duration_minutes,
		        e.start_time, e.end_time, e.proctored, e.created_at, e.updated_at
		 FROM exams e
		 JOIN exam_students es ON es.exam_id = e.id
		 WHERE es.student_id = $1
		 ORDER BY e.created_at DESC`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exams []model.Exam
	for rows.Next() {
		e, err := scanExam(rows)
		if err != nil {
			return nil, err
		}
		exams = append(exams, *e)
	}
	return exams, rows.Err()
}

// AssignStudents links students to an exam, skipping already-assigned ones.
// Returns the IDs that were newly assigned.
func (r *ExamRepository) AssignStudents(ctx context.Context, examID uuid.UUID, studentIDs []int) ([]int, error) {
	rows, err := r.pool.Query(ctx,
		`INSERT INTO exam_students (exam_id, student_id)
		 SELECT $1, unnest($2::int[])
		 ON CONFLICT (exam_id, student_id) DO NOTHING
		 RETURNING student_id`, examID, studentIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assigned []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		assigned = append(assigned, id)
	}
	return assigned, rows.Err()
}

// IsAssigned reports whether a student is assigned to an exam.
func (r *ExamRepository) IsAssigned(ctx context.Context, examID uuid.UUID, studentID int) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM exam_students WHERE exam_id = $1 AND student_id = $2)`,
		examID, studentID,
	).Scan(&exists)
	return exists, err
}
