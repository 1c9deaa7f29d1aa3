package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-engine/internal/model"
)

// AttemptRepository handles exam attempt data access.
// Every state change of an attempt goes through a version compare-and-set.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

const attemptColumns = `id, exam_id, student_id, attempt_number, status, start_time, end_time,
	time_taken_seconds, time_budget_seconds, total_marks, pass_mark, duration_minutes,
	settings, grade_scale, question_order, tab_switches, full_screen_exits, copy_attempts,
	security_total, security_sequence, score, percentage, passed, grade, submitted_late,
	is_under_review, termination_reason, client, last_seen_at, version, created_at, updated_at`

const answerColumns = `id, attempt_id, question_id, question_version, question_type, value,
	is_correct, marks_awarded, max_marks, time_spent_seconds, marked_for_review,
	evaluated_at, graded_by, graded_at, feedback, saved_at`

func scanAttempt(row pgx.Row) (*model.Attempt, error) {
	a := &model.Attempt{}
	err := row.Scan(&a.ID, &a.ExamID, &a.StudentID, &a.AttemptNumber, &a.Status, &a.StartTime, &a.EndTime,
		&a.TimeTakenSeconds, &a.TimeBudgetSeconds, &a.TotalMarks, &a.PassMark, &a.DurationMinutes,
		&a.Settings, &a.GradeScale, &a.QuestionOrder, &a.Security.TabSwitches, &a.Security.FullScreenExits,
		&a.Security.CopyAttempts, &a.Security.Total, &a.Security.LastSequence, &a.Score, &a.Percentage,
		&a.Passed, &a.Grade, &a.SubmittedLate, &a.IsUnderReview, &a.TerminationReason, &a.Client,
		&a.LastSeenAt, &a.Version, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return a, nil
}

func scanAnswer(row pgx.Row) (*model.Answer, error) {
	ans := &model.Answer{}
	err := row.Scan(&ans.ID, &ans.AttemptID, &ans.QuestionID, &ans.QuestionVersion, &ans.QuestionType, &ans.Value,
		&ans.IsCorrect, &ans.MarksAwarded, &ans.MaxMarks, &ans.TimeSpentSeconds, &ans.MarkedForReview,
		&ans.EvaluatedAt, &ans.GradedBy, &ans.GradedAt, &ans.Feedback, &ans.SavedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return ans, nil
}

// CreateAttempt inserts a new attempt. created is false when the unique indexes
// on live attempts or attempt numbers rejected it.
func (r *AttemptRepository) CreateAttempt(ctx context.Context, a *model.Attempt) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`INSERT INTO exam_attempts (id, exam_id, student_id, attempt_number, status, start_time,
		        time_budget_seconds, deadline_at, hard_deadline_at, total_marks, pass_mark,
		        duration_minutes, settings, grade_scale, question_order, client, last_seen_at,
		        version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		 ON CONFLICT DO NOTHING`,
		a.ID, a.ExamID, a.StudentID, a.AttemptNumber, a.Status, a.StartTime,
		a.TimeBudgetSeconds, a.Deadline(), a.HardDeadline(), a.TotalMarks, a.PassMark,
		a.DurationMinutes, a.Settings, a.GradeScale, a.QuestionOrder, a.Client, a.LastSeenAt,
		a.Version, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// GetAttempt loads an attempt with its answers.
func (r *AttemptRepository) GetAttempt(ctx context.Context, id uuid.UUID) (*model.Attempt, error) {
	a, err := scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM exam_attempts WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	if a.Answers, err = r.listAnswers(ctx, id); err != nil {
		return nil, err
	}
	return a, nil
}

// FindInProgress returns the student's live attempt at an exam, or ErrNotFound.
func (r *AttemptRepository) FindInProgress(ctx context.Context, examID uuid.UUID, studentID int) (*model.Attempt, error) {
	a, err := scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+`
		 FROM exam_attempts
		 WHERE exam_id = $1 AND student_id = $2 AND status = 'in_progress'`, examID, studentID))
	if err != nil {
		return nil, err
	}
	if a.Answers, err = r.listAnswers(ctx, a.ID); err != nil {
		return nil, err
	}
	return a, nil
}

func (r *AttemptRepository) listAnswers(ctx context.Context, attemptID uuid.UUID) ([]model.Answer, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+answerColumns+` FROM attempt_answers WHERE attempt_id = $1 ORDER BY saved_at, id`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	answers := []model.Answer{}
	for rows.Next() {
		ans, err := scanAnswer(rows)
		if err != nil {
			return nil, err
		}
		answers = append(answers, *ans)
	}
	return answers, rows.Err()
}

// History counts finished attempts and returns the highest attempt number used.
func (r *AttemptRepository) History(ctx context.Context, examID uuid.UUID, studentID int) (model.AttemptHistory, error) {
	var h model.AttemptHistory
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FILTER (WHERE status <> 'in_progress'), COALESCE(MAX(attempt_number), 0)
		 FROM exam_attempts
		 WHERE exam_id = $1 AND student_id = $2`, examID, studentID,
	).Scan(&h.TerminalCount, &h.MaxAttemptNumber)
	return h, err
}

// SaveAnswer bumps the attempt version and upserts the answer in one transaction.
// The attempt row lock serializes writes to the same attempt.
func (r *AttemptRepository) SaveAnswer(ctx context.Context, ans *model.Answer) (*model.Answer, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE exam_attempts
		 SET version = version + 1, last_seen_at = GREATEST(last_seen_at, $2), updated_at = $2
		 WHERE id = $1 AND status = 'in_progress'`, ans.AttemptID, ans.SavedAt)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrAttemptNotOpen
	}

	stored, err := scanAnswer(tx.QueryRow(ctx,
		`INSERT INTO attempt_answers (`+answerColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		 ON CONFLICT (attempt_id, question_id) DO UPDATE SET
		     question_version = EXCLUDED.question_version,
		     question_type = EXCLUDED.question_type,
		     value = EXCLUDED.value,
		     is_correct = EXCLUDED.is_correct,
		     marks_awarded = EXCLUDED.marks_awarded,
		     max_marks = EXCLUDED.max_marks,
		     time_spent_seconds = EXCLUDED.time_spent_seconds,
		     marked_for_review = EXCLUDED.marked_for_review,
		     evaluated_at = EXCLUDED.evaluated_at,
		     graded_by = NULL,
		     graded_at = NULL,
		     feedback = NULL,
		     saved_at = EXCLUDED.saved_at
		 WHERE attempt_answers.saved_at <= EXCLUDED.saved_at
		 RETURNING `+answerColumns,
		ans.ID, ans.AttemptID, ans.QuestionID, ans.QuestionVersion, ans.QuestionType, ans.Value,
		ans.IsCorrect, ans.MarksAwarded, ans.MaxMarks, ans.TimeSpentSeconds, ans.MarkedForReview,
		ans.EvaluatedAt, ans.GradedBy, ans.GradedAt, ans.Feedback, ans.SavedAt,
	))
	if errors.Is(err, ErrNotFound) {
		// A newer write already won; report what is stored.
		stored, err = scanAnswer(tx.QueryRow(ctx,
			`SELECT `+answerColumns+` FROM attempt_answers WHERE attempt_id = $1 AND question_id = $2`,
			ans.AttemptID, ans.QuestionID))
	}
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return stored, nil
}

// UpdateAttempt writes the status and scoring fields and the given answer grades,
// provided the stored version still equals expectedVersion.
func (r *AttemptRepository) UpdateAttempt(ctx context.Context, a *model.Attempt, expectedVersion int, answers []model.Answer) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE exam_attempts
		 SET status = $3, end_time = $4, time_taken_seconds = $5, score = $6, percentage = $7,
		     passed = $8, grade = $9, submitted_late = $10, is_under_review = $11,
		     termination_reason = $12, updated_at = $13, version = version + 1
		 WHERE id = $1 AND version = $2`,
		a.ID, expectedVersion, a.Status, a.EndTime, a.TimeTakenSeconds, a.Score, a.Percentage,
		a.Passed, a.Grade, a.SubmittedLate, a.IsUnderReview, a.TerminationReason, a.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}

	if len(answers) > 0 {
		batch := &pgx.Batch{}
		for _, ans := range answers {
			batch.Queue(
				`UPDATE attempt_answers
				 SET is_correct = $2, marks_awarded = $3, max_marks = $4, evaluated_at = $5,
				     graded_by = $6, graded_at = $7, feedback = $8
				 WHERE id = $1`,
				ans.ID, ans.IsCorrect, ans.MarksAwarded, ans.MaxMarks, ans.EvaluatedAt,
				ans.GradedBy, ans.GradedAt, ans.Feedback,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("update answers: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// BumpSecurityCounters increments the counters for eventType and returns the new totals.
func (r *AttemptRepository) BumpSecurityCounters(ctx context.Context, attemptID uuid.UUID, eventType model.SecurityEventType, at time.Time) (model.SecurityCounters, error) {
	var delta model.SecurityCounters
	delta.Record(eventType)

	var c model.SecurityCounters
	err := r.pool.QueryRow(ctx,
		`UPDATE exam_attempts
		 SET tab_switches = tab_switches + $2,
		     full_screen_exits = full_screen_exits + $3,
		     copy_attempts = copy_attempts + $4,
		     security_total = security_total + 1,
		     security_sequence = security_sequence + 1,
		     last_seen_at = GREATEST(last_seen_at, $5)
		 WHERE id = $1 AND status = 'in_progress'
		 RETURNING tab_switches, full_screen_exits, copy_attempts, security_total, security_sequence`,
		attemptID, delta.TabSwitches, delta.FullScreenExits, delta.CopyAttempts, at,
	).Scan(&c.TabSwitches, &c.FullScreenExits, &c.CopyAttempts, &c.Total, &c.LastSequence)
	if errors.Is(err, pgx.ErrNoRows) {
		return c, ErrAttemptNotOpen
	}
	return c, err
}

// ListExpired returns in-progress attempts whose hard deadline is not after now,
// oldest first.
func (r *AttemptRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id FROM exam_attempts
		 WHERE status = 'in_progress' AND hard_deadline_at <= $1
		 ORDER BY hard_deadline_at
		 LIMIT $2`, now, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
}

// ExamStatistics aggregates finalized attempts of an exam.
func (r *AttemptRepository) ExamStatistics(ctx context.Context, examID uuid.UUID) (*model.AttemptStatistics, error) {
	st := &model.AttemptStatistics{ExamID: examID}
	err := r.pool.QueryRow(ctx,
		`SELECT
		     COUNT(*) FILTER (WHERE status <> 'in_progress'),
		     COUNT(*) FILTER (WHERE status = 'in_progress'),
		     COALESCE(ROUND(AVG(score) FILTER (WHERE status <> 'in_progress'), 2), 0)::float8,
		     COALESCE(ROUND(AVG(percentage) FILTER (WHERE status <> 'in_progress'), 2), 0)::float8,
		     COALESCE(ROUND(100.0 * COUNT(*) FILTER (WHERE passed AND status <> 'in_progress')
		         / NULLIF(COUNT(*) FILTER (WHERE status <> 'in_progress'), 0), 2), 0)::float8,
		     COALESCE(MAX(score) FILTER (WHERE status <> 'in_progress'), 0)::float8,
		     COALESCE(MIN(score) FILTER (WHERE status <> 'in_progress'), 0)::float8
		 FROM exam_attempts
		 WHERE exam_id = $1`, examID,
	).Scan(&st.TotalAttempts, &st.InProgress, &st.AverageScore, &st.AveragePercentage,
		&st.PassRate, &st.MaxScore, &st.MinScore)
	if err != nil {
		return nil, err
	}
	return st, nil
}

// ListByExam returns attempt summaries of an exam for live monitoring.
func (r *AttemptRepository) ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Attempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+attemptColumns+`
		 FROM exam_attempts
		 WHERE exam_id = $1
		 ORDER BY start_time DESC`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	attempts := []model.Attempt{}
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, *a)
	}
	return attempts, rows.Err()
}
