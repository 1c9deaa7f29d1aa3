package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-engine/internal/model"
)

// ExamTargetRuleRepository handles exam assignment data access.
type ExamTargetRuleRepository struct {
	pool *pgxpool.Pool
}

// NewExamTargetRuleRepository creates a new ExamTargetRuleRepository.
func NewExamTargetRuleRepository(pool *pgxpool.Pool) *ExamTargetRuleRepository {
	return &ExamTargetRuleRepository{pool: pool}
}

// ListByExam retrieves all target rules for a given exam.
func (r *ExamTargetRuleRepository) ListByExam(ctx context.Context, examID uuid.UUID) ([]model.ExamTargetRule, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, exam_id, student_id, group_id
		 FROM exam_target_rules
		 WHERE exam_id = $1
		 ORDER BY id`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []model.ExamTargetRule
	for rows.Next() {
		var rule model.ExamTargetRule
		if err := rows.Scan(&rule.ID, &rule.ExamID, &rule.StudentID, &rule.GroupID); err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// Create inserts a new target rule.
func (r *ExamTargetRuleRepository) Create(ctx context.Context, rule *model.ExamTargetRule) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO exam_target_rules (exam_id, student_id, group_id)
		 VALUES ($1, $2, $3)
		 RETURNING id`,
		rule.ExamID, rule.StudentID, rule.GroupID,
	).Scan(&rule.ID)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// IsAssigned reports whether the exam targets the student directly or through a group.
func (r *ExamTargetRuleRepository) IsAssigned(ctx context.Context, examID uuid.UUID, studentID int) (bool, error) {
	var assigned bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (
		     SELECT 1 FROM exam_target_rules t
		     LEFT JOIN group_members gm ON gm.group_id = t.group_id
		     WHERE t.exam_id = $1 AND (t.student_id = $2 OR gm.student_id = $2)
		 )`, examID, studentID,
	).Scan(&assigned)
	return assigned, err
}
