package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-engine/internal/model"
)

// QuestionRepository handles versioned question data access.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

const questionColumns = `id, exam_id, version, type, prompt, media_url, options, accepted_answers,
	marks, negative_marks, time_limit_seconds, COALESCE(difficulty, ''), order_num`

func scanQuestions(rows pgx.Rows) ([]model.Question, error) {
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.ExamID, &q.Version, &q.Type, &q.Prompt, &q.MediaURL, &q.Options,
			&q.AcceptedAnswers, &q.Marks, &q.NegativeMarks, &q.TimeLimitSeconds, &q.Difficulty, &q.OrderNum); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// ListByExam retrieves the latest version of every question of an exam, ordered by order_num.
func (r *QuestionRepository) ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+questionColumns+` FROM (
		     SELECT DISTINCT ON (id) *
		     FROM questions
		     WHERE exam_id = $1
		     ORDER BY id, version DESC
		 ) latest
		 ORDER BY order_num, id`, examID,
	)
	if err != nil {
		return nil, err
	}
	return scanQuestions(rows)
}

// GetVersions retrieves exactly the pinned versions, keyed by question id.
func (r *QuestionRepository) GetVersions(ctx context.Context, examID uuid.UUID, refs []model.QuestionRef) (map[uuid.UUID]*model.Question, error) {
	ids := make([]uuid.UUID, len(refs))
	versions := make([]int32, len(refs))
	for i, ref := range refs {
		ids[i] = ref.QuestionID
		versions[i] = int32(ref.Version)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+questionColumns+`
		 FROM questions
		 WHERE exam_id = $1
		   AND (id, version) IN (SELECT * FROM UNNEST($2::uuid[], $3::int[]))`,
		examID, ids, versions,
	)
	if err != nil {
		return nil, err
	}
	questions, err := scanQuestions(rows)
	if err != nil {
		return nil, err
	}

	out := make(map[uuid.UUID]*model.Question, len(questions))
	for i := range questions {
		out[questions[i].ID] = &questions[i]
	}
	return out, nil
}

// Create inserts a new question at version 1, or a new version of q.ID when it is set.
func (r *QuestionRepository) Create(ctx context.Context, q *model.Question) error {
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	return r.pool.QueryRow(ctx,
		`INSERT INTO questions (id, version, exam_id, type, prompt, media_url, options, accepted_answers,
		                        marks, negative_marks, time_limit_seconds, difficulty, order_num)
		 VALUES ($1, COALESCE((SELECT MAX(version) FROM questions WHERE id = $1), 0) + 1,
		         $2, $3, $4, $5, $6, $7, $8, $9, $10, NULLIF($11, ''), $12)
		 RETURNING version`,
		q.ID, q.ExamID, q.Type, q.Prompt, q.MediaURL, q.Options, q.AcceptedAnswers,
		q.Marks, q.NegativeMarks, q.TimeLimitSeconds, q.Difficulty, q.OrderNum,
	).Scan(&q.Version)
}
