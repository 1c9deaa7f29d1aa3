package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-engine/internal/model"
)

// MonitorRepository provides data access for the live exam monitoring feature.
type MonitorRepository struct {
	pool *pgxpool.Pool
}

// NewMonitorRepository creates a new MonitorRepository.
func NewMonitorRepository(pool *pgxpool.Pool) *MonitorRepository {
	return &MonitorRepository{pool: pool}
}

// ListProgress returns every attempt of the exam with its answered count.
func (r *MonitorRepository) ListProgress(ctx context.Context, examID uuid.UUID) ([]model.AttemptProgress, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT a.id, a.student_id, a.attempt_number, a.status, COUNT(ans.id), a.security_total,
		        a.score, a.start_time, a.last_seen_at
		 FROM exam_attempts a
		 LEFT JOIN attempt_answers ans ON ans.attempt_id = a.id
		 WHERE a.exam_id = $1
		 GROUP BY a.id
		 ORDER BY a.start_time`,
		examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	progress := []model.AttemptProgress{}
	for rows.Next() {
		var p model.AttemptProgress
		if err := rows.Scan(&p.AttemptID, &p.StudentID, &p.AttemptNumber, &p.Status, &p.AnsweredCount,
			&p.SecurityEvents, &p.Score, &p.StartTime, &p.LastSeenAt); err != nil {
			return nil, err
		}
		progress = append(progress, p)
	}
	return progress, rows.Err()
}
