package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-engine/internal/model"
)

// SecurityEventRepository handles the append-only security event log.
type SecurityEventRepository struct {
	pool *pgxpool.Pool
}

// NewSecurityEventRepository creates a new SecurityEventRepository.
func NewSecurityEventRepository(pool *pgxpool.Pool) *SecurityEventRepository {
	return &SecurityEventRepository{pool: pool}
}

var securityEventColumns = []string{
	"id", "attempt_id", "exam_id", "student_id", "sequence", "type",
	"severity", "details", "client_time", "recorded_at",
}

// InsertBatch bulk-loads events with COPY. Any duplicate fails the whole batch.
func (r *SecurityEventRepository) InsertBatch(ctx context.Context, events []model.SecurityEvent) (int64, error) {
	rows := make([][]interface{}, 0, len(events))
	for _, e := range events {
		rows = append(rows, []interface{}{
			e.ID, e.AttemptID, e.ExamID, e.StudentID, e.Sequence, string(e.Type),
			string(e.Severity), detailsOrNil(e.Details), e.ClientTime, e.RecordedAt,
		})
	}

	return r.pool.CopyFrom(
		ctx,
		pgx.Identifier{"attempt_security_events"},
		securityEventColumns,
		pgx.CopyFromRows(rows),
	)
}

// Insert writes one event, ignoring an event already stored.
func (r *SecurityEventRepository) Insert(ctx context.Context, e *model.SecurityEvent) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO attempt_security_events
		     (id, attempt_id, exam_id, student_id, sequence, type, severity, details, client_time, recorded_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9, $10)
		 ON CONFLICT DO NOTHING`,
		e.ID, e.AttemptID, e.ExamID, e.StudentID, e.Sequence, string(e.Type),
		string(e.Severity), detailsOrNil(e.Details), e.ClientTime, e.RecordedAt,
	)
	return err
}

// ListByAttempt returns the log of an attempt in sequence order.
func (r *SecurityEventRepository) ListByAttempt(ctx context.Context, attemptID uuid.UUID) ([]model.SecurityEvent, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, attempt_id, exam_id, student_id, sequence, type, severity, details, client_time, recorded_at
		 FROM attempt_security_events
		 WHERE attempt_id = $1
		 ORDER BY sequence`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.SecurityEvent
	for rows.Next() {
		var e model.SecurityEvent
		var details []byte
		if err := rows.Scan(&e.ID, &e.AttemptID, &e.ExamID, &e.StudentID, &e.Sequence, &e.Type,
			&e.Severity, &details, &e.ClientTime, &e.RecordedAt); err != nil {
			return nil, err
		}
		e.Details = details
		events = append(events, e)
	}
	return events, rows.Err()
}

// detailsOrNil stores absent details as SQL NULL.
func detailsOrNil(d []byte) interface{} {
	if len(d) == 0 {
		return nil
	}
	return string(d)
}
