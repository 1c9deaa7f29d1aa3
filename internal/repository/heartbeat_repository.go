package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Heartbeat is one buffered client contact.
type Heartbeat struct {
	AttemptID uuid.UUID `json:"attempt_id"`
	SeenAt    time.Time `json:"seen_at"`
}

// HeartbeatRepository writes client contact times in bulk.
type HeartbeatRepository struct {
	pool *pgxpool.Pool
}

// NewHeartbeatRepository creates a new HeartbeatRepository.
func NewHeartbeatRepository(pool *pgxpool.Pool) *HeartbeatRepository {
	return &HeartbeatRepository{pool: pool}
}

// TouchBatch advances last_seen_at of in-progress attempts. It never moves the
// time backwards and does not bump the attempt version.
func (r *HeartbeatRepository) TouchBatch(ctx context.Context, beats []Heartbeat) (int64, error) {
	latest := make(map[uuid.UUID]time.Time, len(beats))
	for _, b := range beats {
		if cur, ok := latest[b.AttemptID]; !ok || b.SeenAt.After(cur) {
			latest[b.AttemptID] = b.SeenAt
		}
	}

	ids := make([]uuid.UUID, 0, len(latest))
	times := make([]time.Time, 0, len(latest))
	for id, t := range latest {
		ids = append(ids, id)
		times = append(times, t)
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE exam_attempts AS a
		 SET last_seen_at = GREATEST(a.last_seen_at, t.seen_at)
		 FROM UNNEST($1::uuid[], $2::timestamptz[]) AS t(id, seen_at)
		 WHERE a.id = t.id AND a.status = 'in_progress'`,
		ids, times,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
