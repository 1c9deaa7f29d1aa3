package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-engine/internal/config"
	"github.com/stemsi/exstem-engine/internal/model"
	"github.com/stemsi/exstem-engine/internal/repository"
)

// Queue is the producer side of the persistence queues. The request path only
// pushes to Redis; workers drain the lists into PostgreSQL in batches.
type Queue struct {
	rdb *redis.Client
}

// NewQueue creates a new Queue.
func NewQueue(rdb *redis.Client) *Queue {
	return &Queue{rdb: rdb}
}

// EnqueueSecurityEvent pushes an event for batched persistence.
func (q *Queue) EnqueueSecurityEvent(ctx context.Context, ev *model.SecurityEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal security event: %w", err)
	}
	return q.rdb.RPush(ctx, config.WorkerKey.PersistSecurityEventsQueue, data).Err()
}

// EnqueueHeartbeat pushes a client contact time for batched persistence.
func (q *Queue) EnqueueHeartbeat(ctx context.Context, attemptID uuid.UUID, at time.Time) error {
	data, err := json.Marshal(repository.Heartbeat{AttemptID: attemptID, SeenAt: at})
	if err != nil {
		return fmt.Errorf("marshal heartbeat: %w", err)
	}
	return q.rdb.RPush(ctx, config.WorkerKey.PersistHeartbeatsQueue, data).Err()
}
