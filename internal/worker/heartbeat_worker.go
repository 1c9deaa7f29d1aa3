package worker

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-engine/internal/config"
	"github.com/stemsi/exstem-engine/internal/repository"
)

// HeartbeatWriter advances last_seen_at in bulk.
type HeartbeatWriter interface {
	TouchBatch(ctx context.Context, beats []repository.Heartbeat) (int64, error)
}

// HeartbeatWorker consumes persist_heartbeats_queue. Heartbeats only feed the
// abandonment rule, so a batch that keeps failing is retried as a whole.
type HeartbeatWorker struct {
	repo HeartbeatWriter
	log  zerolog.Logger
	b    *batcher[repository.Heartbeat]
}

// NewHeartbeatWorker creates a new HeartbeatWorker.
func NewHeartbeatWorker(repo HeartbeatWriter, rdb *redis.Client, log zerolog.Logger) *HeartbeatWorker {
	w := &HeartbeatWorker{
		repo: repo,
		log:  log.With().Str("component", "heartbeat_worker").Logger(),
	}
	w.b = &batcher[repository.Heartbeat]{
		name:  "heartbeats",
		queue: config.WorkerKey.PersistHeartbeatsQueue,
		rdb:   rdb,
		log:   w.log,
		flush: w.persist,
	}
	return w
}

// Start begins the worker loop. Call in a goroutine.
func (w *HeartbeatWorker) Start(ctx context.Context) {
	w.b.run(ctx)
}

func (w *HeartbeatWorker) persist(ctx context.Context, batch []repository.Heartbeat) []repository.Heartbeat {
	n, err := w.repo.TouchBatch(ctx, batch)
	if err != nil {
		w.log.Error().Err(err).Int("count", len(batch)).Msg("Heartbeat flush failed")
		return batch
	}
	w.log.Debug().Int("received", len(batch)).Int64("updated", n).Msg("Heartbeats flushed")
	return nil
}
