package worker

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-engine/internal/config"
	"github.com/stemsi/exstem-engine/internal/model"
)

// SecurityEventWriter persists security events.
type SecurityEventWriter interface {
	InsertBatch(ctx context.Context, events []model.SecurityEvent) (int64, error)
	Insert(ctx context.Context, e *model.SecurityEvent) error
}

// SecurityEventWorker consumes persist_security_events_queue and appends the
// events to attempt_security_events.
type SecurityEventWorker struct {
	repo SecurityEventWriter
	log  zerolog.Logger
	b    *batcher[model.SecurityEvent]
}

// NewSecurityEventWorker creates a new SecurityEventWorker.
func NewSecurityEventWorker(repo SecurityEventWriter, rdb *redis.Client, log zerolog.Logger) *SecurityEventWorker {
	w := &SecurityEventWorker{
		repo: repo,
		log:  log.With().Str("component", "security_event_worker").Logger(),
	}
	w.b = &batcher[model.SecurityEvent]{
		name:  "security_events",
		queue: config.WorkerKey.PersistSecurityEventsQueue,
		rdb:   rdb,
		log:   w.log,
		flush: w.persist,
	}
	return w
}

// Start begins the worker loop. Call in a goroutine.
func (w *SecurityEventWorker) Start(ctx context.Context) {
	w.b.run(ctx)
}

// persist tries COPY first, then row-by-row inserts. Rows rejected by a
// constraint are dropped; anything else is returned for retry.
func (w *SecurityEventWorker) persist(ctx context.Context, batch []model.SecurityEvent) []model.SecurityEvent {
	_, err := w.repo.InsertBatch(ctx, batch)
	if err == nil {
		return nil
	}
	w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")

	var retry []model.SecurityEvent
	for i := range batch {
		ev := &batch[i]
		err := w.repo.Insert(ctx, ev)
		if err == nil {
			continue
		}
		if isDataError(err) {
			w.log.Error().Err(err).
				Str("attempt_id", ev.AttemptID.String()).
				Int("sequence", ev.Sequence).
				Msg("Dropping security event rejected by the database")
			continue
		}
		w.log.Error().Err(err).Str("attempt_id", ev.AttemptID.String()).Msg("Insert failed, requeueing")
		retry = append(retry, *ev)
	}
	return retry
}

// isDataError reports whether PostgreSQL rejected the row itself
// (SQLSTATE class 22 data exception or 23 integrity violation).
func isDataError(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return len(pgErr.Code) == 5 && (pgErr.Code[:2] == "22" || pgErr.Code[:2] == "23")
}
