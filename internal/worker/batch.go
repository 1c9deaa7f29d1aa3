package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-engine/internal/metrics"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// batcher drains one Redis list with BLPop and hands items to flush in batches
// of up to BatchSize, or whatever arrived within BatchTimeout.
type batcher[T any] struct {
	name  string
	queue string
	rdb   *redis.Client
	log   zerolog.Logger

	// flush persists a batch and returns the items that must be retried.
	flush func(ctx context.Context, batch []T) (retry []T)
}

func (b *batcher[T]) run(ctx context.Context) {
	b.log.Info().Str("queue", b.queue).Msg("Worker started")

	buffer := make([]T, 0, BatchSize)
	lastFlush := time.Now()

	for {
		// 1. Flush on size or age
		if len(buffer) > 0 && (len(buffer) >= BatchSize || time.Since(lastFlush) >= BatchTimeout) {
			b.flushSafe(ctx, buffer)
			buffer = buffer[:0]
			lastFlush = time.Now()
		}

		// 2. Graceful shutdown
		select {
		case <-ctx.Done():
			b.shutdown(buffer)
			return
		default:
		}

		// 3. Fetch. BLPop returns immediately if data exists.
		result, err := b.rdb.BLPop(ctx, PollTimeout, b.queue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				continue
			}
			b.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			sleepCtx(ctx, 3*time.Second)
			continue
		}
		if len(result) < 2 {
			continue
		}

		var item T
		if err := json.Unmarshal([]byte(result[1]), &item); err != nil {
			// Malformed payloads can never succeed.
			b.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed JSON")
			metrics.WorkerFlushes.WithLabelValues(b.name, "discarded").Inc()
			continue
		}
		buffer = append(buffer, item)
	}
}

func (b *batcher[T]) flushSafe(ctx context.Context, batch []T) {
	if b.rdb != nil {
		if n, err := b.rdb.LLen(ctx, b.queue).Result(); err == nil {
			metrics.QueueDepth.WithLabelValues(b.queue).Set(float64(n))
		}
	}

	retry := b.flush(ctx, batch)
	metrics.WorkerFlushes.WithLabelValues(b.name, "persisted").Add(float64(len(batch) - len(retry)))
	if len(retry) > 0 {
		metrics.WorkerFlushes.WithLabelValues(b.name, "requeued").Add(float64(len(retry)))
		b.requeue(ctx, retry)
	}
}

func (b *batcher[T]) requeue(ctx context.Context, items []T) {
	// The caller's context may already be cancelled during shutdown.
	ctx = context.WithoutCancel(ctx)

	pipe := b.rdb.Pipeline()
	for _, it := range items {
		data, err := json.Marshal(it)
		if err != nil {
			continue
		}
		pipe.RPush(ctx, b.queue, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		b.log.Error().Err(err).Int("count", len(items)).Msg("CRITICAL: Failed to requeue items to Redis. Data loss occurred.")
		return
	}
	b.log.Info().Int("count", len(items)).Msg("Requeued failed items back to Redis")
	// Avoid thrashing while the database is down.
	time.Sleep(2 * time.Second)
}

func (b *batcher[T]) shutdown(buffer []T) {
	b.log.Info().Msg("Worker stopping, flushing remaining buffer...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(buffer) > 0 {
		b.flushSafe(shutdownCtx, buffer)
	}
	b.log.Info().Msg("Worker stopped")
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
