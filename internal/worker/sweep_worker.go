package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-engine/internal/config"
)

// Sweeper finalizes attempts whose hard deadline has passed.
type Sweeper interface {
	SweepExpiredAttempts(ctx context.Context, now time.Time) (int, error)
}

// Locker serializes sweeps across server instances.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool)
}

// SweepWorker periodically closes expired attempts so a student who never
// comes back still gets a final status.
type SweepWorker struct {
	sweeper  Sweeper
	locker   Locker
	interval time.Duration
	now      func() time.Time
	log      zerolog.Logger
}

// NewSweepWorker creates a new SweepWorker.
func NewSweepWorker(sweeper Sweeper, locker Locker, interval time.Duration, log zerolog.Logger) *SweepWorker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &SweepWorker{
		sweeper:  sweeper,
		locker:   locker,
		interval: interval,
		now:      func() time.Time { return time.Now().UTC() },
		log:      log.With().Str("component", "sweep_worker").Logger(),
	}
}

// Start runs a sweep every interval until ctx is cancelled. Call in a goroutine.
func (w *SweepWorker) Start(ctx context.Context) {
	w.log.Info().Dur("interval", w.interval).Msg("Worker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopped")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce performs one sweep if no other instance holds the lock.
// It returns the number of attempts finalized.
func (w *SweepWorker) RunOnce(ctx context.Context) int {
	release, ok := w.locker.TryLock(ctx, config.CacheKey.SweepLockKey(), w.interval)
	if !ok {
		w.log.Debug().Msg("Sweep lock held elsewhere, skipping")
		return 0
	}
	defer release()

	n, err := w.sweeper.SweepExpiredAttempts(ctx, w.now())
	if err != nil && ctx.Err() == nil {
		w.log.Error().Err(err).Int("finalized", n).Msg("Sweep failed")
	}
	return n
}

// RedisLocker is a single-key Redis lease. The lease expires on its own if the
// holder dies, and is only released by the token that acquired it.
type RedisLocker struct {
	rdb *redis.Client
	log zerolog.Logger
}

// NewRedisLocker creates a new RedisLocker.
func NewRedisLocker(rdb *redis.Client, log zerolog.Logger) *RedisLocker {
	return &RedisLocker{rdb: rdb, log: log}
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// TryLock acquires key for ttl. A Redis error counts as not acquired.
func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool) {
	token := uuid.New().String()
	ok, err := l.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		l.log.Warn().Err(err).Str("key", key).Msg("Lock acquire failed")
		return nil, false
	}
	if !ok {
		return nil, false
	}
	return func() {
		if err := releaseScript.Run(context.WithoutCancel(ctx), l.rdb, []string{key}, token).Err(); err != nil {
			l.log.Warn().Err(err).Str("key", key).Msg("Lock release failed")
		}
	}, true
}
