package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-engine/internal/config"
	"github.com/stemsi/exstem-engine/internal/model"
)

// RedisStatsCache keeps exam statistics in Redis for a short TTL.
// Cache failures are logged and treated as misses.
type RedisStatsCache struct {
	rdb *redis.Client
	ttl time.Duration
	log zerolog.Logger
}

// NewRedisStatsCache creates a new RedisStatsCache.
func NewRedisStatsCache(rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *RedisStatsCache {
	return &RedisStatsCache{
		rdb: rdb,
		ttl: ttl,
		log: log.With().Str("component", "stats_cache").Logger(),
	}
}

func (c *RedisStatsCache) GetStatistics(ctx context.Context, examID uuid.UUID) (*model.AttemptStatistics, bool) {
	data, err := c.rdb.Get(ctx, config.CacheKey.ExamStatisticsKey(examID.String())).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn().Err(err).Msg("Statistics cache read failed")
		}
		return nil, false
	}
	var st model.AttemptStatistics
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, false
	}
	return &st, true
}

func (c *RedisStatsCache) SetStatistics(ctx context.Context, st *model.AttemptStatistics) {
	data, err := json.Marshal(st)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, config.CacheKey.ExamStatisticsKey(st.ExamID.String()), data, c.ttl).Err(); err != nil {
		c.log.Warn().Err(err).Msg("Statistics cache write failed")
	}
}

func (c *RedisStatsCache) InvalidateStatistics(ctx context.Context, examID uuid.UUID) {
	if err := c.rdb.Del(ctx, config.CacheKey.ExamStatisticsKey(examID.String())).Err(); err != nil {
		c.log.Warn().Err(err).Msg("Statistics cache invalidation failed")
	}
}
