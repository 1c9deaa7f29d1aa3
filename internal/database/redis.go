package database

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-engine/internal/config"
	"github.com/stemsi/exstem-engine/internal/metrics"
)

// NewRedisClient connects the client backing the exam cache, the persistence
// queues, the monitor channels and the rate limiter.
func NewRedisClient(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*redis.Client, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	if cfg.RedisPoolSize > 0 {
		opt.PoolSize = cfg.RedisPoolSize
	}
	if opt.ClientName == "" {
		opt.ClientName = applicationName
	}

	rdb := redis.NewClient(opt)

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	if err := metrics.RegisterPool("redis",
		func() float64 {
			st := rdb.PoolStats()
			return float64(st.TotalConns - st.IdleConns)
		},
		func() float64 { return float64(rdb.PoolStats().IdleConns) },
		func() float64 { return float64(rdb.PoolStats().TotalConns) },
	); err != nil {
		log.Warn().Err(err).Msg("Redis pool gauges not registered")
	}

	log.Info().
		Str("addr", opt.Addr).
		Int("db", opt.DB).
		Int("pool_size", opt.PoolSize).
		Msg("Redis connected")

	return rdb, nil
}
