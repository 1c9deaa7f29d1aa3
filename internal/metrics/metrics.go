// Package metrics holds the Prometheus collectors of the attempt engine.
package metrics

import (
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exstem_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "exstem_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	AttemptsStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "exstem_attempts_started_total",
		Help: "Attempts created",
	})

	AttemptsFinalized = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exstem_attempts_finalized_total",
			Help: "Attempts that left in_progress, by resulting status",
		},
		[]string{"status"},
	)

	AnswersSaved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exstem_answers_saved_total",
			Help: "Answers saved, by question type",
		},
		[]string{"question_type"},
	)

	SecurityEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exstem_security_events_total",
			Help: "Security events recorded",
		},
		[]string{"event_type", "severity"},
	)

	VersionConflicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exstem_attempt_version_conflicts_total",
			Help: "Optimistic concurrency conflicts that forced a retry",
		},
		[]string{"operation"},
	)

	SweepDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "exstem_sweep_duration_seconds",
		Help:    "Duration of expired attempt sweeps",
		Buckets: prometheus.DefBuckets,
	})

	WorkerFlushes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exstem_worker_flushed_items_total",
			Help: "Items persisted by background workers, by outcome",
		},
		[]string{"worker", "outcome"},
	)

	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "exstem_worker_queue_depth",
			Help: "Items waiting in a Redis persistence queue",
		},
		[]string{"queue"},
	)
)

var registerOnce sync.Once

// Init registers every collector with the default registry. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			RequestCounter,
			RequestDuration,
			AttemptsStarted,
			AttemptsFinalized,
			AnswersSaved,
			SecurityEvents,
			VersionConflicts,
			SweepDuration,
			WorkerFlushes,
			QueueDepth,
		)
	})
}

// PoolStat reads one figure from a connection pool.
type PoolStat func() float64

// RegisterPool exposes the occupancy of a named connection pool
// (postgres, redis) as gauges. Re-registering the same pool is a no-op.
func RegisterPool(pool string, inUse, idle, total PoolStat) error {
	gauges := []struct {
		name, help string
		stat       PoolStat
	}{
		{"exstem_pool_connections_in_use", "Connections currently checked out", inUse},
		{"exstem_pool_connections_idle", "Idle connections kept by the pool", idle},
		{"exstem_pool_connections_total", "Connections opened by the pool", total},
	}
	for _, g := range gauges {
		err := prometheus.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name:        g.name,
			Help:        g.help,
			ConstLabels: prometheus.Labels{"pool": pool},
		}, g.stat))
		var already prometheus.AlreadyRegisteredError
		if err != nil && !errors.As(err, &already) {
			return err
		}
	}
	return nil
}

// Middleware records request count and latency per route template.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}

		RequestCounter.WithLabelValues(
			c.Request.Method,
			endpoint,
			strconv.Itoa(c.Writer.Status()),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			endpoint,
		).Observe(time.Since(start).Seconds())
	}
}

// Handler exposes the default registry.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
