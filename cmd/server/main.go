package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-engine/internal/config"
	"github.com/stemsi/exstem-engine/internal/database"
	"github.com/stemsi/exstem-engine/internal/handler"
	"github.com/stemsi/exstem-engine/internal/logger"
	"github.com/stemsi/exstem-engine/internal/metrics"
	"github.com/stemsi/exstem-engine/internal/middleware"
	"github.com/stemsi/exstem-engine/internal/repository"
	"github.com/stemsi/exstem-engine/internal/router"
	"github.com/stemsi/exstem-engine/internal/service"
	"github.com/stemsi/exstem-engine/internal/validator"
	"github.com/stemsi/exstem-engine/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat, cfg.LogFile)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting ExStem attempt engine")

	if cfg.FingerprintKey == "" {
		log.Warn().Msg("FINGERPRINT_KEY is empty, device fingerprints fall back to the JWT secret")
		cfg.FingerprintKey = cfg.JWTSecret
	}

	// ─── Initialize Validator & Metrics ────────────────────────────────
	validator.Setup()
	metrics.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Initialize Repositories ───────────────────────────────────────
	examRepo := repository.NewExamRepository(pool)
	questionRepo := repository.NewQuestionRepository(pool)
	targetRepo := repository.NewExamTargetRuleRepository(pool)
	settingRepo := repository.NewSettingRepository(pool)
	attemptRepo := repository.NewAttemptRepository(pool)
	eventRepo := repository.NewSecurityEventRepository(pool)
	heartbeatRepo := repository.NewHeartbeatRepository(pool)
	monitorRepo := repository.NewMonitorRepository(pool)

	// ─── Initialize Services ──────────────────────────────────────────
	queue := worker.NewQueue(rdb)
	authService := service.NewAuthService(cfg)
	settingService := service.NewSettingService(settingRepo, rdb, log)
	examService := service.NewExamService(examRepo, questionRepo, targetRepo, settingService, rdb, log)
	monitorService := service.NewMonitorService(monitorRepo, rdb, log)
	attemptService := service.NewAttemptService(service.AttemptDeps{
		Store:      attemptRepo,
		Catalog:    examService,
		Events:     queue,
		EventLog:   eventRepo,
		Heartbeats: queue,
		Monitor:    monitorService,
		Stats:      service.NewRedisStatsCache(rdb, cfg.StatsCacheTTL, log),
	}, service.AttemptConfig{
		MaxRetries:     cfg.AttemptMaxRetries,
		AbandonAfter:   cfg.AbandonAfter,
		SweepBatchSize: cfg.SweepBatchSize,
	}, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Attempt: handler.NewAttemptHandler(attemptService, handler.NewFingerprinter(cfg.FingerprintKey), log),
		Grading: handler.NewGradingHandler(attemptService, log),
		Exam:    handler.NewExamHandler(examService, log),
		Monitor: handler.NewMonitorHandler(examService, monitorService, log),
		Setting: handler.NewSettingHandler(settingService, log),
		WS:      handler.NewWSHandler(attemptService, log, cfg.AllowedOrigins, cfg.WSMessagesPerSecond),
	}
	rateLimiter := middleware.NewRateLimiter(middleware.NewRedisCounter(rdb), cfg.StudentRateLimit, time.Minute, log)

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	startWorker := func(start func(context.Context)) {
		workers.Add(1)
		go func() {
			defer workers.Done()
			start(workerCtx)
		}()
	}
	startWorker(worker.NewSecurityEventWorker(eventRepo, rdb, log).Start)
	startWorker(worker.NewHeartbeatWorker(heartbeatRepo, rdb, log).Start)
	startWorker(worker.NewSweepWorker(attemptService, worker.NewRedisLocker(rdb, log), cfg.SweepInterval, log).Start)

	// ─── Prewarm Redis Caches ─────────────────────────────────────────
	// Load all published exams into Redis BEFORE accepting traffic.
	if err := examService.PrewarmAllCaches(ctx); err != nil {
		log.Warn().Err(err).Msg("Cache prewarm failed")
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, rateLimiter, handlers, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop background workers; each flushes its in-memory batch on the way out.
	workerCancel()
	done := make(chan struct{})
	go func() {
		workers.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		log.Warn().Msg("Workers did not drain in time")
	}

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
