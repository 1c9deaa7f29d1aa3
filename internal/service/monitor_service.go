package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-engine/internal/config"
	"github.com/stemsi/exstem-engine/internal/model"
	"github.com/stemsi/exstem-engine/internal/repository"
)

// MonitorService fans attempt activity out over Redis Pub/Sub and builds
// monitor snapshots.
type MonitorService struct {
	monitorRepo *repository.MonitorRepository
	rdb         *redis.Client
	log         zerolog.Logger
}

// NewMonitorService creates a new MonitorService.
func NewMonitorService(monitorRepo *repository.MonitorRepository, rdb *redis.Client, log zerolog.Logger) *MonitorService {
	return &MonitorService{
		monitorRepo: monitorRepo,
		rdb:         rdb,
		log:         log.With().Str("component", "monitor_service").Logger(),
	}
}

// Publish sends ev to every monitor attached to the exam. Delivery is best-effort.
func (s *MonitorService) Publish(ctx context.Context, examID uuid.UUID, ev MonitorEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to marshal monitor event")
		return
	}
	if err := s.rdb.Publish(ctx, config.CacheKey.ExamMonitorChannel(examID.String()), data).Err(); err != nil {
		s.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Failed to publish monitor event")
	}
}

// Subscribe attaches to the exam's monitor channel. The caller closes it.
func (s *MonitorService) Subscribe(ctx context.Context, examID uuid.UUID) *redis.PubSub {
	return s.rdb.Subscribe(ctx, config.CacheKey.ExamMonitorChannel(examID.String()))
}

// Snapshot returns the current progress of every attempt of the exam.
func (s *MonitorService) Snapshot(ctx context.Context, exam *model.Exam) (*model.MonitorSnapshot, error) {
	progress, err := s.monitorRepo.ListProgress(ctx, exam.ID)
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}

	snap := &model.MonitorSnapshot{
		Type:           "snapshot",
		ExamID:         exam.ID,
		Title:          exam.Title,
		TotalQuestions: exam.QuestionCount,
		TotalAttempts:  len(progress),
		Attempts:       progress,
	}
	for _, p := range progress {
		if p.Status == model.AttemptStatusInProgress {
			snap.InProgress++
		} else {
			snap.Finalized++
		}
		snap.TotalSecurityEvents += p.SecurityEvents
	}
	return snap, nil
}
