package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-engine/internal/config"
	"github.com/stemsi/exstem-engine/internal/model"
	"github.com/stemsi/exstem-engine/internal/repository"
)

// SettingService serves the application settings, chiefly the system grade scale
// applied to exams that define none.
type SettingService struct {
	settingRepo *repository.SettingRepository
	rdb         *redis.Client
	log         zerolog.Logger
}

// NewSettingService creates a new SettingService.
func NewSettingService(settingRepo *repository.SettingRepository, rdb *redis.Client, log zerolog.Logger) *SettingService {
	return &SettingService{
		settingRepo: settingRepo,
		rdb:         rdb,
		log:         log.With().Str("component", "setting_service").Logger(),
	}
}

// GetAllSettings returns every setting document keyed by name.
func (s *SettingService) GetAllSettings(ctx context.Context) (map[string]json.RawMessage, error) {
	settingsList, err := s.settingRepo.List(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list settings")
		return nil, err
	}

	settingsMap := make(map[string]json.RawMessage, len(settingsList))
	for _, setting := range settingsList {
		settingsMap[setting.Key] = setting.Value
	}
	return settingsMap, nil
}

// GradeScale returns the system grade scale, cached in Redis until it changes.
// A missing setting yields an empty scale.
func (s *SettingService) GradeScale(ctx context.Context) ([]model.GradeBand, error) {
	key := config.CacheKey.SystemGradeScaleKey()
	if data, err := s.rdb.Get(ctx, key).Bytes(); err == nil {
		var scale []model.GradeBand
		if err := json.Unmarshal(data, &scale); err == nil {
			return scale, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		s.log.Warn().Err(err).Msg("grade scale cache read failed")
	}

	var scale []model.GradeBand
	err := s.settingRepo.GetJSON(ctx, model.SettingKeyGradeScale, &scale)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get grade scale: %w", err)
	}

	if data, err := json.Marshal(scale); err == nil {
		if err := s.rdb.Set(ctx, key, data, 0).Err(); err != nil {
			s.log.Warn().Err(err).Msg("grade scale cache write failed")
		}
	}
	return scale, nil
}

// UpdateGradeScale validates and stores a new system grade scale.
// Running attempts keep the scale they snapshotted at start.
func (s *SettingService) UpdateGradeScale(ctx context.Context, scale []model.GradeBand) error {
	if err := model.ValidateGradeScale(scale); err != nil {
		return err
	}
	if err := s.settingRepo.PutJSON(ctx, model.SettingKeyGradeScale, scale); err != nil {
		s.log.Error().Err(err).Msg("failed to update grade scale")
		return err
	}
	if err := s.rdb.Del(ctx, config.CacheKey.SystemGradeScaleKey()).Err(); err != nil {
		s.log.Warn().Err(err).Msg("grade scale cache invalidation failed")
	}
	s.log.Info().Int("bands", len(scale)).Msg("System grade scale updated")
	return nil
}
