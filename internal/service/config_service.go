package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	appErrors "github.com/unclebandit/mail-dispatch/internal/errors"
	"github.com/unclebandit/mail-dispatch/internal/model"
	"github.com/unclebandit/mail-dispatch/internal/repository"
)

// ConfigService loads the persisted dispatch settings. Nothing is cached:
// every call reads the store, so edits take effect on the next cycle.
type ConfigService struct {
	Repo     repository.ConfigRepositoryInterface
	Defaults model.DispatchConfig
	Log      zerolog.Logger
}

func NewConfigService(repo repository.ConfigRepositoryInterface, defaults model.DispatchConfig, log zerolog.Logger) *ConfigService {
	return &ConfigService{Repo: repo, Defaults: defaults, Log: log}
}

// Load returns the stored configuration, persisting Defaults on first use.
// Store failures fall back to Defaults so a cycle never stops on config alone.
func (s *ConfigService) Load(ctx context.Context) model.DispatchConfig {
	cfg, err := s.Repo.Get(ctx)
	if err == nil {
		return cfg
	}
	if !errors.Is(err, appErrors.ErrConfigNotFound) {
		s.Log.Warn().Err(err).Msg("dispatch config unavailable, using defaults")
		return s.Defaults
	}

	if err := s.Repo.CreateIfAbsent(ctx, s.Defaults); err != nil {
		s.Log.Warn().Err(err).Msg("persist default dispatch config failed")
		return s.Defaults
	}
	s.Log.Info().
		Int("daily_limit", s.Defaults.DailyLimit).
		Str("schedule", s.Defaults.ScheduleExpression).
		Bool("enabled", s.Defaults.Enabled).
		Msg("dispatch config initialized")

	if cfg, err = s.Repo.Get(ctx); err != nil {
		return s.Defaults
	}
	return cfg
}

// Update validates and stores a new configuration.
func (s *ConfigService) Update(ctx context.Context, cfg model.DispatchConfig) (model.DispatchConfig, error) {
	if cfg.DailyLimit < 0 {
		return cfg, fmt.Errorf("%w: daily_limit must be >= 0", appErrors.ErrInvalidConfig)
	}
	if _, err := ParseSchedule(cfg.ScheduleExpression); err != nil {
		return cfg, fmt.Errorf("%w: %v", appErrors.ErrInvalidConfig, err)
	}
	cfg.UpdatedAt = timeNow()
	if err := s.Repo.Put(ctx, cfg); err != nil {
		return cfg, err
	}
	s.Log.Info().
		Int("daily_limit", cfg.DailyLimit).
		Str("schedule", cfg.ScheduleExpression).
		Bool("enabled", cfg.Enabled).
		Msg("dispatch config updated")
	return cfg, nil
}
