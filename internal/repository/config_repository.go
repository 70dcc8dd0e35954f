package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/unclebandit/mail-dispatch/internal/db"
	appErrors "github.com/unclebandit/mail-dispatch/internal/errors"
	"github.com/unclebandit/mail-dispatch/internal/model"
)

type ConfigRepositoryInterface interface {
	Get(ctx context.Context) (model.DispatchConfig, error)
	CreateIfAbsent(ctx context.Context, cfg model.DispatchConfig) error
	Put(ctx context.Context, cfg model.DispatchConfig) error
}

// ConfigRepository stores the single dispatch_config row (id = 1).
type ConfigRepository struct {
	DB *db.DB
}

func NewConfigRepository(d *db.DB) *ConfigRepository {
	return &ConfigRepository{DB: d}
}

func (r *ConfigRepository) Get(ctx context.Context) (model.DispatchConfig, error) {
	var (
		cfg       model.DispatchConfig
		updatedAt int64
	)
	err := r.DB.QueryRowContext(ctx,
		`SELECT daily_limit, schedule_expression, enabled, updated_at FROM dispatch_config WHERE id = 1`,
	).Scan(&cfg.DailyLimit, &cfg.ScheduleExpression, &cfg.Enabled, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return cfg, appErrors.ErrConfigNotFound
		}
		return cfg, fmt.Errorf("read dispatch config: %w", err)
	}
	cfg.UpdatedAt = time.UnixMilli(updatedAt)
	return cfg, nil
}

// CreateIfAbsent persists cfg only when no row exists yet.
func (r *ConfigRepository) CreateIfAbsent(ctx context.Context, cfg model.DispatchConfig) error {
	if cfg.UpdatedAt.IsZero() {
		cfg.UpdatedAt = time.Now()
	}
	_, err := r.DB.ExecContext(ctx, r.DB.Dialect.Rebind(`
        INSERT INTO dispatch_config (id, daily_limit, schedule_expression, enabled, updated_at)
        VALUES (1, ?, ?, ?, ?)
        ON CONFLICT (id) DO NOTHING
    `), cfg.DailyLimit, cfg.ScheduleExpression, cfg.Enabled, cfg.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("persist dispatch config: %w", err)
	}
	return nil
}

// Put overwrites the stored configuration.
func (r *ConfigRepository) Put(ctx context.Context, cfg model.DispatchConfig) error {
	if cfg.UpdatedAt.IsZero() {
		cfg.UpdatedAt = time.Now()
	}
	_, err := r.DB.ExecContext(ctx, r.DB.Dialect.Rebind(`
        INSERT INTO dispatch_config (id, daily_limit, schedule_expression, enabled, updated_at)
        VALUES (1, ?, ?, ?, ?)
        ON CONFLICT (id) DO UPDATE SET
            daily_limit = excluded.daily_limit,
            schedule_expression = excluded.schedule_expression,
            enabled = excluded.enabled,
            updated_at = excluded.updated_at
    `), cfg.DailyLimit, cfg.ScheduleExpression, cfg.Enabled, cfg.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("update dispatch config: %w", err)
	}
	return nil
}
