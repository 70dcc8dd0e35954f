package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/unclebandit/mail-dispatch/internal/db"
	"github.com/unclebandit/mail-dispatch/internal/model"
)

type DailyCountRepositoryInterface interface {
	Ensure(ctx context.Context, day string, seedLimit int) (model.DailyCount, error)
	Increment(ctx context.Context, day string, n int) error
	Get(ctx context.Context, day string) (model.DailyCount, bool, error)
}

type DailyCountRepository struct {
	DB *db.DB
}

func NewDailyCountRepository(d *db.DB) *DailyCountRepository {
	return &DailyCountRepository{DB: d}
}

// Ensure returns the row for day, creating it with seedLimit on first use.
// An existing row keeps the limit it was created with.
func (r *DailyCountRepository) Ensure(ctx context.Context, day string, seedLimit int) (model.DailyCount, error) {
	_, err := r.DB.ExecContext(ctx, r.DB.Dialect.Rebind(`
        INSERT INTO daily_counts (day, sent_count, daily_limit)
        VALUES (?, 0, ?)
        ON CONFLICT (day) DO NOTHING
    `), day, seedLimit)
	if err != nil {
		return model.DailyCount{}, fmt.Errorf("seed daily count %s: %w", day, err)
	}

	var dc model.DailyCount
	err = r.DB.QueryRowContext(ctx, r.DB.Dialect.Rebind(
		`SELECT day, sent_count, daily_limit FROM daily_counts WHERE day = ?`,
	), day).Scan(&dc.Day, &dc.Count, &dc.Limit)
	if err != nil {
		return model.DailyCount{}, fmt.Errorf("read daily count %s: %w", day, err)
	}
	return dc, nil
}

// Increment adds n to the day's sent count in a single statement.
func (r *DailyCountRepository) Increment(ctx context.Context, day string, n int) error {
	if n <= 0 {
		return nil
	}
	res, err := r.DB.ExecContext(ctx, r.DB.Dialect.Rebind(
		`UPDATE daily_counts SET sent_count = sent_count + ? WHERE day = ?`,
	), n, day)
	if err != nil {
		return fmt.Errorf("increment daily count %s: %w", day, err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("increment daily count %s: no row for day", day)
	}
	return nil
}

// Get reads the day's row without creating it.
func (r *DailyCountRepository) Get(ctx context.Context, day string) (model.DailyCount, bool, error) {
	var dc model.DailyCount
	err := r.DB.QueryRowContext(ctx, r.DB.Dialect.Rebind(
		`SELECT day, sent_count, daily_limit FROM daily_counts WHERE day = ?`,
	), day).Scan(&dc.Day, &dc.Count, &dc.Limit)
	if errors.Is(err, sql.ErrNoRows) {
		return model.DailyCount{Day: day}, false, nil
	}
	if err != nil {
		return dc, false, fmt.Errorf("read daily count %s: %w", day, err)
	}
	return dc, true, nil
}
