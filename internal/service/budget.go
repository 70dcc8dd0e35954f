package service

import (
	"context"

	"github.com/unclebandit/mail-dispatch/internal/model"
	"github.com/unclebandit/mail-dispatch/internal/repository"
)

// Budget is the daily send capacity at the time it was read.
type Budget struct {
	Day       string `json:"day"`
	Count     int    `json:"count"`
	Limit     int    `json:"limit"`
	Remaining int    `json:"remaining"`
}

// BudgetTracker reports and records daily send capacity. It never blocks a
// send itself; callers are expected to stop claiming once Remaining is zero.
type BudgetTracker struct {
	Repo repository.DailyCountRepositoryInterface
}

func NewBudgetTracker(repo repository.DailyCountRepositoryInterface) *BudgetTracker {
	return &BudgetTracker{Repo: repo}
}

// CheckLimit seeds the day's row with seedLimit on first use and returns the capacity.
func (b *BudgetTracker) CheckLimit(ctx context.Context, day string, seedLimit int) (Budget, error) {
	if seedLimit < 0 {
		seedLimit = 0
	}
	dc, err := b.Repo.Ensure(ctx, day, seedLimit)
	if err != nil {
		return Budget{}, err
	}
	return budgetOf(dc), nil
}

// Increment credits n sends to day. It is called once per cycle.
func (b *BudgetTracker) Increment(ctx context.Context, day string, n int) error {
	return b.Repo.Increment(ctx, day, n)
}

func budgetOf(dc model.DailyCount) Budget {
	return Budget{Day: dc.Day, Count: dc.Count, Limit: dc.Limit, Remaining: dc.Remaining()}
}
