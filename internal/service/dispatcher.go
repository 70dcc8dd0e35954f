package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	appErrors "github.com/unclebandit/mail-dispatch/internal/errors"
	"github.com/unclebandit/mail-dispatch/internal/mailer"
	"github.com/unclebandit/mail-dispatch/internal/model"
	"github.com/unclebandit/mail-dispatch/internal/repository"
)

var timeNow = time.Now

type sendOutcome int

const (
	// outcomeNotClaimed: the message was not pending or another cycle claimed it first.
	outcomeNotClaimed sendOutcome = iota
	outcomeSent
	outcomeRetry
	outcomeFailed
)

// Dispatcher is the send pipeline and the body of one dispatch cycle.
type Dispatcher struct {
	Repo        repository.QueuedMessageRepositoryInterface
	Budget      *BudgetTracker
	Config      *ConfigService
	Provider    mailer.Provider
	QuietHours  *QuietHours
	Batches     *BatchCoordinator
	Location    *time.Location
	StaleAfter  time.Duration
	DefaultFrom string
	Log         zerolog.Logger

	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

type DispatcherOptions struct {
	Repo        repository.QueuedMessageRepositoryInterface
	Counts      repository.DailyCountRepositoryInterface
	Config      *ConfigService
	Provider    mailer.Provider
	Location    *time.Location
	StaleAfter  time.Duration
	ResumeAt    string
	DefaultFrom string
	Log         zerolog.Logger
	Now         func() time.Time
}

func NewDispatcher(opts DispatcherOptions) (*Dispatcher, error) {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	stale := opts.StaleAfter
	if stale <= 0 {
		stale = 5 * time.Minute
	}
	resumeAt := opts.ResumeAt
	if resumeAt == "" {
		resumeAt = "09:00"
	}
	resume, err := model.ParseClock(resumeAt)
	if err != nil {
		return nil, fmt.Errorf("resume_at: %w", err)
	}

	qh := NewQuietHours(loc)
	d := &Dispatcher{
		Repo:        opts.Repo,
		Budget:      NewBudgetTracker(opts.Counts),
		Config:      opts.Config,
		Provider:    opts.Provider,
		QuietHours:  qh,
		Location:    loc,
		StaleAfter:  stale,
		DefaultFrom: opts.DefaultFrom,
		Log:         opts.Log,
		Now:         opts.Now,
	}
	d.Batches = &BatchCoordinator{
		Repo:       opts.Repo,
		Sender:     d,
		QuietHours: qh,
		Location:   loc,
		ResumeAt:   resume,
		Log:        opts.Log,
	}
	return d, nil
}

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return timeNow()
}

// SendOne runs the send pipeline for one message and reports whether it completed.
// A message that is no longer pending, or was claimed by someone else, returns false
// without error. Errors are store failures only; provider errors are recorded on the message.
func (d *Dispatcher) SendOne(ctx context.Context, id string) (bool, error) {
	out, err := d.send(ctx, id)
	return out == outcomeSent, err
}

func (d *Dispatcher) send(ctx context.Context, id string) (sendOutcome, error) {
	msg, err := d.Repo.GetByID(ctx, id)
	if err != nil {
		if appErrors.IsNotFound(err) {
			return outcomeNotClaimed, nil
		}
		return outcomeNotClaimed, err
	}
	if msg.Status != model.StatusPending || msg.Exhausted() {
		return outcomeNotClaimed, nil
	}

	claimed, err := d.Repo.Claim(ctx, id, d.now())
	if err != nil {
		return outcomeNotClaimed, err
	}
	if !claimed {
		d.Log.Debug().Str("message_id", id).Msg("claim lost")
		return outcomeNotClaimed, nil
	}
	attempts := msg.Attempts + 1

	providerID, sendErr := d.Provider.Send(ctx, mailer.Email{
		From:    msg.Sender(d.DefaultFrom),
		To:      msg.To,
		Subject: msg.Subject,
		HTML:    msg.HTML,
	})

	if sendErr == nil {
		released, err := d.Repo.Release(ctx, id, repository.Outcome{Status: model.StatusCompleted}, d.now())
		if err != nil {
			// The provider has the message; report it sent so the budget is still credited.
			return outcomeSent, fmt.Errorf("mark %s completed: %w", id, err)
		}
		if !released {
			d.Log.Warn().Str("message_id", id).Msg("message left processing before completion was recorded")
		}
		d.Log.Debug().Str("message_id", id).Str("provider_id", providerID).Int("attempt", attempts).Msg("email sent")
		return outcomeSent, nil
	}

	out := repository.Outcome{Status: model.StatusPending, LastError: sendErr.Error()}
	result := outcomeRetry
	if attempts >= msg.MaxAttempts {
		out.Status = model.StatusFailed
		result = outcomeFailed
	}
	d.Log.Error().
		Err(sendErr).
		Str("message_id", id).
		Str("to", msg.To).
		Int("attempt", attempts).
		Int("max_attempts", msg.MaxAttempts).
		Str("next_status", out.Status.String()).
		Msg("provider send failed")

	if _, err := d.Repo.Release(ctx, id, out, d.now()); err != nil {
		return result, fmt.Errorf("release %s: %w", id, err)
	}
	return result, nil
}

// RunCycle performs one full dispatch cycle: recover stuck sends, read the
// configuration, check capacity, promote due messages, then send in priority
// order until capacity is used up. The day's count is credited once at the end.
func (d *Dispatcher) RunCycle(ctx context.Context) (model.CycleSummary, error) {
	start := d.now()
	sum := model.CycleSummary{StartedAt: start, Day: model.DayKey(start, d.Location)}
	finish := func() model.CycleSummary {
		sum.FinishedAt = d.now()
		return sum
	}

	rec, err := d.Repo.RecoverStuck(ctx, start, d.StaleAfter)
	if err != nil {
		return finish(), fmt.Errorf("recover stuck messages: %w", err)
	}
	sum.Recovered, sum.Expired = int(rec.Requeued), int(rec.Failed)

	cfg := d.Config.Load(ctx)
	sum.ScheduleExpression = cfg.ScheduleExpression
	if !cfg.Enabled {
		sum.Disabled = true
		return finish(), nil
	}

	budget, err := d.Budget.CheckLimit(ctx, sum.Day, cfg.DailyLimit)
	if err != nil {
		return finish(), fmt.Errorf("check daily limit: %w", err)
	}
	sum.Limit, sum.DailyCount = budget.Limit, budget.Count
	sum.CapacityBefore, sum.CapacityAfter = budget.Remaining, budget.Remaining
	if budget.Remaining <= 0 {
		sum.LimitReached = true
		return finish(), nil
	}

	promoted, err := d.Repo.PromoteDueScheduled(ctx, start)
	if err != nil {
		return finish(), fmt.Errorf("promote scheduled messages: %w", err)
	}
	sum.Promoted = int(promoted)

	eligible, err := d.Repo.NextEligible(ctx, budget.Remaining)
	if err != nil {
		return finish(), fmt.Errorf("load eligible messages: %w", err)
	}

	drainErr := d.drain(ctx, &sum, eligible, budget.Remaining, start)

	if sum.Sent > 0 {
		// Credit sends even when the cycle is aborting.
		if err := d.Budget.Increment(context.WithoutCancel(ctx), sum.Day, sum.Sent); err != nil {
			d.Log.Error().Err(err).Str("day", sum.Day).Int("sent", sum.Sent).Msg("daily count increment failed")
			if drainErr == nil {
				drainErr = err
			}
		}
	}
	sum.DailyCount += sum.Sent
	if sum.CapacityAfter = sum.Limit - sum.DailyCount; sum.CapacityAfter < 0 {
		sum.CapacityAfter = 0
	}
	return finish(), drainErr
}

func (d *Dispatcher) drain(ctx context.Context, sum *model.CycleSummary, eligible []*model.QueuedMessage, remaining int, now time.Time) error {
	seenBatches := make(map[string]struct{})
	for _, msg := range eligible {
		left := remaining - sum.Sent
		if left <= 0 {
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if msg.InBatch() {
			batchID := *msg.BatchID
			if _, done := seenBatches[batchID]; done {
				continue
			}
			seenBatches[batchID] = struct{}{}
			res, err := d.Batches.ProcessBatch(ctx, batchID, left, now)
			sum.Claimed += res.Claimed
			sum.Sent += res.Sent
			sum.Retried += res.Retried
			sum.Failed += res.Failed
			sum.Skipped += res.Skipped
			sum.Rescheduled += res.Scheduled
			if err != nil {
				return fmt.Errorf("batch %s: %w", batchID, err)
			}
			continue
		}

		if v := d.QuietHours.Evaluate(msg.Rules, now); !v.Allowed {
			sum.Skipped++
			d.Log.Debug().Str("message_id", msg.ID).Str("rule", v.Rule).Str("reason", v.Reason).Msg("quiet hours, deferred")
			continue
		}

		out, err := d.send(ctx, msg.ID)
		tally(sum, out)
		if err != nil {
			return err
		}
	}
	return nil
}

func tally(sum *model.CycleSummary, out sendOutcome) {
	switch out {
	case outcomeSent:
		sum.Claimed++
		sum.Sent++
	case outcomeRetry:
		sum.Claimed++
		sum.Retried++
	case outcomeFailed:
		sum.Claimed++
		sum.Failed++
	}
}
