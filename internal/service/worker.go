package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	appErrors "github.com/unclebandit/mail-dispatch/internal/errors"
	"github.com/unclebandit/mail-dispatch/internal/lock"
	"github.com/unclebandit/mail-dispatch/internal/model"
)

// SummaryNotifier receives the summary of every cycle worth reporting.
type SummaryNotifier interface {
	Notify(ctx context.Context, s model.CycleSummary) error
}

// CycleRunner is one full dispatch cycle.
type CycleRunner interface {
	RunCycle(ctx context.Context) (model.CycleSummary, error)
}

// Worker owns the recurring wake-up. Cycles never overlap within a process,
// and the Locker keeps them from overlapping across processes.
type Worker struct {
	Runner   CycleRunner
	Locker   lock.Locker
	Notifier SummaryNotifier
	Location *time.Location
	Log      zerolog.Logger
	// NotifyTimeout bounds how long a summary post may delay the next cycle.
	NotifyTimeout time.Duration

	running atomic.Bool

	mu      sync.Mutex
	cron    *cron.Cron
	entryID cron.EntryID
	spec    string
	baseCtx context.Context
}

// Constructor
func NewWorker(runner CycleRunner, locker lock.Locker, notifier SummaryNotifier, loc *time.Location, log zerolog.Logger) *Worker {
	if locker == nil {
		locker = lock.NewLocalLocker()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Worker{
		Runner:        runner,
		Locker:        locker,
		Notifier:      notifier,
		Location:      loc,
		Log:           log,
		NotifyTimeout: 10 * time.Second,
	}
}

// Start registers the cycle under schedule and starts triggering.
// An invalid schedule falls back to the default cadence.
func (w *Worker) Start(ctx context.Context, schedule string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cron != nil {
		return nil
	}
	w.baseCtx = ctx
	w.cron = cron.New(
		cron.WithParser(cronParser),
		cron.WithLocation(w.Location),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{w.Log})),
	)
	if err := w.registerLocked(schedule); err != nil {
		w.Log.Warn().Err(err).Str("schedule", schedule).Msg("invalid schedule, using default")
		if err := w.registerLocked(model.DefaultScheduleExpression); err != nil {
			w.cron = nil
			return err
		}
	}
	w.cron.Start()
	w.Log.Info().Str("schedule", w.spec).Str("tz", w.Location.String()).Msg("scheduler started")
	return nil
}

// Stop stops triggering and waits for a running cycle, or until ctx is done.
func (w *Worker) Stop(ctx context.Context) {
	w.mu.Lock()
	c := w.cron
	w.cron = nil
	w.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	w.Log.Info().Msg("scheduler stopped")
}

// Schedule returns the expression currently registered.
func (w *Worker) Schedule() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.spec
}

func (w *Worker) registerLocked(schedule string) error {
	parsed, err := ParseSchedule(schedule)
	if err != nil {
		return err
	}
	id, err := w.cron.AddFunc(parsed.Spec(), w.tick)
	if err != nil {
		return err
	}
	if w.entryID != 0 {
		w.cron.Remove(w.entryID)
	}
	w.entryID = id
	w.spec = schedule
	return nil
}

func (w *Worker) tick() {
	w.mu.Lock()
	ctx := w.baseCtx
	w.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	if _, err := w.RunOnce(ctx); err != nil {
		switch {
		case errors.Is(err, appErrors.ErrCycleRunning), errors.Is(err, appErrors.ErrLeaseHeld):
			w.Log.Debug().Err(err).Msg("cycle skipped")
		default:
			w.Log.Error().Err(err).Msg("dispatch cycle aborted")
		}
	}
}

// RunOnce runs a single cycle now unless one is already running here or elsewhere.
func (w *Worker) RunOnce(ctx context.Context) (model.CycleSummary, error) {
	if !w.running.CompareAndSwap(false, true) {
		return model.CycleSummary{}, appErrors.ErrCycleRunning
	}
	defer w.running.Store(false)

	ok, err := w.Locker.TryAcquire(ctx, lock.DispatchLockID)
	if err != nil {
		return model.CycleSummary{}, err
	}
	if !ok {
		return model.CycleSummary{}, appErrors.ErrLeaseHeld
	}
	defer func() {
		if err := w.Locker.Release(context.WithoutCancel(ctx), lock.DispatchLockID); err != nil {
			w.Log.Warn().Err(err).Msg("release dispatch lease")
		}
	}()

	sum, err := w.Runner.RunCycle(ctx)
	w.logCycle(sum, err)
	w.report(ctx, sum)
	w.reconcile(sum.ScheduleExpression)
	return sum, err
}

func (w *Worker) logCycle(s model.CycleSummary, err error) {
	ev := w.Log.Info()
	if err != nil {
		ev = w.Log.Error().Err(err)
	}
	ev.Str("day", s.Day).
		Bool("disabled", s.Disabled).
		Bool("limit_reached", s.LimitReached).
		Int("capacity_before", s.CapacityBefore).
		Int("capacity_after", s.CapacityAfter).
		Int("recovered", s.Recovered).
		Int("expired", s.Expired).
		Int("promoted", s.Promoted).
		Int("claimed", s.Claimed).
		Int("sent", s.Sent).
		Int("retried", s.Retried).
		Int("failed", s.Failed).
		Int("skipped", s.Skipped).
		Int("rescheduled", s.Rescheduled).
		Dur("took", s.FinishedAt.Sub(s.StartedAt)).
		Msg("dispatch cycle")
}

// report never fails the cycle.
func (w *Worker) report(ctx context.Context, s model.CycleSummary) {
	if w.Notifier == nil || !(s.LimitReached || s.HasActivity()) {
		return
	}
	timeout := w.NotifyTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	if err := w.Notifier.Notify(nctx, s); err != nil {
		w.Log.Warn().Err(err).Msg("summary post failed")
	}
}

// reconcile re-registers the cron entry when the stored schedule changed.
func (w *Worker) reconcile(schedule string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cron == nil || schedule == "" || schedule == w.spec {
		return
	}
	old := w.spec
	if err := w.registerLocked(schedule); err != nil {
		w.Log.Warn().Err(err).Str("schedule", schedule).Msg("ignoring invalid schedule")
		return
	}
	w.Log.Info().Str("from", old).Str("to", schedule).Msg("schedule changed")
}

// cronLogger routes robfig/cron logs into zerolog.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
