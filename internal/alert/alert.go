// Package alert posts dispatch cycle summaries to operator channels.
package alert

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/unclebandit/mail-dispatch/internal/model"
	"github.com/unclebandit/mail-dispatch/internal/queue"
)

// Alerter delivers one summary to one channel.
type Alerter interface {
	Post(ctx context.Context, s model.CycleSummary) error
}

// LogAlerter writes summaries to the structured log.
type LogAlerter struct {
	Log zerolog.Logger
}

func (a LogAlerter) Post(_ context.Context, s model.CycleSummary) error {
	a.Log.Info().
		Str("day", s.Day).
		Bool("limit_reached", s.LimitReached).
		Int("sent", s.Sent).
		Int("failed", s.Failed).
		Int("retried", s.Retried).
		Int("skipped", s.Skipped).
		Int("rescheduled", s.Rescheduled).
		Int("daily_count", s.DailyCount).
		Int("limit", s.Limit).
		Msg("dispatch summary")
	return nil
}

// QueueAlerter publishes summaries as JSON to a queue topic.
type QueueAlerter struct {
	Queue queue.Queue
	Topic string
}

func (a QueueAlerter) Post(_ context.Context, s model.CycleSummary) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	if err := a.Queue.Publish(a.Topic, b); err != nil {
		return fmt.Errorf("publish summary to %s: %w", a.Topic, err)
	}
	return nil
}

// Notifier fans a summary out to every sink. Limit-reached and disabled
// summaries are suppressed for Window after the first one of the day.
type Notifier struct {
	sinks  []Alerter
	Window time.Duration
	log    zerolog.Logger

	mu    sync.Mutex
	dedup map[string]time.Time
	now   func() time.Time
}

func NewNotifier(window time.Duration, log zerolog.Logger, sinks ...Alerter) *Notifier {
	return &Notifier{
		sinks:  sinks,
		Window: window,
		log:    log,
		dedup:  map[string]time.Time{},
		now:    time.Now,
	}
}

// Notify posts s to all sinks and joins their errors.
func (n *Notifier) Notify(ctx context.Context, s model.CycleSummary) error {
	if key := dedupKey(s); key != "" && n.Window > 0 && !n.allow(key) {
		n.log.Debug().Str("key", key).Msg("summary deduplicated")
		return nil
	}
	var errs []error
	for _, sink := range n.sinks {
		if err := sink.Post(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func dedupKey(s model.CycleSummary) string {
	switch {
	case s.LimitReached:
		return "limit:" + s.Day
	case s.Disabled:
		return "disabled:" + s.Day
	default:
		return ""
	}
}

func (n *Notifier) allow(key string) bool {
	now := n.now()
	n.mu.Lock()
	defer n.mu.Unlock()
	if until, ok := n.dedup[key]; ok && now.Before(until) {
		return false
	}
	n.dedup[key] = now.Add(n.Window)
	for k, until := range n.dedup {
		if !now.Before(until) {
			delete(n.dedup, k)
		}
	}
	return true
}
