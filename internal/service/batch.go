package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/unclebandit/mail-dispatch/internal/model"
	"github.com/unclebandit/mail-dispatch/internal/repository"
)

type messageSender interface {
	send(ctx context.Context, id string) (sendOutcome, error)
}

// BatchResult counts what happened to a batch's members in one pass.
type BatchResult struct {
	Claimed   int
	Sent      int
	Retried   int
	Failed    int
	Skipped   int
	Scheduled int
	ResumeAt  time.Time
}

// BatchCoordinator walks a batch in position order. Position k+1 is never
// attempted before position k; once capacity runs out the rest of the batch
// is parked until the next send window.
type BatchCoordinator struct {
	Repo       repository.QueuedMessageRepositoryInterface
	Sender     messageSender
	QuietHours *QuietHours
	Location   *time.Location
	// ResumeAt is the next window's time of day in minutes since midnight.
	ResumeAt int
	Log      zerolog.Logger
}

func (b *BatchCoordinator) ProcessBatch(ctx context.Context, batchID string, remaining int, now time.Time) (BatchResult, error) {
	var res BatchResult
	members, err := b.Repo.ListBatchMembers(ctx, batchID)
	if err != nil {
		return res, err
	}
	log := b.Log.With().Str("batch_id", batchID).Logger()

	for i, m := range members {
		if res.Sent >= remaining {
			rest := make([]string, 0, len(members)-i)
			for _, r := range members[i:] {
				rest = append(rest, r.ID)
			}
			at := NextWindow(now, b.Location, b.ResumeAt)
			n, err := b.Repo.Reschedule(ctx, rest, at, now)
			res.Scheduled, res.ResumeAt = int(n), at
			if err != nil {
				return res, err
			}
			log.Info().Int("rescheduled", res.Scheduled).Time("resume_at", at).Msg("batch capacity exhausted")
			return res, nil
		}

		if m.Status == model.StatusScheduled {
			log.Debug().Str("message_id", m.ID).Msg("batch waits for scheduled member")
			return res, nil
		}
		if v := b.QuietHours.Evaluate(m.Rules, now); !v.Allowed {
			res.Skipped++
			log.Debug().Str("message_id", m.ID).Str("rule", v.Rule).Str("reason", v.Reason).Msg("batch halted by quiet hours")
			return res, nil
		}

		out, err := b.Sender.send(ctx, m.ID)
		switch out {
		case outcomeSent:
			res.Claimed++
			res.Sent++
		case outcomeRetry:
			res.Claimed++
			res.Retried++
		case outcomeFailed:
			res.Claimed++
			res.Failed++
		}
		if err != nil {
			return res, err
		}
	}
	return res, nil
}

// NextWindow is resumeAt (minutes since midnight) on the calendar day after now, in loc.
func NextWindow(now time.Time, loc *time.Location, resumeAt int) time.Time {
	if loc == nil {
		loc = time.Local
	}
	y, m, d := now.In(loc).Date()
	return time.Date(y, m, d+1, resumeAt/60, resumeAt%60, 0, 0, loc)
}
