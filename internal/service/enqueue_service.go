// internal/service/enqueue_service.go
package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	appErrors "github.com/unclebandit/mail-dispatch/internal/errors"
	"github.com/unclebandit/mail-dispatch/internal/model"
	"github.com/unclebandit/mail-dispatch/internal/repository"
)

type EnqueueService struct {
	Repo        repository.QueuedMessageRepositoryInterface
	Counts      repository.DailyCountRepositoryInterface
	Config      *ConfigService
	Location    *time.Location
	MaxAttempts int
	Log         zerolog.Logger
	Now         func() time.Time
}

// EnqueueRequest is one message as accepted from the web layer or the ingest queue.
type EnqueueRequest struct {
	To            string                `json:"to"`
	From          string                `json:"from,omitempty"`
	Subject       string                `json:"subject"`
	HTML          string                `json:"html"`
	Priority      string                `json:"priority,omitempty"`
	ScheduledFor  *time.Time            `json:"scheduled_for,omitempty"`
	BatchID       string                `json:"batch_id,omitempty"`
	BatchPosition *int                  `json:"batch_position,omitempty"`
	Rules         *model.BlacklistRules `json:"blacklist_rules,omitempty"`
	MaxAttempts   int                   `json:"max_attempts,omitempty"`
}

// BatchEnqueueRequest sends one message to many recipients in order.
// Positions are assigned from the recipient order starting at 1.
type BatchEnqueueRequest struct {
	BatchID      string                `json:"batch_id,omitempty"`
	Recipients   []string              `json:"recipients"`
	From         string                `json:"from,omitempty"`
	Subject      string                `json:"subject"`
	HTML         string                `json:"html"`
	Priority     string                `json:"priority,omitempty"`
	ScheduledFor *time.Time            `json:"scheduled_for,omitempty"`
	Rules        *model.BlacklistRules `json:"blacklist_rules,omitempty"`
	MaxAttempts  int                   `json:"max_attempts,omitempty"`
}

type BatchEnqueueResult struct {
	BatchID string   `json:"batch_id"`
	IDs     []string `json:"ids"`
}

// Stats is the queue overview served to operators.
type Stats struct {
	Messages map[model.Status]int `json:"messages"`
	Budget   Budget               `json:"budget"`
}

func (s *EnqueueService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return timeNow()
}

// Enqueue validates and stores a single message, returning its id.
func (s *EnqueueService) Enqueue(ctx context.Context, req EnqueueRequest) (string, error) {
	if strings.TrimSpace(req.BatchID) == "" && req.BatchPosition != nil {
		return "", appErrors.Invalid("batch_position requires batch_id")
	}
	if strings.TrimSpace(req.BatchID) != "" && (req.BatchPosition == nil || *req.BatchPosition < 1) {
		return "", appErrors.Invalid("batch_id requires a batch_position >= 1")
	}
	msg, err := s.build(req.To, req.From, req.Subject, req.HTML, req.Priority, req.ScheduledFor, req.Rules, req.MaxAttempts)
	if err != nil {
		return "", err
	}
	if id := strings.TrimSpace(req.BatchID); id != "" {
		pos := *req.BatchPosition
		msg.BatchID, msg.BatchPosition = &id, &pos
	}
	if err := s.Repo.Create(ctx, msg); err != nil {
		return "", err
	}
	s.Log.Info().
		Str("message_id", msg.ID).
		Str("priority", string(msg.Priority)).
		Str("status", msg.Status.String()).
		Msg("message enqueued")
	return msg.ID, nil
}

// EnqueueBatch stores every recipient's message in one transaction.
func (s *EnqueueService) EnqueueBatch(ctx context.Context, req BatchEnqueueRequest) (*BatchEnqueueResult, error) {
	if len(req.Recipients) == 0 {
		return nil, appErrors.Invalid("recipients must not be empty")
	}
	batchID := strings.TrimSpace(req.BatchID)
	if batchID == "" {
		batchID = uuid.NewString()
	}

	msgs := make([]*model.QueuedMessage, 0, len(req.Recipients))
	result := &BatchEnqueueResult{BatchID: batchID, IDs: make([]string, 0, len(req.Recipients))}
	for i, to := range req.Recipients {
		msg, err := s.build(to, req.From, req.Subject, req.HTML, req.Priority, req.ScheduledFor, req.Rules, req.MaxAttempts)
		if err != nil {
			return nil, appErrors.Invalid("recipients[%d]: %v", i, err)
		}
		pos := i + 1
		bid := batchID
		msg.BatchID, msg.BatchPosition = &bid, &pos
		msgs = append(msgs, msg)
		result.IDs = append(result.IDs, msg.ID)
	}
	if err := s.Repo.CreateBatch(ctx, msgs); err != nil {
		return nil, err
	}
	s.Log.Info().Str("batch_id", batchID).Int("size", len(msgs)).Msg("batch enqueued")
	return result, nil
}

func (s *EnqueueService) build(to, from, subject, html, priority string, scheduledFor *time.Time, rules *model.BlacklistRules, maxAttempts int) (*model.QueuedMessage, error) {
	to = strings.TrimSpace(to)
	if to == "" {
		return nil, appErrors.Invalid("recipient is required")
	}
	p, err := model.ParsePriority(priority)
	if err != nil {
		return nil, appErrors.Invalid("%v", err)
	}
	if err := rules.Validate(); err != nil {
		return nil, appErrors.Invalid("blacklist_rules: %v", err)
	}
	if maxAttempts < 0 {
		return nil, appErrors.Invalid("max_attempts must be >= 1")
	}
	if maxAttempts == 0 {
		maxAttempts = s.MaxAttempts
	}
	if maxAttempts <= 0 {
		maxAttempts = model.DefaultMaxAttempts
	}

	now := s.now()
	msg := &model.QueuedMessage{
		ID:          uuid.NewString(),
		To:          to,
		From:        strings.TrimSpace(from),
		Subject:     subject,
		HTML:        html,
		Priority:    p,
		Status:      model.StatusPending,
		MaxAttempts: maxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if !rules.Empty() {
		msg.Rules = rules
	}
	if scheduledFor != nil && scheduledFor.After(now) {
		at := *scheduledFor
		msg.ScheduledFor = &at
		msg.Status = model.StatusScheduled
	}
	return msg, nil
}

func (s *EnqueueService) Get(ctx context.Context, id string) (*model.QueuedMessage, error) {
	return s.Repo.GetByID(ctx, id)
}

// Stats returns message counts per status and today's budget without seeding the day.
func (s *EnqueueService) Stats(ctx context.Context) (*Stats, error) {
	counts, err := s.Repo.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	day := model.DayKey(s.now(), s.Location)
	dc, found, err := s.Counts.Get(ctx, day)
	if err != nil {
		return nil, err
	}
	if !found && s.Config != nil {
		dc.Limit = s.Config.Load(ctx).DailyLimit
	}
	return &Stats{Messages: counts, Budget: budgetOf(dc)}, nil
}
