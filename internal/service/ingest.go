package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	appErrors "github.com/unclebandit/mail-dispatch/internal/errors"
	"github.com/unclebandit/mail-dispatch/internal/queue"
)

// ingestPayload is one enqueue request on the ingest queue.
// A payload carrying recipients is a batch.
type ingestPayload struct {
	EnqueueRequest
	Recipients []string `json:"recipients,omitempty"`
}

// StartEnqueueSubscriber stores every request published to topic.
// Malformed or invalid payloads are dropped; store errors are redelivered.
func StartEnqueueSubscriber(q queue.Queue, topic string, svc *EnqueueService, log zerolog.Logger) error {
	return q.Subscribe(topic, func(payload []byte) error {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		var p ingestPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			log.Warn().Err(err).Int("bytes", len(payload)).Msg("dropping malformed enqueue payload")
			return nil
		}

		var err error
		if len(p.Recipients) > 0 {
			var res *BatchEnqueueResult
			res, err = svc.EnqueueBatch(ctx, BatchEnqueueRequest{
				BatchID:      p.BatchID,
				Recipients:   p.Recipients,
				From:         p.From,
				Subject:      p.Subject,
				HTML:         p.HTML,
				Priority:     p.Priority,
				ScheduledFor: p.ScheduledFor,
				Rules:        p.Rules,
				MaxAttempts:  p.MaxAttempts,
			})
			if err == nil {
				log.Debug().Str("batch_id", res.BatchID).Int("size", len(res.IDs)).Msg("ingested batch")
			}
		} else {
			var id string
			id, err = svc.Enqueue(ctx, p.EnqueueRequest)
			if err == nil {
				log.Debug().Str("message_id", id).Msg("ingested message")
			}
		}

		if errors.Is(err, appErrors.ErrInvalidMessage) {
			log.Warn().Err(err).Msg("dropping invalid enqueue payload")
			return nil
		}
		return err
	})
}
