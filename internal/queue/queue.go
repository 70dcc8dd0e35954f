package queue

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultMaxRetries bounds redelivery of a failing payload.
const DefaultMaxRetries = 3

// Queue interface
type Queue interface {
	Publish(topic string, payload []byte) error
	Subscribe(topic string, handler Handler) error
	Close() error
}

// Handler processes one payload. A non-nil error asks for redelivery.
type Handler func(payload []byte) error

// InMemoryQueue is an in-process queue with retry
type InMemoryQueue struct {
	mu         sync.Mutex
	handlers   map[string][]Handler
	wg         sync.WaitGroup
	log        zerolog.Logger
	MaxRetries int
	// Backoff returns the wait before retry n (1-based).
	Backoff func(retry int) time.Duration
}

// NewInMemoryQueue creates a new queue
func NewInMemoryQueue(log zerolog.Logger) *InMemoryQueue {
	return &InMemoryQueue{
		handlers:   make(map[string][]Handler),
		log:        log,
		MaxRetries: DefaultMaxRetries,
		Backoff: func(retry int) time.Duration {
			return time.Duration(retry*500) * time.Millisecond
		},
	}
}

// job wraps a payload with retry info
type job struct {
	topic      string
	payload    []byte
	retryCount int
	maxRetries int
}

// Publish sends a payload to all subscribers
func (q *InMemoryQueue) Publish(topic string, payload []byte) error {
	q.mu.Lock()
	handlers := append([]Handler(nil), q.handlers[topic]...)
	q.mu.Unlock()

	if len(handlers) == 0 {
		return fmt.Errorf("no subscribers for topic %s", topic)
	}

	for _, handler := range handlers {
		j := job{topic: topic, payload: payload, maxRetries: q.MaxRetries}
		q.wg.Add(1)
		go q.processJob(handler, j)
	}
	return nil
}

// processJob handles retries and errors
func (q *InMemoryQueue) processJob(handler Handler, j job) {
	defer q.wg.Done()
	for j.retryCount <= j.maxRetries {
		err := handler(j.payload)
		if err == nil {
			return // ACK
		}

		j.retryCount++
		q.log.Warn().Err(err).Str("topic", j.topic).Int("attempt", j.retryCount).Int("max_retries", j.maxRetries).Msg("job failed")

		if j.retryCount > j.maxRetries {
			q.log.Error().Str("topic", j.topic).Int("bytes", len(j.payload)).Msg("job permanently failed")
			return // No requeue
		}

		if q.Backoff != nil {
			time.Sleep(q.Backoff(j.retryCount))
		}
	}
}

// Subscribe adds a handler for a topic
func (q *InMemoryQueue) Subscribe(topic string, handler Handler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}

// Close waits for in-flight jobs to finish.
func (q *InMemoryQueue) Close() error {
	q.wg.Wait()
	return nil
}
