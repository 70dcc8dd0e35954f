package queue

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/streadway/amqp"
)

const retryHeader = "x-retry-count"

// AMQPQueue maps topics to durable RabbitMQ queues on the default exchange.
// Deliveries are acked manually; a failed delivery is republished with an
// incremented x-retry-count header until MaxRetries, then dropped.
type AMQPQueue struct {
	conn       *amqp.Connection
	ch         *amqp.Channel
	log        zerolog.Logger
	MaxRetries int

	mu       sync.Mutex
	declared map[string]bool
	wg       sync.WaitGroup
}

func DialAMQP(url string, log zerolog.Logger) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}
	return &AMQPQueue{
		conn:       conn,
		ch:         ch,
		log:        log,
		MaxRetries: DefaultMaxRetries,
		declared:   make(map[string]bool),
	}, nil
}

func (q *AMQPQueue) declare(topic string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.declared[topic] {
		return nil
	}
	_, err := q.ch.QueueDeclare(
		topic, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", topic, err)
	}
	q.declared[topic] = true
	return nil
}

func (q *AMQPQueue) Publish(topic string, payload []byte) error {
	return q.publish(topic, payload, 0)
}

func (q *AMQPQueue) publish(topic string, payload []byte, retry int) error {
	if err := q.declare(topic); err != nil {
		return err
	}
	return q.ch.Publish(
		"",    // default exchange
		topic, // routing key
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Headers:      amqp.Table{retryHeader: int32(retry)},
			Body:         payload,
		},
	)
}

func (q *AMQPQueue) Subscribe(topic string, handler Handler) error {
	if err := q.declare(topic); err != nil {
		return err
	}
	msgs, err := q.ch.Consume(
		topic,
		"",
		false, // autoAck = false for reliability
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		for d := range msgs {
			q.handle(topic, d, handler)
		}
	}()
	return nil
}

func (q *AMQPQueue) handle(topic string, d amqp.Delivery, handler Handler) {
	err := handler(d.Body)
	if err == nil {
		_ = d.Ack(false)
		return
	}

	retry := RetryCount(d.Headers) + 1
	if retry > q.MaxRetries {
		q.log.Error().Err(err).Str("topic", topic).Int("retries", retry-1).Msg("delivery permanently failed")
		_ = d.Nack(false, false)
		return
	}
	q.log.Warn().Err(err).Str("topic", topic).Int("retry", retry).Msg("delivery failed, republishing")
	if perr := q.publish(topic, d.Body, retry); perr != nil {
		q.log.Error().Err(perr).Str("topic", topic).Msg("republish failed, requeueing")
		_ = d.Nack(false, true)
		return
	}
	_ = d.Ack(false)
}

// RetryCount reads x-retry-count whatever integer type the broker delivered.
func RetryCount(h amqp.Table) int {
	switch v := h[retryHeader].(type) {
	case int:
		return v
	case int16:
		return int(v)
	case int32:
		return int(v)
	case int64:
		return int(v)
	default:
		return 0
	}
}

// Close stops consumers and waits for in-flight deliveries.
func (q *AMQPQueue) Close() error {
	err := q.ch.Close()
	q.wg.Wait()
	if cerr := q.conn.Close(); err == nil {
		err = cerr
	}
	return err
}
