package main

import (
	"errors"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/unclebandit/mail-dispatch/internal/alert"
	"github.com/unclebandit/mail-dispatch/internal/config"
	"github.com/unclebandit/mail-dispatch/internal/mailer"
	"github.com/unclebandit/mail-dispatch/internal/queue"
)

func buildProvider(cfg *config.Config, log zerolog.Logger) mailer.Provider {
	if strings.EqualFold(cfg.Mail.Provider, "http") {
		return mailer.NewHTTPProvider(mailer.HTTPOptions{
			URL:        cfg.Mail.APIURL,
			APIKey:     cfg.Mail.APIKey,
			RatePerSec: cfg.Mail.RatePerSec,
			Timeout:    cfg.MailTimeout(),
		})
	}
	log.Warn().Msg("using log mail provider, nothing will be delivered")
	return mailer.NewLogProvider(log)
}

// buildNotifier always logs summaries; Telegram and AMQP sinks are added when configured.
func buildNotifier(cfg *config.Config, brokers *brokers, log zerolog.Logger) (*alert.Notifier, error) {
	sinks := []alert.Alerter{alert.LogAlerter{Log: log}}

	tg := cfg.Alert.Telegram
	if tg.Token != "" {
		a, err := alert.NewTelegramAlerter(alert.TelegramConfig{Token: tg.Token, ChatID: tg.ChatID, ThreadID: tg.ThreadID})
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, a)
	}
	if cfg.Alert.AMQP.URL != "" {
		q, err := brokers.Get(cfg.Alert.AMQP.URL)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, alert.QueueAlerter{Queue: q, Topic: cfg.Alert.AMQP.Queue})
	}
	return alert.NewNotifier(cfg.DedupWindow(), log, sinks...), nil
}

// brokers shares one AMQP connection per URL between ingest and alerting.
type brokers struct {
	mu    sync.Mutex
	conns map[string]queue.Queue
	log   zerolog.Logger
	dial  func(url string, log zerolog.Logger) (queue.Queue, error)
}

func newBrokers(log zerolog.Logger) *brokers {
	return &brokers{
		conns: make(map[string]queue.Queue),
		log:   log,
		dial: func(url string, log zerolog.Logger) (queue.Queue, error) {
			return queue.DialAMQP(url, log)
		},
	}
}

func (b *brokers) Get(url string) (queue.Queue, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if q, ok := b.conns[url]; ok {
		return q, nil
	}
	q, err := b.dial(url, b.log)
	if err != nil {
		return nil, err
	}
	b.conns[url] = q
	return q, nil
}

func (b *brokers) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var errs []error
	for url, q := range b.conns {
		if err := q.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(b.conns, url)
	}
	return errors.Join(errs...)
}
