// cmd/seeder/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	yaml "go.yaml.in/yaml/v3"

	"github.com/unclebandit/mail-dispatch/internal/config"
	"github.com/unclebandit/mail-dispatch/internal/db"
	"github.com/unclebandit/mail-dispatch/internal/logging"
	"github.com/unclebandit/mail-dispatch/internal/model"
	"github.com/unclebandit/mail-dispatch/internal/repository"
	"github.com/unclebandit/mail-dispatch/internal/service"
)

// seedFile is the YAML layout of a seed file.
type seedFile struct {
	Messages []seedMessage `yaml:"messages"`
	Batches  []seedBatch   `yaml:"batches"`
}

type seedMessage struct {
	To       string                `yaml:"to"`
	From     string                `yaml:"from"`
	Subject  string                `yaml:"subject"`
	HTML     string                `yaml:"html"`
	Priority string                `yaml:"priority"`
	In       string                `yaml:"in"` // delay from now, e.g. "2h"
	Rules    *model.BlacklistRules `yaml:"blacklist_rules"`
}

type seedBatch struct {
	ID         string   `yaml:"id"`
	Recipients []string `yaml:"recipients"`
	Subject    string   `yaml:"subject"`
	HTML       string   `yaml:"html"`
	Priority   string   `yaml:"priority"`
}

func main() {
	configPath := flag.String("config", os.Getenv("DISPATCH_CONFIG"), "path to YAML config (optional)")
	seedPath := flag.String("file", "seed/messages.yaml", "seed file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		boot := zerolog.New(os.Stderr).With().Timestamp().Logger()
		boot.Fatal().Err(err).Msg("load config")
	}
	log := logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	ctx := context.Background()

	seed, err := loadSeed(*seedPath)
	if err != nil {
		log.Fatal().Err(err).Msg("read seed file")
	}

	store, err := db.Open(ctx, db.Config{Driver: cfg.Database.Driver, URL: cfg.Database.URL, Path: cfg.Database.Path})
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer store.Close()

	loc, _ := cfg.Location()
	svc := &service.EnqueueService{
		Repo:        repository.NewQueuedMessageRepository(store),
		Counts:      repository.NewDailyCountRepository(store),
		Location:    loc,
		MaxAttempts: cfg.Dispatch.MaxAttempts,
		Log:         logging.Component(log, "seeder"),
	}

	n, err := apply(ctx, svc, seed, time.Now())
	if err != nil {
		log.Fatal().Err(err).Msg("seed")
	}
	fmt.Printf("Seeded %d messages from %s\n", n, *seedPath)
}

func loadSeed(path string) (*seedFile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var seed seedFile
	if err := yaml.Unmarshal(b, &seed); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &seed, nil
}

// apply enqueues every entry and returns how many messages were stored.
func apply(ctx context.Context, svc *service.EnqueueService, seed *seedFile, now time.Time) (int, error) {
	n := 0
	for i, m := range seed.Messages {
		req := service.EnqueueRequest{
			To:       m.To,
			From:     m.From,
			Subject:  m.Subject,
			HTML:     m.HTML,
			Priority: m.Priority,
			Rules:    m.Rules,
		}
		if m.In != "" {
			d, err := time.ParseDuration(m.In)
			if err != nil {
				return n, fmt.Errorf("messages[%d].in: %w", i, err)
			}
			at := now.Add(d)
			req.ScheduledFor = &at
		}
		if _, err := svc.Enqueue(ctx, req); err != nil {
			return n, fmt.Errorf("messages[%d]: %w", i, err)
		}
		n++
	}
	for i, b := range seed.Batches {
		res, err := svc.EnqueueBatch(ctx, service.BatchEnqueueRequest{
			BatchID:    b.ID,
			Recipients: b.Recipients,
			Subject:    b.Subject,
			HTML:       b.HTML,
			Priority:   b.Priority,
		})
		if err != nil {
			return n, fmt.Errorf("batches[%d]: %w", i, err)
		}
		n += len(res.IDs)
	}
	return n, nil
}
