// cmd/worker/main.go
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/rs/zerolog"

	"github.com/unclebandit/mail-dispatch/internal/config"
	"github.com/unclebandit/mail-dispatch/internal/db"
	"github.com/unclebandit/mail-dispatch/internal/lock"
	"github.com/unclebandit/mail-dispatch/internal/logging"
	"github.com/unclebandit/mail-dispatch/internal/repository"
	"github.com/unclebandit/mail-dispatch/internal/service"
)

func main() {
	configPath := flag.String("config", os.Getenv("DISPATCH_CONFIG"), "path to YAML config (optional)")
	runNow := flag.Bool("run-now", false, "run one dispatch cycle immediately on start")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		boot := zerolog.New(os.Stderr).With().Timestamp().Logger()
		boot.Fatal().Err(err).Msg("load config")
	}
	log := logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := db.Open(ctx, db.Config{Driver: cfg.Database.Driver, URL: cfg.Database.URL, Path: cfg.Database.Path})
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer store.Close()

	loc, _ := cfg.Location()
	messages := repository.NewQueuedMessageRepository(store)
	counts := repository.NewDailyCountRepository(store)
	configService := service.NewConfigService(
		repository.NewConfigRepository(store),
		cfg.DispatchDefaults(),
		logging.Component(log, "config"),
	)

	brokers := newBrokers(logging.Component(log, "amqp"))
	defer brokers.Close()

	dispatcher, err := service.NewDispatcher(service.DispatcherOptions{
		Repo:        messages,
		Counts:      counts,
		Config:      configService,
		Provider:    buildProvider(cfg, logging.Component(log, "mailer")),
		Location:    loc,
		StaleAfter:  cfg.StaleAfter(),
		ResumeAt:    cfg.Dispatch.ResumeAt,
		DefaultFrom: cfg.Mail.From,
		Log:         logging.Component(log, "dispatcher"),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("build dispatcher")
	}

	notifier, err := buildNotifier(cfg, brokers, logging.Component(log, "alert"))
	if err != nil {
		log.Fatal().Err(err).Msg("build notifier")
	}

	var locker lock.Locker = lock.NewLocalLocker()
	if store.Dialect == db.Postgres {
		locker = lock.NewPostgresLocker(store.DB)
	}
	worker := service.NewWorker(dispatcher, locker, notifier, loc, logging.Component(log, "worker"))

	if cfg.Ingest.AMQP.URL != "" {
		enqueueService := &service.EnqueueService{
			Repo:        messages,
			Counts:      counts,
			Config:      configService,
			Location:    loc,
			MaxAttempts: cfg.Dispatch.MaxAttempts,
			Log:         logging.Component(log, "ingest"),
		}
		q, err := brokers.Get(cfg.Ingest.AMQP.URL)
		if err != nil {
			log.Fatal().Err(err).Msg("connect ingest broker")
		}
		if err := service.StartEnqueueSubscriber(q, cfg.Ingest.AMQP.Queue, enqueueService, logging.Component(log, "ingest")); err != nil {
			log.Fatal().Err(err).Msg("subscribe ingest queue")
		}
		log.Info().Str("queue", cfg.Ingest.AMQP.Queue).Msg("ingest subscriber running")
	}

	if err := worker.Start(ctx, configService.Load(ctx).ScheduleExpression); err != nil {
		log.Fatal().Err(err).Msg("start scheduler")
	}
	if *runNow {
		go func() {
			if _, err := worker.RunOnce(ctx); err != nil {
				log.Warn().Err(err).Msg("startup cycle")
			}
		}()
	}

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Warn().Err(err).Msg("sd_notify ready")
	} else if ok {
		log.Debug().Msg("sd_notify ready sent")
	}

	<-ctx.Done()
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.MailTimeout()+5*time.Second)
	defer cancel()
	worker.Stop(shutdownCtx)
	log.Info().Msg("worker stopped")
}
