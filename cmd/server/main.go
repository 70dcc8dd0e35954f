// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/unclebandit/mail-dispatch/internal/config"
	"github.com/unclebandit/mail-dispatch/internal/controller"
	"github.com/unclebandit/mail-dispatch/internal/db"
	"github.com/unclebandit/mail-dispatch/internal/handler"
	"github.com/unclebandit/mail-dispatch/internal/logging"
	"github.com/unclebandit/mail-dispatch/internal/repository"
	"github.com/unclebandit/mail-dispatch/internal/service"
)

func main() {
	configPath := flag.String("config", os.Getenv("DISPATCH_CONFIG"), "path to YAML config (optional)")
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

	srv := newHTTPServer(cfg, store, log)

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("server running")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	log.Info().Msg("server stopped")
}

func newHTTPServer(cfg *config.Config, store *db.DB, log zerolog.Logger) *http.Server {
	loc, _ := cfg.Location()
	configService := service.NewConfigService(
		repository.NewConfigRepository(store),
		cfg.DispatchDefaults(),
		logging.Component(log, "config"),
	)
	enqueueService := &service.EnqueueService{
		Repo:        repository.NewQueuedMessageRepository(store),
		Counts:      repository.NewDailyCountRepository(store),
		Config:      configService,
		Location:    loc,
		MaxAttempts: cfg.Dispatch.MaxAttempts,
		Log:         logging.Component(log, "enqueue"),
	}
	messageController := &controller.MessageController{
		EnqueueService: enqueueService,
		ConfigService:  configService,
		Log:            logging.Component(log, "http"),
	}

	return &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           handler.NewRouter(messageController, logging.Component(log, "http")),
		ReadHeaderTimeout: 10 * time.Second,
	}
}
