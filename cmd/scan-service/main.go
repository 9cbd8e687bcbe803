package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"scan-service/internal/config"
	"scan-service/internal/db"
	"scan-service/internal/domain/scan"
	"scan-service/internal/engine"
	apphttp "scan-service/internal/http"
	"scan-service/internal/repository"
	"scan-service/internal/service"
)

func main() {
	cfg, err := config.Load(os.Getenv("SCAN_CONFIG_FILE"))
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("failed to load config")
	}

	log := newLogger(cfg.Log)
	gin.SetMode(gin.ReleaseMode)

	enricher, err := newEnricher(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up enrichment")
	}

	feed := engine.NewFeed(cfg.Camera.Devices, cfg.Camera.QueueSize)
	adapter := engine.NewAdapter(feed, feed, log)

	notifications := service.NewNotificationLog(cfg.Scanner.NotificationLimit)
	notifier := service.MultiNotifier{service.NewLogNotifier(log), notifications}

	coordinator := service.NewCoordinator(adapter, enricher, notifier, service.Options{
		DebounceWindow:  cfg.Scanner.DebounceWindow,
		PauseAfterScan:  cfg.Scanner.PauseAfterScan,
		ProcessingClear: cfg.Scanner.ProcessingClear,
		HistoryLimit:    cfg.Scanner.HistoryLimit,
		EnrichTimeout:   cfg.Scanner.EnrichTimeout,
	}, log)

	handler := apphttp.NewHandler(coordinator, feed, adapter, notifications, log)
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           apphttp.NewRouter(handler, cfg, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info().Str("addr", cfg.HTTP.Addr).Int("devices", len(cfg.Camera.Devices)).Msg("scan service listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}

	coordinator.StopScanning()
	coordinator.Wait()
}

func newLogger(cfg config.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	var log zerolog.Logger
	if cfg.Pretty {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		log = zerolog.New(os.Stdout)
	}
	return log.Level(level).With().Timestamp().Str("service", "scan-service").Logger()
}

// newEnricher uses the participants table when a database is configured and
// the static participant list otherwise. Configured participants are seeded
// into the database.
func newEnricher(cfg *config.Config, log zerolog.Logger) (service.Enricher, error) {
	participants := make([]scan.EnrichedInfo, 0, len(cfg.Participants))
	for _, p := range cfg.Participants {
		participants = append(participants, scan.EnrichedInfo{
			Code:       p.Code,
			Name:       p.Name,
			EventName:  p.EventName,
			TicketType: p.TicketType,
			Status:     p.Status,
		})
	}

	if cfg.DB.DSN == "" {
		log.Info().Int("participants", len(participants)).Msg("no database configured, using static participants")
		return service.NewStaticEnricher(participants), nil
	}

	database, err := db.Open(cfg.DB.DSN, log)
	if err != nil {
		return nil, err
	}
	repo := repository.NewParticipantRepository(database)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := service.SeedParticipants(ctx, repo, participants); err != nil {
		return nil, err
	}
	log.Info().Int("seeded", len(participants)).Msg("participants seeded")

	return service.NewParticipantEnricher(repo), nil
}
