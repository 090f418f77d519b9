package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/bodywise/scheduling-service/internal/config"
	"github.com/bodywise/scheduling-service/internal/db"
	"github.com/bodywise/scheduling-service/internal/notify"
	"github.com/bodywise/scheduling-service/internal/scheduling"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	log.Info("reminder-worker starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	log.WithFields(logrus.Fields{"env": cfg.Env, "cron": cfg.ReminderCron}).Info("Configuration loaded")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatalf("postgres connection error: %v", err)
	}
	defer pgPool.Close()
	log.Info("connected to Postgres")

	var sender scheduling.EmailSender
	if cfg.KafkaBrokers != "" {
		kafkaSender, err := notify.NewKafkaSender(cfg.KafkaBrokers, cfg.NotifyTopic, log)
		if err != nil {
			log.Fatalf("kafka producer error: %v", err)
		}
		defer kafkaSender.Close()
		sender = kafkaSender
	} else {
		sender = notify.NewLogSender(log)
		log.Warn("KAFKA_BROKERS not set, emails will only be logged")
	}

	repo := scheduling.NewPgRepository(pgPool)
	svc := scheduling.NewReminderService(repo, sender, scheduling.NewSystemClock(), log)

	// Run once at startup
	runScans(rootCtx, svc, log)

	c := cron.New()
	if _, err := c.AddFunc(cfg.ReminderCron, func() {
		runScans(rootCtx, svc, log)
	}); err != nil {
		log.Fatalf("invalid REMINDER_CRON: %v", err)
	}
	c.Start()

	<-rootCtx.Done()
	log.Info("shutdown signal received, stopping reminder worker")

	stopCtx := c.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(cfg.ShutdownTimeout):
		log.Warn("timed out waiting for running scan")
	}
}

func runScans(ctx context.Context, svc *scheduling.ReminderService, log *logrus.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	for _, kind := range []scheduling.ReminderScanKind{scheduling.Scan24Hour, scheduling.Scan1Hour} {
		start := time.Now()
		result, err := svc.RunScan(runCtx, kind)
		if err != nil {
			log.WithField("kind", string(kind)).Errorf("reminder scan error: %v", err)
			continue
		}
		log.WithFields(logrus.Fields{
			"kind":     string(kind),
			"matched":  result.Matched,
			"sent":     result.Sent,
			"failed":   result.Failed,
			"duration": time.Since(start).String(),
		}).Info("Reminder scan complete")
	}
}
