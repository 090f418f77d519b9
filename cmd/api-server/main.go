package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bodywise/scheduling-service/internal/api"
	"github.com/bodywise/scheduling-service/internal/config"
	"github.com/bodywise/scheduling-service/internal/db"
	"github.com/bodywise/scheduling-service/internal/notify"
	redisclient "github.com/bodywise/scheduling-service/internal/redis"
	"github.com/bodywise/scheduling-service/internal/scheduling"
)

const version = "1.0.0"

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	log.Info("api-server starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	log.WithFields(logrus.Fields{"env": cfg.Env, "http_port": cfg.HTTPPort}).Info("Configuration loaded")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatalf("postgres connection error: %v", err)
	}
	defer pgPool.Close()
	log.Info("connected to Postgres")

	// Connect Redis
	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatalf("redis connection error: %v", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Errorf("error closing redis: %v", err)
		}
	}()
	log.Info("connected to Redis")

	var sender scheduling.EmailSender
	if cfg.KafkaBrokers != "" {
		kafkaSender, err := notify.NewKafkaSender(cfg.KafkaBrokers, cfg.NotifyTopic, log)
		if err != nil {
			log.Fatalf("kafka producer error: %v", err)
		}
		defer kafkaSender.Close()
		sender = kafkaSender
		log.WithField("topic", cfg.NotifyTopic).Info("connected to Kafka")
	} else {
		sender = notify.NewLogSender(log)
		log.Warn("KAFKA_BROKERS not set, emails will only be logged")
	}

	cache, err := scheduling.NewSlotCache(cfg.SlotCacheSize)
	if err != nil {
		log.Fatalf("slot cache error: %v", err)
	}

	repo := scheduling.NewPgRepository(pgPool)
	locker := redisclient.NewRedisLocker(rdb, cfg.LockTTL)
	clock := scheduling.NewSystemClock()
	provisioner := scheduling.NewJitsiProvisioner(cfg.JitsiBaseURL)

	availability := scheduling.NewAvailabilityService(repo, cache, clock, log, cfg.HorizonDays)
	booking := scheduling.NewBookingEngine(repo, locker, provisioner, sender, cache, clock, log)
	invitations := scheduling.NewInvitationService(repo, locker, provisioner, sender, cache, clock, log)

	router := api.NewRouter(api.RouterConfig{
		Availability: availability,
		Booking:      booking,
		Invitations:  invitations,
		PgPool:       pgPool,
		Redis:        rdb,
		Log:          log,
		Env:          cfg.Env,
		Version:      version,
	})

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", server.Addr).Info("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		log.Fatalf("http server error: %v", err)
	case <-rootCtx.Done():
		log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("server shutdown error: %v", err)
	}

	log.Info("api-server stopped")
}
