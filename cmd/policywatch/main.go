package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver for migrations
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/policywatch/policywatch/internal/config"
	"github.com/policywatch/policywatch/internal/fetcher"
	"github.com/policywatch/policywatch/internal/handler"
	"github.com/policywatch/policywatch/internal/kafka"
	"github.com/policywatch/policywatch/internal/logger"
	"github.com/policywatch/policywatch/internal/metrics"
	"github.com/policywatch/policywatch/internal/router"
	"github.com/policywatch/policywatch/internal/runner"
	"github.com/policywatch/policywatch/internal/service"
	"github.com/policywatch/policywatch/internal/storage"
	"github.com/policywatch/policywatch/pkg/tracing"
)

const serviceName = "policywatch"

func main() {
	l := logger.NewLogger()
	slog.SetDefault(l)

	metrics.Init()

	if err := godotenv.Load(); err != nil {
		l.Info("No .env file loaded", "err", err)
	}

	cfg := config.Load()
	if cfg.DatabaseURL == "" {
		l.Error("DATABASE_URL not set")
		os.Exit(1)
	}

	ctx := context.Background()

	// ---- OpenTelemetry Tracing Setup ----
	tracerCtx, tracerCancel := context.WithCancel(ctx)
	defer tracerCancel()

	_, tracerShutdown, err := tracing.NewTracerProvider(
		tracerCtx,
		serviceName,
		cfg.CollectorEndpoint,
		l)
	if err != nil {
		l.Error("Failed to initialize OpenTelemetry TracerProvider", slog.Any("err", err))
		os.Exit(1)
	}
	defer tracerShutdown()

	// Migrations run over database/sql; the application itself talks pgx.
	migrationDB, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		l.Error("Invalid DATABASE_URL", "err", err)
		os.Exit(1)
	}
	if err := storage.RunMigrations(ctx, migrationDB); err != nil {
		l.Error("Failed to run migrations", "err", err)
		os.Exit(1)
	}
	migrationDB.Close()

	dbPool, err := storage.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		l.Error("Failed to connect to database", "err", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	// Storage layer
	documents := storage.NewPostgresDocumentStorage(dbPool)
	changes := storage.NewPostgresChangeStorage(dbPool)
	jobs := storage.NewPostgresJobStorage(dbPool)
	notifications := storage.NewPostgresNotificationStorage(dbPool)

	// Kafka producer setup
	if cfg.KafkaBrokers == "" {
		l.Error("KAFKA_BROKERS not set")
		os.Exit(1)
	}

	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Retry.Max = 5
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.ClientID = "policywatch-producer"

	asyncProducer, err := sarama.NewAsyncProducer(strings.Split(cfg.KafkaBrokers, ","), saramaConfig)
	if err != nil {
		l.Error("Failed to create sarama producer", slog.Any("error", err))
		os.Exit(1)
	}

	var wg sync.WaitGroup
	producerTracer := tracing.NewTracer(tracing.GetTracer("kafka-producer"))
	notificationProducer := kafka.NewProducer(asyncProducer, cfg.KafkaNotifTopic, l, &wg, producerTracer)
	notificationProducer.Start(ctx)

	// Service layer
	httpClient := &http.Client{Timeout: cfg.FetchTimeout}
	fetch := fetcher.NewHTTPFetcher(httpClient, l, cfg.FetchTimeout)

	documentSvc := service.NewDocumentService(documents, changes, fetch, l, cfg.DefaultCheckFrequency)
	reportSvc := service.NewReportService(documents, changes, l)
	healthSvc := service.NewHealthService(documents, l)

	cycleRunner := runner.New(documents, changes, jobs, notifications, fetch, notificationProducer, l, runner.Config{
		BatchSize:       cfg.BatchSize,
		WorkerCount:     cfg.WorkerCount,
		NotifyThreshold: cfg.NotifyThreshold,
		ClaimLease:      cfg.ClaimLease,
	})

	// Recurring cycle trigger
	cycleCtx, cycleCancel := context.WithCancel(ctx)
	defer cycleCancel()

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.CycleSchedule, func() {
		if _, err := cycleRunner.RunCycle(cycleCtx); err != nil {
			l.Error("Scheduled monitoring cycle failed", slog.Any("error", err))
		}
	}); err != nil {
		l.Error("Invalid cycle schedule", "schedule", cfg.CycleSchedule, "err", err)
		os.Exit(1)
	}
	scheduler.Start()

	// HTTP layer
	documentHandler := handler.NewDocumentHandler(documentSvc, l)
	monitoringHandler := handler.NewMonitoringHandler(cycleRunner, reportSvc, l)
	healthHandler := handler.NewHealthHandler(healthSvc, l)

	r := router.NewRouter(documentHandler, monitoringHandler, healthHandler)

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	go func() {
		l.Info("Server started", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error("Failed to start server", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	l.Info("Shutting down server...")

	ctxTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxTimeout); err != nil {
		l.Error("Shutdown failed", "err", err)
	} else {
		l.Info("Server exited cleanly")
	}

	// Stop the cycle trigger, let an in-flight cycle wind down, then flush
	// the producer.
	cycleCancel()
	cronCtx := scheduler.Stop()
	select {
	case <-cronCtx.Done():
	case <-time.After(10 * time.Second):
		l.Warn("Timed out waiting for scheduled cycles to stop")
	}
	notificationProducer.Close(ctx)
}
