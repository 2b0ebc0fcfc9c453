package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all runtime settings for the monitoring service. Values come
// from the environment; main loads an optional .env file first.
type Config struct {
	HTTPAddr          string
	DatabaseURL       string
	KafkaBrokers      string
	KafkaNotifTopic   string
	CollectorEndpoint string

	// Monitoring defaults.
	DefaultCheckFrequency int           // seconds between checks of one document
	NotifyThreshold       int           // minimum significance score that notifies
	BatchSize             int           // documents per cycle
	FetchTimeout          time.Duration // per-document fetch deadline
	WorkerCount           int           // concurrent checks within a cycle
	ClaimLease            time.Duration // how long a selected document stays claimed
	CycleSchedule         string        // cron spec for the recurring cycle trigger
}

// Load reads configuration from the environment, applying defaults for
// anything unset.
func Load() Config {
	return Config{
		HTTPAddr:          getString("HTTP_ADDR", ":8080"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		KafkaBrokers:      os.Getenv("KAFKA_BROKERS"),
		KafkaNotifTopic:   getString("KAFKA_NOTIF_TOPIC", "document-change-notifications"),
		CollectorEndpoint: getString("OTEL_COLLECTOR_ENDPOINT", "otel-collector:4317"),

		DefaultCheckFrequency: getInt("DEFAULT_CHECK_FREQUENCY", 86400),
		NotifyThreshold:       getInt("NOTIFY_THRESHOLD", 50),
		BatchSize:             getInt("CYCLE_BATCH_SIZE", 100),
		FetchTimeout:          getDuration("FETCH_TIMEOUT", 30*time.Second),
		WorkerCount:           getInt("CYCLE_WORKERS", 10),
		ClaimLease:            getDuration("CLAIM_LEASE", 5*time.Minute),
		CycleSchedule:         getString("CYCLE_SCHEDULE", "@every 1m"),
	}
}

func getString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}
