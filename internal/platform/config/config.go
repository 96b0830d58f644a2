package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures everything the server needs from the environment so main
// stays lean.
type Config struct {
	Addr string

	// PostgresURL selects the postgres-backed stores when set; empty keeps
	// the in-memory stores (dev mode).
	PostgresURL string

	Redis RedisConfig

	Kafka KafkaConfig

	SMTP SMTPConfig

	Cloudinary CloudinaryConfig

	// SubmissionLeaseTTL bounds how long an intake call may hold the
	// per-user submission lease.
	SubmissionLeaseTTL time.Duration
}

// RedisConfig configures the per-user submission lease backend.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the process_updated event feed.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// SMTPConfig configures outbound notification email.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

// CloudinaryConfig configures the upload adapter. The SDK also honors
// CLOUDINARY_URL directly.
type CloudinaryConfig struct {
	URL string
}

// FromEnv builds a Config from environment variables with dev-safe defaults.
func FromEnv() Config {
	cfg := Config{
		Addr:               envOr("VETGATE_ADDR", ":8080"),
		PostgresURL:        os.Getenv("VETGATE_POSTGRES_URL"),
		SubmissionLeaseTTL: envDurationOr("VETGATE_SUBMISSION_LEASE_TTL", 30*time.Second),
		Redis: RedisConfig{
			URL:          os.Getenv("VETGATE_REDIS_URL"),
			PoolSize:     envIntOr("VETGATE_REDIS_POOL_SIZE", 10),
			MinIdleConns: envIntOr("VETGATE_REDIS_MIN_IDLE", 2),
			DialTimeout:  envDurationOr("VETGATE_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDurationOr("VETGATE_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDurationOr("VETGATE_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Topic: envOr("VETGATE_KAFKA_TOPIC", "verification.process.updated"),
		},
		SMTP: SMTPConfig{
			Host:     os.Getenv("VETGATE_SMTP_HOST"),
			Port:     envIntOr("VETGATE_SMTP_PORT", 587),
			Username: os.Getenv("VETGATE_SMTP_USERNAME"),
			Password: os.Getenv("VETGATE_SMTP_PASSWORD"),
			From:     os.Getenv("VETGATE_SMTP_FROM"),
			FromName: envOr("VETGATE_SMTP_FROM_NAME", "Verification Team"),
		},
		Cloudinary: CloudinaryConfig{
			URL: os.Getenv("CLOUDINARY_URL"),
		},
	}
	if brokers := os.Getenv("VETGATE_KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka.Brokers = splitCSV(brokers)
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
