package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process-level configuration. Every backend is optional: an
// empty URL/DSN selects the in-memory implementation so the gateway can run
// without external services in development.
type Server struct {
	Addr string

	// Index store (off-chain projections).
	PostgresDSN string

	// Access cache and idempotency ledger.
	Redis RedisConfig

	// Ledger node RPC endpoint.
	LedgerURL string

	// Content pinning service.
	PinnerURL      string
	PinnerAPIKey   string
	PinnerSecret   string
	ContentGateway string

	// Ledger mutation event stream.
	KafkaBrokers []string
	KafkaTopic   string

	// Staleness bound for cached access decisions.
	AccessCacheTTL time.Duration

	// Retention of fingerprint -> evidenceId mappings.
	IdempotencyTTL time.Duration

	// Bound on every external call.
	CallTimeout time.Duration

	// Bounded retry for content staging.
	ContentPutAttempts int
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	cfg := Server{
		Addr:               envOr("CUSTODIA_ADDR", ":8080"),
		PostgresDSN:        os.Getenv("CUSTODIA_POSTGRES_DSN"),
		LedgerURL:          os.Getenv("CUSTODIA_LEDGER_URL"),
		PinnerURL:          os.Getenv("CUSTODIA_PINNER_URL"),
		PinnerAPIKey:       os.Getenv("CUSTODIA_PINNER_API_KEY"),
		PinnerSecret:       os.Getenv("CUSTODIA_PINNER_SECRET"),
		ContentGateway:     os.Getenv("CUSTODIA_CONTENT_GATEWAY"),
		KafkaTopic:         envOr("CUSTODIA_KAFKA_TOPIC", "custodia.ledger.events"),
		AccessCacheTTL:     envDuration("CUSTODIA_ACCESS_CACHE_TTL", 30*time.Second),
		IdempotencyTTL:     envDuration("CUSTODIA_IDEMPOTENCY_TTL", 10*time.Minute),
		CallTimeout:        envDuration("CUSTODIA_CALL_TIMEOUT", 15*time.Second),
		ContentPutAttempts: envInt("CUSTODIA_CONTENT_PUT_ATTEMPTS", 3),
		Redis: RedisConfig{
			URL:          os.Getenv("CUSTODIA_REDIS_URL"),
			PoolSize:     envInt("CUSTODIA_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("CUSTODIA_REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("CUSTODIA_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("CUSTODIA_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("CUSTODIA_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
	}
	if brokers := os.Getenv("CUSTODIA_KAFKA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
