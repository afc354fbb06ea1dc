package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/example/artist-portfolio/internal/platform/config"
	"github.com/example/artist-portfolio/internal/platform/httpserver"
)

type Backend string

const (
	BackendMemory   Backend = "memory"
	BackendMongo    Backend = "mongo"
	BackendPostgres Backend = "postgres"
)

// MinRetryBase is the smallest accepted STORE_RETRY_BASE.
const MinRetryBase = 10 * time.Millisecond

type Config struct {
	Backend       Backend
	MongoURI      string
	MongoDatabase string
	DatabaseURL   string

	// RedisURL backs idempotency keys; DatabaseURL is used when it is empty.
	RedisURL       string
	IdempotencyTTL time.Duration

	JWTSecret string

	RetryAttempts int
	RetryBase     time.Duration
	RetryMax      time.Duration

	AllowedOrigins []string

	// WritesPerMinute limits comment submits and likes per client IP; 0 disables.
	WritesPerMinute int
	WriteBurst      int

	OTLPEndpoint string
	OTLPHeaders  string
}

// Load reads the comments service settings. The store backend defaults to
// mongo when MONGO_URI is set, then postgres when DATABASE_URL is set, then
// memory.
func Load(src *config.Source) (Config, error) {
	cfg := Config{
		Backend:         Backend(strings.ToLower(src.String("DOCSTORE_BACKEND", ""))),
		MongoURI:        src.String("MONGO_URI", ""),
		MongoDatabase:   src.String("MONGO_DATABASE", "portfolio"),
		DatabaseURL:     src.String("DATABASE_URL", ""),
		RedisURL:        src.String("REDIS_URL", ""),
		IdempotencyTTL:  src.Duration("IDEMPOTENCY_TTL", 24*time.Hour),
		JWTSecret:       src.String("JWT_SECRET", ""),
		RetryAttempts:   src.Int("STORE_RETRY_ATTEMPTS", 4),
		RetryBase:       src.Duration("STORE_RETRY_BASE", 50*time.Millisecond),
		RetryMax:        src.Duration("STORE_RETRY_MAX", 2*time.Second),
		AllowedOrigins:  httpserver.ParseCORSOrigins(src.String("CORS_ALLOWED_ORIGINS", "")),
		WritesPerMinute: src.Int("WRITE_RATE_PER_MINUTE", 30),
		WriteBurst:      src.Int("WRITE_BURST", 10),
		OTLPEndpoint:    src.String("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTLPHeaders:     src.String("OTEL_EXPORTER_OTLP_HEADERS", ""),
	}

	if cfg.Backend == "" {
		switch {
		case cfg.MongoURI != "":
			cfg.Backend = BackendMongo
		case cfg.DatabaseURL != "":
			cfg.Backend = BackendPostgres
		default:
			cfg.Backend = BackendMemory
		}
	}

	switch cfg.Backend {
	case BackendMemory:
	case BackendMongo:
		if cfg.MongoURI == "" {
			return Config{}, fmt.Errorf("DOCSTORE_BACKEND=mongo requires MONGO_URI")
		}
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DOCSTORE_BACKEND=postgres requires DATABASE_URL")
		}
	default:
		return Config{}, fmt.Errorf("unknown DOCSTORE_BACKEND %q", cfg.Backend)
	}
	if cfg.RetryAttempts < 1 {
		cfg.RetryAttempts = 1
	}
	// The subscription reconnect loop sleeps RetryBase between attempts.
	cfg.RetryBase = max(cfg.RetryBase, MinRetryBase)
	cfg.RetryMax = max(cfg.RetryMax, cfg.RetryBase)
	return cfg, nil
}

// Validate applies the production rules: a durable store and a signing secret.
func (c Config) Validate(production bool) error {
	if !production {
		return nil
	}
	if c.Backend == BackendMemory {
		return fmt.Errorf("memory comment store is not allowed in production")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required in production")
	}
	return nil
}
