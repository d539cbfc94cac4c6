// Package config reads the server configuration from the environment so main
// stays lean.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gatekeeper/pkg/secrets"
)

// Storage backends selectable with STORE_BACKEND.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

const (
	devSigningKey  = "dev-secret-key-change-in-production"
	demoSigningKey = "demo-signing-key-change-me-locally"
	devAdminToken  = "demo-admin-token"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr         string
	Environment  string
	StoreBackend string
	PolicyFile   string
	SeedDemo     bool
	TxTimeout    time.Duration
	MaxBodyBytes int64

	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Auth     AuthConfig
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL          string
	KeyPrefix    string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig enables the audit outbox relay when Brokers is non-empty.
type KafkaConfig struct {
	Brokers       []string
	AuditTopic    string
	ConsumerGroup string
	PollInterval  time.Duration
	BatchSize     int
}

type AuthConfig struct {
	JWTSigningKey  string
	Issuer         string
	Audience       string
	TokenTTL       time.Duration
	AdminAPIToken  string
	// AdminTokenHash is a bcrypt hash of the operator token.
	AdminTokenHash string
}

// IsDevLike reports whether insecure defaults are acceptable.
func (s Server) IsDevLike() bool {
	switch s.Environment {
	case "local", "dev", "development", "demo", "test", "testing":
		return true
	}
	return false
}

// FromEnv builds the configuration and rejects combinations that cannot run.
func FromEnv() (Server, error) {
	cfg := Server{
		Addr:         getEnv("GATEKEEPER_ADDR", ":8080"),
		Environment:  strings.ToLower(getEnv("ENVIRONMENT", "local")),
		StoreBackend: strings.ToLower(getEnv("STORE_BACKEND", BackendMemory)),
		PolicyFile:   os.Getenv("POLICY_FILE"),
		TxTimeout:    getDuration("KV_TX_TIMEOUT", 5*time.Second),
		MaxBodyBytes: int64(getInt("MAX_BODY_BYTES", 1<<20)),
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    getInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			KeyPrefix:    getEnv("REDIS_KEY_PREFIX", "gatekeeper:"),
			PoolSize:     getInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:       splitList(os.Getenv("KAFKA_BROKERS")),
			AuditTopic:    getEnv("KAFKA_AUDIT_TOPIC", "gatekeeper.audit"),
			ConsumerGroup: getEnv("KAFKA_CONSUMER_GROUP", "gatekeeper-audit"),
			PollInterval:  getDuration("OUTBOX_POLL_INTERVAL", time.Second),
			BatchSize:     getInt("OUTBOX_BATCH_SIZE", 100),
		},
		Auth: AuthConfig{
			JWTSigningKey:  os.Getenv("JWT_SIGNING_KEY"),
			Issuer:         getEnv("JWT_ISSUER", "gatekeeper"),
			Audience:       getEnv("JWT_AUDIENCE", "gatekeeper-api"),
			TokenTTL:       getDuration("TOKEN_TTL", 15*time.Minute),
			AdminAPIToken:  os.Getenv("ADMIN_API_TOKEN"),
			AdminTokenHash: os.Getenv("ADMIN_API_TOKEN_HASH"),
		},
	}

	cfg.SeedDemo = getBool("SEED_DEMO_DATA", cfg.Environment == "demo")
	if cfg.SeedDemo && !cfg.IsDevLike() {
		return Server{}, fmt.Errorf("SEED_DEMO_DATA is not allowed in %s", cfg.Environment)
	}

	if cfg.Auth.JWTSigningKey == "" {
		if !cfg.IsDevLike() {
			return Server{}, fmt.Errorf("JWT_SIGNING_KEY is required in %s", cfg.Environment)
		}
		cfg.Auth.JWTSigningKey = devSigningKey
		if cfg.Environment == "demo" {
			cfg.Auth.JWTSigningKey = demoSigningKey
		}
	}
	if cfg.Auth.AdminTokenHash != "" {
		if err := secrets.ValidateHash(cfg.Auth.AdminTokenHash); err != nil {
			return Server{}, fmt.Errorf("ADMIN_API_TOKEN_HASH: %w", err)
		}
	}
	if cfg.Auth.AdminAPIToken == "" && cfg.Auth.AdminTokenHash == "" && cfg.IsDevLike() {
		cfg.Auth.AdminAPIToken = devAdminToken
	}

	switch cfg.StoreBackend {
	case BackendMemory:
	case BackendPostgres:
		if cfg.Database.URL == "" {
			return Server{}, fmt.Errorf("DATABASE_URL is required for the postgres backend")
		}
	case BackendRedis:
		if cfg.Redis.URL == "" {
			return Server{}, fmt.Errorf("REDIS_URL is required for the redis backend")
		}
	default:
		return Server{}, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}
	if len(cfg.Kafka.Brokers) > 0 && cfg.Database.URL == "" {
		return Server{}, fmt.Errorf("the kafka audit relay needs DATABASE_URL for its outbox")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil && v > 0 {
		return v
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil && v > 0 {
		return v
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
