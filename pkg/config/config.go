package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	NATS     NATSConfig
	Auth     AuthConfig
	Bus      BusConfig
	Session  SessionConfig
	Catalog  CatalogConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	URL         string
	MaxConns    int
	MinConns    int
	MaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

type NATSConfig struct {
	URL string
}

type AuthConfig struct {
	JWTSecret      string
	AccessTokenTTL time.Duration
}

// BusConfig controls the reliable publisher wrapped around the broker
// transport: bounded retries with exponential backoff, then dead-letter.
type BusConfig struct {
	MaxAttempts   int
	BackoffBase   time.Duration
	BackoffCap    time.Duration
	DeadLetterKey string
}

// SessionConfig controls the real-time session layer. RelayBuffer is the
// per-participant bound on undelivered messages (drop-oldest beyond it).
type SessionConfig struct {
	RelayBuffer  int
	HistoryLimit int
	HistoryTTL   time.Duration
}

type CatalogConfig struct {
	BaseURL string
	Timeout time.Duration
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8003"),
			ReadTimeout:  getDuration("SERVER_READ_TIMEOUT", 5*time.Second),
			WriteTimeout: getDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:  getDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Database: DatabaseConfig{
			URL:         getEnv("DATABASE_URL", ""),
			MaxConns:    getInt("DB_MAX_CONNS", 10),
			MinConns:    getInt("DB_MIN_CONNS", 1),
			MaxLifetime: getDuration("DB_MAX_LIFETIME", time.Hour),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", "redis://localhost:6379"),
		},
		NATS: NATSConfig{
			URL: getEnv("NATS_URL", "nats://localhost:4222"),
		},
		Auth: AuthConfig{
			JWTSecret:      getEnv("JWT_SECRET", "dev-only-secret-change-in-prod"),
			AccessTokenTTL: getDuration("ACCESS_TOKEN_TTL", 15*time.Minute),
		},
		Bus: BusConfig{
			MaxAttempts:   getInt("BUS_MAX_ATTEMPTS", 5),
			BackoffBase:   getDuration("BUS_BACKOFF_BASE", 100*time.Millisecond),
			BackoffCap:    getDuration("BUS_BACKOFF_CAP", 5*time.Second),
			DeadLetterKey: getEnv("BUS_DEAD_LETTER_KEY", "events:dead_letter"),
		},
		Session: SessionConfig{
			RelayBuffer:  getInt("SESSION_RELAY_BUFFER", 10),
			HistoryLimit: getInt("SESSION_HISTORY_LIMIT", 100),
			HistoryTTL:   getDuration("SESSION_HISTORY_TTL", 24*time.Hour),
		},
		Catalog: CatalogConfig{
			BaseURL: getEnv("CATALOG_URL", "http://localhost:8002"),
			Timeout: getDuration("CATALOG_TIMEOUT", 3*time.Second),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
